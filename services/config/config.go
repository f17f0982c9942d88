// Package config loads the tdcsyncd YAML configuration and publishes its
// sections on the bus for other services to read.
package config

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"rsmu-go/bus"
	"rsmu-go/drivers/rsmu"
	"rsmu-go/errcode"
	"rsmu-go/services/tdcsync/servo"
)

const (
	serviceName  = "config"
	configPrefix = "config"
)

// Daemon is the complete tdcsyncd configuration.
type Daemon struct {
	Device   Device   `yaml:"device"`
	Firmware Firmware `yaml:"firmware"`
	Sync     Sync     `yaml:"sync"`
	Monitor  Monitor  `yaml:"monitor"`
	Log      Log      `yaml:"log"`

	Heartbeat time.Duration `yaml:"heartbeat"`
}

type Device struct {
	Bus       int    `yaml:"bus"`
	Address   uint16 `yaml:"address"`
	Family    string `yaml:"family"`    // family name or part number
	Revision  string `yaml:"revision"`  // auto | default | fc3w | fc3a
	Transport string `yaml:"transport"` // auto | i2c | smbus
	Force     bool   `yaml:"force"`     // claim the address even if a kernel driver holds it
}

type Firmware struct {
	Load         bool   `yaml:"load"`
	Dir          string `yaml:"dir"`
	Name         string `yaml:"name"`
	RecalOnError *bool  `yaml:"recal_on_error"`
}

type Sync struct {
	Enabled    bool          `yaml:"enabled"`
	DPLL       int           `yaml:"dpll"`
	Period     time.Duration `yaml:"period"`
	PhaseWrite bool          `yaml:"phase_write"`
	Clock      string        `yaml:"clock"` // "system" or a PHC device path
	MaxPPB     float64       `yaml:"max_ppb"`
	Servo      Servo         `yaml:"servo"`
	Trace      string        `yaml:"trace"` // CBOR trace file; empty disables
}

type Servo struct {
	Kp                   float64 `yaml:"kp"`
	Ki                   float64 `yaml:"ki"`
	StepThresholdNs      float64 `yaml:"step_threshold_ns"`
	FirstStepThresholdNs float64 `yaml:"first_step_threshold_ns"`
	StableNs             float64 `yaml:"stable_ns"`
	StableSamples        int     `yaml:"stable_samples"`
}

type Monitor struct {
	DPLLInterval   time.Duration `yaml:"dpll_interval"`
	RefmonInterval time.Duration `yaml:"refmon_interval"`
	DPLLs          []int         `yaml:"dplls"`
	Refs           []int         `yaml:"refs"`
	FFO            bool          `yaml:"ffo"`
}

type Log struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Parse decodes YAML, applies defaults and validates.
func Parse(data []byte) (*Daemon, error) {
	var d Daemon
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, &errcode.E{C: errcode.InvalidArgument, Op: "config_parse", Err: err}
	}
	d.applyDefaults()
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Load reads path; an empty path yields the built-in default.
func Load(path string) (*Daemon, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &errcode.E{C: errcode.InvalidArgument, Op: "config_load", Msg: path, Err: err}
	}
	return Parse(data)
}

func (d *Daemon) applyDefaults() {
	if d.Device.Family == "" {
		d.Device.Family = rsmu.FemtoClock3.String()
	}
	if d.Device.Revision == "" {
		d.Device.Revision = "auto"
	}
	if d.Device.Transport == "" {
		d.Device.Transport = "auto"
	}
	if d.Firmware.Name == "" {
		d.Firmware.Name = rsmu.DefaultFirmwareName
	}
	if d.Firmware.Dir == "" {
		d.Firmware.Dir = "/lib/firmware"
	}
	if d.Firmware.RecalOnError == nil {
		v := rsmu.DefaultConfig().RecalOnAbort
		d.Firmware.RecalOnError = &v
	}

	if d.Sync.Period == 0 {
		d.Sync.Period = 100 * time.Millisecond
	}
	if d.Sync.Clock == "" {
		d.Sync.Clock = "system"
	}
	if d.Sync.MaxPPB == 0 {
		d.Sync.MaxPPB = servo.DefaultConfig().MaxPPB
	}
	def := servo.DefaultConfig()
	s := &d.Sync.Servo
	if s.Kp == 0 && s.Ki == 0 {
		s.Kp, s.Ki = def.Kp, def.Ki
	}
	if s.FirstStepThresholdNs == 0 {
		s.FirstStepThresholdNs = def.FirstStepThreshold
	}
	if s.StableNs == 0 {
		s.StableNs = def.StableThreshold
	}
	if s.StableSamples == 0 {
		s.StableSamples = def.StableSamples
	}

	if d.Monitor.DPLLInterval == 0 {
		d.Monitor.DPLLInterval = time.Second
	}
	if d.Monitor.RefmonInterval == 0 {
		d.Monitor.RefmonInterval = time.Second
	}
	if d.Heartbeat == 0 {
		d.Heartbeat = 10 * time.Second
	}
	if d.Log.Level == "" {
		d.Log.Level = "info"
	}
	if d.Log.Format == "" {
		d.Log.Format = "text"
	}
}

// Validate rejects values no component could run with.
func (d *Daemon) Validate() error {
	const op = "config"
	if _, err := rsmu.ParseFamily(d.Device.Family); err != nil {
		return err
	}
	if _, _, err := d.Device.ParseRevision(); err != nil {
		return err
	}
	switch d.Device.Transport {
	case "auto", "i2c", "smbus":
	default:
		return errcode.Invalid(op, "unknown transport "+d.Device.Transport)
	}
	if d.Device.Address == 0 || d.Device.Address > 0x7F {
		return errcode.Invalid(op, "device address must be a 7-bit i2c address")
	}
	if d.Sync.Period <= 0 {
		return errcode.Invalid(op, "sync period must be positive")
	}
	if d.Sync.DPLL < 0 {
		return errcode.Invalid(op, "sync dpll must not be negative")
	}
	if d.Sync.MaxPPB < 0 {
		return errcode.Invalid(op, "max_ppb must not be negative")
	}
	if d.Monitor.DPLLInterval <= 0 || d.Monitor.RefmonInterval <= 0 {
		return errcode.Invalid(op, "monitor intervals must be positive")
	}
	for _, n := range append(append([]int(nil), d.Monitor.DPLLs...), d.Monitor.Refs...) {
		if n < 0 {
			return errcode.Invalid(op, "monitor index must not be negative")
		}
	}
	if d.Heartbeat < 0 {
		return errcode.Invalid(op, "heartbeat must not be negative")
	}
	if _, err := d.Log.ParseLevel(); err != nil {
		return err
	}
	switch d.Log.Format {
	case "text", "json":
	default:
		return errcode.Invalid(op, "unknown log format "+d.Log.Format)
	}
	return nil
}

// ParseLevel maps the configured level onto slog.
func (l Log) ParseLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, errcode.Invalid("config", "unknown log level "+l.Level)
	}
	return lvl, nil
}

// ParseRevision returns the configured revision; auto selects detection.
func (d Device) ParseRevision() (rev rsmu.Revision, detect bool, err error) {
	switch strings.ToLower(d.Revision) {
	case "", "auto":
		return rsmu.RevDefault, true, nil
	case "default":
		return rsmu.RevDefault, false, nil
	case "fc3w", "w":
		return rsmu.RevW, false, nil
	case "fc3a", "a":
		return rsmu.RevA, false, nil
	}
	return rsmu.RevDefault, false, errcode.Invalid("config", "unknown revision "+d.Revision)
}

// RSMU builds the driver configuration.
func (d *Daemon) RSMU() (rsmu.Config, error) {
	fam, err := rsmu.ParseFamily(d.Device.Family)
	if err != nil {
		return rsmu.Config{}, err
	}
	rev, detect, err := d.Device.ParseRevision()
	if err != nil {
		return rsmu.Config{}, err
	}
	cfg := rsmu.DefaultConfig()
	cfg.Family, cfg.Revision, cfg.DetectRevision = fam, rev, detect && fam == rsmu.FemtoClock3
	if d.Firmware.RecalOnError != nil {
		cfg.RecalOnAbort = *d.Firmware.RecalOnError
	}
	return cfg, nil
}

// ServoConfig builds the PI servo configuration.
func (d *Daemon) ServoConfig() servo.Config {
	s := d.Sync.Servo
	return servo.Config{
		Kp:                 s.Kp,
		Ki:                 s.Ki,
		StepThreshold:      s.StepThresholdNs,
		FirstStepThreshold: s.FirstStepThresholdNs,
		MaxPPB:             d.Sync.MaxPPB,
		StableThreshold:    s.StableNs,
		StableSamples:      s.StableSamples,
	}
}

// -----------------------------------------------------------------------------
// Config Service
// -----------------------------------------------------------------------------

type ConfigService struct {
	Name string
	cfg  *Daemon
}

func NewConfigService(cfg *Daemon) *ConfigService {
	return &ConfigService{Name: serviceName, cfg: cfg}
}

// Topic returns the retained topic for one config section.
func Topic(section string) bus.Topic { return bus.T(configPrefix, section) }

// Publish puts each section on config/<section> as a retained message.
func (s *ConfigService) Publish(conn *bus.Connection) error {
	if s.cfg == nil {
		return errcode.Invalid(serviceName, "no configuration")
	}
	sections := map[string]any{
		"device":   s.cfg.Device,
		"firmware": s.cfg.Firmware,
		"sync":     s.cfg.Sync,
		"monitor":  s.cfg.Monitor,
		"log":      s.cfg.Log,
	}
	for k, v := range sections {
		conn.Publish(conn.NewMessage(Topic(k), v, true))
	}
	return nil
}

// Start publishes once and clears the retained sections when ctx ends.
func (s *ConfigService) Start(ctx context.Context, conn *bus.Connection) error {
	if err := s.Publish(conn); err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		for _, k := range []string{"device", "firmware", "sync", "monitor", "log"} {
			conn.Publish(conn.NewMessage(Topic(k), nil, true))
		}
	}()
	return nil
}
