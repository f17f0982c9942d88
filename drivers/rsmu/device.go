package rsmu

import (
	"log/slog"
	"sync"
	"time"

	"rsmu-go/errcode"
)

// Driver configuration.
type Config struct {
	Family   Family
	Revision Revision // ignored unless Family is FemtoClock3

	// DetectRevision reads the device ID during Open and overrides Revision.
	DetectRevision bool

	// RecalOnAbort runs the recalibration sequence after a firmware load
	// that stopped on an error, in addition to after a clean load.
	RecalOnAbort bool

	Logger *slog.Logger
	Sleep  func(time.Duration) // settle delays; nil uses time.Sleep
}

// DefaultConfig returns a FemtoClock3 configuration that probes the revision
// and keeps the legacy recalibrate-after-abort behaviour.
func DefaultConfig() Config {
	return Config{
		Family:         FemtoClock3,
		DetectRevision: true,
		RecalOnAbort:   true,
	}
}

// Validate checks the family has a known page scheme.
func (c Config) Validate() error {
	if _, ok := schemes[c.Family]; !ok {
		return errcode.Unsupported("config", "family "+c.Family.String())
	}
	if c.Revision > RevA {
		return errcode.Invalid("config", "revision out of range")
	}
	return nil
}

// Device is one synchronizer behind a Transport. All register traffic of
// a single operation, including page selects, runs under mu.
type Device struct {
	mu sync.Mutex

	tr     Transport
	family Family
	rev    Revision
	scheme *pageScheme

	// Last page written; unknown until the first select succeeds.
	page      uint32
	pageValid bool

	// TDC measurement mode last programmed, if any.
	tdcArmed bool
	tdcMode  TDCMode

	recalOnAbort bool
	log          *slog.Logger
	sleep        func(time.Duration)
}

// New constructs a Device without touching the bus.
func New(tr Transport, cfg Config) (*Device, error) {
	if tr == nil {
		return nil, errcode.Invalid("new", "nil transport")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := schemes[cfg.Family]
	d := &Device{
		tr:           tr,
		family:       cfg.Family,
		scheme:       &s,
		recalOnAbort: cfg.RecalOnAbort,
		log:          cfg.Logger,
		sleep:        cfg.Sleep,
	}
	if cfg.Family == FemtoClock3 {
		d.rev = cfg.Revision
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	if d.sleep == nil {
		d.sleep = time.Sleep
	}
	return d, nil
}

// Open constructs a Device and, when configured, identifies its revision.
func Open(tr Transport, cfg Config) (*Device, error) {
	d, err := New(tr, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Family == FemtoClock3 && cfg.DetectRevision {
		if _, err := d.GetDeviceRevision(); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Device) Family() Family           { return d.family }
func (d *Device) Transport() TransportKind { return d.tr.Kind() }

// Revision returns the revision currently used for register lookups.
func (d *Device) Revision() Revision {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rev
}

// InvalidatePage forgets the cached page so the next access reselects it.
func (d *Device) InvalidatePage() {
	d.mu.Lock()
	d.pageValid = false
	d.mu.Unlock()
}

// ---- raw register access ----

// ReadRegister reads len(buf) bytes starting at addr.
func (d *Device) ReadRegister(addr uint32, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readLocked(addr, buf)
}

// WriteRegister writes data starting at addr as one logical write.
func (d *Device) WriteRegister(addr uint32, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeLocked(addr, data)
}

// Raw access bounds for tooling.
const (
	MaxRangeOffset = MaxRegisterCM
	MaxRangeRead   = 256
	MaxRangeWrite  = MaxWriteCount
)

// ReadRange reads count bytes at offset, bounded for interactive use.
func (d *Device) ReadRange(offset uint32, count int) ([]byte, error) {
	if offset > MaxRangeOffset {
		return nil, errcode.Invalid("read_range", "offset out of range")
	}
	if count < 1 || count > MaxRangeRead {
		return nil, errcode.Invalid("read_range", "count must be 1..256")
	}
	buf := make([]byte, count)
	if err := d.ReadRegister(offset, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteRange writes data at offset, bounded for interactive use.
func (d *Device) WriteRange(offset uint32, data []byte) error {
	if offset > MaxRangeOffset {
		return errcode.Invalid("write_range", "offset out of range")
	}
	if len(data) < 1 || len(data) > MaxRangeWrite {
		return errcode.Invalid("write_range", "count must be 1..255")
	}
	return d.WriteRegister(offset, data)
}
