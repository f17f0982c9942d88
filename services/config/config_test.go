package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rsmu-go/bus"
	"rsmu-go/drivers/rsmu"
	"rsmu-go/errcode"
)

func TestDefaultConfig(t *testing.T) {
	d, err := Default()
	require.NoError(t, err)

	assert.EqualValues(t, 0x5b, d.Device.Address)
	assert.Equal(t, "auto", d.Device.Transport)
	assert.Equal(t, 100*time.Millisecond, d.Sync.Period)
	assert.Equal(t, []int{0, 1, 2, 3}, d.Monitor.Refs)
	assert.Equal(t, rsmu.DefaultFirmwareName, d.Firmware.Name)
	assert.Equal(t, 10*time.Second, d.Heartbeat)
	lvl, err := d.Log.ParseLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, lvl)
	require.NotNil(t, d.Firmware.RecalOnError)
	assert.True(t, *d.Firmware.RecalOnError)

	cfg, err := d.RSMU()
	require.NoError(t, err)
	assert.Equal(t, rsmu.FemtoClock3, cfg.Family)
	assert.True(t, cfg.DetectRevision)
}

func TestParseOverrides(t *testing.T) {
	d, err := Parse([]byte(`
device:
  address: 0x58
  family: 8a34001
  transport: smbus
firmware:
  recal_on_error: false
sync:
  period: 250ms
  phase_write: true
  max_ppb: 1000
  servo:
    kp: 0.5
    ki: 0.1
    step_threshold_ns: 5000
monitor:
  dplls: [0, 3]
  ffo: true
`))
	require.NoError(t, err)

	cfg, err := d.RSMU()
	require.NoError(t, err)
	assert.Equal(t, rsmu.ClockMatrix, cfg.Family)
	assert.False(t, cfg.DetectRevision, "only FemtoClock3 detects")
	assert.False(t, cfg.RecalOnAbort)

	sc := d.ServoConfig()
	assert.Equal(t, 0.5, sc.Kp)
	assert.Equal(t, 0.1, sc.Ki)
	assert.Equal(t, 5000.0, sc.StepThreshold)
	assert.Equal(t, 1000.0, sc.MaxPPB)
	assert.Equal(t, 20000.0, sc.FirstStepThreshold)

	assert.Equal(t, 250*time.Millisecond, d.Sync.Period)
	assert.True(t, d.Sync.PhaseWrite)
	assert.Equal(t, time.Second, d.Monitor.DPLLInterval)
	assert.True(t, d.Monitor.FFO)
}

func TestParseRevision(t *testing.T) {
	cases := map[string]struct {
		rev    rsmu.Revision
		detect bool
	}{
		"":        {rsmu.RevDefault, true},
		"auto":    {rsmu.RevDefault, true},
		"default": {rsmu.RevDefault, false},
		"FC3W":    {rsmu.RevW, false},
		"a":       {rsmu.RevA, false},
	}
	for in, want := range cases {
		rev, detect, err := Device{Revision: in}.ParseRevision()
		require.NoError(t, err, in)
		assert.Equal(t, want.rev, rev, in)
		assert.Equal(t, want.detect, detect, in)
	}
	_, _, err := Device{Revision: "b"}.ParseRevision()
	assert.Equal(t, errcode.InvalidArgument, errcode.Of(err))
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"bad yaml":        "device: [",
		"unknown family":  "device: {address: 0x5b, family: nope}",
		"bad transport":   "device: {address: 0x5b, transport: spi}",
		"no address":      "device: {family: fc3}",
		"wide address":    "device: {address: 0x100}",
		"negative period": "device: {address: 0x5b}\nsync: {period: -1s}",
		"negative index":  "device: {address: 0x5b}\nmonitor: {refs: [-1]}",
		"bad log format":  "device: {address: 0x5b}\nlog: {format: xml}",
		"bad log level":   "device: {address: 0x5b}\nlog: {level: loud}",
		"neg heartbeat":   "device: {address: 0x5b}\nheartbeat: -1s",
	}
	for name, y := range cases {
		_, err := Parse([]byte(y))
		assert.Error(t, err, name)
	}

	_, err := Parse([]byte("device: {address: 0x5b, family: nope}"))
	assert.Equal(t, errcode.UnsupportedDevice, errcode.Of(err))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tdcsyncd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("device: {address: 0x5a, family: sabre}\n"), 0o644))

	d, err := Load(path)
	require.NoError(t, err)
	assert.EqualValues(t, 0x5a, d.Device.Address)
	assert.Equal(t, "sabre", d.Device.Family)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, errcode.InvalidArgument, errcode.Of(err))
}

func TestConfigService_PublishRetainedPerSection(t *testing.T) {
	d, err := Default()
	require.NoError(t, err)

	b := bus.NewBus(16)
	conn := b.NewConnection("test-config")
	svc := NewConfigService(d)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, svc.Start(ctx, conn))

	sub := conn.Subscribe(bus.T(configPrefix, bus.AnyRest))
	got := map[string]any{}
	deadline := time.After(600 * time.Millisecond)
	for len(got) < 5 {
		select {
		case m := <-sub.Channel():
			require.Len(t, m.Topic, 2)
			assert.True(t, m.Retained)
			got[m.Topic[1].(string)] = m.Payload
		case <-deadline:
			t.Fatalf("expected 5 retained sections, got %v", got)
		}
	}
	assert.Equal(t, d.Device, got["device"])
	assert.Equal(t, d.Sync, got["sync"])

	// Cancelling clears the retained sections.
	cancel()
	require.Eventually(t, func() bool {
		late := b.NewConnection("late").Subscribe(Topic("device"))
		defer late.Unsubscribe()
		select {
		case <-late.Channel():
			return false
		default:
			return true
		}
	}, time.Second, 5*time.Millisecond)
}

func TestConfigService_NoConfig(t *testing.T) {
	b := bus.NewBus(4)
	err := NewConfigService(nil).Publish(b.NewConnection("x"))
	assert.Equal(t, errcode.InvalidArgument, errcode.Of(err))
}
