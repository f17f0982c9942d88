//go:build linux && (amd64 || arm64)

package clock

import (
	"os"

	"rsmu-go/errcode"

	"golang.org/x/sys/unix"
)

// Clock is a kernel clock adjusted through clock_adjtime.
type Clock struct {
	id     int32
	name   string
	f      *os.File // PHC character device, nil for the system clock
	maxPPB float64
}

// Open returns the system clock for "system" (or empty) and otherwise
// opens name as a PTP hardware clock device such as /dev/ptp0.
func Open(name string) (*Clock, error) {
	if IsSystem(name) {
		return &Clock{id: unix.CLOCK_REALTIME, name: SystemName, maxPPB: DefaultMaxPPB}, nil
	}
	f, err := os.OpenFile(name, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	// FD_TO_CLOCKID
	id := int32((^int(f.Fd()) << 3) | 3)
	return &Clock{id: id, name: name, f: f, maxPPB: DefaultMaxPPB}, nil
}

func (c *Clock) Name() string { return c.name }

// SetMaxPPB changes the frequency clamp.
func (c *Clock) SetMaxPPB(ppb float64) {
	if ppb > 0 {
		c.maxPPB = ppb
	}
}

func (c *Clock) Close() error {
	if c.f == nil {
		return nil
	}
	return c.f.Close()
}

// SetFrequency sets the clock's frequency offset in parts per billion.
func (c *Clock) SetFrequency(ppb float64) error {
	tx := unix.Timex{Modes: unix.ADJ_FREQUENCY, Freq: scaledPPM(clampPPB(ppb, c.maxPPB))}
	if _, err := unix.ClockAdjtime(c.id, &tx); err != nil {
		return errcode.Bus("clock_adjtime freq "+c.name, err)
	}
	return nil
}

// Frequency returns the current frequency offset in parts per billion.
func (c *Clock) Frequency() (float64, error) {
	var tx unix.Timex
	if _, err := unix.ClockAdjtime(c.id, &tx); err != nil {
		return 0, errcode.Bus("clock_adjtime read "+c.name, err)
	}
	return ppbFromScaled(tx.Freq), nil
}

// StepPhase shifts the clock by ns nanoseconds.
func (c *Clock) StepPhase(ns int64) error {
	sec, nsec := splitOffset(ns)
	tx := unix.Timex{Modes: unix.ADJ_SETOFFSET | unix.ADJ_NANO}
	tx.Time.Sec = sec
	tx.Time.Usec = nsec
	if _, err := unix.ClockAdjtime(c.id, &tx); err != nil {
		return errcode.Bus("clock_adjtime step "+c.name, err)
	}
	return nil
}
