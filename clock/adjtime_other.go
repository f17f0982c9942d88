//go:build !(linux && (amd64 || arm64))

package clock

import "rsmu-go/errcode"

// Clock is unavailable off 64-bit Linux.
type Clock struct{ name string }

func Open(name string) (*Clock, error) {
	return nil, errcode.Unsupported("clock_open", "clock_adjtime needs 64-bit linux")
}

func (c *Clock) Name() string                { return c.name }
func (c *Clock) SetMaxPPB(float64)           {}
func (c *Clock) Close() error                { return nil }
func (c *Clock) SetFrequency(float64) error  { return errcode.Unsupported("clock", c.name) }
func (c *Clock) Frequency() (float64, error) { return 0, errcode.Unsupported("clock", c.name) }
func (c *Clock) StepPhase(ns int64) error    { return errcode.Unsupported("clock", c.name) }
