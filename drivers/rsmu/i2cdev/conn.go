package i2cdev

import (
	"errors"
	"io"

	"rsmu-go/drivers/rsmu"
)

// Options selects an adapter and device address.
type Options struct {
	Bus       int    // N in /dev/i2c-N
	Addr      uint16 // 7-bit device address
	Force     bool   // use I2C_SLAVE_FORCE
	Transport string // auto | i2c | smbus
}

// Conn is a selected transport plus the handles that back it.
type Conn struct {
	rsmu.Transport
	closers []io.Closer
}

func (c *Conn) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i].Close())
	}
	return errors.Join(errs...)
}
