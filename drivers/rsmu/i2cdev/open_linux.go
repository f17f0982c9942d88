//go:build linux

package i2cdev

import (
	"io"
	"strconv"

	"rsmu-go/drivers/rsmu"
	"rsmu-go/errcode"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// Open probes /dev/i2c-<o.Bus> and returns the transport its functionality
// supports, honouring o.Transport. Plain I2C adapters go through periph's
// bus registry so combined transfers use I2C_RDWR.
func Open(o Options) (*Conn, error) {
	index, addr := o.Bus, o.Addr
	a, err := OpenAdapter(index, addr, o.Force)
	if err != nil {
		return nil, err
	}
	kind, err := SelectPreferred(a.Funcs(), o.Transport)
	if err != nil {
		a.Close()
		return nil, err
	}
	if kind == rsmu.KindBlockTransfer {
		return &Conn{Transport: rsmu.NewBlockTransfer(a), closers: []io.Closer{a}}, nil
	}

	// The ioctl handle only served the probe.
	a.Close()
	bus, err := openPeriph(index)
	if err != nil {
		return nil, err
	}
	return &Conn{Transport: rsmu.NewMessagePair(txBus{bus}, addr), closers: []io.Closer{bus}}, nil
}

func openPeriph(index int) (i2c.BusCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, errcode.Bus("periph init", err)
	}
	bus, err := i2creg.Open(strconv.Itoa(index))
	if err != nil {
		return nil, errcode.Bus("i2c open", err)
	}
	return bus, nil
}

// txBus narrows a periph bus to the Tx call the message-pair transport uses.
type txBus struct{ b i2c.Bus }

func (t txBus) Tx(addr uint16, w, r []byte) error { return t.b.Tx(addr, w, r) }
