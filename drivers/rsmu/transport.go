package rsmu

import (
	"rsmu-go/errcode"

	"tinygo.org/x/drivers"
)

// Bus limits.
const (
	MaxWriteCount = 255 // payload bytes, plus one register byte on the wire
	MaxReadCount  = 255
	SMBusBlockMax = 32
)

// TransportKind names the two bus access variants.
type TransportKind uint8

const (
	KindMessagePair TransportKind = iota + 1
	KindBlockTransfer
)

func (k TransportKind) String() string {
	switch k {
	case KindMessagePair:
		return "i2c"
	case KindBlockTransfer:
		return "smbus"
	default:
		return "unknown"
	}
}

// Transport moves bytes to and from an in-page device offset. reg holds the
// encoded offset (one byte, or two big-endian bytes for 16-bit register maps).
// It is selected once at construction and never swapped.
type Transport interface {
	Read(reg, buf []byte) error
	Write(reg, data []byte) error
	MaxRead() int
	MaxWrite() int
	Kind() TransportKind
}

// MessagePair issues a register write followed by a repeated-start read in a
// single combined transfer, and writes as one message.
type MessagePair struct {
	bus  drivers.I2C
	addr uint16

	// Fixed buffer to avoid per-call heap allocations.
	w [2 + MaxWriteCount]byte
}

// NewMessagePair binds a drivers.I2C bus and 7-bit device address.
func NewMessagePair(bus drivers.I2C, addr uint16) *MessagePair {
	return &MessagePair{bus: bus, addr: addr}
}

func (t *MessagePair) Read(reg, buf []byte) error {
	if len(buf) > MaxReadCount {
		return errcode.Invalid("i2c_read", "count exceeds 255")
	}
	return t.bus.Tx(t.addr, reg, buf)
}

func (t *MessagePair) Write(reg, data []byte) error {
	if len(data) > MaxWriteCount {
		return errcode.Invalid("i2c_write", "count exceeds 255")
	}
	n := copy(t.w[:], reg)
	n += copy(t.w[n:], data)
	return t.bus.Tx(t.addr, t.w[:n], nil)
}

func (t *MessagePair) MaxRead() int        { return MaxReadCount }
func (t *MessagePair) MaxWrite() int       { return MaxWriteCount }
func (t *MessagePair) Kind() TransportKind { return KindMessagePair }

// SMBus is the I2C-block subset of an SMBus adapter.
type SMBus interface {
	ReadI2CBlock(cmd byte, buf []byte) error
	WriteI2CBlock(cmd byte, data []byte) error
}

// BlockTransfer uses SMBus I2C-block transfers, limited to 32 bytes and a
// single command byte.
type BlockTransfer struct {
	bus SMBus
}

// NewBlockTransfer binds an SMBus adapter with the slave already selected.
func NewBlockTransfer(bus SMBus) *BlockTransfer { return &BlockTransfer{bus: bus} }

func (t *BlockTransfer) Read(reg, buf []byte) error {
	if len(reg) != 1 {
		return errcode.Unsupported("smbus_read", "16-bit register addresses need plain i2c")
	}
	if len(buf) > SMBusBlockMax {
		return errcode.Invalid("smbus_read", "count exceeds 32")
	}
	return t.bus.ReadI2CBlock(reg[0], buf)
}

func (t *BlockTransfer) Write(reg, data []byte) error {
	if len(reg) != 1 {
		return errcode.Unsupported("smbus_write", "16-bit register addresses need plain i2c")
	}
	if len(data) > SMBusBlockMax {
		return errcode.Invalid("smbus_write", "count exceeds 32")
	}
	return t.bus.WriteI2CBlock(reg[0], data)
}

func (t *BlockTransfer) MaxRead() int        { return SMBusBlockMax }
func (t *BlockTransfer) MaxWrite() int       { return SMBusBlockMax }
func (t *BlockTransfer) Kind() TransportKind { return KindBlockTransfer }
