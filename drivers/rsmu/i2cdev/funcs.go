// Package i2cdev binds rsmu transports to Linux /dev/i2c-N adapters.
//
// The transport variant is chosen from the adapter's functionality mask:
// plain I2C gets combined message pairs, SMBus-only adapters get 32-byte
// I2C block transfers, anything else is refused.
package i2cdev

import (
	"fmt"

	"rsmu-go/drivers/rsmu"
	"rsmu-go/errcode"
)

// Func is the adapter functionality mask reported by I2C_FUNCS.
type Func uint32

const (
	FuncI2C                Func = 0x00000001
	FuncSMBusReadI2CBlock  Func = 0x04000000
	FuncSMBusWriteI2CBlock Func = 0x08000000

	FuncSMBusI2CBlock = FuncSMBusReadI2CBlock | FuncSMBusWriteI2CBlock
)

func (f Func) String() string {
	return fmt.Sprintf("0x%08x", uint32(f))
}

// Select picks the transport variant for an adapter.
func Select(f Func) (rsmu.TransportKind, error) {
	switch {
	case f&FuncI2C != 0:
		return rsmu.KindMessagePair, nil
	case f&FuncSMBusI2CBlock == FuncSMBusI2CBlock:
		return rsmu.KindBlockTransfer, nil
	default:
		return 0, errcode.Unsupported("i2c_select", "adapter funcs "+f.String())
	}
}

// SelectPreferred is Select with an explicit request: "i2c" or "smbus"
// must be supported by the adapter, "" and "auto" defer to Select.
func SelectPreferred(f Func, want string) (rsmu.TransportKind, error) {
	switch want {
	case "", "auto":
		return Select(f)
	case rsmu.KindMessagePair.String():
		if f&FuncI2C != 0 {
			return rsmu.KindMessagePair, nil
		}
	case rsmu.KindBlockTransfer.String():
		if f&FuncSMBusI2CBlock == FuncSMBusI2CBlock {
			return rsmu.KindBlockTransfer, nil
		}
	default:
		return 0, errcode.Invalid("i2c_select", "unknown transport "+want)
	}
	return 0, errcode.Unsupported("i2c_select", want+" not supported by adapter funcs "+f.String())
}
