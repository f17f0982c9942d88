//go:build linux

package i2cdev

import (
	"fmt"
	"unsafe"

	"rsmu-go/drivers/rsmu"
	"rsmu-go/errcode"

	"golang.org/x/sys/unix"
)

// /dev/i2c-X ioctl commands.
const (
	ioctlSlave      = 0x0703
	ioctlSlaveForce = 0x0706
	ioctlFuncs      = 0x0705
	ioctlSMBus      = 0x0720
)

// SMBus transfer direction and size used with ioctlSMBus.
const (
	smbusWrite        = 0
	smbusRead         = 1
	smbusI2CBlockData = 8
)

type smbusData [rsmu.SMBusBlockMax + 2]byte

// Mirrors struct i2c_smbus_ioctl_data.
type smbusIoctl struct {
	readWrite uint8
	command   uint8
	size      uint32
	data      *smbusData
}

// Adapter is an open /dev/i2c-N character device with a slave selected.
type Adapter struct {
	index int
	fd    int
	funcs Func
}

// OpenAdapter opens /dev/i2c-<index>, reads its functionality mask and
// binds addr. force takes the address even if a kernel driver claimed it.
func OpenAdapter(index int, addr uint16, force bool) (a *Adapter, err error) {
	path := fmt.Sprintf("/dev/i2c-%d", index)
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, errcode.Bus("open "+path, err)
	}
	a = &Adapter{index: index, fd: fd}
	defer func() {
		if err != nil {
			unix.Close(fd)
			a = nil
		}
	}()

	var f uintptr
	if _, _, e := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), ioctlFuncs, uintptr(unsafe.Pointer(&f))); e != 0 {
		return nil, errcode.Bus("ioctl funcs "+path, e)
	}
	a.funcs = Func(f)

	op := uint(ioctlSlave)
	if force {
		op = ioctlSlaveForce
	}
	if err := unix.IoctlSetInt(fd, op, int(addr)); err != nil {
		return nil, errcode.Bus(fmt.Sprintf("ioctl slave 0x%02x", addr), err)
	}
	return a, nil
}

func (a *Adapter) Funcs() Func  { return a.funcs }
func (a *Adapter) Close() error { return unix.Close(a.fd) }

func (a *Adapter) smbus(rw uint8, cmd byte, d *smbusData) error {
	arg := smbusIoctl{readWrite: rw, command: cmd, size: smbusI2CBlockData, data: d}
	if _, _, e := unix.Syscall(unix.SYS_IOCTL, uintptr(a.fd), ioctlSMBus, uintptr(unsafe.Pointer(&arg))); e != 0 {
		return e
	}
	return nil
}

// ReadI2CBlock reads len(buf) bytes starting at register cmd.
func (a *Adapter) ReadI2CBlock(cmd byte, buf []byte) error {
	var d smbusData
	d[0] = byte(len(buf))
	if err := a.smbus(smbusRead, cmd, &d); err != nil {
		return err
	}
	copy(buf, d[1:1+len(buf)])
	return nil
}

// WriteI2CBlock writes data starting at register cmd.
func (a *Adapter) WriteI2CBlock(cmd byte, data []byte) error {
	var d smbusData
	d[0] = byte(len(data))
	copy(d[1:], data)
	return a.smbus(smbusWrite, cmd, &d)
}
