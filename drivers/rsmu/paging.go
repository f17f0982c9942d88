package rsmu

import (
	"fmt"

	"rsmu-go/errcode"
)

// Page select registers and family address limits.
const (
	pageRegCM    = 0xFC // ClockMatrix and FemtoClock3, 4-byte page value
	pageRegSabre = 0x7F // Sabre, 1-byte window index
	sabreWindow  = 128

	scsrBase = 0x20100000 // ClockMatrix paging starts here

	MaxRegisterCM    = 0x20120000
	MaxRegisterSabre = 0x400
	MaxRegisterSL    = 0x340
	MaxRegisterFC3   = 0xFFF
)

// pageScheme describes how a family turns a register address into a
// page select plus an in-page offset.
type pageScheme struct {
	maxReg    uint32
	pageReg   byte
	pageBytes int    // 0: no page register
	pageSize  uint32 // bytes per page; also the chunking boundary
	pagedFrom uint32 // addresses below this skip the page select
	wideAddr  bool   // 16-bit big-endian offsets, no page
}

var schemes = map[Family]pageScheme{
	ClockMatrix: {maxReg: MaxRegisterCM, pageReg: pageRegCM, pageBytes: 4, pageSize: 256, pagedFrom: scsrBase},
	FemtoClock3: {maxReg: MaxRegisterFC3, pageReg: pageRegCM, pageBytes: 4, pageSize: 256},
	Sabre:       {maxReg: MaxRegisterSabre, pageReg: pageRegSabre, pageBytes: 1, pageSize: sabreWindow},
	SnowLotus:   {maxReg: MaxRegisterSL, wideAddr: true},
}

// split returns the page value (valid when paged is true) and the encoded
// in-page offset for addr.
func (s *pageScheme) split(addr uint32, reg []byte) (page uint32, paged bool, n int) {
	switch {
	case s.wideAddr:
		reg[0] = byte(addr >> 8)
		reg[1] = byte(addr)
		return 0, false, 2
	case s.pageBytes == 1:
		reg[0] = byte(addr % sabreWindow)
		return addr / sabreWindow, true, 1
	default:
		reg[0] = byte(addr & 0xFF)
		if addr < s.pagedFrom {
			return 0, false, 1
		}
		return addr & 0xFFFFFF00, true, 1
	}
}

// hitsPageReg reports whether a data access of n bytes at the encoded
// offset reg covers the page select register. Such a write moves the
// device's page under the cache.
func (s *pageScheme) hitsPageReg(reg []byte, n int) bool {
	if s.pageBytes == 0 || s.wideAddr {
		return false
	}
	off, p := int(reg[0]), int(s.pageReg)
	return off <= p && p < off+n
}

// chunk returns how many of n bytes starting at addr stay inside one page
// and fit limit.
func (s *pageScheme) chunk(addr uint32, n, limit int) int {
	if s.pageSize != 0 {
		left := int(s.pageSize - addr%s.pageSize)
		if n > left {
			n = left
		}
	}
	if n > limit {
		n = limit
	}
	return n
}

// selectPage writes the page register unless the cached page already
// matches. The cache only advances after a successful write.
func (d *Device) selectPage(page uint32) error {
	if d.pageValid && d.page == page {
		return nil
	}
	var v [4]byte
	v[0] = byte(page)
	v[1] = byte(page >> 8)
	v[2] = byte(page >> 16)
	v[3] = byte(page >> 24)
	if err := d.tr.Write([]byte{d.scheme.pageReg}, v[:d.scheme.pageBytes]); err != nil {
		d.pageValid = false
		return errcode.Bus("page_select", err)
	}
	d.page, d.pageValid = page, true
	return nil
}

func (d *Device) checkRange(op string, addr uint32, n int) error {
	if n <= 0 {
		return errcode.Invalid(op, "empty transfer")
	}
	if uint64(addr)+uint64(n)-1 > uint64(d.scheme.maxReg) {
		return errcode.Invalid(op, fmt.Sprintf("0x%x+%d beyond 0x%x", addr, n, d.scheme.maxReg))
	}
	return nil
}

// readLocked fills buf from consecutive registers starting at addr.
// Caller holds d.mu.
func (d *Device) readLocked(addr uint32, buf []byte) error {
	if err := d.checkRange("read", addr, len(buf)); err != nil {
		return err
	}
	var reg [2]byte
	for len(buf) > 0 {
		n := d.scheme.chunk(addr, len(buf), d.tr.MaxRead())
		page, paged, rn := d.scheme.split(addr, reg[:])
		if paged {
			if err := d.selectPage(page); err != nil {
				return err
			}
		}
		if err := d.tr.Read(reg[:rn], buf[:n]); err != nil {
			return errcode.Bus(fmt.Sprintf("read 0x%x", addr), err)
		}
		addr += uint32(n)
		buf = buf[n:]
	}
	return nil
}

// writeLocked stores data into consecutive registers starting at addr.
// Payloads larger than the transport's atomic write are rejected before
// any bus access. Caller holds d.mu.
func (d *Device) writeLocked(addr uint32, data []byte) error {
	if err := d.checkRange("write", addr, len(data)); err != nil {
		return err
	}
	if len(data) > d.tr.MaxWrite() {
		return errcode.Invalid("write", fmt.Sprintf("%d bytes exceeds %s limit %d", len(data), d.tr.Kind(), d.tr.MaxWrite()))
	}
	var reg [2]byte
	for len(data) > 0 {
		n := d.scheme.chunk(addr, len(data), d.tr.MaxWrite())
		page, paged, rn := d.scheme.split(addr, reg[:])
		if paged {
			if err := d.selectPage(page); err != nil {
				return err
			}
		}
		err := d.tr.Write(reg[:rn], data[:n])
		if d.scheme.hitsPageReg(reg[:rn], n) {
			d.pageValid = false
		}
		if err != nil {
			return errcode.Bus(fmt.Sprintf("write 0x%x", addr), err)
		}
		addr += uint32(n)
		data = data[n:]
	}
	return nil
}

// ---- small-width helpers (little-endian register values) ----

func (d *Device) read8(addr uint32) (byte, error) {
	var b [1]byte
	err := d.readLocked(addr, b[:])
	return b[0], err
}

func (d *Device) write8(addr uint32, v byte) error {
	return d.writeLocked(addr, []byte{v})
}

func (d *Device) readLE(addr uint32, n int) (uint64, error) {
	var b [8]byte
	if err := d.readLocked(addr, b[:n]); err != nil {
		return 0, err
	}
	var v uint64
	for i := n - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v, nil
}

func (d *Device) writeLE(addr uint32, v uint64, n int) error {
	var b [8]byte
	for i := 0; i < n; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return d.writeLocked(addr, b[:n])
}
