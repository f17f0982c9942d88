package rsmu

import (
	"errors"
	"sync"
	"time"
)

type busOp struct {
	write bool
	page  bool // page/window select write
	addr  uint32
	data  []byte
}

// fakeBus is an in-memory register map that decodes page selects the way
// the silicon does.
type fakeBus struct {
	mu   sync.Mutex
	fam  Family
	kind TransportKind
	maxW int
	maxR int

	page uint32
	mem  map[uint32]byte
	ops  []busOp

	failPage  int // fail the next n page selects
	failRead  map[uint32]error
	failWrite map[uint32]error
}

var errNack = errors.New("nack")

func newFakeBus(fam Family) *fakeBus {
	return &fakeBus{fam: fam, kind: KindMessagePair, maxW: MaxWriteCount, maxR: MaxReadCount, mem: map[uint32]byte{}}
}

func newFakeSMBus(fam Family) *fakeBus {
	b := newFakeBus(fam)
	b.kind, b.maxW, b.maxR = KindBlockTransfer, SMBusBlockMax, SMBusBlockMax
	return b
}

func (b *fakeBus) isPageReg(reg []byte) bool {
	switch b.fam {
	case ClockMatrix, FemtoClock3:
		return len(reg) == 1 && reg[0] == pageRegCM
	case Sabre:
		return len(reg) == 1 && reg[0] == pageRegSabre
	}
	return false
}

func (b *fakeBus) abs(reg []byte) uint32 {
	switch b.fam {
	case SnowLotus:
		return uint32(reg[0])<<8 | uint32(reg[1])
	case Sabre:
		return b.page*sabreWindow + uint32(reg[0])
	default:
		return b.page + uint32(reg[0])
	}
}

func (b *fakeBus) Read(reg, buf []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	a := b.abs(reg)
	b.ops = append(b.ops, busOp{addr: a, data: make([]byte, len(buf))})
	if err := b.failRead[a]; err != nil {
		return err
	}
	for i := range buf {
		buf[i] = b.mem[a+uint32(i)]
	}
	return nil
}

func (b *fakeBus) Write(reg, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := append([]byte(nil), data...)
	if b.isPageReg(reg) {
		b.ops = append(b.ops, busOp{write: true, page: true, data: cp})
		if b.failPage > 0 {
			b.failPage--
			return errNack
		}
		var p uint32
		for i := len(data) - 1; i >= 0; i-- {
			p = p<<8 | uint32(data[i])
		}
		b.page = p
		return nil
	}
	a := b.abs(reg)
	b.ops = append(b.ops, busOp{write: true, addr: a, data: cp})
	if err := b.failWrite[a]; err != nil {
		return err
	}
	for i, v := range data {
		b.mem[a+uint32(i)] = v
	}
	return nil
}

func (b *fakeBus) MaxRead() int        { return b.maxR }
func (b *fakeBus) MaxWrite() int       { return b.maxW }
func (b *fakeBus) Kind() TransportKind { return b.kind }

func (b *fakeBus) set(addr uint32, v ...byte) {
	for i, x := range v {
		b.mem[addr+uint32(i)] = x
	}
}

func (b *fakeBus) pageSelects() int {
	n := 0
	for _, o := range b.ops {
		if o.page {
			n++
		}
	}
	return n
}

// dataWrites returns non-page writes in order.
func (b *fakeBus) dataWrites() []busOp {
	var out []busOp
	for _, o := range b.ops {
		if o.write && !o.page {
			out = append(out, o)
		}
	}
	return out
}

func (b *fakeBus) reset() { b.ops = nil }

type sleepRecorder struct{ calls []time.Duration }

func (s *sleepRecorder) sleep(d time.Duration) { s.calls = append(s.calls, d) }

func newTestDevice(b *fakeBus, fam Family, rev Revision) (*Device, *sleepRecorder) {
	sr := &sleepRecorder{}
	d, err := New(b, Config{Family: fam, Revision: rev, RecalOnAbort: true, Sleep: sr.sleep})
	if err != nil {
		panic(err)
	}
	return d, sr
}
