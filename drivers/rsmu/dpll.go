package rsmu

import (
	"fmt"

	"rsmu-go/errcode"
)

// LockState is the family-independent DPLL servo state.
type LockState uint8

const (
	Unqualified LockState = iota
	AcquiringLock
	Locked
	HoldoverInSpec
	StateInvalid
)

func (s LockState) String() string {
	switch s {
	case Unqualified:
		return "unqualified"
	case AcquiringLock:
		return "acquiring"
	case Locked:
		return "locked"
	case HoldoverInSpec:
		return "holdover"
	default:
		return "invalid"
	}
}

// NoReference is returned by GetActiveReference when no input is tracked.
const NoReference = -1

func (d *Device) checkDPLL(op string, dpll int) error {
	lim, ok := familyLimits[d.family]
	if !ok {
		return errcode.Unsupported(op, d.family.String())
	}
	if dpll < 0 || dpll > lim.maxDPLL {
		return errcode.Invalid(op, fmt.Sprintf("dpll %d out of range 0..%d", dpll, lim.maxDPLL))
	}
	return nil
}

// statusLocked reads the DPLL status byte once and decodes its state.
// Caller holds d.mu.
func (d *Device) statusLocked(op string, dpll int) (LockState, uint64, error) {
	fl, err := lookup(op, d.family, d.rev, regDPLLState)
	if err != nil {
		return StateInvalid, 0, err
	}
	v, err := d.read8(fl.at(dpll))
	if err != nil {
		return StateInvalid, 0, err
	}
	st, ok := stateTables[d.family][uint8(fl.value(uint64(v)))]
	if !ok {
		return StateInvalid, uint64(v), nil
	}
	return st, uint64(v), nil
}

// GetLockState reports the servo state of one DPLL.
//
// On FC3A parts the status register is shared, so every index reports
// DPLL 0.
func (d *Device) GetLockState(dpll int) (LockState, error) {
	const op = "get_state"
	if err := d.checkDPLL(op, dpll); err != nil {
		return StateInvalid, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	st, _, err := d.statusLocked(op, dpll)
	return st, err
}

// GetActiveReference returns the reference a DPLL tracks, or NoReference
// when it is not locked or acquiring.
func (d *Device) GetActiveReference(dpll int) (int, error) {
	const op = "get_ref"
	if err := d.checkDPLL(op, dpll); err != nil {
		return NoReference, err
	}
	fl, err := lookup(op, d.family, d.rev, regDPLLRef)
	if err != nil {
		return NoReference, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	st, v, err := d.statusLocked(op, dpll)
	if err != nil {
		return NoReference, err
	}
	if st != Locked && st != AcquiringLock {
		return NoReference, nil
	}
	return int(fl.value(v)), nil
}

// GetFrequencyOffset returns the DPLL filter frequency offset in parts per
// quadrillion. Only ClockMatrix exposes it.
func (d *Device) GetFrequencyOffset(dpll int) (int64, error) {
	const op = "get_ffo"
	fl, err := lookup(op, d.family, d.rev, regFFO)
	if err != nil {
		return 0, err
	}
	if err := d.checkDPLL(op, dpll); err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	raw, err := d.readLE(fl.at(dpll), fl.width)
	if err != nil {
		return 0, err
	}
	return FCWToPPQ(raw), nil
}

// FCWToPPQ converts a 48-bit two's-complement frequency control word
// (units of 1.11e-16) to parts per quadrillion.
func FCWToPPQ(raw uint64) int64 {
	fcw := int64(raw<<16) >> 16
	return fcw * 111 / 1000
}
