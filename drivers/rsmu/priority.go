package rsmu

import (
	"fmt"

	"rsmu-go/errcode"
)

// PriorityEntry enables one reference at a priority; 0 is preferred.
type PriorityEntry struct {
	Ref      int
	Priority int
}

// EncodePriorityTable packs entries into the reference priority register
// value. References not listed stay disabled.
func EncodePriorityTable(entries []PriorityEntry) uint16 {
	v := uint16(prioDisableAll)
	for _, e := range entries {
		sh := uint(prioFieldShift + prioFieldBits*e.Ref)
		v &^= 1<<uint(e.Ref) | (1<<prioFieldBits-1)<<sh
		v |= uint16(e.Priority) << sh
	}
	return v
}

// DecodePriorityTable lists the enabled references in a priority register
// value, in reference order.
func DecodePriorityTable(v uint16) []PriorityEntry {
	var out []PriorityEntry
	for ref := 0; ref < prioFieldShift; ref++ {
		if v&(1<<uint(ref)) != 0 {
			continue
		}
		sh := uint(prioFieldShift + prioFieldBits*ref)
		out = append(out, PriorityEntry{Ref: ref, Priority: int(v>>sh) & (1<<prioFieldBits - 1)})
	}
	return out
}

// SetPriorityTable replaces a DPLL's reference priority table with a single
// register write. Every entry is validated before any bus access.
func (d *Device) SetPriorityTable(dpll int, entries []PriorityEntry) error {
	const op = "set_priority"
	fl, err := lookup(op, d.family, d.rev, regRefPriority)
	if err != nil {
		return err
	}
	if err := d.checkDPLL(op, dpll); err != nil {
		return err
	}
	lim := familyLimits[d.family]
	if len(entries) == 0 || len(entries) > lim.priorities {
		return errcode.Invalid(op, fmt.Sprintf("need 1..%d entries, got %d", lim.priorities, len(entries)))
	}
	var seen uint8
	for _, e := range entries {
		if e.Ref < 0 || e.Ref > lim.maxRef {
			return errcode.Invalid(op, fmt.Sprintf("reference %d out of range 0..%d", e.Ref, lim.maxRef))
		}
		if e.Priority < 0 || e.Priority >= lim.priorities {
			return errcode.Invalid(op, fmt.Sprintf("priority %d out of range 0..%d", e.Priority, lim.priorities-1))
		}
		if seen&(1<<uint(e.Ref)) != 0 {
			return errcode.Invalid(op, fmt.Sprintf("reference %d listed twice", e.Ref))
		}
		seen |= 1 << uint(e.Ref)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeLE(fl.at(dpll), uint64(EncodePriorityTable(entries)), fl.width)
}
