package rsmu

import (
	"fmt"

	"rsmu-go/errcode"
)

// RefMonStatus is the input monitor verdict for one reference.
type RefMonStatus struct {
	LossOfSignal bool
	FreqFail     bool
}

// Qualified reports whether the reference passed both monitors.
func (s RefMonStatus) Qualified() bool { return !s.LossOfSignal && !s.FreqFail }

// GetReferenceMonitorStatus reads the loss-of-signal and frequency monitor
// flags of one reference input.
func (d *Device) GetReferenceMonitorStatus(ref int) (RefMonStatus, error) {
	const op = "get_refmon"
	los, err := lookup(op, d.family, d.rev, regLOSStatus)
	if err != nil {
		return RefMonStatus{}, err
	}
	freq, err := lookup(op, d.family, d.rev, regFreqMonStatus)
	if err != nil {
		return RefMonStatus{}, err
	}
	if lim := familyLimits[d.family]; ref < 0 || ref > lim.maxRef {
		return RefMonStatus{}, errcode.Invalid(op, fmt.Sprintf("reference %d out of range 0..%d", ref, lim.maxRef))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	lv, err := d.read8(los.at(ref))
	if err != nil {
		return RefMonStatus{}, err
	}
	fv, err := d.readLE(freq.at(ref), freq.width)
	if err != nil {
		return RefMonStatus{}, err
	}
	return RefMonStatus{
		LossOfSignal: los.value(uint64(lv)) != 0,
		FreqFail:     freq.value(fv) != 0,
	}, nil
}
