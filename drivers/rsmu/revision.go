package rsmu

import "rsmu-go/errcode"

// GetDeviceRevision reads the device ID and selects the register variant
// used by later operations. On a read failure the revision falls back to
// RevDefault and the error is returned.
func (d *Device) GetDeviceRevision() (Revision, error) {
	if d.family != FemtoClock3 {
		return RevDefault, errcode.Unsupported("get_revision", d.family.String())
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	id, err := d.readLE(fc3DeviceID, 2)
	if err != nil {
		d.rev = RevDefault
		return RevDefault, err
	}
	if id&fc3DeviceIDVarW != 0 {
		d.rev = RevW
	} else {
		d.rev = RevA
	}
	d.tdcArmed = false
	return d.rev, nil
}
