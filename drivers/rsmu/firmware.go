package rsmu

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"rsmu-go/errcode"
)

// DefaultFirmwareName is the image loaded when none is configured.
const DefaultFirmwareName = "rsmufc3.bin"

const (
	firmwareRecordSize = 4
	recalSettle        = 10 * time.Millisecond
)

// FirmwareRecord is one register write in a firmware image:
// {addr hi, addr lo, value, reserved}.
type FirmwareRecord struct {
	Addr     uint16
	Value    byte
	Reserved byte
}

// ParseFirmware splits an image into records. It rejects images that are
// not a whole number of records or carry a non-zero reserved byte.
func ParseFirmware(image []byte) ([]FirmwareRecord, error) {
	if len(image)%firmwareRecordSize != 0 {
		return nil, &errcode.E{C: errcode.MalformedFirmware, Op: "parse_firmware",
			Msg: fmt.Sprintf("%d bytes is not a multiple of %d", len(image), firmwareRecordSize)}
	}
	recs := make([]FirmwareRecord, 0, len(image)/firmwareRecordSize)
	for i := 0; i < len(image); i += firmwareRecordSize {
		r := FirmwareRecord{
			Addr:     uint16(image[i])<<8 | uint16(image[i+1]),
			Value:    image[i+2],
			Reserved: image[i+3],
		}
		if r.Reserved != 0 {
			return nil, &errcode.E{C: errcode.MalformedFirmware, Op: "parse_firmware",
				Msg: fmt.Sprintf("record %d reserved byte 0x%02x", i/firmwareRecordSize, r.Reserved)}
		}
		recs = append(recs, r)
	}
	return recs, nil
}

// LoadStats summarises a firmware load.
type LoadStats struct {
	Written      int
	Skipped      int
	Recalibrated bool
}

// LoadFirmware writes every in-range record of image, one byte each, then
// runs the TDC/APLL recalibration. Malformed images are rejected before any
// write. When a write fails the load stops; recalibration still runs if
// RecalOnAbort is set.
func (d *Device) LoadFirmware(image []byte) (LoadStats, error) {
	var st LoadStats
	if d.family != FemtoClock3 {
		return st, errcode.Unsupported("load_firmware", d.family.String())
	}
	recs, err := ParseFirmware(image)
	if err != nil {
		d.log.Error("firmware image rejected", slog.Any("err", err))
		if d.recalOnAbort {
			st.Recalibrated = true
			err = errors.Join(err, d.Recalibrate())
		}
		return st, err
	}

	var loadErr error
	d.mu.Lock()
	for _, r := range recs {
		if uint32(r.Addr) > fc3FirmwareMaxAddr {
			st.Skipped++
			d.log.Debug("firmware record skipped", slog.String("addr", fmt.Sprintf("0x%04x", r.Addr)))
			continue
		}
		if loadErr = d.write8(uint32(r.Addr), r.Value); loadErr != nil {
			break
		}
		st.Written++
	}
	d.mu.Unlock()

	if loadErr != nil {
		d.log.Warn("firmware load aborted", slog.Int("written", st.Written), slog.Any("err", loadErr))
		if !d.recalOnAbort {
			return st, loadErr
		}
	}
	st.Recalibrated = true
	return st, errors.Join(loadErr, d.Recalibrate())
}

// Recalibrate enables the TDC, requests a DAC recalibration and toggles the
// APLL reinit bit, with settle delays around the toggle.
func (d *Device) Recalibrate() error {
	if d.family != FemtoClock3 {
		return errcode.Unsupported("recalibrate", d.family.String())
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	plan := recalPlans[d.rev]
	for _, w := range plan.writes {
		if err := d.write8(w.addr, w.val); err != nil {
			return err
		}
	}
	d.sleep(recalSettle)
	v, err := d.read8(plan.reinitAddr)
	if err != nil {
		return err
	}
	if err := d.write8(plan.reinitAddr, v&^plan.reinitMask); err != nil {
		return err
	}
	if err := d.write8(plan.reinitAddr, v|plan.reinitMask); err != nil {
		return err
	}
	d.sleep(recalSettle)
	d.tdcArmed = false
	return nil
}
