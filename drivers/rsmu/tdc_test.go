package rsmu

import (
	"testing"

	"rsmu-go/errcode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setTDC(b *fakeBus, addr uint32, v uint64) {
	for i := 0; i < 8; i++ {
		b.mem[addr+uint32(i)] = byte(v >> (8 * i))
	}
}

func TestMeasureTDCOneShotTriggersEachTime(t *testing.T) {
	b := newFakeBus(FemtoClock3)
	d, _ := newTestDevice(b, FemtoClock3, RevW)
	setTDC(b, fc3TDCMeasStatus, 1234)

	for i := 0; i < 2; i++ {
		ns, err := d.MeasureTDC(TDCOneShot)
		require.NoError(t, err)
		assert.Equal(t, int64(1234), ns)
	}
	assert.Equal(t, []wr{{fc3TDCMeasCtrl, fc3TDCMeasStart}, {fc3TDCMeasCtrl, fc3TDCMeasStart}}, writesOf(b))
}

func TestMeasureTDCContinuousArmsOnce(t *testing.T) {
	b := newFakeBus(FemtoClock3)
	d, _ := newTestDevice(b, FemtoClock3, RevA)
	setTDC(b, fc3TDCMeasStatusA, 99)

	for i := 0; i < 3; i++ {
		_, err := d.MeasureTDC(TDCContinuous)
		require.NoError(t, err)
	}
	assert.Equal(t, []wr{{fc3TDCMeasCtrlA, fc3TDCMeasStart | fc3TDCMeasContin}}, writesOf(b))
}

func TestMeasureTDCSentinel(t *testing.T) {
	b := newFakeBus(FemtoClock3)
	d, _ := newTestDevice(b, FemtoClock3, RevW)
	setTDC(b, fc3TDCMeasStatus, TDCInvalid)

	_, err := d.MeasureTDC(TDCOneShot)
	assert.ErrorIs(t, err, errcode.InvalidMeasurement)

	setTDC(b, fc3TDCMeasStatus, ^uint64(0))
	_, err = d.MeasureTDC(TDCOneShot)
	assert.ErrorIs(t, err, errcode.InvalidMeasurement)
}

func TestMeasureTDCUnsupported(t *testing.T) {
	d, _ := newTestDevice(newFakeBus(Sabre), Sabre, RevDefault)
	_, err := d.MeasureTDC(TDCOneShot)
	assert.ErrorIs(t, err, errcode.UnsupportedDevice)
}
