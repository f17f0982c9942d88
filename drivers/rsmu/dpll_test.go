package rsmu

import (
	"testing"

	"rsmu-go/errcode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFC3LockStateDecode(t *testing.T) {
	cases := []struct {
		code byte
		want LockState
	}{
		{0, Unqualified},
		{1, Locked},
		{2, HoldoverInSpec},
		{3, Unqualified},
		{4, AcquiringLock},
		{5, AcquiringLock},
		{6, StateInvalid},
		{7, StateInvalid},
	}
	for _, tc := range cases {
		b := newFakeBus(FemtoClock3)
		d, _ := newTestDevice(b, FemtoClock3, RevW)
		b.set(fc3DPLLStatus+fc3DPLLStride, tc.code<<fc3DPLLStateShift)

		got, err := d.GetLockState(1)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "code %d", tc.code)
	}
}

func TestFC3ALockStateIgnoresIndex(t *testing.T) {
	b := newFakeBus(FemtoClock3)
	d, _ := newTestDevice(b, FemtoClock3, RevA)
	b.set(fc3DPLLStatusA, 1<<fc3DPLLStateShift)

	for dpll := 0; dpll <= 2; dpll++ {
		st, err := d.GetLockState(dpll)
		require.NoError(t, err)
		assert.Equal(t, Locked, st)
	}
	for _, o := range b.ops {
		if !o.page {
			assert.Equal(t, uint32(fc3DPLLStatusA), o.addr)
		}
	}
}

func TestLockStateBounds(t *testing.T) {
	b := newFakeBus(FemtoClock3)
	d, _ := newTestDevice(b, FemtoClock3, RevW)

	_, err := d.GetLockState(3)
	assert.ErrorIs(t, err, errcode.InvalidArgument)
	_, err = d.GetLockState(-1)
	assert.ErrorIs(t, err, errcode.InvalidArgument)
	assert.Empty(t, b.ops)

	sl, _ := newTestDevice(newFakeBus(SnowLotus), SnowLotus, RevDefault)
	_, err = sl.GetLockState(0)
	assert.ErrorIs(t, err, errcode.UnsupportedDevice)
}

func TestClockMatrixAndSabreLockState(t *testing.T) {
	cm := newFakeBus(ClockMatrix)
	dcm, _ := newTestDevice(cm, ClockMatrix, RevDefault)
	cm.set(cmStatusBase+cmDPLLStateOff+5, 0x03)
	st, err := dcm.GetLockState(5)
	require.NoError(t, err)
	assert.Equal(t, Locked, st)

	sb := newFakeBus(Sabre)
	dsb, _ := newTestDevice(sb, Sabre, RevDefault)
	sb.set(sabreDPLLOperSts+1, 0x02)
	st, err = dsb.GetLockState(1)
	require.NoError(t, err)
	assert.Equal(t, HoldoverInSpec, st)

	_, err = dsb.GetLockState(2)
	assert.ErrorIs(t, err, errcode.InvalidArgument)
}

func TestActiveReference(t *testing.T) {
	cases := []struct {
		name  string
		state byte
		ref   byte
		want  int
	}{
		{"locked", 1, 2, 2},
		{"acquire", 4, 3, 3},
		{"hitless", 5, 1, 1},
		{"freerun", 0, 2, NoReference},
		{"holdover", 2, 2, NoReference},
		{"invalid", 7, 2, NoReference},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := newFakeBus(FemtoClock3)
			d, _ := newTestDevice(b, FemtoClock3, RevW)
			b.set(fc3DPLLStatus, tc.state<<fc3DPLLStateShift|tc.ref<<fc3DPLLRefShift)

			got, err := d.GetActiveReference(0)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestActiveReferenceReadsStatusOnce(t *testing.T) {
	b := newFakeBus(FemtoClock3)
	d, _ := newTestDevice(b, FemtoClock3, RevW)
	b.set(fc3DPLLStatus, 1<<fc3DPLLStateShift|2<<fc3DPLLRefShift)
	b.reset()

	got, err := d.GetActiveReference(0)
	require.NoError(t, err)
	assert.Equal(t, 2, got)
	reads := 0
	for _, o := range b.ops {
		if !o.write && o.addr == fc3DPLLStatus {
			reads++
		}
	}
	assert.Equal(t, 1, reads)
}

func TestReferenceBitsShareStatusRegister(t *testing.T) {
	for _, rev := range []Revision{RevDefault, RevW, RevA} {
		ref, err := lookup("t", FemtoClock3, rev, regDPLLRef)
		require.NoError(t, err)
		st, err := lookup("t", FemtoClock3, rev, regDPLLState)
		require.NoError(t, err)
		assert.Equal(t, st.at(1), ref.at(1), rev.String())
	}
}

func TestActiveReferenceUnsupportedOnClockMatrix(t *testing.T) {
	b := newFakeBus(ClockMatrix)
	d, _ := newTestDevice(b, ClockMatrix, RevDefault)
	_, err := d.GetActiveReference(0)
	assert.ErrorIs(t, err, errcode.UnsupportedDevice)
	assert.Empty(t, b.ops)
}

func TestFrequencyOffset(t *testing.T) {
	b := newFakeBus(ClockMatrix)
	d, _ := newTestDevice(b, ClockMatrix, RevDefault)
	base := uint32(cmStatusBase + cmFilterStatOff + 2*cmFilterStride)

	// -1000 as 48-bit two's complement.
	b.set(base, 0x18, 0xfc, 0xff, 0xff, 0xff, 0xff)
	ffo, err := d.GetFrequencyOffset(2)
	require.NoError(t, err)
	assert.Equal(t, int64(-111), ffo)

	b.set(base, 0x10, 0x27, 0, 0, 0, 0)
	ffo, err = d.GetFrequencyOffset(2)
	require.NoError(t, err)
	assert.Equal(t, int64(1110), ffo)

	fc3, _ := newTestDevice(newFakeBus(FemtoClock3), FemtoClock3, RevW)
	_, err = fc3.GetFrequencyOffset(0)
	assert.ErrorIs(t, err, errcode.UnsupportedDevice)
}

func TestRefMonStatus(t *testing.T) {
	b := newFakeBus(FemtoClock3)
	d, _ := newTestDevice(b, FemtoClock3, RevW)
	b.set(0x82e, 0x01)
	b.set(0x894, 0, 0, 0, 0x80)

	st, err := d.GetReferenceMonitorStatus(1)
	require.NoError(t, err)
	assert.True(t, st.LossOfSignal)
	assert.True(t, st.FreqFail)
	assert.False(t, st.Qualified())

	st, err = d.GetReferenceMonitorStatus(0)
	require.NoError(t, err)
	assert.True(t, st.Qualified())

	_, err = d.GetReferenceMonitorStatus(4)
	assert.ErrorIs(t, err, errcode.InvalidArgument)
}

func TestRefMonStatusFC3A(t *testing.T) {
	b := newFakeBus(FemtoClock3)
	d, _ := newTestDevice(b, FemtoClock3, RevA)
	b.set(0x1be, 0x01)
	b.set(0x234, 0, 0, 0, 0x80)

	st, err := d.GetReferenceMonitorStatus(3)
	require.NoError(t, err)
	assert.Equal(t, RefMonStatus{LossOfSignal: true, FreqFail: true}, st)
}

func TestDeviceRevision(t *testing.T) {
	b := newFakeBus(FemtoClock3)
	b.set(fc3DeviceID, 0x34, 0x10)
	d, err := Open(b, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, RevW, d.Revision())

	b.set(fc3DeviceID, 0x34, 0x00)
	rev, err := d.GetDeviceRevision()
	require.NoError(t, err)
	assert.Equal(t, RevA, rev)

	b.failRead = map[uint32]error{fc3DeviceID: errNack}
	rev, err = d.GetDeviceRevision()
	assert.ErrorIs(t, err, errcode.BusError)
	assert.Equal(t, RevDefault, rev)
	assert.Equal(t, RevDefault, d.Revision())
}
