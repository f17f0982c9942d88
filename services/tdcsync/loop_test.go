package tdcsync

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"rsmu-go/bus"
	"rsmu-go/drivers/rsmu"
	"rsmu-go/errcode"
	"rsmu-go/services/tdcsync/servo"
	"rsmu-go/types"
)

const period = 100 * time.Millisecond

type fakeMeasurer struct {
	raws  []int64
	errs  []error
	modes []rsmu.TDCMode
}

func (m *fakeMeasurer) MeasureTDC(mode rsmu.TDCMode) (int64, error) {
	i := len(m.modes)
	m.modes = append(m.modes, mode)
	if i < len(m.errs) && m.errs[i] != nil {
		return 0, m.errs[i]
	}
	if i >= len(m.raws) {
		return 0, &errcode.E{C: errcode.InvalidMeasurement, Op: "tdc_measure"}
	}
	return m.raws[i], nil
}

type step struct {
	adj   float64
	state servo.State
}

type scriptedServo struct {
	steps   []step
	offsets []int64
	resets  int
}

func (s *scriptedServo) Sample(offsetNs, _ int64) (float64, servo.State) {
	i := len(s.offsets)
	s.offsets = append(s.offsets, offsetNs)
	if i >= len(s.steps) {
		return 0, servo.Unlocked
	}
	return s.steps[i].adj, s.steps[i].state
}

func (s *scriptedServo) Reset() { s.resets++ }

type mockClock struct{ mock.Mock }

func (m *mockClock) SetFrequency(ppb float64) error { return m.Called(ppb).Error(0) }
func (m *mockClock) StepPhase(ns int64) error       { return m.Called(ns).Error(0) }

func newLoop(t *testing.T, m Measurer, s Servo, c ClockControl, cfg Config) (*Loop, *[]time.Duration) {
	t.Helper()
	if cfg.Period == 0 {
		cfg.Period = period
	}
	l, err := New(m, s, c, cfg)
	require.NoError(t, err)
	var pauses []time.Duration
	l.pause = func(_ context.Context, d time.Duration) { pauses = append(pauses, d) }
	return l, &pauses
}

func TestCorrectWraparound(t *testing.T) {
	p := int64(1e8)
	cases := []struct {
		raw, want int64
	}{
		{1.5e8, 5e7},
		{9e7, -1e7},
		{1000, 1000},
		{0, 0},
		{5e7, 5e7},
		{5e7 + 1, -(5e7 - 1)},
		{1e8, 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CorrectWraparound(tc.raw, p), "raw=%d", tc.raw)
	}
}

func TestCycleActionsPerState(t *testing.T) {
	m := &fakeMeasurer{raws: []int64{1.5e8, 9e7, 1000}}
	s := &scriptedServo{steps: []step{{10, servo.Jump}, {20, servo.Locked}, {30, servo.LockedStable}}}
	c := &mockClock{}
	mock.InOrder(
		c.On("SetFrequency", -10.0).Return(nil).Once(),
		c.On("StepPhase", int64(5e7)).Return(nil).Once(),
		c.On("SetFrequency", -20.0).Return(nil).Once(),
		c.On("StepPhase", int64(1000)).Return(nil).Once(),
	)

	l, pauses := newLoop(t, m, s, c, Config{PhaseWrite: true})
	ctx := context.Background()

	require.NoError(t, l.Cycle(ctx))
	assert.Equal(t, servo.Jump, l.State())
	assert.Equal(t, []time.Duration{period}, *pauses)

	require.NoError(t, l.Cycle(ctx))
	assert.Equal(t, servo.Locked, l.State())
	assert.Equal(t, rsmu.TDCContinuous, l.Mode())

	require.NoError(t, l.Cycle(ctx))
	assert.Equal(t, servo.LockedStable, l.State())

	c.AssertExpectations(t)
	assert.Len(t, *pauses, 1, "only the jump pauses")
	assert.Equal(t, []int64{-5e7, 1e7, -1000}, s.offsets)
	assert.Equal(t, []rsmu.TDCMode{rsmu.TDCOneShot, rsmu.TDCOneShot, rsmu.TDCContinuous}, m.modes)
}

func TestLockedStableWithoutPhaseWriteSlews(t *testing.T) {
	m := &fakeMeasurer{raws: []int64{200}}
	s := &scriptedServo{steps: []step{{4, servo.LockedStable}}}
	c := &mockClock{}
	c.On("SetFrequency", -4.0).Return(nil).Once()

	l, _ := newLoop(t, m, s, c, Config{})
	require.NoError(t, l.Cycle(context.Background()))
	c.AssertExpectations(t)
	c.AssertNotCalled(t, "StepPhase", mock.Anything)
}

func TestUnlockedTakesNoAction(t *testing.T) {
	m := &fakeMeasurer{raws: []int64{200}}
	s := &scriptedServo{steps: []step{{4, servo.Unlocked}}}
	c := &mockClock{}

	l, _ := newLoop(t, m, s, c, Config{})
	require.NoError(t, l.Cycle(context.Background()))
	c.AssertNotCalled(t, "SetFrequency", mock.Anything)
	c.AssertNotCalled(t, "StepPhase", mock.Anything)
	assert.Equal(t, rsmu.TDCOneShot, l.Mode())
}

func TestClockFailureUnlocksAndContinues(t *testing.T) {
	m := &fakeMeasurer{raws: []int64{100, 100, 100}}
	s := &scriptedServo{steps: []step{{1, servo.Jump}, {2, servo.Locked}, {3, servo.Unlocked}}}
	c := &mockClock{}
	c.On("SetFrequency", -1.0).Return(nil).Once()
	c.On("StepPhase", int64(100)).Return(errors.New("eperm")).Once()
	c.On("SetFrequency", -2.0).Return(nil).Once()

	l, pauses := newLoop(t, m, s, c, Config{})
	ctx := context.Background()

	require.NoError(t, l.Cycle(ctx))
	assert.Equal(t, servo.Unlocked, l.State())
	assert.Equal(t, 1, s.resets)
	assert.EqualValues(t, 1, l.Resets())
	assert.Empty(t, *pauses, "failed jump does not pause")

	require.NoError(t, l.Cycle(ctx))
	assert.Equal(t, servo.Locked, l.State())
	c.AssertExpectations(t)
}

func TestMeasurementFailureEndsCycle(t *testing.T) {
	m := &fakeMeasurer{errs: []error{&errcode.E{C: errcode.InvalidMeasurement, Op: "tdc_measure"}}}
	s := &scriptedServo{}
	c := &mockClock{}

	l, _ := newLoop(t, m, s, c, Config{})
	err := l.Cycle(context.Background())
	assert.Equal(t, errcode.InvalidMeasurement, errcode.Of(err))
	assert.Empty(t, s.offsets)
	c.AssertNotCalled(t, "SetFrequency", mock.Anything)
}

func TestRunReturnsMeasurementError(t *testing.T) {
	busErr := errcode.Bus("tdc_measure", errors.New("nack"))
	m := &fakeMeasurer{raws: []int64{10, 10}, errs: []error{nil, nil, busErr}}
	s := &scriptedServo{}
	c := &mockClock{}

	l, _ := newLoop(t, m, s, c, Config{Period: time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := l.Run(ctx)
	assert.ErrorIs(t, err, busErr)
	assert.Len(t, m.modes, 3)
}

func TestRunStopsOnCancel(t *testing.T) {
	m := &fakeMeasurer{raws: make([]int64, 1000)}
	l, _ := newLoop(t, m, &scriptedServo{}, &mockClock{}, Config{Period: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewRejectsBadPeriod(t *testing.T) {
	_, err := New(&fakeMeasurer{}, &scriptedServo{}, &mockClock{}, Config{Period: -1})
	assert.Equal(t, errcode.InvalidArgument, errcode.Of(err))
}

func TestStateChangesArePublished(t *testing.T) {
	b := bus.NewBus(8)
	conn := b.NewConnection("tdcsync")
	m := &fakeMeasurer{raws: []int64{500, 500}}
	s := &scriptedServo{steps: []step{{7, servo.Locked}, {8, servo.Locked}}}
	c := &mockClock{}
	c.On("SetFrequency", mock.Anything).Return(nil)

	l, _ := newLoop(t, m, s, c, Config{Conn: conn})
	require.NoError(t, l.Cycle(context.Background()))
	require.NoError(t, l.Cycle(context.Background()))

	sub := b.NewConnection("ui").Subscribe(StateTopic)
	select {
	case msg := <-sub.Channel():
		st, ok := msg.Payload.(types.SyncState)
		require.True(t, ok)
		assert.True(t, msg.Retained)
		assert.Equal(t, "locked", st.State)
		assert.Equal(t, "continuous", st.Mode)
		assert.EqualValues(t, -500, st.OffsetNs)
		assert.Equal(t, -7.0, st.FreqPPB)
	case <-time.After(time.Second):
		t.Fatal("no retained sync state")
	}
	select {
	case msg := <-sub.Channel():
		t.Fatalf("unexpected extra message %+v", msg)
	default:
	}
}

func TestTraceRecordsEveryCycle(t *testing.T) {
	var buf bytes.Buffer
	tw := NewTraceWriter(&buf)
	m := &fakeMeasurer{raws: []int64{1.5e8, 9e7}}
	s := &scriptedServo{steps: []step{{10, servo.Jump}, {20, servo.Locked}}}
	c := &mockClock{}
	c.On("SetFrequency", mock.Anything).Return(nil)
	c.On("StepPhase", mock.Anything).Return(nil)

	l, _ := newLoop(t, m, s, c, Config{Trace: tw})
	require.NoError(t, l.Cycle(context.Background()))
	require.NoError(t, l.Cycle(context.Background()))
	require.Error(t, l.Cycle(context.Background()))

	recs, err := ReadTrace(&buf)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	for i, r := range recs {
		assert.Equal(t, tw.Session(), r.Session)
		assert.EqualValues(t, i+1, r.Seq)
	}
	assert.Equal(t, "jump", recs[0].State)
	assert.Equal(t, "freq+step", recs[0].Action)
	assert.EqualValues(t, 1.5e8, recs[0].RawNs)
	assert.EqualValues(t, -5e7, recs[0].OffsetNs)
	assert.Equal(t, "locked", recs[1].State)
	assert.Equal(t, "continuous", recs[1].Mode)
	assert.NotEmpty(t, recs[2].Error)
}
