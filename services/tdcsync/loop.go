// Package tdcsync steers a local clock from TDC phase samples.
//
// Each cycle takes one TDC measurement, removes counter wraparound, hands
// the offset to a Servo and applies the action its state calls for:
//
//	Unlocked      one-shot sampling, no clock action
//	Jump          one-shot, set frequency, step phase, pause one period
//	Locked        continuous sampling, set frequency
//	LockedStable  step phase when phase-write is on, else set frequency
//
// A failed clock action resets the servo to Unlocked and the loop goes on.
// A failed measurement ends the cycle and is returned to the caller.
package tdcsync

import (
	"context"
	"log/slog"
	"time"

	"rsmu-go/bus"
	"rsmu-go/drivers/rsmu"
	"rsmu-go/errcode"
	"rsmu-go/services/tdcsync/servo"
	"rsmu-go/types"
	"rsmu-go/x/timex"
)

// Measurer takes one TDC sample in nanoseconds.
type Measurer interface {
	MeasureTDC(mode rsmu.TDCMode) (int64, error)
}

// Servo turns offsets into frequency adjustments and lock states.
type Servo interface {
	Sample(offsetNs, localNs int64) (float64, servo.State)
	Reset()
}

// ClockControl is the clock being disciplined.
type ClockControl interface {
	SetFrequency(ppb float64) error
	StepPhase(ns int64) error
}

// StateTopic carries retained types.SyncState updates.
var StateTopic = bus.T("rsmu", "sync", "state")

type Config struct {
	Period     time.Duration // TDC measurement period
	PhaseWrite bool          // LockedStable steps phase instead of slewing

	Logger *slog.Logger
	Conn   *bus.Connection // optional
	Trace  *TraceWriter    // optional

	Now func() int64 // monotonic ns; nil uses time since New
}

// Loop is one synchronization loop. Not safe for concurrent Cycle calls.
type Loop struct {
	cfg   Config
	meas  Measurer
	servo Servo
	clock ClockControl
	log   *slog.Logger

	mode   rsmu.TDCMode
	state  servo.State
	resets uint64
	mono   timex.Mono

	pause func(ctx context.Context, d time.Duration)
}

func New(m Measurer, s Servo, c ClockControl, cfg Config) (*Loop, error) {
	if cfg.Period <= 0 {
		return nil, errcode.Invalid("tdcsync", "period must be positive")
	}
	l := &Loop{
		cfg:   cfg,
		meas:  m,
		servo: s,
		clock: c,
		log:   cfg.Logger,
		mode:  rsmu.TDCOneShot,
		state: servo.Unlocked,
		mono:  timex.NewMono(),
		pause: sleepCtx,
	}
	if l.log == nil {
		l.log = slog.Default()
	}
	l.log = l.log.With(slog.String("svc", "tdcsync"))
	return l, nil
}

func (l *Loop) State() servo.State { return l.state }
func (l *Loop) Mode() rsmu.TDCMode { return l.mode }
func (l *Loop) Resets() uint64     { return l.resets }

// CorrectWraparound folds a raw TDC reading into (-period/2, period/2].
// The result is not yet negated.
func CorrectWraparound(rawNs, periodNs int64) int64 {
	switch {
	case rawNs >= periodNs:
		return rawNs - periodNs
	case rawNs > periodNs/2:
		return -(periodNs - rawNs)
	default:
		return rawNs
	}
}

func (l *Loop) now() int64 {
	if l.cfg.Now != nil {
		return l.cfg.Now()
	}
	return l.mono.Nanos()
}

// Cycle runs one measurement and the resulting clock action.
func (l *Loop) Cycle(ctx context.Context) error {
	raw, err := l.meas.MeasureTDC(l.mode)
	if err != nil {
		l.log.Warn("tdc measurement failed", slog.String("mode", l.mode.String()), slog.Any("err", err))
		l.trace(TraceRecord{Error: err.Error()})
		l.publish(0, 0, err)
		return err
	}

	offset := -CorrectWraparound(raw, l.cfg.Period.Nanoseconds())
	adj, st := l.servo.Sample(offset, l.now())

	rec := TraceRecord{RawNs: raw, OffsetNs: offset, AdjPPB: adj}
	var actErr error
	switch st {
	case servo.Unlocked:
		l.mode = rsmu.TDCOneShot
		rec.Action = "none"

	case servo.Jump:
		l.mode = rsmu.TDCOneShot
		rec.Action = "freq+step"
		if actErr = l.clock.SetFrequency(-adj); actErr == nil {
			actErr = l.clock.StepPhase(-offset)
		}

	case servo.Locked:
		l.mode = rsmu.TDCContinuous
		rec.Action = "freq"
		actErr = l.clock.SetFrequency(-adj)

	case servo.LockedStable:
		if l.cfg.PhaseWrite {
			rec.Action = "step"
			rec.AdjPPB = 0
			actErr = l.clock.StepPhase(-offset)
		} else {
			rec.Action = "freq"
			actErr = l.clock.SetFrequency(-adj)
		}
	}

	if actErr != nil {
		l.log.Warn("clock adjustment failed, unlocking",
			slog.String("state", st.String()), slog.Int64("offset_ns", offset), slog.Any("err", actErr))
		l.servo.Reset()
		l.resets++
		l.mode = rsmu.TDCOneShot
		st = servo.Unlocked
		rec.Error = actErr.Error()
	}
	l.setState(st, offset, rec.AdjPPB)
	rec.State = st.String()
	l.trace(rec)

	if actErr == nil && st == servo.Jump {
		l.pause(ctx, l.cfg.Period)
	}
	return nil
}

// Run cycles once per period until ctx ends or a measurement fails.
func (l *Loop) Run(ctx context.Context) error {
	t := time.NewTicker(l.cfg.Period)
	defer t.Stop()
	l.publish(0, 0, nil)
	for {
		if err := l.Cycle(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

func (l *Loop) setState(st servo.State, offset int64, adj float64) {
	if st == l.state {
		return
	}
	l.log.Info("servo state", slog.String("from", l.state.String()), slog.String("to", st.String()),
		slog.Int64("offset_ns", offset))
	l.state = st
	l.publish(offset, adj, nil)
}

func (l *Loop) publish(offset int64, adj float64, err error) {
	if l.cfg.Conn == nil {
		return
	}
	s := types.SyncState{
		State:    l.state.String(),
		Mode:     l.mode.String(),
		OffsetNs: offset,
		FreqPPB:  -adj,
		Resets:   l.resets,
		TS:       timex.NowMs(),
	}
	if err != nil {
		s.Error = err.Error()
	}
	l.cfg.Conn.Publish(l.cfg.Conn.NewMessage(StateTopic, s, true))
}

func (l *Loop) trace(rec TraceRecord) {
	if l.cfg.Trace == nil {
		return
	}
	rec.Time = time.Now()
	if rec.State == "" {
		rec.State = l.state.String()
	}
	rec.Mode = l.mode.String()
	if err := l.cfg.Trace.Write(rec); err != nil {
		l.log.Debug("trace write failed", slog.Any("err", err))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
