// Package monitor polls DPLL lock state and reference alarms and publishes
// them as retained bus messages:
//
//	rsmu/dpll/<n>  types.DPLLStatus
//	rsmu/ref/<n>   types.RefStatus
//
// A status is republished only when it changes.
package monitor

import (
	"context"
	"log/slog"
	"time"

	"rsmu-go/bus"
	"rsmu-go/drivers/rsmu"
	"rsmu-go/errcode"
	"rsmu-go/types"
	"rsmu-go/x/timex"
)

// Device is the subset of *rsmu.Device the monitor reads.
type Device interface {
	GetLockState(dpll int) (rsmu.LockState, error)
	GetActiveReference(dpll int) (int, error)
	GetFrequencyOffset(dpll int) (int64, error)
	GetReferenceMonitorStatus(ref int) (rsmu.RefMonStatus, error)
}

func DPLLTopic(n int) bus.Topic { return bus.T("rsmu", "dpll", n) }
func RefTopic(n int) bus.Topic  { return bus.T("rsmu", "ref", n) }

type Config struct {
	DPLLs        []int
	Refs         []int
	DPLLInterval time.Duration
	RefInterval  time.Duration
	Jitter       time.Duration
	FFO          bool // also read the frequency offset where the family has one
	Logger       *slog.Logger
}

func DefaultConfig() Config {
	return Config{
		DPLLs:        []int{0},
		DPLLInterval: time.Second,
		RefInterval:  time.Second,
		Jitter:       50 * time.Millisecond,
	}
}

type Service struct {
	dev  Device
	conn *bus.Connection
	cfg  Config
	log  *slog.Logger

	reqs   chan PollReq
	poller *Poller

	dpll map[int]types.DPLLStatus
	ref  map[int]types.RefStatus
	ffo  bool
}

func New(dev Device, conn *bus.Connection, cfg Config) (*Service, error) {
	if dev == nil || conn == nil {
		return nil, errcode.Invalid("monitor", "device and bus connection required")
	}
	if len(cfg.DPLLs) > 0 && cfg.DPLLInterval <= 0 {
		return nil, errcode.Invalid("monitor", "dpll interval must be positive")
	}
	if len(cfg.Refs) > 0 && cfg.RefInterval <= 0 {
		return nil, errcode.Invalid("monitor", "refmon interval must be positive")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	reqs := make(chan PollReq, len(cfg.DPLLs)+len(cfg.Refs)+1)
	return &Service{
		dev:    dev,
		conn:   conn,
		cfg:    cfg,
		log:    log.With(slog.String("svc", "monitor")),
		reqs:   reqs,
		poller: NewPoller(reqs),
		dpll:   make(map[int]types.DPLLStatus),
		ref:    make(map[int]types.RefStatus),
		ffo:    cfg.FFO,
	}, nil
}

// Run polls everything once, then on schedule until ctx ends.
func (s *Service) Run(ctx context.Context) {
	for _, n := range s.cfg.DPLLs {
		s.PollDPLL(n)
		s.poller.Upsert(KindDPLL, n, s.cfg.DPLLInterval, s.cfg.Jitter)
	}
	for _, n := range s.cfg.Refs {
		s.PollRef(n)
		s.poller.Upsert(KindRef, n, s.cfg.RefInterval, s.cfg.Jitter)
	}

	pctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.poller.Run(pctx)

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.reqs:
			switch req.Kind {
			case KindDPLL:
				s.PollDPLL(req.Index)
			case KindRef:
				s.PollRef(req.Index)
			}
		}
	}
}

func linkOf(st rsmu.LockState) types.Link {
	switch st {
	case rsmu.Locked:
		return types.LinkUp
	case rsmu.AcquiringLock, rsmu.HoldoverInSpec:
		return types.LinkDegraded
	default:
		return types.LinkDown
	}
}

// PollDPLL reads one DPLL and publishes its status if it changed.
func (s *Service) PollDPLL(n int) types.DPLLStatus {
	st := types.DPLLStatus{DPLL: n, Reference: rsmu.NoReference, Link: types.LinkDown}

	ls, err := s.dev.GetLockState(n)
	if err == nil {
		st.State = ls.String()
		st.Link = linkOf(ls)
		st.Reference, err = s.dev.GetActiveReference(n)
	}
	if err == nil && s.ffo {
		ffo, ferr := s.dev.GetFrequencyOffset(n)
		switch {
		case ferr == nil:
			st.FFOppq = &ffo
		case errcode.Of(ferr) == errcode.UnsupportedDevice:
			s.log.Info("frequency offset not available, disabling", slog.Int("dpll", n))
			s.ffo = false
		default:
			err = ferr
		}
	}
	if err != nil {
		st.State = rsmu.StateInvalid.String()
		st.Reference = rsmu.NoReference
		st.Link = types.LinkDown
		st.FFOppq = nil
		st.Error = string(errcode.Of(err))
	}

	prev, seen := s.dpll[n]
	st.TS = prev.TS
	if seen && sameDPLL(prev, st) {
		return prev
	}
	if err != nil {
		s.log.Warn("dpll poll failed", slog.Int("dpll", n), slog.Any("err", err))
	} else {
		s.log.Debug("dpll status", slog.Int("dpll", n), slog.String("state", st.State), slog.Int("ref", st.Reference))
	}
	st.TS = timex.NowMs()
	s.dpll[n] = st
	s.conn.Publish(s.conn.NewMessage(DPLLTopic(n), st, true))
	return st
}

// PollRef reads one reference monitor and publishes its status if it changed.
func (s *Service) PollRef(n int) types.RefStatus {
	st := types.RefStatus{Ref: n}
	rm, err := s.dev.GetReferenceMonitorStatus(n)
	if err != nil {
		st.Link = types.LinkDown
		st.Error = string(errcode.Of(err))
	} else {
		st.LossOfSignal, st.FreqFail = rm.LossOfSignal, rm.FreqFail
		st.Link = types.LinkUp
		if !rm.Qualified() {
			st.Link = types.LinkDown
		}
	}

	prev, seen := s.ref[n]
	st.TS = prev.TS
	if seen && prev == st {
		return prev
	}
	if err != nil {
		s.log.Warn("refmon poll failed", slog.Int("ref", n), slog.Any("err", err))
	} else if !rm.Qualified() {
		s.log.Info("reference alarm", slog.Int("ref", n), slog.Bool("los", rm.LossOfSignal), slog.Bool("freq_fail", rm.FreqFail))
	}
	st.TS = timex.NowMs()
	s.ref[n] = st
	s.conn.Publish(s.conn.NewMessage(RefTopic(n), st, true))
	return st
}

func sameDPLL(a, b types.DPLLStatus) bool {
	if (a.FFOppq == nil) != (b.FFOppq == nil) {
		return false
	}
	if a.FFOppq != nil && *a.FFOppq != *b.FFOppq {
		return false
	}
	a.FFOppq, b.FFOppq = nil, nil
	return a == b
}
