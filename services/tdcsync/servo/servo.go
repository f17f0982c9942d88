// Package servo turns phase-offset samples into frequency corrections.
package servo

import "math"

// State is the servo's view of the clock.
type State uint8

const (
	Unlocked State = iota
	Jump
	Locked
	LockedStable
)

func (s State) String() string {
	switch s {
	case Jump:
		return "jump"
	case Locked:
		return "locked"
	case LockedStable:
		return "locked_stable"
	default:
		return "unlocked"
	}
}

// Config tunes the PI servo. Thresholds are nanoseconds; zero disables them.
type Config struct {
	Kp float64
	Ki float64

	StepThreshold      float64 // step whenever |offset| exceeds this
	FirstStepThreshold float64 // step on the first lock only
	MaxPPB             float64

	StableThreshold float64 // |offset| bound for LockedStable
	StableSamples   int     // consecutive samples within StableThreshold
}

// DefaultConfig mirrors the usual hardware-timestamping PI defaults.
func DefaultConfig() Config {
	return Config{
		Kp:                 0.7,
		Ki:                 0.3,
		FirstStepThreshold: 20000,
		MaxPPB:             500000,
		StableThreshold:    100,
		StableSamples:      10,
	}
}

// PI is a proportional-integral servo. The first two samples estimate the
// drift; from the third on the PI terms track the offset.
type PI struct {
	cfg Config

	count      int
	offset     [2]float64
	local      [2]int64
	drift      float64
	firstLock  bool
	stableRuns int
}

// NewPI returns a servo starting Unlocked with the given initial
// frequency (ppb), usually the clock's current frequency.
func NewPI(cfg Config, freqPPB float64) *PI {
	if cfg.MaxPPB <= 0 {
		cfg.MaxPPB = DefaultConfig().MaxPPB
	}
	return &PI{cfg: cfg, drift: freqPPB, firstLock: true}
}

// Reset drops sample history but keeps the learnt drift.
func (s *PI) Reset() {
	s.count = 0
	s.stableRuns = 0
}

func (s *PI) clamp(v float64) float64 {
	return math.Max(-s.cfg.MaxPPB, math.Min(s.cfg.MaxPPB, v))
}

// Sample feeds one offset (ns) taken at localNs on a monotonic clock and
// returns the frequency adjustment (ppb) with the new state.
func (s *PI) Sample(offsetNs int64, localNs int64) (float64, State) {
	off := float64(offsetNs)
	var ppb float64
	st := Unlocked

	switch s.count {
	case 0:
		s.offset[0], s.local[0] = off, localNs
		s.count = 1
		return s.drift, Unlocked

	case 1:
		s.offset[1], s.local[1] = off, localNs
		if s.local[1] <= s.local[0] {
			s.count = 0
			return s.drift, Unlocked
		}
		s.drift = s.clamp(s.drift + (s.offset[1]-s.offset[0])*1e9/float64(s.local[1]-s.local[0]))
		if (s.firstLock && s.cfg.FirstStepThreshold > 0 && math.Abs(off) > s.cfg.FirstStepThreshold) ||
			(s.cfg.StepThreshold > 0 && math.Abs(off) > s.cfg.StepThreshold) {
			st = Jump
		} else {
			st = Locked
		}
		ppb = s.drift
		s.count = 2
		s.firstLock = false

	default:
		if s.cfg.StepThreshold > 0 && math.Abs(off) > s.cfg.StepThreshold {
			s.Reset()
			return s.drift, Unlocked
		}
		ki := s.cfg.Ki * off
		ppb = s.cfg.Kp*off + s.drift + ki
		if ppb < -s.cfg.MaxPPB || ppb > s.cfg.MaxPPB {
			ppb = s.clamp(ppb)
		} else {
			s.drift += ki
		}
		st = Locked
	}

	if st == Locked && s.cfg.StableSamples > 0 && math.Abs(off) <= s.cfg.StableThreshold {
		s.stableRuns++
		if s.stableRuns >= s.cfg.StableSamples {
			st = LockedStable
		}
	} else {
		s.stableRuns = 0
	}
	return ppb, st
}
