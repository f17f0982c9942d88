// Package clock adjusts a kernel clock, the system clock or a PTP hardware
// clock, through clock_adjtime. It is the clock-control side of the TDC
// synchronization loop.
package clock

import (
	"math"
	"strings"
	"time"
)

// DefaultMaxPPB bounds frequency writes; the kernel rejects larger values
// for CLOCK_REALTIME.
const DefaultMaxPPB = 500000

// SystemName selects CLOCK_REALTIME in Open.
const SystemName = "system"

// IsSystem reports whether name refers to the system clock.
func IsSystem(name string) bool {
	switch strings.ToLower(name) {
	case "", SystemName, "clock_realtime", "realtime":
		return true
	}
	return false
}

// scaledPPM converts parts per billion to the kernel's timex.freq unit
// (ppm with a 16-bit fraction).
func scaledPPM(ppb float64) int64 {
	return int64(math.Round(ppb * 65.536))
}

func ppbFromScaled(freq int64) float64 {
	return float64(freq) / 65.536
}

func clampPPB(ppb, max float64) float64 {
	if ppb > max {
		return max
	}
	if ppb < -max {
		return -max
	}
	return ppb
}

// splitOffset normalises a signed nanosecond step into seconds and a
// non-negative nanosecond remainder, as ADJ_SETOFFSET|ADJ_NANO expects.
func splitOffset(ns int64) (sec, nsec int64) {
	sec = ns / int64(time.Second)
	nsec = ns % int64(time.Second)
	if nsec < 0 {
		sec--
		nsec += int64(time.Second)
	}
	return sec, nsec
}
