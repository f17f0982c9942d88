// Package timex holds the time stamps shared by published status messages.
package timex

import "time"

// NowMs returns Unix milliseconds as int64.
func NowMs() int64 { return time.Now().UnixMilli() }

// Mono counts monotonic nanoseconds from its creation.
type Mono struct{ start time.Time }

func NewMono() Mono { return Mono{start: time.Now()} }

// Nanos returns the nanoseconds elapsed since NewMono. The zero Mono
// reports 0.
func (m Mono) Nanos() int64 {
	if m.start.IsZero() {
		return 0
	}
	return int64(time.Since(m.start))
}
