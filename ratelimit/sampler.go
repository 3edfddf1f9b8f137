// Package ratelimit provides a token-bucket sampler backed by
// golang.org/x/time/rate, used to keep high-volume diagnostic logs (such as
// per-entry eviction notices) from flooding the log sink.
package ratelimit

import (
	"sync/atomic"

	"golang.org/x/time/rate"
)

// Sampler decides whether an event should be emitted. Events that are
// refused are counted so the next emitted event can report how many were
// dropped. A nil *Sampler allows everything.
type Sampler struct {
	lim        *rate.Limiter
	suppressed atomic.Uint64
}

// NewSampler creates a Sampler that lets through perSecond events per second
// with bursts of up to burst events.
func NewSampler(perSecond float64, burst int) *Sampler {
	return &Sampler{lim: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Allow reports whether one event may be emitted now.
func (s *Sampler) Allow() bool {
	if s == nil {
		return true
	}
	if s.lim.Allow() {
		return true
	}
	s.suppressed.Add(1)
	return false
}

// TakeSuppressed returns the number of events refused since the previous
// call and resets the counter.
func (s *Sampler) TakeSuppressed() uint64 {
	if s == nil {
		return 0
	}
	return s.suppressed.Swap(0)
}
