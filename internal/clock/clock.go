package clock

import (
	"sync"
	"time"
)

// Clock is a monotonic millisecond counter, the way the hub firmware measures
// every timeout. Values only make sense relative to each other.
type Clock interface {
	Millis() uint64
}

type system struct {
	start time.Time
}

// System returns a clock counting milliseconds since its creation, backed by
// the monotonic reading of time.Now.
func System() Clock {
	return &system{start: time.Now()}
}

func (s *system) Millis() uint64 {
	return uint64(time.Since(s.start).Milliseconds())
}

// Manual is a clock that only moves when told to. Used by tests and by the
// simulated hardware.
type Manual struct {
	mu  sync.Mutex
	now uint64
}

func NewManual(start uint64) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Millis() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d (rounded down to the millisecond).
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now += uint64(d.Milliseconds())
}

func (m *Manual) Set(ms uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = ms
}

// Elapsed returns how many milliseconds passed since since, as a duration.
func Elapsed(c Clock, since uint64) time.Duration {
	return time.Duration(c.Millis()-since) * time.Millisecond
}
