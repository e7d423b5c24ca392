package probe

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/cptspacemanspiff/gnome-cpu-watcher/internal/ring"
)

// Mode selects how idle time is measured.
type Mode int

const (
	// Precise measures wall-clock time the probe thread held the CPU.
	Precise Mode = iota
	// Coarse counts completed short sleeps.
	Coarse
)

func (m Mode) String() string {
	if m == Coarse {
		return "coarse"
	}
	return "precise"
}

// Letter is the single-character mode tag shown in the screen title.
func (m Mode) Letter() byte {
	if m == Coarse {
		return 'S'
	}
	return 'B'
}

// Reading is one drained accumulator value.
type Reading struct {
	Idle time.Duration
	Runs uint64
}

// Accumulator collects idle statistics between two drains. In the helper it
// is written by the measuring thread and drained into frames; in the watcher
// it is fed from frames and drained by the sampler.
type Accumulator struct {
	idle atomic.Int64
	runs atomic.Uint64
}

// AddIdle records d of idle run time.
func (a *Accumulator) AddIdle(d time.Duration) {
	a.idle.Add(int64(d))
}

// AddRun records one completed wake-up.
func (a *Accumulator) AddRun() {
	a.runs.Add(1)
}

// Add merges a reading drained elsewhere.
func (a *Accumulator) Add(r Reading) {
	a.idle.Add(int64(r.Idle))
	a.runs.Add(r.Runs)
}

// Drain returns the accumulated statistics and resets them to zero.
func (a *Accumulator) Drain() Reading {
	return Reading{
		Idle: time.Duration(a.idle.Swap(0)),
		Runs: a.runs.Swap(0),
	}
}

// Strategy is an idle measurement technique.
type Strategy interface {
	Mode() Mode
	// Measure records into acc until stop reports true.
	Measure(acc *Accumulator, stop func() bool)
	// Load converts a reading taken over interval into a CPU load percentage.
	Load(r Reading, interval time.Duration) uint8
}

// DefaultGap is the largest step between two clock reads still counted as
// uninterrupted run time.
const DefaultGap = 200 * time.Microsecond

// TimeBased spins on a monotonic clock. Steps no longer than Gap are time the
// probe thread held the CPU; a longer step means it was switched out.
type TimeBased struct {
	Gap   time.Duration
	Clock func() time.Duration
}

// NewTimeBased returns a TimeBased strategy using the process monotonic clock.
func NewTimeBased() *TimeBased {
	start := time.Now()
	return &TimeBased{
		Gap:   DefaultGap,
		Clock: func() time.Duration { return time.Since(start) },
	}
}

func (s *TimeBased) Mode() Mode { return Precise }

func (s *TimeBased) Measure(acc *Accumulator, stop func() bool) {
	last := s.Clock()
	for !stop() {
		now := s.Clock()
		if d := now - last; d > 0 && d <= s.Gap {
			acc.AddIdle(d)
		}
		last = now
	}
}

// Load returns 100 - round(100 * idle/interval).
func (s *TimeBased) Load(r Reading, interval time.Duration) uint8 {
	if interval <= 0 {
		return 0
	}
	idle := math.Round(100 * r.Idle.Seconds() / interval.Seconds())
	return ring.ClampPct(100 - idle)
}

// DefaultPeriod is the coarse sleep length, 100 wake-ups per second.
const DefaultPeriod = 10 * time.Millisecond

// CountBased sleeps for Period and counts each sleep once it returns.
type CountBased struct {
	Period time.Duration
	Sleep  func(time.Duration)
}

// NewCountBased returns a CountBased strategy sleeping DefaultPeriod.
func NewCountBased() *CountBased {
	return &CountBased{Period: DefaultPeriod, Sleep: time.Sleep}
}

func (s *CountBased) Mode() Mode { return Coarse }

func (s *CountBased) Measure(acc *Accumulator, stop func() bool) {
	for !stop() {
		s.Sleep(s.Period)
		acc.AddRun()
	}
}

// Load returns 100 - round(100 * runs/expected), where expected is the
// number of periods in interval. With a 1s interval and 10ms period this is
// 100 - runs.
func (s *CountBased) Load(r Reading, interval time.Duration) uint8 {
	if interval <= 0 || s.Period <= 0 {
		return 0
	}
	expected := float64(interval) / float64(s.Period)
	idle := math.Round(100 * float64(r.Runs) / expected)
	return ring.ClampPct(100 - idle)
}
