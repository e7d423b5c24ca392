package netstats

import (
	"errors"
	"fmt"
	"time"

	"github.com/cptspacemanspiff/gnome-cpu-watcher/internal/ring"
)

// ErrNoData is returned when the byte counters could not be read.
var ErrNoData = errors.New("network counters unavailable")

// Counters is a pair of monotonically increasing byte counters.
type Counters struct {
	BytesRecv uint64
	BytesSent uint64
}

// Source reads the current byte counters.
type Source func() (Counters, error)

// Quad is a 64-bit counter split into 32-bit halves.
type Quad struct {
	High uint32
	Low  uint32
}

// Split converts v into a Quad.
func Split(v uint64) Quad {
	return Quad{High: uint32(v >> 32), Low: uint32(v)}
}

// Uint64 joins the halves back together.
func (q Quad) Uint64() uint64 {
	return uint64(q.High)<<32 | uint64(q.Low)
}

// Delta returns a - b, borrowing from the high word when the low word
// rolled over. A counter that went backwards yields 0.
func Delta(a, b Quad) uint64 {
	high := a.High
	var low uint32
	if a.Low < b.Low {
		if high == 0 {
			return 0
		}
		high--
		low = ^uint32(0) - b.Low + 1 + a.Low
	} else {
		low = a.Low - b.Low
	}
	if high < b.High {
		return 0
	}
	return uint64(high-b.High)<<32 | uint64(low)
}

// Result is one normalized network sample.
type Result struct {
	// Upload and Download are percentages of the historical peak.
	Upload   uint8
	Download uint8
	// ULMultiplier and DLMultiplier rescale stored history after a new
	// peak. They are exactly 1 when the peak did not move.
	ULMultiplier float64
	DLMultiplier float64
	// Rescale is set when either multiplier differs from 1.
	Rescale bool
	// ULSpeed and DLSpeed are KiB per second.
	ULSpeed float64
	DLSpeed float64
}

// Stats converts byte counters into peak-relative percentages.
type Stats struct {
	source Source

	lastIn   Quad
	lastOut  Quad
	baseline bool

	maxSent     uint64
	maxReceived uint64
}

// New returns Stats reading from source. The first Update only records a
// baseline.
func New(source Source) *Stats {
	return &Stats{source: source}
}

// Init records the current counters as the baseline.
func (s *Stats) Init() error {
	c, err := s.source()
	if err != nil {
		s.baseline = false
		return fmt.Errorf("%w: %w", ErrNoData, err)
	}
	s.lastIn, s.lastOut = Split(c.BytesRecv), Split(c.BytesSent)
	s.baseline = true
	return nil
}

// Rebase forgets the last snapshot so the next Update starts a new baseline.
// Peaks are kept.
func (s *Stats) Rebase() {
	s.baseline = false
}

// Peaks returns the largest per-interval sent and received deltas seen.
func (s *Stats) Peaks() (sent, received uint64) {
	return s.maxSent, s.maxReceived
}

// Update reads the counters and normalizes the delta since the last call.
// The multiplier for a new peak is the previous peak divided by the new
// delta.
func (s *Stats) Update(interval time.Duration) (Result, error) {
	res := Result{ULMultiplier: 1, DLMultiplier: 1}

	c, err := s.source()
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrNoData, err)
	}
	in, out := Split(c.BytesRecv), Split(c.BytesSent)
	if !s.baseline {
		s.lastIn, s.lastOut = in, out
		s.baseline = true
		return res, nil
	}

	received := Delta(in, s.lastIn)
	sent := Delta(out, s.lastOut)
	s.lastIn, s.lastOut = in, out

	if sent > s.maxSent {
		res.ULMultiplier = float64(s.maxSent) / float64(sent)
		res.Rescale = true
		s.maxSent = sent
	}
	if received > s.maxReceived {
		res.DLMultiplier = float64(s.maxReceived) / float64(received)
		res.Rescale = true
		s.maxReceived = received
	}

	res.Upload = ring.Percent(sent, s.maxSent)
	res.Download = ring.Percent(received, s.maxReceived)

	secs := interval.Seconds()
	if secs <= 0 {
		secs = 1
	}
	res.ULSpeed = float64(sent) / 1024 / secs
	res.DLSpeed = float64(received) / 1024 / secs
	return res, nil
}
