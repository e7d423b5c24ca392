package sampler

import (
	"log/slog"
	"time"

	"github.com/cptspacemanspiff/gnome-cpu-watcher/internal/logging"
	"github.com/cptspacemanspiff/gnome-cpu-watcher/internal/netstats"
	"github.com/cptspacemanspiff/gnome-cpu-watcher/internal/ring"
)

// CPUSource yields the load measured since the previous call.
type CPUSource interface {
	CPULoad(interval time.Duration) uint8
	Discard()
}

// MemorySource reports free percentages for the three memory pools.
type MemorySource interface {
	FreeRAM() (uint8, error)
	FreeVirtual() (uint8, error)
	FreeVideo() (uint8, error)
}

// NetSource normalizes network traffic against its historical peak.
type NetSource interface {
	Update(interval time.Duration) (netstats.Result, error)
	Rebase()
}

// Reading is the outcome of one tick.
type Reading struct {
	ring.Sample
	// Index is the ring slot the sample was written to.
	Index int
	// ULSpeed and DLSpeed are KiB per second.
	ULSpeed float64
	DLSpeed float64
}

// Sampler turns probe and OS counters into one ring sample per tick.
type Sampler struct {
	ring *ring.Ring
	cpu  CPUSource
	mem  MemorySource
	net  NetSource
	log  *slog.Logger
}

// New returns a sampler writing into r. A nil net source disables the
// network series.
func New(r *ring.Ring, cpu CPUSource, mem MemorySource, net NetSource, logger *slog.Logger) *Sampler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Sampler{ring: r, cpu: cpu, mem: mem, net: net, log: logger}
}

// Ring returns the ring the sampler writes into.
func (s *Sampler) Ring() *ring.Ring {
	return s.ring
}

// Tick takes one sample covering interval and writes it into the next ring
// slot. Failed queries are recorded as 0.
func (s *Sampler) Tick(interval time.Duration) Reading {
	idx := s.ring.Advance()

	var smp ring.Sample
	smp.CPU = s.cpu.CPULoad(interval)
	smp.FreeRAM = s.pool("ram", s.mem.FreeRAM)
	smp.FreeVirtual = s.pool("virtual", s.mem.FreeVirtual)
	smp.FreeVideo = s.pool("video", s.mem.FreeVideo)

	rd := Reading{Index: idx}
	if s.net != nil {
		res, err := s.net.Update(interval)
		if err != nil {
			s.log.Debug("network sample", "err", err)
		} else {
			if res.Rescale {
				s.ring.Rescale(res.ULMultiplier, res.DLMultiplier)
				s.log.Debug("network peak rescale", "ul_mult", res.ULMultiplier, "dl_mult", res.DLMultiplier)
			}
			smp.Upload = res.Upload
			smp.Download = res.Download
			rd.ULSpeed = res.ULSpeed
			rd.DLSpeed = res.DLSpeed
		}
	}

	s.ring.Set(smp)
	rd.Sample = s.ring.Latest()
	s.log.Debug("tick", "index", idx, "cpu", rd.CPU,
		"ram", rd.FreeRAM, "virtual", rd.FreeVirtual, "video", rd.FreeVideo,
		"ul", rd.Upload, "dl", rd.Download)
	return rd
}

// Rebase drops accumulated probe time and restarts the network baseline.
// Used after the system resumes from sleep.
func (s *Sampler) Rebase() {
	s.cpu.Discard()
	if s.net != nil {
		s.net.Rebase()
	}
}

func (s *Sampler) pool(name string, read func() (uint8, error)) uint8 {
	v, err := read()
	if err != nil {
		s.log.Debug("memory pool unavailable", "pool", name, "err", err)
		return 0
	}
	return v
}
