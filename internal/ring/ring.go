package ring

import "math"

// Capacity is the number of one-second samples kept: five minutes of history.
const Capacity = 60 * 5

// Sample is one tick of measurements. Every field is a percentage in [0,100].
type Sample struct {
	CPU         uint8 `json:"cpu_load"`
	FreeRAM     uint8 `json:"free_ram_pct"`
	FreeVirtual uint8 `json:"free_virtual_pct"`
	FreeVideo   uint8 `json:"free_video_pct"`
	Upload      uint8 `json:"upload_pct"`
	Download    uint8 `json:"download_pct"`
}

// Ring is a fixed-capacity circular buffer of samples. The buffer is
// allocated once and overwritten in place; it is not safe for concurrent use.
type Ring struct {
	samples []Sample
	iter    int
}

// New allocates a zeroed ring holding n samples. n below 1 uses Capacity.
func New(n int) *Ring {
	if n < 1 {
		n = Capacity
	}
	return &Ring{samples: make([]Sample, n)}
}

// Len returns the ring capacity.
func (r *Ring) Len() int {
	return len(r.samples)
}

// Iter returns the index of the newest sample.
func (r *Ring) Iter() int {
	return r.iter
}

// Advance moves the write cursor one slot forward and returns the new index.
func (r *Ring) Advance() int {
	r.iter = (r.iter + 1) % len(r.samples)
	return r.iter
}

// Set stores s at the current cursor.
func (r *Ring) Set(s Sample) {
	r.samples[r.iter] = s.Clamped()
}

// Push advances the cursor and stores s there.
func (r *Ring) Push(s Sample) int {
	i := r.Advance()
	r.Set(s)
	return i
}

// Latest returns the sample at the cursor.
func (r *Ring) Latest() Sample {
	return r.samples[r.iter]
}

// At returns the sample stored at physical index i (modulo capacity).
func (r *Ring) At(i int) Sample {
	n := len(r.samples)
	return r.samples[((i%n)+n)%n]
}

// Chrono returns the x-th sample counting from the oldest. Chrono(0) is the
// slot right after the cursor and Chrono(Len()-1) is the newest sample.
func (r *Ring) Chrono(x int) Sample {
	return r.At(r.iter + 1 + x)
}

// Snapshot copies the ring contents from oldest to newest.
func (r *Ring) Snapshot() []Sample {
	out := make([]Sample, len(r.samples))
	for x := range out {
		out[x] = r.Chrono(x)
	}
	return out
}

// Rescale multiplies every stored upload and download value by the given
// factors, truncating toward zero.
func (r *Ring) Rescale(upload, download float64) {
	for i := range r.samples {
		s := &r.samples[i]
		if upload != 1 {
			s.Upload = scale(s.Upload, upload)
		}
		if download != 1 {
			s.Download = scale(s.Download, download)
		}
	}
}

func scale(v uint8, mult float64) uint8 {
	return ClampPct(math.Trunc(float64(v) * mult))
}

// Clamped returns a copy of s with every field limited to 100.
func (s Sample) Clamped() Sample {
	s.CPU = min(s.CPU, 100)
	s.FreeRAM = min(s.FreeRAM, 100)
	s.FreeVirtual = min(s.FreeVirtual, 100)
	s.FreeVideo = min(s.FreeVideo, 100)
	s.Upload = min(s.Upload, 100)
	s.Download = min(s.Download, 100)
	return s
}

// ClampPct converts a raw percentage into [0,100]. NaN maps to 0.
func ClampPct(v float64) uint8 {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= 100:
		return 100
	}
	return uint8(v)
}

// Percent returns 100*part/total truncated and clamped to [0,100], or 0 when
// total is zero.
func Percent(part, total uint64) uint8 {
	if total == 0 {
		return 0
	}
	return ClampPct(100 * float64(part) / float64(total))
}
