package netstats

import (
	"errors"
	"testing"
	"time"
)

// scripted returns counters from a fixed list, one per call.
type scripted struct {
	values []Counters
	errAt  map[int]error
	calls  int
}

func (s *scripted) read() (Counters, error) {
	i := s.calls
	s.calls++
	if err, ok := s.errAt[i]; ok {
		return Counters{}, err
	}
	return s.values[i], nil
}

func TestDelta(t *testing.T) {
	tests := []struct {
		name string
		a, b Quad
		want uint64
	}{
		{"plain", Quad{0, 1500}, Quad{0, 500}, 1000},
		{"low word rolled over", Quad{1, 5}, Quad{0, 0xFFFFFFF0}, 21},
		{"rolled over with high words", Quad{7, 10}, Quad{6, 0xFFFFFFFF}, 11},
		{"spans high words", Quad{3, 0}, Quad{1, 0}, 2 << 32},
		{"low went backwards without high", Quad{0, 10}, Quad{0, 20}, 0},
		{"high went backwards", Quad{1, 50}, Quad{2, 10}, 0},
		{"unchanged", Quad{4, 4}, Quad{4, 4}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Delta(tt.a, tt.b); got != tt.want {
				t.Fatalf("Delta(%+v, %+v) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestDelta_MatchesSubtraction(t *testing.T) {
	pairs := [][2]uint64{
		{1 << 32, (1 << 32) - 1},
		{0x1_0000_0000_0000, 0xFFFF_FFFF_FFFF},
		{12345678901234, 12345678900000},
	}
	for _, p := range pairs {
		if got := Delta(Split(p[0]), Split(p[1])); got != p[0]-p[1] {
			t.Fatalf("Delta(%d, %d) = %d, want %d", p[0], p[1], got, p[0]-p[1])
		}
	}
	if Split(0xDEADBEEF_CAFEBABE).Uint64() != 0xDEADBEEF_CAFEBABE {
		t.Fatal("Split/Uint64 do not round trip")
	}
}

func TestUpdate_FirstCallRecordsBaseline(t *testing.T) {
	src := &scripted{values: []Counters{{BytesRecv: 1 << 40, BytesSent: 1 << 39}}}
	s := New(src.read)

	res, err := s.Update(time.Second)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if res.Upload != 0 || res.Download != 0 || res.Rescale {
		t.Fatalf("first Update() = %+v, want empty baseline result", res)
	}
	if res.ULMultiplier != 1 || res.DLMultiplier != 1 {
		t.Fatalf("multipliers = %v/%v, want 1/1", res.ULMultiplier, res.DLMultiplier)
	}
}

func TestUpdate_PeakRescaling(t *testing.T) {
	src := &scripted{values: []Counters{
		{BytesRecv: 0, BytesSent: 0},
		{BytesRecv: 4096, BytesSent: 1024},  // first peaks
		{BytesRecv: 6144, BytesSent: 1536},  // below peak
		{BytesRecv: 14336, BytesSent: 3584}, // both double
	}}
	s := New(src.read)
	if err := s.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	res, err := s.Update(time.Second)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if res.Upload != 100 || res.Download != 100 {
		t.Fatalf("first peak = %d/%d, want 100/100", res.Upload, res.Download)
	}
	if !res.Rescale || res.ULMultiplier != 0 || res.DLMultiplier != 0 {
		t.Fatalf("first peak multipliers = %+v, want 0 with rescale", res)
	}
	if res.ULSpeed != 1 || res.DLSpeed != 4 {
		t.Fatalf("speeds = %v/%v KiB/s, want 1/4", res.ULSpeed, res.DLSpeed)
	}

	res, err = s.Update(time.Second)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if res.Rescale || res.ULMultiplier != 1.0 || res.DLMultiplier != 1.0 {
		t.Fatalf("no-peak tick = %+v, want multipliers exactly 1", res)
	}
	if res.Upload != 50 || res.Download != 50 {
		t.Fatalf("half of peak = %d/%d, want 50/50", res.Upload, res.Download)
	}

	res, err = s.Update(time.Second)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if !res.Rescale || res.ULMultiplier != 0.5 || res.DLMultiplier != 0.5 {
		t.Fatalf("double peak = %+v, want multipliers 0.5", res)
	}
	if sent, received := s.Peaks(); sent != 2048 || received != 8192 {
		t.Fatalf("Peaks() = %d/%d, want 2048/8192", sent, received)
	}
}

func TestUpdate_SourceFailure(t *testing.T) {
	boom := errors.New("socket stats gone")
	src := &scripted{
		values: []Counters{{}, {}, {BytesRecv: 100, BytesSent: 100}},
		errAt:  map[int]error{1: boom},
	}
	s := New(src.read)
	if err := s.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	res, err := s.Update(time.Second)
	if !errors.Is(err, ErrNoData) || !errors.Is(err, boom) {
		t.Fatalf("Update() error = %v, want ErrNoData wrapping cause", err)
	}
	if res.Upload != 0 || res.Download != 0 || res.ULSpeed != 0 || res.DLSpeed != 0 {
		t.Fatalf("failed Update() = %+v, want zero values", res)
	}

	res, err = s.Update(time.Second)
	if err != nil {
		t.Fatalf("Update() after recovery error = %v", err)
	}
	if res.Upload != 100 || res.Download != 100 {
		t.Fatalf("recovered Update() = %d/%d, want 100/100", res.Upload, res.Download)
	}
}

func TestRebase_SkipsGapDelta(t *testing.T) {
	src := &scripted{values: []Counters{
		{BytesRecv: 0, BytesSent: 0},
		{BytesRecv: 1000, BytesSent: 1000},
		{BytesRecv: 9_000_000, BytesSent: 9_000_000}, // after a suspend
		{BytesRecv: 9_000_500, BytesSent: 9_000_500},
	}}
	s := New(src.read)
	_ = s.Init()
	if _, err := s.Update(time.Second); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	s.Rebase()
	res, err := s.Update(time.Second)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if res.Rescale {
		t.Fatalf("rebase tick = %+v, want no rescale", res)
	}

	res, err = s.Update(time.Second)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if res.Upload != 50 || res.Download != 50 {
		t.Fatalf("post-rebase = %d/%d, want 50/50 of the old peak", res.Upload, res.Download)
	}
}
