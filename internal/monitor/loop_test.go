package monitor

import (
	"context"
	"errors"
	"image"
	"strings"
	"testing"
	"time"

	"github.com/cptspacemanspiff/gnome-cpu-watcher/internal/config"
	"github.com/cptspacemanspiff/gnome-cpu-watcher/internal/netstats"
	"github.com/cptspacemanspiff/gnome-cpu-watcher/internal/probe"
	"github.com/cptspacemanspiff/gnome-cpu-watcher/internal/ring"
	"github.com/cptspacemanspiff/gnome-cpu-watcher/internal/sampler"
)

type fakeProber struct {
	goCalls int
	mode    probe.Mode
}

func (p *fakeProber) Go()                  { p.goCalls++ }
func (p *fakeProber) Mode() probe.Mode     { return p.mode }
func (p *fakeProber) SetMode(m probe.Mode) { p.mode = m }

type fakeUI struct {
	frames     []*image.RGBA
	window     string
	screen     string
	logicalW   int
	logicalH   int
	dragBar    []bool
	aboutShown int
}

func (u *fakeUI) Present(frame *image.RGBA)       { u.frames = append(u.frames, frame) }
func (u *fakeUI) SetTitles(window, screen string) { u.window, u.screen = window, screen }
func (u *fakeUI) SetLogicalSize(w, h int)         { u.logicalW, u.logicalH = w, h }
func (u *fakeUI) SetDragBar(on bool)              { u.dragBar = append(u.dragBar, on) }
func (u *fakeUI) ShowAbout()                      { u.aboutShown++ }

type fakePublisher struct {
	statuses []Status
}

func (p *fakePublisher) Publish(s Status) { p.statuses = append(p.statuses, s) }

type loadFeed struct {
	loads     []uint8
	discarded int
}

func (f *loadFeed) CPULoad(time.Duration) uint8 {
	if len(f.loads) == 0 {
		return 0
	}
	v := f.loads[0]
	f.loads = f.loads[1:]
	return v
}

func (f *loadFeed) Discard() { f.discarded++ }

type flatMemory struct{}

func (flatMemory) FreeRAM() (uint8, error)     { return 40, nil }
func (flatMemory) FreeVirtual() (uint8, error) { return 90, nil }
func (flatMemory) FreeVideo() (uint8, error)   { return 0, errors.New("no vram") }

type fixedNet struct {
	rebased int
}

func (n *fixedNet) Update(time.Duration) (netstats.Result, error) {
	return netstats.Result{Upload: 10, Download: 20, ULMultiplier: 1, DLMultiplier: 1, ULSpeed: 1.5, DLSpeed: 12.26}, nil
}

func (n *fixedNet) Rebase() { n.rebased++ }

type harness struct {
	loop   *Loop
	ui     *fakeUI
	prober *fakeProber
	pub    *fakePublisher
	cpu    *loadFeed
	net    *fixedNet
	ticks  chan time.Time
	events chan Event
	wake   chan struct{}
	done   chan error
}

func startLoop(t *testing.T, ctx context.Context, cfg *config.DisplayConfig, loads ...uint8) *harness {
	t.Helper()

	h := &harness{
		ui:     &fakeUI{},
		prober: &fakeProber{},
		pub:    &fakePublisher{},
		cpu:    &loadFeed{loads: loads},
		net:    &fixedNet{},
		ticks:  make(chan time.Time),
		events: make(chan Event),
		wake:   make(chan struct{}),
		done:   make(chan error, 1),
	}
	smp := sampler.New(ring.New(ring.Capacity), h.cpu, flatMemory{}, h.net, nil)
	h.loop = New(Options{
		Sampler:   smp,
		Probe:     h.prober,
		Config:    cfg,
		UI:        h.ui,
		Publisher: h.pub,
		Events:    h.events,
		Wake:      h.wake,
		NewTicker: func(time.Duration) (<-chan time.Time, func()) {
			return h.ticks, func() {}
		},
	})
	go func() { h.done <- h.loop.Run(ctx) }()
	return h
}

func (h *harness) tick()         { h.ticks <- time.Time{} }
func (h *harness) send(ev Event) { h.events <- ev }
func (h *harness) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func TestRun_TicksWriteRingAndTitles(t *testing.T) {
	h := startLoop(t, context.Background(), nil, 0, 50, 100)
	h.tick()
	h.tick()
	h.tick()
	h.send(Close())
	if err := h.wait(t); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if h.prober.goCalls != 1 {
		t.Fatalf("Go() calls = %d, want 1", h.prober.goCalls)
	}
	r := h.loop.opts.Sampler.Ring()
	for i, want := range []uint8{0, 0, 50, 100, 0} {
		if got := r.At(i).CPU; got != want {
			t.Fatalf("ring[%d].CPU = %d, want %d", i, got, want)
		}
	}
	if want := "CPU: 100% V:  90% P:  40% G:   0%"; h.ui.window != want {
		t.Fatalf("window title = %q, want %q", h.ui.window, want)
	}
	if want := "Download: 12.3KB/s Upload:  1.5KB/s Mode: B"; !strings.HasSuffix(h.ui.screen, want) {
		t.Fatalf("screen title = %q, want suffix %q", h.ui.screen, want)
	}
	// One frame at startup plus one per tick.
	if len(h.ui.frames) != 4 {
		t.Fatalf("frames = %d, want 4", len(h.ui.frames))
	}
	if len(h.pub.statuses) != 3 {
		t.Fatalf("published = %d, want 3", len(h.pub.statuses))
	}
	last := h.pub.statuses[2]
	if last.Sample.CPU != 100 || len(last.History) != ring.Capacity || last.History[ring.Capacity-1].CPU != 100 {
		t.Fatalf("last status = %+v", last.Sample)
	}
	if last.Mode != "precise" || last.WindowTitle != h.ui.window {
		t.Fatalf("status mode/title = %q/%q", last.Mode, last.WindowTitle)
	}
}

func TestRun_KeyCommands(t *testing.T) {
	h := startLoop(t, context.Background(), nil)
	for _, r := range "cpvxgs" {
		h.send(Key(r))
	}
	h.send(Key('n'))
	h.send(Key('d'))
	h.send(Key('m'))
	h.send(Key('z'))
	h.send(Key('q'))
	if err := h.wait(t); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	cfg := h.loop.Config()
	want := config.Show{Net: true}
	if cfg.Show != want {
		t.Fatalf("Show = %+v, want %+v", cfg.Show, want)
	}
	if h.ui.logicalW != 300 || h.ui.logicalH != 202 {
		t.Fatalf("logical size = %dx%d, want 300x202", h.ui.logicalW, h.ui.logicalH)
	}
	if len(h.ui.dragBar) != 1 || h.ui.dragBar[0] {
		t.Fatalf("SetDragBar calls = %v, want [false]", h.ui.dragBar)
	}
	if h.prober.mode != probe.Coarse {
		t.Fatalf("mode = %v, want coarse", h.prober.mode)
	}
	if h.ui.window != "" {
		t.Fatalf("window title = %q, want empty without drag bar", h.ui.window)
	}
	if !strings.HasSuffix(h.ui.screen, "Mode: S") {
		t.Fatalf("screen title = %q, want coarse mode letter", h.ui.screen)
	}
	// Startup frame, eight redrawing toggles; m, z and q draw nothing.
	if len(h.ui.frames) != 9 {
		t.Fatalf("frames = %d, want 9", len(h.ui.frames))
	}
}

func TestRun_IconifySkipsFrames(t *testing.T) {
	h := startLoop(t, context.Background(), nil, 10, 20, 30)
	h.send(Iconify(true))
	h.tick()
	h.tick()
	h.send(Key('g'))
	h.send(Iconify(false))
	h.tick()
	h.send(Menu(MenuQuit))
	if err := h.wait(t); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Startup, uniconify, last tick.
	if len(h.ui.frames) != 3 {
		t.Fatalf("frames = %d, want 3", len(h.ui.frames))
	}
	if h.loop.opts.Sampler.Ring().At(2).CPU != 20 {
		t.Fatal("sampling stopped while iconified")
	}
}

func TestRun_ResizeChangesFrameSize(t *testing.T) {
	h := startLoop(t, context.Background(), nil)
	h.send(Resize(600, 404))
	h.send(Menu(MenuAbout))
	h.send(Close())
	if err := h.wait(t); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := h.ui.frames[0].Bounds(); got.Dx() != 300 || got.Dy() != 101 {
		t.Fatalf("initial frame = %v, want 300x101", got)
	}
	last := h.ui.frames[len(h.ui.frames)-1].Bounds()
	if last.Dx() != 600 || last.Dy() != 404 {
		t.Fatalf("resized frame = %v, want 600x404", last)
	}
	if h.ui.aboutShown != 1 {
		t.Fatalf("ShowAbout calls = %d, want 1", h.ui.aboutShown)
	}
}

func TestRun_WakeRebases(t *testing.T) {
	h := startLoop(t, context.Background(), nil)
	h.wake <- struct{}{}
	h.send(Close())
	if err := h.wait(t); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if h.net.rebased != 1 || h.cpu.discarded != 1 {
		t.Fatalf("rebased=%d discarded=%d, want 1/1", h.net.rebased, h.cpu.discarded)
	}
}

func TestRun_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := startLoop(t, ctx, nil)
	cancel()
	if err := h.wait(t); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
}

func TestRun_ClosedEventsQuit(t *testing.T) {
	h := startLoop(t, context.Background(), nil)
	close(h.events)
	if err := h.wait(t); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestNew_NetLayoutFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Show.Net = true
	l := New(Options{Config: cfg})
	if w, h := l.surface.Size(); w != 300 || h != 202 {
		t.Fatalf("surface = %dx%d, want 300x202", w, h)
	}
	cfg.Show.CPU = false
	if !l.Config().Show.CPU {
		t.Fatal("loop config aliases the caller's config")
	}
}

func TestTitles(t *testing.T) {
	rd := sampler.Reading{
		Sample:  ring.Sample{CPU: 7, FreeRAM: 100, FreeVirtual: 42, FreeVideo: 3},
		ULSpeed: 0.04,
		DLSpeed: 1234.56,
	}
	if got, want := WindowTitle(rd.Sample), "CPU:   7% V:  42% P: 100% G:   3%"; got != want {
		t.Fatalf("WindowTitle() = %q, want %q", got, want)
	}
	want := "CPU:   7% Virtual:  42% Public: 100% Graphics:   3% Download: 1234.6KB/s Upload:  0.0KB/s Mode: S"
	if got := ScreenTitle(rd, probe.Coarse); got != want {
		t.Fatalf("ScreenTitle() = %q, want %q", got, want)
	}
}
