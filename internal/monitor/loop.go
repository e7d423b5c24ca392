package monitor

import (
	"context"
	"image"
	"log/slog"
	"time"

	"github.com/cptspacemanspiff/gnome-cpu-watcher/internal/config"
	"github.com/cptspacemanspiff/gnome-cpu-watcher/internal/logging"
	"github.com/cptspacemanspiff/gnome-cpu-watcher/internal/probe"
	"github.com/cptspacemanspiff/gnome-cpu-watcher/internal/render"
	"github.com/cptspacemanspiff/gnome-cpu-watcher/internal/ring"
	"github.com/cptspacemanspiff/gnome-cpu-watcher/internal/sampler"
)

// DefaultInterval is the sampling period.
const DefaultInterval = time.Second

// Prober is the part of the idle probe the loop drives.
type Prober interface {
	Go()
	Mode() probe.Mode
	SetMode(probe.Mode)
}

// Presenter shows frames and titles. Implementations must not block the
// caller on the UI thread.
type Presenter interface {
	// Present shows frame. The loop never touches frame again.
	Present(frame *image.RGBA)
	// SetTitles updates the window and screen titles. window is empty when
	// the drag bar is hidden.
	SetTitles(window, screen string)
	// SetLogicalSize asks for the window to fit a chart of w×h logical pixels.
	SetLogicalSize(w, h int)
	// SetDragBar recreates the window with or without decorations.
	SetDragBar(on bool)
	ShowAbout()
}

// Publisher receives the status after every tick.
type Publisher interface {
	Publish(Status)
}

// Status is the state exported after a tick.
type Status struct {
	Sample      ring.Sample   `json:"sample"`
	ULSpeed     float64       `json:"upload_kib_s"`
	DLSpeed     float64       `json:"download_kib_s"`
	Mode        string        `json:"mode"`
	WindowTitle string        `json:"window_title"`
	ScreenTitle string        `json:"screen_title"`
	History     []ring.Sample `json:"-"`
}

// Options configures a Loop.
type Options struct {
	Sampler   *sampler.Sampler
	Probe     Prober
	Config    *config.DisplayConfig
	UI        Presenter
	Publisher Publisher
	Events    <-chan Event
	// Wake delivers resume notifications; nil disables rebasing.
	Wake     <-chan struct{}
	Interval time.Duration
	Logger   *slog.Logger
	// NewTicker is replaced in tests.
	NewTicker func(time.Duration) (<-chan time.Time, func())
}

// Loop owns the ring, the display configuration and the drawing surface.
// Everything it touches runs on the goroutine calling Run.
type Loop struct {
	opts      Options
	cfg       config.DisplayConfig
	surface   *render.ImageSurface
	last      sampler.Reading
	iconified bool
	log       *slog.Logger
}

// New builds a loop. The configuration is copied; key commands change the
// copy only.
func New(opts Options) *Loop {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.NewTicker == nil {
		opts.NewTicker = func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		}
	}
	cfg := *config.Default()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	w, h := render.LogicalSize(cfg.Show.Net)
	return &Loop{
		opts:    opts,
		cfg:     cfg,
		surface: render.NewImageSurface(w, h),
		log:     opts.Logger,
	}
}

// Config returns the current display configuration.
func (l *Loop) Config() config.DisplayConfig {
	return l.cfg
}

// Run samples once per interval and handles events until ctx ends or the
// user quits. A quit returns nil.
func (l *Loop) Run(ctx context.Context) error {
	tick, stop := l.opts.NewTicker(l.opts.Interval)
	defer stop()

	l.opts.Probe.Go()
	l.redraw()
	l.updateTitles()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
			l.tick()
		case ev, ok := <-l.opts.Events:
			if !ok {
				return nil
			}
			if quit := l.handle(ev); quit {
				return nil
			}
		case <-l.opts.Wake:
			l.log.Info("resumed from sleep, rebasing counters")
			l.opts.Sampler.Rebase()
		}
	}
}

func (l *Loop) tick() {
	l.last = l.opts.Sampler.Tick(l.opts.Interval)
	l.redraw()
	win, scr := l.updateTitles()

	if l.opts.Publisher != nil {
		l.opts.Publisher.Publish(Status{
			Sample:      l.last.Sample,
			ULSpeed:     l.last.ULSpeed,
			DLSpeed:     l.last.DLSpeed,
			Mode:        l.opts.Probe.Mode().String(),
			WindowTitle: win,
			ScreenTitle: scr,
			History:     l.opts.Sampler.Ring().Snapshot(),
		})
	}
}

// handle applies one event and reports whether the loop should exit.
func (l *Loop) handle(ev Event) bool {
	switch ev.Kind {
	case EventClose:
		return true
	case EventKey:
		return l.key(ev.Key)
	case EventResize:
		l.surface.Resize(ev.Width, ev.Height)
		l.redraw()
	case EventIconify:
		l.iconified = ev.Iconified
		if !ev.Iconified {
			l.redraw()
		}
	case EventMenu:
		switch ev.Menu {
		case MenuAbout:
			l.opts.UI.ShowAbout()
		case MenuQuit:
			return true
		}
	}
	return false
}

func (l *Loop) key(r rune) bool {
	show := &l.cfg.Show
	switch r {
	case 'c':
		show.CPU = !show.CPU
	case 'p':
		show.PublicMem = !show.PublicMem
	case 'v':
		show.VirtualMem = !show.VirtualMem
	case 'x':
		show.VideoMem = !show.VideoMem
	case 'g':
		show.Grid = !show.Grid
	case 's':
		show.Solid = !show.Solid
	case 'n':
		show.Net = !show.Net
		l.opts.UI.SetLogicalSize(render.LogicalSize(show.Net))
	case 'd':
		show.DragBar = !show.DragBar
		l.opts.UI.SetDragBar(show.DragBar)
		l.updateTitles()
	case 'm':
		next := probe.Precise
		if l.opts.Probe.Mode() == probe.Precise {
			next = probe.Coarse
		}
		l.opts.Probe.SetMode(next)
		l.updateTitles()
		return false
	case 'q':
		return true
	default:
		return false
	}
	l.log.Debug("display toggled", "key", string(r))
	l.redraw()
	return false
}

// redraw renders the ring and hands a copy of the frame to the UI unless the
// window is iconified.
func (l *Loop) redraw() {
	if l.iconified {
		return
	}
	render.Draw(l.surface, l.opts.Sampler.Ring(), &l.cfg)
	l.opts.UI.Present(l.surface.Snapshot())
}

func (l *Loop) updateTitles() (window, screen string) {
	window = WindowTitle(l.last.Sample)
	screen = ScreenTitle(l.last, l.opts.Probe.Mode())
	if l.cfg.Show.DragBar {
		l.opts.UI.SetTitles(window, screen)
	} else {
		l.opts.UI.SetTitles("", screen)
	}
	return window, screen
}
