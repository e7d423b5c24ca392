package main

import (
	"image"
	"log/slog"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"
	xdialog "fyne.io/x/fyne/dialog"

	"github.com/cptspacemanspiff/gnome-cpu-watcher/internal/config"
	"github.com/cptspacemanspiff/gnome-cpu-watcher/internal/monitor"
	"github.com/cptspacemanspiff/gnome-cpu-watcher/internal/render"
)

const (
	appTitle  = "CPU Watcher"
	aboutText = "**CPU Watcher**\n\nCPU load, free memory and network traffic over the last five minutes.\n\n" +
		"Keys: c cpu, p ram, v virtual, x video, g grid, s solid, n network, d drag bar, m mode, q quit."
)

// windowUI implements monitor.Presenter on top of Fyne. Fields other than
// events are only touched on the Fyne goroutine.
type windowUI struct {
	app    fyne.App
	drv    desktop.Driver
	events chan<- monitor.Event
	log    *slog.Logger

	// decorated and bare are created on first use; only active is shown.
	// Fyne cannot toggle decorations on a live window.
	decorated fyne.Window
	bare      fyne.Window
	active    fyne.Window

	frame        *image.RGBA
	rasters      []*canvas.Raster
	lastW, lastH int

	size      fyne.Size
	resizable bool

	trayMenu   *fyne.Menu
	statusItem *fyne.MenuItem
}

func newWindowUI(a fyne.App, drv desktop.Driver, cfg *config.DisplayConfig, events chan<- monitor.Event, logger *slog.Logger) *windowUI {
	w, h := render.LogicalSize(cfg.Show.Net)
	u := &windowUI{
		app:       a,
		drv:       drv,
		events:    events,
		log:       logger,
		size:      fyne.NewSize(float32(w), float32(h)),
		resizable: cfg.Show.Resize,
	}

	if tray, ok := a.(desktop.App); ok {
		u.statusItem = fyne.NewMenuItem("", nil)
		u.statusItem.Disabled = true
		u.trayMenu = fyne.NewMenu(appTitle,
			u.statusItem,
			fyne.NewMenuItemSeparator(),
			fyne.NewMenuItem("About", func() { u.send(monitor.Menu(monitor.MenuAbout)) }),
			fyne.NewMenuItem("Toggle drag bar", func() { u.send(monitor.Key('d')) }),
		)
		tray.SetSystemTrayMenu(u.trayMenu)
	}

	u.activate(cfg.Show.DragBar)
	return u
}

// send forwards an event without blocking the UI goroutine.
func (u *windowUI) send(ev monitor.Event) {
	select {
	case u.events <- ev:
	default:
		u.log.Warn("event dropped, loop busy", "kind", ev.Kind)
	}
}

func (u *windowUI) window(dragBar bool) fyne.Window {
	if dragBar && u.decorated != nil {
		return u.decorated
	}
	if !dragBar && u.bare != nil {
		return u.bare
	}

	var w fyne.Window
	if dragBar {
		w = u.app.NewWindow(appTitle)
		about := fyne.NewMenuItem("About", func() { u.send(monitor.Menu(monitor.MenuAbout)) })
		quit := fyne.NewMenuItem("Quit", func() { u.send(monitor.Menu(monitor.MenuQuit)) })
		quit.IsQuit = true
		w.SetMainMenu(fyne.NewMainMenu(fyne.NewMenu(appTitle, about, quit)))
		u.decorated = w
	} else {
		w = u.drv.CreateSplashWindow()
		u.bare = w
	}

	raster := canvas.NewRaster(u.generate)
	raster.ScaleMode = canvas.ImageScalePixels
	u.rasters = append(u.rasters, raster)

	w.SetPadded(false)
	w.SetContent(raster)
	w.SetFixedSize(!u.resizable)
	w.SetCloseIntercept(func() { u.send(monitor.Close()) })
	w.Canvas().SetOnTypedRune(func(r rune) { u.send(monitor.Key(r)) })
	return w
}

func (u *windowUI) activate(dragBar bool) {
	next := u.window(dragBar)
	if next == u.active {
		return
	}
	next.Resize(u.size)
	next.Show()
	if u.active != nil {
		u.active.Hide()
	}
	u.active = next
}

// generate is the raster callback. A change of pixel size is reported to the
// loop, which answers with a frame of that size.
func (u *windowUI) generate(w, h int) image.Image {
	if w != u.lastW || h != u.lastH {
		u.lastW, u.lastH = w, h
		u.send(monitor.Resize(w, h))
	}
	if u.frame == nil {
		return image.NewRGBA(image.Rect(0, 0, 1, 1))
	}
	return u.frame
}

func (u *windowUI) Present(frame *image.RGBA) {
	fyne.Do(func() {
		u.frame = frame
		for _, r := range u.rasters {
			r.Refresh()
		}
	})
}

func (u *windowUI) SetTitles(window, screen string) {
	fyne.Do(func() {
		if window != "" && u.decorated != nil {
			u.decorated.SetTitle(window)
		}
		if u.statusItem != nil {
			u.statusItem.Label = screen
			u.trayMenu.Refresh()
		}
	})
}

func (u *windowUI) SetLogicalSize(w, h int) {
	fyne.Do(func() {
		u.size = fyne.NewSize(float32(w), float32(h))
		u.active.Resize(u.size)
	})
}

func (u *windowUI) SetDragBar(on bool) {
	fyne.Do(func() {
		u.activate(on)
		u.active.RequestFocus()
	})
}

func (u *windowUI) ShowAbout() {
	fyne.Do(func() {
		xdialog.NewAbout(aboutText, []*widget.Hyperlink{}, u.app, u.active).Show()
	})
}
