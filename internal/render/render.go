package render

import (
	"image"
	"image/color"

	"github.com/cptspacemanspiff/gnome-cpu-watcher/internal/config"
	"github.com/cptspacemanspiff/gnome-cpu-watcher/internal/ring"
)

const (
	// Width is the logical chart width, one column per sample.
	Width = ring.Capacity
	// Height is the logical height of one chart, one row per percent.
	Height = 101

	gridRows = 10
	gridCols = 60
	center   = Height / 2
)

// LogicalSize returns the logical canvas size for the given layout.
func LogicalSize(net bool) (w, h int) {
	if net {
		return Width, 2 * Height
	}
	return Width, Height
}

// RGB converts a 0xAARRGGBB color to an opaque color. The alpha byte is
// ignored.
func RGB(argb uint32) color.RGBA {
	return color.RGBA{R: uint8(argb >> 16), G: uint8(argb >> 8), B: uint8(argb), A: 0xff}
}

// Background converts a color with the given opaqueness (0..255) into a
// premultiplied color.
func Background(argb uint32, opaqueness int) color.RGBA {
	a := uint8(min(max(opaqueness, 0), 255))
	return color.RGBAModel.Convert(color.NRGBA{
		R: uint8(argb >> 16), G: uint8(argb >> 8), B: uint8(argb), A: a,
	}).(color.RGBA)
}

// Draw renders the ring onto s: background, grid, then free RAM, free
// virtual, free video and CPU, then the network chart below. Logical cells
// are stretched to the surface size.
func Draw(s Surface, r *ring.Ring, cfg *config.DisplayConfig) {
	w, h := s.Size()
	lw, lh := LogicalSize(cfg.Show.Net)
	c := canvas{s: s, w: w, h: h, lw: lw, lh: lh}

	s.FillRect(image.Rect(0, 0, w, h), Background(cfg.Colors.Background, cfg.Opaqueness))

	grid := RGB(cfg.Colors.Grid)
	if cfg.Show.Grid {
		c.grid(0, grid)
	}

	series := []struct {
		on    bool
		col   uint32
		value func(ring.Sample) uint8
	}{
		{cfg.Show.PublicMem, cfg.Colors.PublicMem, func(s ring.Sample) uint8 { return s.FreeRAM }},
		{cfg.Show.VirtualMem, cfg.Colors.VirtualMem, func(s ring.Sample) uint8 { return s.FreeVirtual }},
		{cfg.Show.VideoMem, cfg.Colors.VideoMem, func(s ring.Sample) uint8 { return s.FreeVideo }},
		{cfg.Show.CPU, cfg.Colors.CPU, func(s ring.Sample) uint8 { return s.CPU }},
	}
	for _, sr := range series {
		if sr.on {
			c.plot(r, sr.value, RGB(sr.col), cfg.Show.Solid)
		}
	}

	if cfg.Show.Net {
		if cfg.Show.Grid {
			c.grid(Height, grid)
		}
		c.plotNet(r, Height, RGB(cfg.Colors.Upload), RGB(cfg.Colors.Download))
	}
}

// canvas maps logical cells onto device rectangles.
type canvas struct {
	s      Surface
	w, h   int
	lw, lh int
}

// rect returns the device rectangle covering logical cells [x0,x1]×[y0,y1].
func (c canvas) rect(x0, y0, x1, y1 int) image.Rectangle {
	return image.Rect(
		x0*c.w/c.lw, y0*c.h/c.lh,
		(x1+1)*c.w/c.lw, (y1+1)*c.h/c.lh,
	)
}

func (c canvas) cell(x, y int, col color.RGBA) {
	r := c.rect(x, y, x, y)
	switch {
	case r.Empty():
	case r.Dx() == 1 && r.Dy() == 1:
		c.s.SetPixel(r.Min.X, r.Min.Y, col)
	default:
		c.s.FillRect(r, col)
	}
}

func (c canvas) hrun(x0, x1, y int, col color.RGBA) {
	r := c.rect(x0, y, x1, y)
	switch {
	case r.Empty():
	case r.Dy() == 1:
		c.s.HLine(r.Min.X, r.Max.X-1, r.Min.Y, col)
	default:
		c.s.FillRect(r, col)
	}
}

func (c canvas) vrun(x, y0, y1 int, col color.RGBA) {
	if y0 > y1 {
		return
	}
	r := c.rect(x, y0, x, y1)
	switch {
	case r.Empty():
	case r.Dx() == 1:
		c.s.VLine(r.Min.X, r.Min.Y, r.Max.Y-1, col)
	default:
		c.s.FillRect(r, col)
	}
}

// grid draws one chart's grid starting at logical row top.
func (c canvas) grid(top int, col color.RGBA) {
	for y := 0; y < Height; y += gridRows {
		c.hrun(0, Width-1, top+y, col)
	}
	for x := 0; x < Width; x += gridCols {
		c.vrun(x, top, top+Height-1, col)
	}
}

// plot draws one series, oldest sample on the left. In solid mode the rows
// between consecutive levels are filled.
func (c canvas) plot(r *ring.Ring, value func(ring.Sample) uint8, col color.RGBA, solid bool) {
	prev := value(r.Chrono(-1))
	for x := 0; x < Width; x++ {
		cur := value(r.Chrono(x))
		c.cell(x, row(cur), col)
		if solid && x > 0 && cur != prev {
			lo, hi := min(cur, prev), max(cur, prev)
			c.vrun(x, row(hi), row(lo), col)
		}
		prev = cur
	}
}

// plotNet draws upload above and download below the center row of the chart
// starting at logical row top, each at half scale.
func (c canvas) plotNet(r *ring.Ring, top int, ul, dl color.RGBA) {
	for x := 0; x < Width; x++ {
		s := r.Chrono(x)
		if up := int(s.Upload) / 2; up > 0 {
			c.vrun(x, top+center-up, top+center-1, ul)
		}
		if down := int(s.Download) / 2; down > 0 {
			c.vrun(x, top+center+1, top+center+down, dl)
		}
	}
}

func row(v uint8) int {
	return Height - 1 - int(min(v, 100))
}
