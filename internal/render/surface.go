package render

import (
	"image"
	"image/color"
	"image/draw"
)

// Surface is a pixel target. Coordinates are in device pixels; runs are
// inclusive of both ends and clipped by the implementation.
type Surface interface {
	Size() (w, h int)
	SetPixel(x, y int, c color.RGBA)
	HLine(x0, x1, y int, c color.RGBA)
	VLine(x, y0, y1 int, c color.RGBA)
	FillRect(r image.Rectangle, c color.RGBA)
}

// ImageSurface draws into an *image.RGBA.
type ImageSurface struct {
	img *image.RGBA
}

// NewImageSurface allocates a w×h surface. Sizes below 1 are raised to 1.
func NewImageSurface(w, h int) *ImageSurface {
	return &ImageSurface{img: image.NewRGBA(image.Rect(0, 0, max(w, 1), max(h, 1)))}
}

// Image returns the backing image. It is overwritten by the next draw.
func (s *ImageSurface) Image() *image.RGBA {
	return s.img
}

// Resize reallocates the backing image when the size changed.
func (s *ImageSurface) Resize(w, h int) {
	w, h = max(w, 1), max(h, 1)
	if cw, ch := s.Size(); cw == w && ch == h {
		return
	}
	s.img = image.NewRGBA(image.Rect(0, 0, w, h))
}

// Snapshot returns a copy of the current frame.
func (s *ImageSurface) Snapshot() *image.RGBA {
	out := image.NewRGBA(s.img.Rect)
	copy(out.Pix, s.img.Pix)
	return out
}

func (s *ImageSurface) Size() (int, int) {
	b := s.img.Bounds()
	return b.Dx(), b.Dy()
}

func (s *ImageSurface) SetPixel(x, y int, c color.RGBA) {
	s.img.SetRGBA(x, y, c)
}

func (s *ImageSurface) HLine(x0, x1, y int, c color.RGBA) {
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	s.FillRect(image.Rect(x0, y, x1+1, y+1), c)
}

func (s *ImageSurface) VLine(x, y0, y1 int, c color.RGBA) {
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	s.FillRect(image.Rect(x, y0, x+1, y1+1), c)
}

func (s *ImageSurface) FillRect(r image.Rectangle, c color.RGBA) {
	draw.Draw(s.img, r.Intersect(s.img.Bounds()), image.NewUniform(c), image.Point{}, draw.Src)
}
