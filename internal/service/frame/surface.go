package frame

import (
	"image"
	"image/color"
	"sync"

	"github.com/fogleman/gg"
	"golang.org/x/image/draw"
)

// Surface is the overlay drawing buffer. It is sized to the viewer's rendered
// video size, not the camera's native resolution.
//
// Two sizes are tracked: natural is captured when stream metadata arrives and
// bounds Clear; current follows layout changes and is the buffer size.
type Surface struct {
	mu      sync.Mutex
	img     *image.RGBA
	dc      *gg.Context
	natural image.Point
}

func NewSurface() *Surface {
	s := &Surface{}
	s.allocate(image.Point{})
	return s
}

func (s *Surface) allocate(size image.Point) {
	s.img = image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	s.dc = gg.NewContextForRGBA(s.img)
}

// OnMetadata is called when a camera stream reports its rendered dimensions.
// Both the natural and the current size are re-derived from it.
func (s *Surface) OnMetadata(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.natural = image.Pt(width, height)
	s.resizeLocked(width, height)
}

// Resize follows a layout change of the viewer. Like assigning a canvas its
// width/height, a size change discards the current contents.
func (s *Surface) Resize(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resizeLocked(width, height)
}

func (s *Surface) resizeLocked(width, height int) {
	if width < 0 || height < 0 {
		return
	}
	if s.img.Rect.Dx() == width && s.img.Rect.Dy() == height {
		return
	}
	s.allocate(image.Pt(width, height))
}

// Size is the current buffer size.
func (s *Surface) Size() image.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.img.Rect.Size()
}

// NaturalSize is the size captured at the last metadata event.
func (s *Surface) NaturalSize() image.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.natural
}

// Ready reports whether the surface has a drawable area.
func (s *Surface) Ready() bool {
	size := s.Size()
	return size.X > 0 && size.Y > 0
}

// DrawFrame scales src over the whole surface. With mirror set the frame is
// flipped horizontally; the flip is scoped to this draw and the context's
// transform is restored before returning.
func (s *Surface) DrawFrame(src image.Image, mirror bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	size := s.img.Rect.Size()
	frame := src
	if src.Bounds().Size() != size {
		scaled := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
		draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), src, src.Bounds(), draw.Src, nil)
		frame = scaled
	} else if src.Bounds().Min != (image.Point{}) {
		shifted := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
		draw.Draw(shifted, shifted.Bounds(), src, src.Bounds().Min, draw.Src)
		frame = shifted
	}

	s.dc.Push()
	if mirror {
		s.dc.ScaleAbout(-1, 1, float64(size.X)/2, float64(size.Y)/2)
	}
	s.dc.DrawImage(frame, 0, 0)
	s.dc.Pop()
}

// Clear makes the rectangle (0,0)-(natural) fully transparent.
func (s *Surface) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := image.Rectangle{Max: s.natural}.Intersect(s.img.Rect)
	draw.Draw(s.img, r, image.Transparent, image.Point{}, draw.Src)
}

// Draw runs fn with exclusive access to the drawing context. Any transform
// fn applies is discarded afterwards.
func (s *Surface) Draw(fn func(dc *gg.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dc.Push()
	fn(s.dc)
	s.dc.Pop()
}

// Snapshot returns a copy of the current pixels.
func (s *Surface) Snapshot() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := image.NewRGBA(s.img.Rect)
	copy(out.Pix, s.img.Pix)
	return out
}

// At reads one pixel.
func (s *Surface) At(x, y int) color.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.img.RGBAAt(x, y)
}
