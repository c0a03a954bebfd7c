package render

import (
	"image"
	"sync"
)

// Surfaces maps frame ids to their raster surfaces. Sizes only change through
// Resize.
type Surfaces struct {
	mu     sync.Mutex
	width  int
	height int
	byID   map[string]*image.RGBA
}

// NewSurfaces creates a registry whose new surfaces are w×h.
func NewSurfaces(w, h int) *Surfaces {
	return &Surfaces{width: max(w, 1), height: max(h, 1), byID: make(map[string]*image.RGBA)}
}

// Acquire returns the surface for id, allocating it at the default size.
func (s *Surfaces) Acquire(id string) *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	img, ok := s.byID[id]
	if !ok {
		img = image.NewRGBA(image.Rect(0, 0, s.width, s.height))
		s.byID[id] = img
	}
	return img
}

// Get returns the surface for id if one exists.
func (s *Surfaces) Get(id string) (*image.RGBA, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img, ok := s.byID[id]
	return img, ok
}

// Resize reallocates id's surface when its size differs. It reports whether
// a new surface was allocated.
func (s *Surfaces) Resize(id string, w, h int) bool {
	w, h = max(w, 1), max(h, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if img, ok := s.byID[id]; ok && img.Bounds().Dx() == w && img.Bounds().Dy() == h {
		return false
	}
	s.byID[id] = image.NewRGBA(image.Rect(0, 0, w, h))
	return true
}

// SetDefaultSize changes the size used by Acquire for new surfaces.
func (s *Surfaces) SetDefaultSize(w, h int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.width, s.height = max(w, 1), max(h, 1)
}

// Drop releases id's surface.
func (s *Surfaces) Drop(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
}
