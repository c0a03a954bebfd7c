package geometry

import "sync"

// Registry caches the PlotMeta of the pixels currently on screen, one slot per
// frame plus a single fullscreen slot.
type Registry struct {
	mu         sync.RWMutex
	frames     map[string]PlotMeta
	fullscreen *PlotMeta
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{frames: make(map[string]PlotMeta)}
}

// Store records the transform used by the latest draw.
func (r *Registry) Store(meta PlotMeta, fullscreen bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fullscreen {
		m := meta
		r.fullscreen = &m
		return
	}
	r.frames[meta.FrameID] = meta
}

// Lookup returns the cached transform for frameID, or the fullscreen slot.
func (r *Registry) Lookup(frameID string, fullscreen bool) (PlotMeta, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if fullscreen {
		if r.fullscreen == nil {
			return PlotMeta{}, false
		}
		if frameID != "" && r.fullscreen.FrameID != frameID {
			return PlotMeta{}, false
		}
		return *r.fullscreen, true
	}
	meta, ok := r.frames[frameID]
	return meta, ok
}

// Drop forgets a frame's transform, e.g. after it is deactivated.
func (r *Registry) Drop(frameID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.frames, frameID)
	if r.fullscreen != nil && r.fullscreen.FrameID == frameID {
		r.fullscreen = nil
	}
}

// Reset clears every slot.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = make(map[string]PlotMeta)
	r.fullscreen = nil
}
