package ws

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/coreman2200/ledring/internal/surface"
)

// Envelope is what /surface clients receive for each presented update.
type Envelope struct {
	Kind   string `json:"kind"`
	ID     string `json:"id"`
	Update any    `json:"update"`
}

type hubSurface struct {
	h    *Hub
	kind string
	id   string

	mu     sync.Mutex
	closed bool
	scene  *surface.SceneUpdate
	slots  map[int]surface.TextureUpload
	chart  *surface.ChartUpdate
}

// Open implements surface.Provider. Each kind/id pair has at most one open
// surface.
func (h *Hub) Open(kind, id string) (surface.Surface, error) {
	if kind != surface.Scene && kind != surface.Chart {
		return nil, surface.ErrUnsupportedKind
	}
	key := kind + ":" + id
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.surfaces[key]; ok {
		return nil, fmt.Errorf("surface %s already open", key)
	}
	s := &hubSurface{h: h, kind: kind, id: id, slots: map[int]surface.TextureUpload{}}
	h.surfaces[key] = s
	h.opts.Metrics.SurfaceOpened()
	return s, nil
}

func (s *hubSurface) Present(v any) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return surface.ErrClosed
	}
	s.merge(v)
	s.mu.Unlock()

	b, err := json.Marshal(Envelope{Kind: s.kind, ID: s.id, Update: v})
	if err != nil {
		return fmt.Errorf("encode %s update: %w", s.kind, err)
	}
	s.h.broadcast(b)
	return nil
}

func (s *hubSurface) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.h.mu.Lock()
	delete(s.h.surfaces, s.kind+":"+s.id)
	s.h.mu.Unlock()
	s.h.opts.Metrics.SurfaceClosed()
	return nil
}

// merge folds an update into the state sent to clients that connect later.
func (s *hubSurface) merge(v any) {
	switch u := v.(type) {
	case surface.SceneUpdate:
		if s.scene == nil {
			s.scene = &surface.SceneUpdate{}
		}
		for _, t := range u.Textures {
			s.slots[t.Slot] = t
		}
		s.scene.ID, s.scene.NumPanels, s.scene.Frames, s.scene.Strength = u.ID, u.NumPanels, u.Frames, u.Strength
		if u.Layout != nil {
			s.scene.Layout = u.Layout
		}
		if u.Viewer != nil {
			s.scene.Viewer = u.Viewer
		}
	case surface.ChartUpdate:
		s.chart = &u
	}
}

// snapshot encodes the merged state, or nil when nothing was presented.
// The caller holds h.mu.
func (s *hubSurface) snapshot() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	var v any
	switch {
	case s.scene != nil:
		u := *s.scene
		u.Textures = make([]surface.TextureUpload, 0, len(s.slots))
		for _, t := range s.slots {
			u.Textures = append(u.Textures, t)
		}
		sort.Slice(u.Textures, func(i, j int) bool { return u.Textures[i].Slot < u.Textures[j].Slot })
		v = u
	case s.chart != nil:
		v = *s.chart
	default:
		return nil
	}
	b, err := json.Marshal(Envelope{Kind: s.kind, ID: s.id, Update: v})
	if err != nil {
		return nil
	}
	return b
}
