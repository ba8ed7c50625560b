// Package hook runs view components against a server-push event stream.
// A Host owns one logical thread: events, render ticks and lifecycle calls
// never run concurrently with each other.
package hook

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreman2200/ledring/internal/surface"
)

var (
	ErrNoSurface      = errors.New("no draw surface available")
	ErrAlreadyMounted = errors.New("hook already mounted")
	ErrNotMounted     = errors.New("hook not mounted")
)

// Hook is the lifecycle a view component implements.
type Hook interface {
	OnMount(m *Mount) error
	OnUnmount() error
	OnEvent(name string, payload json.RawMessage) error
}

// Ticker is implemented by hooks that do work on every render tick.
type Ticker interface {
	Tick(dt time.Duration)
}

// Event is one message from the server: a name and its JSON payload.
type Event struct {
	Name    string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Element is the host-page element a hook is attached to.
type Element struct {
	ID    string
	Attrs map[string]string
}

// IntAttr parses a numeric attribute, returning def when it is missing,
// malformed or not positive.
func (e Element) IntAttr(name string, def int) int {
	v, ok := e.Attrs[name]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// Mount is the context handed to OnMount.
type Mount struct {
	name     string
	el       Element
	hook     Hook
	log      zerolog.Logger
	surfaces surface.Provider
	patterns []string
	inert    bool
}

func (m *Mount) Name() string           { return m.name }
func (m *Mount) Element() Element       { return m.el }
func (m *Mount) Logger() zerolog.Logger { return m.log }

// Subscribe registers event name patterns. Patterns use path.Match syntax,
// so "frame:pixels-*" matches "frame:pixels-3".
func (m *Mount) Subscribe(patterns ...string) {
	m.patterns = append(m.patterns, patterns...)
}

// Open acquires a draw surface. The hook owns it and must Close it in
// OnUnmount.
func (m *Mount) Open(kind string) (surface.Surface, error) {
	if m.surfaces == nil {
		return nil, ErrNoSurface
	}
	s, err := m.surfaces.Open(kind, m.el.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoSurface, err)
	}
	return s, nil
}

func (m *Mount) matches(event string) bool {
	if m.inert {
		return false
	}
	for _, p := range m.patterns {
		if p == event {
			return true
		}
		if ok, err := path.Match(p, event); err == nil && ok {
			return true
		}
	}
	return false
}
