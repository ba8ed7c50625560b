// Package surface describes the draw targets hooks render into: a browser
// scene, a chart instance, a physical LED strip.
package surface

import (
	"errors"
	"fmt"
)

// Kinds a hook may ask for.
const (
	Scene = "scene"
	Chart = "chart"
)

var (
	ErrUnsupportedKind = errors.New("surface kind not supported")
	ErrClosed          = errors.New("surface closed")
)

// Surface is an acquired draw target. Close releases it; calling Close more
// than once is allowed.
type Surface interface {
	Present(v any) error
	Close() error
}

// Provider hands out surfaces to mounted hooks.
type Provider interface {
	Open(kind, id string) (Surface, error)
}

// Multi opens a surface on every provider that supports the kind and
// presents to all of them. Providers answering ErrUnsupportedKind are
// skipped; if none accept, Open fails with ErrUnsupportedKind.
type Multi []Provider

func (m Multi) Open(kind, id string) (Surface, error) {
	var tee teeSurface
	for _, p := range m {
		if p == nil {
			continue
		}
		s, err := p.Open(kind, id)
		if errors.Is(err, ErrUnsupportedKind) {
			continue
		}
		if err != nil {
			_ = tee.Close()
			return nil, fmt.Errorf("open %s surface: %w", kind, err)
		}
		tee = append(tee, s)
	}
	if len(tee) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}
	return tee, nil
}

type teeSurface []Surface

func (t teeSurface) Present(v any) error {
	var errs []error
	for _, s := range t {
		if err := s.Present(v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t teeSurface) Close() error {
	var errs []error
	for _, s := range t {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
