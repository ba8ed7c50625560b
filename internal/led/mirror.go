package led

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreman2200/ledring/internal/diagnostics"
	"github.com/coreman2200/ledring/internal/layout"
	"github.com/coreman2200/ledring/internal/surface"
	"github.com/coreman2200/ledring/internal/texture"
)

// MirrorOptions configure a Mirror.
type MirrorOptions struct {
	NumPanels int
	FPS       int
	// WhiteCap limits per-LED brightness, see ApplyWhiteCap.
	WhiteCap  float64
	// LimitAmps caps the estimated strip current, see ApplyBudget.
	LimitAmps float64
	// Luminance scales every channel by Luminance/255; zero means 255.
	Luminance uint8
	Diag      diagnostics.Sink
	Logger    zerolog.Logger
}

// Mirror is a scene surface provider that copies panel textures onto the
// LED strip. Until the first frame arrives it shows a rainbow test frame.
type Mirror struct {
	opts MirrorOptions
	log  zerolog.Logger
	drv  Driver
	grid layout.Layout

	mu      sync.Mutex
	panels  [][]byte
	live    bool
	runner  *Runner
	frameID uint64
	rgb     []byte
}

func NewMirror(drv Driver, opts MirrorOptions) *Mirror {
	if opts.FPS <= 0 {
		opts.FPS = 60
	}
	if opts.Luminance == 0 {
		opts.Luminance = 255
	}
	if opts.Diag == nil {
		opts.Diag = diagnostics.Discard{}
	}
	grid := layout.PanelGrid(opts.NumPanels)
	panels := make([][]byte, opts.NumPanels)
	for i := range panels {
		panels[i] = make([]byte, texture.Cells*3)
	}
	return &Mirror{
		opts:   opts,
		log:    opts.Logger.With().Str("component", "led").Logger(),
		drv:    drv,
		grid:   grid,
		panels: panels,
		rgb:    make([]byte, grid.Count()*3),
	}
}

// Open implements surface.Provider for the scene kind only.
func (m *Mirror) Open(kind, _ string) (surface.Surface, error) {
	if kind != surface.Scene {
		return nil, surface.ErrUnsupportedKind
	}
	return &mirrorSurface{m: m}, nil
}

type mirrorSurface struct {
	m      *Mirror
	closed bool
}

func (s *mirrorSurface) Present(v any) error {
	if s.closed {
		return surface.ErrClosed
	}
	u, ok := v.(surface.SceneUpdate)
	if !ok {
		return nil
	}
	s.m.apply(u)
	return nil
}

func (s *mirrorSurface) Close() error {
	s.closed = true
	return nil
}

func (m *Mirror) apply(u surface.SceneUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.Frames > 0 {
		m.live = true
	}
	for _, t := range u.Textures {
		panel := u.NumPanels - t.Slot - 1
		if panel < 0 || panel >= len(m.panels) || len(t.RGBA) < texture.Cells*texture.Stride {
			continue
		}
		dst := m.panels[panel]
		for j := 0; j < texture.Cells; j++ {
			copy(dst[j*3:j*3+3], t.RGBA[j*texture.Stride:j*texture.Stride+3])
		}
	}
}

// RunTest starts an LED test, replacing any running one.
func (m *Mirror) RunTest(name string) error {
	t, err := ParseTest(name)
	if err != nil {
		m.opts.Diag.PushDiag(diagnostics.Diagnostic{
			Severity: diagnostics.Warn,
			Code:     diagnostics.TestUnknown,
			Summary:  "Unknown test name",
			Evidence: map[string]any{"name": name},
			At:       time.Now(),
		})
		return err
	}
	m.mu.Lock()
	m.runner = NewRunner(t)
	m.mu.Unlock()
	m.opts.Diag.PushDiag(diagnostics.Diagnostic{
		Severity: diagnostics.Info,
		Code:     diagnostics.TestRunning,
		Summary:  "Running test",
		Detail:   name,
		At:       time.Now(),
	})
	return nil
}

// Run writes one strip frame per tick until ctx is done.
func (m *Mirror) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(m.opts.FPS))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := m.Step(); err != nil {
				m.log.Debug().Err(err).Msg("write frame")
			}
		}
	}
}

// Step composes the next strip frame and writes it to the driver.
func (m *Mirror) Step() error {
	m.mu.Lock()
	switch {
	case m.runner != nil:
		if !m.runner.Step(m.grid, m.rgb) {
			name := m.runner.Test()
			m.runner = nil
			m.compose()
			m.opts.Diag.PushDiag(diagnostics.Diagnostic{
				Severity: diagnostics.Info,
				Code:     diagnostics.TestDone,
				Summary:  "Test complete",
				Detail:   string(name),
				At:       time.Now(),
			})
		}
	default:
		m.compose()
	}
	Dim(m.rgb, m.opts.Luminance)
	ApplyWhiteCap(m.rgb, m.opts.WhiteCap)
	ApplyBudget(m.rgb, m.opts.LimitAmps, 0.9)
	m.frameID++
	buf := append([]byte(nil), m.rgb...)
	m.mu.Unlock()

	return m.drv.Write(buf)
}

// FrameID is the number of strip frames composed.
func (m *Mirror) FrameID() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frameID
}

func (m *Mirror) compose() {
	if !m.live {
		Rainbow(m.grid, m.rgb)
		return
	}
	for z, px := range m.panels {
		for j := 0; j < texture.Cells; j++ {
			i := m.grid.Index(j%texture.Width, j/texture.Width, z)
			copy(m.rgb[i*3:i*3+3], px[j*3:j*3+3])
		}
	}
}

func (m *Mirror) Close() error { return m.drv.Close() }
