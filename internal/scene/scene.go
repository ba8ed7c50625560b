// Package scene keeps the state behind the 3D panel ring view: panel
// textures, ring layout and the first-person viewer.
package scene

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreman2200/ledring/internal/frame"
	"github.com/coreman2200/ledring/internal/hook"
	"github.com/coreman2200/ledring/internal/layout"
	"github.com/coreman2200/ledring/internal/metrics"
	"github.com/coreman2200/ledring/internal/surface"
	"github.com/coreman2200/ledring/internal/texture"
)

const (
	DefaultPanels   = 10
	DefaultStrength = 0.2
	// MoveSpeed is the viewer speed in scene units per second.
	MoveSpeed = 4.0
)

// EyeHeight is where the viewer starts.
var EyeHeight = layout.Vec3{Y: 1.8}

// Options seed the ring geometry before any param event arrives.
type Options struct {
	Ring    layout.Ring
	Metrics *metrics.Collector
}

// Scene is the Pixels3D hook.
type Scene struct {
	opts Options
	log  zerolog.Logger
	id   string
	surf surface.Surface

	ring            layout.Ring
	pixels          *texture.PixelBuffer
	atlas           *texture.Atlas
	move            [2]float64
	position        layout.Vec3
	strength        float64
	frames          uint64
	frameDirty      bool
	layoutChanged   bool
	viewerChanged   bool
	strengthChanged bool
}

var _ interface {
	hook.Hook
	hook.Ticker
} = (*Scene)(nil)

func New(opts Options) *Scene {
	if opts.Ring.Diameter == 0 {
		opts.Ring.Diameter = layout.DefaultDiameter
	}
	if opts.Ring.Height == 0 {
		opts.Ring.Height = layout.DefaultHeight
	}
	return &Scene{opts: opts}
}

func (s *Scene) OnMount(m *hook.Mount) error {
	s.log = m.Logger()
	s.id = m.Element().ID
	n := m.Element().IntAttr("num-panels", DefaultPanels)

	s.ring = s.opts.Ring
	s.ring.NumPanels = n
	s.pixels = texture.NewPixelBuffer(n)
	s.atlas = texture.NewAtlas(n)
	s.position = EyeHeight
	s.strength = DefaultStrength
	s.layoutChanged, s.viewerChanged, s.strengthChanged = true, true, true

	surf, err := m.Open(surface.Scene)
	if err != nil {
		return err
	}
	s.surf = surf
	m.Subscribe("param:"+s.id, "frame:"+s.id, "frame:pixels-*")
	s.log.Info().Int("panels", n).Float64("diameter", s.ring.Diameter).Msg("scene mounted")
	return nil
}

func (s *Scene) OnUnmount() error {
	if s.surf == nil {
		return nil
	}
	err := s.surf.Close()
	s.surf = nil
	return err
}

func (s *Scene) OnEvent(name string, payload json.RawMessage) error {
	if name == "param:"+s.id {
		p, err := ParseParam(payload)
		if err != nil {
			return err
		}
		s.Apply(p.Commands()...)
		return nil
	}

	f, err := frame.Parse(payload)
	if err != nil {
		s.opts.Metrics.FrameRejected("malformed")
		return err
	}
	px, err := frame.Decode(f)
	if err != nil {
		s.opts.Metrics.FrameRejected(rejectReason(err))
		return fmt.Errorf("%s: %w", name, err)
	}
	s.opts.Metrics.FrameDecoded(string(f.Kind))
	s.Apply(NewFrame{Pixels: px})
	return nil
}

// Apply runs commands in order.
func (s *Scene) Apply(cmds ...Command) {
	for _, c := range cmds {
		c.apply(s)
	}
}

// Ring returns the current geometry.
func (s *Scene) Ring() layout.Ring { return s.ring }

func (s *Scene) Position() layout.Vec3 { return s.position }

func (s *Scene) Strength() float64 { return s.strength }

// Atlas exposes the panel textures. Callers must stay on the host thread.
func (s *Scene) Atlas() *texture.Atlas { return s.atlas }

// Tick advances the viewer, syncs textures after a new frame and presents
// whatever changed.
func (s *Scene) Tick(dt time.Duration) {
	s.step(dt.Seconds())
	if s.frameDirty {
		s.atlas.Sync(s.pixels)
		s.frameDirty = false
	}

	u := surface.SceneUpdate{ID: s.id, NumPanels: s.ring.NumPanels, Frames: s.frames, Strength: s.strength}
	for _, slot := range s.atlas.Dirty() {
		data := s.atlas.Texture(slot).Data
		u.Textures = append(u.Textures, surface.TextureUpload{Slot: slot, RGBA: append([]byte(nil), data[:]...)})
	}
	if s.layoutChanged {
		l := s.ring.Compute()
		u.Layout = &l
	}
	if s.viewerChanged {
		u.Viewer = &surface.Viewer{Position: s.position, Move: s.move}
	}
	if len(u.Textures) == 0 && u.Layout == nil && u.Viewer == nil && !s.strengthChanged {
		return
	}
	s.layoutChanged, s.viewerChanged, s.strengthChanged = false, false, false

	if s.surf == nil {
		return
	}
	if err := s.surf.Present(u); err != nil {
		s.log.Warn().Err(err).Msg("present failed")
		return
	}
	s.opts.Metrics.TexturesUploaded(len(u.Textures))
}

// step moves the viewer along the ground. Forward is -Z and right is +X;
// the input is normalized so diagonals are not faster.
func (s *Scene) step(sec float64) {
	x, y := s.move[0], s.move[1]
	l := math.Hypot(x, y)
	if l == 0 || sec <= 0 {
		return
	}
	d := MoveSpeed * sec / l
	s.position.X += x * d
	s.position.Z -= y * d
	s.viewerChanged = true
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, frame.ErrUnsupportedKind):
		return "unsupported_kind"
	case errors.Is(err, frame.ErrInvalidFrameLength):
		return "invalid_length"
	default:
		return "malformed"
	}
}
