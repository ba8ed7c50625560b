package scene

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/ledring/internal/frame"
	"github.com/coreman2200/ledring/internal/hook"
	"github.com/coreman2200/ledring/internal/layout"
	"github.com/coreman2200/ledring/internal/surface"
)

type sceneSurface struct {
	updates []surface.SceneUpdate
	closed  bool
}

func (s *sceneSurface) Open(kind, _ string) (surface.Surface, error) {
	if kind != surface.Scene {
		return nil, surface.ErrUnsupportedKind
	}
	return s, nil
}
func (s *sceneSurface) Present(v any) error {
	s.updates = append(s.updates, v.(surface.SceneUpdate))
	return nil
}
func (s *sceneSurface) Close() error { s.closed = true; return nil }

func (s *sceneSurface) last() surface.SceneUpdate { return s.updates[len(s.updates)-1] }

func mountScene(t *testing.T, panels string) (*hook.Host, *Scene, *sceneSurface) {
	t.Helper()
	surf := &sceneSurface{}
	h := hook.NewHost(hook.Options{Surfaces: surf, Logger: zerolog.Nop()})
	sc := New(Options{})
	attrs := map[string]string{}
	if panels != "" {
		attrs["num-panels"] = panels
	}
	require.NoError(t, h.Mount("scene", hook.Element{ID: "viewer", Attrs: attrs}, sc))
	return h, sc, surf
}

func rgbEvent(t *testing.T, name string, data ...int) hook.Event {
	t.Helper()
	b, err := json.Marshal(map[string]any{"frame": frame.Frame{Kind: frame.RGB, Data: data}})
	require.NoError(t, err)
	return hook.Event{Name: name, Payload: b}
}

func TestMountDefaults(t *testing.T) {
	h, sc, surf := mountScene(t, "")
	assert.Equal(t, DefaultPanels, sc.Ring().NumPanels)
	assert.Equal(t, layout.DefaultDiameter, sc.Ring().Diameter)
	assert.Equal(t, layout.DefaultHeight, sc.Ring().Height)
	assert.Equal(t, DefaultStrength, sc.Strength())

	h.Tick(16 * time.Millisecond)
	require.Len(t, surf.updates, 1)
	u := surf.last()
	assert.Len(t, u.Textures, DefaultPanels, "every texture uploads once at start")
	require.NotNil(t, u.Layout)
	assert.Len(t, u.Layout.Panels, DefaultPanels)
	assert.InDelta(t, layout.PanelSize/2+layout.DefaultHeight, u.Layout.Panels[0].Position.Y, 1e-9)
	assert.Equal(t, 0.2, u.Strength)

	h.Tick(16 * time.Millisecond)
	assert.Len(t, surf.updates, 1, "idle ticks present nothing")
}

func TestFrameLandsInReversedSlot(t *testing.T) {
	h, sc, surf := mountScene(t, "2")
	h.Tick(time.Millisecond)

	h.Dispatch(rgbEvent(t, "frame:pixels-7", 255, 0, 0))
	assert.Equal(t, byte(0), sc.Atlas().Texture(1).Data[0], "sync waits for the tick")

	h.Tick(time.Millisecond)
	u := surf.last()
	require.Len(t, u.Textures, 1)
	assert.Equal(t, 1, u.Textures[0].Slot)
	assert.Equal(t, []byte{255, 0, 0, 255}, u.Textures[0].RGBA[:4])
	assert.Nil(t, u.Layout)
}

func TestFrameForOwnID(t *testing.T) {
	h, sc, _ := mountScene(t, "1")
	h.Dispatch(rgbEvent(t, "frame:viewer", 1, 2, 3))
	h.Tick(time.Millisecond)
	assert.Equal(t, [4]byte{1, 2, 3, 255}, [4]byte(sc.Atlas().Texture(0).Data[:4]))
}

func TestWhiteFrame(t *testing.T) {
	h, sc, _ := mountScene(t, "1")
	h.Dispatch(hook.Event{Name: "frame:pixels-1", Payload: json.RawMessage(`{"kind":"w","data":[128]}`)})
	h.Tick(time.Millisecond)
	assert.Equal(t, [4]byte{16, 128, 128, 255}, [4]byte(sc.Atlas().Texture(0).Data[:4]))
}

func TestBadFrameLeavesBufferUntouched(t *testing.T) {
	h, sc, _ := mountScene(t, "1")
	h.Dispatch(rgbEvent(t, "frame:pixels-1", 9, 9, 9))
	h.Tick(time.Millisecond)

	err := sc.OnEvent("frame:pixels-1", json.RawMessage(`{"frame":{"kind":"hsv","data":[1,2,3]}}`))
	require.ErrorIs(t, err, frame.ErrUnsupportedKind)
	err = sc.OnEvent("frame:pixels-1", json.RawMessage(`{"frame":{"kind":"rgb","data":[1,2]}}`))
	require.ErrorIs(t, err, frame.ErrInvalidFrameLength)

	h.Tick(time.Millisecond)
	assert.Equal(t, [4]byte{9, 9, 9, 255}, [4]byte(sc.Atlas().Texture(0).Data[:4]))
	assert.False(t, sc.frameDirty)
}

func TestParamPresenceSemantics(t *testing.T) {
	h, sc, surf := mountScene(t, "4")
	h.Tick(time.Millisecond)
	n := len(surf.updates)

	h.Dispatch(hook.Event{Name: "param:viewer", Payload: json.RawMessage(`{"param":{"move":[0,0]}}`)})
	h.Tick(time.Millisecond)
	assert.Len(t, surf.updates, n, "move alone with zero input changes nothing visible")

	h.Dispatch(hook.Event{Name: "param:viewer", Payload: json.RawMessage(`{"diameter":10,"pole_diameter":0.1}`)})
	assert.Equal(t, 10.0, sc.Ring().Diameter)
	assert.Equal(t, 0.1, sc.Ring().PoleDiameter)
	assert.Equal(t, layout.DefaultHeight, sc.Ring().Height)

	h.Tick(time.Millisecond)
	u := surf.last()
	require.NotNil(t, u.Layout)
	assert.InDelta(t, 5.0, u.Layout.Panels[0].Position.Z, 1e-9)
	assert.Len(t, u.Layout.Poles, 4)

	h.Dispatch(hook.Event{Name: "param:viewer", Payload: json.RawMessage(`{"param":{"diameter":0}}`)})
	assert.Equal(t, 0.0, sc.Ring().Diameter, "a present zero is applied")
}

func TestParamForOtherElementIgnored(t *testing.T) {
	h, sc, _ := mountScene(t, "")
	h.Dispatch(hook.Event{Name: "param:other", Payload: json.RawMessage(`{"diameter":3}`)})
	assert.Equal(t, layout.DefaultDiameter, sc.Ring().Diameter)
}

func TestMoveIsNormalized(t *testing.T) {
	h, sc, _ := mountScene(t, "")
	sc.Apply(SetMove{X: 1, Y: 1})
	h.Tick(500 * time.Millisecond)

	p := sc.Position()
	step := MoveSpeed * 0.5 / math.Sqrt2
	assert.InDelta(t, step, p.X, 1e-9)
	assert.InDelta(t, -step, p.Z, 1e-9)
	assert.Equal(t, 1.8, p.Y)

	sc.Apply(SetPosition{layout.Vec3{X: 1, Y: 2, Z: 3}}, SetMove{})
	h.Tick(time.Second)
	assert.Equal(t, layout.Vec3{X: 1, Y: 2, Z: 3}, sc.Position())
}

func TestStrengthUpdate(t *testing.T) {
	h, sc, surf := mountScene(t, "")
	h.Tick(time.Millisecond)
	sc.Apply(SetStrength{0.7})
	h.Tick(time.Millisecond)
	assert.Equal(t, 0.7, surf.last().Strength)
	assert.Empty(t, surf.last().Textures)
}

func TestUnmountClosesSurface(t *testing.T) {
	h, sc, surf := mountScene(t, "")
	require.NoError(t, h.Unmount(sc))
	assert.True(t, surf.closed)
}

func TestParamCommands(t *testing.T) {
	p, err := ParseParam([]byte(`{"height":1.2,"position":[1,2,3],"strength":0}`))
	require.NoError(t, err)
	assert.True(t, p.Geometry())
	assert.Equal(t, []Command{
		SetHeight{1.2},
		SetPosition{layout.Vec3{X: 1, Y: 2, Z: 3}},
		SetStrength{0},
	}, p.Commands())

	p, err = ParseParam([]byte(`{"param":{"move":[1,0]}}`))
	require.NoError(t, err)
	assert.False(t, p.Geometry())

	_, err = ParseParam([]byte(`nope`))
	assert.Error(t, err)
}
