package led

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/ledring/internal/diagnostics"
	"github.com/coreman2200/ledring/internal/layout"
	"github.com/coreman2200/ledring/internal/surface"
	"github.com/coreman2200/ledring/internal/texture"
)

type diagLog struct {
	mu sync.Mutex
	d  []diagnostics.Diagnostic
}

func (l *diagLog) PushDiag(d diagnostics.Diagnostic) {
	l.mu.Lock()
	l.d = append(l.d, d)
	l.mu.Unlock()
}

func (l *diagLog) codes() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, d := range l.d {
		out = append(out, d.Code)
	}
	return out
}

func newMirror(t *testing.T, panels int, diag diagnostics.Sink) (*Mirror, *SimDriver) {
	t.Helper()
	sim := NewSim(panels*texture.Cells, zerolog.Nop())
	return NewMirror(sim, MirrorOptions{NumPanels: panels, Diag: diag, Logger: zerolog.Nop()}), sim
}

func solid(r, g, b byte) []byte {
	out := make([]byte, texture.Cells*texture.Stride)
	for j := 0; j < texture.Cells; j++ {
		out[j*4], out[j*4+1], out[j*4+2], out[j*4+3] = r, g, b, 255
	}
	return out
}

func TestMirrorOnlyServesScenes(t *testing.T) {
	m, _ := newMirror(t, 1, nil)
	_, err := m.Open(surface.Chart, "c")
	assert.ErrorIs(t, err, surface.ErrUnsupportedKind)
	s, err := m.Open(surface.Scene, "v")
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Present(surface.SceneUpdate{}), surface.ErrClosed)
}

func TestMirrorShowsRainbowUntilFirstFrame(t *testing.T) {
	m, sim := newMirror(t, 2, nil)
	s, err := m.Open(surface.Scene, "v")
	require.NoError(t, err)

	require.NoError(t, s.Present(surface.SceneUpdate{NumPanels: 2, Textures: []surface.TextureUpload{
		{Slot: 0, RGBA: solid(0, 0, 0)}, {Slot: 1, RGBA: solid(0, 0, 0)},
	}}))
	require.NoError(t, m.Step())
	assert.Equal(t, []byte{255, 0, 0}, sim.Last()[:3])

	require.NoError(t, s.Present(surface.SceneUpdate{NumPanels: 2, Frames: 1, Textures: []surface.TextureUpload{
		{Slot: 0, RGBA: solid(0, 0, 9)}, {Slot: 1, RGBA: solid(7, 0, 0)},
	}}))
	require.NoError(t, m.Step())
	last := sim.Last()
	// slot 1 holds panel 0, slot 0 holds panel 1
	assert.Equal(t, []byte{7, 0, 0}, last[:3])
	assert.Equal(t, []byte{0, 0, 9}, last[64*3:64*3+3])
	assert.Equal(t, uint64(2), m.FrameID())
}

func TestMirrorSerpentine(t *testing.T) {
	m, sim := newMirror(t, 1, nil)
	s, _ := m.Open(surface.Scene, "v")
	tex := make([]byte, texture.Cells*texture.Stride)
	tex[8*4] = 200 // x=0, y=1
	require.NoError(t, s.Present(surface.SceneUpdate{NumPanels: 1, Frames: 1, Textures: []surface.TextureUpload{{Slot: 0, RGBA: tex}}}))
	require.NoError(t, m.Step())

	want := layout.PanelGrid(1).Index(0, 1, 0)
	assert.Equal(t, 15, want)
	assert.Equal(t, byte(200), sim.Last()[want*3])
}

func TestMirrorRunsTests(t *testing.T) {
	diag := &diagLog{}
	m, sim := newMirror(t, 1, diag)

	assert.Error(t, m.RunTest("strobe"))
	require.NoError(t, m.RunTest(string(IndexSweep)))

	for i := 0; i < texture.Cells; i++ {
		require.NoError(t, m.Step())
		assert.Equal(t, byte(255), sim.Last()[i*3])
	}
	require.NoError(t, m.Step())
	assert.Equal(t, []string{diagnostics.TestUnknown, diagnostics.TestRunning, diagnostics.TestDone}, diag.codes())
	// back to the idle frame
	assert.Equal(t, []byte{255, 0, 0}, sim.Last()[:3])
}
