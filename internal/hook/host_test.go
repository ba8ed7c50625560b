package hook

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/ledring/internal/diagnostics"
	"github.com/coreman2200/ledring/internal/surface"
)

type fakeHook struct {
	mu        sync.Mutex
	subscribe []string
	mountErr  error
	eventErr  error
	panicOn   string
	surface   string

	mount    *Mount
	opened   surface.Surface
	events   []string
	ticks    int
	unmounts int
}

func (f *fakeHook) OnMount(m *Mount) error {
	f.mount = m
	if f.mountErr != nil {
		return f.mountErr
	}
	if f.surface != "" {
		s, err := m.Open(f.surface)
		if err != nil {
			return err
		}
		f.opened = s
	}
	m.Subscribe(f.subscribe...)
	return nil
}

func (f *fakeHook) OnUnmount() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unmounts++
	if f.opened != nil {
		return f.opened.Close()
	}
	return nil
}

func (f *fakeHook) OnEvent(name string, _ json.RawMessage) error {
	if name == f.panicOn {
		panic("bad payload")
	}
	f.mu.Lock()
	f.events = append(f.events, name)
	f.mu.Unlock()
	return f.eventErr
}

func (f *fakeHook) Tick(time.Duration) {
	f.mu.Lock()
	f.ticks++
	f.mu.Unlock()
}

func (f *fakeHook) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

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

type countingProvider struct {
	mu   sync.Mutex
	open int
}

func (p *countingProvider) Open(kind, _ string) (surface.Surface, error) {
	if kind != surface.Chart {
		return nil, surface.ErrUnsupportedKind
	}
	p.mu.Lock()
	p.open++
	p.mu.Unlock()
	return &countingSurface{p: p}, nil
}

type countingSurface struct{ p *countingProvider }

func (s *countingSurface) Present(any) error { return nil }
func (s *countingSurface) Close() error {
	s.p.mu.Lock()
	s.p.open--
	s.p.mu.Unlock()
	return nil
}

func newHost(p surface.Provider, d diagnostics.Sink) *Host {
	return NewHost(Options{FPS: 1000, Surfaces: p, Diag: d, Logger: zerolog.Nop()})
}

func TestDispatchMatchesPatterns(t *testing.T) {
	h := newHost(nil, nil)
	hk := &fakeHook{subscribe: []string{"param:viewer", "frame:viewer", "frame:pixels-*"}}
	require.NoError(t, h.Mount("scene", Element{ID: "viewer"}, hk))

	for _, name := range []string{"frame:pixels-1", "param:other", "frame:viewer", "proximity-data", "param:viewer"} {
		h.Dispatch(Event{Name: name})
	}
	assert.Equal(t, []string{"frame:pixels-1", "frame:viewer", "param:viewer"}, hk.seen())
}

func TestEventErrorAbortsOnlyThatEvent(t *testing.T) {
	diag := &diagLog{}
	h := newHost(nil, diag)
	bad := &fakeHook{subscribe: []string{"x"}, eventErr: errors.New("decode")}
	good := &fakeHook{subscribe: []string{"x"}}
	require.NoError(t, h.Mount("bad", Element{ID: "a"}, bad))
	require.NoError(t, h.Mount("good", Element{ID: "b"}, good))

	h.Dispatch(Event{Name: "x"})
	h.Dispatch(Event{Name: "x"})

	assert.Len(t, good.seen(), 2)
	assert.Equal(t, []string{diagnostics.EventFailed, diagnostics.EventFailed}, diag.codes())
}

func TestPanicIsRecovered(t *testing.T) {
	diag := &diagLog{}
	h := newHost(nil, diag)
	hk := &fakeHook{subscribe: []string{"*"}, panicOn: "boom"}
	require.NoError(t, h.Mount("scene", Element{ID: "a"}, hk))

	assert.NotPanics(t, func() { h.Dispatch(Event{Name: "boom"}) })
	h.Dispatch(Event{Name: "ok"})

	assert.Equal(t, []string{"ok"}, hk.seen())
	assert.Contains(t, diag.codes(), diagnostics.HookPanicked)
}

func TestMissingSurfaceLeavesHookInert(t *testing.T) {
	diag := &diagLog{}
	h := newHost(nil, diag)
	hk := &fakeHook{subscribe: []string{"*"}, surface: surface.Chart}

	err := h.Mount("chart", Element{ID: "c"}, hk)
	require.ErrorIs(t, err, ErrNoSurface)
	assert.Equal(t, 1, h.Mounted())

	h.Dispatch(Event{Name: "proximity-data"})
	h.Tick(time.Millisecond)
	assert.Empty(t, hk.seen())
	assert.Zero(t, hk.ticks)
	assert.Equal(t, []string{diagnostics.HookInert}, diag.codes())
}

func TestRepeatedMountDoesNotLeakSurfaces(t *testing.T) {
	p := &countingProvider{}
	h := newHost(p, nil)
	for i := 0; i < 5; i++ {
		hk := &fakeHook{surface: surface.Chart}
		require.NoError(t, h.Mount("chart", Element{ID: "c"}, hk))
		assert.Equal(t, 1, p.open)
		require.NoError(t, h.Unmount(hk))
		assert.Equal(t, 1, hk.unmounts)
	}
	assert.Zero(t, p.open)
}

func TestMountTwiceRejected(t *testing.T) {
	h := newHost(nil, nil)
	hk := &fakeHook{}
	require.NoError(t, h.Mount("x", Element{}, hk))
	assert.ErrorIs(t, h.Mount("x", Element{}, hk), ErrAlreadyMounted)
	assert.ErrorIs(t, h.Unmount(&fakeHook{}), ErrNotMounted)
}

func TestRunDeliversInOrderAndTearsDown(t *testing.T) {
	p := &countingProvider{}
	h := newHost(p, nil)
	hk := &fakeHook{subscribe: []string{"e*"}, surface: surface.Chart}
	require.NoError(t, h.Mount("chart", Element{ID: "c"}, hk))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	for _, n := range []string{"e1", "e2", "e3"} {
		require.NoError(t, h.Push(ctx, Event{Name: n}))
	}
	require.Eventually(t, func() bool { return len(hk.seen()) == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"e1", "e2", "e3"}, hk.seen())
	assert.Equal(t, 1, h.Mounted())

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 1, hk.unmounts)
	assert.Zero(t, p.open)
	assert.Equal(t, 0, h.Mounted())
}

func TestElementIntAttr(t *testing.T) {
	el := Element{Attrs: map[string]string{"num-panels": "12", "bad": "x", "neg": "-3"}}
	assert.Equal(t, 12, el.IntAttr("num-panels", 10))
	assert.Equal(t, 10, el.IntAttr("bad", 10))
	assert.Equal(t, 10, el.IntAttr("neg", 10))
	assert.Equal(t, 100, el.IntAttr("max-points", 100))
}
