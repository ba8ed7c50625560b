package hook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreman2200/ledring/internal/diagnostics"
	"github.com/coreman2200/ledring/internal/metrics"
	"github.com/coreman2200/ledring/internal/surface"
)

// Options configure a Host.
type Options struct {
	FPS       int
	QueueSize int
	Surfaces  surface.Provider
	Metrics   *metrics.Collector
	Diag      diagnostics.Sink
	Logger    zerolog.Logger
}

// Host delivers queued events and render ticks to mounted hooks.
type Host struct {
	opts   Options
	log    zerolog.Logger
	events chan Event
	cmds   chan func()

	mu      sync.Mutex
	running bool
	stopped chan struct{}

	mounts []*Mount
}

func NewHost(opts Options) *Host {
	if opts.FPS <= 0 {
		opts.FPS = 60
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.Diag == nil {
		opts.Diag = diagnostics.Discard{}
	}
	return &Host{
		opts:   opts,
		log:    opts.Logger.With().Str("component", "host").Logger(),
		events: make(chan Event, opts.QueueSize),
		cmds:   make(chan func()),
	}
}

// Push queues an event. It blocks only while the queue is full.
func (h *Host) Push(ctx context.Context, ev Event) error {
	select {
	case h.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Mount attaches a hook to an element. A hook that fails to mount stays
// attached but inert: it receives no events or ticks.
func (h *Host) Mount(name string, el Element, hk Hook) error {
	var err error
	h.do(func() { err = h.mount(name, el, hk) })
	return err
}

// Unmount detaches a hook and calls its OnUnmount.
func (h *Host) Unmount(hk Hook) error {
	var err error
	h.do(func() { err = h.unmount(hk) })
	return err
}

// Mounted returns the number of attached hooks.
func (h *Host) Mounted() int {
	var n int
	h.do(func() { n = len(h.mounts) })
	return n
}

// Run processes events and ticks until ctx is done, then unmounts every
// hook.
func (h *Host) Run(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return fmt.Errorf("host already running")
	}
	h.running = true
	h.stopped = make(chan struct{})
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		h.running = false
		close(h.stopped)
		h.unmountAll()
		h.mu.Unlock()
	}()

	ticker := time.NewTicker(time.Second / time.Duration(h.opts.FPS))
	defer ticker.Stop()
	last := time.Now()

	h.log.Info().Int("fps", h.opts.FPS).Msg("host loop started")
	for {
		select {
		case <-ctx.Done():
			h.log.Info().Msg("host loop stopping")
			return nil
		case fn := <-h.cmds:
			fn()
		case ev := <-h.events:
			h.dispatch(ev)
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			h.tick(dt)
		}
	}
}

// Dispatch delivers one event synchronously. It must not be called while
// Run is active; it exists for callers that drive the host by hand.
func (h *Host) Dispatch(ev Event) { h.dispatch(ev) }

// Tick runs one render tick synchronously, under the same rule as Dispatch.
func (h *Host) Tick(dt time.Duration) { h.tick(dt) }

// do runs fn on the loop thread when Run is active, inline otherwise.
func (h *Host) do(fn func()) {
	h.mu.Lock()
	if !h.running {
		defer h.mu.Unlock()
		fn()
		return
	}
	stopped := h.stopped
	h.mu.Unlock()

	done := make(chan struct{})
	select {
	case h.cmds <- func() { fn(); close(done) }:
		<-done
	case <-stopped:
		h.mu.Lock()
		defer h.mu.Unlock()
		fn()
	}
}

func (h *Host) mount(name string, el Element, hk Hook) error {
	for _, m := range h.mounts {
		if m.hook == hk {
			return ErrAlreadyMounted
		}
	}
	m := &Mount{
		name:     name,
		el:       el,
		hook:     hk,
		log:      h.opts.Logger.With().Str("component", name).Str("element", el.ID).Logger(),
		surfaces: h.opts.Surfaces,
	}
	h.mounts = append(h.mounts, m)
	if err := h.guard(m, "mount", func() error { return hk.OnMount(m) }); err != nil {
		m.inert = true
		m.log.Error().Err(err).Msg("mount failed; hook is inert")
		h.opts.Diag.PushDiag(diagnostics.Diagnostic{
			Severity: diagnostics.Err,
			Code:     diagnostics.HookInert,
			Summary:  "Component failed to mount",
			Detail:   err.Error(),
			Evidence: map[string]any{"hook": name, "element": el.ID},
			At:       time.Now(),
		})
		return err
	}
	m.log.Debug().Strs("events", m.patterns).Msg("mounted")
	return nil
}

func (h *Host) unmount(hk Hook) error {
	for i, m := range h.mounts {
		if m.hook != hk {
			continue
		}
		h.mounts = append(h.mounts[:i], h.mounts[i+1:]...)
		err := h.guard(m, "unmount", hk.OnUnmount)
		if err != nil {
			m.log.Warn().Err(err).Msg("unmount failed")
		}
		return err
	}
	return ErrNotMounted
}

func (h *Host) unmountAll() {
	for len(h.mounts) > 0 {
		_ = h.unmount(h.mounts[len(h.mounts)-1].hook)
	}
}

func (h *Host) dispatch(ev Event) {
	delivered := false
	for _, m := range h.mounts {
		if !m.matches(ev.Name) {
			continue
		}
		delivered = true
		err := h.guard(m, ev.Name, func() error { return m.hook.OnEvent(ev.Name, ev.Payload) })
		h.opts.Metrics.ObserveEvent(m.name, err)
		if err != nil {
			m.log.Warn().Err(err).Str("event", ev.Name).Msg("event dropped")
			h.opts.Diag.PushDiag(diagnostics.Diagnostic{
				Severity: diagnostics.Warn,
				Code:     diagnostics.EventFailed,
				Summary:  "Event could not be applied",
				Detail:   err.Error(),
				Evidence: map[string]any{"hook": m.name, "event": ev.Name},
				At:       time.Now(),
			})
		}
	}
	if !delivered {
		h.log.Debug().Str("event", ev.Name).Msg("no hook subscribed")
	}
}

func (h *Host) tick(dt time.Duration) {
	start := time.Now()
	for _, m := range h.mounts {
		t, ok := m.hook.(Ticker)
		if !ok || m.inert {
			continue
		}
		_ = h.guard(m, "tick", func() error { t.Tick(dt); return nil })
	}
	h.opts.Metrics.ObserveTick(time.Since(start))
}

// guard runs fn and turns a panic into an error so one bad hook cannot stop
// the loop.
func (h *Host) guard(m *Mount, what string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s %s: panic: %v", m.name, what, r)
			h.opts.Diag.PushDiag(diagnostics.Diagnostic{
				Severity: diagnostics.Err,
				Code:     diagnostics.HookPanicked,
				Summary:  "Component panicked",
				Detail:   err.Error(),
				Evidence: map[string]any{"hook": m.name, "stage": what},
				At:       time.Now(),
			})
		}
	}()
	return fn()
}
