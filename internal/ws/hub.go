// Package ws serves browser surfaces, diagnostics and the control channel
// over websockets.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/coreman2200/ledring/internal/config"
	diag "github.com/coreman2200/ledring/internal/diagnostics"
	"github.com/coreman2200/ledring/internal/hook"
	"github.com/coreman2200/ledring/internal/metrics"
)

const writeWait = 200 * time.Millisecond

// EventSink accepts events for the host loop.
type EventSink interface {
	Push(ctx context.Context, ev hook.Event) error
}

// TestRunner starts LED tests.
type TestRunner interface {
	RunTest(name string) error
}

// Options wire a Hub.
type Options struct {
	Config     *config.Config
	ConfigPath string
	Driver     string
	Events     EventSink
	Tests      TestRunner
	Metrics    *metrics.Collector
	Logger     zerolog.Logger
	// FrameID reports the LED strip frame counter for /health.
	FrameID func() uint64
}

// Hub is a surface provider that broadcasts every presented update to the
// /surface clients, and fans diagnostics out to /diag clients.
type Hub struct {
	opts Options
	log  zerolog.Logger
	up   websocket.Upgrader

	mu          sync.RWMutex
	cfg         config.Config
	startTime   time.Time
	clients     map[*peer]bool
	diagClients map[*peer]bool
	surfaces    map[string]*hubSurface
}

type peer struct {
	id   string
	mu   sync.Mutex
	conn *websocket.Conn
}

func (p *peer) write(b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.send(b)
}

// send writes one message. The caller holds p.mu.
func (p *peer) send(b []byte) error {
	_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return p.conn.WriteMessage(websocket.TextMessage, b)
}

func NewHub(opts Options) *Hub {
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	return &Hub{
		opts:        opts,
		log:         opts.Logger.With().Str("component", "ws").Logger(),
		up:          websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		cfg:         *opts.Config,
		startTime:   time.Now(),
		clients:     map[*peer]bool{},
		diagClients: map[*peer]bool{},
		surfaces:    map[string]*hubSurface{},
	}
}

// Bind sets the event sink and test runner after construction, for wiring
// where they depend on the hub themselves.
func (h *Hub) Bind(events EventSink, tests TestRunner) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opts.Events = events
	h.opts.Tests = tests
}

// Config returns the current settings, including geometry changed over the
// control channel.
func (h *Hub) Config() config.Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// Routes registers the hub's handlers.
func (h *Hub) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/surface", h.HandleSurfaceWS)
	mux.HandleFunc("/diag", h.HandleDiagWS)
	mux.HandleFunc("/control", h.HandleControlWS)
	mux.HandleFunc("/health", h.HandleHealth)
}

func (h *Hub) upgrade(w http.ResponseWriter, r *http.Request) (*peer, bool) {
	conn, err := h.up.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Str("path", r.URL.Path).Msg("upgrade")
		return nil, false
	}
	return &peer{id: uuid.NewString(), conn: conn}, true
}

// drain reads until the peer goes away, then runs done.
func drain(p *peer, done func()) {
	defer func() {
		done()
		p.conn.Close()
	}()
	for {
		if _, _, err := p.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) HandleSurfaceWS(w http.ResponseWriter, r *http.Request) {
	p, ok := h.upgrade(w, r)
	if !ok {
		return
	}
	// Broadcasts to p wait on p.mu until the snapshot is out, so a newer
	// update never arrives before the merged state it supersedes.
	p.mu.Lock()
	h.mu.Lock()
	h.clients[p] = true
	snaps := make([][]byte, 0, len(h.surfaces))
	for _, s := range h.surfaces {
		if b := s.snapshot(); b != nil {
			snaps = append(snaps, b)
		}
	}
	h.mu.Unlock()
	for _, b := range snaps {
		if err := p.send(b); err != nil {
			h.log.Debug().Err(err).Msg("write snapshot")
		}
	}
	p.mu.Unlock()
	h.log.Debug().Str("client", p.id).Msg("surface client connected")
	go drain(p, func() {
		h.mu.Lock()
		delete(h.clients, p)
		h.mu.Unlock()
	})
}

func (h *Hub) HandleDiagWS(w http.ResponseWriter, r *http.Request) {
	p, ok := h.upgrade(w, r)
	if !ok {
		return
	}
	h.mu.Lock()
	h.diagClients[p] = true
	h.mu.Unlock()
	go drain(p, func() {
		h.mu.Lock()
		delete(h.diagClients, p)
		h.mu.Unlock()
	})
}

func (h *Hub) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	resp := map[string]any{
		"uptime_s":   time.Since(h.startTime).Seconds(),
		"clients":    len(h.clients),
		"surfaces":   len(h.surfaces),
		"num_panels": h.cfg.Ring.NumPanels,
		"fps":        h.cfg.FPS,
		"driver":     h.opts.Driver,
	}
	h.mu.RUnlock()
	if h.opts.FrameID != nil {
		resp["frame_id"] = h.opts.FrameID()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// PushDiag implements diagnostics.Sink.
func (h *Hub) PushDiag(d diag.Diagnostic) {
	b, err := json.Marshal(d)
	if err != nil {
		return
	}
	h.mu.RLock()
	peers := make([]*peer, 0, len(h.diagClients))
	for p := range h.diagClients {
		peers = append(peers, p)
	}
	h.mu.RUnlock()
	for _, p := range peers {
		_ = p.write(b)
	}
}

func (h *Hub) broadcast(b []byte) {
	h.mu.RLock()
	peers := make([]*peer, 0, len(h.clients))
	for p := range h.clients {
		peers = append(peers, p)
	}
	h.mu.RUnlock()
	for _, p := range peers {
		if err := p.write(b); err != nil {
			h.log.Debug().Err(err).Str("client", p.id).Msg("write update")
		}
	}
}
