// Package stream connects to the server-push event stream and feeds its
// events to the host.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/coreman2200/ledring/internal/diagnostics"
	"github.com/coreman2200/ledring/internal/hook"
	"github.com/coreman2200/ledring/internal/metrics"
)

// ClientIDHeader carries the viewer id in the handshake.
const ClientIDHeader = "X-Client-ID"

var ErrNoEventName = errors.New("message without event name")

// Sink receives decoded events.
type Sink interface {
	Push(ctx context.Context, ev hook.Event) error
}

// Config for a Client. Retry of zero disables reconnecting.
type Config struct {
	URL      string
	ClientID string
	Retry    time.Duration
}

type Client struct {
	cfg     Config
	sink    Sink
	log     zerolog.Logger
	metrics *metrics.Collector
	diag    diagnostics.Sink
	dialer  *websocket.Dialer
}

func NewClient(cfg Config, sink Sink, m *metrics.Collector, d diagnostics.Sink, log zerolog.Logger) *Client {
	if cfg.ClientID == "" {
		cfg.ClientID = uuid.NewString()
	}
	if d == nil {
		d = diagnostics.Discard{}
	}
	return &Client{
		cfg:     cfg,
		sink:    sink,
		log:     log.With().Str("component", "stream").Str("client_id", cfg.ClientID).Logger(),
		metrics: m,
		diag:    d,
		dialer:  &websocket.Dialer{HandshakeTimeout: 5 * time.Second},
	}
}

func (c *Client) ID() string { return c.cfg.ClientID }

// Run reads events until ctx is done. When the connection drops it reports a
// diagnostic and, if Retry is set, dials again after that delay.
func (c *Client) Run(ctx context.Context) error {
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		c.log.Warn().Err(err).Str("url", c.cfg.URL).Msg("stream disconnected")
		c.diag.PushDiag(diagnostics.Diagnostic{
			Severity:       diagnostics.Warn,
			Code:           diagnostics.StreamDown,
			Summary:        "Event stream disconnected",
			Detail:         err.Error(),
			LikelyCauses:   []string{"server not running", "wrong stream url"},
			SuggestedFixes: []string{"check stream.url in config.yaml", "enable mDNS on the server"},
			Evidence:       map[string]any{"url": c.cfg.URL},
			At:             time.Now(),
		})
		if c.cfg.Retry <= 0 {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.cfg.Retry):
		}
	}
}

func (c *Client) session(ctx context.Context) error {
	hdr := http.Header{}
	hdr.Set(ClientIDHeader, c.cfg.ClientID)
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, hdr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}
	defer conn.Close()
	c.log.Info().Str("url", c.cfg.URL).Msg("stream connected")

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		ev, err := Decode(data)
		if err != nil {
			c.metrics.StreamMessage("malformed")
			c.log.Debug().Err(err).Msg("skipping message")
			continue
		}
		if err := c.sink.Push(ctx, ev); err != nil {
			return err
		}
		c.metrics.StreamMessage("ok")
	}
}

// Decode parses one stream message: {"event": name, "payload": {...}}.
func Decode(data []byte) (hook.Event, error) {
	var ev hook.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return hook.Event{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.Name == "" {
		return hook.Event{}, ErrNoEventName
	}
	return ev, nil
}
