package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/coreman2200/ledring/internal/config"
	diag "github.com/coreman2200/ledring/internal/diagnostics"
	"github.com/coreman2200/ledring/internal/hook"
	"github.com/coreman2200/ledring/internal/scene"
)

// ControlMsg is one message on the control channel. Param is forwarded to
// the panel scene as a param event; RunTest starts an LED test; Event
// injects any named event.
type ControlMsg struct {
	Param   json.RawMessage `json:"param,omitempty"`
	RunTest string          `json:"runTest,omitempty"`
	Event   *hook.Event     `json:"event,omitempty"`
}

// Topology is sent back after every control message.
type Topology struct {
	Element string      `json:"element"`
	Driver  string      `json:"driver"`
	Ring    config.Ring `json:"ring"`
}

var errNoEvents = errors.New("no event sink")

func (h *Hub) HandleControlWS(w http.ResponseWriter, r *http.Request) {
	p, ok := h.upgrade(w, r)
	if !ok {
		return
	}
	defer p.conn.Close()
	h.sendTopology(p)
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg ControlMsg
		err = json.Unmarshal(data, &msg)
		if err == nil {
			err = h.applyControl(r.Context(), msg)
		}
		if err != nil {
			h.controlInvalid(err, data)
		}
		h.sendTopology(p)
	}
}

func (h *Hub) applyControl(ctx context.Context, msg ControlMsg) error {
	var errs []error
	if len(msg.Param) > 0 {
		errs = append(errs, h.applyParam(ctx, msg.Param))
	}
	if msg.RunTest != "" {
		h.mu.RLock()
		tests := h.opts.Tests
		h.mu.RUnlock()
		if tests == nil {
			errs = append(errs, fmt.Errorf("no LED output for test %q", msg.RunTest))
		} else {
			errs = append(errs, tests.RunTest(msg.RunTest))
		}
	}
	if msg.Event != nil {
		errs = append(errs, h.push(ctx, *msg.Event))
	}
	return errors.Join(errs...)
}

func (h *Hub) applyParam(ctx context.Context, raw json.RawMessage) error {
	p, err := scene.ParseParam(raw)
	if err != nil {
		return err
	}
	h.mu.RLock()
	el := h.cfg.Element
	h.mu.RUnlock()
	if err := h.push(ctx, hook.Event{Name: "param:" + el, Payload: raw}); err != nil {
		return err
	}
	if p.Geometry() {
		h.mu.Lock()
		applyGeometry(&h.cfg.Ring, p)
		h.mu.Unlock()
		h.saveConfig()
	}
	return nil
}

func (h *Hub) push(ctx context.Context, ev hook.Event) error {
	h.mu.RLock()
	events := h.opts.Events
	h.mu.RUnlock()
	if events == nil {
		return errNoEvents
	}
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	return events.Push(ctx, ev)
}

func applyGeometry(r *config.Ring, p scene.Param) {
	if p.Diameter != nil {
		r.Diameter = *p.Diameter
	}
	if p.Height != nil {
		r.Height = *p.Height
	}
	if p.PoleDiameter != nil {
		r.PoleDiameter = *p.PoleDiameter
	}
	if p.FootDiameter != nil {
		r.FootDiameter = *p.FootDiameter
	}
	if p.ButtonPolesDiameter != nil {
		r.ButtonPolesDiameter = *p.ButtonPolesDiameter
	}
}

func (h *Hub) saveConfig() {
	if h.opts.ConfigPath == "" {
		return
	}
	h.mu.RLock()
	cfg := h.cfg
	h.mu.RUnlock()
	if err := config.Save(h.opts.ConfigPath, &cfg); err != nil {
		h.log.Warn().Err(err).Str("path", h.opts.ConfigPath).Msg("save config")
	}
}

func (h *Hub) controlInvalid(err error, data []byte) {
	h.log.Warn().Err(err).Msg("control message rejected")
	h.PushDiag(diag.Diagnostic{
		Severity: diag.Warn,
		Code:     diag.ControlInvalid,
		Summary:  "Control message rejected",
		Detail:   err.Error(),
		Evidence: map[string]any{"message": string(data)},
		At:       time.Now(),
	})
}

func (h *Hub) sendTopology(p *peer) {
	h.mu.RLock()
	top := Topology{Element: h.cfg.Element, Driver: h.opts.Driver, Ring: h.cfg.Ring}
	h.mu.RUnlock()
	b, err := json.Marshal(top)
	if err != nil {
		return
	}
	if err := p.write(b); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		h.log.Debug().Err(err).Msg("write topology")
	}
}
