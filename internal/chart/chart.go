// Package chart turns proximity-data events into rolling chart datasets.
package chart

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/coreman2200/ledring/internal/hook"
	"github.com/coreman2200/ledring/internal/metrics"
	"github.com/coreman2200/ledring/internal/series"
	"github.com/coreman2200/ledring/internal/surface"
)

const Event = "proximity-data"

var DefaultAlgorithms = []string{"raw", "combined"}

var ErrNoSensor = errors.New("proximity data without sensor")

// Options configure the chart. MaxPoints is the default used when the element
// has no max-points attribute.
type Options struct {
	MaxPoints  int
	Algorithms []string
	Metrics    *metrics.Collector
}

// Chart is the ProximityChart hook.
type Chart struct {
	opts  Options
	log   zerolog.Logger
	id    string
	surf  surface.Surface
	buf   *series.Buffer
	shown map[string]bool
}

var _ hook.Hook = (*Chart)(nil)

func New(opts Options) *Chart {
	if len(opts.Algorithms) == 0 {
		opts.Algorithms = DefaultAlgorithms
	}
	shown := make(map[string]bool, len(opts.Algorithms))
	for _, a := range opts.Algorithms {
		shown[a] = true
	}
	return &Chart{opts: opts, shown: shown}
}

func (c *Chart) OnMount(m *hook.Mount) error {
	c.log = m.Logger()
	c.id = m.Element().ID
	c.buf = series.New(m.Element().IntAttr("max-points", c.opts.MaxPoints))

	surf, err := m.Open(surface.Chart)
	if err != nil {
		return err
	}
	c.surf = surf
	m.Subscribe(Event)
	c.log.Info().Int("max_points", c.buf.MaxPoints()).Strs("algorithms", c.opts.Algorithms).Msg("chart mounted")
	return nil
}

func (c *Chart) OnUnmount() error {
	if c.surf == nil {
		return nil
	}
	err := c.surf.Close()
	c.surf = nil
	return err
}

func (c *Chart) OnEvent(_ string, payload json.RawMessage) error {
	batches, err := Parse(payload)
	if err != nil {
		return err
	}
	for _, b := range batches {
		if b.Key.Algorithm != "" && !c.shown[b.Key.Algorithm] {
			continue
		}
		c.buf.Append(b.Key, b.Points)
	}
	return c.present()
}

// Series exposes the buffered series. Callers must stay on the host thread.
func (c *Chart) Series() *series.Buffer { return c.buf }

func (c *Chart) present() error {
	snap := c.buf.Snapshot()
	u := surface.ChartUpdate{ID: c.id, Datasets: make([]surface.Dataset, 0, len(snap))}
	for _, s := range snap {
		data := make([]surface.XY, len(s.Points))
		for i, p := range s.Points {
			data[i] = surface.XY{X: p.Timestamp, Y: p.Distance}
		}
		u.Datasets = append(u.Datasets, surface.Dataset{
			Label:           s.Key.Label(),
			BorderColor:     s.Color.RGBA(1),
			BackgroundColor: s.Color.RGBA(0.1),
			BorderWidth:     s.BorderWidth,
			Data:            data,
		})
		c.opts.Metrics.SetSeriesPoints(s.Key.Label(), len(s.Points))
	}
	if c.surf == nil {
		return nil
	}
	if err := c.surf.Present(u); err != nil {
		return fmt.Errorf("present chart: %w", err)
	}
	return nil
}

// Batch is the readings for one series from a single event.
type Batch struct {
	Key    series.Key
	Points []series.Point
}

// Parse reads a proximity-data payload. It accepts the single-series form
// {"sensor": .., "readings": [..]} and the per-algorithm form
// {"sensor": .., "algorithms": {"raw": [..], ..}}. Algorithm batches keep
// the order they appear in the payload.
func Parse(payload []byte) ([]Batch, error) {
	var msg struct {
		Sensor     string          `json:"sensor"`
		Readings   []series.Point  `json:"readings"`
		Algorithms json.RawMessage `json:"algorithms"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("parse proximity data: %w", err)
	}
	if msg.Sensor == "" {
		return nil, ErrNoSensor
	}

	var out []Batch
	if msg.Readings != nil {
		out = append(out, Batch{Key: series.Key{Sensor: msg.Sensor}, Points: msg.Readings})
	}
	if len(msg.Algorithms) == 0 || bytes.Equal(msg.Algorithms, []byte("null")) {
		return out, nil
	}

	dec := json.NewDecoder(bytes.NewReader(msg.Algorithms))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil, fmt.Errorf("parse proximity data: algorithms must be an object")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("parse proximity data: %w", err)
		}
		name, _ := tok.(string)
		var pts []series.Point
		if err := dec.Decode(&pts); err != nil {
			return nil, fmt.Errorf("parse proximity data: %s: %w", name, err)
		}
		out = append(out, Batch{Key: series.Key{Sensor: msg.Sensor, Algorithm: name}, Points: pts})
	}
	return out, nil
}
