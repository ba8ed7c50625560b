package chart

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/ledring/internal/hook"
	"github.com/coreman2200/ledring/internal/series"
	"github.com/coreman2200/ledring/internal/surface"
)

type chartSurface struct {
	updates []surface.ChartUpdate
	open    int
}

func (s *chartSurface) Open(kind, _ string) (surface.Surface, error) {
	if kind != surface.Chart {
		return nil, surface.ErrUnsupportedKind
	}
	s.open++
	return s, nil
}
func (s *chartSurface) Present(v any) error {
	s.updates = append(s.updates, v.(surface.ChartUpdate))
	return nil
}
func (s *chartSurface) Close() error { s.open--; return nil }

func mountChart(t *testing.T, attrs map[string]string, opts Options) (*hook.Host, *Chart, *chartSurface) {
	t.Helper()
	surf := &chartSurface{}
	h := hook.NewHost(hook.Options{Surfaces: surf, Logger: zerolog.Nop()})
	c := New(opts)
	require.NoError(t, h.Mount("chart", hook.Element{ID: "prox", Attrs: attrs}, c))
	return h, c, surf
}

func readings(from, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf(`{"timestamp":%d,"distance":%d}`, from+i, 100+from+i)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func TestAlgorithmBatchesShowRawAndCombined(t *testing.T) {
	h, c, surf := mountChart(t, nil, Options{})
	payload := `{"sensor":"s1","algorithms":{"combined":` + readings(0, 2) +
		`,"sma":` + readings(0, 2) + `,"raw":` + readings(0, 3) + `}}`
	h.Dispatch(hook.Event{Name: Event, Payload: json.RawMessage(payload)})

	require.Len(t, surf.updates, 1)
	ds := surf.updates[0].Datasets
	require.Len(t, ds, 2)

	assert.Equal(t, "s1 - COMBINED", ds[0].Label)
	assert.Equal(t, 2, ds[0].BorderWidth)
	assert.Equal(t, "rgba(34, 197, 94, 1)", ds[0].BorderColor)
	assert.Equal(t, "rgba(34, 197, 94, 0.1)", ds[0].BackgroundColor)

	assert.Equal(t, "s1 - RAW", ds[1].Label)
	assert.Equal(t, 1, ds[1].BorderWidth)
	assert.Equal(t, "rgba(239, 68, 68, 1)", ds[1].BorderColor)
	assert.Equal(t, []surface.XY{{X: 0, Y: 100}, {X: 1, Y: 101}, {X: 2, Y: 102}}, ds[1].Data)

	_, ok := c.Series().Get(series.Key{Sensor: "s1", Algorithm: "sma"})
	assert.False(t, ok)
}

func TestConfiguredAlgorithms(t *testing.T) {
	h, c, _ := mountChart(t, nil, Options{Algorithms: []string{"ema"}})
	h.Dispatch(hook.Event{Name: Event, Payload: json.RawMessage(`{"sensor":"s","algorithms":{"raw":[{"timestamp":1,"distance":2}],"ema":[{"timestamp":1,"distance":3}]}}`)})
	assert.Equal(t, 1, c.Series().Len())
	s, ok := c.Series().Get(series.Key{Sensor: "s", Algorithm: "ema"})
	require.True(t, ok)
	assert.Equal(t, 3.0, s.Points[0].Distance)
}

func TestRollingWindow(t *testing.T) {
	h, c, surf := mountChart(t, map[string]string{"max-points": "100"}, Options{})
	for i := 0; i < 150; i++ {
		h.Dispatch(hook.Event{Name: Event, Payload: json.RawMessage(`{"sensor":"s","readings":` + readings(i, 1) + `}`)})
	}
	s, ok := c.Series().Get(series.Key{Sensor: "s"})
	require.True(t, ok)
	require.Len(t, s.Points, 100)
	assert.Equal(t, 50.0, s.Points[0].Timestamp)
	assert.Equal(t, 149.0, s.Points[99].Timestamp)
	assert.Equal(t, "s", surf.updates[len(surf.updates)-1].Datasets[0].Label)
}

func TestMaxPointsFromOptions(t *testing.T) {
	h, c, _ := mountChart(t, nil, Options{MaxPoints: 5})
	h.Dispatch(hook.Event{Name: Event, Payload: json.RawMessage(`{"sensor":"s","readings":` + readings(0, 8) + `}`)})
	s, _ := c.Series().Get(series.Key{Sensor: "s"})
	assert.Len(t, s.Points, 5)
	assert.Equal(t, 3.0, s.Points[0].Timestamp)
}

func TestEmptyBatchCreatesNothing(t *testing.T) {
	h, c, surf := mountChart(t, nil, Options{})
	h.Dispatch(hook.Event{Name: Event, Payload: json.RawMessage(`{"sensor":"s","readings":[]}`)})
	assert.Zero(t, c.Series().Len())
	require.Len(t, surf.updates, 1)
	assert.Empty(t, surf.updates[0].Datasets)
}

func TestBadPayload(t *testing.T) {
	_, c, _ := mountChart(t, nil, Options{})
	assert.ErrorIs(t, c.OnEvent(Event, json.RawMessage(`{"readings":[]}`)), ErrNoSensor)
	assert.Error(t, c.OnEvent(Event, json.RawMessage(`{"sensor":"s","algorithms":[1]}`)))
	assert.Error(t, c.OnEvent(Event, json.RawMessage(`{"sensor":"s","algorithms":{"raw":"x"}}`)))
	assert.Zero(t, c.Series().Len())
}

func TestUnmountReleasesChart(t *testing.T) {
	h, c, surf := mountChart(t, nil, Options{})
	assert.Equal(t, 1, surf.open)
	require.NoError(t, h.Unmount(c))
	assert.Zero(t, surf.open)
}
