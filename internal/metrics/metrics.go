package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the viewer's Prometheus metrics. A nil *Collector is
// valid and records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	Events         *prometheus.CounterVec
	Frames         *prometheus.CounterVec
	FrameErrors    *prometheus.CounterVec
	TextureUploads prometheus.Counter
	SeriesPoints   *prometheus.GaugeVec
	SurfacesOpen   prometheus.Gauge
	StreamMessages *prometheus.CounterVec
	TickDuration   prometheus.Histogram
}

// New registers the metrics against reg, defaulting to the global registry
// when nil. Registering twice against the same registry reuses the existing
// collectors.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}
	var err error

	if c.Events, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledring_events_total",
		Help: "Events delivered to hooks, labeled by hook and result.",
	}, []string{"hook", "result"}), "ledring_events_total"); err != nil {
		return nil, err
	}
	if c.Frames, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledring_frames_decoded_total",
		Help: "Pixel frames accepted, labeled by kind.",
	}, []string{"kind"}), "ledring_frames_decoded_total"); err != nil {
		return nil, err
	}
	if c.FrameErrors, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledring_frame_errors_total",
		Help: "Pixel frames rejected, labeled by reason.",
	}, []string{"reason"}), "ledring_frame_errors_total"); err != nil {
		return nil, err
	}
	if c.TextureUploads, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledring_texture_uploads_total",
		Help: "Panel textures presented to surfaces after a change.",
	}), "ledring_texture_uploads_total"); err != nil {
		return nil, err
	}
	if c.SeriesPoints, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ledring_series_points",
		Help: "Points currently held per chart series.",
	}, []string{"series"}), "ledring_series_points"); err != nil {
		return nil, err
	}
	if c.SurfacesOpen, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ledring_surfaces_open",
		Help: "Draw surfaces currently acquired by mounted hooks.",
	}), "ledring_surfaces_open"); err != nil {
		return nil, err
	}
	if c.StreamMessages, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledring_stream_messages_total",
		Help: "Messages read from the event stream, labeled by result.",
	}, []string{"result"}), "ledring_stream_messages_total"); err != nil {
		return nil, err
	}
	if c.TickDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ledring_tick_duration_seconds",
		Help:    "Duration of one render tick across all hooks.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05},
	}), "ledring_tick_duration_seconds"); err != nil {
		return nil, err
	}
	return c, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveEvent(hook string, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.Events.WithLabelValues(hook, result).Inc()
}

func (c *Collector) FrameDecoded(kind string) {
	if c == nil {
		return
	}
	c.Frames.WithLabelValues(kind).Inc()
}

func (c *Collector) FrameRejected(reason string) {
	if c == nil {
		return
	}
	c.FrameErrors.WithLabelValues(reason).Inc()
}

func (c *Collector) TexturesUploaded(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.TextureUploads.Add(float64(n))
}

func (c *Collector) SetSeriesPoints(label string, n int) {
	if c == nil {
		return
	}
	c.SeriesPoints.WithLabelValues(label).Set(float64(n))
}

func (c *Collector) SurfaceOpened() {
	if c == nil {
		return
	}
	c.SurfacesOpen.Inc()
}

func (c *Collector) SurfaceClosed() {
	if c == nil {
		return
	}
	c.SurfacesOpen.Dec()
}

func (c *Collector) StreamMessage(result string) {
	if c == nil {
		return
	}
	c.StreamMessages.WithLabelValues(result).Inc()
}

func (c *Collector) ObserveTick(d time.Duration) {
	if c == nil {
		return
	}
	c.TickDuration.Observe(d.Seconds())
}

func register[T prometheus.Collector](reg prometheus.Registerer, col T, name string) (T, error) {
	if err := reg.Register(col); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return col, nil
}
