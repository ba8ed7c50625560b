// Package series keeps bounded rolling buffers of sensor readings for a live
// chart.
package series

import "strings"

// Point is one reading. Buffers keep arrival order.
type Point struct {
	Timestamp float64 `json:"timestamp"`
	Distance  float64 `json:"distance"`
}

// Key names a series: a sensor alone, or a sensor filtered by an algorithm.
type Key struct {
	Sensor    string
	Algorithm string
}

// Label is the legend text, e.g. "sensor-1 - COMBINED".
func (k Key) Label() string {
	if k.Algorithm == "" {
		return k.Sensor
	}
	return k.Sensor + " - " + strings.ToUpper(k.Algorithm)
}

// Series is one named line of the chart.
type Series struct {
	Key         Key
	Color       Color
	BorderWidth int
	Points      []Point
}

// Buffer holds every series, each capped at maxPoints.
type Buffer struct {
	maxPoints int
	series    map[Key]*Series
	order     []Key
}

func New(maxPoints int) *Buffer {
	if maxPoints <= 0 {
		maxPoints = 100
	}
	return &Buffer{maxPoints: maxPoints, series: map[Key]*Series{}}
}

func (b *Buffer) MaxPoints() int { return b.maxPoints }

// Append adds a batch to the series named by k, creating it on first sight.
// An empty batch does nothing. Once the series is longer than maxPoints only
// the most recent maxPoints are kept.
func (b *Buffer) Append(k Key, pts []Point) {
	if len(pts) == 0 {
		return
	}
	s, ok := b.series[k]
	if !ok {
		s = &Series{Key: k, Color: colorFor(k), BorderWidth: borderWidth(k)}
		b.series[k] = s
		b.order = append(b.order, k)
	}
	s.Points = append(s.Points, pts...)
	if over := len(s.Points) - b.maxPoints; over > 0 {
		kept := make([]Point, b.maxPoints)
		copy(kept, s.Points[over:])
		s.Points = kept
	}
}

// Get returns the series named by k.
func (b *Buffer) Get(k Key) (*Series, bool) {
	s, ok := b.series[k]
	return s, ok
}

// Len is the number of series.
func (b *Buffer) Len() int { return len(b.order) }

// Snapshot returns the series in creation order.
func (b *Buffer) Snapshot() []*Series {
	out := make([]*Series, 0, len(b.order))
	for _, k := range b.order {
		out = append(out, b.series[k])
	}
	return out
}

func borderWidth(k Key) int {
	if k.Algorithm == "combined" {
		return 2
	}
	return 1
}
