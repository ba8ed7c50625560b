package led

import (
	"fmt"
	"math"

	"github.com/coreman2200/ledring/internal/layout"
)

// Test names accepted on the control channel.
type Test string

const (
	IndexSweep Test = "index_sweep"
	RGBTest    Test = "rgb_channels"
	PanelSweep Test = "panel_sweep"
)

// rgbCycles is how many full red/green/blue rounds the channel test shows.
const rgbCycles = 3

// ParseTest validates a test name.
func ParseTest(name string) (Test, error) {
	switch t := Test(name); t {
	case IndexSweep, RGBTest, PanelSweep:
		return t, nil
	default:
		return "", fmt.Errorf("unknown test %q", name)
	}
}

// Runner steps one LED test, one frame per call.
type Runner struct {
	test Test
	step int
}

func NewRunner(t Test) *Runner { return &Runner{test: t} }

func (r *Runner) Test() Test { return r.test }

// Step fills rgb with the next frame in strip order. It returns false when
// the test is complete; rgb is then left black.
func (r *Runner) Step(l layout.Layout, rgb []byte) bool {
	clear(rgb)
	n := l.Count()

	switch r.test {
	case IndexSweep:
		if r.step >= n {
			return false
		}
		i := r.step
		rgb[i*3], rgb[i*3+1], rgb[i*3+2] = 255, 255, 255
	case RGBTest:
		if r.step >= rgbCycles*3 {
			return false
		}
		ch := r.step % 3
		for i := 0; i < n; i++ {
			rgb[i*3+ch] = 255
		}
	case PanelSweep:
		if r.step >= l.Dim.Z {
			return false
		}
		z := r.step
		for y := 0; y < l.Dim.Y; y++ {
			for x := 0; x < l.Dim.X; x++ {
				i := l.Index(x, y, z)
				rgb[i*3+1], rgb[i*3+2] = 255, 255
			}
		}
	default:
		return false
	}
	r.step++
	return true
}

// Rainbow fills rgb with the idle test frame: hue sweeps once along the
// logical pixel order, placed through the serpentine mapping.
func Rainbow(l layout.Layout, rgb []byte) {
	n := l.Count()
	per := l.Dim.X * l.Dim.Y
	for i := 0; i < n; i++ {
		z, rem := i/per, i%per
		idx := l.Index(rem%l.Dim.X, rem/l.Dim.X, z)
		r, g, b := hsvToRGB(float64(i)/float64(n), 1, 1)
		rgb[idx*3] = unit(r)
		rgb[idx*3+1] = unit(g)
		rgb[idx*3+2] = unit(b)
	}
}

func unit(v float64) byte { return byte(math.Round(v * 255)) }

func hsvToRGB(h, s, v float64) (float64, float64, float64) {
	i := int(h * 6.0)
	f := h*6.0 - float64(i)
	p := v * (1.0 - s)
	q := v * (1.0 - f*s)
	t := v * (1.0 - (1.0-f)*s)
	switch i % 6 {
	case 0:
		return v, t, p
	case 1:
		return q, v, p
	case 2:
		return p, v, t
	case 3:
		return p, q, v
	case 4:
		return t, p, v
	default:
		return v, p, q
	}
}
