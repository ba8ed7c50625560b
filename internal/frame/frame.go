package frame

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Kind tags the channel layout of a frame's data.
type Kind string

const (
	RGB   Kind = "rgb"
	White Kind = "w"
)

var (
	ErrUnsupportedKind    = errors.New("unsupported frame kind")
	ErrInvalidFrameLength = errors.New("invalid frame length")
)

// Frame is one server-pushed snapshot of pixel colors for all panels.
type Frame struct {
	Kind Kind  `json:"kind"`
	Data []int `json:"data"`
}

// Pixel holds one LED color. Channels are not clamped here; consumers that
// store bytes decide how to saturate.
type Pixel struct{ R, G, B int }

func (p Pixel) String() string { return fmt.Sprintf("(%d, %d, %d)", p.R, p.G, p.B) }

const (
	maxW = 255
	maxR = 63
)

// WarmRed returns the red channel added to a white-only pixel so it renders
// as warm white: 0 for w == 0, otherwise round(63 * ((255-w)/255)^2).
func WarmRed(w int) int {
	if w == 0 {
		return 0
	}
	ratio := float64(maxW-w) / maxW
	return int(math.Round(maxR * ratio * ratio))
}

// FromWhite expands a single white intensity to a visual color triple.
func FromWhite(w int) Pixel { return Pixel{R: WarmRed(w), G: w, B: w} }

// Decode converts a frame into pixels. It has no side effects.
func Decode(f Frame) ([]Pixel, error) {
	switch f.Kind {
	case RGB:
		if len(f.Data)%3 != 0 {
			return nil, fmt.Errorf("%w: %d values is not a multiple of 3", ErrInvalidFrameLength, len(f.Data))
		}
		out := make([]Pixel, len(f.Data)/3)
		for i := range out {
			out[i] = Pixel{R: f.Data[i*3], G: f.Data[i*3+1], B: f.Data[i*3+2]}
		}
		return out, nil
	case White:
		out := make([]Pixel, len(f.Data))
		for i, w := range f.Data {
			out[i] = FromWhite(w)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, f.Kind)
	}
}

// Parse reads a frame event payload. The frame may be sent bare
// ({"kind":..,"data":..}) or wrapped as {"frame": {...}}.
func Parse(payload []byte) (Frame, error) {
	var wrapped struct {
		Frame *Frame `json:"frame"`
	}
	if err := json.Unmarshal(payload, &wrapped); err != nil {
		return Frame{}, fmt.Errorf("parse frame: %w", err)
	}
	if wrapped.Frame != nil {
		return *wrapped.Frame, nil
	}
	var f Frame
	if err := json.Unmarshal(payload, &f); err != nil {
		return Frame{}, fmt.Errorf("parse frame: %w", err)
	}
	return f, nil
}
