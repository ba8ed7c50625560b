package series

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

type Color struct{ R, G, B uint8 }

// RGBA renders the color for a chart library, e.g. "rgba(239, 68, 68, 1)".
func (c Color) RGBA(alpha float64) string {
	return fmt.Sprintf("rgba(%d, %d, %d, %g)", c.R, c.G, c.B, alpha)
}

var algorithmColors = map[string]Color{
	"raw":      {239, 68, 68},
	"sma":      {59, 130, 246},
	"ema":      {249, 115, 22},
	"median":   {147, 51, 234},
	"combined": {34, 197, 94},
}

var palette = []Color{
	{14, 165, 233},
	{234, 179, 8},
	{236, 72, 153},
	{20, 184, 166},
	{168, 85, 247},
	{132, 204, 22},
	{244, 63, 94},
	{99, 102, 241},
}

// ColorFor picks a color from the name alone: known algorithms use a fixed
// table, anything else hashes into the palette.
func ColorFor(name string) Color {
	if c, ok := algorithmColors[name]; ok {
		return c
	}
	return palette[xxhash.Sum64String(name)%uint64(len(palette))]
}

func colorFor(k Key) Color {
	if k.Algorithm != "" {
		if c, ok := algorithmColors[k.Algorithm]; ok {
			return c
		}
	}
	return ColorFor(k.Label())
}
