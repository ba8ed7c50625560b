package texture

import "github.com/coreman2200/ledring/internal/frame"

const (
	Width  = 8
	Height = 8
	// Cells is the number of pixels on one panel.
	Cells = Width * Height
	// Stride is the number of bytes per cell (RGBA).
	Stride = 4
)

// Texture is the RGBA backing store of one panel.
type Texture struct {
	Data        [Cells * Stride]byte
	NeedsUpdate bool
}

func newTexture() *Texture {
	t := &Texture{NeedsUpdate: true}
	for j := 0; j < Cells; j++ {
		t.Data[j*Stride+3] = 255
	}
	return t
}

// Set writes one cell and flags the texture for re-upload.
func (t *Texture) Set(cell int, p frame.Pixel) {
	o := cell * Stride
	t.Data[o] = clamp255(p.R)
	t.Data[o+1] = clamp255(p.G)
	t.Data[o+2] = clamp255(p.B)
	t.Data[o+3] = 255
	t.NeedsUpdate = true
}

func clamp255(v int) byte {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return byte(v)
}
