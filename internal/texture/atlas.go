package texture

import "github.com/coreman2200/ledring/internal/frame"

// PixelBuffer is the flat pixel state of every panel. Its length is always
// numPanels*64; only the first Valid entries hold data from the last frame.
type PixelBuffer struct {
	Pixels []frame.Pixel
	Valid  int
}

func NewPixelBuffer(numPanels int) *PixelBuffer {
	return &PixelBuffer{Pixels: make([]frame.Pixel, numPanels*Cells), Valid: numPanels * Cells}
}

// Replace overwrites the buffer from a decoded frame. A shorter frame leaves
// the tail absent; extra pixels beyond the panel count are dropped.
func (b *PixelBuffer) Replace(px []frame.Pixel) {
	n := copy(b.Pixels, px)
	for i := n; i < len(b.Pixels); i++ {
		b.Pixels[i] = frame.Pixel{}
	}
	b.Valid = n
}

// At returns the pixel at global index i and whether it is present.
func (b *PixelBuffer) At(i int) (frame.Pixel, bool) {
	if i < 0 || i >= b.Valid {
		return frame.Pixel{}, false
	}
	return b.Pixels[i], true
}

// Atlas owns one texture per panel.
type Atlas struct {
	textures []*Texture
}

func NewAtlas(numPanels int) *Atlas {
	a := &Atlas{textures: make([]*Texture, numPanels)}
	for i := range a.textures {
		a.textures[i] = newTexture()
	}
	return a
}

func (a *Atlas) Len() int { return len(a.textures) }

// Texture returns the texture in slot i.
func (a *Atlas) Texture(i int) *Texture { return a.textures[i] }

// Slot maps a panel buffer index to its texture slot. The order is reversed
// to follow the physical wiring: the last panel lands in slot 0.
func (a *Atlas) Slot(panel int) int { return len(a.textures) - panel - 1 }

// Sync copies every present pixel into its panel texture. Cells with no pixel
// keep whatever they held before.
func (a *Atlas) Sync(buf *PixelBuffer) {
	n := len(a.textures)
	for i := 0; i < n; i++ {
		tex := a.textures[a.Slot(i)]
		for j := 0; j < Cells; j++ {
			if p, ok := buf.At(i*Cells + j); ok {
				tex.Set(j, p)
			}
		}
	}
}

// Dirty returns the slots flagged for upload and clears their flags.
func (a *Atlas) Dirty() []int {
	var out []int
	for i, t := range a.textures {
		if t.NeedsUpdate {
			out = append(out, i)
			t.NeedsUpdate = false
		}
	}
	return out
}
