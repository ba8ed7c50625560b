package layout

// Dim is the panel grid: X cells per row, Y rows per panel, Z panels.
type Dim struct{ X, Y, Z int }

type Serpentine struct {
	XFlipEveryRow   bool
	YFlipEveryPanel bool
}

// Layout describes how panel cells are chained on the physical strip.
type Layout struct {
	Dim   Dim
	Order Serpentine
}

// PanelGrid is the 8x8 wiring used by the panel firmware: rows alternate
// direction so the first LED is top left.
func PanelGrid(numPanels int) Layout {
	return Layout{
		Dim:   Dim{X: 8, Y: 8, Z: numPanels},
		Order: Serpentine{XFlipEveryRow: true},
	}
}

// Index maps x,y,z -> linear LED index (0..N-1)
func (l Layout) Index(x, y, z int) int {
	yy := y
	xx := x
	if (y%2 == 1) && l.Order.XFlipEveryRow {
		xx = l.Dim.X - 1 - x
	}
	if l.Order.YFlipEveryPanel && (z%2 == 1) {
		yy = l.Dim.Y - 1 - y
	}
	perPanel := l.Dim.X * l.Dim.Y
	return z*perPanel + yy*l.Dim.X + xx
}

func (l Layout) Count() int {
	return l.Dim.X * l.Dim.Y * l.Dim.Z
}
