package surface

import "github.com/coreman2200/ledring/internal/layout"

// TextureUpload carries one changed panel texture. Slot is the atlas slot;
// RGBA is the 8x8x4 backing store.
type TextureUpload struct {
	Slot int    `json:"slot"`
	RGBA []byte `json:"rgba"`
}

// Viewer is the first-person camera state.
type Viewer struct {
	Position layout.Vec3 `json:"position"`
	Move     [2]float64  `json:"move"`
}

// SceneUpdate is presented by the panel scene after a tick that changed
// something. Layout is nil when the ring geometry did not change. Frames
// counts the frames accepted since mount.
type SceneUpdate struct {
	ID        string          `json:"id"`
	NumPanels int             `json:"num_panels"`
	Frames    uint64          `json:"frames"`
	Textures  []TextureUpload `json:"textures,omitempty"`
	Layout    *layout.Scene   `json:"layout,omitempty"`
	Viewer    *Viewer         `json:"viewer,omitempty"`
	Strength  float64         `json:"strength"`
}

// XY is one chart point.
type XY struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Dataset is one chart line with its styling.
type Dataset struct {
	Label           string `json:"label"`
	BorderColor     string `json:"borderColor"`
	BackgroundColor string `json:"backgroundColor"`
	BorderWidth     int    `json:"borderWidth"`
	Data            []XY   `json:"data"`
}

// ChartUpdate replaces the chart's datasets in one redraw.
type ChartUpdate struct {
	ID       string    `json:"id"`
	Datasets []Dataset `json:"datasets"`
}
