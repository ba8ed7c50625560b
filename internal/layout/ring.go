package layout

import "math"

const (
	PanelSize  = 1.6
	PanelDepth = 0.2
	// DefaultHeight is the gap between the ground and a panel's lower edge.
	DefaultHeight   = 0.4
	DefaultDiameter = 20.0

	FootHeight        = 0.05
	ButtonStandInset  = 0.6
	ButtonStandHeight = 1.0
)

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Transform places one object in the ground plane ring.
type Transform struct {
	Position  Vec3    `json:"position"`
	RotationY float64 `json:"rotation_y"`
}

// Cylinder is a transform plus the size of a round support part.
type Cylinder struct {
	Transform
	Diameter float64 `json:"diameter"`
	Length   float64 `json:"length"`
}

// Ring holds the parameters of the circular panel arrangement.
type Ring struct {
	NumPanels           int
	Diameter            float64
	Height              float64
	PoleDiameter        float64
	FootDiameter        float64
	ButtonPolesDiameter float64
}

func DefaultRing(numPanels int) Ring {
	return Ring{NumPanels: numPanels, Diameter: DefaultDiameter, Height: DefaultHeight}
}

// Scene is every computed transform of the ring. Support slices are empty
// when their diameter is zero.
type Scene struct {
	Panels       []Transform `json:"panels"`
	Poles        []Cylinder  `json:"poles,omitempty"`
	Feet         []Cylinder  `json:"feet,omitempty"`
	ButtonStands []Cylinder  `json:"button_stands,omitempty"`
}

// Angle is the ring angle of panel i.
func (r Ring) Angle(i int) float64 {
	return float64(i) / float64(r.NumPanels) * math.Pi * 2
}

func (r Ring) at(angle, radius, y float64) Transform {
	return Transform{
		Position:  Vec3{X: radius * math.Sin(angle), Y: y, Z: radius * math.Cos(angle)},
		RotationY: angle + math.Pi,
	}
}

// Compute derives all transforms from the parameters. It holds no state, so
// equal parameters give identical output.
func (r Ring) Compute() Scene {
	var s Scene
	if r.NumPanels <= 0 {
		return s
	}
	radius := r.Diameter / 2
	s.Panels = make([]Transform, r.NumPanels)
	for i := range s.Panels {
		s.Panels[i] = r.at(r.Angle(i), radius, PanelSize/2+r.Height)
	}

	top := r.Height + PanelSize
	if r.PoleDiameter > 0 {
		poleRadius := radius + PanelDepth + r.PoleDiameter/2
		for i := 0; i < r.NumPanels; i++ {
			s.Poles = append(s.Poles, Cylinder{
				Transform: r.at(r.Angle(i), poleRadius, top/2),
				Diameter:  r.PoleDiameter,
				Length:    top,
			})
		}
		if r.FootDiameter > 0 {
			for i := 0; i < r.NumPanels; i++ {
				s.Feet = append(s.Feet, Cylinder{
					Transform: r.at(r.Angle(i), poleRadius, FootHeight/2),
					Diameter:  r.FootDiameter,
					Length:    FootHeight,
				})
			}
		}
	}
	if r.ButtonPolesDiameter > 0 {
		for i := 0; i < r.NumPanels; i++ {
			s.ButtonStands = append(s.ButtonStands, Cylinder{
				Transform: r.at(r.Angle(i), radius-ButtonStandInset, ButtonStandHeight/2),
				Diameter:  r.ButtonPolesDiameter,
				Length:    ButtonStandHeight,
			})
		}
	}
	return s
}
