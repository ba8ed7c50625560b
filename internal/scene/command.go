package scene

import (
	"encoding/json"
	"fmt"

	"github.com/coreman2200/ledring/internal/frame"
	"github.com/coreman2200/ledring/internal/layout"
)

// Command is one state change for the panel scene. Commands are applied
// synchronously, in order, on the host thread.
type Command interface {
	apply(s *Scene)
}

type (
	SetDiameter            struct{ Value float64 }
	SetHeight              struct{ Value float64 }
	SetPoleDiameter        struct{ Value float64 }
	SetFootDiameter        struct{ Value float64 }
	SetButtonPolesDiameter struct{ Value float64 }
	SetStrength            struct{ Value float64 }
	// SetMove sets the first-person movement input. X is strafe, Y is forward.
	SetMove     struct{ X, Y float64 }
	SetPosition struct{ Position layout.Vec3 }
	// NewFrame replaces the pending pixel buffer.
	NewFrame struct{ Pixels []frame.Pixel }
)

func (c SetDiameter) apply(s *Scene)     { s.ring.Diameter = c.Value; s.layoutChanged = true }
func (c SetHeight) apply(s *Scene)       { s.ring.Height = c.Value; s.layoutChanged = true }
func (c SetPoleDiameter) apply(s *Scene) { s.ring.PoleDiameter = c.Value; s.layoutChanged = true }
func (c SetFootDiameter) apply(s *Scene) { s.ring.FootDiameter = c.Value; s.layoutChanged = true }
func (c SetButtonPolesDiameter) apply(s *Scene) {
	s.ring.ButtonPolesDiameter = c.Value
	s.layoutChanged = true
}
func (c SetStrength) apply(s *Scene) { s.strength = c.Value; s.strengthChanged = true }
func (c SetMove) apply(s *Scene)     { s.move = [2]float64{c.X, c.Y} }
func (c SetPosition) apply(s *Scene) { s.position = c.Position; s.viewerChanged = true }
func (c NewFrame) apply(s *Scene) {
	s.pixels.Replace(c.Pixels)
	s.frames++
	s.frameDirty = true
}

// Param is the body of a param event. Only fields present in the payload
// produce commands; a zero value is still applied.
type Param struct {
	Diameter            *float64    `json:"diameter,omitempty"`
	Height              *float64    `json:"height,omitempty"`
	PoleDiameter        *float64    `json:"pole_diameter,omitempty"`
	FootDiameter        *float64    `json:"foot_diameter,omitempty"`
	ButtonPolesDiameter *float64    `json:"button_poles_diameter,omitempty"`
	Move                *[2]float64 `json:"move,omitempty"`
	Position            *[3]float64 `json:"position,omitempty"`
	Strength            *float64    `json:"strength,omitempty"`
}

// ParseParam reads a param payload, bare or wrapped as {"param": {...}}.
func ParseParam(payload []byte) (Param, error) {
	var wrapped struct {
		Param *Param `json:"param"`
	}
	if err := json.Unmarshal(payload, &wrapped); err != nil {
		return Param{}, fmt.Errorf("parse param: %w", err)
	}
	if wrapped.Param != nil {
		return *wrapped.Param, nil
	}
	var p Param
	if err := json.Unmarshal(payload, &p); err != nil {
		return Param{}, fmt.Errorf("parse param: %w", err)
	}
	return p, nil
}

// Geometry reports whether p touches the ring layout.
func (p Param) Geometry() bool {
	return p.Diameter != nil || p.Height != nil || p.PoleDiameter != nil ||
		p.FootDiameter != nil || p.ButtonPolesDiameter != nil
}

func (p Param) Commands() []Command {
	var cmds []Command
	if p.Diameter != nil {
		cmds = append(cmds, SetDiameter{*p.Diameter})
	}
	if p.Height != nil {
		cmds = append(cmds, SetHeight{*p.Height})
	}
	if p.PoleDiameter != nil {
		cmds = append(cmds, SetPoleDiameter{*p.PoleDiameter})
	}
	if p.FootDiameter != nil {
		cmds = append(cmds, SetFootDiameter{*p.FootDiameter})
	}
	if p.ButtonPolesDiameter != nil {
		cmds = append(cmds, SetButtonPolesDiameter{*p.ButtonPolesDiameter})
	}
	if p.Move != nil {
		cmds = append(cmds, SetMove{X: p.Move[0], Y: p.Move[1]})
	}
	if p.Position != nil {
		cmds = append(cmds, SetPosition{layout.Vec3{X: p.Position[0], Y: p.Position[1], Z: p.Position[2]}})
	}
	if p.Strength != nil {
		cmds = append(cmds, SetStrength{*p.Strength})
	}
	return cmds
}
