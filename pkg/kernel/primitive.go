package kernel

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PrimitiveKind distinguishes between primitive shape descriptions.
type PrimitiveKind int

const (
	PrimBox      PrimitiveKind = iota + 1 // rectangular solid, min corner at origin
	PrimSphere                            // sphere centered at origin
	PrimCylinder                          // cylinder along Z, centered at origin
	PrimCompound                          // collection of primitives
)

func (k PrimitiveKind) String() string {
	switch k {
	case PrimBox:
		return "box"
	case PrimSphere:
		return "sphere"
	case PrimCylinder:
		return "cylinder"
	case PrimCompound:
		return "compound"
	default:
		return "unknown"
	}
}

// ParsePrimitiveKind is the inverse of PrimitiveKind.String.
func ParsePrimitiveKind(s string) (PrimitiveKind, error) {
	switch strings.ToLower(s) {
	case "box":
		return PrimBox, nil
	case "sphere":
		return PrimSphere, nil
	case "cylinder":
		return PrimCylinder, nil
	case "compound":
		return PrimCompound, nil
	}
	return 0, fmt.Errorf("kernel: unknown primitive kind %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k PrimitiveKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *PrimitiveKind) UnmarshalText(b []byte) error {
	v, err := ParsePrimitiveKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Primitive is a kernel-independent description of a shape.
// Box uses Size; Sphere uses Radius; Cylinder uses Radius and Height;
// Compound uses Children.
type Primitive struct {
	Kind     PrimitiveKind `json:"kind"`
	Size     [3]float64    `json:"size,omitempty"`
	Radius   float64       `json:"radius,omitempty"`
	Height   float64       `json:"height,omitempty"`
	Children []Primitive   `json:"children,omitempty"`
	Color    *Color        `json:"color,omitempty"`
}

// Validate checks that the primitive describes a non-degenerate shape.
func (p Primitive) Validate() error {
	switch p.Kind {
	case PrimBox:
		if p.Size[0] <= 0 || p.Size[1] <= 0 || p.Size[2] <= 0 {
			return fmt.Errorf("box size %v must be positive", p.Size)
		}
	case PrimSphere:
		if p.Radius <= 0 {
			return fmt.Errorf("sphere radius %g must be positive", p.Radius)
		}
	case PrimCylinder:
		if p.Radius <= 0 || p.Height <= 0 {
			return fmt.Errorf("cylinder radius %g and height %g must be positive", p.Radius, p.Height)
		}
	case PrimCompound:
		if len(p.Children) == 0 {
			return fmt.Errorf("compound has no children")
		}
		for i, c := range p.Children {
			if err := c.Validate(); err != nil {
				return fmt.Errorf("compound child %d: %w", i, err)
			}
		}
	default:
		return fmt.Errorf("unknown primitive kind %d", int(p.Kind))
	}
	return nil
}

// String renders a compact description, e.g. "box(10x10x10)".
func (p Primitive) String() string {
	switch p.Kind {
	case PrimBox:
		return fmt.Sprintf("box(%gx%gx%g)", p.Size[0], p.Size[1], p.Size[2])
	case PrimSphere:
		return fmt.Sprintf("sphere(r=%g)", p.Radius)
	case PrimCylinder:
		return fmt.Sprintf("cylinder(r=%g,h=%g)", p.Radius, p.Height)
	case PrimCompound:
		parts := make([]string, len(p.Children))
		for i, c := range p.Children {
			parts[i] = c.String()
		}
		return "compound(" + strings.Join(parts, ",") + ")"
	}
	return "unknown"
}

// Color is an RGBA color with components in 0..1.
type Color struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
	A float64 `json:"a"`
}

// RGB returns an opaque color.
func RGB(r, g, b float64) Color {
	return Color{R: r, G: g, B: b, A: 1}
}

// Clamped returns the color with every component clamped into 0..1.
func (c Color) Clamped() Color {
	return Color{R: clamp01(c.R), G: clamp01(c.G), B: clamp01(c.B), A: clamp01(c.A)}
}

// Array returns the components as [r, g, b, a].
func (c Color) Array() [4]float64 {
	return [4]float64{c.R, c.G, c.B, c.A}
}

// UnmarshalJSON accepts either {"r":..,"g":..,"b":..,"a":..} or an array
// [r, g, b] / [r, g, b, a]. Alpha defaults to 1.
func (c *Color) UnmarshalJSON(b []byte) error {
	var arr []float64
	if err := json.Unmarshal(b, &arr); err == nil {
		col, err := ColorFromSlice(arr)
		if err != nil {
			return err
		}
		*c = col
		return nil
	}
	type plain Color
	v := plain{A: 1}
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("color: %w", err)
	}
	*c = Color(v)
	return nil
}

// ColorFromSlice builds a color from 3 or 4 components.
func ColorFromSlice(v []float64) (Color, error) {
	switch len(v) {
	case 3:
		return Color{R: v[0], G: v[1], B: v[2], A: 1}, nil
	case 4:
		return Color{R: v[0], G: v[1], B: v[2], A: v[3]}, nil
	}
	return Color{}, fmt.Errorf("color needs 3 or 4 components, got %d", len(v))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
