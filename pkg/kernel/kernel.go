// Package kernel defines the abstract geometry kernel interface consumed by
// the assembly document. Implementations (sdfx) own shape construction,
// geometric property queries and tessellation; the document only ever holds
// opaque Shape handles and asks the kernel about them.
package kernel

import "errors"

// ErrReleased is returned when a shape handle is used after Release.
var ErrReleased = errors.New("kernel: shape handle already released")

// ErrForeignShape is returned when a handle created by another kernel is passed in.
var ErrForeignShape = errors.New("kernel: shape was not created by this kernel")

// Shape is an opaque handle to a kernel shape.
// Implementations wrap their internal representation.
type Shape interface {
	// BoundingBox returns the axis-aligned bounding box.
	BoundingBox() (min, max [3]float64)
}

// ShapeKind is the coarse topological classification of a shape.
type ShapeKind int

const (
	KindUnknown ShapeKind = iota
	KindSolid
	KindShell
	KindWire
	KindCompound
)

func (k ShapeKind) String() string {
	switch k {
	case KindSolid:
		return "solid"
	case KindShell:
		return "shell"
	case KindWire:
		return "wire"
	case KindCompound:
		return "compound"
	default:
		return "unknown"
	}
}

// Properties are the mass properties of a shape, assuming unit density.
type Properties struct {
	Volume       float64    `json:"volume"`
	Area         float64    `json:"area"`
	CenterOfMass [3]float64 `json:"centerOfMass"`
}

// Kernel is the abstract geometry kernel interface.
type Kernel interface {
	// Primitives
	Box(x, y, z float64) Shape
	Sphere(radius float64) Shape
	Cylinder(height, radius float64) Shape
	Compound(shapes ...Shape) (Shape, error)

	// Structural codec: every shape the kernel hands out can be described
	// as a Primitive tree and rebuilt from one.
	Build(p Primitive) (Shape, error)
	Describe(s Shape) (Primitive, error)

	// Queries
	Classify(s Shape) ShapeKind
	Properties(s Shape) (Properties, error)
	Color(s Shape) (Color, bool)

	// Tessellate meshes a shape at the given linear deflection (model units)
	// and angular deflection (radians).
	Tessellate(s Shape, deflection, angle float64) (*Mesh, error)

	// Release frees the handle. Releasing twice returns ErrReleased.
	Release(s Shape) error
}
