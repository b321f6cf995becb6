// Package sdfx implements the kernel.Kernel interface using the
// github.com/deadsy/sdfx SDF-based CAD library.
//
// Shapes keep the primitive description they were built from. Mass
// properties are computed analytically from that description; meshes come
// from sdfx's marching cubes renderer.
package sdfx

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/chazu/asmdoc/pkg/kernel"
	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Compile-time interface check.
var _ kernel.Kernel = (*SdfxKernel)(nil)

const (
	// defaultMeshCells caps marching cubes resolution along the longest axis.
	defaultMeshCells = 200
	// minMeshCells keeps coarse deflections from collapsing small shapes.
	minMeshCells = 8
)

// sdfxSolid wraps an sdf.SDF3 together with its primitive description.
type sdfxSolid struct {
	owner    *SdfxKernel
	prim     kernel.Primitive
	s        sdf.SDF3
	released bool
}

// BoundingBox returns the axis-aligned bounding box.
func (s *sdfxSolid) BoundingBox() (min, max [3]float64) {
	return primBounds(s.prim)
}

// SdfxKernel implements kernel.Kernel using sdfx.
// Like every kernel it is meant to be driven from one goroutine per document.
type SdfxKernel struct {
	maxCells int
	live     atomic.Int64
}

// Option configures an SdfxKernel.
type Option func(*SdfxKernel)

// WithMaxCells caps the marching cubes grid resolution.
func WithMaxCells(n int) Option {
	return func(k *SdfxKernel) {
		if n >= minMeshCells {
			k.maxCells = n
		}
	}
}

// New returns a new SdfxKernel.
func New(opts ...Option) *SdfxKernel {
	k := &SdfxKernel{maxCells: defaultMeshCells}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Live reports how many handles were created and not yet released.
func (k *SdfxKernel) Live() int {
	return int(k.live.Load())
}

// unwrap extracts the underlying solid from a kernel.Shape.
func (k *SdfxKernel) unwrap(s kernel.Shape) (*sdfxSolid, error) {
	solid, ok := s.(*sdfxSolid)
	if !ok || solid.owner != k {
		return nil, kernel.ErrForeignShape
	}
	if solid.released {
		return nil, kernel.ErrReleased
	}
	return solid, nil
}

// wrap creates a kernel.Shape from an sdf.SDF3 and its description.
func (k *SdfxKernel) wrap(p kernel.Primitive, s sdf.SDF3) kernel.Shape {
	k.live.Add(1)
	return &sdfxSolid{owner: k, prim: p, s: s}
}

// Box creates a box with the given dimensions. The resulting solid has its
// minimum corner at the origin (0,0,0) so that instance translations place
// the corner. sdf.Box3D centers the box at the origin, so we translate by
// half-dimensions.
func (k *SdfxKernel) Box(x, y, z float64) kernel.Shape {
	s, err := k.Build(kernel.Primitive{Kind: kernel.PrimBox, Size: [3]float64{x, y, z}})
	if err != nil {
		panic(fmt.Sprintf("sdfx.Box3D: %v", err))
	}
	return s
}

// Sphere creates a sphere centered at the origin.
func (k *SdfxKernel) Sphere(radius float64) kernel.Shape {
	s, err := k.Build(kernel.Primitive{Kind: kernel.PrimSphere, Radius: radius})
	if err != nil {
		panic(fmt.Sprintf("sdfx.Sphere3D: %v", err))
	}
	return s
}

// Cylinder creates a cylinder along Z centered at the origin.
func (k *SdfxKernel) Cylinder(height, radius float64) kernel.Shape {
	s, err := k.Build(kernel.Primitive{Kind: kernel.PrimCylinder, Radius: radius, Height: height})
	if err != nil {
		panic(fmt.Sprintf("sdfx.Cylinder3D: %v", err))
	}
	return s
}

// Compound groups shapes into a single compound shape. The inputs stay
// valid and independently owned.
func (k *SdfxKernel) Compound(shapes ...kernel.Shape) (kernel.Shape, error) {
	p := kernel.Primitive{Kind: kernel.PrimCompound}
	for i, s := range shapes {
		solid, err := k.unwrap(s)
		if err != nil {
			return nil, fmt.Errorf("sdfx: compound member %d: %w", i, err)
		}
		p.Children = append(p.Children, solid.prim)
	}
	return k.Build(p)
}

// Build constructs a shape from its primitive description.
func (k *SdfxKernel) Build(p kernel.Primitive) (kernel.Shape, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("sdfx: %w", err)
	}
	s, err := buildSDF(p)
	if err != nil {
		return nil, err
	}
	return k.wrap(clonePrimitive(p), s), nil
}

func buildSDF(p kernel.Primitive) (sdf.SDF3, error) {
	switch p.Kind {
	case kernel.PrimBox:
		s, err := sdf.Box3D(v3.Vec{X: p.Size[0], Y: p.Size[1], Z: p.Size[2]}, 0)
		if err != nil {
			return nil, fmt.Errorf("sdfx.Box3D: %w", err)
		}
		// Shift from center-origin to min-corner-origin.
		m := sdf.Translate3d(v3.Vec{X: p.Size[0] / 2, Y: p.Size[1] / 2, Z: p.Size[2] / 2})
		return sdf.Transform3D(s, m), nil
	case kernel.PrimSphere:
		s, err := sdf.Sphere3D(p.Radius)
		if err != nil {
			return nil, fmt.Errorf("sdfx.Sphere3D: %w", err)
		}
		return s, nil
	case kernel.PrimCylinder:
		s, err := sdf.Cylinder3D(p.Height, p.Radius, 0)
		if err != nil {
			return nil, fmt.Errorf("sdfx.Cylinder3D: %w", err)
		}
		return s, nil
	case kernel.PrimCompound:
		members := make([]sdf.SDF3, 0, len(p.Children))
		for _, c := range p.Children {
			s, err := buildSDF(c)
			if err != nil {
				return nil, err
			}
			members = append(members, s)
		}
		if len(members) == 1 {
			return members[0], nil
		}
		return sdf.Union3D(members...), nil
	}
	return nil, fmt.Errorf("sdfx: unsupported primitive %s", p.Kind)
}

// Describe returns the primitive description of a shape.
func (k *SdfxKernel) Describe(s kernel.Shape) (kernel.Primitive, error) {
	solid, err := k.unwrap(s)
	if err != nil {
		return kernel.Primitive{}, err
	}
	return clonePrimitive(solid.prim), nil
}

// Classify returns the coarse topological kind of a shape.
func (k *SdfxKernel) Classify(s kernel.Shape) kernel.ShapeKind {
	solid, err := k.unwrap(s)
	if err != nil {
		return kernel.KindUnknown
	}
	switch solid.prim.Kind {
	case kernel.PrimBox, kernel.PrimSphere, kernel.PrimCylinder:
		return kernel.KindSolid
	case kernel.PrimCompound:
		return kernel.KindCompound
	}
	return kernel.KindUnknown
}

// Properties returns volume, surface area and center of mass.
func (k *SdfxKernel) Properties(s kernel.Shape) (kernel.Properties, error) {
	solid, err := k.unwrap(s)
	if err != nil {
		return kernel.Properties{}, err
	}
	return primProperties(solid.prim), nil
}

// Color returns the color carried by the shape itself, if any.
func (k *SdfxKernel) Color(s kernel.Shape) (kernel.Color, bool) {
	solid, err := k.unwrap(s)
	if err != nil || solid.prim.Color == nil {
		return kernel.Color{}, false
	}
	return *solid.prim.Color, true
}

// Release marks the handle as freed. The SDF tree is left to the garbage
// collector; the flag turns any later use into ErrReleased.
func (k *SdfxKernel) Release(s kernel.Shape) error {
	solid, err := k.unwrap(s)
	if err != nil {
		return err
	}
	solid.released = true
	k.live.Add(-1)
	return nil
}

// Tessellate converts a shape to a triangle mesh using marching cubes.
// The grid resolution follows from the linear deflection along the longest
// axis; the angular deflection raises it for curved primitives.
func (k *SdfxKernel) Tessellate(s kernel.Shape, deflection, angle float64) (*kernel.Mesh, error) {
	solid, err := k.unwrap(s)
	if err != nil {
		return nil, err
	}
	if deflection <= 0 {
		return nil, fmt.Errorf("sdfx: mesh deflection must be positive, got %g", deflection)
	}

	cells := k.meshCells(solid.prim, deflection, angle)
	renderer := render.NewMarchingCubesUniform(cells)
	triangles := render.ToTriangles(solid.s, renderer)

	numTri := len(triangles)
	numVerts := numTri * 3

	vertices := make([]float32, 0, numVerts*3)
	normals := make([]float32, 0, numVerts*3)
	indices := make([]uint32, 0, numVerts)

	for i, tri := range triangles {
		// Compute face normal.
		n := tri.Normal()
		nx := float32(n.X)
		ny := float32(n.Y)
		nz := float32(n.Z)

		for j := 0; j < 3; j++ {
			v := tri[j]
			vertices = append(vertices, float32(v.X), float32(v.Y), float32(v.Z))
			normals = append(normals, nx, ny, nz)
			indices = append(indices, uint32(i*3+j))
		}
	}

	return &kernel.Mesh{
		Vertices: vertices,
		Normals:  normals,
		Indices:  indices,
	}, nil
}

func (k *SdfxKernel) meshCells(p kernel.Primitive, deflection, angle float64) int {
	min, max := primBounds(p)
	longest := math.Max(max[0]-min[0], math.Max(max[1]-min[1], max[2]-min[2]))
	cells := int(math.Ceil(longest/deflection)) + 2
	if angle > 0 && hasCurvature(p) {
		if byAngle := int(math.Ceil(2 * math.Pi / angle)); byAngle > cells {
			cells = byAngle
		}
	}
	if cells < minMeshCells {
		cells = minMeshCells
	}
	if cells > k.maxCells {
		cells = k.maxCells
	}
	return cells
}

func hasCurvature(p kernel.Primitive) bool {
	switch p.Kind {
	case kernel.PrimSphere, kernel.PrimCylinder:
		return true
	case kernel.PrimCompound:
		for _, c := range p.Children {
			if hasCurvature(c) {
				return true
			}
		}
	}
	return false
}

func primBounds(p kernel.Primitive) (min, max [3]float64) {
	switch p.Kind {
	case kernel.PrimBox:
		return [3]float64{}, p.Size
	case kernel.PrimSphere:
		r := p.Radius
		return [3]float64{-r, -r, -r}, [3]float64{r, r, r}
	case kernel.PrimCylinder:
		r, h := p.Radius, p.Height/2
		return [3]float64{-r, -r, -h}, [3]float64{r, r, h}
	case kernel.PrimCompound:
		for i, c := range p.Children {
			cmin, cmax := primBounds(c)
			if i == 0 {
				min, max = cmin, cmax
				continue
			}
			for a := 0; a < 3; a++ {
				min[a] = math.Min(min[a], cmin[a])
				max[a] = math.Max(max[a], cmax[a])
			}
		}
	}
	return min, max
}

func primProperties(p kernel.Primitive) kernel.Properties {
	switch p.Kind {
	case kernel.PrimBox:
		x, y, z := p.Size[0], p.Size[1], p.Size[2]
		return kernel.Properties{
			Volume:       x * y * z,
			Area:         2 * (x*y + y*z + z*x),
			CenterOfMass: [3]float64{x / 2, y / 2, z / 2},
		}
	case kernel.PrimSphere:
		r := p.Radius
		return kernel.Properties{
			Volume: 4.0 / 3.0 * math.Pi * r * r * r,
			Area:   4 * math.Pi * r * r,
		}
	case kernel.PrimCylinder:
		r, h := p.Radius, p.Height
		return kernel.Properties{
			Volume: math.Pi * r * r * h,
			Area:   2 * math.Pi * r * (r + h),
		}
	case kernel.PrimCompound:
		var out kernel.Properties
		var weighted [3]float64
		for _, c := range p.Children {
			cp := primProperties(c)
			out.Volume += cp.Volume
			out.Area += cp.Area
			for a := 0; a < 3; a++ {
				weighted[a] += cp.CenterOfMass[a] * cp.Volume
			}
		}
		if out.Volume > 0 {
			for a := 0; a < 3; a++ {
				out.CenterOfMass[a] = weighted[a] / out.Volume
			}
		}
		return out
	}
	return kernel.Properties{}
}

func clonePrimitive(p kernel.Primitive) kernel.Primitive {
	out := p
	if p.Color != nil {
		c := *p.Color
		out.Color = &c
	}
	if p.Children != nil {
		out.Children = make([]kernel.Primitive, len(p.Children))
		for i, c := range p.Children {
			out.Children[i] = clonePrimitive(c)
		}
	}
	return out
}
