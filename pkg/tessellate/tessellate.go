// Package tessellate turns the parts of an assembly document into triangle
// meshes using the document's geometry kernel. Each part is meshed once in
// its own coordinates; Flatten places copies in world space, one per
// instance, for front ends that want a single coordinate frame.
package tessellate

import (
	"context"
	"fmt"

	"github.com/chazu/asmdoc/pkg/asm"
	"github.com/chazu/asmdoc/pkg/kernel"
	"github.com/chazu/asmdoc/pkg/xform"
	"github.com/go-gl/mathgl/mgl64"
)

// Options control meshing.
type Options struct {
	Deflection float64 // linear deflection in model units
	Angle      float64 // angular deflection in radians
	MergeFaces bool    // weld coincident vertices across faces
	ForceUVs   bool    // always emit texture coordinates
}

// DefaultOptions returns moderate tolerances.
func DefaultOptions() Options {
	return Options{Deflection: 1, Angle: 0.5}
}

// weldTolerance is the distance under which MergeFaces joins vertices.
const weldTolerance = 1e-5

// Tessellator meshes document parts and caches the result per part-label.
// Like the document it reads, it is not safe for concurrent use.
type Tessellator struct {
	doc   *asm.Document
	opts  Options
	cache map[asm.Address]*kernel.Mesh
}

// New creates a tessellator for doc.
func New(doc *asm.Document, opts Options) *Tessellator {
	return &Tessellator{doc: doc, opts: opts, cache: make(map[asm.Address]*kernel.Mesh)}
}

// Part returns the mesh of a part-label, or of the part behind an
// instance-label, in part coordinates. The returned mesh is shared; callers
// must not modify it.
func (t *Tessellator) Part(addr asm.Address) (*kernel.Mesh, error) {
	part := addr
	if l, ok := t.doc.Store().Get(addr); ok && l.Kind() == asm.LabelInstance {
		part = l.PartRef()
	}
	if m, ok := t.cache[part]; ok {
		return m, nil
	}
	shape, err := t.doc.GetShapeFromLabel(part)
	if err != nil {
		return nil, err
	}
	m, err := t.doc.Kernel().Tessellate(shape, t.opts.Deflection, t.opts.Angle)
	if err != nil {
		return nil, fmt.Errorf("tessellate: part %s: %w", part, err)
	}
	if t.opts.MergeFaces {
		m = m.Weld(weldTolerance)
	}
	if t.opts.ForceUVs {
		m.ProjectUVs()
	}
	if l, ok := t.doc.Store().Get(part); ok {
		m.PartName = l.Name()
	}
	t.cache[part] = m
	return m, nil
}

// Placement is one instance of a part positioned in world space.
type Placement struct {
	Instance asm.Address
	Part     asm.Address
	Name     string
	World    xform.Transform
	Matrix   mgl64.Mat4
	Color    asm.LabelColor
}

// transformStack accumulates label transforms during hierarchy traversal.
type transformStack struct {
	mats []mgl64.Mat4
}

func newTransformStack() *transformStack {
	return &transformStack{mats: []mgl64.Mat4{mgl64.Ident4()}}
}

func (ts *transformStack) push(m mgl64.Mat4) {
	ts.mats = append(ts.mats, ts.top().Mul4(m))
}

func (ts *transformStack) pop() {
	if len(ts.mats) > 1 {
		ts.mats = ts.mats[:len(ts.mats)-1]
	}
}

func (ts *transformStack) top() mgl64.Mat4 {
	return ts.mats[len(ts.mats)-1]
}

// Placements lists every instance whose part still has geometry, in
// hierarchy preorder, with its accumulated world transform.
func Placements(doc *asm.Document) ([]Placement, error) {
	s := doc.Store()
	if s == nil {
		return nil, asm.ErrClosed
	}
	var out []Placement
	ts := newTransformStack()
	var walk func(addr asm.Address) error
	walk = func(addr asm.Address) error {
		l, ok := s.Get(addr)
		if !ok {
			return nil
		}
		ts.push(l.Transform().Matrix())
		defer ts.pop()

		switch l.Kind() {
		case asm.LabelInstance:
			if _, err := doc.GetShapeFromLabel(addr); err != nil {
				return nil // part removed; nothing to place
			}
			info, err := doc.GetLabelInfo(addr)
			if err != nil {
				return err
			}
			m := ts.top()
			out = append(out, Placement{
				Instance: addr,
				Part:     l.PartRef(),
				Name:     info.Name,
				World:    xform.Decompose(m),
				Matrix:   m,
				Color:    info.Color,
			})
		default:
			for _, c := range l.Children() {
				if err := walk(c); err != nil {
					return err
				}
			}
		}
		return nil
	}
	for _, c := range s.Children(asm.AssemblyAddress) {
		if err := walk(c); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Flatten returns one world-space mesh per placed instance. It checks ctx
// between instances.
func Flatten(ctx context.Context, doc *asm.Document, opts Options) ([]*kernel.Mesh, error) {
	places, err := Placements(doc)
	if err != nil {
		return nil, err
	}
	t := New(doc, opts)
	meshes := make([]*kernel.Mesh, 0, len(places))
	for _, p := range places {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		local, err := t.Part(p.Part)
		if err != nil {
			return nil, err
		}
		m := transformMesh(local, p.Matrix)
		m.PartName = p.Name
		meshes = append(meshes, m)
	}
	return meshes, nil
}

// transformMesh returns a copy of m with positions mapped by mat and
// normals by its inverse transpose.
func transformMesh(m *kernel.Mesh, mat mgl64.Mat4) *kernel.Mesh {
	out := m.Clone()
	nm := mat.Mat3().Inv().Transpose()
	for i := 0; i+2 < len(out.Vertices); i += 3 {
		p := mgl64.TransformCoordinate(mgl64.Vec3{
			float64(out.Vertices[i]), float64(out.Vertices[i+1]), float64(out.Vertices[i+2]),
		}, mat)
		out.Vertices[i], out.Vertices[i+1], out.Vertices[i+2] = float32(p[0]), float32(p[1]), float32(p[2])
	}
	for i := 0; i+2 < len(out.Normals); i += 3 {
		n := nm.Mul3x1(mgl64.Vec3{
			float64(out.Normals[i]), float64(out.Normals[i+1]), float64(out.Normals[i+2]),
		})
		if l := n.Len(); l > 0 {
			n = n.Mul(1 / l)
		}
		out.Normals[i], out.Normals[i+1], out.Normals[i+2] = float32(n[0]), float32(n[1]), float32(n[2])
	}
	return out
}
