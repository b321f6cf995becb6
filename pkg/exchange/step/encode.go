package step

import (
	"fmt"

	"github.com/chazu/asmdoc/pkg/asm"
	"github.com/chazu/asmdoc/pkg/kernel"
	"github.com/chazu/asmdoc/pkg/xform"
	"github.com/go-gl/mathgl/mgl64"
)

// productRep locates a product's definition and shape representation.
type productRep struct {
	pd int
	sr int
}

type encoder struct {
	doc *asm.Document
	s   *asm.Store
	w   writer

	prodCtx, pdCtx, geomCtx int
	origin, zDir, placement int

	parts map[asm.Address]productRep
}

func newEncoder(doc *asm.Document) *encoder {
	return &encoder{doc: doc, s: doc.Store(), parts: make(map[asm.Address]productRep)}
}

func (e *encoder) encode() error {
	w := &e.w
	app := w.add("APPLICATION_CONTEXT", str("automotive design"))
	w.add("APPLICATION_PROTOCOL_DEFINITION", str("international standard"), str("automotive_design"), "2000", ref(app))
	e.prodCtx = w.add("PRODUCT_CONTEXT", str(""), ref(app), str("mechanical"))
	e.pdCtx = w.add("PRODUCT_DEFINITION_CONTEXT", str("part definition"), ref(app), str("design"))
	e.geomCtx = w.add("GEOMETRIC_REPRESENTATION_CONTEXT", str("3D"), str("model"), "3")
	e.origin = w.add("CARTESIAN_POINT", str(""), reals(0, 0, 0))
	e.zDir = w.add("DIRECTION", str(""), reals(0, 0, 1))
	xDir := w.add("DIRECTION", str(""), reals(1, 0, 0))
	e.placement = w.add("AXIS2_PLACEMENT_3D", str(""), ref(e.origin), ref(e.zDir), ref(xDir))

	for _, addr := range e.s.Children(asm.LibraryAddress) {
		if err := e.part(addr); err != nil {
			return err
		}
	}
	root := e.product(string(asm.AssemblyAddress), "", e.placement)
	return e.occurrences(asm.AssemblyAddress, root)
}

// product writes the PRODUCT ... SHAPE_DEFINITION_REPRESENTATION chain.
func (e *encoder) product(id, name string, item int) productRep {
	w := &e.w
	p := w.add("PRODUCT", str(id), str(name), str(""), refs(e.prodCtx))
	f := w.add("PRODUCT_DEFINITION_FORMATION", str(""), str(""), ref(p))
	pd := w.add("PRODUCT_DEFINITION", str("design"), str(""), ref(f), ref(e.pdCtx))
	pds := w.add("PRODUCT_DEFINITION_SHAPE", str(""), str(""), ref(pd))
	sr := w.add("SHAPE_REPRESENTATION", str(name), refs(item), ref(e.geomCtx))
	w.add("SHAPE_DEFINITION_REPRESENTATION", ref(pds), ref(sr))
	return productRep{pd: pd, sr: sr}
}

func (e *encoder) part(addr asm.Address) error {
	l, _ := e.s.Get(addr)
	if l.Shape() == nil {
		return &asm.Error{Kind: asm.KindExportFailure, Address: addr, Err: asm.ErrNoGeometry}
	}
	prim, err := e.doc.Kernel().Describe(l.Shape())
	if err != nil {
		return &asm.Error{Kind: asm.KindExportFailure, Address: addr, Err: err}
	}
	tree, err := e.csg(prim)
	if err != nil {
		return &asm.Error{Kind: asm.KindExportFailure, Address: addr, Err: err}
	}
	solid := e.w.add("CSG_SOLID", str(l.Name()), ref(tree))
	e.parts[addr] = e.product(string(addr), l.Name(), solid)

	c, err := e.doc.GetLabelColor(addr)
	if err != nil {
		return &asm.Error{Kind: asm.KindExportFailure, Address: addr, Err: err}
	}
	if c.HasColor {
		e.style(c.Color(), solid)
	}
	return nil
}

// csg writes the CSG tree of p and returns its top entity.
func (e *encoder) csg(p kernel.Primitive) (int, error) {
	w := &e.w
	switch p.Kind {
	case kernel.PrimBox:
		return w.add("BLOCK", str(""), ref(e.placement), num(p.Size[0]), num(p.Size[1]), num(p.Size[2])), nil
	case kernel.PrimSphere:
		return w.add("SPHERE", str(""), num(p.Radius), ref(e.origin)), nil
	case kernel.PrimCylinder:
		// Centered on the origin; the STEP axis starts at the base.
		base := w.add("CARTESIAN_POINT", str(""), reals(0, 0, -p.Height/2))
		axis := w.add("AXIS1_PLACEMENT", str(""), ref(base), ref(e.zDir))
		return w.add("RIGHT_CIRCULAR_CYLINDER", str(""), ref(axis), num(p.Height), num(p.Radius)), nil
	case kernel.PrimCompound:
		if len(p.Children) == 0 {
			return 0, fmt.Errorf("empty compound")
		}
		acc, err := e.csg(p.Children[0])
		if err != nil {
			return 0, err
		}
		for _, c := range p.Children[1:] {
			next, err := e.csg(c)
			if err != nil {
				return 0, err
			}
			acc = w.add("BOOLEAN_RESULT", str(""), enum("UNION"), ref(acc), ref(next))
		}
		return acc, nil
	}
	return 0, fmt.Errorf("unsupported primitive %s", p.Kind)
}

// occurrences writes one usage occurrence per child of parent, recursing
// into nested assemblies. An instance whose part-label was removed fails
// the export.
func (e *encoder) occurrences(parent asm.Address, rep productRep) error {
	for _, addr := range e.s.Children(parent) {
		l, _ := e.s.Get(addr)
		switch l.Kind() {
		case asm.LabelAssembly:
			child := e.product(string(addr), l.Name(), e.placement)
			e.occurrence(l, rep, child)
			if err := e.occurrences(addr, child); err != nil {
				return err
			}
		case asm.LabelInstance:
			part, ok := e.parts[l.PartRef()]
			if !ok {
				return &asm.Error{Kind: asm.KindExportFailure, Address: addr,
					Err: fmt.Errorf("instance places missing part %s", l.PartRef())}
			}
			e.occurrence(l, rep, part)
		}
	}
	return nil
}

func (e *encoder) occurrence(l *asm.Label, parent, child productRep) {
	w := &e.w
	nauo := w.add("NEXT_ASSEMBLY_USAGE_OCCURRENCE",
		str(string(l.Address())), str(l.Name()), str(""), ref(parent.pd), ref(child.pd), unset)
	pds := w.add("PRODUCT_DEFINITION_SHAPE", str(""), str(""), ref(nauo))
	op := e.operator(l.Transform())
	rr := w.add("REPRESENTATION_RELATIONSHIP_WITH_TRANSFORMATION", str(""), str(""), ref(child.sr), ref(parent.sr), ref(op))
	w.add("CONTEXT_DEPENDENT_SHAPE_REPRESENTATION", ref(rr), ref(pds))
	if c, ok := l.Color(); ok {
		e.style(c, nauo)
	}
}

// operator writes t as a cartesian transformation operator whose axes are
// the columns of the rotation.
func (e *encoder) operator(t xform.Transform) int {
	w := &e.w
	m := t.Rotation.Mat4()
	axis := func(i int) int {
		return w.add("DIRECTION", str(""), vec(m.Col(i).Vec3()))
	}
	a1, a2, a3 := axis(0), axis(1), axis(2)
	o := w.add("CARTESIAN_POINT", str(""), vec(t.Translation))
	if s, ok := t.UniformScale(); ok {
		return w.add("CARTESIAN_TRANSFORMATION_OPERATOR_3D",
			str(""), str(""), ref(a1), ref(a2), ref(o), num(s), ref(a3))
	}
	return w.add("CARTESIAN_TRANSFORMATION_OPERATOR_3D_NON_UNIFORM",
		str(""), str(""), ref(a1), ref(a2), ref(o), num(t.Scale[0]), ref(a3), num(t.Scale[1]), num(t.Scale[2]))
}

// style attaches c to item.
func (e *encoder) style(c kernel.Color, item int) {
	w := &e.w
	rgb := w.add("COLOUR_RGB", str(""), num(c.R), num(c.G), num(c.B))
	fc := w.add("FILL_AREA_STYLE_COLOUR", str(""), ref(rgb))
	fs := w.add("FILL_AREA_STYLE", str(""), refs(fc))
	elems := []int{w.add("SURFACE_STYLE_FILL_AREA", ref(fs))}
	if c.A < 1 {
		elems = append(elems, w.add("SURFACE_STYLE_TRANSPARENT", num(1-c.A)))
	}
	side := w.add("SURFACE_SIDE_STYLE", str(""), refs(elems...))
	use := w.add("SURFACE_STYLE_USAGE", enum("BOTH"), ref(side))
	psa := w.add("PRESENTATION_STYLE_ASSIGNMENT", refs(use))
	w.add("STYLED_ITEM", str("color"), refs(psa), ref(item))
}

func vec(v mgl64.Vec3) string { return reals(v[0], v[1], v[2]) }
