package step

import (
	"fmt"

	"github.com/chazu/asmdoc/pkg/asm"
	"github.com/chazu/asmdoc/pkg/kernel"
	"github.com/chazu/asmdoc/pkg/structdef"
	"github.com/chazu/asmdoc/pkg/xform"
	"github.com/go-gl/mathgl/mgl64"
)

// maxCSGDepth bounds BOOLEAN_RESULT nesting.
const maxCSGDepth = 512

// Decode parses an exchange file into a Structure Definition with inline
// primitive parts and one root-level instance per leaf placement, plus the
// file's header. Errors are ImportFailure.
func Decode(data []byte) (*structdef.Definition, Header, error) {
	fail := func(err error) (*structdef.Definition, Header, error) {
		return nil, Header{}, &asm.Error{Kind: asm.KindImportFailure, Err: err}
	}
	text, err := inflate(data)
	if err != nil {
		return fail(fmt.Errorf("decompress: %w", err))
	}
	f, err := parseFile(text)
	if err != nil {
		return fail(err)
	}
	d := &decoder{f: f}
	def, err := d.definition()
	if err != nil {
		return fail(err)
	}
	return def, f.fileHeader(), nil
}

// fileHeader reads FILE_NAME.
func (f *file) fileHeader() Header {
	ps := f.header["FILE_NAME"]
	first := func(i int) string {
		if i >= len(ps) {
			return ""
		}
		switch v := ps[i].(type) {
		case string:
			return v
		case []any:
			if len(v) > 0 {
				s, _ := v[0].(string)
				return s
			}
		}
		return ""
	}
	return Header{FileName: first(0), Author: first(2), Organization: first(3)}
}

// ---------------------------------------------------------------------------
// Entity access
// ---------------------------------------------------------------------------

// deref resolves a reference parameter, optionally requiring one of names.
func (f *file) deref(v any, names ...string) (*Entity, error) {
	r, ok := v.(Ref)
	if !ok {
		return nil, fmt.Errorf("expected entity reference, got %T", v)
	}
	e, ok := f.entities[int(r)]
	if !ok {
		return nil, fmt.Errorf("dangling reference #%d", r)
	}
	if len(names) == 0 {
		return e, nil
	}
	for _, n := range names {
		if e.Name == n {
			return e, nil
		}
	}
	return nil, fmt.Errorf("#%d is %s, want %v", e.ID, e.Name, names)
}

func (e *Entity) param(i int) (any, error) {
	if i >= len(e.Params) {
		return nil, fmt.Errorf("#%d %s: missing parameter %d", e.ID, e.Name, i)
	}
	return e.Params[i], nil
}

func (e *Entity) float(i int) (float64, error) {
	v, err := e.param(i)
	if err != nil {
		return 0, err
	}
	if t, ok := v.(Typed); ok && len(t.Params) == 1 {
		v = t.Params[0]
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("#%d %s: parameter %d is %T, want number", e.ID, e.Name, i, v)
	}
	return f, nil
}

func (e *Entity) str(i int) string {
	v, _ := e.param(i)
	s, _ := v.(string)
	return s
}

func (e *Entity) list(i int) ([]any, error) {
	v, err := e.param(i)
	if err != nil {
		return nil, err
	}
	l, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("#%d %s: parameter %d is %T, want list", e.ID, e.Name, i, v)
	}
	return l, nil
}

// triple reads the coordinate list of a CARTESIAN_POINT or DIRECTION.
func (f *file) triple(v any, name string) (mgl64.Vec3, error) {
	e, err := f.deref(v, name)
	if err != nil {
		return mgl64.Vec3{}, err
	}
	l, err := e.list(1)
	if err != nil {
		return mgl64.Vec3{}, err
	}
	var out mgl64.Vec3
	for i := 0; i < 3 && i < len(l); i++ {
		c, ok := l[i].(float64)
		if !ok {
			return mgl64.Vec3{}, fmt.Errorf("#%d %s: bad coordinate", e.ID, e.Name)
		}
		out[i] = c
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Assembly structure
// ---------------------------------------------------------------------------

type occurrence struct {
	id     int
	name   string
	parent int // PRODUCT_DEFINITION
	child  int
	mat    mgl64.Mat4
}

type decoder struct {
	f *file

	names    map[int]string // PRODUCT_DEFINITION -> product name
	solids   map[int]int    // PRODUCT_DEFINITION -> CSG_SOLID, parts only
	colors   map[int]kernel.Color
	occs     map[int]*occurrence
	children map[int][]*occurrence

	def   *structdef.Definition
	parts map[int]string // PRODUCT_DEFINITION -> part id
	next  int
}

func (d *decoder) definition() (*structdef.Definition, error) {
	d.names = make(map[int]string)
	d.solids = make(map[int]int)
	d.colors = make(map[int]kernel.Color)
	d.occs = make(map[int]*occurrence)
	d.children = make(map[int][]*occurrence)
	d.parts = make(map[int]string)
	d.def = &structdef.Definition{}

	var pds []int
	for _, id := range d.f.order {
		e := d.f.entities[id]
		var err error
		switch e.Name {
		case "PRODUCT_DEFINITION":
			pds = append(pds, id)
			err = d.productDefinition(e)
		case "SHAPE_DEFINITION_REPRESENTATION":
			err = d.shapeDefinition(e)
		case "STYLED_ITEM":
			err = d.styledItem(e)
		case "NEXT_ASSEMBLY_USAGE_OCCURRENCE":
			err = d.usage(e)
		}
		if err != nil {
			return nil, err
		}
	}
	for _, id := range d.f.order {
		if e := d.f.entities[id]; e.Name == "CONTEXT_DEPENDENT_SHAPE_REPRESENTATION" {
			if err := d.placement(e); err != nil {
				return nil, err
			}
		}
	}
	if len(pds) == 0 {
		return nil, fmt.Errorf("no product definitions")
	}

	for _, pd := range pds {
		if _, ok := d.solids[pd]; ok {
			if err := d.part(pd); err != nil {
				return nil, err
			}
		}
	}

	isChild := make(map[int]bool)
	for _, o := range d.occs {
		isChild[o.child] = true
	}
	for _, pd := range pds {
		if isChild[pd] {
			continue
		}
		if err := d.place(pd, mgl64.Ident4(), nil, d.names[pd], make(map[int]bool)); err != nil {
			return nil, err
		}
	}
	return d.def, nil
}

func (d *decoder) productDefinition(e *Entity) error {
	v, err := e.param(2)
	if err != nil {
		return err
	}
	form, err := d.f.deref(v, "PRODUCT_DEFINITION_FORMATION", "PRODUCT_DEFINITION_FORMATION_WITH_SPECIFIED_SOURCE")
	if err != nil {
		return err
	}
	pv, err := form.param(2)
	if err != nil {
		return err
	}
	prod, err := d.f.deref(pv, "PRODUCT")
	if err != nil {
		return err
	}
	d.names[e.ID] = prod.str(1)
	return nil
}

// shapeDefinition links a product definition to its representation and
// notes whether that representation holds a CSG solid. Any other geometric
// item is rejected.
func (d *decoder) shapeDefinition(e *Entity) error {
	v, err := e.param(0)
	if err != nil {
		return err
	}
	pds, err := d.f.deref(v, "PRODUCT_DEFINITION_SHAPE")
	if err != nil {
		return err
	}
	dv, err := pds.param(2)
	if err != nil {
		return err
	}
	def, err := d.f.deref(dv)
	if err != nil {
		return err
	}
	if def.Name != "PRODUCT_DEFINITION" {
		return nil
	}
	rv, err := e.param(1)
	if err != nil {
		return err
	}
	rep, err := d.f.deref(rv)
	if err != nil {
		return err
	}
	items, err := rep.list(1)
	if err != nil {
		return err
	}
	for _, it := range items {
		item, err := d.f.deref(it)
		if err != nil {
			return fmt.Errorf("#%d: %w", rep.ID, err)
		}
		switch {
		case placementItems[item.Name]:
		case item.Name != "CSG_SOLID":
			return fmt.Errorf("#%d %s: unsupported representation item #%d %s",
				rep.ID, rep.Name, item.ID, item.Name)
		case d.solids[def.ID] != 0:
			return fmt.Errorf("#%d %s: more than one solid", rep.ID, rep.Name)
		default:
			d.solids[def.ID] = item.ID
		}
	}
	return nil
}

// placementItems may accompany a solid or stand alone in an assembly's
// shape representation.
var placementItems = map[string]bool{
	"AXIS2_PLACEMENT_3D": true,
	"AXIS1_PLACEMENT":    true,
	"CARTESIAN_POINT":    true,
}

func (d *decoder) usage(e *Entity) error {
	pv, err := e.param(3)
	if err != nil {
		return err
	}
	parent, err := d.f.deref(pv, "PRODUCT_DEFINITION")
	if err != nil {
		return err
	}
	cv, err := e.param(4)
	if err != nil {
		return err
	}
	child, err := d.f.deref(cv, "PRODUCT_DEFINITION")
	if err != nil {
		return err
	}
	o := &occurrence{id: e.ID, name: e.str(1), parent: parent.ID, child: child.ID, mat: mgl64.Ident4()}
	d.occs[e.ID] = o
	d.children[parent.ID] = append(d.children[parent.ID], o)
	return nil
}

// placement attaches the transformation of a context dependent shape
// representation to its usage occurrence.
func (d *decoder) placement(e *Entity) error {
	v, err := e.param(1)
	if err != nil {
		return err
	}
	pds, err := d.f.deref(v, "PRODUCT_DEFINITION_SHAPE")
	if err != nil {
		return err
	}
	ov, err := pds.param(2)
	if err != nil {
		return err
	}
	or, ok := ov.(Ref)
	if !ok {
		return fmt.Errorf("#%d: occurrence is not a reference", pds.ID)
	}
	o, ok := d.occs[int(or)]
	if !ok {
		return nil
	}
	rv, err := e.param(0)
	if err != nil {
		return err
	}
	rr, err := d.f.deref(rv, "REPRESENTATION_RELATIONSHIP_WITH_TRANSFORMATION")
	if err != nil {
		return err
	}
	tv, err := rr.param(4)
	if err != nil {
		return err
	}
	o.mat, err = d.operator(tv)
	return err
}

// operator reads a cartesian transformation operator as a matrix.
func (d *decoder) operator(v any) (mgl64.Mat4, error) {
	e, err := d.f.deref(v, "CARTESIAN_TRANSFORMATION_OPERATOR_3D", "CARTESIAN_TRANSFORMATION_OPERATOR_3D_NON_UNIFORM")
	if err != nil {
		return mgl64.Mat4{}, err
	}
	axis := func(i int, def mgl64.Vec3) (mgl64.Vec3, error) {
		p, err := e.param(i)
		if err != nil {
			return def, err
		}
		if _, ok := p.(Unset); ok {
			return def, nil
		}
		a, err := d.f.triple(p, "DIRECTION")
		if err != nil {
			return def, err
		}
		if a.Len() == 0 {
			return def, fmt.Errorf("#%d: zero-length axis", e.ID)
		}
		return a.Normalize(), nil
	}
	scale := func(i int, def float64) (float64, error) {
		p, err := e.param(i)
		if err != nil {
			return def, err
		}
		if _, ok := p.(Unset); ok {
			return def, nil
		}
		return e.float(i)
	}

	a1, err := axis(2, mgl64.Vec3{1, 0, 0})
	if err != nil {
		return mgl64.Mat4{}, err
	}
	a2, err := axis(3, mgl64.Vec3{0, 1, 0})
	if err != nil {
		return mgl64.Mat4{}, err
	}
	ov, err := e.param(4)
	if err != nil {
		return mgl64.Mat4{}, err
	}
	o, err := d.f.triple(ov, "CARTESIAN_POINT")
	if err != nil {
		return mgl64.Mat4{}, err
	}
	sx, err := scale(5, 1)
	if err != nil {
		return mgl64.Mat4{}, err
	}
	a3, err := axis(6, a1.Cross(a2))
	if err != nil {
		return mgl64.Mat4{}, err
	}
	sy, sz := sx, sx
	if e.Name == "CARTESIAN_TRANSFORMATION_OPERATOR_3D_NON_UNIFORM" {
		if sy, err = scale(7, sx); err != nil {
			return mgl64.Mat4{}, err
		}
		if sz, err = scale(8, sx); err != nil {
			return mgl64.Mat4{}, err
		}
	}
	if sx == 0 || sy == 0 || sz == 0 {
		return mgl64.Mat4{}, fmt.Errorf("#%d: zero scale", e.ID)
	}
	return mgl64.Mat4FromCols(
		a1.Mul(sx).Vec4(0),
		a2.Mul(sy).Vec4(0),
		a3.Mul(sz).Vec4(0),
		o.Vec4(1),
	), nil
}

// styledItem records the color of a solid or usage occurrence.
func (d *decoder) styledItem(e *Entity) error {
	iv, err := e.param(2)
	if err != nil {
		return err
	}
	item, err := d.f.deref(iv)
	if err != nil {
		return err
	}
	styles, err := e.list(1)
	if err != nil {
		return err
	}
	if c, ok := d.f.findColor(styles); ok {
		d.colors[item.ID] = c
	}
	return nil
}

// findColor searches the style graph below vs for a COLOUR_RGB and an
// optional SURFACE_STYLE_TRANSPARENT.
func (f *file) findColor(vs []any) (kernel.Color, bool) {
	c := kernel.Color{A: 1}
	found := false
	seen := make(map[int]bool)
	var visit func(v any)
	visit = func(v any) {
		switch v := v.(type) {
		case []any:
			for _, x := range v {
				visit(x)
			}
		case Ref:
			e, ok := f.entities[int(v)]
			if !ok || seen[e.ID] {
				return
			}
			seen[e.ID] = true
			switch e.Name {
			case "COLOUR_RGB":
				if found {
					return
				}
				r, err1 := e.float(1)
				g, err2 := e.float(2)
				b, err3 := e.float(3)
				if err1 == nil && err2 == nil && err3 == nil {
					c.R, c.G, c.B = r, g, b
					found = true
				}
			case "SURFACE_STYLE_TRANSPARENT":
				if t, err := e.float(0); err == nil {
					c.A = 1 - t
				}
			default:
				for _, p := range e.Params {
					visit(p)
				}
			}
		}
	}
	visit(vs)
	return c.Clamped(), found
}

// ---------------------------------------------------------------------------
// Definition output
// ---------------------------------------------------------------------------

func (d *decoder) part(pd int) error {
	solid := d.f.entities[d.solids[pd]]
	prim, err := d.primitive(solid.Params, 1, 0)
	if err != nil {
		return fmt.Errorf("product %q: %w", d.names[pd], err)
	}
	id := fmt.Sprintf("part%d", len(d.def.Parts)+1)
	pdef := structdef.PartDef{ID: id, Name: d.names[pd], Shape: structdef.Prim(prim)}
	if c, ok := d.colors[solid.ID]; ok {
		pdef.Color = &c
	}
	d.def.Parts = append(d.def.Parts, pdef)
	d.parts[pd] = id
	return nil
}

// primitive reads the CSG tree referenced by params[i].
func (d *decoder) primitive(params []any, i, depth int) (kernel.Primitive, error) {
	if depth > maxCSGDepth {
		return kernel.Primitive{}, fmt.Errorf("CSG tree too deep")
	}
	if i >= len(params) {
		return kernel.Primitive{}, fmt.Errorf("missing CSG operand")
	}
	e, err := d.f.deref(params[i])
	if err != nil {
		return kernel.Primitive{}, err
	}
	switch e.Name {
	case "CSG_SOLID":
		return d.primitive(e.Params, 1, depth+1)
	case "BLOCK":
		var p kernel.Primitive
		p.Kind = kernel.PrimBox
		for j := 0; j < 3; j++ {
			if p.Size[j], err = e.float(2 + j); err != nil {
				return p, err
			}
		}
		return p, p.Validate()
	case "SPHERE":
		p := kernel.Primitive{Kind: kernel.PrimSphere}
		if p.Radius, err = e.float(1); err != nil {
			return p, err
		}
		return p, p.Validate()
	case "RIGHT_CIRCULAR_CYLINDER":
		p := kernel.Primitive{Kind: kernel.PrimCylinder}
		if p.Height, err = e.float(2); err != nil {
			return p, err
		}
		if p.Radius, err = e.float(3); err != nil {
			return p, err
		}
		return p, p.Validate()
	case "BOOLEAN_RESULT":
		if op, _ := e.param(1); op != Enum("UNION") {
			return kernel.Primitive{}, fmt.Errorf("#%d: unsupported boolean operator %v", e.ID, op)
		}
		out := kernel.Primitive{Kind: kernel.PrimCompound}
		for _, j := range []int{2, 3} {
			c, err := d.primitive(e.Params, j, depth+1)
			if err != nil {
				return out, err
			}
			if c.Kind == kernel.PrimCompound {
				out.Children = append(out.Children, c.Children...)
			} else {
				out.Children = append(out.Children, c)
			}
		}
		return out, nil
	}
	return kernel.Primitive{}, fmt.Errorf("#%d: unsupported solid %s", e.ID, e.Name)
}

// place walks the usage tree below pd, emitting one instance per part
// reached. color is the style of the occurrence that placed pd. Styles on
// assembly occurrences are not inherited, matching how labels resolve
// color.
func (d *decoder) place(pd int, world mgl64.Mat4, color *kernel.Color, name string, onPath map[int]bool) error {
	if onPath[pd] {
		return fmt.Errorf("cyclic assembly at product %q", d.names[pd])
	}
	if part, ok := d.parts[pd]; ok {
		d.next++
		t := xform.Decompose(world)
		q := t.QuatXYZW()
		inst := &structdef.Instance{
			ID:          fmt.Sprintf("inst%d", d.next),
			PartID:      part,
			Name:        name,
			Translation: structdef.Floats{t.Translation[0], t.Translation[1], t.Translation[2]},
			Rotation:    structdef.Floats{q[0], q[1], q[2], q[3]},
			Scale:       structdef.Floats{t.Scale[0], t.Scale[1], t.Scale[2]},
		}
		if color != nil {
			c := *color
			inst.Color = &c
		}
		d.def.Nodes = append(d.def.Nodes, inst)
		return nil
	}
	onPath[pd] = true
	defer delete(onPath, pd)
	for _, o := range d.children[pd] {
		var c *kernel.Color
		if oc, ok := d.colors[o.id]; ok {
			c = &oc
		}
		if err := d.place(o.child, world.Mul4(o.mat), c, o.name, onPath); err != nil {
			return err
		}
	}
	return nil
}
