package engine

import (
	"fmt"
	"strings"

	"github.com/chazu/asmdoc/pkg/kernel"
	"github.com/chazu/asmdoc/pkg/structdef"
	zygo "github.com/glycerine/zygomys/zygo"
)

// ---------------------------------------------------------------------------
// Source preprocessing
// ---------------------------------------------------------------------------

// preprocessSource transforms structure script source before passing it to
// zygomys. It performs two transformations:
//
//  1. Keyword conversion: :keyword -> "__kw_keyword" (string literal)
//     This avoids the need to register keyword symbols as globals, which
//     would conflict with user-defined variables of the same name.
//
//  2. Kebab-case to underscore: update-part -> update_part
//     zygomys does not allow hyphens in identifiers (it interprets them
//     as the subtraction operator). This converts kebab-case identifiers
//     to underscore form outside of strings and comments.
//
// Both transformations respect string literal boundaries and line comments.
func preprocessSource(source string) string {
	result := make([]byte, 0, len(source)+len(source)/4)
	b := []byte(source)
	i := 0
	for i < len(b) {
		// Skip double-quoted string literals.
		if b[i] == '"' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '"' {
				if b[i] == '\\' && i+1 < len(b) {
					result = append(result, b[i], b[i+1])
					i += 2
					continue
				}
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Skip backtick-quoted string literals.
		if b[i] == '`' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '`' {
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Convert ; line comments to // comments for zygomys.
		// zygomys uses // for line comments, not the traditional Lisp ;.
		if b[i] == ';' {
			result = append(result, '/', '/')
			i++
			// Skip additional ; characters (;; style).
			for i < len(b) && b[i] == ';' {
				i++
			}
			for i < len(b) && b[i] != '\n' {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Transform :keyword to "__kw_keyword".
		if b[i] == ':' && i+1 < len(b) {
			// Preserve := (assignment operator).
			if b[i+1] == '=' {
				result = append(result, b[i], b[i+1])
				i += 2
				continue
			}
			// Check for keyword: colon followed by a letter.
			if isLetter(b[i+1]) {
				j := i + 1
				for j < len(b) && isKWChar(b[j]) {
					j++
				}
				kwName := string(b[i+1 : j])
				result = append(result, '"')
				result = append(result, []byte(kwPrefix)...)
				result = append(result, []byte(kwName)...)
				result = append(result, '"')
				i = j
				continue
			}
		}
		// Transform kebab-case identifiers: alpha-alpha -> alpha_alpha.
		// Only when hyphen sits between identifier characters (not a minus operator).
		if b[i] == '-' && i > 0 && i+1 < len(b) &&
			isIdentChar(b[i-1]) && isIdentStartChar(b[i+1]) {
			result = append(result, '_')
			i++
			continue
		}
		result = append(result, b[i])
		i++
	}
	return string(result)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}

func isIdentStartChar(c byte) bool {
	return isLetter(c)
}

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpShape wraps a primitive description returned by box, sphere,
// cylinder and compound.
type sexpShape struct {
	prim kernel.Primitive
}

func (s *sexpShape) SexpString(ps *zygo.PrintState) string { return s.prim.String() }
func (s *sexpShape) Type() *zygo.RegisteredType            { return nil }

// sexpRef names a declared part or node so it can be passed between builtins.
type sexpRef struct {
	id   string
	node structdef.Node // nil for parts
}

func (r *sexpRef) SexpString(ps *zygo.PrintState) string {
	if r.node == nil {
		return fmt.Sprintf("(part %q)", r.id)
	}
	return fmt.Sprintf("(%s %q)", r.node.Kind(), r.id)
}
func (r *sexpRef) Type() *zygo.RegisteredType { return nil }

// sexpVec3 wraps three numbers.
type sexpVec3 struct {
	vec [3]float64
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %g %g %g)", v.vec[0], v.vec[1], v.vec[2])
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// sexpColor wraps an RGBA color.
type sexpColor struct {
	c kernel.Color
}

func (c *sexpColor) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(rgba %g %g %g %g)", c.c.R, c.c.G, c.c.B, c.c.A)
}
func (c *sexpColor) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// isKW checks if a Sexp is a preprocessed keyword string.
// Returns the keyword name (without prefix) and true if it is.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
// Keywords are identified by the __kw_ prefix added during preprocessing.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	i := 0
	for i < len(args) {
		name, ok := isKW(args[i])
		if ok {
			if i+1 < len(args) {
				result.kw[name] = args[i+1]
				i += 2
			} else {
				// Keyword at end with no value: treat as flag with nil.
				result.kw[name] = zygo.SexpNull
				i++
			}
		} else {
			result.positional = append(result.positional, args[i])
			i++
		}
	}
	return result
}

// unknownKeywords reports keywords outside allowed.
func (a kwArgs) unknownKeywords(allowed ...string) error {
	for k := range a.kw {
		found := false
		for _, name := range allowed {
			if k == name {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("unknown keyword :%s", k)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toID accepts a string or a reference returned by another builtin.
func toID(s zygo.Sexp) (string, error) {
	if ref, ok := s.(*sexpRef); ok {
		return ref.id, nil
	}
	id, err := toString(s)
	if err != nil {
		return "", fmt.Errorf("expected id or reference: %w", err)
	}
	return id, nil
}

// toFloats accepts a vec3, a color, a number, or a list or array of numbers.
func toFloats(s zygo.Sexp) ([]float64, error) {
	switch v := s.(type) {
	case *sexpVec3:
		return v.vec[:], nil
	case *sexpColor:
		a := v.c.Array()
		return a[:], nil
	case *zygo.SexpInt, *zygo.SexpFloat:
		f, err := toFloat64(s)
		return []float64{f}, err
	}
	items, err := sexpListToSlice(s)
	if err != nil {
		return nil, fmt.Errorf("expected numbers: %w", err)
	}
	out := make([]float64, len(items))
	for i, it := range items {
		if out[i], err = toFloat64(it); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// toColor accepts (rgb ...), (rgba ...) or 3 or 4 numbers.
func toColor(s zygo.Sexp) (*kernel.Color, error) {
	if c, ok := s.(*sexpColor); ok {
		out := c.c
		return &out, nil
	}
	fs, err := toFloats(s)
	if err != nil {
		return nil, err
	}
	c, err := kernel.ColorFromSlice(fs)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// toShape accepts a primitive or a named shape reference.
func toShape(s zygo.Sexp) (structdef.ShapeSpec, error) {
	switch v := s.(type) {
	case *sexpShape:
		return structdef.Prim(v.prim), nil
	case *zygo.SexpStr:
		return structdef.Ref(v.S), nil
	}
	return structdef.ShapeSpec{}, fmt.Errorf("expected shape or shape name, got %T (%s)", s, s.SexpString(nil))
}

// sexpListToSlice converts a SexpPair (Lisp list) or SexpArray to a Go slice.
func sexpListToSlice(s zygo.Sexp) ([]zygo.Sexp, error) {
	switch v := s.(type) {
	case *zygo.SexpPair:
		return zygo.ListToArray(v)
	case *zygo.SexpArray:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected list or array, got %T", s)
}

// ---------------------------------------------------------------------------
// Script state
// ---------------------------------------------------------------------------

// script accumulates the definition declared by one evaluation.
type script struct {
	def  *structdef.Definition
	anon map[string]int // per-part counters for generated instance ids
}

func newScript() *script {
	return &script{def: &structdef.Definition{}, anon: make(map[string]int)}
}

// instanceID generates "<part>#<n>", numbered per part in declaration order.
func (s *script) instanceID(part string) string {
	s.anon[part]++
	return fmt.Sprintf("%s#%d", part, s.anon[part])
}

// adopt makes the referenced node a child of parent.
func adopt(parent string, child zygo.Sexp) error {
	ref, ok := child.(*sexpRef)
	if !ok || ref.node == nil {
		return fmt.Errorf("expected assembly or instance, got %T (%s)", child, child.SexpString(nil))
	}
	switch n := ref.node.(type) {
	case *structdef.Assembly:
		if n.Parent != "" && n.Parent != parent {
			return fmt.Errorf("%q already has parent %q", n.ID, n.Parent)
		}
		n.Parent = parent
	case *structdef.Instance:
		if n.Parent != "" && n.Parent != parent {
			return fmt.Errorf("%q already has parent %q", n.ID, n.Parent)
		}
		n.Parent = parent
	}
	return nil
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// registerBuiltins installs the structure script builtins into a zygomys
// environment. The builtins append to s.def during evaluation.
//
// Source code must be preprocessed with preprocessSource() before evaluation so
// that :keyword tokens are converted to recognizable string literals.
func registerBuiltins(env *zygo.Zlisp, s *script) {

	// -----------------------------------------------------------------------
	// (box 10 20 30) or (box :size (vec3 10 20 30))
	// -----------------------------------------------------------------------
	env.AddFunction("box", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		var dims []float64
		var err error
		if v, ok := pa.kw["size"]; ok {
			dims, err = toFloats(v)
		} else if len(pa.positional) == 1 {
			dims, err = toFloats(pa.positional[0])
		} else {
			dims = make([]float64, len(pa.positional))
			for i, p := range pa.positional {
				if dims[i], err = toFloat64(p); err != nil {
					break
				}
			}
		}
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("box: size: %w", err)
		}
		if len(dims) != 3 {
			return zygo.SexpNull, fmt.Errorf("box requires 3 dimensions, got %d", len(dims))
		}
		p := kernel.Primitive{Kind: kernel.PrimBox, Size: [3]float64{dims[0], dims[1], dims[2]}}
		if err := p.Validate(); err != nil {
			return zygo.SexpNull, fmt.Errorf("box: %w", err)
		}
		return &sexpShape{prim: p}, nil
	})

	// -----------------------------------------------------------------------
	// (sphere 5) or (sphere :radius 5)
	// -----------------------------------------------------------------------
	env.AddFunction("sphere", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		v, ok := pa.kw["radius"]
		if !ok {
			if len(pa.positional) != 1 {
				return zygo.SexpNull, fmt.Errorf("sphere requires a radius")
			}
			v = pa.positional[0]
		}
		r, err := toFloat64(v)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("sphere: radius: %w", err)
		}
		p := kernel.Primitive{Kind: kernel.PrimSphere, Radius: r}
		if err := p.Validate(); err != nil {
			return zygo.SexpNull, fmt.Errorf("sphere: %w", err)
		}
		return &sexpShape{prim: p}, nil
	})

	// -----------------------------------------------------------------------
	// (cylinder 2 10) or (cylinder :radius 2 :height 10)
	// -----------------------------------------------------------------------
	env.AddFunction("cylinder", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		p := kernel.Primitive{Kind: kernel.PrimCylinder}
		rv, hv := pa.kw["radius"], pa.kw["height"]
		if len(pa.positional) == 2 {
			rv, hv = pa.positional[0], pa.positional[1]
		}
		if rv == nil || hv == nil {
			return zygo.SexpNull, fmt.Errorf("cylinder requires a radius and a height")
		}
		var err error
		if p.Radius, err = toFloat64(rv); err != nil {
			return zygo.SexpNull, fmt.Errorf("cylinder: radius: %w", err)
		}
		if p.Height, err = toFloat64(hv); err != nil {
			return zygo.SexpNull, fmt.Errorf("cylinder: height: %w", err)
		}
		if err := p.Validate(); err != nil {
			return zygo.SexpNull, fmt.Errorf("cylinder: %w", err)
		}
		return &sexpShape{prim: p}, nil
	})

	// -----------------------------------------------------------------------
	// (compound (box 1 1 1) (sphere 2) ...)
	// -----------------------------------------------------------------------
	env.AddFunction("compound", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) == 0 {
			return zygo.SexpNull, fmt.Errorf("compound requires at least one shape")
		}
		p := kernel.Primitive{Kind: kernel.PrimCompound}
		for i, a := range args {
			sh, ok := a.(*sexpShape)
			if !ok {
				return zygo.SexpNull, fmt.Errorf("compound: member %d: expected shape, got %T (%s)",
					i, a, a.SexpString(nil))
			}
			p.Children = append(p.Children, sh.prim)
		}
		return &sexpShape{prim: p}, nil
	})

	// -----------------------------------------------------------------------
	// (vec3 1 2 3)
	// -----------------------------------------------------------------------
	env.AddFunction("vec3", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("vec3 requires exactly 3 arguments, got %d", len(args))
		}
		var v sexpVec3
		for i, a := range args {
			f, err := toFloat64(a)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("vec3: %c: %w", "xyz"[i], err)
			}
			v.vec[i] = f
		}
		return &v, nil
	})

	// -----------------------------------------------------------------------
	// (rgb 1 0 0) and (rgba 1 0 0 0.5)
	// -----------------------------------------------------------------------
	color := func(n int) func(*zygo.Zlisp, string, []zygo.Sexp) (zygo.Sexp, error) {
		return func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			if len(args) != n {
				return zygo.SexpNull, fmt.Errorf("%s requires exactly %d arguments, got %d", name, n, len(args))
			}
			fs := make([]float64, n)
			for i, a := range args {
				f, err := toFloat64(a)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("%s: component %d: %w", name, i, err)
				}
				fs[i] = f
			}
			c, err := kernel.ColorFromSlice(fs)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: %w", name, err)
			}
			return &sexpColor{c: c.Clamped()}, nil
		}
	}
	env.AddFunction("rgb", color(3))
	env.AddFunction("rgba", color(4))

	// -----------------------------------------------------------------------
	// (defpart "box" (box 10 10 10) :name "Box" :color (rgb 1 0 0))
	// (defpart "bolt" "bolt-m4")
	// -----------------------------------------------------------------------
	env.AddFunction("defpart", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) != 2 {
			return zygo.SexpNull, fmt.Errorf("defpart requires an id and a shape")
		}
		if err := pa.unknownKeywords("name", "color"); err != nil {
			return zygo.SexpNull, fmt.Errorf("defpart: %w", err)
		}
		id, err := toString(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("defpart: id: %w", err)
		}
		shape, err := toShape(pa.positional[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("defpart %q: %w", id, err)
		}
		part := structdef.PartDef{ID: id, Name: id, Shape: shape}
		if v, ok := pa.kw["name"]; ok {
			if part.Name, err = toString(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("defpart %q: name: %w", id, err)
			}
		}
		if v, ok := pa.kw["color"]; ok {
			if part.Color, err = toColor(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("defpart %q: color: %w", id, err)
			}
		}
		s.def.Parts = append(s.def.Parts, part)
		return &sexpRef{id: id}, nil
	})

	// -----------------------------------------------------------------------
	// (instance "box" :id "b1" :name "B" :parent "grp"
	//           :at (vec3 20 0 0) :rotate (vec3 0 0 90) :scale 2 :color (rgb 0 0 1))
	// -----------------------------------------------------------------------
	env.AddFunction("instance", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) != 1 {
			return zygo.SexpNull, fmt.Errorf("instance requires exactly one part reference")
		}
		if err := pa.unknownKeywords("id", "name", "parent", "at", "rotate", "scale", "color"); err != nil {
			return zygo.SexpNull, fmt.Errorf("instance: %w", err)
		}
		part, err := toID(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("instance: part: %w", err)
		}
		inst := &structdef.Instance{PartID: part}
		if v, ok := pa.kw["id"]; ok {
			if inst.ID, err = toString(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("instance: id: %w", err)
			}
		} else {
			inst.ID = s.instanceID(part)
		}
		if err := instanceOptions(inst, pa); err != nil {
			return zygo.SexpNull, fmt.Errorf("instance %q: %w", inst.ID, err)
		}
		s.def.Nodes = append(s.def.Nodes, inst)
		return &sexpRef{id: inst.ID, node: inst}, nil
	})

	// -----------------------------------------------------------------------
	// (assembly "grp" :name "Group" :parent "outer" :color (rgb 0 1 0)
	//           (instance "box") (assembly "inner" ...) ...)
	// -----------------------------------------------------------------------
	env.AddFunction("assembly", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) < 1 {
			return zygo.SexpNull, fmt.Errorf("assembly requires an id argument")
		}
		if err := pa.unknownKeywords("name", "parent", "color"); err != nil {
			return zygo.SexpNull, fmt.Errorf("assembly: %w", err)
		}
		id, err := toString(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("assembly: id: %w", err)
		}
		a := &structdef.Assembly{ID: id, Name: id}
		if v, ok := pa.kw["name"]; ok {
			if a.Name, err = toString(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("assembly %q: name: %w", id, err)
			}
		}
		if v, ok := pa.kw["parent"]; ok {
			if a.Parent, err = toID(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("assembly %q: parent: %w", id, err)
			}
		}
		if v, ok := pa.kw["color"]; ok {
			if a.Color, err = toColor(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("assembly %q: color: %w", id, err)
			}
		}
		for i, child := range pa.positional[1:] {
			if err := adopt(id, child); err != nil {
				return zygo.SexpNull, fmt.Errorf("assembly %q: child %d: %w", id, i+1, err)
			}
		}
		s.def.Nodes = append(s.def.Nodes, a)
		return &sexpRef{id: id, node: a}, nil
	})

	// -----------------------------------------------------------------------
	// (remove "0:1:3" "0:2:1")
	// -----------------------------------------------------------------------
	env.AddFunction("remove", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		for i, a := range args {
			label, err := toString(a)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("remove: label %d: %w", i, err)
			}
			s.def.Removals = append(s.def.Removals, label)
		}
		return zygo.SexpNull, nil
	})

	// -----------------------------------------------------------------------
	// (update-part "0:2:1" :shape (sphere 3) :name "Ball" :color (rgb 0 1 0))
	//
	// Registered as "update_part"; the preprocessor converts the hyphen.
	// -----------------------------------------------------------------------
	env.AddFunction("update_part", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) != 1 {
			return zygo.SexpNull, fmt.Errorf("update-part requires a part label")
		}
		if err := pa.unknownKeywords("shape", "name", "color"); err != nil {
			return zygo.SexpNull, fmt.Errorf("update-part: %w", err)
		}
		label, err := toString(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("update-part: label: %w", err)
		}
		up := structdef.PartUpdate{Label: label}
		if v, ok := pa.kw["shape"]; ok {
			shape, err := toShape(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("update-part %s: %w", label, err)
			}
			up.Shape = &shape
		}
		if v, ok := pa.kw["name"]; ok {
			n, err := toString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("update-part %s: name: %w", label, err)
			}
			up.Name = &n
		}
		if v, ok := pa.kw["color"]; ok {
			if up.Color, err = toColor(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("update-part %s: color: %w", label, err)
			}
		}
		s.def.PartUpdates = append(s.def.PartUpdates, up)
		return zygo.SexpNull, nil
	})

	// -----------------------------------------------------------------------
	// (clear-document)
	// -----------------------------------------------------------------------
	env.AddFunction("clear_document", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 0 {
			return zygo.SexpNull, fmt.Errorf("clear-document takes no arguments")
		}
		s.def.ClearDocument = true
		return zygo.SexpNull, nil
	})
}

// instanceOptions applies the placement keywords of (instance ...).
func instanceOptions(inst *structdef.Instance, pa kwArgs) error {
	var err error
	if v, ok := pa.kw["name"]; ok {
		if inst.Name, err = toString(v); err != nil {
			return fmt.Errorf("name: %w", err)
		}
	}
	if v, ok := pa.kw["parent"]; ok {
		if inst.Parent, err = toID(v); err != nil {
			return fmt.Errorf("parent: %w", err)
		}
	}
	if v, ok := pa.kw["at"]; ok {
		if inst.Translation, err = toFloats(v); err != nil {
			return fmt.Errorf("at: %w", err)
		}
	}
	if v, ok := pa.kw["rotate"]; ok {
		if inst.Rotation, err = toFloats(v); err != nil {
			return fmt.Errorf("rotate: %w", err)
		}
	}
	if v, ok := pa.kw["scale"]; ok {
		if inst.Scale, err = toFloats(v); err != nil {
			return fmt.Errorf("scale: %w", err)
		}
	}
	if v, ok := pa.kw["color"]; ok {
		if inst.Color, err = toColor(v); err != nil {
			return fmt.Errorf("color: %w", err)
		}
	}
	return nil
}
