// Package structdef defines the Structure Definition: the declarative input
// that builds or updates an assembly document. It holds parts, typed nodes,
// removals and part updates, and decodes from JSON or YAML.
package structdef

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/chazu/asmdoc/pkg/kernel"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Definition is the compile input for a document.
type Definition struct {
	Parts         []PartDef    `json:"parts,omitempty"`
	Nodes         NodeList     `json:"nodes,omitempty"`
	Removals      []string     `json:"removals,omitempty"`
	PartUpdates   []PartUpdate `json:"partUpdates,omitempty"`
	ClearDocument bool         `json:"clearDocument,omitempty"`
}

// IsEmpty reports whether applying d would change nothing.
func (d *Definition) IsEmpty() bool {
	return len(d.Parts) == 0 && len(d.Nodes) == 0 && len(d.Removals) == 0 &&
		len(d.PartUpdates) == 0 && !d.ClearDocument
}

// ---------------------------------------------------------------------------
// Parts
// ---------------------------------------------------------------------------

// PartDef registers reusable geometry under an id scoped to one compile call.
type PartDef struct {
	ID    string        `json:"id"`
	Shape ShapeSpec     `json:"shapeRef"`
	Name  string        `json:"name,omitempty"`
	Color *kernel.Color `json:"colorRgba,omitempty"`
}

// PartUpdate modifies an existing part-label in place. Nil fields are left
// untouched.
type PartUpdate struct {
	Label string        `json:"label"`
	Shape *ShapeSpec    `json:"shapeRef,omitempty"`
	Name  *string       `json:"name,omitempty"`
	Color *kernel.Color `json:"colorRgba,omitempty"`
}

// ShapeSpec says where a part's geometry comes from. Exactly one field is set:
// an in-memory kernel handle, a named reference resolved by the document's
// shape resolver, or a primitive description built through the kernel.
type ShapeSpec struct {
	Shape     kernel.Shape
	Ref       string
	Primitive *kernel.Primitive
}

// Handle wraps an existing kernel shape.
func Handle(s kernel.Shape) ShapeSpec { return ShapeSpec{Shape: s} }

// Ref names a shape to be resolved by the document.
func Ref(name string) ShapeSpec { return ShapeSpec{Ref: name} }

// Prim describes a shape to be built by the kernel.
func Prim(p kernel.Primitive) ShapeSpec { return ShapeSpec{Primitive: &p} }

// IsZero reports whether no source is set.
func (s ShapeSpec) IsZero() bool {
	return s.Shape == nil && s.Ref == "" && s.Primitive == nil
}

func (s ShapeSpec) String() string {
	switch {
	case s.Shape != nil:
		return "<handle>"
	case s.Primitive != nil:
		return s.Primitive.String()
	case s.Ref != "":
		return fmt.Sprintf("ref(%s)", s.Ref)
	}
	return "<none>"
}

func (s ShapeSpec) validate() error {
	n := 0
	if s.Shape != nil {
		n++
	}
	if s.Ref != "" {
		n++
	}
	if s.Primitive != nil {
		n++
		if err := s.Primitive.Validate(); err != nil {
			return err
		}
	}
	if n != 1 {
		return fmt.Errorf("shape must have exactly one source, has %d", n)
	}
	return nil
}

// MarshalJSON encodes a reference as a string and a primitive as an object.
// In-memory handles cannot be serialized.
func (s ShapeSpec) MarshalJSON() ([]byte, error) {
	switch {
	case s.Shape != nil:
		return nil, fmt.Errorf("structdef: kernel handle cannot be serialized")
	case s.Primitive != nil:
		return json.Marshal(s.Primitive)
	case s.Ref != "":
		return json.Marshal(s.Ref)
	}
	return []byte("null"), nil
}

// UnmarshalJSON accepts a string reference or a primitive object.
func (s *ShapeSpec) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = ShapeSpec{}
		return nil
	}
	if b[0] == '"' {
		var ref string
		if err := json.Unmarshal(b, &ref); err != nil {
			return err
		}
		*s = ShapeSpec{Ref: ref}
		return nil
	}
	var p kernel.Primitive
	if err := json.Unmarshal(b, &p); err != nil {
		return fmt.Errorf("shapeRef: %w", err)
	}
	*s = ShapeSpec{Primitive: &p}
	return nil
}

// ---------------------------------------------------------------------------
// Nodes
// ---------------------------------------------------------------------------

// NodeKind discriminates the Node variants.
type NodeKind int

const (
	NodeAssembly NodeKind = iota + 1 // pure container
	NodeInstance                     // placement of a part
)

func (k NodeKind) String() string {
	switch k {
	case NodeAssembly:
		return "assembly"
	case NodeInstance:
		return "instance"
	default:
		return "unknown"
	}
}

// Node is a closed variant: Assembly or Instance.
type Node interface {
	NodeID() string
	ParentID() string
	Kind() NodeKind
	node() // marker method restricting implementations to this package
}

// Assembly groups other nodes. It carries no geometry.
type Assembly struct {
	ID     string        `json:"id"`
	Name   string        `json:"name,omitempty"`
	Parent string        `json:"parentId,omitempty"`
	Color  *kernel.Color `json:"colorRgba,omitempty"`
}

func (a *Assembly) NodeID() string   { return a.ID }
func (a *Assembly) ParentID() string { return a.Parent }
func (a *Assembly) Kind() NodeKind   { return NodeAssembly }
func (*Assembly) node()              {}

// Instance places a part. Translation has 3 values; Rotation is a
// quaternion [x,y,z,w] or XYZ Euler degrees; Scale is 1 or 3 values.
type Instance struct {
	ID          string        `json:"id"`
	PartID      string        `json:"partId"`
	Name        string        `json:"name,omitempty"`
	Parent      string        `json:"parentId,omitempty"`
	Translation Floats        `json:"translation,omitempty"`
	Rotation    Floats        `json:"rotation,omitempty"`
	Scale       Floats        `json:"scale,omitempty"`
	Color       *kernel.Color `json:"colorRgba,omitempty"`
}

func (i *Instance) NodeID() string   { return i.ID }
func (i *Instance) ParentID() string { return i.Parent }
func (i *Instance) Kind() NodeKind   { return NodeInstance }
func (*Instance) node()              {}

// Floats is a list of numbers that also decodes from a single number.
type Floats []float64

// UnmarshalJSON accepts a number or an array of numbers.
func (f *Floats) UnmarshalJSON(b []byte) error {
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		*f = Floats{n}
		return nil
	}
	var arr []float64
	if err := json.Unmarshal(b, &arr); err != nil {
		return fmt.Errorf("expected number or array of numbers: %w", err)
	}
	*f = arr
	return nil
}

// NodeList is an ordered list of nodes, encoded with a "type" discriminator.
type NodeList []Node

// wireNode is the flat JSON form of any node.
type wireNode struct {
	Type string `json:"type"`
	Instance
}

// MarshalJSON implements json.Marshaler.
func (l NodeList) MarshalJSON() ([]byte, error) {
	out := make([]json.RawMessage, 0, len(l))
	for _, n := range l {
		var (
			b   []byte
			err error
		)
		switch v := n.(type) {
		case *Assembly:
			b, err = json.Marshal(struct {
				Type string `json:"type"`
				*Assembly
			}{"assembly", v})
		case *Instance:
			b, err = json.Marshal(struct {
				Type string `json:"type"`
				*Instance
			}{"instance", v})
		default:
			err = fmt.Errorf("structdef: unknown node type %T", n)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *NodeList) UnmarshalJSON(b []byte) error {
	var raw []wireNode
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	nodes := make(NodeList, 0, len(raw))
	for i, w := range raw {
		switch w.Type {
		case "assembly":
			nodes = append(nodes, &Assembly{
				ID:     w.ID,
				Name:   w.Name,
				Parent: w.Parent,
				Color:  w.Color,
			})
		case "instance":
			inst := w.Instance
			nodes = append(nodes, &inst)
		default:
			return fmt.Errorf("node %d (%q): unknown type %q", i, w.ID, w.Type)
		}
	}
	*l = nodes
	return nil
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// Validate checks field-level well-formedness. Cross-reference problems
// (unknown ids, cycles, duplicates) are left to the compiler, which reports
// them with their own error kinds.
func (d *Definition) Validate() error {
	var errs error
	for i, p := range d.Parts {
		if p.ID == "" {
			errs = multierr.Append(errs, fmt.Errorf("parts[%d]: missing id", i))
		}
		if err := p.Shape.validate(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("parts[%d] %q: %w", i, p.ID, err))
		}
	}
	for i, n := range d.Nodes {
		if n == nil {
			errs = multierr.Append(errs, fmt.Errorf("nodes[%d]: nil node", i))
			continue
		}
		if n.NodeID() == "" {
			errs = multierr.Append(errs, fmt.Errorf("nodes[%d]: missing id", i))
		}
		inst, ok := n.(*Instance)
		if !ok {
			continue
		}
		if inst.PartID == "" {
			errs = multierr.Append(errs, fmt.Errorf("nodes[%d] %q: missing partId", i, inst.ID))
		}
		if l := len(inst.Translation); l != 0 && l != 3 {
			errs = multierr.Append(errs, fmt.Errorf("nodes[%d] %q: translation needs 3 values, got %d", i, inst.ID, l))
		}
		if l := len(inst.Rotation); l != 0 && l != 3 && l != 4 {
			errs = multierr.Append(errs, fmt.Errorf("nodes[%d] %q: rotation needs 3 or 4 values, got %d", i, inst.ID, l))
		}
		if l := len(inst.Scale); l != 0 && l != 1 && l != 3 {
			errs = multierr.Append(errs, fmt.Errorf("nodes[%d] %q: scale needs 1 or 3 values, got %d", i, inst.ID, l))
		}
	}
	for i, u := range d.PartUpdates {
		if u.Label == "" {
			errs = multierr.Append(errs, fmt.Errorf("partUpdates[%d]: missing label", i))
		}
		if u.Shape != nil {
			if err := u.Shape.validate(); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("partUpdates[%d] %q: %w", i, u.Label, err))
			}
		}
	}
	return errs
}

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

// ParseJSON decodes a definition from JSON. Unknown fields are rejected.
func ParseJSON(b []byte) (*Definition, error) {
	return Decode(bytes.NewReader(b))
}

// Decode reads one JSON definition from r.
func Decode(r io.Reader) (*Definition, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var d Definition
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("structdef: decode: %w", err)
	}
	return &d, nil
}

// ParseYAML decodes a definition written in YAML. The document is mapped
// onto the JSON form so both encodings share one set of decoders.
func ParseYAML(b []byte) (*Definition, error) {
	var v any
	if err := yaml.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("structdef: yaml: %w", err)
	}
	j, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("structdef: yaml: %w", err)
	}
	return ParseJSON(j)
}
