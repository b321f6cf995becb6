package asm

import (
	"github.com/chazu/asmdoc/pkg/kernel"
	"github.com/chazu/asmdoc/pkg/xform"
	"github.com/samber/lo"
)

// Part summary types.
const (
	TypePart        = "part"
	TypeAssembly    = "assembly"
	TypeSubAssembly = "sub-assembly"
	TypeCompound    = "compound"
	TypeUnknown     = "unknown"
)

// PartSummary describes one part-label or assembly label.
type PartSummary struct {
	Label         Address       `json:"label"`
	Name          string        `json:"name"`
	Type          string        `json:"type"`
	InstanceCount int           `json:"instanceCount"`
	Color         *kernel.Color `json:"color,omitempty"`
}

// HierarchyNode is one label of the user-visible hierarchy.
type HierarchyNode struct {
	ID          string  `json:"id"`
	Label       Address `json:"label"`
	Name        string  `json:"name"`
	Depth       int     `json:"depth"`
	ParentID    Address `json:"parentId"`
	IsAssembly  bool    `json:"isAssembly"`
	IsInstance  bool    `json:"isInstance"`
	HasGeometry bool    `json:"hasGeometry"`
	ShapeType   string  `json:"shapeType,omitempty"`
}

// HierarchyResult lists the hierarchy in preorder.
type HierarchyResult struct {
	Version    uint64          `json:"version"`
	TotalNodes int             `json:"totalNodes"`
	Nodes      []HierarchyNode `json:"nodes"`
}

// LabelColor is a resolved color.
type LabelColor struct {
	HasColor bool    `json:"hasColor"`
	R        float64 `json:"r"`
	G        float64 `json:"g"`
	B        float64 `json:"b"`
	A        float64 `json:"a"`
}

// Color returns the color as a kernel.Color.
func (c LabelColor) Color() kernel.Color {
	return kernel.Color{R: c.R, G: c.G, B: c.B, A: c.A}
}

func labelColor(c kernel.Color) LabelColor {
	return LabelColor{HasColor: true, R: c.R, G: c.G, B: c.B, A: c.A}
}

// TransformInfo describes a local placement. Matrix is row-major and
// Quaternion is [x, y, z, w].
type TransformInfo struct {
	Matrix      [16]float64 `json:"matrix"`
	Translation [3]float64  `json:"translation"`
	Quaternion  [4]float64  `json:"quaternion"`
	Scale       [3]float64  `json:"scale"`
}

// NewTransformInfo describes t.
func NewTransformInfo(t xform.Transform) TransformInfo {
	return TransformInfo{
		Matrix:      t.RowMajor(),
		Translation: [3]float64(t.Translation),
		Quaternion:  t.QuatXYZW(),
		Scale:       [3]float64(t.Scale),
	}
}

// LabelInfo gathers everything known about one label.
type LabelInfo struct {
	HierarchyNode
	Kind      string        `json:"kind"`
	PartLabel Address       `json:"partLabel,omitempty"`
	PartName  string        `json:"partName,omitempty"`
	Color     LabelColor    `json:"color"`
	Transform TransformInfo `json:"transform"`
	Children  []Address     `json:"children,omitempty"`
}

// instanceLabels returns every instance-label of the hierarchy in preorder.
func (d *Document) instanceLabels(from Address) []*Label {
	var out []*Label
	_ = d.store.Walk(from, func(l *Label, _ int) error {
		if l.kind == LabelInstance {
			out = append(out, l)
		}
		return nil
	})
	return out
}

// GetDocumentParts summarizes every part-label in library order, then every
// assembly label in hierarchy order.
func (d *Document) GetDocumentParts() []PartSummary {
	if d.store == nil {
		return nil
	}
	instances := d.instanceLabels(AssemblyAddress)

	var out []PartSummary
	lib, _ := d.store.Get(LibraryAddress)
	for _, addr := range lib.children {
		l, _ := d.store.Get(addr)
		s := PartSummary{
			Label: addr,
			Name:  l.name,
			Type:  d.partType(l),
			InstanceCount: lo.CountBy(instances, func(i *Label) bool {
				return i.partRef == addr
			}),
		}
		if c := d.resolveColor(l); c.HasColor {
			col := c.Color()
			s.Color = &col
		}
		out = append(out, s)
	}

	_ = d.store.Walk(AssemblyAddress, func(l *Label, depth int) error {
		if l.kind != LabelAssembly {
			return nil
		}
		s := PartSummary{
			Label:         l.addr,
			Name:          l.name,
			Type:          TypeAssembly,
			InstanceCount: len(d.instanceLabels(l.addr)),
		}
		if depth > 1 {
			s.Type = TypeSubAssembly
		}
		if c, ok := l.Color(); ok {
			s.Color = &c
		}
		out = append(out, s)
		return nil
	})
	return out
}

func (d *Document) partType(l *Label) string {
	if l.shape == nil {
		return TypeUnknown
	}
	switch d.k.Classify(l.shape) {
	case kernel.KindSolid, kernel.KindShell:
		return TypePart
	case kernel.KindCompound:
		return TypeCompound
	}
	return TypeUnknown
}

// GetAssemblyHierarchy lists every label below the assembly root in
// preorder. Depth 0 is the first user-visible level.
func (d *Document) GetAssemblyHierarchy() HierarchyResult {
	res := HierarchyResult{Version: d.revision, Nodes: []HierarchyNode{}}
	if d.store == nil {
		return res
	}
	_ = d.store.Walk(AssemblyAddress, func(l *Label, depth int) error {
		if l.addr == AssemblyAddress {
			return nil
		}
		res.Nodes = append(res.Nodes, d.hierarchyNode(l, depth-1))
		return nil
	})
	res.TotalNodes = len(res.Nodes)
	return res
}

func (d *Document) hierarchyNode(l *Label, depth int) HierarchyNode {
	n := HierarchyNode{
		ID:         l.id,
		Label:      l.addr,
		Name:       d.displayName(l),
		Depth:      depth,
		ParentID:   l.parent,
		IsAssembly: l.kind == LabelAssembly || l.kind == LabelRoot,
		IsInstance: l.kind == LabelInstance,
	}
	if shape, err := d.store.ResolveShape(l.addr); err == nil {
		n.HasGeometry = true
		n.ShapeType = d.k.Classify(shape).String()
	}
	return n
}

// displayName is the label's own name, falling back to the part name for
// unnamed instances.
func (d *Document) displayName(l *Label) string {
	if l.name != "" || l.kind != LabelInstance {
		return l.name
	}
	if p, ok := d.store.Get(l.partRef); ok {
		return p.name
	}
	return ""
}

// GetShapeFromLabel returns the shape of a part-label, or of the part an
// instance places. The handle stays owned by the document.
func (d *Document) GetShapeFromLabel(addr Address) (kernel.Shape, error) {
	if d.store == nil {
		return nil, ErrClosed
	}
	return d.store.ResolveShape(addr)
}

// GetLabelColor resolves the color of a label: its own color, else its
// part's color, else a color carried by the shape itself.
func (d *Document) GetLabelColor(addr Address) (LabelColor, error) {
	if d.store == nil {
		return LabelColor{}, ErrClosed
	}
	l, err := d.store.mustGet(addr)
	if err != nil {
		return LabelColor{}, err
	}
	return d.resolveColor(l), nil
}

func (d *Document) resolveColor(l *Label) LabelColor {
	if c, ok := l.Color(); ok {
		return labelColor(c)
	}
	if l.kind == LabelInstance {
		if p, ok := d.store.Get(l.partRef); ok {
			if c, ok := p.Color(); ok {
				return labelColor(c)
			}
		}
	}
	if shape, err := d.store.ResolveShape(l.addr); err == nil {
		if c, ok := d.k.Color(shape); ok {
			return labelColor(c)
		}
	}
	return LabelColor{}
}

// GetLabelTransform returns the local placement of an instance-label and
// the identity for any other label.
func (d *Document) GetLabelTransform(addr Address) (TransformInfo, error) {
	if d.store == nil {
		return TransformInfo{}, ErrClosed
	}
	l, err := d.store.mustGet(addr)
	if err != nil {
		return TransformInfo{}, err
	}
	return NewTransformInfo(labelTransform(l)), nil
}

func labelTransform(l *Label) xform.Transform {
	if l.kind != LabelInstance {
		return xform.Identity()
	}
	return l.Transform()
}

// GetLabelInfo returns the union of the per-label queries.
//
// Depth counts from the fixed label the address lives under: children of
// the assembly root and part-labels in the library are both at depth 0.
// The fixed labels themselves report -1.
func (d *Document) GetLabelInfo(addr Address) (LabelInfo, error) {
	if d.store == nil {
		return LabelInfo{}, ErrClosed
	}
	l, err := d.store.mustGet(addr)
	if err != nil {
		return LabelInfo{}, err
	}
	info := LabelInfo{
		HierarchyNode: d.hierarchyNode(l, labelDepth(addr)),
		Kind:          l.kind.String(),
		Color:         d.resolveColor(l),
		Transform:     NewTransformInfo(labelTransform(l)),
	}
	if l.kind == LabelInstance {
		info.PartLabel = l.partRef
		if p, ok := d.store.Get(l.partRef); ok {
			info.PartName = p.name
		}
	}
	if l.kind == LabelAssembly || l.kind == LabelRoot {
		info.Children = l.Children()
	}
	return info, nil
}

// labelDepth is the number of steps from addr up to the assembly root or
// the library, minus one.
func labelDepth(addr Address) int {
	for _, top := range []Address{AssemblyAddress, LibraryAddress} {
		if !addr.IsUnder(top) {
			continue
		}
		depth := -1
		for a := addr; a != top; a, _ = a.Parent() {
			depth++
		}
		return depth
	}
	return -1
}

// GetPartProperties returns the mass properties of the shape behind a part-
// or instance-label, in the part's own coordinates.
func (d *Document) GetPartProperties(addr Address) (kernel.Properties, error) {
	shape, err := d.GetShapeFromLabel(addr)
	if err != nil {
		return kernel.Properties{}, err
	}
	return d.k.Properties(shape)
}

// Instances returns the instance-labels placing the given part-label.
func (d *Document) Instances(part Address) []Address {
	if d.store == nil {
		return nil
	}
	return lo.FilterMap(d.instanceLabels(AssemblyAddress), func(l *Label, _ int) (Address, bool) {
		return l.addr, l.partRef == part
	})
}
