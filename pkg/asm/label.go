package asm

import (
	"github.com/chazu/asmdoc/pkg/kernel"
	"github.com/chazu/asmdoc/pkg/xform"
)

// LabelKind enumerates the kinds of labels in a document.
type LabelKind int

const (
	LabelRoot     LabelKind = iota // one of the fixed top labels
	LabelAssembly                  // container, no geometry
	LabelPart                      // owns a shape
	LabelInstance                  // placement referencing a part-label
)

func (k LabelKind) String() string {
	switch k {
	case LabelRoot:
		return "root"
	case LabelAssembly:
		return "assembly"
	case LabelPart:
		return "part"
	case LabelInstance:
		return "instance"
	default:
		return "unknown"
	}
}

// Label is one entry of the document tree. Labels are owned by the Store and
// read through accessors; mutation goes through Store methods.
type Label struct {
	addr     Address
	kind     LabelKind
	parent   Address
	children []Address
	nextTag  int

	id        string // definition id that created the label, if any
	name      string
	color     *kernel.Color
	transform *xform.Transform
	shape     kernel.Shape // owning; part-labels only
	partRef   Address      // non-owning; instance-labels only
}

func (l *Label) Address() Address { return l.addr }
func (l *Label) Kind() LabelKind  { return l.kind }
func (l *Label) Name() string     { return l.name }
func (l *Label) ID() string       { return l.id }
func (l *Label) Parent() Address  { return l.parent }

// Children returns a copy of the ordered child addresses.
func (l *Label) Children() []Address {
	return append([]Address(nil), l.children...)
}

// Color returns the color set directly on this label.
func (l *Label) Color() (kernel.Color, bool) {
	if l.color == nil {
		return kernel.Color{}, false
	}
	return *l.color, true
}

// Transform returns the local placement, identity when unset.
func (l *Label) Transform() xform.Transform {
	if l.transform == nil {
		return xform.Identity()
	}
	return *l.transform
}

// Shape returns the owned shape of a part-label.
func (l *Label) Shape() kernel.Shape { return l.shape }

// PartRef returns the part-label an instance places.
func (l *Label) PartRef() Address { return l.partRef }

func (l *Label) removeChild(child Address) {
	for i, c := range l.children {
		if c == child {
			l.children = append(l.children[:i], l.children[i+1:]...)
			return
		}
	}
}
