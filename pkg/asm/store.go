package asm

import (
	"fmt"

	"github.com/chazu/asmdoc/pkg/kernel"
	"github.com/chazu/asmdoc/pkg/xform"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Store is the address-indexed arena holding every label of one document.
//
// Part-labels own their shapes. Ownership is counted per handle so a handle
// shared by several part-labels is released once, when its last owner goes.
// Instance-labels only hold the address of their part-label.
type Store struct {
	k      kernel.Kernel
	labels map[Address]*Label
	owners map[kernel.Shape]int
	log    *zap.Logger
}

// NewStore returns a store holding only the fixed top labels.
func NewStore(k kernel.Kernel, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{
		k:      k,
		labels: make(map[Address]*Label),
		owners: make(map[kernel.Shape]int),
		log:    log,
	}
	s.labels[RootAddress] = &Label{
		addr:     RootAddress,
		kind:     LabelRoot,
		children: []Address{AssemblyAddress, LibraryAddress},
		nextTag:  firstUserTag,
	}
	s.labels[AssemblyAddress] = &Label{addr: AssemblyAddress, kind: LabelRoot, parent: RootAddress, nextTag: 1}
	s.labels[LibraryAddress] = &Label{addr: LibraryAddress, kind: LabelRoot, parent: RootAddress, nextTag: 1}
	return s
}

// Kernel returns the geometry kernel that owns the store's shapes.
func (s *Store) Kernel() kernel.Kernel { return s.k }

// Get returns the label at addr.
func (s *Store) Get(addr Address) (*Label, bool) {
	l, ok := s.labels[addr]
	return l, ok
}

// Len returns the number of labels excluding the fixed top labels.
func (s *Store) Len() int {
	return len(s.labels) - 3
}

// defaultParent is where labels of a kind go when no parent is given.
func defaultParent(kind LabelKind) Address {
	if kind == LabelPart {
		return LibraryAddress
	}
	return AssemblyAddress
}

// checkPlacement enforces the tree shape: part-labels live directly under
// the library; assemblies and instances under the assembly root or an
// assembly.
func checkPlacement(parent *Label, kind LabelKind) error {
	switch kind {
	case LabelPart:
		if parent.addr != LibraryAddress {
			return labelErr(KindInvalidParent, parent.addr, "part-labels must be created under %s", LibraryAddress)
		}
	case LabelAssembly, LabelInstance:
		if parent.addr != AssemblyAddress && parent.kind != LabelAssembly {
			return labelErr(KindInvalidParent, parent.addr, "%s cannot contain a %s", parent.kind, kind)
		}
	default:
		return labelErr(KindInvalidParent, parent.addr, "cannot create %s labels", kind)
	}
	return nil
}

// CreateLabel adds an empty label of the given kind under parent and returns
// its fresh address. An empty parent selects the default container for kind.
func (s *Store) CreateLabel(parent Address, kind LabelKind) (Address, error) {
	if parent == "" {
		parent = defaultParent(kind)
	}
	p, ok := s.labels[parent]
	if !ok {
		return "", labelErr(KindInvalidParent, parent, "parent label does not exist")
	}
	if err := checkPlacement(p, kind); err != nil {
		return "", err
	}
	return s.insert(p, p.nextTag, kind).addr, nil
}

// nextTag reports the tag the next child of addr would receive.
func (s *Store) nextTag(addr Address) int {
	if l, ok := s.labels[addr]; ok {
		return l.nextTag
	}
	return 1
}

// insert creates a child with an explicit tag. Tags below the parent's
// counter are never handed out again.
func (s *Store) insert(p *Label, tag int, kind LabelKind) *Label {
	l := &Label{
		addr:    p.addr.Child(tag),
		kind:    kind,
		parent:  p.addr,
		nextTag: 1,
	}
	if tag >= p.nextTag {
		p.nextTag = tag + 1
	}
	p.children = append(p.children, l.addr)
	s.labels[l.addr] = l
	return l
}

func (s *Store) mustGet(addr Address) (*Label, error) {
	l, ok := s.labels[addr]
	if !ok {
		return nil, labelErr(KindUnknownLabel, addr, "label does not exist")
	}
	return l, nil
}

// SetName sets the label's name.
func (s *Store) SetName(addr Address, name string) error {
	l, err := s.mustGet(addr)
	if err != nil {
		return err
	}
	l.name = name
	return nil
}

// SetColor sets or, with nil, clears the label's own color.
func (s *Store) SetColor(addr Address, c *kernel.Color) error {
	l, err := s.mustGet(addr)
	if err != nil {
		return err
	}
	if c == nil {
		l.color = nil
		return nil
	}
	cc := c.Clamped()
	l.color = &cc
	return nil
}

// SetTransform sets the label's local placement.
func (s *Store) SetTransform(addr Address, t xform.Transform) error {
	l, err := s.mustGet(addr)
	if err != nil {
		return err
	}
	l.transform = &t
	return nil
}

// SetShape hands ownership of shape to a part-label. The previous shape is
// released once no other label owns it.
func (s *Store) SetShape(addr Address, shape kernel.Shape) error {
	l, err := s.mustGet(addr)
	if err != nil {
		return err
	}
	if l.kind != LabelPart {
		return labelErr(KindInvalidShape, addr, "only part-labels own shapes, this is a %s", l.kind)
	}
	if shape == l.shape {
		return nil
	}
	old := l.shape
	l.shape = shape
	if shape != nil {
		s.owners[shape]++
	}
	return s.release(old)
}

// SetPartRef points an instance-label at a part-label.
func (s *Store) SetPartRef(addr, part Address) error {
	l, err := s.mustGet(addr)
	if err != nil {
		return err
	}
	if l.kind != LabelInstance {
		return labelErr(KindInvalidParent, addr, "only instance-labels reference parts, this is a %s", l.kind)
	}
	p, err := s.mustGet(part)
	if err != nil {
		return err
	}
	if p.kind != LabelPart {
		return labelErr(KindUnknownPartID, part, "label is a %s, not a part", p.kind)
	}
	l.partRef = part
	return nil
}

// release drops one ownership of shape and frees it when none remain.
func (s *Store) release(shape kernel.Shape) error {
	if shape == nil {
		return nil
	}
	n := s.owners[shape] - 1
	if n > 0 {
		s.owners[shape] = n
		return nil
	}
	delete(s.owners, shape)
	if err := s.k.Release(shape); err != nil {
		return fmt.Errorf("release shape: %w", err)
	}
	return nil
}

// Remove detaches the label and its subtree, releasing shapes no other label
// owns. Unknown addresses are a no-op. Removing a fixed label clears its
// children but keeps the label itself.
func (s *Store) Remove(addr Address) error {
	l, ok := s.labels[addr]
	if !ok {
		return nil
	}
	if addr.IsFixed() {
		var errs error
		for _, c := range l.Children() {
			errs = multierr.Append(errs, s.Remove(c))
		}
		return errs
	}

	var errs error
	var drop func(a Address)
	drop = func(a Address) {
		cur := s.labels[a]
		for _, c := range cur.children {
			drop(c)
		}
		if cur.shape != nil {
			errs = multierr.Append(errs, s.release(cur.shape))
		}
		delete(s.labels, a)
	}
	drop(addr)
	if p, ok := s.labels[l.parent]; ok {
		p.removeChild(addr)
	}
	s.log.Debug("removed label", zap.String("label", string(addr)))
	return errs
}

// Clear removes every non-fixed label.
func (s *Store) Clear() error {
	return s.Remove(RootAddress)
}

// Children returns the ordered child addresses of addr.
func (s *Store) Children(addr Address) []Address {
	if l, ok := s.labels[addr]; ok {
		return l.Children()
	}
	return nil
}

// Parent returns the parent address of addr.
func (s *Store) Parent(addr Address) (Address, bool) {
	l, ok := s.labels[addr]
	if !ok || addr == RootAddress {
		return "", false
	}
	return l.parent, true
}

// WalkFunc is called for each label visited by Walk. depth is 0 for the
// label Walk started from.
type WalkFunc func(l *Label, depth int) error

// Walk visits from and its subtree depth-first, parents before children,
// children in insertion order. A non-nil error from fn stops the walk.
func (s *Store) Walk(from Address, fn WalkFunc) error {
	l, ok := s.labels[from]
	if !ok {
		return labelErr(KindUnknownLabel, from, "label does not exist")
	}
	return s.walk(l, 0, fn)
}

func (s *Store) walk(l *Label, depth int, fn WalkFunc) error {
	if err := fn(l, depth); err != nil {
		return err
	}
	for _, c := range l.children {
		if err := s.walk(s.labels[c], depth+1, fn); err != nil {
			return err
		}
	}
	return nil
}

// ResolveShape returns the shape behind a part- or instance-label.
func (s *Store) ResolveShape(addr Address) (kernel.Shape, error) {
	l, err := s.mustGet(addr)
	if err != nil {
		return nil, err
	}
	switch l.kind {
	case LabelPart:
		if l.shape != nil {
			return l.shape, nil
		}
	case LabelInstance:
		if p, ok := s.labels[l.partRef]; ok && p.shape != nil {
			return p.shape, nil
		}
		return nil, labelErr(KindNoGeometry, addr, "referenced part %s is gone", l.partRef)
	}
	return nil, labelErr(KindNoGeometry, addr, "%s label has no geometry", l.kind)
}

// releaseAll frees every owned shape exactly once.
func (s *Store) releaseAll() error {
	var errs error
	for shape := range s.owners {
		if err := s.k.Release(shape); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("release shape: %w", err))
		}
	}
	s.owners = make(map[kernel.Shape]int)
	for _, l := range s.labels {
		l.shape = nil
	}
	return errs
}
