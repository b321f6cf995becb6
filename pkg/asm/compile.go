package asm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/chazu/asmdoc/pkg/kernel"
	"github.com/chazu/asmdoc/pkg/structdef"
	"github.com/chazu/asmdoc/pkg/xform"
	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// CompileResult maps definition ids to the addresses created for them.
type CompileResult struct {
	Parts map[string]Address `json:"parts"`
	Nodes map[string]Address `json:"nodes"`
}

// createOp is one label to be spliced into the store.
type createOp struct {
	parent    Address
	tag       int
	kind      LabelKind
	id        string
	name      string
	color     *kernel.Color
	shape     kernel.Shape
	transform *xform.Transform
	partRef   Address
}

// updateOp is one in-place part-label change.
type updateOp struct {
	addr  Address
	shape kernel.Shape
	name  *string
	color *kernel.Color
}

// plan is a fully validated set of store mutations. Building a plan reads
// the store but never writes it; commit applies it in one pass that cannot
// fail structurally.
type plan struct {
	store *Store
	log   *zap.Logger

	// Labels removed earlier in the same call are invisible to later steps.
	gone map[Address]bool
	// Tag counters advanced by allocations in this plan.
	next map[Address]int

	clear    bool
	removals []Address
	updates  []updateOp
	creates  []createOp

	// Handles the plan built or resolved itself; released if abandoned.
	acquired []kernel.Shape

	result CompileResult
}

func newPlan(s *Store, log *zap.Logger) *plan {
	return &plan{
		store: s,
		log:   log,
		gone:  make(map[Address]bool),
		next:  make(map[Address]int),
		result: CompileResult{
			Parts: make(map[string]Address),
			Nodes: make(map[string]Address),
		},
	}
}

// lookup returns a label that exists and is not scheduled for removal.
func (p *plan) lookup(addr Address) (*Label, bool) {
	if p.gone[addr] {
		return nil, false
	}
	return p.store.Get(addr)
}

// alloc reserves the next tag under parent.
func (p *plan) alloc(parent Address) int {
	n, ok := p.next[parent]
	if !ok {
		n = p.store.nextTag(parent)
	}
	p.next[parent] = n + 1
	return n
}

func (p *plan) markGone(addr Address) {
	_ = p.store.Walk(addr, func(l *Label, _ int) error {
		if !l.addr.IsFixed() {
			p.gone[l.addr] = true
		}
		return nil
	})
}

// abandon releases the handles the plan acquired.
func (p *plan) abandon(k kernel.Kernel) {
	var errs error
	for _, s := range p.acquired {
		errs = multierr.Append(errs, k.Release(s))
	}
	if errs != nil {
		p.log.Warn("releasing shapes of abandoned plan", zap.Error(errs))
	}
	p.acquired = nil
}

// shapeSource resolves a shape spec for the plan. Handles it creates are
// recorded in acquired.
type shapeSource func(spec structdef.ShapeSpec) (kernel.Shape, bool, error)

func (p *plan) resolveShape(src shapeSource, spec structdef.ShapeSpec) (kernel.Shape, error) {
	s, created, err := src(spec)
	if err != nil {
		return nil, err
	}
	if created {
		p.acquired = append(p.acquired, s)
	}
	return s, nil
}

// planAppend plans the parts and nodes of def.
func (p *plan) planAppend(def *structdef.Definition, src shapeSource) error {
	reg := NewPartRegistry()

	// Register parts before building any geometry.
	partTags := make([]int, len(def.Parts))
	for i, pd := range def.Parts {
		partTags[i] = p.alloc(LibraryAddress)
		if err := reg.Register(pd.ID, LibraryAddress.Child(partTags[i])); err != nil {
			return err
		}
	}
	for i, pd := range def.Parts {
		shape, err := p.resolveShape(src, pd.Shape)
		if err != nil {
			return &Error{Kind: KindInvalidShape, ID: pd.ID, Err: err}
		}
		p.creates = append(p.creates, createOp{
			parent: LibraryAddress,
			tag:    partTags[i],
			kind:   LabelPart,
			id:     pd.ID,
			name:   pd.Name,
			color:  pd.Color,
			shape:  shape,
		})
		p.result.Parts[pd.ID] = LibraryAddress.Child(partTags[i])
	}

	nodes := def.Nodes
	if len(nodes) == 0 {
		return nil
	}

	// Pre-index every node id so forward references resolve.
	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		if _, dup := index[n.NodeID()]; dup {
			return idErr(KindDuplicateNodeID, n.NodeID(), "node id declared more than once")
		}
		index[n.NodeID()] = i
	}

	// Resolve parents: another node of this definition, or an existing label.
	internal := make([]int, len(nodes))
	external := make([]Address, len(nodes))
	for i, n := range nodes {
		internal[i] = -1
		pid := n.ParentID()
		if pid == "" {
			external[i] = AssemblyAddress
			continue
		}
		if j, ok := index[pid]; ok {
			if nodes[j].Kind() != structdef.NodeAssembly {
				return &Error{Kind: KindInvalidParent, ID: n.NodeID(),
					Err: fmt.Errorf("parent %q is an %s, not an assembly", pid, nodes[j].Kind())}
			}
			internal[i] = j
			continue
		}
		addr, err := p.existingContainer(pid)
		if err != nil {
			return &Error{Kind: KindOf(err), ID: n.NodeID(), Address: Address(pid), Err: unwrapMsg(err)}
		}
		external[i] = addr
	}

	order, err := topoOrder(nodes, internal)
	if err != nil {
		return err
	}

	addrs := make([]Address, len(nodes))
	for _, i := range order {
		parent := external[i]
		if internal[i] >= 0 {
			parent = addrs[internal[i]]
		}
		tag := p.alloc(parent)
		addrs[i] = parent.Child(tag)

		op := createOp{parent: parent, tag: tag, id: nodes[i].NodeID()}
		switch n := nodes[i].(type) {
		case *structdef.Assembly:
			op.kind = LabelAssembly
			op.name = n.Name
			op.color = n.Color
		case *structdef.Instance:
			op.kind = LabelInstance
			op.name = n.Name
			op.color = n.Color
			ref, err := p.resolvePart(reg, n.PartID)
			if err != nil {
				return err
			}
			op.partRef = ref
			t, err := instanceTransform(n)
			if err != nil {
				return &Error{Kind: KindInvalidDefinition, ID: n.ID, Err: err}
			}
			op.transform = &t
		default:
			return idErr(KindInvalidDefinition, nodes[i].NodeID(), "unsupported node type %T", n)
		}
		p.creates = append(p.creates, op)
		p.result.Nodes[op.id] = addrs[i]
	}
	return nil
}

// existingContainer resolves a parent reference that names a document label.
func (p *plan) existingContainer(ref string) (Address, error) {
	addr, err := ParseAddress(ref)
	if err != nil {
		return "", &Error{Kind: KindUnknownParentID, Err: fmt.Errorf("no node or label %q", ref)}
	}
	l, ok := p.lookup(addr)
	if !ok {
		return "", &Error{Kind: KindUnknownParentID, Err: fmt.Errorf("no node or label %q", ref)}
	}
	switch {
	case addr == RootAddress || addr == AssemblyAddress:
		return AssemblyAddress, nil
	case l.kind == LabelAssembly:
		return addr, nil
	}
	return "", &Error{Kind: KindInvalidParent, Err: fmt.Errorf("label %s is a %s, not an assembly", addr, l.kind)}
}

// resolvePart maps an instance's partId to a part-label: first the ids of
// this definition, then the address of an existing part-label.
func (p *plan) resolvePart(reg *PartRegistry, id string) (Address, error) {
	if addr, err := reg.Resolve(id); err == nil {
		return addr, nil
	}
	if addr, err := ParseAddress(id); err == nil {
		if l, ok := p.lookup(addr); ok && l.kind == LabelPart {
			return addr, nil
		}
	}
	return "", idErr(KindUnknownPartID, id, "no part with this id or label")
}

// topoOrder returns node indices parents-first. Among nodes that are ready
// at the same time, declaration order wins.
func topoOrder(nodes structdef.NodeList, parent []int) ([]int, error) {
	kids := make([][]int, len(nodes))
	pending := make([]bool, len(nodes))
	var ready []int
	for i := range nodes {
		if parent[i] < 0 {
			ready = append(ready, i)
			continue
		}
		kids[parent[i]] = append(kids[parent[i]], i)
		pending[i] = true
	}

	order := make([]int, 0, len(nodes))
	for len(ready) > 0 {
		i := ready[0]
		ready = ready[1:]
		order = append(order, i)
		for _, c := range kids[i] {
			pending[c] = false
			at := sort.SearchInts(ready, c)
			ready = append(ready, 0)
			copy(ready[at+1:], ready[at:])
			ready[at] = c
		}
	}
	if len(order) == len(nodes) {
		return order, nil
	}

	// Every leftover node sits on or below a cycle. Follow parents from the
	// first one until a node repeats to name the cycle itself.
	start := -1
	for i, p := range pending {
		if p {
			start = i
			break
		}
	}
	const (
		white = iota
		gray
	)
	color := make([]int, len(nodes))
	i := start
	for color[i] == white {
		color[i] = gray
		i = parent[i]
	}
	cycle := []string{nodes[i].NodeID()}
	for j := parent[i]; j != i; j = parent[j] {
		cycle = append(cycle, nodes[j].NodeID())
	}
	return nil, &Error{
		Kind: KindCyclicParent,
		ID:   strings.Join(cycle, ","),
		Err:  fmt.Errorf("parent cycle %s -> %s", strings.Join(cycle, " -> "), cycle[0]),
	}
}

// instanceTransform builds the local placement of an instance node.
func instanceTransform(n *structdef.Instance) (xform.Transform, error) {
	t := xform.Identity()
	switch len(n.Translation) {
	case 0:
	case 3:
		t.Translation = mgl64.Vec3{n.Translation[0], n.Translation[1], n.Translation[2]}
	default:
		return t, fmt.Errorf("translation needs 3 values, got %d", len(n.Translation))
	}
	q, err := xform.Rotation(n.Rotation)
	if err != nil {
		return t, err
	}
	t.Rotation = q
	s, err := xform.Scale(n.Scale)
	if err != nil {
		return t, err
	}
	t.Scale = s
	return t, nil
}

// commit splices the plan into the store. Only kernel release failures can
// surface here; the structural changes always complete.
func (p *plan) commit() error {
	s := p.store
	var errs error
	if p.clear {
		errs = multierr.Append(errs, s.Clear())
	}
	for _, addr := range p.removals {
		errs = multierr.Append(errs, s.Remove(addr))
	}
	for _, u := range p.updates {
		if u.shape != nil {
			errs = multierr.Append(errs, s.SetShape(u.addr, u.shape))
		}
		if u.name != nil {
			errs = multierr.Append(errs, s.SetName(u.addr, *u.name))
		}
		if u.color != nil {
			errs = multierr.Append(errs, s.SetColor(u.addr, u.color))
		}
	}
	for _, op := range p.creates {
		parent, _ := s.Get(op.parent)
		l := s.insert(parent, op.tag, op.kind)
		l.id = op.id
		l.name = op.name
		if op.color != nil {
			c := op.color.Clamped()
			l.color = &c
		}
		l.transform = op.transform
		l.partRef = op.partRef
		if op.shape != nil {
			l.shape = op.shape
			s.owners[op.shape]++
		}
	}
	p.acquired = nil
	return errs
}

func unwrapMsg(err error) error {
	if e, ok := err.(*Error); ok && e.Err != nil {
		return e.Err
	}
	return err
}
