package asm

import (
	"fmt"

	"github.com/chazu/asmdoc/pkg/kernel"
	"github.com/chazu/asmdoc/pkg/structdef"
	"go.uber.org/zap"
)

// Compile adds the parts and nodes of def to the document. It rejects
// definitions carrying removals, part updates or clearDocument; use Apply
// for those.
func (d *Document) Compile(def *structdef.Definition) (*CompileResult, error) {
	if def != nil && (def.ClearDocument || len(def.Removals) > 0 || len(def.PartUpdates) > 0) {
		return nil, &Error{Kind: KindInvalidDefinition,
			Err: fmt.Errorf("compile takes parts and nodes only, use Apply for removals and updates")}
	}
	return d.Apply(def)
}

// Apply merges def into the document in a fixed order: clearDocument,
// removals, part updates, then the parts and nodes to append.
//
// The whole call is validated before anything changes. Any compile failure
// returns an *Error and leaves the document exactly as it was. Unknown
// removal and update targets are skipped.
func (d *Document) Apply(def *structdef.Definition) (*CompileResult, error) {
	if d.store == nil {
		return nil, ErrClosed
	}
	if def == nil {
		def = &structdef.Definition{}
	}
	if err := def.Validate(); err != nil {
		return nil, &Error{Kind: KindInvalidDefinition, Err: err}
	}

	p := newPlan(d.store, d.log)
	p.planRemovals(def)
	if err := p.planUpdates(def.PartUpdates, d.sourceShape); err != nil {
		p.abandon(d.k)
		return nil, err
	}
	if err := p.planAppend(def, d.sourceShape); err != nil {
		p.abandon(d.k)
		d.log.Debug("structure definition rejected", zap.Error(err))
		return nil, err
	}

	if err := p.commit(); err != nil {
		d.log.Warn("releasing replaced shapes", zap.Error(err))
	}
	d.revision++
	d.log.Debug("applied structure definition",
		zap.Bool("clear", def.ClearDocument),
		zap.Int("removals", len(p.removals)),
		zap.Int("updates", len(p.updates)),
		zap.Int("parts", len(p.result.Parts)),
		zap.Int("nodes", len(p.result.Nodes)),
		zap.Int("labels", d.store.Len()),
		zap.Uint64("revision", d.revision),
	)
	return &p.result, nil
}

// planRemovals records the clear and removal steps and hides the affected
// labels from the rest of the plan.
func (p *plan) planRemovals(def *structdef.Definition) {
	if def.ClearDocument {
		p.clear = true
		p.markGone(RootAddress)
	}
	for _, r := range def.Removals {
		addr, err := ParseAddress(r)
		if err != nil {
			p.log.Debug("skipping malformed removal", zap.String("label", r))
			continue
		}
		if _, ok := p.lookup(addr); !ok {
			p.log.Debug("skipping removal of missing label", zap.String("label", r))
			continue
		}
		p.removals = append(p.removals, addr)
		p.markGone(addr)
	}
}

// planUpdates records part updates, building replacement shapes up front.
func (p *plan) planUpdates(ups []structdef.PartUpdate, src shapeSource) error {
	for _, u := range ups {
		addr, err := ParseAddress(u.Label)
		if err != nil {
			p.log.Debug("skipping update of malformed label", zap.String("label", u.Label))
			continue
		}
		l, ok := p.lookup(addr)
		if !ok || l.kind != LabelPart {
			p.log.Debug("skipping update of missing or non-part label", zap.String("label", u.Label))
			continue
		}
		op := updateOp{addr: addr, name: u.Name, color: u.Color}
		if u.Shape != nil {
			shape, err := p.resolveShape(src, *u.Shape)
			if err != nil {
				return &Error{Kind: KindInvalidShape, Address: addr, Err: err}
			}
			op.shape = shape
		}
		p.updates = append(p.updates, op)
	}
	return nil
}

// sourceShape resolves a shape spec. The bool reports whether the document
// created the handle (and so must release it if the call is abandoned).
func (d *Document) sourceShape(spec structdef.ShapeSpec) (kernel.Shape, bool, error) {
	switch {
	case spec.Shape != nil:
		return spec.Shape, false, nil
	case spec.Primitive != nil:
		s, err := d.k.Build(*spec.Primitive)
		if err != nil {
			return nil, false, err
		}
		return s, true, nil
	case spec.Ref != "":
		if d.resolver == nil {
			return nil, false, fmt.Errorf("no shape resolver for reference %q", spec.Ref)
		}
		s, err := d.resolver.ResolveShape(spec.Ref)
		if err != nil {
			return nil, false, fmt.Errorf("resolve %q: %w", spec.Ref, err)
		}
		if s == nil {
			return nil, false, fmt.Errorf("resolve %q: no shape", spec.Ref)
		}
		return s, true, nil
	}
	return nil, false, fmt.Errorf("no shape source")
}
