// Package asm implements the assembly document: a label-addressed tree of
// reusable parts, placed instances and nested sub-assemblies, built from
// Structure Definitions and queried for parts, hierarchy, colors and
// transforms.
//
// Layout of every document:
//
//	0        document root
//	0:1      assembly root; the user-visible hierarchy lives below it
//	0:2      part library; one part-label per registered part
//
// A Document is not safe for concurrent use. Hosts serialize access, one
// worker per open document.
package asm

import (
	"github.com/chazu/asmdoc/pkg/kernel"
	"go.uber.org/zap"
)

// ShapeResolver turns a named shape reference into a kernel shape. The
// returned handle becomes owned by the document.
type ShapeResolver interface {
	ResolveShape(ref string) (kernel.Shape, error)
}

// ShapeResolverFunc adapts a function to ShapeResolver.
type ShapeResolverFunc func(ref string) (kernel.Shape, error)

// ResolveShape calls f(ref).
func (f ShapeResolverFunc) ResolveShape(ref string) (kernel.Shape, error) { return f(ref) }

// Option configures a Document.
type Option func(*Document)

// WithLogger sets the document's logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Document) {
		if l != nil {
			d.log = l
		}
	}
}

// WithShapeResolver sets the resolver used for string shape references.
func WithShapeResolver(r ShapeResolver) Option {
	return func(d *Document) { d.resolver = r }
}

// Document is one assembly document and the geometry it owns.
type Document struct {
	k        kernel.Kernel
	store    *Store
	resolver ShapeResolver
	log      *zap.Logger
	revision uint64
}

// New creates an empty document backed by k.
func New(k kernel.Kernel, opts ...Option) *Document {
	d := &Document{k: k, log: zap.NewNop()}
	for _, opt := range opts {
		opt(d)
	}
	d.store = NewStore(k, d.log)
	return d
}

// Kernel returns the geometry kernel.
func (d *Document) Kernel() kernel.Kernel { return d.k }

// Store exposes the label store for read access by codecs and tools.
// Mutations made directly on it do not advance the revision.
func (d *Document) Store() *Store { return d.store }

// Logger returns the document's logger.
func (d *Document) Logger() *zap.Logger { return d.log }

// Revision counts successful mutating calls.
func (d *Document) Revision() uint64 { return d.revision }

// Closed reports whether Close has been called.
func (d *Document) Closed() bool { return d.store == nil }

// Close releases every shape the document owns exactly once. Further calls
// are no-ops.
func (d *Document) Close() error {
	if d.store == nil {
		return nil
	}
	err := d.store.releaseAll()
	if err != nil {
		d.log.Warn("releasing document shapes", zap.Error(err))
	}
	d.store = nil
	return err
}
