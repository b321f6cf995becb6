// Package host serves assembly documents to front ends. Every open document
// is owned by one worker goroutine and every call on it is serialized
// through that worker, so callers on any goroutine can share a Host.
package host

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/chazu/asmdoc/pkg/asm"
	"github.com/chazu/asmdoc/pkg/engine"
	"github.com/chazu/asmdoc/pkg/exchange/glb"
	"github.com/chazu/asmdoc/pkg/exchange/step"
	"github.com/chazu/asmdoc/pkg/kernel"
	"github.com/chazu/asmdoc/pkg/kernel/sdfx"
	"github.com/chazu/asmdoc/pkg/structdef"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var (
	// ErrUnknownDocument is returned for ids that were never opened or are
	// already closed.
	ErrUnknownDocument = errors.New("host: unknown document")

	// ErrSuperseded is returned by an export replaced by a newer export of
	// the same document.
	ErrSuperseded = errors.New("host: export superseded by newer request")
)

// Host manages open documents.
type Host struct {
	mu   sync.Mutex
	docs map[string]*worker

	newKernel func() kernel.Kernel
	engine    *engine.Engine
	header    step.Header
	stepOpts  step.Options
	meshOpts  glb.Options
	log       *zap.Logger
}

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the host's logger. Documents log through it as well.
func WithLogger(l *zap.Logger) Option {
	return func(h *Host) {
		if l != nil {
			h.log = l
		}
	}
}

// WithKernel sets the factory for each new document's geometry kernel.
func WithKernel(f func() kernel.Kernel) Option {
	return func(h *Host) {
		if f != nil {
			h.newKernel = f
		}
	}
}

// WithEngine sets the structure script engine.
func WithEngine(e *engine.Engine) Option {
	return func(h *Host) {
		if e != nil {
			h.engine = e
		}
	}
}

// WithSTEP sets the header and options used by ExportSTEP.
func WithSTEP(header step.Header, opts step.Options) Option {
	return func(h *Host) {
		h.header = header
		h.stepOpts = opts
	}
}

// WithMesh sets the tessellation options used by ExportGLB and Evaluate.
func WithMesh(opts glb.Options) Option {
	return func(h *Host) { h.meshOpts = opts }
}

// New creates a Host. Documents use the sdfx kernel unless WithKernel says
// otherwise.
func New(opts ...Option) *Host {
	h := &Host{
		docs:      make(map[string]*worker),
		newKernel: func() kernel.Kernel { return sdfx.New() },
		meshOpts:  glb.DefaultOptions(),
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.engine == nil {
		h.engine = engine.NewEngine(engine.WithLogger(h.log))
	}
	return h
}

// Open creates an empty document and returns its id.
func (h *Host) Open() string {
	return h.start(asm.New(h.newKernel(), asm.WithLogger(h.log)))
}

// OpenSTEP imports a STEP file into a new document and returns its id.
func (h *Host) OpenSTEP(data []byte) (string, error) {
	doc, err := step.Import(data, h.newKernel(), asm.WithLogger(h.log))
	if err != nil {
		return "", err
	}
	return h.start(doc), nil
}

func (h *Host) start(doc *asm.Document) string {
	id := uuid.NewString()
	w := newWorker(doc)
	h.mu.Lock()
	h.docs[id] = w
	h.mu.Unlock()
	h.log.Debug("opened document", zap.String("document", id))
	return id
}

// Documents lists the ids of open documents in sorted order.
func (h *Host) Documents() []string {
	h.mu.Lock()
	ids := lo.Keys(h.docs)
	h.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Close stops the document's worker and releases its shapes.
func (h *Host) Close(id string) error {
	h.mu.Lock()
	w, ok := h.docs[id]
	delete(h.docs, id)
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDocument, id)
	}
	err := w.stop()
	h.log.Debug("closed document", zap.String("document", id), zap.Error(err))
	return err
}

// Shutdown closes every open document.
func (h *Host) Shutdown() error {
	var errs error
	for _, id := range h.Documents() {
		errs = multierr.Append(errs, h.Close(id))
	}
	return errs
}

func (h *Host) lookup(id string) (*worker, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	w, ok := h.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDocument, id)
	}
	return w, nil
}

// run executes fn on the document's worker.
func (h *Host) run(ctx context.Context, id string, fn func(*asm.Document) error) error {
	w, err := h.lookup(id)
	if err != nil {
		return err
	}
	return w.do(ctx, fn)
}

// ---------------------------------------------------------------------------
// Editing
// ---------------------------------------------------------------------------

// Apply compiles def into the document.
func (h *Host) Apply(ctx context.Context, id string, def *structdef.Definition) (*asm.CompileResult, error) {
	var res *asm.CompileResult
	err := h.run(ctx, id, func(d *asm.Document) error {
		var err error
		res, err = d.Apply(def)
		return err
	})
	return res, err
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// Parts lists the document's parts and assemblies.
func (h *Host) Parts(ctx context.Context, id string) ([]asm.PartSummary, error) {
	var out []asm.PartSummary
	err := h.run(ctx, id, func(d *asm.Document) error {
		out = d.GetDocumentParts()
		return nil
	})
	return out, err
}

// Hierarchy returns the document's label hierarchy.
func (h *Host) Hierarchy(ctx context.Context, id string) (asm.HierarchyResult, error) {
	var out asm.HierarchyResult
	err := h.run(ctx, id, func(d *asm.Document) error {
		out = d.GetAssemblyHierarchy()
		return nil
	})
	return out, err
}

// LabelInfo describes one label given in text form, e.g. "0:1:2".
func (h *Host) LabelInfo(ctx context.Context, id, label string) (asm.LabelInfo, error) {
	var out asm.LabelInfo
	addr, err := asm.ParseAddress(label)
	if err != nil {
		return out, err
	}
	err = h.run(ctx, id, func(d *asm.Document) error {
		var err error
		out, err = d.GetLabelInfo(addr)
		return err
	})
	return out, err
}

// ---------------------------------------------------------------------------
// Export
// ---------------------------------------------------------------------------

// ExportGLB encodes the document as binary glTF. A newer export of the same
// document cancels this one.
func (h *Host) ExportGLB(ctx context.Context, id string) ([]byte, error) {
	return h.export(ctx, id, func(ctx context.Context, d *asm.Document) ([]byte, error) {
		return glb.ExportContext(ctx, d, h.meshOpts)
	})
}

// ExportSTEP encodes the document as STEP text.
func (h *Host) ExportSTEP(ctx context.Context, id string) ([]byte, error) {
	return h.export(ctx, id, func(ctx context.Context, d *asm.Document) ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return step.Export(d, h.header, h.stepOpts)
	})
}

func (h *Host) export(ctx context.Context, id string, fn func(context.Context, *asm.Document) ([]byte, error)) ([]byte, error) {
	w, err := h.lookup(id)
	if err != nil {
		return nil, err
	}
	ctx, gen := w.beginExport(ctx)
	defer w.endExport(gen)

	var out []byte
	err = w.do(ctx, func(d *asm.Document) error {
		var err error
		out, err = fn(ctx, d)
		return err
	})
	if w.superseded(gen) {
		return nil, ErrSuperseded
	}
	return out, err
}

// ---------------------------------------------------------------------------
// Script evaluation
// ---------------------------------------------------------------------------

// colorPalette is a default palette used for instances without a color.
var colorPalette = []string{
	"#4A90D9", "#E67E22", "#2ECC71", "#9B59B6",
	"#E74C3C", "#1ABC9C", "#F39C12", "#3498DB",
}

// MeshData is the JSON-serializable mesh format sent to front ends.
type MeshData struct {
	Vertices []float32 `json:"vertices"`
	Normals  []float32 `json:"normals"`
	Indices  []uint32  `json:"indices"`
	PartName string    `json:"partName"`
	Label    string    `json:"label"`
	Color    string    `json:"color"`
}

// EvalErrorData is a JSON-serializable eval error.
type EvalErrorData struct {
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Message string `json:"message"`
}

// EvalResult is the full result of Evaluate.
type EvalResult struct {
	Meshes []MeshData         `json:"meshes"`
	Errors []EvalErrorData    `json:"errors"`
	Result *asm.CompileResult `json:"result,omitempty"`
}

// Evaluate runs a structure script, applies the definition it declares to
// the document and returns world-space meshes of every placed instance.
func (h *Host) Evaluate(ctx context.Context, id, source string) EvalResult {
	result := EvalResult{
		Meshes: []MeshData{},
		Errors: []EvalErrorData{},
	}
	fail := func(msg string) EvalResult {
		result.Errors = append(result.Errors, EvalErrorData{Message: msg})
		return result
	}

	// Step 1: Evaluate the source into a structure definition.
	def, evalErrs, err := h.engine.Evaluate(source)
	if err != nil {
		h.log.Warn("evaluate fatal error", zap.String("document", id), zap.Error(err))
		return fail(err.Error())
	}
	if len(evalErrs) > 0 {
		result.Errors = lo.Map(evalErrs, func(e engine.EvalError, _ int) EvalErrorData {
			return EvalErrorData{Line: e.Line, Col: e.Col, Message: e.Message}
		})
		return result
	}

	// Step 2: Apply it and tessellate on the document's worker.
	err = h.run(ctx, id, func(d *asm.Document) error {
		res, err := d.Apply(def)
		if err != nil {
			return err
		}
		result.Result = res
		result.Meshes, err = meshData(ctx, d, h.meshOpts)
		return err
	})
	if err != nil {
		h.log.Debug("evaluate failed", zap.String("document", id), zap.Error(err))
		return fail(err.Error())
	}
	return result
}
