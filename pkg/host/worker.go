package host

import (
	"context"
	"fmt"
	"sync"

	"github.com/chazu/asmdoc/pkg/asm"
)

// job is one call executed on a document's worker.
type job struct {
	ctx  context.Context
	fn   func(*asm.Document) error
	done chan error
}

// worker owns one document. Only its loop goroutine touches the document.
type worker struct {
	doc      *asm.Document
	jobs     chan job
	quit     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
	closeErr error

	// Export generation. A new export cancels the one in flight and the
	// older result is discarded.
	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

func newWorker(doc *asm.Document) *worker {
	w := &worker{
		doc:     doc,
		jobs:    make(chan job),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *worker) loop() {
	defer close(w.stopped)
	for {
		select {
		case j := <-w.jobs:
			if err := j.ctx.Err(); err != nil {
				j.done <- err
				continue
			}
			j.done <- w.call(j.fn)
		case <-w.quit:
			w.closeErr = w.doc.Close()
			return
		}
	}
}

// call runs fn, turning a panic into an error so one bad call cannot take
// the worker down.
func (w *worker) call(fn func(*asm.Document) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("host: panic in document call: %v", r)
		}
	}()
	return fn(w.doc)
}

// do queues fn and waits for it to finish. A call that is still queued when
// ctx ends returns ctx.Err(); once started it always runs to completion.
func (w *worker) do(ctx context.Context, fn func(*asm.Document) error) error {
	j := job{ctx: ctx, fn: fn, done: make(chan error, 1)}
	select {
	case w.jobs <- j:
	case <-w.quit:
		return ErrUnknownDocument
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-j.done
}

// stop closes the document and waits for the loop to exit.
func (w *worker) stop() error {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		if w.cancel != nil {
			w.cancel()
		}
		w.mu.Unlock()
		close(w.quit)
	})
	<-w.stopped
	return w.closeErr
}

// beginExport starts a new export generation, cancelling the previous one.
func (w *worker) beginExport(parent context.Context) (context.Context, uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	w.gen++
	w.cancel = cancel
	return ctx, w.gen
}

// endExport releases the context of gen if it is still current.
func (w *worker) endExport(gen uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if gen == w.gen && w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
}

func (w *worker) superseded(gen uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return gen != w.gen
}
