// Package inferencetest provides an in-memory inference.Engine for tests.
package inferencetest

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-yolox/inference"
)

// Engine returns fixed outputs for every call and records its inputs.
type Engine struct {
	// Outputs are cloned and returned by every Infer call.
	Outputs []*tensor.Dense
	// Err, when set, is returned by Infer instead of outputs.
	Err error
	// Names are reported by OutputNames.
	Names []string
	// Concurrent is reported by ThreadSafe.
	Concurrent bool

	mu     sync.Mutex
	calls  int
	inputs [][]int
	closed bool
	active int
	peak   int
}

// New returns a stub that answers every call with outputs.
func New(outputs ...*tensor.Dense) *Engine {
	names := make([]string, len(outputs))
	for i := range names {
		names[i] = "output"
		if i > 0 {
			names[i] += string(rune('0' + i))
		}
	}
	return &Engine{Outputs: outputs, Names: names}
}

// Infer records the input shape and returns clones of Outputs.
func (e *Engine) Infer(ctx context.Context, input *tensor.Dense) ([]*tensor.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, errors.New("engine is closed")
	}
	e.calls++
	e.active++
	e.peak = max(e.peak, e.active)
	if input != nil {
		e.inputs = append(e.inputs, []int(input.Shape().Clone()))
	}
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.active--
		e.mu.Unlock()
	}()

	if e.Err != nil {
		return nil, e.Err
	}

	outs := make([]*tensor.Dense, len(e.Outputs))
	for i, o := range e.Outputs {
		outs[i] = o.Clone().(*tensor.Dense)
	}
	return outs, nil
}

// OutputNames returns Names.
func (e *Engine) OutputNames() []string {
	return e.Names
}

// ThreadSafe returns Concurrent.
func (e *Engine) ThreadSafe() bool {
	return e.Concurrent
}

// Close marks the engine closed.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// Calls returns the number of Infer calls.
func (e *Engine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// InputShapes returns the shape of every input seen, in call order.
func (e *Engine) InputShapes() [][]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]int(nil), e.inputs...)
}

// PeakConcurrency returns the largest number of overlapping Infer calls.
func (e *Engine) PeakConcurrency() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.peak
}

// Closed reports whether Close was called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

var _ inference.ConcurrentEngine = (*Engine)(nil)
