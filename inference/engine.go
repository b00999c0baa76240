// Package inference - Inference engine interface and backend registry.
package inference

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-yolox/inference/providers"
)

// ErrInitialization is returned when a model, its runtime or its class names
// cannot be loaded.
var ErrInitialization = errors.New("inference initialization failed")

// Engine runs a loaded network on a single input tensor.
type Engine interface {
	// Infer runs the network. The first returned tensor is the detection head.
	// Outputs are owned by the caller and stay valid after Close.
	Infer(ctx context.Context, input *tensor.Dense) ([]*tensor.Dense, error)
	// OutputNames returns the names of the outputs Infer produces, in order.
	OutputNames() []string
	// Close releases the native resources held by the engine.
	Close() error
}

// ConcurrentEngine is implemented by engines that report whether Infer may be
// called from several goroutines at once.
type ConcurrentEngine interface {
	Engine
	ThreadSafe() bool
}

// IsThreadSafe reports whether e declares itself safe for concurrent Infer calls.
func IsThreadSafe(e Engine) bool {
	c, ok := e.(ConcurrentEngine)
	return ok && c.ThreadSafe()
}

// Options configures an engine backend.
type Options struct {
	// ModelPath is the network file (.onnx).
	ModelPath string `json:"model_path" yaml:"model_path"`
	// SharedLibraryPath is the onnxruntime shared library. Empty uses the
	// platform default.
	SharedLibraryPath string `json:"shared_library_path" yaml:"shared_library_path"`
	// InputName overrides the input tensor name. Empty uses the model's first input.
	InputName string `json:"input_name" yaml:"input_name"`
	// OutputNames overrides the output tensor names. Empty uses every model output.
	OutputNames []string `json:"output_names" yaml:"output_names"`
	// Threads caps intra-op threads. 0 leaves the runtime default.
	Threads int `json:"threads" yaml:"threads"`
	// ExecutionProviders lists hardware accelerators to try, highest priority first.
	ExecutionProviders []providers.ExecutionProviderConfig `json:"execution_providers" yaml:"execution_providers"`
	// Logger receives initialization messages. Nil discards them.
	Logger *zap.Logger `json:"-" yaml:"-"`
}

// Validate checks the options common to every backend.
func (o Options) Validate() error {
	if o.ModelPath == "" {
		return errors.Wrap(ErrInitialization, "model path is required")
	}
	if o.Threads < 0 {
		return errors.Errorf("threads must be >= 0, got %d", o.Threads)
	}
	return nil
}

// Opener constructs an engine for a backend.
type Opener func(ctx context.Context, opts Options) (Engine, error)

var (
	registryMu sync.RWMutex
	registry   = map[EngineType]Opener{}
)

// Register makes a backend available to Open. Backends call it from init.
// Registering the same type twice panics.
func Register(t EngineType, open Opener) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if open == nil {
		panic("inference: Register opener is nil")
	}
	if _, dup := registry[t]; dup {
		panic("inference: Register called twice for engine " + string(t))
	}
	registry[t] = open
}

// Registered returns the engine types that have been registered, sorted.
func Registered() []EngineType {
	registryMu.RLock()
	defer registryMu.RUnlock()

	types := make([]EngineType, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Open loads a network with the given backend.
//
// Arguments:
//   - ctx: Checked before loading starts.
//   - t: The backend to use. Its package must be imported for registration.
//   - opts: The backend options.
//
// Returns:
//   - Engine: The loaded engine.
//   - error: ErrInitialization if the model cannot be loaded or exposes no outputs.
//
// @example
//
//	import _ "github.com/nvr-ai/go-yolox/inference/onnxruntime"
//
//	engine, err := inference.Open(ctx, inference.EngineONNX, inference.Options{ModelPath: "yolox_s.onnx"})
//	if err != nil {
//		return err
//	}
//	defer engine.Close()
func Open(ctx context.Context, t EngineType, opts Options) (Engine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	registryMu.RLock()
	open, ok := registry[t]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrInitialization, "engine %q is not registered (available: %v)", t, Registered())
	}

	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return open(ctx, opts)
}
