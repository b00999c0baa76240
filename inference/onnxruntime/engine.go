package onnxruntime

import (
	"context"
	"os"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-yolox/inference"
)

func init() {
	inference.Register(inference.EngineONNX, func(ctx context.Context, opts inference.Options) (inference.Engine, error) {
		return New(ctx, opts)
	})
}

// Engine runs a network through an onnxruntime session.
type Engine struct {
	session     *ort.DynamicAdvancedSession
	inputName   string
	outputNames []string
	logger      *zap.Logger
}

// New loads the model at opts.ModelPath into a new session.
//
// Arguments:
//   - ctx: Checked before loading starts.
//   - opts: The engine options.
//
// Returns:
//   - *Engine: The loaded engine.
//   - error: Wrapping inference.ErrInitialization if the model, library or its
//     outputs cannot be resolved.
func New(ctx context.Context, opts inference.Options) (*Engine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if _, err := os.Stat(opts.ModelPath); err != nil {
		return nil, errors.Wrapf(inference.ErrInitialization, "model %s: %v", opts.ModelPath, err)
	}

	if err := initEnvironment(opts.SharedLibraryPath, opts.Logger); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(opts.ModelPath)
	if err != nil {
		return nil, errors.Wrapf(inference.ErrInitialization, "failed to read model %s: %v", opts.ModelPath, err)
	}

	inputName, outputNames, err := resolveNames(opts, inputs, outputs)
	if err != nil {
		return nil, err
	}

	options, err := newSessionOptions(opts)
	if err != nil {
		return nil, errors.Wrap(inference.ErrInitialization, err.Error())
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(opts.ModelPath, []string{inputName}, outputNames, options)
	if err != nil {
		return nil, errors.Wrapf(inference.ErrInitialization, "error creating session: %v", err)
	}

	opts.Logger.Info("onnxruntime model loaded",
		zap.String("model", opts.ModelPath),
		zap.String("input", inputName),
		zap.Strings("outputs", outputNames),
	)

	return &Engine{
		session:     session,
		inputName:   inputName,
		outputNames: outputNames,
		logger:      opts.Logger,
	}, nil
}

// resolveNames picks the input and output tensor names, preferring explicit options.
func resolveNames(opts inference.Options, inputs, outputs []ort.InputOutputInfo) (string, []string, error) {
	inputName := opts.InputName
	if inputName == "" {
		if len(inputs) == 0 {
			return "", nil, errors.Wrap(inference.ErrInitialization, "model has no inputs")
		}
		inputName = inputs[0].Name
	}

	outputNames := append([]string(nil), opts.OutputNames...)
	if len(outputNames) == 0 {
		for _, o := range outputs {
			outputNames = append(outputNames, o.Name)
		}
	}
	if len(outputNames) == 0 {
		return "", nil, errors.Wrap(inference.ErrInitialization, "model reports no output names")
	}

	return inputName, outputNames, nil
}

// Infer runs the session on input. Native tensors are released before returning;
// the returned tensors hold copies.
func (e *Engine) Infer(ctx context.Context, input *tensor.Dense) ([]*tensor.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.session == nil {
		return nil, errors.New("engine is closed")
	}

	data, shape, err := inference.Float32Data(input)
	if err != nil {
		return nil, errors.Wrap(err, "invalid input")
	}

	dims := make([]int64, len(shape))
	for i, d := range shape {
		dims[i] = int64(d)
	}
	in, err := ort.NewTensor(ort.NewShape(dims...), data)
	if err != nil {
		return nil, errors.Wrap(err, "error creating input tensor")
	}
	defer in.Destroy()

	outs := make([]ort.Value, len(e.outputNames))
	if err := e.session.Run([]ort.Value{in}, outs); err != nil {
		destroyAll(outs)
		return nil, errors.Wrap(err, "failed to run inference")
	}
	defer destroyAll(outs)

	results := make([]*tensor.Dense, len(outs))
	for i, v := range outs {
		t, ok := v.(*ort.Tensor[float32])
		if !ok {
			return nil, errors.Errorf("output %s is %T, want float32 tensor", e.outputNames[i], v)
		}
		results[i] = inference.NewFloat32(toInts(t.GetShape()), t.GetData())
	}

	return results, nil
}

// OutputNames returns the session output names.
func (e *Engine) OutputNames() []string {
	return append([]string(nil), e.outputNames...)
}

// ThreadSafe reports true: onnxruntime sessions accept concurrent Run calls.
func (e *Engine) ThreadSafe() bool {
	return true
}

// Close destroys the session.
func (e *Engine) Close() error {
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	return err
}

func destroyAll(values []ort.Value) {
	for _, v := range values {
		if v != nil {
			v.Destroy()
		}
	}
}

func toInts(s ort.Shape) []int {
	dims := make([]int, len(s))
	for i, d := range s {
		dims[i] = int(d)
	}
	return dims
}

var _ inference.ConcurrentEngine = (*Engine)(nil)
