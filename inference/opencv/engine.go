// Package opencv - OpenCV DNN inference backend.
package opencv

import (
	"context"
	"os"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-yolox/inference"
	"github.com/nvr-ai/go-yolox/inference/providers"
)

func init() {
	inference.Register(inference.EngineOpenCV, func(ctx context.Context, opts inference.Options) (inference.Engine, error) {
		return New(ctx, opts)
	})
}

// Engine runs a network with the OpenCV DNN module. A gocv.Net holds its input
// between SetInput and Forward, so calls are serialized.
type Engine struct {
	mu          sync.Mutex
	net         gocv.Net
	closed      bool
	outputNames []string
	logger      *zap.Logger
}

// New reads the network at opts.ModelPath.
//
// Arguments:
//   - ctx: Checked before loading starts.
//   - opts: The engine options. InputName is ignored; OutputNames restricts the
//     forwarded layers, otherwise every unconnected output layer is used.
//
// Returns:
//   - *Engine: The loaded engine.
//   - error: Wrapping inference.ErrInitialization if the network cannot be read
//     or has no output layers.
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

	net := gocv.ReadNet(opts.ModelPath, "")
	if net.Empty() {
		net.Close()
		return nil, errors.Wrapf(inference.ErrInitialization, "failed to read network %s", opts.ModelPath)
	}

	backend, target := preferredBackend(opts.ExecutionProviders)
	if err := net.SetPreferableBackend(backend); err != nil {
		opts.Logger.Warn("preferred backend unavailable", zap.Error(err))
	}
	if err := net.SetPreferableTarget(target); err != nil {
		opts.Logger.Warn("preferred target unavailable", zap.Error(err))
	}

	outputNames := append([]string(nil), opts.OutputNames...)
	if len(outputNames) == 0 {
		outputNames = unconnectedOutputNames(&net)
	}
	if len(outputNames) == 0 {
		net.Close()
		return nil, errors.Wrapf(inference.ErrInitialization, "network %s reports no output names", opts.ModelPath)
	}

	opts.Logger.Info("opencv network loaded",
		zap.String("model", opts.ModelPath),
		zap.Strings("outputs", outputNames),
	)

	return &Engine{net: net, outputNames: outputNames, logger: opts.Logger}, nil
}

func unconnectedOutputNames(net *gocv.Net) []string {
	var names []string
	for _, id := range net.GetUnconnectedOutLayers() {
		layer := net.GetLayer(id)
		names = append(names, layer.GetName())
		layer.Close()
	}
	return names
}

// preferredBackend maps the highest priority enabled provider to a DNN backend and target.
func preferredBackend(configs []providers.ExecutionProviderConfig) (gocv.NetBackendType, gocv.NetTargetType) {
	for _, p := range providers.Enabled(configs) {
		switch p.Provider {
		case providers.CUDAExecutionProvider:
			return gocv.NetBackendCUDA, gocv.NetTargetCUDA
		case providers.OpenVINOExecutionProvider:
			return gocv.NetBackendOpenVINO, gocv.NetTargetCPU
		case providers.CPUExecutionProvider:
			return gocv.NetBackendDefault, gocv.NetTargetCPU
		}
	}
	return gocv.NetBackendDefault, gocv.NetTargetCPU
}

// Infer copies input into a blob, forwards it and copies every output layer out.
func (e *Engine) Infer(ctx context.Context, input *tensor.Dense) ([]*tensor.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, shape, err := inference.Float32Data(input)
	if err != nil {
		return nil, errors.Wrap(err, "invalid input")
	}

	blob := gocv.NewMatWithSizes(shape, gocv.MatTypeCV32F)
	defer blob.Close()
	dst, err := blob.DataPtrFloat32()
	if err != nil {
		return nil, errors.Wrap(err, "error accessing input blob")
	}
	copy(dst, data)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, errors.New("engine is closed")
	}

	if err := e.net.SetInput(blob, ""); err != nil {
		return nil, errors.Wrap(err, "error setting network input")
	}
	outs := e.net.ForwardLayers(e.outputNames)
	defer func() {
		for i := range outs {
			outs[i].Close()
		}
	}()

	results := make([]*tensor.Dense, len(outs))
	for i := range outs {
		values, err := outs[i].DataPtrFloat32()
		if err != nil {
			return nil, errors.Wrapf(err, "error reading output %s", e.outputNames[i])
		}
		results[i] = inference.NewFloat32(outs[i].Size(), values)
	}

	return results, nil
}

// OutputNames returns the forwarded layer names.
func (e *Engine) OutputNames() []string {
	return append([]string(nil), e.outputNames...)
}

// ThreadSafe reports false; Infer serializes internally.
func (e *Engine) ThreadSafe() bool {
	return false
}

// Close releases the network.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	return e.net.Close()
}

var _ inference.ConcurrentEngine = (*Engine)(nil)
