package onnxruntime

import (
	"strconv"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-yolox/inference"
	"github.com/nvr-ai/go-yolox/inference/providers"
)

// newSessionOptions builds session options from the engine options: thread
// count, extended graph optimizations and the enabled execution providers in
// priority order.
//
// Arguments:
//   - opts: The engine options.
//
// Returns:
//   - *ort.SessionOptions: Configured session options. The caller destroys them.
//   - error: If the options cannot be created or a required provider fails.
func newSessionOptions(opts inference.Options) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "error creating session options")
	}

	if opts.Threads > 0 {
		if err := options.SetIntraOpNumThreads(opts.Threads); err != nil {
			options.Destroy()
			return nil, errors.Wrap(err, "error setting intra-op threads")
		}
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		options.Destroy()
		return nil, errors.Wrap(err, "error setting graph optimization level")
	}

	for _, p := range providers.Enabled(opts.ExecutionProviders) {
		if err := appendProvider(options, p); err != nil {
			// Accelerators are optional; the CPU provider is always there.
			opts.Logger.Warn("execution provider unavailable",
				zap.String("provider", string(p.Provider)),
				zap.Error(err),
			)
		}
	}

	return options, nil
}

// appendProvider enables a single execution provider on the session options.
func appendProvider(options *ort.SessionOptions, p providers.ExecutionProviderConfig) error {
	switch p.Provider {
	case providers.CPUExecutionProvider:
		return nil

	case providers.CUDAExecutionProvider:
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return err
		}
		defer cuda.Destroy()
		if len(p.Options) > 0 {
			if err := cuda.Update(p.Options); err != nil {
				return err
			}
		}
		return options.AppendExecutionProviderCUDA(cuda)

	case providers.TensorRTExecutionProvider:
		trt, err := ort.NewTensorRTProviderOptions()
		if err != nil {
			return err
		}
		defer trt.Destroy()
		if len(p.Options) > 0 {
			if err := trt.Update(p.Options); err != nil {
				return err
			}
		}
		return options.AppendExecutionProviderTensorRT(trt)

	case providers.CoreMLExecutionProvider:
		flags, err := coreMLFlags(p.Options)
		if err != nil {
			return err
		}
		return options.AppendExecutionProviderCoreML(flags)

	case providers.OpenVINOExecutionProvider:
		return options.AppendExecutionProviderOpenVINO(p.Options)

	default:
		return errors.Errorf("unsupported execution provider: %s", p.Provider)
	}
}

// coreMLFlags reads the CoreML flag bitmask from the "flags" option.
func coreMLFlags(options map[string]string) (uint32, error) {
	s, ok := options["flags"]
	if !ok || s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid coreml flags %q", s)
	}
	return uint32(v), nil
}
