package cmd

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-yolox/config"
	"github.com/nvr-ai/go-yolox/detector"
	"github.com/nvr-ai/go-yolox/inference"
	"github.com/nvr-ai/go-yolox/models"

	// Backends register themselves with the inference package.
	_ "github.com/nvr-ai/go-yolox/inference/onnxruntime"
	_ "github.com/nvr-ai/go-yolox/inference/opencv"
)

// newDetector opens the configured engine and wraps it in a detector. The
// caller closes the returned engine.
//
// A class names file that cannot be read is logged and detection continues
// with numeric labels.
func newDetector(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*detector.Detector, inference.Engine, error) {
	opts := cfg.Engine.Options
	opts.Logger = logger

	engine, err := inference.Open(ctx, cfg.Engine.Type, opts)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to open %s engine", cfg.Engine.Type)
	}

	var names models.ClassNames
	if cfg.ClassNamesPath != "" {
		names, err = models.LoadClassNames(cfg.ClassNamesPath)
		if err != nil {
			logger.Warn("continuing without class names", zap.Error(err))
			names = nil
		}
	}

	d, err := detector.New(engine, names, cfg.Detector, logger)
	if err != nil {
		_ = engine.Close()
		return nil, nil, err
	}
	return d, engine, nil
}
