// Package onnxruntime - ONNX Runtime inference backend.
package onnxruntime

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-yolox/inference"
	"github.com/nvr-ai/go-yolox/inference/providers"
)

var envMu sync.Mutex

// initEnvironment loads the onnxruntime shared library once per process.
func initEnvironment(libPath string, logger *zap.Logger) error {
	envMu.Lock()
	defer envMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}

	if libPath == "" {
		p, err := providers.GetSharedLibPath()
		if err != nil {
			return errors.Wrap(inference.ErrInitialization, err.Error())
		}
		libPath = p
	}
	if _, err := os.Stat(libPath); err != nil {
		return errors.Wrapf(inference.ErrInitialization, "onnxruntime library not found at %s: %v", libPath, err)
	}

	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrapf(inference.ErrInitialization, "error initializing onnxruntime environment: %v", err)
	}

	logger.Info("onnxruntime environment initialized",
		zap.String("library", libPath),
		zap.String("version", ort.GetVersion()),
	)

	return nil
}

// Shutdown tears down the onnxruntime environment. Engines must be closed first.
func Shutdown() error {
	envMu.Lock()
	defer envMu.Unlock()

	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}
