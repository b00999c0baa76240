// Package config - YAML configuration for the go-yolox CLI and HTTP server.
package config

import (
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-yolox/detector"
	"github.com/nvr-ai/go-yolox/inference"
)

// ErrInvalidConfig is returned when a configuration fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the full application configuration.
type Config struct {
	// Engine selects and configures the inference backend.
	Engine EngineConfig `json:"engine" yaml:"engine"`
	// Detector controls decoding and suppression.
	Detector detector.Config `json:"detector" yaml:"detector"`
	// ClassNamesPath is a file with one class name per line.
	ClassNamesPath string `json:"class_names_path" yaml:"class_names_path"`
	// Server configures the HTTP front end.
	Server ServerConfig `json:"server" yaml:"server"`
	// LogLevel is the minimum level logged (debug, info, warn, error).
	LogLevel string `json:"log_level" yaml:"log_level"`
}

// EngineConfig selects the inference backend.
type EngineConfig struct {
	// Type is the backend: onnx or opencv.
	Type              inference.EngineType `json:"type" yaml:"type"`
	inference.Options `json:",inline" yaml:",inline"`
}

// ServerConfig configures the HTTP front end.
type ServerConfig struct {
	// ListenAddress is the host:port to serve on.
	ListenAddress string `json:"listen_address" yaml:"listen_address"`
	// UploadDir receives uploaded and annotated images.
	UploadDir string `json:"upload_dir" yaml:"upload_dir"`
	// MaxUploadBytes caps the size of an uploaded image.
	MaxUploadBytes int64 `json:"max_upload_bytes" yaml:"max_upload_bytes"`
}

// Default returns the configuration of the standard YOLOX-S deployment.
//
// Returns:
//   - *Config: 640x640 input, confidence 0.5, NMS 0.4, strides 8/16/32, ONNX
//     Runtime backend and an HTTP server on :8080.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			Type:    inference.EngineONNX,
			Options: inference.Options{ModelPath: "model/yolox_s.onnx"},
		},
		Detector:       detector.DefaultConfig(),
		ClassNamesPath: "model/coco.names",
		Server: ServerConfig{
			ListenAddress:  ":8080",
			UploadDir:      "uploads",
			MaxUploadBytes: 32 << 20,
		},
		LogLevel: "info",
	}
}

// Load reads a YAML file over the defaults. Keys absent from the file keep their
// default value.
//
// Arguments:
//   - path: The YAML file.
//
// Returns:
//   - *Config: The validated configuration.
//   - error: An error if the file cannot be read, ErrInvalidConfig if it is invalid.
//
// @example
// cfg, err := config.Load("go-yolox.yaml")
//
//	if err != nil {
//	    return err
//	}
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config %s", path)
	}
	cfg, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result. Unknown keys
// are rejected.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(ErrInvalidConfig, err.Error())
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if _, ok := inference.ParseEngineType(string(c.Engine.Type)); !ok {
		return errors.Wrapf(ErrInvalidConfig, "unknown engine type %q (want one of %v)", c.Engine.Type, inference.Engines)
	}
	if c.Engine.ModelPath == "" {
		return errors.Wrap(ErrInvalidConfig, "engine.model_path is required")
	}
	if c.Engine.Threads < 0 {
		return errors.Wrapf(ErrInvalidConfig, "engine.threads must be >= 0, got %d", c.Engine.Threads)
	}

	d := c.Detector
	if d.InputWidth <= 0 || d.InputHeight <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "detector input size must be positive, got %dx%d", d.InputWidth, d.InputHeight)
	}
	if d.ProbThreshold < 0 || d.ProbThreshold > 1 {
		return errors.Wrapf(ErrInvalidConfig, "detector.prob_threshold must be in [0, 1], got %v", d.ProbThreshold)
	}
	if d.NMSThreshold < 0 || d.NMSThreshold > 1 {
		return errors.Wrapf(ErrInvalidConfig, "detector.nms_threshold must be in [0, 1], got %v", d.NMSThreshold)
	}
	if d.TopK < 0 {
		return errors.Wrapf(ErrInvalidConfig, "detector.top_k must be >= 0, got %d", d.TopK)
	}
	if len(d.Strides) == 0 {
		return errors.Wrap(ErrInvalidConfig, "detector.strides is empty")
	}
	for _, s := range d.Strides {
		if s <= 0 || s > d.InputWidth || s > d.InputHeight {
			return errors.Wrapf(ErrInvalidConfig, "detector stride %d does not fit a %dx%d input", s, d.InputWidth, d.InputHeight)
		}
	}
	if d.Preprocess != nil {
		p := *d.Preprocess
		p.InputWidth, p.InputHeight = d.InputWidth, d.InputHeight
		if err := p.Validate(); err != nil {
			return errors.Wrap(ErrInvalidConfig, err.Error())
		}
	}

	if c.Server.MaxUploadBytes < 0 {
		return errors.Wrapf(ErrInvalidConfig, "server.max_upload_bytes must be >= 0, got %d", c.Server.MaxUploadBytes)
	}
	return nil
}
