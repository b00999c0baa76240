// Package detector - YOLOX object detection over a single image.
package detector

import (
	"github.com/nvr-ai/go-yolox/models/model"
	"github.com/nvr-ai/go-yolox/models/model/preprocess"
	"github.com/nvr-ai/go-yolox/models/postprocess"
	"github.com/nvr-ai/go-yolox/models/yolox"
)

// Config controls the detection pipeline around the inference engine.
type Config struct {
	// InputWidth and InputHeight are the model input (canvas) size.
	InputWidth  int `json:"input_width" yaml:"input_width"`
	InputHeight int `json:"input_height" yaml:"input_height"`
	// ProbThreshold drops candidates whose confidence is not strictly above it.
	ProbThreshold float32 `json:"prob_threshold" yaml:"prob_threshold"`
	// NMSThreshold suppresses candidates overlapping a stronger one by more than it.
	NMSThreshold float32 `json:"nms_threshold" yaml:"nms_threshold"`
	// ClassAware restricts suppression to candidates of the same class.
	ClassAware bool `json:"class_aware" yaml:"class_aware"`
	// TopK caps the number of detections. 0 keeps all.
	TopK int `json:"top_k" yaml:"top_k"`
	// Strides lists the detection head strides in output row order.
	Strides []int `json:"strides" yaml:"strides"`
	// Preprocess overrides normalization. Nil uses the YOLOX defaults.
	Preprocess *preprocess.ModelConfig `json:"preprocess" yaml:"preprocess"`
	// RelevantClasses lists class names to report (empty = all classes).
	RelevantClasses []string `json:"relevant_classes" yaml:"relevant_classes"`
}

// DefaultConfig returns the standard YOLOX-S settings: 640x640 input, confidence
// 0.5, class-agnostic NMS at 0.4 and strides 8/16/32.
//
// Returns:
//   - Config: The default configuration.
//
// @example
// config := detector.DefaultConfig()
// config.ProbThreshold = 0.3
// d, err := detector.New(engine, names, config, logger)
func DefaultConfig() Config {
	return Config{
		InputWidth:    640,
		InputHeight:   640,
		ProbThreshold: yolox.DefaultProbThreshold,
		NMSThreshold:  yolox.DefaultNMSThreshold,
		Strides:       append([]int(nil), yolox.DefaultStrides...),
	}
}

// modelArgs converts the configuration into YOLOX model arguments for a class
// list of the given length.
func (c Config) modelArgs(numClasses int) model.NewModelArgs {
	args := model.NewModelArgs{
		Name:                model.ModelNameYOLOX,
		Family:              model.ModelFamilyYOLO,
		InputWidth:          c.InputWidth,
		InputHeight:         c.InputHeight,
		ConfidenceThreshold: &c.ProbThreshold,
		Strides:             c.Strides,
		NumClasses:          numClasses,
		NMS: &postprocess.NMSConfig{
			ScoreThreshold: c.ProbThreshold,
			IoUThreshold:   c.NMSThreshold,
			ClassAware:     c.ClassAware,
			TopK:           c.TopK,
		},
	}
	if c.Preprocess != nil {
		input := *c.Preprocess
		args.Preprocess = &input
	}
	return args
}
