// Package model - Definitions shared by detection model implementations.
package model

import (
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-yolox/models/model/preprocess"
	"github.com/nvr-ai/go-yolox/models/postprocess"
)

// Family is the family of models.
type Family string

const (
	// ModelFamilyCOCO is the COCO model family.
	ModelFamilyCOCO Family = "coco"
	// ModelFamilyYOLO is the YOLO model family.
	ModelFamilyYOLO Family = "yolo"
)

// Name is the unique identifier of a model.
type Name string

const (
	// ModelNameYOLOX is the name of the YOLOX model.
	ModelNameYOLOX Name = "yolox"
)

// BaseModel is the identity and input geometry every model reports.
type BaseModel struct {
	Name        Name   `json:"name" yaml:"name"`
	Family      Family `json:"family" yaml:"family"`
	Path        string `json:"path" yaml:"path"`
	InputWidth  int    `json:"input_width" yaml:"input_width"`
	InputHeight int    `json:"input_height" yaml:"input_height"`
}

// Model turns images into input tensors and raw outputs into detections.
type Model interface {
	// Options returns the model identity.
	Options() BaseModel
	// Preprocessor returns the preprocessor producing this model's input tensor.
	Preprocessor() *preprocess.Preprocessor
	// PostProcess decodes the raw outputs of one inference call into detections in
	// original image coordinates.
	PostProcess(outputs []*tensor.Dense, input *preprocess.PreprocessingResult) ([]postprocess.Result, error)
}

// NewModelArgs is the arguments for creating a new model.
type NewModelArgs struct {
	Name   Name   `json:"name" yaml:"name"`
	Path   string `json:"path" yaml:"path"`
	Family Family `json:"family" yaml:"family"`
	// InputWidth and InputHeight are the model input (canvas) size.
	InputWidth  int `json:"input_width" yaml:"input_width"`
	InputHeight int `json:"input_height" yaml:"input_height"`
	// ConfidenceThreshold drops candidates at or below it before NMS. Nil uses
	// the model default; 0 keeps every candidate with a positive confidence.
	ConfidenceThreshold *float32               `json:"confidence_threshold" yaml:"confidence_threshold"`
	NMS                 *postprocess.NMSConfig `json:"nms" yaml:"nms"`
	// Strides overrides the model's default feature map strides.
	Strides []int `json:"strides" yaml:"strides"`
	// NumClasses is the number of classes the model predicts. 0 means unknown.
	NumClasses int `json:"num_classes" yaml:"num_classes"`
	// Preprocess overrides the model's default preprocessing configuration.
	Preprocess *preprocess.ModelConfig `json:"preprocess" yaml:"preprocess"`
}
