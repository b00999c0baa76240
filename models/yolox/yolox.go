// Package yolox - YOLOX model.
package yolox

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-yolox/models/model"
	"github.com/nvr-ai/go-yolox/models/model/preprocess"
	"github.com/nvr-ai/go-yolox/models/postprocess"
)

const (
	// DefaultProbThreshold is the default candidate confidence threshold.
	DefaultProbThreshold float32 = 0.5
	// DefaultNMSThreshold is the default IoU suppression threshold.
	DefaultNMSThreshold float32 = 0.4
)

// Options is the options for the YOLOX model.
type Options struct {
	Name   model.Name             `json:"name" yaml:"name"`
	Family model.Family           `json:"family" yaml:"family"`
	Path   string                 `json:"path" yaml:"path"`
	Params Params                 `json:"params" yaml:"params"`
	NMS    postprocess.NMSConfig  `json:"nms" yaml:"nms"`
	Input  preprocess.ModelConfig `json:"input" yaml:"input"`
}

// YOLOX is the instance of the YOLOX model.
type YOLOX struct {
	options      Options
	preprocessor *preprocess.Preprocessor
}

// NewModel creates a new YOLOX model. Unset fields of args fall back to the
// standard YOLOX settings: strides 8/16/32, confidence 0.5, class-agnostic NMS
// at IoU 0.4 and ImageNet normalization.
//
// Arguments:
//   - args: The arguments for creating a new model.
//
// Returns:
//   - The model.
//   - An error if the input size or preprocessing configuration is invalid.
func NewModel(args model.NewModelArgs) (*YOLOX, error) {
	if args.InputWidth <= 0 || args.InputHeight <= 0 {
		return nil, errors.Errorf("NewModel requires a positive input size, got %dx%d", args.InputWidth, args.InputHeight)
	}

	params := Params{
		Width:         args.InputWidth,
		Height:        args.InputHeight,
		Strides:       DefaultStrides,
		ProbThreshold: DefaultProbThreshold,
		NumClasses:    args.NumClasses,
	}
	if len(args.Strides) > 0 {
		params.Strides = append([]int(nil), args.Strides...)
	}
	if args.ConfidenceThreshold != nil {
		params.ProbThreshold = *args.ConfidenceThreshold
	}
	if err := params.Validate(); err != nil {
		return nil, errors.Wrap(err, "NewModel")
	}

	nms := postprocess.NMSConfig{ScoreThreshold: params.ProbThreshold, IoUThreshold: DefaultNMSThreshold}
	if args.NMS != nil {
		nms = *args.NMS
	}

	input := preprocess.GetYOLOXConfig(args.InputWidth, args.InputHeight)
	if args.Preprocess != nil {
		c := *args.Preprocess
		input = &c
		input.InputWidth, input.InputHeight = args.InputWidth, args.InputHeight
	}
	preprocessor, err := preprocess.NewPreprocessor(input)
	if err != nil {
		return nil, err
	}

	return &YOLOX{
		options: Options{
			Name:   model.ModelNameYOLOX,
			Family: model.ModelFamilyYOLO,
			Path:   args.Path,
			Params: params,
			NMS:    nms,
			Input:  *input,
		},
		preprocessor: preprocessor,
	}, nil
}

// Options returns the identity of the YOLOX model.
func (m *YOLOX) Options() model.BaseModel {
	return model.BaseModel{
		Name:        m.options.Name,
		Family:      m.options.Family,
		Path:        m.options.Path,
		InputWidth:  m.options.Params.Width,
		InputHeight: m.options.Params.Height,
	}
}

// Settings returns the full decode, NMS and input configuration.
func (m *YOLOX) Settings() Options {
	return m.options
}

// Preprocessor returns the preprocessor for the model input.
func (m *YOLOX) Preprocessor() *preprocess.Preprocessor {
	return m.preprocessor
}

// PostProcess decodes the detection head, suppresses overlapping candidates and
// maps the survivors back into original image coordinates.
//
// Arguments:
//   - outputs: The inference outputs. The first one is the detection head.
//   - input: The preprocessing result the outputs were produced from.
//
// Returns:
//   - The detections, highest confidence first.
//   - ErrDecodeInconsistency if the head does not match the model grid.
func (m *YOLOX) PostProcess(outputs []*tensor.Dense, input *preprocess.PreprocessingResult) ([]postprocess.Result, error) {
	if len(outputs) == 0 {
		return nil, errors.Wrap(ErrDecodeInconsistency, "no outputs")
	}
	if input == nil || input.Scale <= 0 {
		return nil, errors.New("PostProcess requires the preprocessing result")
	}

	candidates, _, err := Decode(outputs[0], m.options.Params)
	if err != nil {
		return nil, err
	}

	kept := postprocess.ApplyGreedyNMS(candidates, m.options.NMS)

	return Remap(kept, input.Scale, input.OriginalWidth, input.OriginalHeight), nil
}

// Remap divides every box by scale and clips it to a width x height image: x to
// [0, width-1], y to [0, height-1]. Scores and classes are kept.
//
// Arguments:
//   - results: Boxes in canvas coordinates.
//   - scale: The letterbox scale.
//   - width: The original image width.
//   - height: The original image height.
//
// Returns:
//   - A new slice of boxes in original image coordinates.
func Remap(results []postprocess.Result, scale float64, width, height int) []postprocess.Result {
	out := make([]postprocess.Result, len(results))
	for i, r := range results {
		out[i] = postprocess.Result{
			Box:   r.Box.Scale(scale).Clip(width, height),
			Score: r.Score,
			Class: r.Class,
		}
	}
	return out
}

var _ model.Model = (*YOLOX)(nil)
