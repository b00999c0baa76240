// Package preprocess turns decoded images into normalized model input tensors.
package preprocess

import (
	"image"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-yolox/images"
)

// ErrInvalidConfig is returned when a ModelConfig cannot be used for preprocessing.
var ErrInvalidConfig = errors.New("invalid preprocessing configuration")

// ModelConfig defines preprocessing configuration for a specific model.
type ModelConfig struct {
	// Name of the model for debugging purposes.
	Name string `json:"name" yaml:"name"`
	// InputWidth is the expected width of the model input.
	InputWidth int `json:"input_width" yaml:"input_width"`
	// InputHeight is the expected height of the model input.
	InputHeight int `json:"input_height" yaml:"input_height"`
	// InputChannels is the number of channels. Only 3 is supported.
	InputChannels int `json:"input_channels" yaml:"input_channels"`
	// NormalizationType defines how to normalize pixel values.
	NormalizationType NormalizationType `json:"normalization_type" yaml:"normalization_type"`
	// MeanValues are per-channel means on the [0, 1] scale, in output channel order.
	MeanValues []float32 `json:"mean_values" yaml:"mean_values"`
	// StdValues are per-channel standard deviations on the [0, 1] scale.
	StdValues []float32 `json:"std_values" yaml:"std_values"`
	// ChannelOrder defines the channel ordering (CHW or HWC).
	ChannelOrder ChannelOrder `json:"channel_order" yaml:"channel_order"`
	// ColorMode defines the output channel sequence (RGB or BGR).
	ColorMode ColorMode `json:"color_mode" yaml:"color_mode"`
	// PadValue is the gray level of the letterbox padding.
	PadValue uint8 `json:"pad_value" yaml:"pad_value"`
}

// NormalizationType defines how pixel values are normalized.
type NormalizationType int

const (
	// NormalizeNone keeps pixel values as 0-255.
	NormalizeNone NormalizationType = iota
	// NormalizeZeroToOne scales pixel values to [0, 1].
	NormalizeZeroToOne
	// NormalizeMinusOneToOne scales pixel values to [-1, 1].
	NormalizeMinusOneToOne
	// NormalizeStandardize applies (v/255 - mean[c]) / std[c].
	NormalizeStandardize
)

// ChannelOrder defines the ordering of image channels.
type ChannelOrder int

const (
	// ChannelOrderCHW is Channel-Height-Width ordering (common for ONNX).
	ChannelOrderCHW ChannelOrder = iota
	// ChannelOrderHWC is Height-Width-Channel ordering.
	ChannelOrderHWC
)

// ColorMode defines the channel sequence written to the tensor.
type ColorMode int

const (
	// ColorModeRGB is standard RGB color mode.
	ColorModeRGB ColorMode = iota
	// ColorModeBGR is BGR color mode (common for OpenCV models).
	ColorModeBGR
)

// PreprocessingResult contains the preprocessed image data and metadata.
type PreprocessingResult struct {
	// Data is the preprocessed float32 tensor data.
	Data []float32
	// OriginalWidth is the original image width before preprocessing.
	OriginalWidth int
	// OriginalHeight is the original image height before preprocessing.
	OriginalHeight int
	// Scale is the uniform letterbox factor. Divide canvas coordinates by it to
	// recover original coordinates.
	Scale float64
	// ScaledWidth is the width of the image content on the canvas.
	ScaledWidth int
	// ScaledHeight is the height of the image content on the canvas.
	ScaledHeight int
	// Shape is [1, C, H, W] or [1, H, W, C].
	Shape []int
}

// Tensor wraps Data in a dense tensor of the recorded shape without copying.
func (r *PreprocessingResult) Tensor() *tensor.Dense {
	return tensor.New(tensor.WithShape(r.Shape...), tensor.WithBacking(r.Data))
}

// GetYOLOXConfig returns the standard configuration for YOLOX models: RGB, CHW,
// ImageNet mean/std and a gray 144 letterbox.
//
// Arguments:
// - width: The model input width.
// - height: The model input height.
//
// Returns:
// - A configured ModelConfig for YOLOX.
//
// @example
// config := GetYOLOXConfig(640, 640)
// preprocessor := NewPreprocessor(config)
func GetYOLOXConfig(width, height int) *ModelConfig {
	return &ModelConfig{
		Name:              "yolox",
		InputWidth:        width,
		InputHeight:       height,
		InputChannels:     3,
		NormalizationType: NormalizeStandardize,
		MeanValues:        []float32{0.485, 0.456, 0.406},
		StdValues:         []float32{0.229, 0.224, 0.225},
		ChannelOrder:      ChannelOrderCHW,
		ColorMode:         ColorModeRGB,
		PadValue:          images.DefaultPadValue,
	}
}

// Validate checks the configuration for use by a Preprocessor.
func (c *ModelConfig) Validate() error {
	if c.InputWidth <= 0 || c.InputHeight <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "input dimensions must be positive, got %dx%d", c.InputWidth, c.InputHeight)
	}
	if c.InputChannels != 3 {
		return errors.Wrapf(ErrInvalidConfig, "input channels must be 3, got %d", c.InputChannels)
	}
	if c.NormalizationType == NormalizeStandardize {
		if len(c.MeanValues) != c.InputChannels || len(c.StdValues) != c.InputChannels {
			return errors.Wrapf(ErrInvalidConfig, "mean/std must have %d values, got %d/%d",
				c.InputChannels, len(c.MeanValues), len(c.StdValues))
		}
		for i, s := range c.StdValues {
			if s == 0 {
				return errors.Wrapf(ErrInvalidConfig, "std value %d is zero", i)
			}
		}
	}
	return nil
}

// Preprocessor handles image preprocessing for ONNX models.
type Preprocessor struct {
	config *ModelConfig
	logger *zap.Logger
}

// NewPreprocessor creates a new preprocessor with the given configuration.
//
// Arguments:
// - config: The model-specific preprocessing configuration.
//
// Returns:
// - A configured Preprocessor instance.
// - ErrInvalidConfig if the configuration fails validation.
func NewPreprocessor(config *ModelConfig) (*Preprocessor, error) {
	if config == nil {
		return nil, errors.Wrap(ErrInvalidConfig, "nil config")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Preprocessor{config: config, logger: zap.NewNop()}, nil
}

// SetLogger sets the logger used for debug output.
func (p *Preprocessor) SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p.logger = logger
}

// Config returns the preprocessing configuration.
func (p *Preprocessor) Config() *ModelConfig {
	return p.config
}

// Preprocess letterboxes img to the model input size and converts it to a
// normalized tensor.
//
// Arguments:
// - img: The decoded input image.
//
// Returns:
// - PreprocessingResult containing the tensor data and the letterbox scale.
// - images.ErrInput for nil or zero-area images.
//
// @example
// result, err := preprocessor.Preprocess(img)
//
//	if err != nil {
//	    return err
//	}
//
// input := result.Tensor()
func (p *Preprocessor) Preprocess(img image.Image) (*PreprocessingResult, error) {
	lb, err := images.LetterboxImage(img, p.config.InputWidth, p.config.InputHeight, p.config.PadValue)
	if err != nil {
		return nil, errors.Wrap(err, "letterbox failed")
	}

	p.logger.Debug("letterboxed input",
		zap.String("model", p.config.Name),
		zap.Int("source_width", lb.SourceWidth),
		zap.Int("source_height", lb.SourceHeight),
		zap.Int("scaled_width", lb.ScaledWidth),
		zap.Int("scaled_height", lb.ScaledHeight),
		zap.Float64("scale", lb.Scale),
	)

	data := p.Normalize(lb.Canvas)

	var shape []int
	if p.config.ChannelOrder == ChannelOrderCHW {
		shape = []int{1, p.config.InputChannels, p.config.InputHeight, p.config.InputWidth}
	} else {
		shape = []int{1, p.config.InputHeight, p.config.InputWidth, p.config.InputChannels}
	}

	return &PreprocessingResult{
		Data:           data,
		OriginalWidth:  lb.SourceWidth,
		OriginalHeight: lb.SourceHeight,
		Scale:          lb.Scale,
		ScaledWidth:    lb.ScaledWidth,
		ScaledHeight:   lb.ScaledHeight,
		Shape:          shape,
	}, nil
}

// Normalize converts a canvas of the model input size into normalized tensor
// data in the configured channel sequence and ordering.
//
// Arguments:
//   - canvas: The letterboxed image.
//
// Returns:
//   - The tensor data, 3 values per pixel.
func (p *Preprocessor) Normalize(canvas *image.RGBA) []float32 {
	data := p.imageToTensor(canvas)
	p.normalize(data)
	return data
}

// imageToTensor converts an RGBA canvas to float32 values in 0-255, in the
// configured channel sequence and ordering.
func (p *Preprocessor) imageToTensor(img *image.RGBA) []float32 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	plane := width * height

	tensor := make([]float32, plane*3)

	// Source is always RGBA; index of R, G, B for each output channel.
	src := [3]int{0, 1, 2}
	if p.config.ColorMode == ColorModeBGR {
		src = [3]int{2, 1, 0}
	}

	for y := 0; y < height; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+width*4]
		for x := 0; x < width; x++ {
			px := row[x*4 : x*4+4]
			if p.config.ChannelOrder == ChannelOrderCHW {
				i := y*width + x
				tensor[i] = float32(px[src[0]])
				tensor[plane+i] = float32(px[src[1]])
				tensor[2*plane+i] = float32(px[src[2]])
			} else {
				i := (y*width + x) * 3
				tensor[i] = float32(px[src[0]])
				tensor[i+1] = float32(px[src[1]])
				tensor[i+2] = float32(px[src[2]])
			}
		}
	}

	return tensor
}

// normalize applies normalization to the tensor in place.
func (p *Preprocessor) normalize(tensor []float32) {
	switch p.config.NormalizationType {
	case NormalizeZeroToOne:
		for i := range tensor {
			tensor[i] /= 255.0
		}
	case NormalizeMinusOneToOne:
		for i := range tensor {
			tensor[i] = (tensor[i] / 127.5) - 1.0
		}
	case NormalizeStandardize:
		channels := p.config.InputChannels
		pixelsPerChannel := len(tensor) / channels
		for c := 0; c < channels; c++ {
			mean := p.config.MeanValues[c]
			std := p.config.StdValues[c]

			if p.config.ChannelOrder == ChannelOrderCHW {
				offset := c * pixelsPerChannel
				for i := 0; i < pixelsPerChannel; i++ {
					tensor[offset+i] = (tensor[offset+i]/255.0 - mean) / std
				}
			} else {
				for i := c; i < len(tensor); i += channels {
					tensor[i] = (tensor[i]/255.0 - mean) / std
				}
			}
		}
	}
}
