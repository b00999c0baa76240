package yolox

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-yolox/images"
	"github.com/nvr-ai/go-yolox/models/model"
	"github.com/nvr-ai/go-yolox/models/model/preprocess"
	"github.com/nvr-ai/go-yolox/models/postprocess"
)

func TestNewModel_Defaults(t *testing.T) {
	m, err := NewModel(model.NewModelArgs{Path: "yolox_s.onnx", InputWidth: 640, InputHeight: 640, NumClasses: 80})
	require.NoError(t, err)

	assert.Equal(t, model.BaseModel{
		Name:        model.ModelNameYOLOX,
		Family:      model.ModelFamilyYOLO,
		Path:        "yolox_s.onnx",
		InputWidth:  640,
		InputHeight: 640,
	}, m.Options())

	settings := m.Settings()
	assert.Equal(t, []int{8, 16, 32}, settings.Params.Strides)
	assert.Equal(t, float32(0.5), settings.Params.ProbThreshold)
	assert.Equal(t, 80, settings.Params.NumClasses)
	assert.Equal(t, postprocess.NMSConfig{ScoreThreshold: 0.5, IoUThreshold: 0.4}, settings.NMS)
	assert.Equal(t, []float32{0.485, 0.456, 0.406}, settings.Input.MeanValues)
	assert.NotNil(t, m.Preprocessor())
}

func TestNewModel_Overrides(t *testing.T) {
	input := preprocess.GetYOLOXConfig(1, 1)
	input.ColorMode = preprocess.ColorModeBGR
	threshold := float32(0.3)

	m, err := NewModel(model.NewModelArgs{
		InputWidth:          416,
		InputHeight:         320,
		ConfidenceThreshold: &threshold,
		Strides:             []int{16, 32},
		NMS:                 &postprocess.NMSConfig{IoUThreshold: 0.6, ClassAware: true},
		Preprocess:          input,
	})
	require.NoError(t, err)

	settings := m.Settings()
	assert.Equal(t, []int{16, 32}, settings.Params.Strides)
	assert.Equal(t, float32(0.3), settings.Params.ProbThreshold)
	assert.True(t, settings.NMS.ClassAware)
	assert.Equal(t, preprocess.ColorModeBGR, m.Preprocessor().Config().ColorMode)
	assert.Equal(t, 416, m.Preprocessor().Config().InputWidth)
	assert.Equal(t, 320, m.Preprocessor().Config().InputHeight)

	// The caller's preprocessing config keeps its own size.
	assert.Equal(t, 1, input.InputWidth)
	assert.Equal(t, 1, input.InputHeight)
}

func TestNewModel_ZeroThreshold(t *testing.T) {
	zero := float32(0)
	m, err := NewModel(model.NewModelArgs{InputWidth: 64, InputHeight: 64, ConfidenceThreshold: &zero})
	require.NoError(t, err)
	assert.Equal(t, float32(0), m.Settings().Params.ProbThreshold)
}

func TestNewModel_Invalid(t *testing.T) {
	_, err := NewModel(model.NewModelArgs{InputWidth: 0, InputHeight: 640})
	assert.Error(t, err)

	_, err = NewModel(model.NewModelArgs{InputWidth: 640, InputHeight: 640, Strides: []int{0}})
	assert.Error(t, err)

	bad := preprocess.GetYOLOXConfig(640, 640)
	bad.MeanValues = bad.MeanValues[:2]
	_, err = NewModel(model.NewModelArgs{InputWidth: 640, InputHeight: 640, Preprocess: bad})
	assert.True(t, errors.Is(err, preprocess.ErrInvalidConfig))
}

func TestPostProcess(t *testing.T) {
	m, err := NewModel(model.NewModelArgs{InputWidth: 640, InputHeight: 640, NumClasses: 80})
	require.NoError(t, err)

	pred := newPrediction(m.Settings().Params, 80)

	// Two overlapping candidates of different classes and one near the far edge.
	a := pred.row(1, 3, 5)
	a[0], a[1], a[4], a[5+2] = 0.5, 0.5, 0.9, 0.9
	b := pred.row(1, 3, 6)
	b[0], b[1], b[4], b[5+4] = -0.2, 0.5, 0.8, 0.8
	c := pred.row(2, 19, 19)
	c[0], c[1], c[2], c[3], c[4], c[5] = 0.9, 0.9, 1, 1, 1, 0.7

	input := &preprocess.PreprocessingResult{Scale: 0.5, OriginalWidth: 1280, OriginalHeight: 1200}
	results, err := m.PostProcess([]*tensor.Dense{pred.tensor()}, input)
	require.NoError(t, err)
	require.Len(t, results, 2, "the class 4 box overlaps the class 2 box and is suppressed")

	assert.Equal(t, 2, results[0].Class)
	assert.InDelta(t, 0.81, results[0].Score, 1e-6)
	// Canvas box (80, 48)-(96, 64) divided by 0.5.
	assert.InDelta(t, 160, results[0].Box.X1, 1e-3)
	assert.InDelta(t, 96, results[0].Box.Y1, 1e-3)
	assert.InDelta(t, 192, results[0].Box.X2, 1e-3)
	assert.InDelta(t, 128, results[0].Box.Y2, 1e-3)

	assert.Equal(t, 0, results[1].Class)
	assert.Equal(t, float32(1279), results[1].Box.X2)
	assert.Equal(t, float32(1199), results[1].Box.Y2)
}

func TestPostProcess_Errors(t *testing.T) {
	m, err := NewModel(model.NewModelArgs{InputWidth: 64, InputHeight: 64})
	require.NoError(t, err)

	_, err = m.PostProcess(nil, &preprocess.PreprocessingResult{Scale: 1})
	assert.True(t, errors.Is(err, ErrDecodeInconsistency))

	out := tensor.New(tensor.WithShape(1, 6), tensor.WithBacking(make([]float32, 6)))
	_, err = m.PostProcess([]*tensor.Dense{out}, &preprocess.PreprocessingResult{Scale: 1})
	assert.True(t, errors.Is(err, ErrDecodeInconsistency))

	_, err = m.PostProcess([]*tensor.Dense{out}, nil)
	assert.Error(t, err)
}

func TestRemap(t *testing.T) {
	in := []postprocess.Result{
		{Box: images.RectFromXYWH(10, 20, 30, 40), Score: 0.9, Class: 3},
	}

	// Identity at scale 1 when nothing needs clipping.
	assert.Equal(t, in, Remap(in, 1, 100, 100))

	out := Remap([]postprocess.Result{
		{Box: images.Rect{X1: -4, Y1: 10, X2: 700, Y2: 650}, Score: 0.7, Class: 1},
	}, 2, 320, 240)
	assert.Equal(t, []postprocess.Result{
		{Box: images.Rect{X1: 0, Y1: 5, X2: 319, Y2: 239}, Score: 0.7, Class: 1},
	}, out)

	assert.Empty(t, Remap(nil, 1, 10, 10))
}
