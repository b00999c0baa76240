package detector

import (
	"context"
	"image"
	"image/color"
	"math"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-yolox/images"
	"github.com/nvr-ai/go-yolox/inference/inferencetest"
	"github.com/nvr-ai/go-yolox/models/yolox"
)

// A 64x64 canvas has 8*8 + 4*4 + 2*2 = 84 cells.
const (
	testSize  = 64
	testRows  = 84
	testNames = 2
)

var testClasses = []string{"person", "car"}

func testConfig() Config {
	config := DefaultConfig()
	config.InputWidth = testSize
	config.InputHeight = testSize
	return config
}

// prediction returns a [1, rows, 5+classes] head with a single confident cell:
// stride 8, i=1, j=2, class 1 at 0.9 * 0.9.
func prediction(rows, classes int) *tensor.Dense {
	cols := 5 + classes
	data := make([]float32, rows*cols)
	if rows == testRows && classes >= 2 {
		row := data[(1*8+2)*cols : (1*8+2)*cols+cols]
		row[0], row[1] = 0.5, 0.5
		row[2], row[3] = float32(math.Ln2), 0
		row[4] = 0.9
		row[5], row[6] = 0.1, 0.9
	}
	return tensor.New(tensor.WithShape(1, rows, cols), tensor.WithBacking(data))
}

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func newDetector(t *testing.T, stub *inferencetest.Engine, classes []string, config Config) *Detector {
	t.Helper()
	d, err := New(stub, classes, config, zaptest.NewLogger(t))
	require.NoError(t, err)
	return d
}

// TestDetect_SingleDetection follows one cell through decode, NMS and remap on
// a 128x64 image letterboxed at scale 0.5.
func TestDetect_SingleDetection(t *testing.T) {
	stub := inferencetest.New(prediction(testRows, testNames))
	d := newDetector(t, stub, testClasses, testConfig())

	detections, err := d.Detect(context.Background(), solid(128, 64, color.RGBA{B: 255, A: 255}))
	require.NoError(t, err)
	require.Len(t, detections, 1)

	det := detections[0]
	assert.Equal(t, 1, det.Class)
	assert.InDelta(t, 0.81, det.Score, 1e-5)
	assert.Equal(t, "car:81.00%", det.Label)

	// Canvas box (12, 8)-(28, 16) divided by 0.5.
	assert.InDelta(t, 24, det.Box.X1, 1e-3)
	assert.InDelta(t, 16, det.Box.Y1, 1e-3)
	assert.InDelta(t, 56, det.Box.X2, 1e-3)
	assert.InDelta(t, 32, det.Box.Y2, 1e-3)

	assert.Equal(t, [][]int{{1, 3, testSize, testSize}}, stub.InputShapes())
}

func TestDetect_NothingFound(t *testing.T) {
	stub := inferencetest.New(tensor.New(tensor.WithShape(testRows, 5+testNames), tensor.WithBacking(make([]float32, testRows*(5+testNames)))))
	d := newDetector(t, stub, testClasses, testConfig())

	detections, err := d.Detect(context.Background(), solid(32, 32, color.RGBA{A: 255}))
	require.NoError(t, err)
	assert.NotNil(t, detections)
	assert.Empty(t, detections)
}

func TestDetect_InvalidImage(t *testing.T) {
	stub := inferencetest.New(prediction(testRows, testNames))
	d := newDetector(t, stub, testClasses, testConfig())

	for name, img := range map[string]image.Image{
		"nil":        nil,
		"zero width": image.NewRGBA(image.Rect(0, 0, 0, 10)),
		"zero both":  image.NewRGBA(image.Rectangle{}),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := d.Detect(context.Background(), img)
			assert.True(t, errors.Is(err, ErrInput), "got %v", err)
		})
	}
	assert.Zero(t, stub.Calls(), "the engine must not run for invalid input")
}

func TestDetect_DecodeInconsistency(t *testing.T) {
	tests := []struct {
		name    string
		output  *tensor.Dense
		classes []string
	}{
		{"Too few rows", prediction(testRows-1, testNames), testClasses},
		{"Too many rows", prediction(testRows+4, testNames), testClasses},
		{"Class count mismatch", prediction(testRows, testNames), []string{"a", "b", "c"}},
		{"Row too narrow", prediction(testRows, 0), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDetector(t, inferencetest.New(tt.output), tt.classes, testConfig())
			detections, err := d.Detect(context.Background(), solid(64, 64, color.RGBA{A: 255}))
			assert.Nil(t, detections)
			assert.True(t, errors.Is(err, yolox.ErrDecodeInconsistency), "got %v", err)
		})
	}
}

func TestDetect_EmptyClassNames(t *testing.T) {
	d := newDetector(t, inferencetest.New(prediction(testRows, testNames)), nil, testConfig())

	detections, err := d.Detect(context.Background(), solid(64, 64, color.RGBA{A: 255}))
	require.NoError(t, err)
	require.Len(t, detections, 1)
	assert.Equal(t, "1:81.00%", detections[0].Label)
}

func TestDetect_RelevantClasses(t *testing.T) {
	config := testConfig()
	config.RelevantClasses = []string{"person", "bicycle"}
	d := newDetector(t, inferencetest.New(prediction(testRows, testNames)), testClasses, config)

	detections, err := d.Detect(context.Background(), solid(64, 64, color.RGBA{A: 255}))
	require.NoError(t, err)
	assert.Empty(t, detections)

	config.RelevantClasses = []string{"car"}
	d = newDetector(t, inferencetest.New(prediction(testRows, testNames)), testClasses, config)
	detections, err = d.Detect(context.Background(), solid(64, 64, color.RGBA{A: 255}))
	require.NoError(t, err)
	assert.Len(t, detections, 1)
}

func TestDetect_ThresholdOverride(t *testing.T) {
	config := testConfig()
	config.ProbThreshold = 0.85
	d := newDetector(t, inferencetest.New(prediction(testRows, testNames)), testClasses, config)

	detections, err := d.Detect(context.Background(), solid(64, 64, color.RGBA{A: 255}))
	require.NoError(t, err)
	assert.Empty(t, detections)
}

func TestDetect_ZeroThreshold(t *testing.T) {
	// A weak stride-16 cell at i=0, j=0 (row 64) with confidence 0.3 * 0.9.
	head := prediction(testRows, testNames)
	data := head.Data().([]float32)
	weak := data[64*7 : 65*7]
	weak[0], weak[1] = 0.5, 0.5
	weak[4], weak[5] = 0.3, 0.9

	config := testConfig()
	d := newDetector(t, inferencetest.New(head), testClasses, config)
	detections, err := d.Detect(context.Background(), solid(64, 64, color.RGBA{A: 255}))
	require.NoError(t, err)
	assert.Len(t, detections, 1)

	config.ProbThreshold = 0
	d = newDetector(t, inferencetest.New(head), testClasses, config)
	detections, err = d.Detect(context.Background(), solid(64, 64, color.RGBA{A: 255}))
	require.NoError(t, err)
	require.Len(t, detections, 2)
	assert.Equal(t, "car:81.00%", detections[0].Label)
	assert.Equal(t, "person:27.00%", detections[1].Label)
	assert.InDelta(t, 0.27, detections[1].Score, 1e-5)
}

func TestDetect_EngineFailure(t *testing.T) {
	stub := inferencetest.New(prediction(testRows, testNames))
	stub.Err = errors.New("device lost")
	d := newDetector(t, stub, testClasses, testConfig())

	_, err := d.Detect(context.Background(), solid(64, 64, color.RGBA{A: 255}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device lost")
}

func TestDetect_CanceledContext(t *testing.T) {
	stub := inferencetest.New(prediction(testRows, testNames))
	d := newDetector(t, stub, testClasses, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Detect(ctx, solid(64, 64, color.RGBA{A: 255}))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, stub.Calls())
}

func TestDetect_SerializesUnsafeEngine(t *testing.T) {
	stub := inferencetest.New(prediction(testRows, testNames))
	d := newDetector(t, stub, testClasses, testConfig())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			detections, err := d.Detect(context.Background(), solid(48, 48, color.RGBA{A: 255}))
			assert.NoError(t, err)
			assert.Len(t, detections, 1)
		}()
	}
	wg.Wait()

	assert.Equal(t, 8, stub.Calls())
	assert.Equal(t, 1, stub.PeakConcurrency())
}

func TestDetectWithMetrics(t *testing.T) {
	d := newDetector(t, inferencetest.New(prediction(testRows, testNames)), testClasses, testConfig())

	detections, metrics, err := d.DetectWithMetrics(context.Background(), solid(64, 64, color.RGBA{A: 255}))
	require.NoError(t, err)
	assert.Equal(t, len(detections), metrics.DetectionCount)
	assert.GreaterOrEqual(t, metrics.TotalDuration,
		metrics.PreprocessDuration+metrics.InferenceDuration+metrics.PostProcessDuration)
}

func TestDetectAndAnnotate(t *testing.T) {
	d := newDetector(t, inferencetest.New(prediction(testRows, testNames)), testClasses, testConfig())

	blue := color.RGBA{B: 255, A: 255}
	src := solid(128, 64, blue)

	annotated, detections, err := d.DetectAndAnnotate(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, detections, 1)

	assert.Equal(t, src.Bounds(), annotated.Bounds())
	assert.Equal(t, images.BoxColor, color.RGBAModel.Convert(annotated.At(24, 24)))
	assert.Equal(t, blue, src.RGBAAt(24, 24), "source image must not be modified")

	_, _, err = d.DetectAndAnnotate(context.Background(), nil)
	assert.True(t, errors.Is(err, ErrInput))
}

func TestNew_Errors(t *testing.T) {
	_, err := New(nil, testClasses, testConfig(), nil)
	assert.Error(t, err)

	config := testConfig()
	config.InputWidth = 0
	_, err = New(inferencetest.New(), testClasses, config, nil)
	assert.Error(t, err)

	config = testConfig()
	config.Strides = []int{8, 0}
	_, err = New(inferencetest.New(), testClasses, config, nil)
	assert.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, 640, config.InputWidth)
	assert.Equal(t, 640, config.InputHeight)
	assert.Equal(t, float32(0.5), config.ProbThreshold)
	assert.Equal(t, float32(0.4), config.NMSThreshold)
	assert.Equal(t, []int{8, 16, 32}, config.Strides)
	assert.False(t, config.ClassAware)
}
