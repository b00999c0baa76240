package detector

import (
	"context"
	"image"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-yolox/images"
	"github.com/nvr-ai/go-yolox/inference"
	"github.com/nvr-ai/go-yolox/models"
	"github.com/nvr-ai/go-yolox/models/model"
	"github.com/nvr-ai/go-yolox/models/postprocess"
)

// ErrInput is returned for nil or zero-area images.
var ErrInput = images.ErrInput

// Detection is a detected object in original image coordinates.
type Detection struct {
	Box   images.Rect `json:"box"`
	Class int         `json:"class"`
	Score float32     `json:"score"`
	Label string      `json:"label"`
}

// Annotation returns the box and label to draw for the detection.
func (d Detection) Annotation() images.Annotation {
	return images.Annotation{Box: d.Box, Label: d.Label}
}

// Detector runs the YOLOX pipeline against an inference engine.
// It is safe for concurrent use.
type Detector struct {
	engine   inference.Engine
	model    model.Model
	classes  models.ClassNames
	relevant map[int]bool
	logger   *zap.Logger

	// mu serializes engines that are not thread-safe.
	mu         sync.Mutex
	serialized bool
}

// New creates a detector.
//
// Arguments:
//   - engine: The loaded network. The detector does not close it.
//   - classNames: The class names, indexed by class id. May be empty, in which
//     case labels use the class index and any number of classes is accepted.
//   - config: The pipeline configuration.
//   - logger: Receives timings at debug level. Nil discards them.
//
// Returns:
//   - *Detector: The detector.
//   - error: An error if the configuration is invalid.
//
// @example
// d, err := detector.New(engine, names, detector.DefaultConfig(), logger)
//
//	if err != nil {
//	    return err
//	}
//
// detections, err := d.Detect(ctx, img)
func New(engine inference.Engine, classNames []string, config Config, logger *zap.Logger) (*Detector, error) {
	if engine == nil {
		return nil, errors.New("detector requires an inference engine")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	classes := models.ClassNames(classNames)
	m, err := models.NewModel(config.modelArgs(len(classes)))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create model")
	}
	m.Preprocessor().SetLogger(logger)

	d := &Detector{
		engine:     engine,
		model:      m,
		classes:    classes,
		logger:     logger,
		serialized: !inference.IsThreadSafe(engine),
	}

	if len(config.RelevantClasses) > 0 {
		d.relevant = make(map[int]bool, len(config.RelevantClasses))
		for _, name := range config.RelevantClasses {
			idx, ok := classes.Index(name)
			if !ok {
				logger.Warn("ignoring unknown relevant class", zap.String("class", name))
				continue
			}
			d.relevant[idx] = true
		}
	}

	logger.Info("detector ready",
		zap.String("model", string(m.Options().Name)),
		zap.Int("input_width", m.Options().InputWidth),
		zap.Int("input_height", m.Options().InputHeight),
		zap.Int("classes", len(classes)),
		zap.Strings("outputs", engine.OutputNames()),
		zap.Bool("serialized", d.serialized),
	)

	return d, nil
}

// Model returns the model the detector decodes with.
func (d *Detector) Model() model.Model {
	return d.model
}

// Detect finds objects in img.
//
// Arguments:
//   - ctx: Checked before inference starts. Inference itself is not interrupted.
//   - img: The image to search.
//
// Returns:
//   - []Detection: The detections, highest confidence first. Empty, not an
//     error, when nothing is found.
//   - error: ErrInput for nil or zero-area images, ErrDecodeInconsistency when
//     the engine output does not match the detection grid.
func (d *Detector) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	detections, _, err := d.DetectWithMetrics(ctx, img)
	return detections, err
}

// DetectWithMetrics is Detect plus the stage timings of the call.
func (d *Detector) DetectWithMetrics(ctx context.Context, img image.Image) ([]Detection, Metrics, error) {
	var metrics Metrics

	if img == nil || img.Bounds().Empty() {
		return nil, metrics, errors.Wrap(ErrInput, "image has no pixels")
	}

	watch := newStopwatch()

	input, err := d.model.Preprocessor().Preprocess(img)
	if err != nil {
		return nil, metrics, errors.Wrap(err, "preprocess failed")
	}
	metrics.PreprocessDuration = watch.Lap()

	if err := ctx.Err(); err != nil {
		return nil, metrics, err
	}

	outputs, err := d.infer(ctx, input.Tensor())
	if err != nil {
		return nil, metrics, errors.Wrap(err, "inference failed")
	}
	metrics.InferenceDuration = watch.Lap()

	results, err := d.model.PostProcess(outputs, input)
	if err != nil {
		return nil, metrics, errors.Wrap(err, "post-process failed")
	}

	detections := d.toDetections(results)
	metrics.PostProcessDuration = watch.Lap()
	metrics.TotalDuration = watch.Total()
	metrics.DetectionCount = len(detections)

	d.logger.Debug("detect", metrics.field())

	return detections, metrics, nil
}

// DetectAndAnnotate runs Detect and draws every detection onto a copy of img.
//
// Returns:
//   - image.Image: The annotated copy. img is not modified.
//   - []Detection: The detections.
//   - error: As for Detect.
func (d *Detector) DetectAndAnnotate(ctx context.Context, img image.Image) (image.Image, []Detection, error) {
	detections, err := d.Detect(ctx, img)
	if err != nil {
		return nil, nil, err
	}

	annotations := make([]images.Annotation, len(detections))
	for i, det := range detections {
		annotations[i] = det.Annotation()
	}

	return images.Annotate(img, annotations), detections, nil
}

// infer runs the engine, holding mu when the engine cannot run concurrently.
func (d *Detector) infer(ctx context.Context, input *tensor.Dense) ([]*tensor.Dense, error) {
	if d.serialized {
		d.mu.Lock()
		defer d.mu.Unlock()
	}
	return d.engine.Infer(ctx, input)
}

// toDetections labels results and drops classes outside RelevantClasses.
func (d *Detector) toDetections(results []postprocess.Result) []Detection {
	detections := make([]Detection, 0, len(results))
	for _, r := range results {
		if d.relevant != nil && !d.relevant[r.Class] {
			continue
		}
		detections = append(detections, Detection{
			Box:   r.Box,
			Class: r.Class,
			Score: r.Score,
			Label: d.classes.Label(r.Class, r.Score),
		})
	}
	return detections
}
