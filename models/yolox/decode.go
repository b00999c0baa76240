// Package yolox - decoding of YOLOX detection heads.
package yolox

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-yolox/images"
	"github.com/nvr-ai/go-yolox/models/postprocess"
)

// ErrDecodeInconsistency is returned when a raw prediction tensor does not match
// the grid implied by the input size and strides.
var ErrDecodeInconsistency = errors.New("raw prediction does not match the detection grid")

// DefaultStrides are the feature map strides of the standard YOLOX head, in the
// order their rows appear in the output.
var DefaultStrides = []int{8, 16, 32}

// Params controls how a raw prediction is decoded.
type Params struct {
	// Width is the model input (canvas) width.
	Width int `json:"width" yaml:"width"`
	// Height is the model input (canvas) height.
	Height int `json:"height" yaml:"height"`
	// Strides lists the feature map strides in output row order.
	Strides []int `json:"strides" yaml:"strides"`
	// ProbThreshold drops candidates whose confidence is not strictly above it.
	ProbThreshold float32 `json:"prob_threshold" yaml:"prob_threshold"`
	// NumClasses is the expected number of class scores per row. 0 accepts any.
	NumClasses int `json:"num_classes" yaml:"num_classes"`
}

// Validate checks that the grid can be derived from the parameters.
func (p Params) Validate() error {
	if p.Width <= 0 || p.Height <= 0 {
		return errors.Errorf("invalid decode size %dx%d", p.Width, p.Height)
	}
	if len(p.Strides) == 0 {
		return errors.New("no strides configured")
	}
	for _, s := range p.Strides {
		if s <= 0 {
			return errors.Errorf("invalid stride %d", s)
		}
	}
	return nil
}

// GridCells returns the number of rows the head emits for a single stride.
func (p Params) GridCells(stride int) int {
	return (p.Width / stride) * (p.Height / stride)
}

// ExpectedRows returns the number of rows the head emits across all strides.
func (p Params) ExpectedRows() int {
	total := 0
	for _, s := range p.Strides {
		total += p.GridCells(s)
	}
	return total
}

// DecodeStats describes how much of the prediction a Decode call consumed.
type DecodeStats struct {
	// RowsVisited is the total number of rows read.
	RowsVisited int
	// RowsPerStride is the number of rows read per stride, in stride order.
	RowsPerStride []int
	// Columns is the width of each row (5 + number of classes).
	Columns int
}

// Decode turns a raw YOLOX prediction into candidate boxes in canvas coordinates.
//
// The prediction holds one row per grid cell, stride blocks in Params.Strides
// order. A row is [cx_off, cy_off, w_log, h_log, objectness, class scores...].
// For every stride s the cells are visited with i over [0, Width/s) outer and j
// over [0, Height/s) inner:
//
//	cx = (row[0] + j) * s
//	cy = (row[1] + i) * s
//	w  = exp(row[2]) * s
//	h  = exp(row[3]) * s
//
// A cell is emitted when objectness * max(class scores) > ProbThreshold.
//
// Arguments:
//   - output: The float32 prediction, shaped [..., rows, cols]. It is not modified.
//   - params: The decode parameters.
//
// Returns:
//   - The candidates, in row order.
//   - Row accounting for the call.
//   - ErrDecodeInconsistency if the shape does not match params.
func Decode(output *tensor.Dense, params Params) ([]postprocess.Result, DecodeStats, error) {
	var stats DecodeStats

	if err := params.Validate(); err != nil {
		return nil, stats, err
	}
	if output == nil {
		return nil, stats, errors.Wrap(ErrDecodeInconsistency, "nil prediction")
	}
	if output.Dtype() != tensor.Float32 {
		return nil, stats, errors.Wrapf(ErrDecodeInconsistency, "prediction dtype %v, want float32", output.Dtype())
	}
	shape := output.Shape()
	if len(shape) < 2 {
		return nil, stats, errors.Wrapf(ErrDecodeInconsistency, "prediction rank %d, want at least 2", len(shape))
	}

	cols := shape[len(shape)-1]
	rows := output.Size() / max(cols, 1)
	if cols < 6 {
		return nil, stats, errors.Wrapf(ErrDecodeInconsistency, "prediction has %d columns, want at least 6", cols)
	}
	if params.NumClasses > 0 && cols != 5+params.NumClasses {
		return nil, stats, errors.Wrapf(ErrDecodeInconsistency, "prediction has %d columns, want %d for %d classes",
			cols, 5+params.NumClasses, params.NumClasses)
	}
	if want := params.ExpectedRows(); rows != want {
		return nil, stats, errors.Wrapf(ErrDecodeInconsistency, "prediction has %d rows, grid %dx%d with strides %v needs %d",
			rows, params.Width, params.Height, params.Strides, want)
	}

	flat := output.ShallowClone()
	if err := flat.Reshape(rows, cols); err != nil {
		return nil, stats, errors.Wrap(err, "failed to reshape prediction")
	}
	data := flat.Data().([]float32)

	stats.Columns = cols
	stats.RowsPerStride = make([]int, len(params.Strides))
	results := make([]postprocess.Result, 0)

	r := 0
	for n, s := range params.Strides {
		stride := float32(s)
		gridCols := params.Width / s
		gridRows := params.Height / s

		for i := 0; i < gridCols; i++ {
			for j := 0; j < gridRows; j++ {
				row := data[r*cols : (r+1)*cols]
				r++
				stats.RowsPerStride[n]++

				classID, classScore := argmax(row[5:])
				confidence := row[4] * classScore
				if confidence <= params.ProbThreshold {
					continue
				}

				cx := (row[0] + float32(j)) * stride
				cy := (row[1] + float32(i)) * stride
				w := math32.Exp(row[2]) * stride
				h := math32.Exp(row[3]) * stride
				x0 := cx - w/2
				y0 := cy - h/2

				results = append(results, postprocess.Result{
					Box:   images.RectFromXYWH(x0, y0, w, h),
					Score: confidence,
					Class: classID,
				})
			}
		}
	}
	stats.RowsVisited = r

	return results, stats, nil
}

// argmax returns the index and value of the largest score. The first index wins ties.
func argmax(scores []float32) (int, float32) {
	best, bestScore := 0, scores[0]
	for k := 1; k < len(scores); k++ {
		if scores[k] > bestScore {
			best, bestScore = k, scores[k]
		}
	}
	return best, bestScore
}
