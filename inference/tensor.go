package inference

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Float32Data returns the backing data and shape of a float32 tensor.
func Float32Data(t *tensor.Dense) ([]float32, []int, error) {
	if t == nil {
		return nil, nil, errors.New("nil tensor")
	}
	data, ok := t.Data().([]float32)
	if !ok {
		return nil, nil, errors.Errorf("tensor dtype %v, want float32", t.Dtype())
	}
	return data, []int(t.Shape().Clone()), nil
}

// NewFloat32 copies data into a new dense tensor of the given shape.
func NewFloat32(shape []int, data []float32) *tensor.Dense {
	backing := make([]float32, len(data))
	copy(backing, data)
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(backing))
}
