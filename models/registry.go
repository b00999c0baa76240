// Package models - registry for models.
package models

import (
	"fmt"

	"github.com/nvr-ai/go-yolox/models/model"
	"github.com/nvr-ai/go-yolox/models/yolox"
)

// NewModel creates a new detection model instance based on the specified model type.
//
// Arguments:
//   - args: Configuration parameters specifying the model type, input size and
//     decoding thresholds. An empty name selects YOLOX.
//
// Returns:
//   - model.Model: A fully configured model instance implementing the Model interface.
//   - error: An error if the model type is unsupported or the arguments are invalid.
//
// Example:
//
// ```go
//
//	m, err := NewModel(model.NewModelArgs{
//	    Name:        model.ModelNameYOLOX,
//	    Path:        "/models/yolox_s.onnx",
//	    InputWidth:  640,
//	    InputHeight: 640,
//	})
//	if err != nil {
//	    return err
//	}
//
// ```
func NewModel(args model.NewModelArgs) (model.Model, error) {
	switch args.Name {
	case model.ModelNameYOLOX, "":
		m, err := yolox.NewModel(args)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported model name: %s", args.Name)
	}
}
