// Package models - Model registry and output class names.
package models

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-yolox/inference"
)

// ClassNames is the ordered list of labels a model's class indices refer to.
// It is loaded once and never modified.
type ClassNames []string

// LoadClassNames reads one class name per line from path.
//
// Arguments:
//   - path: The class names file.
//
// Returns:
//   - The class names in file order, trailing blank lines dropped.
//   - An error wrapping inference.ErrInitialization if the file cannot be read.
func LoadClassNames(path string) (ClassNames, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(inference.ErrInitialization, "failed to open class names %s: %v", path, err)
	}
	defer f.Close()

	names, err := ParseClassNames(f)
	if err != nil {
		return nil, errors.Wrapf(inference.ErrInitialization, "failed to read class names %s: %v", path, err)
	}

	return names, nil
}

// ParseClassNames reads one class name per line. Surrounding whitespace is
// trimmed, interior blank lines keep their index, trailing blank lines are dropped.
func ParseClassNames(r io.Reader) (ClassNames, error) {
	var names ClassNames

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		names = append(names, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	for len(names) > 0 && names[len(names)-1] == "" {
		names = names[:len(names)-1]
	}

	return names, nil
}

// Name returns the label of class idx, or its decimal index when the list has
// no entry for it.
func (c ClassNames) Name(idx int) string {
	if idx >= 0 && idx < len(c) && c[idx] != "" {
		return c[idx]
	}
	return strconv.Itoa(idx)
}

// Label formats a detection caption as "<name>:<score*100>%" with two decimals.
//
// @example
// ClassNames{"person"}.Label(0, 0.8765) // "person:87.65%"
func (c ClassNames) Label(idx int, score float32) string {
	return fmt.Sprintf("%s:%.2f%%", c.Name(idx), score*100)
}

// Index returns the class index for a given name.
func (c ClassNames) Index(name string) (int, bool) {
	for i, n := range c {
		if n == name {
			return i, true
		}
	}
	return -1, false
}

// COCOClasses is the 80 COCO classes (no background) that YOLOX checkpoints
// index directly.
var COCOClasses = ClassNames{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat", "dog", "horse",
	"sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack", "umbrella", "handbag", "tie",
	"suitcase", "frisbee", "skis", "snowboard", "sports ball", "kite", "baseball bat", "baseball glove",
	"skateboard", "surfboard", "tennis racket", "bottle", "wine glass", "cup", "fork", "knife", "spoon",
	"bowl", "banana", "apple", "sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut",
	"cake", "chair", "couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator", "book",
	"clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}
