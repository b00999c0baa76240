// Package images - Image processing utilities
package images

import (
	"image"

	"github.com/chewxy/math32"
)

// Rect is a lightweight axis-aligned bounding box in floating-point pixel space.
type Rect struct {
	// Corners are inclusive pixel coordinates, so after Clip X2 <= width-1
	// and Y2 <= height-1.
	X1, Y1, X2, Y2 float32
}

// RectFromXYWH builds a Rect from a top-left corner and a size.
func RectFromXYWH(x, y, w, h float32) Rect {
	return Rect{X1: x, Y1: y, X2: x + w, Y2: y + h}
}

// Width returns the horizontal extent of the box.
func (r Rect) Width() float32 {
	return r.X2 - r.X1
}

// Height returns the vertical extent of the box.
func (r Rect) Height() float32 {
	return r.Y2 - r.Y1
}

// Area returns the area of the box, or 0 for degenerate boxes.
func (r Rect) Area() float32 {
	w, h := r.Width(), r.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Scale divides every coordinate by factor. Used to map a box out of a
// letterbox canvas back into source image space.
//
// Arguments:
//   - factor: The canvas scale recorded by the letterbox step. Must be > 0.
//
// Returns:
//   - The rescaled box.
func (r Rect) Scale(factor float64) Rect {
	f := float32(factor)
	return Rect{X1: r.X1 / f, Y1: r.Y1 / f, X2: r.X2 / f, Y2: r.Y2 / f}
}

// Clip clamps x coordinates to [0, width-1] and y coordinates to [0, height-1].
//
// Arguments:
//   - width: The width of the image the box belongs to.
//   - height: The height of the image the box belongs to.
//
// Returns:
//   - The clipped box.
func (r Rect) Clip(width, height int) Rect {
	maxX := float32(width - 1)
	maxY := float32(height - 1)
	return Rect{
		X1: Clamp32(r.X1, 0, maxX),
		Y1: Clamp32(r.Y1, 0, maxY),
		X2: Clamp32(r.X2, 0, maxX),
		Y2: Clamp32(r.Y2, 0, maxY),
	}
}

// ToRectangle truncates the box to an integer image.Rectangle.
func (r Rect) ToRectangle() image.Rectangle {
	return image.Rect(int(r.X1), int(r.Y1), int(r.X2), int(r.Y2)).Canon()
}

// Clamp32 limits v to the closed interval [lo, hi].
func Clamp32(v, lo, hi float32) float32 {
	return math32.Max(lo, math32.Min(v, hi))
}

// CalculateIoU returns the Intersection over Union of two boxes: the area they
// share divided by the area they cover together. 1.0 means identical boxes, 0.0
// means no overlap. Touching edges do not count as overlap.
//
// Arguments:
//   - r: The first box.
//   - o: The second box.
//
// Returns:
//   - float32: A value in [0, 1].
//
// Example Usage:
// ```go
//
//	a := Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}
//	b := Rect{X1: 5, Y1: 5, X2: 15, Y2: 15}
//	iou := CalculateIoU(a, b) // 25 / 175 = 0.142857
//
// ```
func CalculateIoU(r, o Rect) float32 {
	ix1 := math32.Max(r.X1, o.X1)
	iy1 := math32.Max(r.Y1, o.Y1)
	ix2 := math32.Min(r.X2, o.X2)
	iy2 := math32.Min(r.Y2, o.Y2)

	interW := ix2 - ix1
	interH := iy2 - iy1
	if interW <= 0 || interH <= 0 {
		return 0.0
	}
	interArea := interW * interH

	// Union(A, B) = Area(A) + Area(B) - Intersection(A, B)
	unionArea := r.Area() + o.Area() - interArea
	if unionArea <= 0 {
		return 0.0
	}

	return interArea / unionArea
}
