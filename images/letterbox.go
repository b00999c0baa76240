package images

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// DefaultPadValue is the gray level used to fill the unused part of a letterbox canvas.
const DefaultPadValue uint8 = 144

// Letterbox is an image fitted into a fixed canvas with its aspect ratio preserved.
type Letterbox struct {
	// Canvas is the target-sized image. The resized source occupies the top-left
	// ScaledWidth x ScaledHeight region, everything else is padding.
	Canvas *image.RGBA
	// Scale is min(canvasW/srcW, canvasH/srcH). Divide canvas coordinates by it to
	// get back to source coordinates.
	Scale float64
	// ScaledWidth is the width of the resized source on the canvas.
	ScaledWidth int
	// ScaledHeight is the height of the resized source on the canvas.
	ScaledHeight int
	// SourceWidth is the width of the original image.
	SourceWidth int
	// SourceHeight is the height of the original image.
	SourceHeight int
}

// LetterboxSize computes the uniform scale and the resized dimensions for fitting
// a srcW x srcH image into a dstW x dstH canvas. The constrained axis always gets
// the canvas dimension exactly, the other axis is truncated. Neither is below 1.
//
// Arguments:
//   - srcW, srcH: The source dimensions. Must be > 0.
//   - dstW, dstH: The canvas dimensions. Must be > 0.
//
// Returns:
//   - scale: min(dstW/srcW, dstH/srcH).
//   - w, h: The truncated scaled dimensions.
func LetterboxSize(srcW, srcH, dstW, dstH int) (scale float64, w, h int) {
	sx := float64(dstW) / float64(srcW)
	sy := float64(dstH) / float64(srcH)

	// Compare in integers so the choice of constrained axis is exact.
	if dstW*srcH <= dstH*srcW {
		scale = sx
		w = dstW
		h = int(scale * float64(srcH))
	} else {
		scale = sy
		w = int(scale * float64(srcW))
		h = dstH
	}

	w = min(max(w, 1), dstW)
	h = min(max(h, 1), dstH)

	return scale, w, h
}

// LetterboxImage resizes src with bilinear interpolation so it fits inside a
// width x height canvas, pads the rest with a uniform gray level and records the
// scale so detections can be mapped back.
//
// Arguments:
//   - src: The source image.
//   - width: The canvas width.
//   - height: The canvas height.
//   - pad: The gray value written to every channel of the padding.
//
// Returns:
//   - *Letterbox: The canvas and its geometry.
//   - error: ErrInput for a nil or zero-area source, or an invalid canvas size.
//
// @example
//
//	lb, err := images.LetterboxImage(img, 640, 640, images.DefaultPadValue)
//	if err != nil {
//		return err
//	}
//	box = box.Scale(lb.Scale)
func LetterboxImage(src image.Image, width, height int, pad uint8) (*Letterbox, error) {
	if src == nil {
		return nil, errors.Wrap(ErrInput, "nil image")
	}
	b := src.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, errors.Wrapf(ErrInput, "zero-area image %dx%d", b.Dx(), b.Dy())
	}
	if width <= 0 || height <= 0 {
		return nil, errors.Wrapf(ErrInput, "invalid canvas dimensions: width=%d, height=%d", width, height)
	}

	scale, sw, sh := LetterboxSize(b.Dx(), b.Dy(), width, height)

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: color.RGBA{R: pad, G: pad, B: pad, A: 255}}, image.Point{}, draw.Src)

	var scaled image.Image = src
	if sw != b.Dx() || sh != b.Dy() {
		scaled = resize.Resize(uint(sw), uint(sh), src, resize.Bilinear)
	}
	draw.Draw(canvas, image.Rect(0, 0, sw, sh), scaled, scaled.Bounds().Min, draw.Src)

	return &Letterbox{
		Canvas:       canvas,
		Scale:        scale,
		ScaledWidth:  sw,
		ScaledHeight: sh,
		SourceWidth:  b.Dx(),
		SourceHeight: b.Dy(),
	}, nil
}
