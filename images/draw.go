package images

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"
)

var labelFont *truetype.Font

func init() {
	var err error
	labelFont, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

var (
	// BoxColor is the outline color of an annotated detection.
	BoxColor = color.RGBA{R: 255, A: 255}
	// LabelColor is the text color of an annotated detection.
	LabelColor = color.RGBA{G: 255, A: 255}
)

const (
	// BoxLineWidth is the outline width in pixels.
	BoxLineWidth = 2.0
	// LabelFontSize is the label font size in points.
	LabelFontSize = 16.0
)

// Annotation is a box and its caption to burn into an image.
type Annotation struct {
	Box   Rect
	Label string
}

// Annotate returns a copy of img with every annotation drawn on it: the box as a
// red outline and the label in green, anchored at the box's top-left corner and
// pushed down so it never leaves the top edge.
//
// Arguments:
//   - img: The source image. It is not modified.
//   - annotations: The boxes and labels, in img's coordinates.
//
// Returns:
//   - The annotated copy.
func Annotate(img image.Image, annotations []Annotation) image.Image {
	dc := gg.NewContextForImage(img)
	dc.SetFontFace(truetype.NewFace(labelFont, &truetype.Options{Size: LabelFontSize}))

	for _, a := range annotations {
		w, h := a.Box.Width(), a.Box.Height()
		dc.SetColor(BoxColor)
		dc.SetLineWidth(BoxLineWidth)
		dc.DrawRectangle(float64(a.Box.X1), float64(a.Box.Y1), float64(w), float64(h))
		dc.Stroke()

		if a.Label == "" {
			continue
		}
		_, labelHeight := dc.MeasureString(a.Label)
		y := max(float64(a.Box.Y1), labelHeight)
		dc.SetColor(LabelColor)
		dc.DrawString(a.Label, float64(a.Box.X1), y)
	}

	return dc.Image()
}
