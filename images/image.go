// Package images - Image definition for processing utilities.
package images

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/pkg/errors"
)

// ErrInput is returned when an image is nil, empty or has a zero-area bound.
var ErrInput = errors.New("invalid input image")

// Image represents an image with a format, data, width, and height.
type Image struct {
	// The format of the image.
	Format ImageFormat `json:"format" yaml:"format"`
	// The data of the image.
	Data []byte `json:"data" yaml:"data"`
	// The width of the image.
	Width int `json:"width" yaml:"width"`
	// The height of the image.
	Height int `json:"height" yaml:"height"`
}

// ImageFormat represents supported image formats
type ImageFormat string

// ImageFormat constants
const (
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatWebP is the WebP image format.
	FormatWebP ImageFormat = "webp"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
)

// FormatFromPath guesses the image format from a file extension.
// Unknown extensions map to PNG.
func FormatFromPath(path string) ImageFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return FormatJPEG
	case ".webp":
		return FormatWebP
	default:
		return FormatPNG
	}
}

// Decode decodes the raw bytes of an Image record into a Go-native image and
// fills in its Width and Height. An empty Format is sniffed from the data.
//
// Arguments:
//   - img: The encoded image record.
//
// Returns:
//   - The decoded image.
//   - ErrInput if the record is empty or decodes to a zero-area image.
func Decode(img *Image) (image.Image, error) {
	if img == nil || len(img.Data) == 0 {
		return nil, errors.Wrap(ErrInput, "empty image data")
	}

	var (
		decoded image.Image
		err     error
	)

	switch img.Format {
	case FormatJPEG:
		decoded, err = jpeg.Decode(bytes.NewReader(img.Data))
	case FormatPNG:
		decoded, err = png.Decode(bytes.NewReader(img.Data))
	case FormatWebP:
		decoded, err = webp.Decode(bytes.NewReader(img.Data))
	case "":
		var name string
		decoded, name, err = image.Decode(bytes.NewReader(img.Data))
		if err == nil {
			img.Format = ImageFormat(name)
		}
	default:
		return nil, errors.Errorf("unsupported image format: %s", img.Format)
	}
	if err != nil {
		return nil, errors.Wrapf(ErrInput, "failed to decode %s image: %v", img.Format, err)
	}

	b := decoded.Bounds()
	if b.Empty() {
		return nil, errors.Wrap(ErrInput, "decoded image has zero area")
	}
	img.Width, img.Height = b.Dx(), b.Dy()

	return decoded, nil
}

// DecodeFile reads and decodes the image at path.
func DecodeFile(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read image %s", path)
	}

	img, err := Decode(&Image{Data: data})
	if err != nil {
		return nil, errors.Wrapf(err, "image %s", path)
	}

	return img, nil
}

// Encode writes img to w in the given format. An empty format writes PNG.
//
// Arguments:
//   - w: The destination writer.
//   - img: The image to encode.
//   - format: The output format.
//
// Returns:
//   - An error if encoding fails or the format is unknown.
func Encode(w io.Writer, img image.Image, format ImageFormat) error {
	if img == nil {
		return ErrInput
	}

	switch format {
	case FormatPNG, "":
		return errors.Wrap(png.Encode(w, img), "failed to encode png")
	case FormatJPEG:
		return errors.Wrap(jpeg.Encode(w, img, &jpeg.Options{Quality: 95}), "failed to encode jpeg")
	case FormatWebP:
		return errors.Wrap(webp.Encode(w, img, &webp.Options{Quality: 95}), "failed to encode webp")
	default:
		return errors.Errorf("unsupported image format: %s", format)
	}
}

// EncodeFile writes img to path using the format implied by its extension.
func EncodeFile(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}

	if err := Encode(f, img, FormatFromPath(path)); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}
