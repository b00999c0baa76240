package images

import (
	"bytes"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeBytes(t *testing.T, img image.Image, format ImageFormat) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, img, format))
	return buf.Bytes()
}

func TestDecode_RoundTrip(t *testing.T) {
	src := solidImage(64, 48, color.RGBA{R: 10, G: 120, B: 250, A: 255})

	for _, format := range []ImageFormat{FormatPNG, FormatJPEG, FormatWebP} {
		t.Run(string(format), func(t *testing.T) {
			data := encodeBytes(t, src, format)

			rec := &Image{Data: data}
			img, err := Decode(rec)
			require.NoError(t, err)
			assert.Equal(t, format, rec.Format, "format is sniffed when not set")
			assert.Equal(t, 64, rec.Width)
			assert.Equal(t, 48, rec.Height)
			assert.Equal(t, image.Rect(0, 0, 64, 48), img.Bounds())

			img, err = Decode(&Image{Format: format, Data: data})
			require.NoError(t, err)
			assert.Equal(t, 64, img.Bounds().Dx())
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode(nil)
	assert.True(t, errors.Is(err, ErrInput))

	_, err = Decode(&Image{Format: FormatPNG})
	assert.True(t, errors.Is(err, ErrInput))

	_, err = Decode(&Image{Format: FormatJPEG, Data: []byte("not an image")})
	assert.True(t, errors.Is(err, ErrInput))

	_, err = Decode(&Image{Data: []byte("not an image")})
	assert.True(t, errors.Is(err, ErrInput))

	_, err = Decode(&Image{Format: "gif", Data: []byte{1}})
	assert.ErrorContains(t, err, "unsupported image format")
}

func TestEncode_Errors(t *testing.T) {
	var buf bytes.Buffer
	assert.ErrorIs(t, Encode(&buf, nil, FormatPNG), ErrInput)
	assert.ErrorContains(t, Encode(&buf, image.NewRGBA(image.Rect(0, 0, 1, 1)), "bmp"), "unsupported image format")
}

func TestEncodeFile_DecodeFile(t *testing.T) {
	dir := t.TempDir()
	src := solidImage(16, 8, color.RGBA{G: 255, A: 255})

	for _, name := range []string{"out.png", "out.jpg", "out.webp", "out.unknown"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, EncodeFile(path, src))

			img, err := DecodeFile(path)
			require.NoError(t, err)
			assert.Equal(t, image.Rect(0, 0, 16, 8), img.Bounds())
		})
	}

	_, err := DecodeFile(filepath.Join(dir, "missing.png"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestFormatFromPath(t *testing.T) {
	assert.Equal(t, FormatJPEG, FormatFromPath("a/b/c.JPG"))
	assert.Equal(t, FormatJPEG, FormatFromPath("c.jpeg"))
	assert.Equal(t, FormatWebP, FormatFromPath("c.webp"))
	assert.Equal(t, FormatPNG, FormatFromPath("c.png"))
	assert.Equal(t, FormatPNG, FormatFromPath("noext"))
}
