package cmd

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-yolox/detector"
	"github.com/nvr-ai/go-yolox/images"
)

type fakeAnnotator struct {
	detections []detector.Detection
	err        error
}

func (f fakeAnnotator) DetectAndAnnotate(ctx context.Context, img image.Image) (image.Image, []detector.Detection, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return img, f.detections, nil
}

func writeImage(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 8))
	img.SetRGBA(1, 1, color.RGBA{R: 255, A: 255})
	require.NoError(t, images.EncodeFile(path, img))
}

func TestValidateDetectFlags(t *testing.T) {
	tests := []struct {
		name    string
		opts    DetectOptions
		wantErr bool
	}{
		{"Valid", DetectOptions{ImagePath: "in.jpg", OutputPath: "out.png"}, false},
		{"Missing image", DetectOptions{OutputPath: "out.png"}, true},
		{"Missing output", DetectOptions{ImagePath: "in.jpg"}, true},
		{"Overwrites input", DetectOptions{ImagePath: "in.png", OutputPath: "in.png"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateDetectFlags(&tt.opts)
			assert.Equal(t, tt.wantErr, err != nil, "got %v", err)
		})
	}
}

func TestRunDetect(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.png")
	out := filepath.Join(dir, "out.png")
	writeImage(t, in)

	d := fakeAnnotator{detections: []detector.Detection{{
		Box:   images.Rect{X1: 1, Y1: 2, X2: 10, Y2: 7},
		Class: 0,
		Score: 0.875,
		Label: "person:87.50%",
	}}}

	var stdout bytes.Buffer
	require.NoError(t, runDetect(context.Background(), d, DetectOptions{ImagePath: in, OutputPath: out}, &stdout))
	assert.Equal(t, "person:87.50%\t1,2,10,7\n", stdout.String())

	written, err := images.DecodeFile(out)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 16, 8), written.Bounds())
}

func TestRunDetect_Errors(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.png")
	writeImage(t, in)

	err := runDetect(context.Background(), fakeAnnotator{}, DetectOptions{ImagePath: filepath.Join(dir, "missing.png"), OutputPath: filepath.Join(dir, "o.png")}, &bytes.Buffer{})
	assert.Error(t, err)

	boom := errors.New("boom")
	err = runDetect(context.Background(), fakeAnnotator{err: boom}, DetectOptions{ImagePath: in, OutputPath: filepath.Join(dir, "o.png")}, &bytes.Buffer{})
	assert.True(t, errors.Is(err, boom))
	assert.NoFileExists(t, filepath.Join(dir, "o.png"))
}

func TestLoadConfig(t *testing.T) {
	c, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 640, c.Detector.InputWidth)

	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("detector:\n  input_width: 416\n  input_height: 416\n"), 0o600))
	c, err = loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 416, c.Detector.InputWidth)

	_, err = loadConfig(filepath.Join(t.TempDir(), "none.yaml"))
	assert.Error(t, err)
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["detect"])
	assert.True(t, names["serve"])

	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("log-level"))
	assert.NotNil(t, detectCmd.Flags().Lookup("image"))
	assert.NotNil(t, detectCmd.Flags().Lookup("output"))
}
