package cmd

import (
	"context"
	"fmt"
	"image"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-yolox/detector"
	"github.com/nvr-ai/go-yolox/images"
)

// DetectOptions holds the flags of the detect command.
type DetectOptions struct {
	ImagePath     string
	OutputPath    string
	ProbThreshold float64
	NMSThreshold  float64
}

var detectOpts DetectOptions

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect objects in an image and write an annotated copy",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("prob-threshold") {
			cfg.Detector.ProbThreshold = float32(detectOpts.ProbThreshold)
		}
		if cmd.Flags().Changed("nms-threshold") {
			cfg.Detector.NMSThreshold = float32(detectOpts.NMSThreshold)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := validateDetectFlags(&detectOpts); err != nil {
			return err
		}

		d, engine, err := newDetector(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer engine.Close()

		return runDetect(cmd.Context(), d, detectOpts, cmd.OutOrStdout())
	},
}

func init() {
	detectCmd.Flags().StringVarP(&detectOpts.ImagePath, "image", "i", "", "Path to the input image (.jpg, .png, .webp)")
	detectCmd.Flags().StringVarP(&detectOpts.OutputPath, "output", "o", "result.png", "Path to the annotated output image")
	detectCmd.Flags().Float64Var(&detectOpts.ProbThreshold, "prob-threshold", 0.5, "Minimum detection confidence (overrides the config file)")
	detectCmd.Flags().Float64Var(&detectOpts.NMSThreshold, "nms-threshold", 0.4, "NMS IoU threshold (overrides the config file)")

	_ = detectCmd.MarkFlagRequired("image")
	rootCmd.AddCommand(detectCmd)
}

// validateDetectFlags checks the detect flags before any model is loaded.
func validateDetectFlags(opts *DetectOptions) error {
	if opts.ImagePath == "" {
		return errors.New("--image is required")
	}
	if opts.OutputPath == "" {
		return errors.New("--output must not be empty")
	}
	if opts.ImagePath == opts.OutputPath {
		return errors.New("--output must differ from --image")
	}
	return nil
}

// annotator is the part of detector.Detector runDetect uses.
type annotator interface {
	DetectAndAnnotate(ctx context.Context, img image.Image) (image.Image, []detector.Detection, error)
}

// runDetect decodes the input, runs detection, writes the annotated image and
// prints one line per detection to out.
func runDetect(ctx context.Context, d annotator, opts DetectOptions, out io.Writer) error {
	img, err := images.DecodeFile(opts.ImagePath)
	if err != nil {
		return err
	}

	annotated, detections, err := d.DetectAndAnnotate(ctx, img)
	if err != nil {
		return errors.Wrapf(err, "detection failed for %s", opts.ImagePath)
	}

	if err := images.EncodeFile(opts.OutputPath, annotated); err != nil {
		return err
	}

	for _, det := range detections {
		fmt.Fprintf(out, "%s\t%.0f,%.0f,%.0f,%.0f\n", det.Label, det.Box.X1, det.Box.Y1, det.Box.X2, det.Box.Y2)
	}

	if logger != nil {
		logger.Info("wrote annotated image",
			zap.String("input", opts.ImagePath),
			zap.String("output", opts.OutputPath),
			zap.Int("detections", len(detections)),
		)
	}
	return nil
}
