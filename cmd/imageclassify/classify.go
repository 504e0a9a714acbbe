package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/example/go-image-classify/internal/classify"
	"github.com/example/go-image-classify/internal/config"
	"github.com/example/go-image-classify/internal/engine"
	"github.com/example/go-image-classify/internal/preprocess"
	"github.com/spf13/cobra"
)

func newClassifyCmd() *cobra.Command {
	var imagePath string
	var topK int
	var format string
	var raw bool

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify an image file and print the top predictions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if imagePath == "" {
				return fmt.Errorf("--image is required")
			}
			if format != "table" && format != "json" {
				return fmt.Errorf("--format must be 'table' or 'json'")
			}

			k := cfg.Classify.TopK
			if topK > 0 {
				k = topK
			}

			prep := preprocessOptions(cfg)
			prep.Raw = raw

			input, err := preprocess.FromFile(imagePath, prep)
			if err != nil {
				return err
			}

			pipeline, err := newClassifierPipeline(cfg)
			if err != nil {
				return err
			}
			defer pipeline.Release()

			preds, err := pipeline.Classify(cmd.Context(), input, k)
			if err != nil {
				return err
			}

			return writePredictions(os.Stdout, preds, format)
		},
	}

	cmd.Flags().StringVar(&imagePath, "image", "", "Path to the image to classify (PNG or JPEG)")
	cmd.Flags().IntVar(&topK, "top-k", 0, "Number of predictions to report (overrides config)")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table|json")
	cmd.Flags().BoolVar(&raw, "raw", false, "Skip mean/std normalization, feed [0,1] pixel values")

	return cmd
}

// newClassifierPipeline drives the full runner lifecycle and loads the
// bundle's label table. The returned pipeline is execution-ready; the caller
// owns Release.
func newClassifierPipeline(cfg config.Config) (*classify.Pipeline, error) {
	info, err := engine.Bootstrap(cfg.Runtime)
	if err != nil {
		return nil, fmt.Errorf("engine bootstrap: %w", err)
	}

	slog.Debug("engine library detected", "path", info.LibraryPath, "version", info.Version)

	runner := classify.NewRunner(classify.WithLogger(slog.Default()))
	pipeline := classify.NewPipeline(runner,
		classify.WithPipelineLogger(slog.Default()),
		classify.WithAsyncReadback(cfg.Runtime.AsyncReadback),
	)

	if err := runner.Configure(cfg.Paths.BundleDir, cfg.Runtime); err != nil {
		return nil, err
	}

	if err := runner.Prepare(); err != nil {
		runner.Release()
		return nil, err
	}

	if err := runner.InitializeExecution(); err != nil {
		runner.Release()
		return nil, err
	}

	// Label load failures are soft: predictions come back unnamed.
	if err := pipeline.LoadLabelsFile(runner.Bundle().LabelsPath()); err != nil {
		slog.Warn("label table unavailable, predictions will be unnamed", "error", err)
	}

	return pipeline, nil
}

func preprocessOptions(cfg config.Config) preprocess.Options {
	return preprocess.Options{
		Size:         cfg.Classify.ImageSize,
		ChannelOrder: cfg.Runtime.ChannelOrder,
	}
}

func writePredictions(w io.Writer, preds []classify.Prediction, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(preds)
	}

	for rank, p := range preds {
		name := p.Class
		if name == "" {
			name = fmt.Sprintf("class %d", p.Index)
		}
		if _, err := fmt.Fprintf(w, "%2d. %-24s %.4f\n", rank+1, name, p.Score); err != nil {
			return err
		}
	}

	return nil
}
