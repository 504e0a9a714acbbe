package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/example/go-image-classify/internal/bench"
	"github.com/example/go-image-classify/internal/classify"
	"github.com/example/go-image-classify/internal/preprocess"
	"github.com/example/go-image-classify/internal/tensor"
	"github.com/spf13/cobra"
)

func newBenchCmd() *cobra.Command {
	var (
		imagePath   string
		runs        int
		format      string
		latencyGate time.Duration
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark classification latency and throughput",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if imagePath == "" {
				return fmt.Errorf("--image is required for bench")
			}
			if runs < 1 {
				return fmt.Errorf("--runs must be at least 1")
			}
			if format != "table" && format != "json" {
				return fmt.Errorf("--format must be 'table' or 'json'")
			}

			input, err := preprocess.FromFile(imagePath, preprocessOptions(cfg))
			if err != nil {
				return err
			}

			pipeline, err := newClassifierPipeline(cfg)
			if err != nil {
				return err
			}
			defer pipeline.Release()

			results, err := runBench(cmd.Context(), pipeline, input, runs, cfg.Classify.TopK)
			if err != nil {
				return err
			}

			durations := make([]time.Duration, len(results))
			for i, r := range results {
				durations[i] = r.Duration
			}
			stats := bench.ComputeStats(durations)

			switch format {
			case "json":
				bench.FormatJSON(results, stats, os.Stdout)
			default:
				bench.FormatTable(results, stats, os.Stdout)
			}

			return bench.CheckLatencyThreshold(stats.Mean, latencyGate)
		},
	}

	cmd.Flags().StringVar(&imagePath, "image", "", "Image classified on every run (required)")
	cmd.Flags().IntVar(&runs, "runs", 5, "Number of classification runs")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table|json")
	cmd.Flags().DurationVar(&latencyGate, "latency-threshold", 0, "Exit non-zero if mean latency exceeds this duration (0 = disabled)")

	return cmd
}

func runBench(ctx context.Context, pipeline *classify.Pipeline, input *tensor.Tensor, runs, topK int) ([]bench.RunResult, error) {
	results := make([]bench.RunResult, 0, runs)

	for i := range runs {
		start := time.Now()

		preds, err := pipeline.Classify(ctx, input, topK)
		if err != nil {
			return nil, fmt.Errorf("run %d failed: %w", i+1, err)
		}

		dur := time.Since(start)

		var topClass string
		var topScore float32
		if len(preds) > 0 {
			topClass = preds[0].Class
			topScore = preds[0].Score
		}

		results = append(results, bench.RunResult{
			Index:    i,
			Cold:     i == 0,
			Duration: dur,
			TopClass: topClass,
			TopScore: topScore,
		})
	}

	return results, nil
}
