package model

import (
	"fmt"
	"io"
	"os"

	"github.com/example/go-image-classify/internal/labels"
	"github.com/example/go-image-classify/internal/safetensors"
)

// VerifyOptions controls bundle verification output.
type VerifyOptions struct {
	Dir    string
	Stdout io.Writer
}

// VerifyReport summarizes a verified bundle.
type VerifyReport struct {
	Name       string
	ClassCount int
	// HeadClasses is the classifier head's output dimension, or -1 when the
	// bundle ships no checkpoint to cross-check against.
	HeadClasses int
}

// Verify opens the bundle, parses its label table, and — when the manifest
// names a source checkpoint and head tensor — cross-checks the classifier
// head's output dimension against the label count.
func Verify(opts VerifyOptions) (*VerifyReport, error) {
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}

	bundle, err := Open(opts.Dir)
	if err != nil {
		return nil, err
	}

	_, _ = fmt.Fprintf(opts.Stdout, "bundle %q: manifest ok\n", bundle.Manifest.Name)

	raw, err := os.ReadFile(bundle.LabelsPath())
	if err != nil {
		return nil, fmt.Errorf("read label file: %w", err)
	}

	table, err := labels.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse label file %q: %w", bundle.Manifest.Labels, err)
	}

	if table.Count() == 0 {
		return nil, fmt.Errorf("label file %q declares no classes", bundle.Manifest.Labels)
	}

	_, _ = fmt.Fprintf(opts.Stdout, "bundle %q: %d classes\n", bundle.Manifest.Name, table.Count())

	report := &VerifyReport{
		Name:        bundle.Manifest.Name,
		ClassCount:  table.Count(),
		HeadClasses: -1,
	}

	if bundle.Manifest.Checkpoint == "" {
		_, _ = fmt.Fprintf(opts.Stdout, "bundle %q: no checkpoint, skipping head check\n", bundle.Manifest.Name)
		return report, nil
	}

	headClasses, err := checkpointHeadClasses(bundle)
	if err != nil {
		return nil, err
	}

	report.HeadClasses = headClasses

	if headClasses != table.Count() {
		return nil, fmt.Errorf(
			"bundle %q classifier head emits %d classes but label table has %d",
			bundle.Manifest.Name,
			headClasses,
			table.Count(),
		)
	}

	_, _ = fmt.Fprintf(opts.Stdout, "bundle %q: checkpoint head matches label table\n", bundle.Manifest.Name)

	return report, nil
}

func checkpointHeadClasses(bundle *Bundle) (int, error) {
	store, err := safetensors.OpenStore(bundle.Path(bundle.Manifest.Checkpoint))
	if err != nil {
		return 0, fmt.Errorf("open checkpoint: %w", err)
	}

	defer store.Close()

	headName := bundle.Manifest.HeadTensor
	if headName == "" {
		headName = guessHeadTensor(store.Names())
		if headName == "" {
			return 0, fmt.Errorf(
				"bundle %q: manifest names no head tensor and none of the checkpoint tensors look like a classifier head",
				bundle.Manifest.Name,
			)
		}
	}

	shape, err := store.Shape(headName)
	if err != nil {
		return 0, fmt.Errorf("checkpoint head tensor: %w", err)
	}

	if len(shape) == 0 {
		return 0, fmt.Errorf("checkpoint head tensor %q has scalar shape", headName)
	}

	// Linear layer weights are stored [out_features, in_features]; a bias is
	// just [out_features]. Either way the first dimension is the class count.
	return int(shape[0]), nil
}

var headTensorCandidates = []string{
	"classifier.weight",
	"head.weight",
	"fc.weight",
	"classifier.bias",
	"head.bias",
	"fc.bias",
}

func guessHeadTensor(names []string) string {
	present := make(map[string]bool, len(names))
	for _, n := range names {
		present[n] = true
	}

	for _, candidate := range headTensorCandidates {
		if present[candidate] {
			return candidate
		}
	}

	return ""
}
