package server

import (
	"context"
	"io"
	"sync"

	"github.com/example/go-image-classify/internal/classify"
	"github.com/example/go-image-classify/internal/preprocess"
)

// PipelineClassifier adapts a classify.Pipeline to the HTTP handler. The
// execution handle is not reentrant, so concurrent requests are serialized
// here; the handler's worker pool only bounds how many wait.
type PipelineClassifier struct {
	mu       sync.Mutex
	pipeline *classify.Pipeline
	prep     preprocess.Options
}

func NewPipelineClassifier(pipeline *classify.Pipeline, prep preprocess.Options) *PipelineClassifier {
	return &PipelineClassifier{
		pipeline: pipeline,
		prep:     prep,
	}
}

func (c *PipelineClassifier) ClassifyImage(ctx context.Context, img io.Reader, topK int) ([]classify.Prediction, error) {
	input, err := preprocess.FromReader(img, c.prep)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.pipeline.Classify(ctx, input, topK)
}

func (c *PipelineClassifier) Labels() []string {
	return c.pipeline.ClassNames()
}
