package classify

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/example/go-image-classify/internal/engine"
	"github.com/example/go-image-classify/internal/graph"
	"github.com/example/go-image-classify/internal/labels"
	"github.com/example/go-image-classify/internal/tensor"
)

// softmaxAxis is the class axis of the engine's [batch, classCount, 1, 1]
// output layout.
const softmaxAxis = 1

// texturePerm moves the class axis last, the layout the texture readback
// path expects.
var texturePerm = []int{0, 2, 3, 1}

// Prediction pairs a class index with its name and score. Scores follow the
// label table's index order.
type Prediction struct {
	Index int     `json:"index"`
	Class string  `json:"class"`
	Score float32 `json:"score"`
}

// PipelineOption configures a Pipeline at construction.
type PipelineOption func(*Pipeline)

func WithPipelineLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithAsyncReadback opts the pipeline in or out of the asynchronous
// retrieval path. The option is downgraded automatically when the resolved
// backend cannot serve async transfers.
func WithAsyncReadback(enabled bool) PipelineOption {
	return func(p *Pipeline) {
		p.asyncEnabled = enabled
	}
}

// WithTransfer overrides the async transfer transport. Tests use it to
// inject failing or missized transfers.
func WithTransfer(fn TransferFunc) PipelineOption {
	return func(p *Pipeline) {
		if fn != nil {
			p.readback.transfer = fn
		}
	}
}

// Pipeline is the multi-class image classifier built on a Runner: it
// appends the output-shaping nodes at prepare time, owns the label table,
// and serves both output retrieval paths.
type Pipeline struct {
	runner       *Runner
	logger       *slog.Logger
	labels       *labels.Table
	asyncEnabled bool
	readback     *readbackState
}

// NewPipeline wires a classifier pipeline onto the runner, installing its
// graph-augmentation hook ahead of the runner's Prepare. Any hook already
// present runs after the pipeline's own augmentation.
func NewPipeline(runner *Runner, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		runner:   runner,
		logger:   slog.Default(),
		labels:   &labels.Table{},
		readback: newReadbackState(),
	}

	for _, opt := range opts {
		opt(p)
	}

	runner.mu.Lock()
	next := runner.hooks.GraphAugmentation
	runner.hooks.GraphAugmentation = func(g *graph.Graph) error {
		if err := p.augmentGraph(g); err != nil {
			return err
		}

		if next != nil {
			return next(g)
		}

		return nil
	}
	runner.mu.Unlock()

	return p
}

// augmentGraph appends the shaping tail: a softmax when the declared output
// is not already normalized, and a transpose when the async texture path is
// in play. Idempotent across repeated Prepare calls.
func (p *Pipeline) augmentGraph(g *graph.Graph) error {
	if err := g.AppendSoftmax(softmaxAxis); err != nil {
		return err
	}

	if p.asyncEnabled {
		if err := g.AppendTranspose(texturePerm); err != nil {
			return err
		}
	}

	return nil
}

// LoadLabels parses the label payload into the pipeline's table. Malformed
// or empty input fails softly: the error is logged and returned for
// inspection, the table stays empty, and the pipeline remains usable.
func (p *Pipeline) LoadLabels(raw []byte) error {
	table, err := labels.Parse(raw)
	if err != nil {
		p.logger.Error("label load failed, continuing with empty table", "error", err)
		p.labels = table

		return err
	}

	p.labels = table
	p.logger.Debug("labels loaded", "classes", table.Count())

	return nil
}

// LoadLabelsFile reads and parses the label file at path.
func (p *Pipeline) LoadLabelsFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		loadErr := &AssetLoadError{Path: path, Err: err}
		p.logger.Error("label file unreadable, continuing with empty table", "error", loadErr)

		return loadErr
	}

	return p.LoadLabels(raw)
}

// ClassCount returns the number of classes in the label table.
func (p *Pipeline) ClassCount() int {
	return p.labels.Count()
}

// ClassName returns the class name for an output index.
func (p *Pipeline) ClassName(index int) (string, error) {
	return p.labels.ClassName(index)
}

// ClassNames returns every class name in index order.
func (p *Pipeline) ClassNames() []string {
	return p.labels.Names()
}

// OutputName returns the shaped classification output's layer name.
func (p *Pipeline) OutputName() string {
	g := p.runner.Graph()
	if g == nil {
		return ""
	}

	return g.OutputName()
}

// Execute dispatches one input through the runner.
func (p *Pipeline) Execute(ctx context.Context, input *tensor.Tensor) error {
	return p.runner.Execute(ctx, input)
}

// DownloadSync copies the named output of the last execution into
// caller-owned memory. Available on every backend. The returned slice never
// aliases engine buffers, and when the label table is populated its length
// is checked against the class count.
func (p *Pipeline) DownloadSync(outputName string) ([]float32, error) {
	out, err := p.runner.Output(outputName)
	if err != nil {
		return nil, err
	}

	scores := out.Data()

	if want := p.labels.Count(); want > 0 && len(scores) != want {
		return nil, &SizeMismatchError{Got: len(scores), Want: want}
	}

	return scores, nil
}

// RequestReadback starts an asynchronous GPU-to-CPU transfer of the named
// output and immediately returns the previous cycle's CPU-side contents.
// The fresh transfer is applied on a later Tick, so the return value lags
// one cycle behind the execution that produced it. When the capability gate
// fails (async disabled, or the backend is not gpu-compute) it behaves
// exactly as DownloadSync.
func (p *Pipeline) RequestReadback(outputName string) ([]float32, error) {
	backend := p.runner.Backend()

	if !p.asyncEnabled || !engine.SupportsAsyncReadback(backend) {
		p.logger.Debug("async readback unavailable, falling back to sync download",
			"backend", backend,
			"async_enabled", p.asyncEnabled,
		)

		return p.DownloadSync(outputName)
	}

	out, err := p.runner.Output(outputName)
	if err != nil {
		return nil, err
	}

	return p.readback.request(out.Data()), nil
}

// Tick applies completed transfers to the CPU-side buffer. The host
// scheduler calls it once per cycle; completions are never applied outside
// it. Later transfers supersede earlier ones (last write wins).
func (p *Pipeline) Tick() {
	p.readback.tick(p.logger)
}

// Classify runs one input and returns the top-k predictions in descending
// score order. Retrieval is always the synchronous download: a one-shot
// call has no later cycle in which the async path's stale return would be
// refreshed.
func (p *Pipeline) Classify(ctx context.Context, input *tensor.Tensor, topK int) ([]Prediction, error) {
	if err := p.Execute(ctx, input); err != nil {
		return nil, err
	}

	scores, err := p.DownloadSync(p.OutputName())
	if err != nil {
		return nil, err
	}

	return p.Predictions(scores, topK)
}

// Predictions resolves scores into named predictions, highest score first.
func (p *Pipeline) Predictions(scores []float32, topK int) ([]Prediction, error) {
	if want := p.labels.Count(); want > 0 && len(scores) != want {
		return nil, &SizeMismatchError{Got: len(scores), Want: want}
	}

	indices := tensor.TopK(scores, topK)
	preds := make([]Prediction, 0, len(indices))

	for _, idx := range indices {
		name := ""
		if p.labels.Count() > 0 {
			n, err := p.labels.ClassName(idx)
			if err != nil {
				return nil, fmt.Errorf("resolve class %d: %w", idx, err)
			}

			name = n
		}

		preds = append(preds, Prediction{Index: idx, Class: name, Score: scores[idx]})
	}

	return preds, nil
}

// Release tears down the pipeline's runner.
func (p *Pipeline) Release() {
	p.runner.Release()
}

// Runner exposes the underlying model runner.
func (p *Pipeline) Runner() *Runner {
	return p.runner
}
