// Package classify owns the model runner lifecycle and the classifier
// pipeline built on top of it: graph augmentation, label lookup, and the
// synchronous and asynchronous output retrieval paths.
package classify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/example/go-image-classify/internal/config"
	"github.com/example/go-image-classify/internal/engine"
	"github.com/example/go-image-classify/internal/graph"
	"github.com/example/go-image-classify/internal/model"
	"github.com/example/go-image-classify/internal/tensor"
)

// State tracks the runner lifecycle. Transitions are strictly forward;
// Released is terminal.
type State int

const (
	StateUnconfigured State = iota
	StateConfigured
	StateGraphPrepared
	StateExecutionReady
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateConfigured:
		return "configured"
	case StateGraphPrepared:
		return "graph-prepared"
	case StateExecutionReady:
		return "execution-ready"
	case StateReleased:
		return "released"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// SessionFactory builds the execution handle for a prepared graph. The
// default factory opens a real engine session; tests substitute a fake.
type SessionFactory func(graphName, graphPath, backend string, cfg config.RuntimeConfig) (engine.GraphRunner, error)

// Hooks are the extension points the pipeline injects into the fixed
// prepare ordering: graph augmentation runs after the graph view is built,
// backend validation runs after the backend is resolved.
type Hooks struct {
	GraphAugmentation func(g *graph.Graph) error
	BackendValidation func(backend string) error
}

// RunnerOption configures a Runner at construction.
type RunnerOption func(*Runner)

func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithSessionFactory(factory SessionFactory) RunnerOption {
	return func(r *Runner) {
		if factory != nil {
			r.factory = factory
		}
	}
}

func WithHooks(hooks Hooks) RunnerOption {
	return func(r *Runner) {
		r.hooks = hooks
	}
}

// Runner owns the engine lifetime for one model bundle: it loads the graph,
// resolves the backend and channel order, creates the execution handle, and
// guarantees deterministic teardown. Not safe for concurrent Execute calls;
// callers drive one runner from one logical thread.
type Runner struct {
	mu      sync.Mutex
	logger  *slog.Logger
	factory SessionFactory
	hooks   Hooks

	state        State
	bundle       *model.Bundle
	runtime      config.RuntimeConfig
	backend      string
	channelOrder string
	orderClaimed bool

	graph       *graph.Graph
	session     engine.GraphRunner
	lastOutputs map[string]*engine.Tensor
}

func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		logger:  slog.Default(),
		factory: defaultSessionFactory,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

func defaultSessionFactory(graphName, graphPath, backend string, cfg config.RuntimeConfig) (engine.GraphRunner, error) {
	info, err := engine.DetectRuntime(cfg)
	if err != nil {
		return nil, err
	}

	return engine.NewRunner(graphName, graphPath, engine.RunnerConfig{
		LibraryPath: info.LibraryPath,
		Backend:     backend,
	})
}

// Configure binds the runner to a model bundle and runtime selection. Pure
// setup: no graph is loaded and no execution handle exists afterward.
func (r *Runner) Configure(bundleDir string, rt config.RuntimeConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateUnconfigured {
		return &ExecutionError{Reason: fmt.Sprintf("configure called in state %s", r.state)}
	}

	bundle, err := model.Open(bundleDir)
	if err != nil {
		return &AssetLoadError{Path: bundleDir, Err: err}
	}

	order, err := config.NormalizeChannelOrder(rt.ChannelOrder)
	if err != nil {
		return &ConfigurationError{Reason: err.Error()}
	}

	if _, err := config.NormalizeBackend(rt.Backend); err != nil {
		return &ConfigurationError{Reason: err.Error()}
	}

	if rt.OutputIndex < 0 || rt.OutputIndex >= len(bundle.Manifest.Outputs) {
		return &ConfigurationError{
			Reason: fmt.Sprintf(
				"output index %d out of range [0,%d)",
				rt.OutputIndex,
				len(bundle.Manifest.Outputs),
			),
		}
	}

	r.bundle = bundle
	r.runtime = rt
	r.channelOrder = order
	r.state = StateConfigured

	return nil
}

// Prepare resolves the backend, claims the process-wide channel order, and
// builds the mutable graph view, running the augmentation hook over it.
// Calling Prepare again before InitializeExecution re-runs the hook against
// the same graph; augmentation is idempotent so the graph is unchanged.
func (r *Runner) Prepare() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateConfigured && r.state != StateGraphPrepared {
		return &ExecutionError{Reason: fmt.Sprintf("prepare called in state %s", r.state)}
	}

	backend, err := engine.ResolveAuto(r.runtime)
	if err != nil {
		return &ConfigurationError{Reason: err.Error()}
	}

	if r.hooks.BackendValidation != nil {
		if err := r.hooks.BackendValidation(backend); err != nil {
			return err
		}
	}

	if !r.orderClaimed {
		if err := processChannelOrder.claim(r.channelOrder); err != nil {
			return err
		}

		r.orderClaimed = true
	}

	if r.graph == nil {
		outputs := make([]graph.OutputInfo, 0, len(r.bundle.Manifest.Outputs))
		for _, out := range r.bundle.Manifest.Outputs {
			outputs = append(outputs, graph.OutputInfo{
				Name:       out.Name,
				Activation: out.Activation,
				Shape:      out.Shape,
			})
		}

		g, err := graph.New(outputs, r.runtime.OutputIndex)
		if err != nil {
			return &ConfigurationError{Reason: err.Error()}
		}

		r.graph = g
	}

	if r.hooks.GraphAugmentation != nil {
		if err := r.hooks.GraphAugmentation(r.graph); err != nil {
			return err
		}
	}

	r.backend = backend
	r.state = StateGraphPrepared

	r.logger.Debug("graph prepared",
		"bundle", r.bundle.Manifest.Name,
		"backend", backend,
		"channel_order", r.channelOrder,
		"output", r.graph.OutputName(),
	)

	return nil
}

// InitializeExecution builds the execution handle from the prepared graph.
// Must run exactly once after Prepare; a second call without an intervening
// Release is a usage error.
func (r *Runner) InitializeExecution() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StateGraphPrepared:
	case StateExecutionReady:
		return &ExecutionError{Reason: "execution handle already initialized"}
	default:
		return &ExecutionError{Reason: fmt.Sprintf("initialize called in state %s", r.state)}
	}

	session, err := r.factory(r.bundle.Manifest.Name, r.bundle.GraphPath(), r.backend, r.runtime)
	if err != nil {
		return fmt.Errorf("create execution handle: %w", err)
	}

	r.graph.Freeze()
	r.session = session
	r.state = StateExecutionReady

	r.logger.Info("execution ready",
		"bundle", r.bundle.Manifest.Name,
		"backend", r.backend,
		"session", session.Name(),
	)

	return nil
}

// Execute dispatches one input tensor under the bundle's declared input
// name. It blocks until the engine accepts the work; output retrieval is a
// separate step (Output, or the pipeline's retrieval paths).
func (r *Runner) Execute(ctx context.Context, input *tensor.Tensor) error {
	if input == nil {
		return &ExecutionError{Reason: "nil input tensor"}
	}

	r.mu.Lock()
	inputName := ""
	if r.bundle != nil {
		inputName = r.bundle.Manifest.Input.Name
	}
	r.mu.Unlock()

	return r.ExecuteNamed(ctx, map[string]*tensor.Tensor{inputName: input})
}

// ExecuteNamed dispatches a full set of named input tensors.
func (r *Runner) ExecuteNamed(ctx context.Context, inputs map[string]*tensor.Tensor) error {
	r.mu.Lock()

	if r.state != StateExecutionReady {
		r.mu.Unlock()
		return &ExecutionError{Reason: fmt.Sprintf("execute called in state %s", r.state)}
	}

	session := r.session
	r.mu.Unlock()

	engineInputs := make(map[string]*engine.Tensor, len(inputs))
	for name, t := range inputs {
		if t == nil {
			return &ExecutionError{Reason: fmt.Sprintf("nil input tensor %q", name)}
		}

		et, err := engine.NewTensor(t.RawData(), t.Shape())
		if err != nil {
			return &ExecutionError{Reason: fmt.Sprintf("input %q: %v", name, err)}
		}

		engineInputs[name] = et
	}

	outputs, err := session.Run(ctx, engineInputs)
	if err != nil {
		return &ExecutionError{Reason: fmt.Sprintf("engine run: %v", err)}
	}

	r.mu.Lock()
	r.lastOutputs = outputs
	r.mu.Unlock()

	return nil
}

// Output returns the named output of the last Execute call as a caller-owned
// tensor. Asking for the graph's shaped output name applies the appended
// shaping tail (softmax, transpose) to the engine's base output.
func (r *Runner) Output(name string) (*tensor.Tensor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateExecutionReady {
		return nil, &ExecutionError{Reason: fmt.Sprintf("output requested in state %s", r.state)}
	}

	if r.lastOutputs == nil {
		return nil, &ExecutionError{Reason: "output requested before any execute call"}
	}

	if raw, ok := r.lastOutputs[name]; ok {
		t, err := tensor.New(raw.Data(), raw.Shape())
		if err != nil {
			return nil, &ExecutionError{Reason: fmt.Sprintf("output %q: %v", name, err)}
		}

		return t, nil
	}

	if name == r.graph.OutputName() && r.graph.NodeCount() > 0 {
		base := r.graph.BaseOutput().Name

		raw, ok := r.lastOutputs[base]
		if !ok {
			return nil, &ExecutionError{Reason: fmt.Sprintf("engine produced no output %q", base)}
		}

		t, err := tensor.New(raw.Data(), raw.Shape())
		if err != nil {
			return nil, &ExecutionError{Reason: fmt.Sprintf("output %q: %v", base, err)}
		}

		return r.graph.ApplyTail(t)
	}

	return nil, &ExecutionError{Reason: fmt.Sprintf("unknown output layer %q", name)}
}

// Release tears the runner down: the execution handle is closed exactly
// once and the channel-order claim is returned. Safe to call in any state,
// including repeatedly and before InitializeExecution.
func (r *Runner) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateReleased {
		return
	}

	if r.session != nil {
		r.session.Close()
		r.session = nil
	}

	if r.orderClaimed {
		processChannelOrder.release()
		r.orderClaimed = false
	}

	r.lastOutputs = nil
	r.state = StateReleased
}

// State returns the current lifecycle state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.state
}

// Backend returns the resolved concrete backend. Empty before Prepare.
func (r *Runner) Backend() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.backend
}

// ChannelOrder returns the normalized channel order. Empty before Configure.
func (r *Runner) ChannelOrder() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.channelOrder
}

// Graph returns the runtime graph view. Nil before Prepare.
func (r *Runner) Graph() *graph.Graph {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.graph
}

// Bundle returns the configured model bundle. Nil before Configure.
func (r *Runner) Bundle() *model.Bundle {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.bundle
}
