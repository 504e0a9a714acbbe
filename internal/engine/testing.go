package engine

import "context"

// FakeRunner is a GraphRunner double used by unit tests that must not depend
// on a real engine library. Run returns the configured outputs (or error)
// and records inputs in call order.
type FakeRunner struct {
	GraphName string
	Outputs   map[string]*Tensor
	Err       error

	// RunFn, when set, overrides Outputs/Err entirely.
	RunFn func(ctx context.Context, inputs map[string]*Tensor) (map[string]*Tensor, error)

	Calls  []map[string]*Tensor
	Closed int
}

var _ GraphRunner = (*FakeRunner)(nil)

func (f *FakeRunner) Run(ctx context.Context, inputs map[string]*Tensor) (map[string]*Tensor, error) {
	f.Calls = append(f.Calls, inputs)
	if f.RunFn != nil {
		return f.RunFn(ctx, inputs)
	}
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Outputs, nil
}

func (f *FakeRunner) Name() string {
	if f.GraphName == "" {
		return "fake"
	}
	return f.GraphName
}

func (f *FakeRunner) Close() { f.Closed++ }
