package classify

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/example/go-image-classify/internal/config"
	"github.com/example/go-image-classify/internal/engine"
	"github.com/example/go-image-classify/internal/model"
	"github.com/example/go-image-classify/internal/tensor"
)

// writeBundleDir lays out a minimal valid bundle with ten unnormalized
// output classes.
func writeBundleDir(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()

	m := model.Manifest{
		Name:   "test-classifier",
		Graph:  "model.onnx",
		Labels: "labels.json",
		Input:  model.NodeInfo{Name: "input", DType: "float32", Shape: []int64{1, 3, 224, 224}},
		Outputs: []model.NodeInfo{
			{Name: "scores", DType: "float32", Shape: []int64{1, 10, 1, 1}},
		},
	}

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal manifest: %v", err)
	}

	writeFile(t, filepath.Join(dir, "manifest.json"), data)
	writeFile(t, filepath.Join(dir, "model.onnx"), []byte("graph"))
	writeFile(t, filepath.Join(dir, "labels.json"),
		[]byte(`{"classes": ["c0","c1","c2","c3","c4","c5","c6","c7","c8","c9"]}`))

	return dir
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()

	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func fakeFactory(fake *engine.FakeRunner) SessionFactory {
	return func(graphName, graphPath, backend string, cfg config.RuntimeConfig) (engine.GraphRunner, error) {
		return fake, nil
	}
}

func zeroScoresOutput(t *testing.T) map[string]*engine.Tensor {
	t.Helper()

	out, err := engine.NewZeroTensor([]int64{1, 10, 1, 1})
	if err != nil {
		t.Fatalf("NewZeroTensor: %v", err)
	}

	return map[string]*engine.Tensor{"scores": out}
}

func zeroInput(t *testing.T) *tensor.Tensor {
	t.Helper()

	in, err := tensor.Zeros([]int64{1, 3, 224, 224})
	if err != nil {
		t.Fatalf("Zeros: %v", err)
	}

	return in
}

// newReadyRunner walks a runner to ExecutionReady over a fake session and
// registers teardown.
func newReadyRunner(t *testing.T, fake *engine.FakeRunner, rt config.RuntimeConfig) *Runner {
	t.Helper()

	r := NewRunner(WithSessionFactory(fakeFactory(fake)))
	t.Cleanup(r.Release)

	if err := r.Configure(writeBundleDir(t), rt); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	if err := r.Prepare(); err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	if err := r.InitializeExecution(); err != nil {
		t.Fatalf("InitializeExecution: %v", err)
	}

	return r
}

func cpuRuntime() config.RuntimeConfig {
	return config.RuntimeConfig{Backend: config.BackendCPU, ChannelOrder: config.OrderNCHW}
}

func TestLifecycleAndIdempotentTeardown(t *testing.T) {
	fake := &engine.FakeRunner{Outputs: zeroScoresOutput(t)}
	r := newReadyRunner(t, fake, cpuRuntime())

	if r.State() != StateExecutionReady {
		t.Fatalf("State = %s; want execution-ready", r.State())
	}

	r.Release()

	if r.State() != StateReleased {
		t.Fatalf("State after Release = %s; want released", r.State())
	}

	if fake.Closed != 1 {
		t.Errorf("session Closed = %d; want exactly 1", fake.Closed)
	}

	// Double release is a no-op.
	r.Release()

	if fake.Closed != 1 {
		t.Errorf("session Closed after second Release = %d; want still 1", fake.Closed)
	}

	if _, holders := processChannelOrder.active(); holders != 0 {
		t.Errorf("channel-order holders after Release = %d; want 0", holders)
	}
}

func TestReleaseBeforeInitializeIsSafe(t *testing.T) {
	r := NewRunner(WithSessionFactory(fakeFactory(&engine.FakeRunner{})))

	r.Release()
	r.Release()

	if r.State() != StateReleased {
		t.Fatalf("State = %s; want released", r.State())
	}
}

func TestExecuteOutsideReadyState(t *testing.T) {
	r := NewRunner(WithSessionFactory(fakeFactory(&engine.FakeRunner{})))
	t.Cleanup(r.Release)

	err := r.Execute(context.Background(), zeroInput(t))

	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("Execute error = %v; want *ExecutionError", err)
	}
}

func TestDoubleInitializeIsUsageError(t *testing.T) {
	fake := &engine.FakeRunner{Outputs: zeroScoresOutput(t)}
	r := newReadyRunner(t, fake, cpuRuntime())

	err := r.InitializeExecution()

	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("second InitializeExecution error = %v; want *ExecutionError", err)
	}
}

func TestInitializeBeforePrepare(t *testing.T) {
	r := NewRunner(WithSessionFactory(fakeFactory(&engine.FakeRunner{})))
	t.Cleanup(r.Release)

	if err := r.Configure(writeBundleDir(t), cpuRuntime()); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	var execErr *ExecutionError
	if err := r.InitializeExecution(); !errors.As(err, &execErr) {
		t.Fatalf("InitializeExecution error = %v; want *ExecutionError", err)
	}
}

func TestConfigureMissingBundle(t *testing.T) {
	r := NewRunner()

	err := r.Configure(filepath.Join(t.TempDir(), "nope"), cpuRuntime())

	var loadErr *AssetLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("Configure error = %v; want *AssetLoadError", err)
	}
}

func TestConfigureInvalidSelections(t *testing.T) {
	cases := []struct {
		name string
		rt   config.RuntimeConfig
	}{
		{"bad backend", config.RuntimeConfig{Backend: "quantum"}},
		{"bad channel order", config.RuntimeConfig{Backend: "cpu", ChannelOrder: "chw"}},
		{"output index out of range", config.RuntimeConfig{Backend: "cpu", OutputIndex: 5}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewRunner()

			err := r.Configure(writeBundleDir(t), tc.rt)

			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Configure error = %v; want *ConfigurationError", err)
			}
		})
	}
}

func TestPrepareTwiceKeepsGraphStable(t *testing.T) {
	r := NewRunner(WithSessionFactory(fakeFactory(&engine.FakeRunner{})))
	t.Cleanup(r.Release)

	NewPipeline(r)

	if err := r.Configure(writeBundleDir(t), cpuRuntime()); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	if err := r.Prepare(); err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	name := r.Graph().OutputName()
	nodes := r.Graph().NodeCount()

	if err := r.Prepare(); err != nil {
		t.Fatalf("second Prepare: %v", err)
	}

	if r.Graph().OutputName() != name || r.Graph().NodeCount() != nodes {
		t.Errorf("graph changed on re-prepare: output %q nodes %d; want %q %d",
			r.Graph().OutputName(), r.Graph().NodeCount(), name, nodes)
	}
}

func TestChannelOrderConflictRejected(t *testing.T) {
	first := NewRunner(WithSessionFactory(fakeFactory(&engine.FakeRunner{})))
	t.Cleanup(first.Release)

	if err := first.Configure(writeBundleDir(t), cpuRuntime()); err != nil {
		t.Fatalf("Configure first: %v", err)
	}

	if err := first.Prepare(); err != nil {
		t.Fatalf("Prepare first: %v", err)
	}

	conflicting := NewRunner(WithSessionFactory(fakeFactory(&engine.FakeRunner{})))
	t.Cleanup(conflicting.Release)

	rt := config.RuntimeConfig{Backend: config.BackendCPU, ChannelOrder: config.OrderNHWC}
	if err := conflicting.Configure(writeBundleDir(t), rt); err != nil {
		t.Fatalf("Configure conflicting: %v", err)
	}

	err := conflicting.Prepare()

	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Prepare error = %v; want *ConfigurationError", err)
	}

	// A second runner with a matching order is fine.
	matching := NewRunner(WithSessionFactory(fakeFactory(&engine.FakeRunner{})))
	t.Cleanup(matching.Release)

	if err := matching.Configure(writeBundleDir(t), cpuRuntime()); err != nil {
		t.Fatalf("Configure matching: %v", err)
	}

	if err := matching.Prepare(); err != nil {
		t.Fatalf("Prepare matching: %v", err)
	}
}

func TestExecuteRecordsInputsUnderDeclaredName(t *testing.T) {
	fake := &engine.FakeRunner{Outputs: zeroScoresOutput(t)}
	r := newReadyRunner(t, fake, cpuRuntime())

	if err := r.Execute(context.Background(), zeroInput(t)); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if len(fake.Calls) != 1 {
		t.Fatalf("engine calls = %d; want 1", len(fake.Calls))
	}

	if _, ok := fake.Calls[0]["input"]; !ok {
		t.Error("engine call missing the bundle's declared input name")
	}
}

func TestOutputUnknownLayer(t *testing.T) {
	fake := &engine.FakeRunner{Outputs: zeroScoresOutput(t)}
	r := newReadyRunner(t, fake, cpuRuntime())

	if err := r.Execute(context.Background(), zeroInput(t)); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var execErr *ExecutionError
	if _, err := r.Output("no-such-layer"); !errors.As(err, &execErr) {
		t.Fatalf("Output error = %v; want *ExecutionError", err)
	}
}

func TestOutputBeforeExecute(t *testing.T) {
	fake := &engine.FakeRunner{Outputs: zeroScoresOutput(t)}
	r := newReadyRunner(t, fake, cpuRuntime())

	var execErr *ExecutionError
	if _, err := r.Output("scores"); !errors.As(err, &execErr) {
		t.Fatalf("Output error = %v; want *ExecutionError", err)
	}
}

func TestStateStrings(t *testing.T) {
	want := map[State]string{
		StateUnconfigured:   "unconfigured",
		StateConfigured:     "configured",
		StateGraphPrepared:  "graph-prepared",
		StateExecutionReady: "execution-ready",
		StateReleased:       "released",
	}

	for state, name := range want {
		if state.String() != name {
			t.Errorf("State(%d).String() = %q; want %q", int(state), state.String(), name)
		}
	}
}
