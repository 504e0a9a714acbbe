// Package engine binds the external inference engine (ONNX Runtime via
// purego) behind a small interface the model runner can own. The engine is
// treated as opaque: graph loading, operator execution, and backend dispatch
// all happen inside the library.
package engine

import (
	"context"

	"github.com/example/go-image-classify/internal/config"
)

// GraphRunner is the minimal contract the model runner requires from a
// compiled graph session. Alternate implementations (test fakes) satisfy it.
type GraphRunner interface {
	Run(ctx context.Context, inputs map[string]*Tensor) (map[string]*Tensor, error)
	Name() string
	Close()
}

// ResolveAuto resolves the "auto" backend selection to a concrete backend,
// deterministically: gpu-compute when an engine library is detectable,
// cpu otherwise. Concrete selections pass through after validation that the
// engine can serve them.
func ResolveAuto(cfg config.RuntimeConfig) (string, error) {
	backend, err := config.NormalizeBackend(cfg.Backend)
	if err != nil {
		return "", err
	}

	if backend != config.BackendAuto {
		return backend, nil
	}

	if _, err := DetectRuntime(cfg); err != nil {
		return config.BackendCPU, nil
	}

	return config.BackendGPUCompute, nil
}

// SupportsAsyncReadback reports whether the given concrete backend can serve
// asynchronous GPU-to-CPU output transfers. Only the compute backend
// qualifies; the pixel-shader compatibility backend and the CPU backend must
// fall back to synchronous download.
func SupportsAsyncReadback(backend string) bool {
	return backend == config.BackendGPUCompute
}
