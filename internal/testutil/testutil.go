// Package testutil provides shared skip helpers for integration tests.
//
// Each helper calls t.Skip with a clear human-readable reason when the named
// prerequisite is absent, so integration tests remain runnable in partial
// environments without failing noisily.
//
// Typical usage:
//
//	func TestMyIntegration(t *testing.T) {
//	    testutil.RequireEngineLibrary(t)
//	    testutil.RequireModelBundle(t, "models/classifier")
//	    ...
//	}
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/example/go-image-classify/internal/model"
)

// RequireEngineLibrary skips the test if no ONNX Runtime shared library can
// be located. It checks (in order): the ORT_LIBRARY_PATH env var, then the
// IMAGECLASSIFY_ENGINE_LIB env var, then common system library paths.
func RequireEngineLibrary(tb testing.TB) {
	tb.Helper()

	for _, env := range []string{"ORT_LIBRARY_PATH", "IMAGECLASSIFY_ENGINE_LIB"} {
		if p := os.Getenv(env); p != "" {
			_, err := os.Stat(p)
			if err == nil {
				return // found
			}

			tb.Skipf("engine library not found at %s=%q", env, p)
		}
	}
	// Fall back to common system locations.
	candidates := []string{
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.so",
		"/usr/lib/x86_64-linux-gnu/libonnxruntime.so",
	}
	for _, p := range candidates {
		_, err := os.Stat(p)
		if err == nil {
			return // found
		}
	}

	tb.Skip("engine shared library not found; set ORT_LIBRARY_PATH or IMAGECLASSIFY_ENGINE_LIB")
}

// RequireModelBundle skips the test if no valid model bundle exists at dir.
func RequireModelBundle(tb testing.TB, dir string) {
	tb.Helper()

	_, err := model.Open(dir)
	if err != nil {
		tb.Skipf("model bundle not available at %q: %v", dir, err)
	}
}

// SampleImagePath returns the path to the committed test image fixture
// relative to the repository root.
func SampleImagePath() string {
	return filepath.Join("cmd", "imageclassify", "testdata", "gradient_64.png")
}
