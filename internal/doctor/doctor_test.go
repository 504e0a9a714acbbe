package doctor_test

import (
	"strings"
	"testing"

	"github.com/example/go-image-classify/internal/doctor"
)

// ---------------------------------------------------------------------------
// all-pass scenario
// ---------------------------------------------------------------------------

func TestRun_AllChecksPass(t *testing.T) {
	cfg := doctor.Config{
		EngineLibrary: func() (string, error) { return "/usr/lib/libonnxruntime.so (1.18.0)", nil },
		BundleFiles:   []string{},
	}

	var out strings.Builder
	result := doctor.Run(cfg, &out)

	if result.Failed() {
		t.Errorf("expected all checks to pass; failures: %v", result.Failures())
	}

	if !strings.Contains(out.String(), "engine library") {
		t.Error("output should mention engine library")
	}
}

// ---------------------------------------------------------------------------
// engine library missing
// ---------------------------------------------------------------------------

func TestRun_EngineLibraryMissingFails(t *testing.T) {
	cfg := doctor.Config{
		EngineLibrary: func() (string, error) { return "", errLibraryNotFound },
		BundleFiles:   []string{},
	}

	var out strings.Builder
	result := doctor.Run(cfg, &out)

	if !result.Failed() {
		t.Fatal("expected failure when engine library is not found")
	}

	if !hasFailureContaining(result.Failures(), "engine") {
		t.Errorf("expected failure mentioning engine, got: %v", result.Failures())
	}
}

func TestRun_SkipEngineCheck(t *testing.T) {
	cfg := doctor.Config{
		SkipEngine:  true,
		BundleFiles: []string{},
	}

	var out strings.Builder

	result := doctor.Run(cfg, &out)
	if result.Failed() {
		t.Fatalf("expected no failures when engine check is skipped, got: %v", result.Failures())
	}

	if !strings.Contains(out.String(), "engine library: skipped") {
		t.Fatalf("expected engine skipped output, got:\n%s", out.String())
	}
}

// ---------------------------------------------------------------------------
// bundle file existence
// ---------------------------------------------------------------------------

func TestRun_MissingBundleFileFails(t *testing.T) {
	cfg := doctor.Config{
		SkipEngine:  true,
		BundleFiles: []string{"/nonexistent/model.onnx"},
	}

	var out strings.Builder
	result := doctor.Run(cfg, &out)

	if !result.Failed() {
		t.Fatal("expected failure for missing bundle file")
	}

	if !hasFailureContaining(result.Failures(), "bundle") {
		t.Errorf("expected failure mentioning bundle, got: %v", result.Failures())
	}
}

func TestRun_BundleFilePresent(t *testing.T) {
	// Use a file we know exists (the test file itself).
	cfg := doctor.Config{
		SkipEngine:  true,
		BundleFiles: []string{"doctor_test.go"},
	}

	var out strings.Builder

	result := doctor.Run(cfg, &out)
	if result.Failed() {
		t.Errorf("expected pass; failures: %v", result.Failures())
	}

	if !strings.Contains(out.String(), "bundle file: doctor_test.go") {
		t.Errorf("output should mention the bundle file; got:\n%s", out.String())
	}
}

// ---------------------------------------------------------------------------
// label table callback
// ---------------------------------------------------------------------------

func TestRun_LabelCheckFailure(t *testing.T) {
	cfg := doctor.Config{
		SkipEngine: true,
		LabelCheck: func() (string, error) { return "", sentinelError("head/label mismatch") },
	}

	var out strings.Builder

	result := doctor.Run(cfg, &out)
	if !result.Failed() {
		t.Fatal("expected failure from label check")
	}

	if !hasFailureContaining(result.Failures(), "label") {
		t.Errorf("expected failure mentioning label, got: %v", result.Failures())
	}
}

func TestRun_LabelCheckPasses(t *testing.T) {
	cfg := doctor.Config{
		SkipEngine: true,
		LabelCheck: func() (string, error) { return "10 classes", nil },
	}

	var out strings.Builder

	result := doctor.Run(cfg, &out)
	if result.Failed() {
		t.Errorf("expected pass; failures: %v", result.Failures())
	}

	if !strings.Contains(out.String(), "label table: 10 classes") {
		t.Errorf("output should contain the label summary; got:\n%s", out.String())
	}
}

// ---------------------------------------------------------------------------
// colour-coded output
// ---------------------------------------------------------------------------

func TestRun_OutputContainsPassAndFailMarkers(t *testing.T) {
	cfg := doctor.Config{
		EngineLibrary: func() (string, error) { return "", errLibraryNotFound },
		LabelCheck:    func() (string, error) { return "10 classes", nil },
	}

	var out strings.Builder
	doctor.Run(cfg, &out)

	body := out.String()
	if !strings.Contains(body, doctor.PassMark) {
		t.Errorf("output missing pass marker %q:\n%s", doctor.PassMark, body)
	}

	if !strings.Contains(body, doctor.FailMark) {
		t.Errorf("output missing fail marker %q:\n%s", doctor.FailMark, body)
	}
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

type sentinelError string

func (e sentinelError) Error() string { return string(e) }

var errLibraryNotFound = sentinelError("library not found")

func hasFailureContaining(failures []string, substr string) bool {
	substr = strings.ToLower(substr)
	for _, f := range failures {
		if strings.Contains(strings.ToLower(f), substr) {
			return true
		}
	}

	return false
}
