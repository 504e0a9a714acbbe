// Package doctor provides environment preflight checks for imageclassify.
package doctor

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// DetectFunc probes for a component and returns a description string or an
// error if it is unavailable.
type DetectFunc func() (string, error)

// Config holds injectable dependencies for each doctor check.
type Config struct {
	// EngineLibrary probes for the inference engine's shared library.
	EngineLibrary DetectFunc
	// SkipEngine skips the engine library check (cpu-only workflows that
	// never touch the execution path).
	SkipEngine bool
	// BundleFiles is the list of model bundle file paths to verify on disk.
	BundleFiles []string
	// LabelCheck validates the label table against the bundle, returning a
	// short summary. Optional.
	LabelCheck DetectFunc
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	// ---- engine library ---------------------------------------------------
	if cfg.SkipEngine {
		fmt.Fprintf(w, "%s engine library: skipped\n", PassMark)
	} else if cfg.EngineLibrary != nil {
		desc, err := cfg.EngineLibrary()
		if err != nil {
			res.fail(fmt.Sprintf("engine library: %v", err))
			fmt.Fprintf(w, "%s engine library: not found (%v)\n", FailMark, err)
		} else {
			fmt.Fprintf(w, "%s engine library: %s\n", PassMark, desc)
		}
	}

	// ---- bundle files -----------------------------------------------------
	for _, path := range cfg.BundleFiles {
		st, err := os.Stat(path)
		if err != nil {
			res.fail(fmt.Sprintf("bundle file %q: %v", path, err))
			fmt.Fprintf(w, "%s bundle file %s: not found\n", FailMark, path)
		} else {
			fmt.Fprintf(w, "%s bundle file: %s (%s)\n", PassMark, path, humanize.Bytes(uint64(st.Size())))
		}
	}

	// ---- label table ------------------------------------------------------
	if cfg.LabelCheck != nil {
		desc, err := cfg.LabelCheck()
		if err != nil {
			res.fail(fmt.Sprintf("label table: %v", err))
			fmt.Fprintf(w, "%s label table: %v\n", FailMark, err)
		} else {
			fmt.Fprintf(w, "%s label table: %s\n", PassMark, desc)
		}
	}

	return res
}
