package classify

import "fmt"

// AssetLoadError reports a malformed or unreadable model or label asset.
// Setup-time and recoverable: dependent state stays empty.
type AssetLoadError struct {
	Path string
	Err  error
}

func (e *AssetLoadError) Error() string {
	return fmt.Sprintf("asset load failed for %q: %v", e.Path, e.Err)
}

func (e *AssetLoadError) Unwrap() error { return e.Err }

// ConfigurationError reports an invalid backend, channel-order, or output
// selection. Raised at configure/prepare time, before any execution.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// ExecutionError reports a usage-contract violation around the execution
// handle: running before initialization, after release, or against an
// unknown output layer. These indicate integration bugs and propagate.
type ExecutionError struct {
	Reason string
}

func (e *ExecutionError) Error() string {
	return "execution error: " + e.Reason
}

// TransferError reports a failed asynchronous output transfer. Recoverable:
// the previous CPU-side contents are retained and no retry is attempted.
type TransferError struct {
	Err error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("readback transfer failed: %v", e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// SizeMismatchError reports a transferred buffer whose element count does
// not match the expected output size. Recoverable: the update is skipped.
// Kept distinct from TransferError so diagnostics can tell them apart.
type SizeMismatchError struct {
	Got  int
	Want int
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("readback size mismatch: got %d elements, want %d", e.Got, e.Want)
}
