package classify

import (
	"log/slog"
	"sync"
)

// TransferResult is the outcome of one asynchronous GPU-to-CPU transfer.
type TransferResult struct {
	Data []float32
	Err  error
}

// TransferFunc moves a staged output buffer toward CPU memory and calls
// done with the outcome, possibly from another goroutine and at any later
// time. The default transport completes immediately; the result still only
// lands in the CPU buffer on the next Tick.
type TransferFunc func(staged []float32, done func(TransferResult))

func immediateTransfer(staged []float32, done func(TransferResult)) {
	done(TransferResult{Data: staged})
}

// readbackState models the async retrieval path's buffers: a staging copy
// of the freshest output (the GPU-resident texture) and the CPU-side buffer
// whose contents always lag one cycle. Completions queue up and are applied
// only on tick, in arrival order, so the last write wins.
type readbackState struct {
	mu       sync.Mutex
	cpu      []float32
	pending  []TransferResult
	transfer TransferFunc
}

func newReadbackState() *readbackState {
	return &readbackState{transfer: immediateTransfer}
}

// request stages a copy of the current output, starts its transfer, and
// returns the previous cycle's CPU-side contents. The first request returns
// a zeroed buffer of the output's size.
func (s *readbackState) request(current []float32) []float32 {
	staged := append([]float32(nil), current...)

	s.mu.Lock()
	if s.cpu == nil {
		s.cpu = make([]float32, len(current))
	}

	stale := append([]float32(nil), s.cpu...)
	s.mu.Unlock()

	s.transfer(staged, s.complete)

	return stale
}

func (s *readbackState) complete(res TransferResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = append(s.pending, res)
}

// tick drains completed transfers into the CPU buffer. A failed transfer
// leaves the prior contents untouched; a missized one skips the update.
// Both are logged, with distinct diagnostics, and neither propagates.
func (s *readbackState) tick(logger *slog.Logger) {
	s.mu.Lock()
	completed := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, res := range completed {
		if res.Err != nil {
			logger.Error("readback transfer failed, keeping previous contents",
				"error", &TransferError{Err: res.Err})
			continue
		}

		s.mu.Lock()
		if len(res.Data) != len(s.cpu) {
			mismatch := &SizeMismatchError{Got: len(res.Data), Want: len(s.cpu)}
			s.mu.Unlock()

			logger.Warn("readback size mismatch, skipping update", "error", mismatch)

			continue
		}

		copy(s.cpu, res.Data)
		s.mu.Unlock()
	}
}
