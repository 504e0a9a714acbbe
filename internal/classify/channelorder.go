package classify

import (
	"fmt"
	"sync"
)

// The engine compiles every graph against a single tensor layout, so the
// channel order is process-wide state. Runners claim an order at prepare
// time; a second runner asking for a conflicting order is rejected with a
// ConfigurationError instead of silently overwriting the first.
type channelOrderRegistry struct {
	mu      sync.Mutex
	order   string
	holders int
}

var processChannelOrder channelOrderRegistry

func (r *channelOrderRegistry) claim(order string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.holders > 0 && r.order != order {
		return &ConfigurationError{
			Reason: fmt.Sprintf(
				"channel order %q conflicts with active process-wide order %q",
				order,
				r.order,
			),
		}
	}

	r.order = order
	r.holders++

	return nil
}

func (r *channelOrderRegistry) release() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.holders == 0 {
		return
	}

	r.holders--
	if r.holders == 0 {
		r.order = ""
	}
}

func (r *channelOrderRegistry) active() (string, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.order, r.holders
}
