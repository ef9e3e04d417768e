package driving

import "context"

// Scheduler runs periodic fabric refreshes in long-lived processes.
type Scheduler interface {
	// Start begins running scheduled refreshes.
	// Blocks until context is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop gracefully stops the scheduler.
	Stop() error
}
