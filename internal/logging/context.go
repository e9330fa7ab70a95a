package logging

import (
	"context"
	"time"
)

// DetachContext returns a context that survives cancellation of its parent.
// Backend persistence of an already-finalized response uses this so that a
// client disconnect after the answer is produced does not abort the write.
func DetachContext(parent context.Context) context.Context {
	return context.WithoutCancel(parent)
}

// DetachContextWithTimeout detaches from the parent and applies an
// independent deadline, bounding how long a detached operation may run.
func DetachContextWithTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), timeout)
}
