package ports

import "context"

// Driver reads one physical or simulated sensor. Implementations must honor
// the context deadline, must not panic across the boundary, and return an
// error for any timeout, bus fault or malformed value; the scheduler turns
// every error into a status=error reading and retries on the next cycle.
type Driver interface {
	Read(ctx context.Context) (float64, error)
	Name() string
}
