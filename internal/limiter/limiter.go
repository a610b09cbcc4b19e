// Package limiter throttles senders whose API key requests keep getting rejected.
package limiter

import (
	"context"
	"time"
)

// Limiter tracks rejected requests per sender and places temporary blocks.
type Limiter interface {
	// Allow reports whether sender may make a request now, with a retry-after.
	Allow(ctx context.Context, sender string) (bool, time.Duration, error)
	// Success resets the sender's counters.
	Success(ctx context.Context, sender string) error
	// Failure records a rejected request; it may block the sender.
	Failure(ctx context.Context, sender string) (bool, time.Duration, error)
}

// Nop never blocks anyone. Used when no SQL store is configured.
type Nop struct{}

var _ Limiter = Nop{}

func (Nop) Allow(context.Context, string) (bool, time.Duration, error)   { return true, 0, nil }
func (Nop) Success(context.Context, string) error                        { return nil }
func (Nop) Failure(context.Context, string) (bool, time.Duration, error) { return false, 0, nil }
