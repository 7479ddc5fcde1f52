package cache

import (
	"context"
	"time"
)

// Store keeps fixed-window counters shared by rate limiting.
type Store interface {
	// IncrementWithTTL bumps the counter for key, starting a new window of the
	// given length when none is active. It returns the count and the time left
	// in the current window.
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

const keyPrefix = "authcore:"
