package ratelimit

import "context"

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed           bool
	RetryAfterSeconds int
	Remaining         int
	LimitRPS          float64
	Burst             int
}

type Limiter interface {
	Allow(ctx context.Context, key string, rps float64, burst int) (Decision, error)
	Close() error
}
