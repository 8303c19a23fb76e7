package bt

import (
	"context"
	"time"
)

// pollUntil evaluates cond immediately and then every interval until it
// returns true, returns an error, ctx ends, or timeout elapses. On timeout
// cond is evaluated one final time. The returned bool is the last value of
// cond.
func pollUntil(ctx context.Context, interval, timeout time.Duration, cond func() (bool, error)) (bool, error) {
	ok, err := cond()
	if ok || err != nil {
		return ok, err
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-deadline.C:
			return cond()
		case <-tick.C:
			ok, err := cond()
			if ok || err != nil {
				return ok, err
			}
		}
	}
}
