package rabbit

import (
	"context"
	"errors"
	"time"

	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
)

// isRecoverableError returns true if the provided error must be requeued
func isRecoverableError(err error) bool {
	return oneOf(err, types.ErrDatabaseFailed, types.ErrStoreUnavailable, context.DeadlineExceeded)
}

func oneOf(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// retry calls fn up to n times with a linear backoff, giving up early when ctx is done
func retry(ctx context.Context, n int, backoff time.Duration, fn func() error) error {
	var err error
	for i := range n {
		if err = fn(); err == nil {
			return nil
		}
		if i == n-1 || !sleep(ctx, time.Duration(i+1)*backoff) {
			break
		}
	}
	return err
}

// sleep waits for d and reports false if ctx ended first
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
