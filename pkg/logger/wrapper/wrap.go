package wrap

import (
	"context"
)

// Error wraps an error with the current LogCtx from the context.
// Wrapping an already wrapped error captures the newer context on the outer layer.
func Error(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	c, _ := ctx.Value(LogCtxKey).(LogCtx)
	return &errorWithLogCtx{
		err:    err,
		logCtx: c,
	}
}
