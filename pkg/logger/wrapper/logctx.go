package wrap

import (
	"context"
	"strconv"
)

type (
	// LogCtx holds contextual information for logging
	LogCtx struct {
		Action    string
		RequestID string
		OrderID   string
		DriverID  string
		ActorKind string
		ActorID   string
	}

	// logCtxKeyStruct is an unexported type for context keys defined in this package.
	logCtxKeyStruct struct{}
)

// LogCtxKey is the key for log context values
var LogCtxKey = &logCtxKeyStruct{}

// WithLogCtx returns a new context with the provided LogCtx merged over the existing one
func WithLogCtx(ctx context.Context, newLc LogCtx) context.Context {
	if lc, ok := ctx.Value(LogCtxKey).(LogCtx); ok {
		if newLc.Action == "" {
			newLc.Action = lc.Action
		}
		if newLc.RequestID == "" {
			newLc.RequestID = lc.RequestID
		}
		if newLc.OrderID == "" {
			newLc.OrderID = lc.OrderID
		}
		if newLc.DriverID == "" {
			newLc.DriverID = lc.DriverID
		}
		if newLc.ActorKind == "" {
			newLc.ActorKind = lc.ActorKind
		}
		if newLc.ActorID == "" {
			newLc.ActorID = lc.ActorID
		}
	}
	return context.WithValue(ctx, LogCtxKey, newLc)
}

func update(ctx context.Context, fn func(lc *LogCtx)) context.Context {
	lc, _ := ctx.Value(LogCtxKey).(LogCtx)
	fn(&lc)
	return context.WithValue(ctx, LogCtxKey, lc)
}

// WithAction adds or updates the Action in the LogCtx within the context
func WithAction(ctx context.Context, action string) context.Context {
	return update(ctx, func(lc *LogCtx) { lc.Action = action })
}

// WithRequestID adds or updates the RequestID in the LogCtx within the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return update(ctx, func(lc *LogCtx) { lc.RequestID = requestID })
}

// WithOrderID adds or updates the OrderID in the LogCtx within the context
func WithOrderID(ctx context.Context, orderID int64) context.Context {
	return update(ctx, func(lc *LogCtx) { lc.OrderID = strconv.FormatInt(orderID, 10) })
}

// WithDriverID adds or updates the DriverID in the LogCtx within the context
func WithDriverID(ctx context.Context, driverID int64) context.Context {
	return update(ctx, func(lc *LogCtx) { lc.DriverID = strconv.FormatInt(driverID, 10) })
}

// WithActor sets the actor that caused the current operation
func WithActor(ctx context.Context, kind string, id int64) context.Context {
	return update(ctx, func(lc *LogCtx) {
		lc.ActorKind = kind
		lc.ActorID = strconv.FormatInt(id, 10)
	})
}

// GetRequestID returns request id stored in the LogCtx, empty if absent
func GetRequestID(ctx context.Context) string {
	if lc, ok := ctx.Value(LogCtxKey).(LogCtx); ok {
		return lc.RequestID
	}
	return ""
}
