package obs

import (
	"context"
	"log/slog"
	"time"
)

// Timed runs fn, logs its elapsed time at debug level and records it in
// shopcore_operation_duration_seconds under op.
func Timed[T any](ctx context.Context, op string, fn func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	v, err := fn(ctx)
	elapsed := time.Since(start)

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	operationDuration.WithLabelValues(op, outcome).Observe(elapsed.Seconds())
	Logger(ctx).LogAttrs(ctx, slog.LevelDebug, "operation finished",
		slog.String("op", op),
		slog.String("outcome", outcome),
		slog.Duration("elapsed", elapsed),
	)
	return v, err
}

// TimedErr is Timed for operations that only return an error.
func TimedErr(ctx context.Context, op string, fn func(context.Context) error) error {
	_, err := Timed(ctx, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
