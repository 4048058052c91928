package suppression

import (
	"context"

	"github.com/ignite/list-builder/internal/metrics"
	"github.com/ignite/list-builder/internal/pkg/logger"
)

// Tolerate runs fn and returns fallback if it fails. The failure is logged
// and counted under operation; it never reaches the caller.
func Tolerate[T any](ctx context.Context, operation string, fallback T, fn func(context.Context) (T, error)) T {
	v, err := fn(ctx)
	if err != nil {
		logger.Warn("Step failed open", "operation", operation, "error", err)
		metrics.FailedOpen(operation)
		return fallback
	}
	return v
}
