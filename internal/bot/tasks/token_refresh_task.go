package tasks

import (
	"context"
	"fmt"
	"time"
)

// newTokenRefreshTask renews the access token ahead of its expiry so that
// listener polls never carry a stale token.
func newTokenRefreshTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "token_refresh")

	return func(ctx context.Context) error {
		startTime := time.Now()
		if err := deps.Session.Refresh(ctx); err != nil {
			log.ErrorContext(ctx, "Access token refresh failed", "error", err)
			return fmt.Errorf("token refresh failed: %w", err)
		}
		log.InfoContext(ctx, "Access token refreshed", "duration", time.Since(startTime))
		return nil
	}
}
