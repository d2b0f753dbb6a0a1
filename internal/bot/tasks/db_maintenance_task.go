package tasks

import (
	"context"
	"fmt"
	"time"
)

// newDBMaintenanceTask forgets posts that were deleted from Steam more than
// one retention period ago and then compacts the database file.
func newDBMaintenanceTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "db_maintenance")

	return func(ctx context.Context) error {
		cutoff := time.Now().Add(-deps.Config.Poster.Retention)
		purged, err := deps.Store.PurgeSentMessages(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("purge deleted posts: %w", err)
		}

		start := time.Now()
		if err := deps.Store.Compact(ctx); err != nil {
			log.ErrorContext(ctx, "Database compaction failed", "purged", purged, "error", err)
			return fmt.Errorf("compact database: %w", err)
		}
		log.InfoContext(ctx, "Database maintenance done", "purged", purged, "compact_duration", time.Since(start))
		return nil
	}
}
