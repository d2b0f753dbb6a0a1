package tasks

import (
	"context"

	"github.com/edgard/scposter/internal/config"
)

// ScheduledTaskFunc defines the standard signature for all scheduled tasks.
// The context provided by the scheduler should be respected for cancellation.
type ScheduledTaskFunc func(ctx context.Context) error

// RegisterAllTasks initializes and returns a map of all registered scheduled tasks.
// The keys match the task names used in the scheduler section of config.yaml.
func RegisterAllTasks(deps TaskDeps) map[string]ScheduledTaskFunc {
	tasks := map[string]ScheduledTaskFunc{
		config.TaskScheduledPost: newScheduledPostTask(deps),
		config.TaskCleanupPosts:  newCleanupPostsTask(deps),
		config.TaskTokenRefresh:  newTokenRefreshTask(deps),
		config.TaskDBMaintenance: newDBMaintenanceTask(deps),
	}

	deps.Logger.Info("Initialized scheduled tasks", "count", len(tasks))
	return tasks
}
