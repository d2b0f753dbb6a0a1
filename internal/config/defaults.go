package config

import "time"

// Default values for configuration
const (
	DefaultLogLevel = "info"
	DefaultLogJSON  = false

	DefaultDBPath = "scposter.db"

	DefaultSteamBaseURL        = "https://api.steampowered.com"
	DefaultSteamDeviceName     = "scposter"
	DefaultSteamRequestTimeout = 30 * time.Second
	DefaultSteamRetryAttempts  = 3
	DefaultSteamLogonTimeout   = 2 * time.Minute

	DefaultListenerPollInterval = 2 * time.Second
	DefaultListenerThrottle     = 25 * time.Millisecond
	DefaultListenerBackoff      = 250 * time.Millisecond
	DefaultListenerEchoTimeout  = 5 * time.Second

	DefaultPosterRetention    = 24 * time.Hour
	DefaultPosterCleanupBatch = 50

	DefaultTelegramMaxMessageLength = 4096
	DefaultTelegramRequestTimeout   = 15 * time.Second
)

// Task names understood by the scheduler.
const (
	TaskScheduledPost = "scheduled_post"
	TaskCleanupPosts  = "cleanup_posts"
	TaskTokenRefresh  = "token_refresh"
	TaskDBMaintenance = "db_maintenance"
)

// DefaultTasks is the schedule used when config.yaml does not set one.
var DefaultTasks = map[string]TaskConfig{
	TaskScheduledPost: {Enabled: false, Schedule: "0 0 12 * * *"},
	TaskCleanupPosts:  {Enabled: true, Schedule: "0 */10 * * * *"},
	TaskTokenRefresh:  {Enabled: true, Schedule: "0 0 */6 * * *"},
	TaskDBMaintenance: {Enabled: true, Schedule: "0 30 3 * * 0"},
}
