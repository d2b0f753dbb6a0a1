// Package config provides configuration loading, validation, and management
// for scposter. Values come from defaults, an optional YAML file, a .env file
// and the environment.
package config

import (
	"errors"
	"time"
)

// ErrConfiguration wraps every load or validation failure.
var ErrConfiguration = errors.New("configuration error")

// Config defines the application configuration. Keys can be set in config.yaml
// or via SCPOSTER_* environment variables (e.g. SCPOSTER_LOGGER_LEVEL). The
// Steam credentials and default room also read STEAM_ACCOUNT, STEAM_PASSWORD,
// CHAT_GROUP_ID and CHAT_ID.
type Config struct {
	Steam     SteamConfig     `mapstructure:"steam"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Listener  ListenerConfig  `mapstructure:"listener"`
	Poster    PosterConfig    `mapstructure:"poster"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
}

// SteamConfig holds the account credentials and Web API settings.
type SteamConfig struct {
	Account        string        `mapstructure:"account"         validate:"required"`
	Password       string        `mapstructure:"password"        validate:"required"`
	ChatGroupID    uint64        `mapstructure:"chat_group_id"`
	ChatID         uint64        `mapstructure:"chat_id"`
	BaseURL        string        `mapstructure:"base_url"        validate:"required,url"`
	DeviceName     string        `mapstructure:"device_name"     validate:"required"`
	GuardCode      string        `mapstructure:"guard_code"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"min=1s,max=5m"`
	RetryAttempts  int           `mapstructure:"retry_attempts"  validate:"min=1,max=10"`
	LogonTimeout   time.Duration `mapstructure:"logon_timeout"   validate:"min=10s,max=30m"`
}

// HasDefaultRoom reports whether both CHAT_GROUP_ID and CHAT_ID are set.
func (s SteamConfig) HasDefaultRoom() bool {
	return s.ChatGroupID != 0 && s.ChatID != 0
}

// LoggerConfig controls slog output.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// DatabaseConfig points at the SQLite file.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// ListenerConfig tunes the message pollers.
type ListenerConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"min=250ms,max=5m"`
	Throttle     time.Duration `mapstructure:"throttle"      validate:"min=0,max=10s"`
	Backoff      time.Duration `mapstructure:"backoff"       validate:"min=0,max=1m"`
	EchoTimeout  time.Duration `mapstructure:"echo_timeout"  validate:"min=0,max=1m"`
	Friends      bool          `mapstructure:"friends"`
}

// PosterConfig drives the scheduled post and its cleanup.
type PosterConfig struct {
	Message      string        `mapstructure:"message"`
	EchoToSender bool          `mapstructure:"echo_to_sender"`
	Retention    time.Duration `mapstructure:"retention"     validate:"min=1m"`
	CleanupBatch int           `mapstructure:"cleanup_batch" validate:"min=1,max=500"`
}

// SchedulerConfig maps task names to their schedules.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks" validate:"dive"`
}

// TaskConfig is a single scheduled task. Schedule is a cron expression with
// an optional seconds field.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// TelegramConfig enables the mention relay when Token is set.
type TelegramConfig struct {
	Token            string        `mapstructure:"token"`
	ChatID           int64         `mapstructure:"chat_id"            validate:"required_with=Token"`
	MaxMessageLength int           `mapstructure:"max_message_length" validate:"min=16,max=4096"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"    validate:"min=1s,max=2m"`
}

// Enabled reports whether the relay should start.
func (t TelegramConfig) Enabled() bool { return t.Token != "" }
