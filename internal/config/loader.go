package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override except the four Steam variables.
const EnvPrefix = "SCPOSTER"

// explicitEnv binds keys to the unprefixed variable names.
var explicitEnv = map[string]string{
	"steam.account":       "STEAM_ACCOUNT",
	"steam.password":      "STEAM_PASSWORD",
	"steam.chat_group_id": "CHAT_GROUP_ID",
	"steam.chat_id":       "CHAT_ID",
}

// LoadConfig loads and validates configuration from, in increasing priority:
//  1. Default values
//  2. the YAML file at path (optional, may be empty)
//  3. a .env file in the working directory (never overrides the process env)
//  4. SCPOSTER_* and the explicit Steam environment variables
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: failed to load .env: %v", ErrConfiguration, err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range explicitEnv {
		if err := v.BindEnv(key, env, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_"))); err != nil {
			return nil, fmt.Errorf("%w: failed to bind %s: %v", ErrConfiguration, env, err)
		}
	}

	if err := readConfigFile(v, path); err != nil {
		return nil, fmt.Errorf("%w: failed to load config file: %v", ErrConfiguration, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	slog.Debug("configuration loaded",
		"config_file", v.ConfigFileUsed(),
		"account", cfg.Steam.Account,
		"default_room", cfg.Steam.HasDefaultRoom(),
		"relay_enabled", cfg.Telegram.Enabled())
	return cfg, nil
}

// readConfigFile reads path into v. A missing file is not an error.
func readConfigFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &notFound), errors.Is(err, fs.ErrNotExist):
		slog.Info("configuration file not found, using defaults", "path", path)
		return nil
	default:
		return err
	}
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("steam.account", "")
	v.SetDefault("steam.password", "")
	v.SetDefault("steam.chat_group_id", 0)
	v.SetDefault("steam.chat_id", 0)
	v.SetDefault("steam.base_url", DefaultSteamBaseURL)
	v.SetDefault("steam.device_name", DefaultSteamDeviceName)
	v.SetDefault("steam.guard_code", "")
	v.SetDefault("steam.request_timeout", DefaultSteamRequestTimeout)
	v.SetDefault("steam.retry_attempts", DefaultSteamRetryAttempts)
	v.SetDefault("steam.logon_timeout", DefaultSteamLogonTimeout)

	v.SetDefault("logger.level", DefaultLogLevel)
	v.SetDefault("logger.json", DefaultLogJSON)

	v.SetDefault("database.path", DefaultDBPath)

	v.SetDefault("listener.poll_interval", DefaultListenerPollInterval)
	v.SetDefault("listener.throttle", DefaultListenerThrottle)
	v.SetDefault("listener.backoff", DefaultListenerBackoff)
	v.SetDefault("listener.echo_timeout", DefaultListenerEchoTimeout)
	v.SetDefault("listener.friends", false)

	v.SetDefault("poster.message", "")
	v.SetDefault("poster.echo_to_sender", false)
	v.SetDefault("poster.retention", DefaultPosterRetention)
	v.SetDefault("poster.cleanup_batch", DefaultPosterCleanupBatch)

	for name, task := range DefaultTasks {
		v.SetDefault("scheduler.tasks."+name+".enabled", task.Enabled)
		v.SetDefault("scheduler.tasks."+name+".schedule", task.Schedule)
	}

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.chat_id", 0)
	v.SetDefault("telegram.max_message_length", DefaultTelegramMaxMessageLength)
	v.SetDefault("telegram.request_timeout", DefaultTelegramRequestTimeout)
}
