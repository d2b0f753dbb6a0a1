package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Validate checks struct tags and the rules that span several fields.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	var errs []error
	if (c.Steam.ChatGroupID == 0) != (c.Steam.ChatID == 0) {
		errs = append(errs, errors.New("CHAT_GROUP_ID and CHAT_ID must be set together"))
	}

	for name, task := range c.Scheduler.Tasks {
		if !task.Enabled {
			continue
		}
		if _, known := DefaultTasks[name]; !known {
			errs = append(errs, fmt.Errorf("scheduler task %q is not known", name))
			continue
		}
		if _, err := cronParser.Parse(task.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("scheduler task %q has invalid schedule %q: %w", name, task.Schedule, err))
		}
	}

	if c.TaskEnabled(TaskScheduledPost) {
		if !c.Steam.HasDefaultRoom() {
			errs = append(errs, fmt.Errorf("task %s requires CHAT_GROUP_ID and CHAT_ID", TaskScheduledPost))
		}
		if c.Poster.Message == "" {
			errs = append(errs, fmt.Errorf("task %s requires poster.message", TaskScheduledPost))
		}
	}

	return errors.Join(errs...)
}

// TaskEnabled reports whether the named task is configured and enabled.
func (c *Config) TaskEnabled(name string) bool {
	task, ok := c.Scheduler.Tasks[name]
	return ok && task.Enabled
}
