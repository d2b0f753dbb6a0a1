package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edgard/scposter/internal/bot"
	"github.com/edgard/scposter/internal/bot/tasks"
	"github.com/edgard/scposter/internal/config"
	"github.com/edgard/scposter/internal/relay"
	"github.com/edgard/scposter/internal/steamid"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the long-lived poster",
	Long: `Starts the message listener, the scheduled tasks and, when a Telegram token
is configured, the relay that forwards @all, @here and direct mentions.`,
	Args: cobra.NoArgs,
	RunE: runBot,
}

func runBot(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	handler, err := newRelay(cfg, a.session.SteamID())
	if err != nil {
		return err
	}

	taskMap := tasks.RegisterAllTasks(tasks.TaskDeps{
		Logger:  log,
		Store:   a.store,
		Chat:    a.chat,
		Session: a.session,
		Config:  cfg,
	})
	scheduler, err := bot.NewScheduler(log, &cfg.Scheduler, taskMap)
	if err != nil {
		log.Error("Failed to initialize scheduler", "error", err)
		return fmt.Errorf("failed to initialize scheduler: %w", err)
	}

	b := bot.NewBot(log, cfg, a.chat, a.session, handler, scheduler)
	return b.Run(ctx)
}

// newRelay returns nil when no Telegram token is configured.
func newRelay(cfg *config.Config, self steamid.ID) (bot.MessageHandler, error) {
	if !cfg.Telegram.Enabled() {
		log.Info("Telegram relay disabled")
		return nil, nil
	}

	tg, err := relay.NewTelegramBot(cfg.Telegram.Token, log)
	if err != nil {
		return nil, err
	}
	return relay.New(tg, cfg.Telegram.ChatID, self, log,
		relay.WithMaxLength(cfg.Telegram.MaxMessageLength),
		relay.WithTimeout(cfg.Telegram.RequestTimeout),
	), nil
}
