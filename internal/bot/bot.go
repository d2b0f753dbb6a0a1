// Package bot runs the long-lived poster: message listeners, the task
// scheduler and the optional Telegram relay.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/edgard/scposter/internal/bot/tasks"
	"github.com/edgard/scposter/internal/chatroom"
	"github.com/edgard/scposter/internal/config"
	"github.com/edgard/scposter/internal/steam"
)

const (
	defaultRestartMin = time.Second
	defaultRestartMax = time.Minute
)

// Listener is the part of the chat client the orchestrator drives.
type Listener interface {
	ListenForGroupMessagesWith(ctx context.Context, fn func(chatroom.GroupMessage) error) error
	ListenForFriendMessagesWith(ctx context.Context, fn func(chatroom.FriendMessage) error) error
}

// MessageHandler receives every delivered group message.
type MessageHandler interface {
	Handle(ctx context.Context, msg chatroom.GroupMessage) error
}

// Bot represents the main application and manages its components' lifecycle.
type Bot struct {
	logger    *slog.Logger
	cfg       *config.Config
	listener  Listener
	session   tasks.Refresher
	relay     MessageHandler
	scheduler *Scheduler

	restartMin time.Duration
	restartMax time.Duration
}

// NewBot creates the orchestrator. relay and scheduler may be nil.
func NewBot(
	logger *slog.Logger,
	cfg *config.Config,
	listener Listener,
	session tasks.Refresher,
	relay MessageHandler,
	scheduler *Scheduler,
) *Bot {
	return &Bot{
		logger:     logger.With("component", "bot_orchestrator"),
		cfg:        cfg,
		listener:   listener,
		session:    session,
		relay:      relay,
		scheduler:  scheduler,
		restartMin: defaultRestartMin,
		restartMax: defaultRestartMax,
	}
}

// Run starts the bot and all its components, handling graceful shutdown on context cancellation.
// It returns an error if any component fails in a way a restart cannot fix.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("Starting bot orchestrator...")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		b.logger.Info("Starting group message listener...")
		return b.supervise(gCtx, "group", func(ctx context.Context) error {
			return b.listener.ListenForGroupMessagesWith(ctx, b.groupHandler(ctx))
		})
	})

	if b.cfg.Listener.Friends {
		g.Go(func() error {
			b.logger.Info("Starting friend message listener...")
			return b.supervise(gCtx, "friend", func(ctx context.Context) error {
				return b.listener.ListenForFriendMessagesWith(ctx, b.friendHandler(ctx))
			})
		})
	}

	if b.scheduler != nil {
		g.Go(func() error {
			b.logger.Info("Starting scheduler...")
			if err := b.scheduler.Start(gCtx); err != nil {
				b.logger.Error("Failed to start scheduler", "error", err)
				return fmt.Errorf("failed to start scheduler: %w", err)
			}

			<-gCtx.Done()
			b.logger.Info("Shutdown signal received, stopping scheduler...")

			if err := b.scheduler.Stop(); err != nil {
				b.logger.Error("Error stopping scheduler", "error", err)
			}
			return nil
		})
	}

	b.logger.Info("Bot orchestrator running. Waiting for shutdown signal or error...")
	err := g.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("Bot orchestrator stopped due to error", "error", err)
		return err
	}

	b.logger.Info("Bot orchestrator stopped gracefully.")
	return nil
}

// supervise keeps a listener running. Errors Steam marks as retryable restart
// it with exponential backoff; a reauthentication error refreshes the session
// first; fatal errors end the run.
func (b *Bot) supervise(ctx context.Context, name string, listen func(context.Context) error) error {
	log := b.logger.With("listener", name)
	wait := b.restartMin

	for {
		err := listen(ctx)
		if ctx.Err() != nil {
			log.Info("Listener stopped")
			return nil
		}
		if err == nil {
			err = errors.New("listener returned without error")
		}

		inv := steam.Classify(err)
		switch inv.Disposition {
		case steam.Fatal:
			log.Error("Listener failed", "error", err, "domain", inv.Domain, "reason", inv.Description)
			return fmt.Errorf("%s listener: %w", name, err)
		case steam.Reauthenticate:
			log.Warn("Listener needs a fresh session, refreshing", "error", err)
			if rerr := b.session.Refresh(ctx); rerr != nil {
				if steam.Classify(rerr).Disposition == steam.Fatal {
					return fmt.Errorf("%s listener: refresh session: %w", name, rerr)
				}
				log.Warn("Session refresh failed, will retry", "error", rerr)
			}
		case steam.ImmediateRetry:
			wait = b.restartMin
		}

		log.Warn("Listener stopped, restarting",
			"error", err, "disposition", inv.Disposition, "backoff", wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		wait = min(wait*2, b.restartMax)
	}
}

func (b *Bot) groupHandler(ctx context.Context) func(chatroom.GroupMessage) error {
	return func(msg chatroom.GroupMessage) error {
		b.logger.InfoContext(ctx, "Group message received",
			"chat_group_id", msg.ChatGroupID,
			"chat_id", msg.ChatID,
			"chat_name", msg.ChatName,
			"sender", msg.Sender.Steam3(),
			"ordinal", msg.Ordinal,
			"mentions", msg.Preprocessed.Mentions.Any())

		if b.relay == nil {
			return nil
		}
		if err := b.relay.Handle(ctx, msg); err != nil {
			b.logger.WarnContext(ctx, "Relay failed; message not forwarded", "error", err)
		}
		return nil
	}
}

func (b *Bot) friendHandler(ctx context.Context) func(chatroom.FriendMessage) error {
	return func(msg chatroom.FriendMessage) error {
		b.logger.InfoContext(ctx, "Friend message received",
			"sender", msg.SteamID.Steam3(),
			"timestamp", msg.Timestamp,
			"chat_entry_type", msg.ChatEntryType)
		return nil
	}
}
