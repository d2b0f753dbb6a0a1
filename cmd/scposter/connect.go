package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jmoiron/sqlx"

	"github.com/edgard/scposter/internal/chatroom"
	"github.com/edgard/scposter/internal/config"
	"github.com/edgard/scposter/internal/database"
	"github.com/edgard/scposter/internal/resilience"
	"github.com/edgard/scposter/internal/steam"
)

// app holds the connected components shared by the subcommands.
type app struct {
	db      *sqlx.DB
	store   database.Store
	session *steam.Session
	chat    *chatroom.Client
}

func (a *app) Close() {
	if a.db != nil {
		database.CloseDB(a.db, log)
	}
}

// connect opens the database, logs on to Steam and builds the chat client.
func connect(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	db, err := database.NewDB(cfg.Database.Path, log)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return nil, err
	}
	a := &app{db: db, store: database.NewStore(db, log)}

	client := newSteamClient(cfg, log)

	logonCtx, cancel := context.WithTimeout(ctx, cfg.Steam.LogonTimeout)
	defer cancel()

	session, err := steam.LogOn(logonCtx, client, cfg.Steam.Account, cfg.Steam.Password,
		steam.WithConfirmationHandler(confirmationHandler(cfg, log)),
		steam.WithGuardStore(a.store),
		steam.WithDeviceName(cfg.Steam.DeviceName),
		steam.WithPollTimeout(cfg.Steam.LogonTimeout),
		steam.WithLogonLogger(log),
	)
	if err != nil {
		a.Close()
		log.Error("Steam logon failed", "account", cfg.Steam.Account, "error", err)
		return nil, fmt.Errorf("log on as %s: %w", cfg.Steam.Account, err)
	}
	a.session = session
	a.chat = chatroom.NewClient(session, log, chatOptions(cfg, a.store)...)

	log.Info("Logged on to Steam", "steam_id", session.SteamID().Steam3())
	return a, nil
}

func newSteamClient(cfg *config.Config, log *slog.Logger) *steam.Client {
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = cfg.Steam.RetryAttempts

	return steam.NewClient(
		steam.WithBaseURL(cfg.Steam.BaseURL),
		steam.WithHTTPClient(&http.Client{Timeout: cfg.Steam.RequestTimeout}),
		steam.WithLogger(log),
		steam.WithRetry(retry),
	)
}

// confirmationHandler submits a configured guard code when there is one and
// otherwise prompts on the terminal or waits for mobile approval.
func confirmationHandler(cfg *config.Config, log *slog.Logger) steam.ConfirmationHandler {
	if cfg.Steam.GuardCode != "" {
		return steam.Or(
			steam.StaticCodeHandler{Code: cfg.Steam.GuardCode},
			steam.DeviceConfirmationHandler{Logger: log},
		)
	}
	return steam.DefaultConfirmationHandler(log)
}

func chatOptions(cfg *config.Config, cursors chatroom.CursorStore) []chatroom.Option {
	opts := []chatroom.Option{
		chatroom.WithCursorStore(cursors),
		chatroom.WithPollInterval(cfg.Listener.PollInterval),
		chatroom.WithThrottle(cfg.Listener.Throttle),
		chatroom.WithBackoff(cfg.Listener.Backoff),
		chatroom.WithEchoTimeout(cfg.Listener.EchoTimeout),
	}
	if cfg.Steam.HasDefaultRoom() {
		opts = append(opts, chatroom.WithRooms(chatroom.RoomInfo{
			ChatGroupID: cfg.Steam.ChatGroupID,
			ChatID:      cfg.Steam.ChatID,
		}))
	}
	return opts
}

// resolveRoom picks the room from flags, falling back to the configured default.
func resolveRoom(cfg *config.Config, group, chat uint64) (uint64, uint64, error) {
	if group == 0 && chat == 0 {
		group, chat = cfg.Steam.ChatGroupID, cfg.Steam.ChatID
	}
	if group == 0 || chat == 0 {
		return 0, 0, fmt.Errorf("%w: no chat room given; pass --group and --chat or set CHAT_GROUP_ID and CHAT_ID",
			config.ErrConfiguration)
	}
	return group, chat, nil
}
