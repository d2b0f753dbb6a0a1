// Package tasks implements the scheduled jobs of the long-running poster.
package tasks

import (
	"context"
	"log/slog"

	"github.com/edgard/scposter/internal/chatroom"
	"github.com/edgard/scposter/internal/config"
	"github.com/edgard/scposter/internal/database"
	"github.com/edgard/scposter/internal/preprocess"
)

// ChatSender is the part of the chat client the tasks need.
type ChatSender interface {
	SendGroupMessage(ctx context.Context, params chatroom.SendGroupMessageParams) (preprocess.Message, error)
	DeleteGroupMessages(ctx context.Context, group, chat uint64, refs []chatroom.MessageRef) error
}

// Refresher renews the Steam access token.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger  *slog.Logger
	Store   database.Store
	Chat    ChatSender
	Session Refresher
	Config  *config.Config
}
