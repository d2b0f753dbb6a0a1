package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/edgard/scposter/internal/chatroom"
	"github.com/edgard/scposter/internal/database"
)

// newScheduledPostTask posts the configured message to the default room and
// records it so cleanup_posts can delete it later.
func newScheduledPostTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "scheduled_post")

	return func(ctx context.Context) error {
		steamCfg := deps.Config.Steam
		if !steamCfg.HasDefaultRoom() {
			log.WarnContext(ctx, "No default room configured, skipping scheduled post")
			return nil
		}

		params := chatroom.NewSendGroupMessageParams(steamCfg.ChatGroupID, steamCfg.ChatID, deps.Config.Poster.Message).
			WithEchoToSender(deps.Config.Poster.EchoToSender)

		sent, err := deps.Chat.SendGroupMessage(ctx, params)
		if err != nil {
			log.ErrorContext(ctx, "Failed to send scheduled post", "error", err)
			return fmt.Errorf("scheduled post failed: %w", err)
		}

		if !sent.Identified() {
			log.WarnContext(ctx, "Scheduled post sent without ordinal; it will not be cleaned up",
				"chat_group_id", steamCfg.ChatGroupID, "chat_id", steamCfg.ChatID)
			return nil
		}

		record := &database.SentMessage{
			CreatedAt:       time.Now().UTC(),
			GroupID:         steamCfg.ChatGroupID,
			ChatID:          steamCfg.ChatID,
			OriginalMessage: sent.OriginalMessage,
			ModifiedMessage: sent.ModifiedMessage,
			ServerTimestamp: *sent.ServerTimestamp,
			Ordinal:         *sent.Ordinal,
		}
		if err := deps.Store.SaveSentMessage(ctx, record); err != nil {
			return fmt.Errorf("record scheduled post: %w", err)
		}

		log.InfoContext(ctx, "Scheduled post sent",
			"chat_group_id", steamCfg.ChatGroupID, "chat_id", steamCfg.ChatID,
			"server_timestamp", record.ServerTimestamp, "ordinal", record.Ordinal)
		return nil
	}
}
