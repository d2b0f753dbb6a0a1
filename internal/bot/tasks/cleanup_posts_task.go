package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/edgard/scposter/internal/chatroom"
	"github.com/edgard/scposter/internal/database"
	"github.com/edgard/scposter/internal/steam"
)

// newCleanupPostsTask deletes recorded posts older than the retention period
// from the default room, one batch per run.
func newCleanupPostsTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "cleanup_posts")

	return func(ctx context.Context) error {
		steamCfg := deps.Config.Steam
		if !steamCfg.HasDefaultRoom() {
			log.DebugContext(ctx, "No default room configured, nothing to clean up")
			return nil
		}

		before := uint32(time.Now().Add(-deps.Config.Poster.Retention).Unix())
		pending, err := deps.Store.PendingSentMessages(ctx, steamCfg.ChatGroupID, steamCfg.ChatID, before, deps.Config.Poster.CleanupBatch)
		if err != nil {
			return fmt.Errorf("list expired posts: %w", err)
		}
		if len(pending) == 0 {
			log.DebugContext(ctx, "No expired posts to delete")
			return nil
		}

		refs := lo.Map(pending, func(m database.SentMessage, _ int) chatroom.MessageRef {
			return chatroom.MessageRef{ServerTimestamp: m.ServerTimestamp, Ordinal: m.Ordinal}
		})
		ids := lo.Map(pending, func(m database.SentMessage, _ int) int64 { return m.ID })

		err = deps.Chat.DeleteGroupMessages(ctx, steamCfg.ChatGroupID, steamCfg.ChatID, refs)
		if err != nil && !alreadyGone(err) {
			log.ErrorContext(ctx, "Failed to delete expired posts", "count", len(refs), "error", err)
			return fmt.Errorf("delete expired posts: %w", err)
		}

		if err := deps.Store.MarkSentMessagesDeleted(ctx, ids); err != nil {
			return fmt.Errorf("mark expired posts deleted: %w", err)
		}

		log.InfoContext(ctx, "Deleted expired posts", "count", len(ids))
		return nil
	}
}

// alreadyGone reports whether Steam refused the delete because the messages
// no longer exist, in which case they are marked deleted anyway.
func alreadyGone(err error) bool {
	return steam.IsAPIResult(err, steam.ResultFileNotFound) || steam.IsAPIResult(err, steam.ResultNoMatch)
}
