package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/edgard/scposter/internal/chatroom"
	"github.com/edgard/scposter/internal/steamid"
)

// Store defines the interface for database operations.
// Methods should accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// SaveSentMessage records a message this account posted to a group chat.
	SaveSentMessage(ctx context.Context, msg *SentMessage) error

	// PendingSentMessages returns up to limit undeleted messages in a room whose
	// server timestamp is before the given unix time, oldest first.
	PendingSentMessages(ctx context.Context, groupID, chatID uint64, before uint32, limit int) ([]SentMessage, error)

	// MarkSentMessagesDeleted stamps deleted_at on the given messages.
	MarkSentMessagesDeleted(ctx context.Context, ids []int64) error

	// Cursor and SaveCursor persist listener positions (chatroom.CursorStore).
	Cursor(ctx context.Context, groupID, chatID uint64) (chatroom.Cursor, bool, error)
	SaveCursor(ctx context.Context, groupID, chatID uint64, c chatroom.Cursor) error

	// RefreshToken and SaveRefreshToken persist logon tokens (steam.GuardStore).
	RefreshToken(ctx context.Context, account string) (string, steamid.ID, error)
	SaveRefreshToken(ctx context.Context, account string, id steamid.ID, token string) error

	// PurgeSentMessages drops rows whose deleted_at is before cutoff and
	// returns how many went.
	PurgeSentMessages(ctx context.Context, cutoff time.Time) (int64, error)

	// Compact checkpoints the WAL and rebuilds the database file.
	Compact(ctx context.Context) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveSentMessage inserts a sent message and fills in its ID.
func (s *sqlxStore) SaveSentMessage(ctx context.Context, msg *SentMessage) error {
	if msg == nil {
		return fmt.Errorf("cannot save nil sent message")
	}
	if msg.GroupID == 0 || msg.ChatID == 0 {
		return fmt.Errorf("sent message must have non-zero group_id and chat_id")
	}
	if msg.ServerTimestamp == 0 {
		return fmt.Errorf("sent message must have a server timestamp")
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO sent_messages (
			group_id, chat_id, original_message, modified_message,
			server_timestamp, ordinal, created_at, deleted_at
		) VALUES (
			:group_id, :chat_id, :original_message, :modified_message,
			:server_timestamp, :ordinal, :created_at, :deleted_at
		)
	`
	result, err := s.db.NamedExecContext(ctx, query, msg)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving sent message",
			"group_id", msg.GroupID, "chat_id", msg.ChatID, "error", err)
		return fmt.Errorf("failed to save sent message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		s.logger.WarnContext(ctx, "Could not get last insert ID for sent message", "error", err)
	} else {
		msg.ID = id
	}

	s.logger.DebugContext(ctx, "Sent message recorded",
		"id", msg.ID, "group_id", msg.GroupID, "chat_id", msg.ChatID,
		"server_timestamp", msg.ServerTimestamp, "ordinal", msg.Ordinal)
	return nil
}

// PendingSentMessages lists undeleted messages older than before.
func (s *sqlxStore) PendingSentMessages(ctx context.Context, groupID, chatID uint64, before uint32, limit int) ([]SentMessage, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	var messages []SentMessage
	query := `
		SELECT id, group_id, chat_id, original_message, modified_message,
		       server_timestamp, ordinal, created_at, deleted_at
		FROM sent_messages
		WHERE group_id = ? AND chat_id = ? AND deleted_at IS NULL AND server_timestamp < ?
		ORDER BY server_timestamp ASC, ordinal ASC
		LIMIT ?
	`
	if err := s.db.SelectContext(ctx, &messages, query, groupID, chatID, before, limit); err != nil {
		s.logger.ErrorContext(ctx, "Error fetching pending sent messages",
			"group_id", groupID, "chat_id", chatID, "error", err)
		return nil, fmt.Errorf("failed to fetch pending sent messages: %w", err)
	}
	return messages, nil
}

// MarkSentMessagesDeleted marks a list of sent messages as deleted.
// Uses a transaction to ensure atomicity when updating multiple rows.
func (s *sqlxStore) MarkSentMessagesDeleted(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for marking sent messages", "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				if !errors.Is(rollbackErr, sql.ErrTxDone) {
					s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
				}
			}
		}
	}()

	query, args, err := sqlx.In(`UPDATE sent_messages SET deleted_at = ? WHERE id IN (?)`, time.Now().UTC(), ids)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error building query for marking sent messages", "error", err)
		return fmt.Errorf("failed to build query for marking sent messages: %w", err)
	}

	query = tx.Rebind(query)
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error marking sent messages as deleted", "error", err)
		return fmt.Errorf("failed to mark sent messages as deleted: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		s.logger.WarnContext(ctx, "Could not get affected row count", "error", err)
	} else if int(affected) != len(ids) {
		s.logger.WarnContext(ctx, "Not all sent messages were marked as deleted",
			"requested", len(ids),
			"affected", affected)
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit transaction", "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Marked sent messages as deleted", "count", len(ids))
	return nil
}

// Cursor returns the stored listener position for a room.
func (s *sqlxStore) Cursor(ctx context.Context, groupID, chatID uint64) (chatroom.Cursor, bool, error) {
	var row ChatCursor
	err := s.db.GetContext(ctx, &row,
		`SELECT group_id, chat_id, last_time, last_ordinal, updated_at
		 FROM chat_cursors WHERE group_id = ? AND chat_id = ?`, groupID, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return chatroom.Cursor{}, false, nil
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "Error fetching chat cursor",
			"group_id", groupID, "chat_id", chatID, "error", err)
		return chatroom.Cursor{}, false, fmt.Errorf("failed to fetch cursor for %d/%d: %w", groupID, chatID, err)
	}
	return chatroom.Cursor{Time: row.LastTime, Ordinal: row.LastOrdinal}, true, nil
}

// SaveCursor upserts the listener position for a room.
func (s *sqlxStore) SaveCursor(ctx context.Context, groupID, chatID uint64, c chatroom.Cursor) error {
	row := ChatCursor{
		GroupID:     groupID,
		ChatID:      chatID,
		LastTime:    c.Time,
		LastOrdinal: c.Ordinal,
		UpdatedAt:   time.Now().UTC(),
	}
	query := `
		INSERT INTO chat_cursors (group_id, chat_id, last_time, last_ordinal, updated_at)
		VALUES (:group_id, :chat_id, :last_time, :last_ordinal, :updated_at)
		ON CONFLICT (group_id, chat_id) DO UPDATE SET
			last_time = excluded.last_time,
			last_ordinal = excluded.last_ordinal,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		s.logger.ErrorContext(ctx, "Error saving chat cursor",
			"group_id", groupID, "chat_id", chatID, "error", err)
		return fmt.Errorf("failed to save cursor for %d/%d: %w", groupID, chatID, err)
	}
	return nil
}

// RefreshToken returns the stored refresh token for account. A missing row
// yields an empty token and no error.
func (s *sqlxStore) RefreshToken(ctx context.Context, account string) (string, steamid.ID, error) {
	var row GuardToken
	err := s.db.GetContext(ctx, &row,
		`SELECT account, steam_id, refresh_token, updated_at FROM guard_tokens WHERE account = ?`, account)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, nil
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "Error fetching refresh token", "account", account, "error", err)
		return "", 0, fmt.Errorf("failed to fetch refresh token for %q: %w", account, err)
	}
	return row.RefreshToken, steamid.ID(row.SteamID), nil
}

// SaveRefreshToken upserts the refresh token for account.
func (s *sqlxStore) SaveRefreshToken(ctx context.Context, account string, id steamid.ID, token string) error {
	if account == "" {
		return fmt.Errorf("refresh token must belong to an account")
	}
	row := GuardToken{
		Account:      account,
		SteamID:      uint64(id),
		RefreshToken: token,
		UpdatedAt:    time.Now().UTC(),
	}
	query := `
		INSERT INTO guard_tokens (account, steam_id, refresh_token, updated_at)
		VALUES (:account, :steam_id, :refresh_token, :updated_at)
		ON CONFLICT (account) DO UPDATE SET
			steam_id = excluded.steam_id,
			refresh_token = excluded.refresh_token,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		s.logger.ErrorContext(ctx, "Error saving refresh token", "account", account, "error", err)
		return fmt.Errorf("failed to save refresh token for %q: %w", account, err)
	}
	s.logger.DebugContext(ctx, "Refresh token stored", "account", account, "steam_id", id.Steam3())
	return nil
}

// PurgeSentMessages removes sent-message records deleted before cutoff.
func (s *sqlxStore) PurgeSentMessages(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sent_messages WHERE deleted_at IS NOT NULL AND deleted_at < ?`, cutoff.UTC())
	if err != nil {
		s.logger.ErrorContext(ctx, "Error purging sent messages", "cutoff", cutoff, "error", err)
		return 0, fmt.Errorf("failed to purge sent messages: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged sent messages: %w", err)
	}
	s.logger.DebugContext(ctx, "Purged sent messages", "count", n, "cutoff", cutoff)
	return n, nil
}

// Compact truncates the WAL and then VACUUMs. Neither may run in a transaction.
func (s *sqlxStore) Compact(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, stmt := range []string{"PRAGMA wal_checkpoint(TRUNCATE)", "VACUUM"} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%s interrupted: %w", stmt, ctx.Err())
			}
			s.logger.ErrorContext(ctx, "Database compaction failed", "statement", stmt, "error", err)
			return fmt.Errorf("failed to run %s: %w", stmt, err)
		}
	}
	return nil
}
