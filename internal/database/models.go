package database

import (
	"database/sql"
	"time"
)

// SentMessage is a group message this account posted. It is kept until the
// cleanup task deletes it from the room.
type SentMessage struct {
	ID        int64     `db:"id"`
	CreatedAt time.Time `db:"created_at"`

	GroupID         uint64 `db:"group_id"`
	ChatID          uint64 `db:"chat_id"`
	OriginalMessage string `db:"original_message"`
	ModifiedMessage string `db:"modified_message"`
	ServerTimestamp uint32 `db:"server_timestamp"`
	Ordinal         uint32 `db:"ordinal"`

	DeletedAt sql.NullTime `db:"deleted_at"`
}

// ChatCursor is the listener position in one room. Friend conversations are
// stored with group 0.
type ChatCursor struct {
	GroupID     uint64    `db:"group_id"`
	ChatID      uint64    `db:"chat_id"`
	LastTime    uint32    `db:"last_time"`
	LastOrdinal uint32    `db:"last_ordinal"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// GuardToken is the refresh token issued for an account at its last logon.
type GuardToken struct {
	Account      string    `db:"account"`
	SteamID      uint64    `db:"steam_id"`
	RefreshToken string    `db:"refresh_token"`
	UpdatedAt    time.Time `db:"updated_at"`
}
