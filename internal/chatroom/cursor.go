package chatroom

import (
	"context"
	"sync"
)

// Cursor is the position of the newest delivered message in a room.
type Cursor struct {
	Time    uint32
	Ordinal uint32
}

// IsZero reports whether no message has been seen.
func (c Cursor) IsZero() bool { return c.Time == 0 && c.Ordinal == 0 }

// After reports whether c is strictly newer than o.
func (c Cursor) After(o Cursor) bool {
	if c.Time != o.Time {
		return c.Time > o.Time
	}
	return c.Ordinal > o.Ordinal
}

// CursorStore remembers listener positions across restarts. Friend
// conversations use group 0 and the friend's account id as chat.
type CursorStore interface {
	Cursor(ctx context.Context, group, chat uint64) (Cursor, bool, error)
	SaveCursor(ctx context.Context, group, chat uint64, c Cursor) error
}

type roomKey struct{ group, chat uint64 }

// MemoryCursorStore keeps cursors for the life of the process.
type MemoryCursorStore struct {
	mu      sync.Mutex
	cursors map[roomKey]Cursor
}

func NewMemoryCursorStore() *MemoryCursorStore {
	return &MemoryCursorStore{cursors: make(map[roomKey]Cursor)}
}

func (s *MemoryCursorStore) Cursor(_ context.Context, group, chat uint64) (Cursor, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cursors[roomKey{group, chat}]
	return c, ok, nil
}

func (s *MemoryCursorStore) SaveCursor(_ context.Context, group, chat uint64, c Cursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[roomKey{group, chat}] = c
	return nil
}
