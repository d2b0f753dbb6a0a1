package chatroom

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edgard/scposter/internal/steam"
	"github.com/edgard/scposter/internal/steamid"
)

var errStop = errors.New("stop")

func historyEntry(sender uint32, ts, ordinal uint32, msg string) map[string]any {
	return map[string]any{"sender": sender, "server_timestamp": ts, "ordinal": ordinal, "message": msg}
}

func fastListener(conn Conn, opts ...Option) *Client {
	base := []Option{
		WithRooms(RoomInfo{ChatGroupID: 5, ChatID: 11, ChatName: "general"}),
		WithPollInterval(2 * time.Millisecond),
		WithThrottle(time.Millisecond),
		WithBackoff(time.Millisecond),
	}
	return newTestClient(conn, append(base, opts...)...)
}

func TestListenForGroupMessagesWith_DeliversNewMessagesInOrder(t *testing.T) {
	t.Parallel()

	var polls atomic.Int32
	conn := newFakeConn()
	conn.handle("IChatRoomService/GetMessageHistory", func(url.Values) (any, error) {
		if polls.Add(1) == 1 {
			return map[string]any{"messages": []any{
				historyEntry(7, 100, 1, "old two"),
				historyEntry(7, 100, 0, "old one"),
			}}, nil
		}
		return map[string]any{"messages": []any{
			historyEntry(8, 101, 0, "[U:1:1531059355] ping"),
			historyEntry(7, 100, 2, "@all new"),
			historyEntry(7, 100, 1, "old two"),
		}}, nil
	})

	cursors := NewMemoryCursorStore()
	c := fastListener(conn, WithCursorStore(cursors))

	var got []GroupMessage
	err := c.ListenForGroupMessagesWith(context.Background(), func(m GroupMessage) error {
		got = append(got, m)
		if len(got) == 2 {
			return errStop
		}
		return nil
	})

	require.ErrorIs(t, err, ErrCallback)
	require.ErrorIs(t, err, errStop)
	require.Len(t, got, 2)

	require.Equal(t, "@all new", got[0].Message)
	require.Equal(t, uint32(2), got[0].Ordinal)
	require.Equal(t, "general", got[0].ChatName)
	require.True(t, got[0].Preprocessed.Mentions.All)

	require.Equal(t, steamid.FromAccountID(8), got[1].Sender)
	require.True(t, got[1].Preprocessed.Mentions.Includes(selfID))

	cur, ok, err := cursors.Cursor(context.Background(), 5, 11)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, Cursor{Time: 100, Ordinal: 2}, cur)
}

func TestListenForGroupMessagesWith_ResumesFromSavedCursor(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	conn.handle("IChatRoomService/GetMessageHistory", func(p url.Values) (any, error) {
		require.Equal(t, "100", p.Get("start_time"))
		require.Equal(t, "1", p.Get("start_ordinal"))
		return map[string]any{"messages": []any{
			historyEntry(7, 100, 2, "fresh"),
			historyEntry(7, 100, 1, "seen"),
		}}, nil
	})

	cursors := NewMemoryCursorStore()
	require.NoError(t, cursors.SaveCursor(context.Background(), 5, 11, Cursor{Time: 100, Ordinal: 1}))

	var got []string
	err := fastListener(conn, WithCursorStore(cursors)).ListenForGroupMessagesWith(context.Background(), func(m GroupMessage) error {
		got = append(got, m.Message)
		return errStop
	})
	require.ErrorIs(t, err, errStop)
	require.Equal(t, []string{"fresh"}, got)
}

func TestListenForGroupMessagesWith_PagesBackToCursor(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	conn.handle("IChatRoomService/GetMessageHistory", func(p url.Values) (any, error) {
		require.Equal(t, "100", p.Get("start_time"))
		if p.Get("last_time") == "" {
			return map[string]any{"more_available": true, "messages": []any{
				historyEntry(7, 103, 0, "c"),
				historyEntry(7, 102, 0, "b"),
			}}, nil
		}
		require.Equal(t, "102", p.Get("last_time"))
		require.Equal(t, "0", p.Get("last_ordinal"))
		return map[string]any{"messages": []any{
			historyEntry(7, 102, 0, "b"),
			historyEntry(7, 101, 0, "a"),
			historyEntry(7, 100, 0, "seen"),
		}}, nil
	})

	cursors := NewMemoryCursorStore()
	require.NoError(t, cursors.SaveCursor(context.Background(), 5, 11, Cursor{Time: 100}))

	var got []string
	err := fastListener(conn, WithCursorStore(cursors)).ListenForGroupMessagesWith(context.Background(), func(m GroupMessage) error {
		got = append(got, m.Message)
		if len(got) == 3 {
			return errStop
		}
		return nil
	})
	require.ErrorIs(t, err, errStop)
	require.Equal(t, []string{"a", "b", "c"}, got)
	require.Len(t, conn.callsTo("IChatRoomService/GetMessageHistory"), 2)
}

func TestListenForGroupMessagesWith_SkipsDeleted(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	conn.handle("IChatRoomService/GetMessageHistory", func(url.Values) (any, error) {
		deleted := historyEntry(7, 50, 1, "")
		deleted["deleted"] = true
		return map[string]any{"messages": []any{historyEntry(7, 50, 2, "kept"), deleted}}, nil
	})

	cursors := NewMemoryCursorStore()
	require.NoError(t, cursors.SaveCursor(context.Background(), 5, 11, Cursor{Time: 49}))

	var got []string
	err := fastListener(conn, WithCursorStore(cursors)).ListenForGroupMessagesWith(context.Background(), func(m GroupMessage) error {
		got = append(got, m.Message)
		return errStop
	})
	require.ErrorIs(t, err, errStop)
	require.Equal(t, []string{"kept"}, got)
}

func TestListenForGroupMessagesWith_TransportErrorStops(t *testing.T) {
	t.Parallel()

	apiErr := &steam.APIError{Method: "IChatRoomService/GetMessageHistory/v1", Status: 503, Result: steam.ResultServiceUnavailable}
	conn := newFakeConn()
	conn.handle("IChatRoomService/GetMessageHistory", func(url.Values) (any, error) { return nil, apiErr })

	start := time.Now()
	c := fastListener(conn, WithBackoff(20*time.Millisecond))
	err := c.ListenForGroupMessages(context.Background(), func(GroupMessage) {})

	require.ErrorIs(t, err, apiErr)
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	require.Equal(t, steam.BackoffRetry, steam.Classify(err).Disposition)
}

func TestListenForGroupMessages_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	conn.handle("IChatRoomService/GetMessageHistory", func(url.Values) (any, error) {
		return map[string]any{"messages": []any{}}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	var listenErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		listenErr = fastListener(conn).ListenForGroupMessages(ctx, func(GroupMessage) {})
	}()

	require.Eventually(t, func() bool {
		return len(conn.callsTo("IChatRoomService/GetMessageHistory")) >= 3
	}, time.Second, time.Millisecond)
	cancel()
	wg.Wait()
	require.NoError(t, listenErr)
}

func TestListenForGroupMessages_UsesJoinedRoomsByDefault(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	conn.handle("IChatRoomService/GetMyChatRoomGroups", func(url.Values) (any, error) {
		return map[string]any{"chat_room_groups": []any{
			map[string]any{"group_summary": map[string]any{"chat_group_id": "1", "default_chat_id": "2", "chat_group_name": "a"}},
			map[string]any{"group_summary": map[string]any{"chat_group_id": "3", "default_chat_id": "4", "chat_group_name": "b"}},
		}}, nil
	})
	conn.handle("IChatRoomService/GetMessageHistory", func(url.Values) (any, error) {
		return map[string]any{"messages": []any{}}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	c := newTestClient(conn, WithPollInterval(time.Millisecond))
	go func() { done <- c.ListenForGroupMessages(ctx, func(GroupMessage) {}) }()

	require.Eventually(t, func() bool {
		return len(conn.callsTo("IChatRoomService/GetMessageHistory")) >= 2
	}, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	groups := map[string]bool{}
	for _, p := range conn.callsTo("IChatRoomService/GetMessageHistory") {
		groups[p.Get("chat_group_id")] = true
	}
	require.Equal(t, map[string]bool{"1": true, "3": true}, groups)
}

func TestListenForFriendMessagesWith(t *testing.T) {
	t.Parallel()

	var polls atomic.Int32
	conn := newFakeConn()
	conn.handle("IFriendMessagesService/GetActiveMessageSessions", func(url.Values) (any, error) {
		if polls.Add(1) == 1 {
			return map[string]any{"message_sessions": []any{
				map[string]any{"accountid_friend": 42, "last_message": 500},
			}}, nil
		}
		return map[string]any{"message_sessions": []any{
			map[string]any{"accountid_friend": 42, "last_message": 520},
		}}, nil
	})
	conn.handle("IFriendMessagesService/GetRecentMessages", func(p url.Values) (any, error) {
		require.Equal(t, "500", p.Get("rtime32_start_time"))
		require.Equal(t, selfID.String(), p.Get("steamid1"))
		return map[string]any{"messages": []any{
			map[string]any{"accountid": 42, "timestamp": 520, "message": "second"},
			map[string]any{"accountid": selfID.AccountID(), "timestamp": 515, "message": "mine"},
			map[string]any{"accountid": 42, "timestamp": 510, "message": "first"},
			map[string]any{"accountid": 42, "timestamp": 500, "message": "seen"},
		}}, nil
	})

	var got []FriendMessage
	err := fastListener(conn).ListenForFriendMessagesWith(context.Background(), func(m FriendMessage) error {
		got = append(got, m)
		if len(got) == 2 {
			return errStop
		}
		return nil
	})
	require.ErrorIs(t, err, errStop)
	require.Len(t, got, 2)
	require.Equal(t, "first", got[0].Message)
	require.Equal(t, "second", got[1].Message)
	require.Equal(t, steamid.FromAccountID(42), got[0].SteamID)
	require.Equal(t, ChatEntryTypeText, got[0].ChatEntryType)
}

func TestListenForFriendMessagesWith_SameSecond(t *testing.T) {
	t.Parallel()

	var polls, fetches atomic.Int32
	conn := newFakeConn()
	conn.handle("IFriendMessagesService/GetActiveMessageSessions", func(url.Values) (any, error) {
		last := 510
		if polls.Add(1) == 1 {
			last = 500
		}
		return map[string]any{"message_sessions": []any{
			map[string]any{"accountid_friend": 42, "last_message": last},
		}}, nil
	})
	conn.handle("IFriendMessagesService/GetRecentMessages", func(p url.Values) (any, error) {
		if fetches.Add(1) == 1 {
			require.Equal(t, "500", p.Get("rtime32_start_time"))
			return map[string]any{"messages": []any{
				map[string]any{"accountid": 42, "timestamp": 510, "ordinal": 0, "message": "first"},
			}}, nil
		}
		require.Equal(t, "510", p.Get("rtime32_start_time"))
		require.Equal(t, "0", p.Get("start_ordinal"))
		return map[string]any{"messages": []any{
			map[string]any{"accountid": 42, "timestamp": 510, "ordinal": 1, "message": "second"},
			map[string]any{"accountid": 42, "timestamp": 510, "ordinal": 0, "message": "first"},
		}}, nil
	})

	cursors := NewMemoryCursorStore()
	var got []string
	err := fastListener(conn, WithCursorStore(cursors)).ListenForFriendMessagesWith(context.Background(), func(m FriendMessage) error {
		got = append(got, m.Message)
		if len(got) == 2 {
			return errStop
		}
		return nil
	})
	require.ErrorIs(t, err, errStop)
	require.Equal(t, []string{"first", "second"}, got)

	cur, ok, err := cursors.Cursor(context.Background(), 0, 42)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, Cursor{Time: 510, Ordinal: 1}, cur)
}

func TestListenForFriendMessagesWith_OwnMessagesAdvanceCursor(t *testing.T) {
	t.Parallel()

	var polls atomic.Int32
	conn := newFakeConn()
	conn.handle("IFriendMessagesService/GetActiveMessageSessions", func(url.Values) (any, error) {
		last := 520
		if polls.Add(1) == 1 {
			last = 500
		}
		return map[string]any{"message_sessions": []any{
			map[string]any{"accountid_friend": 42, "last_message": last},
		}}, nil
	})
	conn.handle("IFriendMessagesService/GetRecentMessages", func(url.Values) (any, error) {
		return map[string]any{"messages": []any{
			map[string]any{"accountid": selfID.AccountID(), "timestamp": 520, "message": "mine"},
			map[string]any{"accountid": 42, "timestamp": 500, "message": "seen"},
		}}, nil
	})

	cursors := NewMemoryCursorStore()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- fastListener(conn, WithCursorStore(cursors)).ListenForFriendMessagesWith(ctx, func(m FriendMessage) error {
			return fmt.Errorf("unexpected message %q", m.Message)
		})
	}()

	require.Eventually(t, func() bool {
		return len(conn.callsTo("IFriendMessagesService/GetActiveMessageSessions")) >= 6
	}, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	require.Len(t, conn.callsTo("IFriendMessagesService/GetRecentMessages"), 1)
	cur, ok, err := cursors.Cursor(context.Background(), 0, 42)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, Cursor{Time: 520}, cur)
}

func TestDelivererSpacesCalls(t *testing.T) {
	t.Parallel()

	d := newDeliverer(10 * time.Millisecond)
	start := time.Now()
	for range 3 {
		require.NoError(t, d.wait(context.Background()))
	}
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, d.wait(ctx), context.Canceled)
}
