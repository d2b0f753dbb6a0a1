package chatroom

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/edgard/scposter/internal/preprocess"
	"github.com/edgard/scposter/internal/steam"
	"github.com/edgard/scposter/internal/steamid"
)

// maxHistoryPages bounds how far back one poll walks when a room was busy.
const maxHistoryPages = 20

// Notifications delivers incoming messages to callbacks. Steam's push
// notifications are only available on the CM socket, so listeners poll
// message history from a saved cursor instead.
type Notifications struct {
	c *Client
}

// ListenForGroupMessagesWith calls fn for every new message in the watched
// rooms, oldest first. It returns nil when ctx ends, the wrapped callback
// error when fn fails, and the transport error after a short backoff when
// polling fails. The first poll of a room without a saved cursor only
// records the newest position.
func (n Notifications) ListenForGroupMessagesWith(ctx context.Context, fn func(GroupMessage) error) error {
	rooms, err := n.watchedRooms(ctx)
	if err != nil {
		return n.streamError(ctx, err)
	}
	n.c.logger.InfoContext(ctx, "Listening for group messages", "rooms", len(rooms))

	d := newDeliverer(n.c.throttle)
	return n.loop(ctx, func(ctx context.Context) error {
		for _, room := range rooms {
			msgs, err := n.pollRoom(ctx, room)
			if err != nil {
				return n.streamError(ctx, err)
			}
			for _, msg := range msgs {
				if err := d.wait(ctx); err != nil {
					return err
				}
				if err := fn(msg); err != nil {
					return fmt.Errorf("%w: %w", ErrCallback, err)
				}
				if err := n.c.cursors.SaveCursor(ctx, room.ChatGroupID, room.ChatID, Cursor{msg.Timestamp, msg.Ordinal}); err != nil {
					n.c.logger.WarnContext(ctx, "Failed to save cursor", "chat_group_id", room.ChatGroupID, "chat_id", room.ChatID, "error", err)
				}
			}
		}
		return nil
	})
}

// ListenForGroupMessages is ListenForGroupMessagesWith for callbacks that cannot fail.
func (n Notifications) ListenForGroupMessages(ctx context.Context, fn func(GroupMessage)) error {
	return n.ListenForGroupMessagesWith(ctx, func(m GroupMessage) error {
		fn(m)
		return nil
	})
}

// ListenForFriendMessagesWith calls fn for every new direct message from a
// friend. The first poll of a conversation without a saved cursor only
// records its newest position.
func (n Notifications) ListenForFriendMessagesWith(ctx context.Context, fn func(FriendMessage) error) error {
	n.c.logger.InfoContext(ctx, "Listening for friend messages")

	d := newDeliverer(n.c.throttle)
	quiet := make(map[uint32]uint32)
	return n.loop(ctx, func(ctx context.Context) error {
		msgs, err := n.pollFriends(ctx, quiet)
		if err != nil {
			return n.streamError(ctx, err)
		}
		for _, msg := range msgs {
			if err := d.wait(ctx); err != nil {
				return err
			}
			if err := fn(msg); err != nil {
				return fmt.Errorf("%w: %w", ErrCallback, err)
			}
			if err := n.c.cursors.SaveCursor(ctx, 0, uint64(msg.SteamID.AccountID()), msg.cursor()); err != nil {
				n.c.logger.WarnContext(ctx, "Failed to save friend cursor", "friend", msg.SteamID.Steam3(), "error", err)
			}
		}
		return nil
	})
}

// ListenForFriendMessages is ListenForFriendMessagesWith for callbacks that cannot fail.
func (n Notifications) ListenForFriendMessages(ctx context.Context, fn func(FriendMessage)) error {
	return n.ListenForFriendMessagesWith(ctx, func(m FriendMessage) error {
		fn(m)
		return nil
	})
}

func (n Notifications) loop(ctx context.Context, poll func(context.Context) error) error {
	ticker := time.NewTicker(n.c.pollInterval)
	defer ticker.Stop()

	for {
		if err := poll(ctx); err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil
			}
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// streamError waits out the backoff and returns err, or nil if ctx ended.
func (n Notifications) streamError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	n.c.logger.WarnContext(ctx, "Notification poll failed",
		"error", err,
		"disposition", steam.Classify(err).Disposition,
		"backoff", n.c.backoff)

	timer := time.NewTimer(n.c.backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil
	case <-timer.C:
	}
	return fmt.Errorf("notification stream error: %w", err)
}

func (n Notifications) watchedRooms(ctx context.Context) ([]RoomInfo, error) {
	if len(n.c.rooms) > 0 {
		return n.c.rooms, nil
	}
	return n.c.Groups().MyChatRooms(ctx)
}

// pollRoom returns messages newer than the room cursor, oldest first.
func (n Notifications) pollRoom(ctx context.Context, room RoomInfo) ([]GroupMessage, error) {
	cur, ok, err := n.c.cursors.Cursor(ctx, room.ChatGroupID, room.ChatID)
	if err != nil {
		return nil, fmt.Errorf("load cursor: %w", err)
	}

	var collected []historyMessage
	q := historyQuery{group: room.ChatGroupID, chat: room.ChatID, start: cur, count: n.c.historyPage}
	for range maxHistoryPages {
		page, more, err := n.c.history(ctx, q)
		if err != nil {
			return nil, err
		}
		for _, h := range page {
			if h.cursor().After(cur) {
				collected = append(collected, h)
			}
		}
		if !ok || !more || len(page) == 0 {
			break
		}
		oldest := page[len(page)-1].cursor()
		if !oldest.After(cur) || oldest == q.last {
			break
		}
		q.last = oldest
	}

	slices.SortFunc(collected, func(a, b historyMessage) int {
		switch {
		case a.cursor().After(b.cursor()):
			return 1
		case b.cursor().After(a.cursor()):
			return -1
		default:
			return 0
		}
	})
	collected = slices.CompactFunc(collected, func(a, b historyMessage) bool { return a.cursor() == b.cursor() })

	if !ok {
		if len(collected) > 0 {
			newest := collected[len(collected)-1].cursor()
			if err := n.c.cursors.SaveCursor(ctx, room.ChatGroupID, room.ChatID, newest); err != nil {
				return nil, fmt.Errorf("save cursor: %w", err)
			}
		} else if err := n.c.cursors.SaveCursor(ctx, room.ChatGroupID, room.ChatID, Cursor{}); err != nil {
			return nil, fmt.Errorf("save cursor: %w", err)
		}
		return nil, nil
	}

	out := make([]GroupMessage, 0, len(collected))
	for _, h := range collected {
		if h.Deleted {
			continue
		}
		out = append(out, GroupMessage{
			ChatGroupID:  room.ChatGroupID,
			ChatID:       room.ChatID,
			Sender:       steamid.FromAccountID(h.Sender),
			Message:      h.Message,
			Timestamp:    h.ServerTimestamp,
			ChatName:     room.ChatName,
			Ordinal:      h.Ordinal,
			Preprocessed: preprocess.Preprocess(h.Message),
		})
	}
	return out, nil
}

type messageSessionJSON struct {
	AccountIDFriend uint32 `json:"accountid_friend"`
	LastMessage     uint32 `json:"last_message"`
}

type recentMessageJSON struct {
	AccountID uint32 `json:"accountid"`
	Timestamp uint32 `json:"timestamp"`
	Ordinal   uint32 `json:"ordinal"`
	Message   string `json:"message"`
}

// pollFriends returns unseen messages from friends with recent activity,
// oldest first per friend. last_message only has second resolution, so a
// conversation whose last_message equals the cursor second is fetched once
// more; quiet remembers the seconds that fetch found nothing new for.
func (n Notifications) pollFriends(ctx context.Context, quiet map[uint32]uint32) ([]FriendMessage, error) {
	var sessions struct {
		Sessions []messageSessionJSON `json:"message_sessions"`
	}
	if err := n.c.conn.Call(ctx, steam.Get(friendService, "GetActiveMessageSessions", url.Values{"only_sessions_with_messages": {"true"}}), &sessions); err != nil {
		return nil, fmt.Errorf("get active message sessions: %w", err)
	}

	self := n.c.conn.SteamID()
	var out []FriendMessage
	for _, s := range sessions.Sessions {
		key := uint64(s.AccountIDFriend)
		cur, ok, err := n.c.cursors.Cursor(ctx, 0, key)
		if err != nil {
			return nil, fmt.Errorf("load friend cursor: %w", err)
		}
		if !ok {
			// Everything up to and including the last_message second is history.
			if err := n.c.cursors.SaveCursor(ctx, 0, key, Cursor{Time: s.LastMessage, Ordinal: math.MaxUint32}); err != nil {
				return nil, fmt.Errorf("save friend cursor: %w", err)
			}
			continue
		}
		if s.LastMessage < cur.Time || (s.LastMessage == cur.Time && quiet[s.AccountIDFriend] == s.LastMessage) {
			continue
		}

		friend := steamid.FromAccountID(s.AccountIDFriend)
		params := url.Values{
			"steamid1":                 {self.String()},
			"steamid2":                 {friend.String()},
			"count":                    {strconv.Itoa(n.c.historyPage)},
			"rtime32_start_time":       {strconv.FormatUint(uint64(cur.Time), 10)},
			"start_ordinal":            {strconv.FormatUint(uint64(cur.Ordinal), 10)},
			"bbcode_format":            {"true"},
			"most_recent_conversation": {"false"},
		}
		var recent struct {
			Messages []recentMessageJSON `json:"messages"`
		}
		if err := n.c.conn.Call(ctx, steam.Get(friendService, "GetRecentMessages", params), &recent); err != nil {
			return nil, fmt.Errorf("get recent messages: %w", err)
		}

		var batch []FriendMessage
		for _, m := range recent.Messages {
			if m.AccountID != s.AccountIDFriend {
				continue
			}
			msg := FriendMessage{
				SteamID:       friend,
				Message:       m.Message,
				Timestamp:     m.Timestamp,
				Ordinal:       m.Ordinal,
				ChatEntryType: ChatEntryTypeText,
			}
			if msg.cursor().After(cur) {
				batch = append(batch, msg)
			}
		}
		slices.SortStableFunc(batch, func(a, b FriendMessage) int {
			return cmp.Or(cmp.Compare(a.Timestamp, b.Timestamp), cmp.Compare(a.Ordinal, b.Ordinal))
		})
		batch = slices.CompactFunc(batch, func(a, b FriendMessage) bool { return a.cursor() == b.cursor() })

		if len(batch) > 0 {
			delete(quiet, s.AccountIDFriend)
			out = append(out, batch...)
			continue
		}

		quiet[s.AccountIDFriend] = s.LastMessage
		// Only our own messages (or none) since the cursor: move past them.
		if s.LastMessage > cur.Time {
			if err := n.c.cursors.SaveCursor(ctx, 0, key, Cursor{Time: s.LastMessage}); err != nil {
				return nil, fmt.Errorf("save friend cursor: %w", err)
			}
		}
	}
	return out, nil
}

// deliverer spaces callback invocations by a minimum gap.
type deliverer struct {
	gap  time.Duration
	last time.Time
}

func newDeliverer(gap time.Duration) *deliverer {
	return &deliverer{gap: gap}
}

func (d *deliverer) wait(ctx context.Context) error {
	if !d.last.IsZero() {
		if remaining := d.gap - time.Since(d.last); remaining > 0 {
			timer := time.NewTimer(remaining)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	d.last = time.Now()
	return nil
}
