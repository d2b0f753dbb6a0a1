package chatroom

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/edgard/scposter/internal/steam"
)

type historyMessage struct {
	Sender          uint32 `json:"sender"`
	ServerTimestamp uint32 `json:"server_timestamp"`
	Ordinal         uint32 `json:"ordinal"`
	Message         string `json:"message"`
	Deleted         bool   `json:"deleted"`
}

func (m historyMessage) cursor() Cursor {
	return Cursor{Time: m.ServerTimestamp, Ordinal: m.Ordinal}
}

type historyQuery struct {
	group, chat uint64
	// start is exclusive lower bound; zero means no bound.
	start Cursor
	// last is the inclusive upper bound; zero means newest.
	last  Cursor
	count int
}

// history returns messages newest-first, as Steam does.
func (c *Client) history(ctx context.Context, q historyQuery) ([]historyMessage, bool, error) {
	params := url.Values{
		"chat_group_id": {uintParam(q.group)},
		"chat_id":       {uintParam(q.chat)},
		"max_count":     {strconv.Itoa(q.count)},
	}
	if !q.start.IsZero() {
		params.Set("start_time", strconv.FormatUint(uint64(q.start.Time), 10))
		params.Set("start_ordinal", strconv.FormatUint(uint64(q.start.Ordinal), 10))
	}
	if !q.last.IsZero() {
		params.Set("last_time", strconv.FormatUint(uint64(q.last.Time), 10))
		params.Set("last_ordinal", strconv.FormatUint(uint64(q.last.Ordinal), 10))
	}

	var resp struct {
		Messages      []historyMessage `json:"messages"`
		MoreAvailable bool             `json:"more_available"`
	}
	if err := c.conn.Call(ctx, steam.Get(chatRoomService, "GetMessageHistory", params), &resp); err != nil {
		return nil, false, fmt.Errorf("get message history %d/%d: %w", q.group, q.chat, err)
	}
	return resp.Messages, resp.MoreAvailable, nil
}
