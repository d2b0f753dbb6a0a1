package chatroom

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/edgard/scposter/internal/preprocess"
	"github.com/edgard/scposter/internal/steam"
	"github.com/edgard/scposter/internal/steamid"
)

var errEchoNotFound = errors.New("echoed message not found")

// Messaging sends and deletes messages.
type Messaging struct {
	c *Client
}

// FriendSendResult is Steam's answer to a friend message.
type FriendSendResult struct {
	ModifiedMessage string `json:"modified_message"`
	ServerTimestamp uint32 `json:"server_timestamp"`
	Ordinal         uint32 `json:"ordinal"`
}

type sendChatMessageResponse struct {
	ModifiedMessage string  `json:"modified_message"`
	ServerTimestamp uint32  `json:"server_timestamp"`
	Ordinal         *uint32 `json:"ordinal"`
}

// SendGroupMessage posts params.Message to a group chat. With EchoToSender
// set and no ordinal in Steam's answer, the ordinal is looked up in the room
// history so the result can later be deleted.
func (m Messaging) SendGroupMessage(ctx context.Context, params SendGroupMessageParams) (preprocess.Message, error) {
	if err := params.Validate(); err != nil {
		return preprocess.Message{}, err
	}

	prepared := preprocess.PrepareForSending(params.Message)
	form := url.Values{
		"chat_group_id":  {uintParam(params.ChatGroupID)},
		"chat_id":        {uintParam(params.ChatID)},
		"message":        {prepared},
		"echo_to_sender": {strconv.FormatBool(params.EchoToSender)},
	}

	var resp sendChatMessageResponse
	if err := m.c.conn.Call(ctx, steam.Post(chatRoomService, "SendChatMessage", form), &resp); err != nil {
		return preprocess.Message{}, fmt.Errorf("send chat message: %w", err)
	}

	modified := resp.ModifiedMessage
	if modified == "" {
		modified = prepared
	}

	var ordinal uint32
	if resp.Ordinal != nil {
		ordinal = *resp.Ordinal
	}
	result := preprocess.ProcessResponse(params.Message, modified, resp.ServerTimestamp, ordinal)

	if params.EchoToSender && resp.Ordinal == nil {
		echo, err := m.findEcho(ctx, params.ChatGroupID, params.ChatID, resp.ServerTimestamp, prepared, modified)
		if err != nil {
			m.c.logger.WarnContext(ctx, "Timeout waiting for echoed message; ordinal not available for deletion",
				"chat_group_id", params.ChatGroupID,
				"chat_id", params.ChatID,
				"error", err)
			result.Ordinal = nil
		} else {
			result = preprocess.ProcessResponse(params.Message, echo.Message, echo.ServerTimestamp, echo.Ordinal)
		}
	}

	m.c.logger.DebugContext(ctx, "Group message dispatched",
		"chat_group_id", params.ChatGroupID,
		"chat_id", params.ChatID,
		"server_timestamp", resp.ServerTimestamp,
		"ordinal", ordinal)
	return result, nil
}

// findEcho looks for our own message with the given server timestamp. An
// entry whose text is the sent or server-modified message wins; sender and
// timestamp alone are trusted only when a single own message has that second.
func (m Messaging) findEcho(ctx context.Context, group, chat uint64, ts uint32, texts ...string) (historyMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, m.c.echoTimeout)
	defer cancel()

	self := m.c.conn.SteamID().AccountID()
	ticker := time.NewTicker(m.c.echoPoll)
	defer ticker.Stop()

	for {
		msgs, _, err := m.c.history(ctx, historyQuery{group: group, chat: chat, count: m.c.historyPage})
		if err == nil {
			if h, ok := matchEcho(msgs, self, ts, texts); ok {
				return h, nil
			}
		}

		select {
		case <-ctx.Done():
			if err != nil {
				return historyMessage{}, err
			}
			return historyMessage{}, fmt.Errorf("%w: %w", errEchoNotFound, ctx.Err())
		case <-ticker.C:
		}
	}
}

func matchEcho(msgs []historyMessage, self, ts uint32, texts []string) (historyMessage, bool) {
	var candidates []historyMessage
	for _, h := range msgs {
		if h.Sender == self && h.ServerTimestamp == ts {
			candidates = append(candidates, h)
		}
	}
	// Oldest ordinal first so identical texts in one second resolve the same way every time.
	slices.SortFunc(candidates, func(a, b historyMessage) int { return cmp.Compare(a.Ordinal, b.Ordinal) })
	for _, h := range candidates {
		if slices.Contains(texts, h.Message) {
			return h, true
		}
	}
	if len(candidates) == 1 {
		return candidates[0], true
	}
	return historyMessage{}, false
}

// SendFriendMessage sends a direct message to friend. The message is echoed
// to the account's other sessions.
func (m Messaging) SendFriendMessage(ctx context.Context, friend steamid.ID, msg string, entryType int) (FriendSendResult, error) {
	form := url.Values{
		"steamid":         {friend.String()},
		"message":         {msg},
		"chat_entry_type": {strconv.Itoa(entryType)},
		"echo_to_sender":  {"true"},
	}

	var resp FriendSendResult
	if err := m.c.conn.Call(ctx, steam.Post(friendService, "SendMessage", form), &resp); err != nil {
		return resp, fmt.Errorf("send friend message: %w", err)
	}

	m.c.logger.DebugContext(ctx, "Friend message dispatched",
		"friend", friend.Steam3(),
		"chat_entry_type", entryType)
	return resp, nil
}

// DeleteGroupMessages removes messages from a group chat.
func (m Messaging) DeleteGroupMessages(ctx context.Context, group, chat uint64, refs []MessageRef) error {
	if len(refs) == 0 {
		return ErrNoMessagesToDelete
	}

	form := url.Values{
		"chat_group_id": {uintParam(group)},
		"chat_id":       {uintParam(chat)},
	}
	for i, ref := range refs {
		form.Set(fmt.Sprintf("messages[%d][server_timestamp]", i), strconv.FormatUint(uint64(ref.ServerTimestamp), 10))
		form.Set(fmt.Sprintf("messages[%d][ordinal]", i), strconv.FormatUint(uint64(ref.Ordinal), 10))
	}

	if err := m.c.conn.Call(ctx, steam.Post(chatRoomService, "DeleteChatMessages", form), nil); err != nil {
		return fmt.Errorf("delete chat messages: %w", err)
	}

	m.c.logger.DebugContext(ctx, "Group messages deleted",
		"chat_group_id", group,
		"chat_id", chat,
		"message_count", len(refs))
	return nil
}

// DeleteGroupMessagesFromPreprocessed deletes messages returned by
// SendGroupMessage. Messages without timestamp or ordinal are skipped.
func (m Messaging) DeleteGroupMessagesFromPreprocessed(ctx context.Context, group, chat uint64, msgs []preprocess.Message) error {
	if len(msgs) == 0 {
		return ErrNoMessagesToDelete
	}

	refs := make([]MessageRef, 0, len(msgs))
	for _, msg := range msgs {
		if !msg.Identified() {
			m.c.logger.WarnContext(ctx, "Skipping message deletion: missing server_timestamp or ordinal")
			continue
		}
		refs = append(refs, MessageRef{ServerTimestamp: *msg.ServerTimestamp, Ordinal: *msg.Ordinal})
	}

	if len(refs) == 0 {
		return fmt.Errorf("all %d message(s): %w", len(msgs), ErrMissingIdentifiers)
	}
	if skipped := len(msgs) - len(refs); skipped > 0 {
		m.c.logger.WarnContext(ctx, "Skipped messages with missing identifiers",
			"skipped_count", skipped,
			"total", len(msgs))
	}

	return m.DeleteGroupMessages(ctx, group, chat, refs)
}
