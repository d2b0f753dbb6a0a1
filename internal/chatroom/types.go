package chatroom

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/edgard/scposter/internal/preprocess"
	"github.com/edgard/scposter/internal/steamid"
)

var (
	// ErrNoMessagesToDelete is returned when a delete request carries no messages.
	ErrNoMessagesToDelete = errors.New("cannot delete empty list of messages")
	// ErrMissingIdentifiers is returned when every message lacks a server timestamp or ordinal.
	ErrMissingIdentifiers = errors.New("messages are missing server_timestamp or ordinal")
	// ErrInvalidParams is returned for send parameters that fail validation.
	ErrInvalidParams = errors.New("invalid message parameters")
	// ErrCallback wraps an error returned by a listener callback.
	ErrCallback = errors.New("notification callback failed")
)

// RoomInfo describes a chat room the account belongs to.
type RoomInfo struct {
	ChatGroupID   uint64 `json:"chat_group_id"`
	ChatID        uint64 `json:"chat_id"`
	ChatName      string `json:"chat_name"`
	ChatGroupName string `json:"chat_group_name"`
	IsJoined      bool   `json:"is_joined"`
}

// GroupState is the state of a chat room group as returned by join and state queries.
type GroupState struct {
	ChatGroupID   uint64
	ChatGroupName string
	DefaultChatID uint64
	Rooms         []RoomInfo
	MemberCount   int
}

// FriendMessage is a one-to-one message from a friend.
type FriendMessage struct {
	SteamID       steamid.ID `json:"steam_id"`
	Message       string     `json:"message"`
	Timestamp     uint32     `json:"timestamp"`
	Ordinal       uint32     `json:"ordinal"`
	ChatEntryType int        `json:"chat_entry_type"`
}

func (m FriendMessage) cursor() Cursor {
	return Cursor{Time: m.Timestamp, Ordinal: m.Ordinal}
}

// GroupMessage is a message posted in a group chat room.
type GroupMessage struct {
	ChatGroupID  uint64             `json:"chat_group_id"`
	ChatID       uint64             `json:"chat_id"`
	Sender       steamid.ID         `json:"sender_steam_id"`
	Message      string             `json:"message"`
	Timestamp    uint32             `json:"timestamp"`
	ChatName     string             `json:"chat_name"`
	Ordinal      uint32             `json:"ordinal"`
	Preprocessed preprocess.Message `json:"preprocessed"`
}

// Ref returns the identifiers needed to delete the message.
func (m GroupMessage) Ref() MessageRef {
	return MessageRef{ServerTimestamp: m.Timestamp, Ordinal: m.Ordinal}
}

// MessageRef identifies a group message for deletion.
type MessageRef struct {
	ServerTimestamp uint32
	Ordinal         uint32
}

// ChatEntryTypeText is the entry type of an ordinary text message.
const ChatEntryTypeText = 1

// SendGroupMessageParams are the arguments of SendGroupMessage.
type SendGroupMessageParams struct {
	ChatGroupID  uint64 `validate:"gt=0"`
	ChatID       uint64 `validate:"gt=0"`
	Message      string `validate:"required"`
	EchoToSender bool
}

// NewSendGroupMessageParams builds params with echo disabled.
func NewSendGroupMessageParams(group, chat uint64, message string) SendGroupMessageParams {
	return SendGroupMessageParams{ChatGroupID: group, ChatID: chat, Message: message}
}

// WithEchoToSender returns a copy of p with echo set.
func (p SendGroupMessageParams) WithEchoToSender(echo bool) SendGroupMessageParams {
	p.EchoToSender = echo
	return p
}

var validate = validator.New()

// Validate checks the ids and message.
func (p SendGroupMessageParams) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	return nil
}
