// Package chatroom lists, joins and posts to Steam group chats and delivers
// incoming group and friend messages to callbacks.
package chatroom

import (
	"context"
	"log/slog"
	"time"

	"github.com/edgard/scposter/internal/preprocess"
	"github.com/edgard/scposter/internal/steam"
	"github.com/edgard/scposter/internal/steamid"
)

const (
	chatRoomService = "IChatRoomService"
	friendService   = "IFriendMessagesService"

	defaultPollInterval = 2 * time.Second
	defaultThrottle     = 25 * time.Millisecond
	defaultBackoff      = 250 * time.Millisecond
	defaultEchoTimeout  = 5 * time.Second
	defaultHistoryPage  = 50
)

// Conn is the authenticated transport the client runs on. *steam.Session implements it.
type Conn interface {
	Call(ctx context.Context, req steam.Request, out any) error
	SteamID() steamid.ID
}

// Client groups chat room operations.
type Client struct {
	conn    Conn
	logger  *slog.Logger
	cursors CursorStore
	rooms   []RoomInfo

	pollInterval time.Duration
	throttle     time.Duration
	backoff      time.Duration
	echoTimeout  time.Duration
	echoPoll     time.Duration
	historyPage  int
}

// Option configures a Client.
type Option func(*Client)

// WithCursorStore persists listener positions.
func WithCursorStore(s CursorStore) Option {
	return func(c *Client) { c.cursors = s }
}

// WithRooms restricts listeners to the given rooms instead of every joined room.
func WithRooms(rooms ...RoomInfo) Option {
	return func(c *Client) { c.rooms = rooms }
}

// WithPollInterval sets how often listeners check for new messages.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

// WithThrottle sets the minimum gap between two callback deliveries.
func WithThrottle(d time.Duration) Option {
	return func(c *Client) { c.throttle = d }
}

// WithBackoff sets the pause before a listener returns a transport error.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) { c.backoff = d }
}

// WithEchoTimeout bounds the ordinal lookup after an echoed send.
func WithEchoTimeout(d time.Duration) Option {
	return func(c *Client) { c.echoTimeout = d }
}

// NewClient creates a chat client on conn.
func NewClient(conn Conn, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		conn:         conn,
		logger:       logger.With("component", "chatroom"),
		cursors:      NewMemoryCursorStore(),
		pollInterval: defaultPollInterval,
		throttle:     defaultThrottle,
		backoff:      defaultBackoff,
		echoTimeout:  defaultEchoTimeout,
		echoPoll:     defaultBackoff,
		historyPage:  defaultHistoryPage,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Groups returns the group membership operations.
func (c *Client) Groups() Groups { return Groups{c: c} }

// Messaging returns the send and delete operations.
func (c *Client) Messaging() Messaging { return Messaging{c: c} }

// Notifications returns the listeners.
func (c *Client) Notifications() Notifications { return Notifications{c: c} }

// SteamID is the account the client acts as.
func (c *Client) SteamID() steamid.ID { return c.conn.SteamID() }

func (c *Client) MyChatRooms(ctx context.Context) ([]RoomInfo, error) {
	return c.Groups().MyChatRooms(ctx)
}

func (c *Client) JoinChatRoom(ctx context.Context, group, chat uint64, inviteCode string) (GroupState, error) {
	return c.Groups().JoinChatRoom(ctx, group, chat, inviteCode)
}

func (c *Client) LeaveChatRoom(ctx context.Context, group uint64) error {
	return c.Groups().LeaveChatRoom(ctx, group)
}

func (c *Client) ChatRoomState(ctx context.Context, group uint64) (GroupState, error) {
	return c.Groups().ChatRoomState(ctx, group)
}

func (c *Client) SendGroupMessage(ctx context.Context, params SendGroupMessageParams) (preprocess.Message, error) {
	return c.Messaging().SendGroupMessage(ctx, params)
}

func (c *Client) SendFriendMessage(ctx context.Context, friend steamid.ID, msg string, entryType int) (FriendSendResult, error) {
	return c.Messaging().SendFriendMessage(ctx, friend, msg, entryType)
}

func (c *Client) DeleteGroupMessages(ctx context.Context, group, chat uint64, refs []MessageRef) error {
	return c.Messaging().DeleteGroupMessages(ctx, group, chat, refs)
}

func (c *Client) DeleteGroupMessagesFromPreprocessed(ctx context.Context, group, chat uint64, msgs []preprocess.Message) error {
	return c.Messaging().DeleteGroupMessagesFromPreprocessed(ctx, group, chat, msgs)
}

func (c *Client) ListenForGroupMessagesWith(ctx context.Context, fn func(GroupMessage) error) error {
	return c.Notifications().ListenForGroupMessagesWith(ctx, fn)
}

func (c *Client) ListenForGroupMessages(ctx context.Context, fn func(GroupMessage)) error {
	return c.Notifications().ListenForGroupMessages(ctx, fn)
}

func (c *Client) ListenForFriendMessagesWith(ctx context.Context, fn func(FriendMessage) error) error {
	return c.Notifications().ListenForFriendMessagesWith(ctx, fn)
}

func (c *Client) ListenForFriendMessages(ctx context.Context, fn func(FriendMessage)) error {
	return c.Notifications().ListenForFriendMessages(ctx, fn)
}
