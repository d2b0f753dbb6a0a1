// Package relay forwards Steam group messages that ping the account to a
// Telegram chat.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/scposter/internal/chatroom"
	"github.com/edgard/scposter/internal/preprocess"
	"github.com/edgard/scposter/internal/resilience"
	"github.com/edgard/scposter/internal/sanitize"
	"github.com/edgard/scposter/internal/steamid"
)

// Sender is the part of *bot.Bot the relay uses.
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// NewTelegramBot creates a new Telegram bot instance using the go-telegram/bot library.
func NewTelegramBot(token string, logger *slog.Logger, opts ...bot.Option) (*bot.Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "telegram_bot")

	b, err := bot.New(token, opts...)
	if err != nil {
		log.Error("Failed to create Telegram bot instance", "error", err)
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	prefix := token
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	log.Info("Telegram bot instance created successfully", "token_prefix", prefix+"...")
	return b, nil
}

// Option configures a Relay.
type Option func(*Relay)

// WithMaxLength caps forwarded text in runes.
func WithMaxLength(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.maxLen = n
		}
	}
}

// WithTimeout bounds a single send.
func WithTimeout(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithRetry replaces the send retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(r *Relay) { r.retry = cfg }
}

// Relay decides which group messages to forward and sends them.
type Relay struct {
	sender  Sender
	chatID  int64
	self    steamid.ID
	policy  *sanitize.Policy
	maxLen  int
	timeout time.Duration
	retry   resilience.RetryConfig
	logger  *slog.Logger
}

// New creates a relay posting to chatID. self is the logged-in account, whose
// own messages are never forwarded and whose direct mentions are.
func New(sender Sender, chatID int64, self steamid.ID, logger *slog.Logger, opts ...Option) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Relay{
		sender:  sender,
		chatID:  chatID,
		self:    self,
		policy:  sanitize.NewPlainTextPolicy(),
		maxLen:  4096,
		timeout: 15 * time.Second,
		retry:   resilience.DefaultRetryConfig(),
		logger:  logger.With("component", "relay"),
	}
	r.retry.ShouldRetry = retryableSend
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ShouldRelay reports whether msg pings @all, @here or this account.
func (r *Relay) ShouldRelay(msg chatroom.GroupMessage) bool {
	if msg.Sender == r.self {
		return false
	}
	m := msg.Preprocessed.Mentions
	if m == nil {
		m = preprocess.ExtractMentions(msg.Message)
	}
	return m.Any() && (m.All || m.Here || m.Includes(r.self))
}

// Handle forwards msg when it qualifies. It is safe to use as a listener callback.
func (r *Relay) Handle(ctx context.Context, msg chatroom.GroupMessage) error {
	if !r.ShouldRelay(msg) {
		return nil
	}

	text := r.Render(msg)
	noPreview := true
	err := resilience.WithRetry(ctx, func(ctx context.Context) error {
		sendCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		_, err := r.sender.SendMessage(sendCtx, &bot.SendMessageParams{
			ChatID:             r.chatID,
			Text:               text,
			LinkPreviewOptions: &models.LinkPreviewOptions{IsDisabled: &noPreview},
		})
		return err
	}, r.retry)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to relay message",
			"chat_group_id", msg.ChatGroupID, "chat_id", msg.ChatID, "error", err)
		return fmt.Errorf("relay message %d/%d: %w", msg.ChatGroupID, msg.ChatID, err)
	}

	r.logger.InfoContext(ctx, "Relayed group message",
		"chat_group_id", msg.ChatGroupID, "chat_id", msg.ChatID,
		"sender", msg.Sender.Steam3(), "telegram_chat_id", r.chatID)
	return nil
}

// Render formats msg as plain text: a header naming the room and sender,
// then the message body with BBCode and markup removed.
func (r *Relay) Render(msg chatroom.GroupMessage) string {
	room := msg.ChatName
	if room == "" {
		room = fmt.Sprintf("%d/%d", msg.ChatGroupID, msg.ChatID)
	}
	header := fmt.Sprintf("[%s] %s:", room, msg.Sender.Steam3())

	parsed := msg.Preprocessed.Parsed
	if len(parsed) == 0 {
		parsed = preprocess.ParseBBCode(msg.Message)
	}
	body := r.policy.SanitizeText(flatten(parsed))
	if body == "" {
		body = strings.TrimSpace(msg.Message)
	}

	return truncate(header+"\n"+body, r.maxLen)
}

var closingTag = regexp.MustCompile(`\[/(` + strings.Join(preprocess.AllowedTags, "|") + `)\]`)

// flatten renders parsed BBCode as text. Links keep their target, emoticons
// become :name:, and other tags are dropped.
func flatten(parsed []preprocess.Content) string {
	var b strings.Builder
	for _, c := range parsed {
		if !c.IsNode() {
			b.WriteString(closingTag.ReplaceAllString(c.Text, ""))
			continue
		}
		value := c.Node.Attrs["value"]
		switch c.Node.Tag {
		case preprocess.TypeURL, "img":
			if value != "" {
				b.WriteString(value + " ")
			}
		case preprocess.TypeEmoticon, "sticker":
			if value != "" {
				b.WriteString(":" + value + ":")
			}
		}
	}
	return b.String()
}

func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	runes := []rune(s)
	return string(runes[:maxLen-3]) + "..."
}

func retryableSend(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, bot.ErrorForbidden) &&
		!errors.Is(err, bot.ErrorBadRequest) && !errors.Is(err, bot.ErrorUnauthorized)
}
