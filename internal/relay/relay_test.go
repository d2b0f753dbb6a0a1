package relay

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/require"

	"github.com/edgard/scposter/internal/chatroom"
	"github.com/edgard/scposter/internal/preprocess"
	"github.com/edgard/scposter/internal/resilience"
	"github.com/edgard/scposter/internal/steamid"
)

var (
	self  = steamid.FromAccountID(1531059355)
	other = steamid.FromAccountID(42)
)

type fakeSender struct {
	mu    sync.Mutex
	sent  []*bot.SendMessageParams
	errs  []error
	calls int
}

func (f *fakeSender) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	f.sent = append(f.sent, params)
	return &models.Message{ID: len(f.sent)}, nil
}

func fastRetry() resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.InitialInterval = time.Millisecond
	cfg.MaxInterval = time.Millisecond
	cfg.ShouldRetry = retryableSend
	return cfg
}

func groupMessage(sender steamid.ID, text string) chatroom.GroupMessage {
	return chatroom.GroupMessage{
		ChatGroupID:  37830728,
		ChatID:       130212346,
		ChatName:     "General",
		Sender:       sender,
		Message:      text,
		Timestamp:    1700000000,
		Preprocessed: preprocess.Preprocess(text),
	}
}

func TestShouldRelay(t *testing.T) {
	t.Parallel()
	r := New(&fakeSender{}, -100, self, slog.New(slog.DiscardHandler))

	tests := []struct {
		name string
		msg  chatroom.GroupMessage
		want bool
	}{
		{name: "plain", msg: groupMessage(other, "hello"), want: false},
		{name: "all", msg: groupMessage(other, "raid @all"), want: true},
		{name: "here", msg: groupMessage(other, "@here, anyone?"), want: true},
		{name: "direct", msg: groupMessage(other, "ping "+self.Steam3()), want: true},
		{name: "direct via mention helper", msg: groupMessage(other, chatroom.MessageWithMentions("ping", []steamid.ID{self})), want: true},
		{name: "someone else", msg: groupMessage(other, "ping "+steamid.FromAccountID(7).Steam3()), want: false},
		{name: "own message", msg: groupMessage(self, "@all"), want: false},
		{
			name: "not preprocessed",
			msg:  chatroom.GroupMessage{Sender: other, Message: "@all go"},
			want: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, r.ShouldRelay(tt.msg))
		})
	}
}

func TestRender(t *testing.T) {
	t.Parallel()
	r := New(&fakeSender{}, -100, self, nil)

	msg := groupMessage(other, "@all **raid** [url=https://example.com/guide]guide[/url] [spoiler]boss[/spoiler]")
	out := r.Render(msg)
	require.True(t, strings.HasPrefix(out, "[General] [U:1:42]:\n"), out)
	require.Contains(t, out, "raid")
	require.Contains(t, out, "https://example.com/guide")
	require.Contains(t, out, "boss")
	require.NotContains(t, out, "**")
	require.NotContains(t, out, "[/url]")
	require.NotContains(t, out, "[spoiler]")

	unnamed := groupMessage(other, "@here")
	unnamed.ChatName = ""
	require.True(t, strings.HasPrefix(r.Render(unnamed), "[37830728/130212346]"))

	short := New(&fakeSender{}, -100, self, nil, WithMaxLength(20))
	rendered := short.Render(groupMessage(other, "@all "+strings.Repeat("é", 50)))
	require.Equal(t, 20, len([]rune(rendered)))
	require.True(t, strings.HasSuffix(rendered, "..."))
}

func TestHandle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("forwards mentions", func(t *testing.T) {
		t.Parallel()
		sender := &fakeSender{}
		r := New(sender, -100200300, self, nil, WithRetry(fastRetry()))

		require.NoError(t, r.Handle(ctx, groupMessage(other, "nothing to see")))
		require.NoError(t, r.Handle(ctx, groupMessage(other, "@all raid now")))

		require.Len(t, sender.sent, 1)
		require.Equal(t, int64(-100200300), sender.sent[0].ChatID)
		require.Contains(t, sender.sent[0].Text, "raid now")
		require.True(t, *sender.sent[0].LinkPreviewOptions.IsDisabled)
	})

	t.Run("retries transient failures", func(t *testing.T) {
		t.Parallel()
		sender := &fakeSender{errs: []error{errors.New("connection reset"), nil}}
		r := New(sender, -1, self, nil, WithRetry(fastRetry()))

		require.NoError(t, r.Handle(ctx, groupMessage(other, "@here")))
		require.Equal(t, 2, sender.calls)
		require.Len(t, sender.sent, 1)
	})

	t.Run("does not retry forbidden", func(t *testing.T) {
		t.Parallel()
		sender := &fakeSender{errs: []error{bot.ErrorForbidden, bot.ErrorForbidden}}
		r := New(sender, -1, self, nil, WithRetry(fastRetry()))

		err := r.Handle(ctx, groupMessage(other, "@here"))
		require.ErrorIs(t, err, bot.ErrorForbidden)
		require.Equal(t, 1, sender.calls)
	})
}
