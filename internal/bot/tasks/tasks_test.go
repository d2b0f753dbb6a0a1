package tasks

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edgard/scposter/internal/chatroom"
	"github.com/edgard/scposter/internal/config"
	"github.com/edgard/scposter/internal/database"
	"github.com/edgard/scposter/internal/preprocess"
	"github.com/edgard/scposter/internal/steam"
)

const (
	testGroup = uint64(37830728)
	testChat  = uint64(130212346)
)

type fakeChat struct {
	mu        sync.Mutex
	sent      []chatroom.SendGroupMessageParams
	deleted   [][]chatroom.MessageRef
	sendErr   error
	deleteErr error
	noOrdinal bool
	nextTS    uint32
}

func (f *fakeChat) SendGroupMessage(_ context.Context, p chatroom.SendGroupMessageParams) (preprocess.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return preprocess.Message{}, f.sendErr
	}
	f.sent = append(f.sent, p)
	f.nextTS++
	msg := preprocess.ProcessResponse(p.Message, p.Message, f.nextTS, 0)
	if f.noOrdinal {
		msg.Ordinal = nil
	}
	return msg, nil
}

func (f *fakeChat) DeleteGroupMessages(_ context.Context, _, _ uint64, refs []chatroom.MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, refs)
	return nil
}

type fakeSession struct {
	calls int
	err   error
}

func (f *fakeSession) Refresh(context.Context) error {
	f.calls++
	return f.err
}

func newDeps(t *testing.T, chat *fakeChat, session *fakeSession) TaskDeps {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "tasks.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db, nil) })

	log := slog.New(slog.DiscardHandler)
	return TaskDeps{
		Logger:  log,
		Store:   database.NewStore(db, log),
		Chat:    chat,
		Session: session,
		Config: &config.Config{
			Steam:  config.SteamConfig{ChatGroupID: testGroup, ChatID: testChat},
			Poster: config.PosterConfig{Message: "daily @all", Retention: time.Hour, CleanupBatch: 10},
		},
	}
}

func TestRegisterAllTasks(t *testing.T) {
	t.Parallel()
	deps := newDeps(t, &fakeChat{}, &fakeSession{})
	registered := RegisterAllTasks(deps)
	for name := range config.DefaultTasks {
		require.Contains(t, registered, name)
	}
}

func TestScheduledPostRecordsMessage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	chat := &fakeChat{nextTS: 1000}
	deps := newDeps(t, chat, &fakeSession{})
	deps.Config.Poster.EchoToSender = true

	require.NoError(t, newScheduledPostTask(deps)(ctx))
	require.Len(t, chat.sent, 1)
	require.Equal(t, testGroup, chat.sent[0].ChatGroupID)
	require.Equal(t, "daily @all", chat.sent[0].Message)
	require.True(t, chat.sent[0].EchoToSender)

	pending, err := deps.Store.PendingSentMessages(ctx, testGroup, testChat, 2000, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, uint32(1001), pending[0].ServerTimestamp)
	require.Equal(t, "daily @all", pending[0].OriginalMessage)
}

func TestScheduledPostWithoutOrdinalIsNotRecorded(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	chat := &fakeChat{noOrdinal: true}
	deps := newDeps(t, chat, &fakeSession{})

	require.NoError(t, newScheduledPostTask(deps)(ctx))
	pending, err := deps.Store.PendingSentMessages(ctx, testGroup, testChat, 1<<31, 10)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestScheduledPostErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	chat := &fakeChat{sendErr: errors.New("boom")}
	deps := newDeps(t, chat, &fakeSession{})
	require.ErrorContains(t, newScheduledPostTask(deps)(ctx), "boom")

	noRoom := newDeps(t, &fakeChat{}, &fakeSession{})
	noRoom.Config.Steam = config.SteamConfig{}
	require.NoError(t, newScheduledPostTask(noRoom)(ctx))
}

func TestCleanupPostsDeletesExpired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	chat := &fakeChat{}
	deps := newDeps(t, chat, &fakeSession{})

	old := uint32(time.Now().Add(-2 * time.Hour).Unix())
	fresh := uint32(time.Now().Unix())
	for i, ts := range []uint32{old, old, fresh} {
		require.NoError(t, deps.Store.SaveSentMessage(ctx, &database.SentMessage{
			GroupID: testGroup, ChatID: testChat, ServerTimestamp: ts, Ordinal: uint32(i),
		}))
	}

	require.NoError(t, newCleanupPostsTask(deps)(ctx))
	require.Len(t, chat.deleted, 1)
	require.Equal(t, []chatroom.MessageRef{
		{ServerTimestamp: old, Ordinal: 0},
		{ServerTimestamp: old, Ordinal: 1},
	}, chat.deleted[0])

	pending, err := deps.Store.PendingSentMessages(ctx, testGroup, testChat, fresh+1, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, fresh, pending[0].ServerTimestamp)

	// nothing left to expire
	require.NoError(t, newCleanupPostsTask(deps)(ctx))
	require.Len(t, chat.deleted, 1)
}

func TestCleanupPostsFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	old := uint32(time.Now().Add(-2 * time.Hour).Unix())

	t.Run("delete error keeps records", func(t *testing.T) {
		t.Parallel()
		chat := &fakeChat{deleteErr: &steam.APIError{Method: "IChatRoomService/DeleteChatMessages/v1", Status: 500}}
		deps := newDeps(t, chat, &fakeSession{})
		require.NoError(t, deps.Store.SaveSentMessage(ctx, &database.SentMessage{GroupID: testGroup, ChatID: testChat, ServerTimestamp: old}))

		require.Error(t, newCleanupPostsTask(deps)(ctx))
		pending, err := deps.Store.PendingSentMessages(ctx, testGroup, testChat, old+1, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
	})

	t.Run("already deleted upstream", func(t *testing.T) {
		t.Parallel()
		chat := &fakeChat{deleteErr: &steam.APIError{Method: "IChatRoomService/DeleteChatMessages/v1", Status: 200, Result: steam.ResultNoMatch}}
		deps := newDeps(t, chat, &fakeSession{})
		require.NoError(t, deps.Store.SaveSentMessage(ctx, &database.SentMessage{GroupID: testGroup, ChatID: testChat, ServerTimestamp: old}))

		require.NoError(t, newCleanupPostsTask(deps)(ctx))
		pending, err := deps.Store.PendingSentMessages(ctx, testGroup, testChat, old+1, 10)
		require.NoError(t, err)
		require.Empty(t, pending)
	})
}

func TestTokenRefresh(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	session := &fakeSession{}
	deps := newDeps(t, &fakeChat{}, session)
	require.NoError(t, newTokenRefreshTask(deps)(ctx))
	require.Equal(t, 1, session.calls)

	session.err = steam.ErrNoRefreshToken
	require.ErrorIs(t, newTokenRefreshTask(deps)(ctx), steam.ErrNoRefreshToken)
}

func TestDBMaintenancePurgesOldDeletions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	deps := newDeps(t, &fakeChat{}, &fakeSession{})

	deletedAt := func(ago time.Duration) sql.NullTime {
		return sql.NullTime{Time: time.Now().Add(-ago).UTC(), Valid: true}
	}
	rows := []database.SentMessage{
		{GroupID: testGroup, ChatID: testChat, ServerTimestamp: 100, Ordinal: 0, DeletedAt: deletedAt(3 * time.Hour)},
		{GroupID: testGroup, ChatID: testChat, ServerTimestamp: 100, Ordinal: 1, DeletedAt: deletedAt(time.Minute)},
		{GroupID: testGroup, ChatID: testChat, ServerTimestamp: 100, Ordinal: 2},
	}
	for i := range rows {
		require.NoError(t, deps.Store.SaveSentMessage(ctx, &rows[i]))
	}

	require.NoError(t, newDBMaintenanceTask(deps)(ctx))

	pending, err := deps.Store.PendingSentMessages(ctx, testGroup, testChat, 200, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, uint32(2), pending[0].Ordinal)

	// only the recent deletion is left to purge
	n, err := deps.Store.PurgeSentMessages(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	require.Error(t, newDBMaintenanceTask(deps)(cancelled))
}
