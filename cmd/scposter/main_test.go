package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edgard/scposter/internal/chatroom"
	"github.com/edgard/scposter/internal/config"
	"github.com/edgard/scposter/internal/steam"
)

func TestCommandTree(t *testing.T) {
	names := make([]string, 0, len(rootCmd.Commands()))
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"rooms", "send", "delete", "listen", "games", "ping", "run"} {
		require.Contains(t, names, want)
	}
	require.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
	require.NotNil(t, rootCmd.PersistentFlags().Lookup("log-level"))
}

func TestSendRequiresRoom(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STEAM_ACCOUNT", "poster")
	t.Setenv("STEAM_PASSWORD", "hunter2")
	t.Setenv("CHAT_GROUP_ID", "")
	t.Setenv("CHAT_ID", "")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"send", "--config", "missing.yaml", "--log-level", "error", "hello"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.Execute()
	require.ErrorIs(t, err, config.ErrConfiguration)
	require.ErrorContains(t, err, "no chat room given")
	require.Equal(t, "error", cfg.Logger.Level)
}

func TestSendRequiresMessage(t *testing.T) {
	err := sendCmd.Args(sendCmd, nil)
	require.Error(t, err)
}

func TestResolveRoom(t *testing.T) {
	t.Parallel()
	withRoom := &config.Config{Steam: config.SteamConfig{ChatGroupID: 37830728, ChatID: 130212346}}
	noRoom := &config.Config{}

	tests := []struct {
		name        string
		cfg         *config.Config
		group, chat uint64
		wantGroup   uint64
		wantChat    uint64
		wantErr     bool
	}{
		{name: "default", cfg: withRoom, wantGroup: 37830728, wantChat: 130212346},
		{name: "flags win", cfg: withRoom, group: 1, chat: 2, wantGroup: 1, wantChat: 2},
		{name: "flags only", cfg: noRoom, group: 1, chat: 2, wantGroup: 1, wantChat: 2},
		{name: "nothing", cfg: noRoom, wantErr: true},
		{name: "half flags", cfg: withRoom, group: 1, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			group, chat, err := resolveRoom(tt.cfg, tt.group, tt.chat)
			if tt.wantErr {
				require.ErrorIs(t, err, config.ErrConfiguration)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantGroup, group)
			require.Equal(t, tt.wantChat, chat)
		})
	}
}

func TestComposeMessage(t *testing.T) {
	t.Parallel()

	msg, err := composeMessage("raid", []string{"[U:1:42]"}, true, false)
	require.NoError(t, err)
	require.Equal(t, "@all raid @[U:1:42]", msg)

	msg, err = composeMessage("hi", nil, false, true)
	require.NoError(t, err)
	require.Equal(t, "@here hi", msg)

	_, err = composeMessage("hi", []string{"nobody"}, false, false)
	require.ErrorContains(t, err, "invalid --mention")
}

func TestConfirmationHandler(t *testing.T) {
	t.Parallel()
	log := slog.New(slog.DiscardHandler)

	static := confirmationHandler(&config.Config{Steam: config.SteamConfig{GuardCode: "ABCDE"}}, log)
	var submitted string
	handled, err := static.Handle(t.Context(),
		[]steam.Confirmation{{Type: steam.GuardDeviceCode}},
		func(_ context.Context, code string, _ steam.GuardType) error {
			submitted = code
			return nil
		})
	require.NoError(t, err)
	require.True(t, handled)
	require.Equal(t, "ABCDE", submitted)
}

func TestChatOptions(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	require.Len(t, chatOptions(cfg, chatroom.NewMemoryCursorStore()), 5)

	cfg.Steam.ChatGroupID, cfg.Steam.ChatID = 1, 2
	require.Len(t, chatOptions(cfg, chatroom.NewMemoryCursorStore()), 6)
}

func TestWriteRooms(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	writeRooms(&buf, nil)
	require.Equal(t, "No chat rooms found.\n", buf.String())

	buf.Reset()
	writeRooms(&buf, []chatroom.RoomInfo{
		{ChatGroupID: 37830728, ChatID: 130212346, ChatGroupName: "Raiders", ChatName: "General", IsJoined: true},
	})
	require.Equal(t, "37830728/130212346\tRaiders / General (joined)\n", buf.String())
}

func TestWriteGames(t *testing.T) {
	t.Parallel()
	games := make([]steam.GameInfo, 12)
	for i := range games {
		games[i] = steam.GameInfo{AppID: uint32(i + 1), Name: "Game", PlaytimeForever: 5}
	}

	var buf bytes.Buffer
	writeGames(&buf, games, 10)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Equal(t, "Found 12 owned games:", lines[0])
	require.Len(t, lines, 12)
	require.Equal(t, "  ... and 2 more games", lines[11])
	require.Equal(t, "  1. Game (AppID: 1) - 5 minutes played", lines[1])

	buf.Reset()
	writeGames(&buf, games, 0)
	require.NotContains(t, buf.String(), "more games")
}

func TestFormatExpiry(t *testing.T) {
	t.Parallel()
	require.Equal(t, "unknown", formatExpiry(time.Time{}))
	require.Equal(t, "2026-10-19T12:00:00Z", formatExpiry(time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)))
}

// splitWriter hands each Write to the underlying buffer in two halves, so
// unsynchronised callers would interleave mid-line.
type splitWriter struct {
	buf *bytes.Buffer
}

func (s splitWriter) Write(p []byte) (int, error) {
	half := len(p) / 2
	s.buf.Write(p[:half])
	runtime.Gosched()
	s.buf.Write(p[half:])
	return len(p), nil
}

func TestJSONLinesConcurrentWriters(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	out := &jsonLines{w: splitWriter{buf: &buf}}

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 25 {
				require.NoError(t, out.write(map[string]int{"listener": i}))
			}
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 200)
	for _, line := range lines {
		var v map[string]int
		require.NoError(t, json.Unmarshal([]byte(line), &v), line)
	}
}
