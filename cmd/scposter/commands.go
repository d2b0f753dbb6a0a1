package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/edgard/scposter/internal/chatroom"
	"github.com/edgard/scposter/internal/database"
	"github.com/edgard/scposter/internal/steam"
	"github.com/edgard/scposter/internal/steamid"
)

var (
	sendGroup    uint64
	sendChat     uint64
	sendEcho     bool
	sendMentions []string
	sendAll      bool
	sendHere     bool

	deleteOlderThan time.Duration
	listenFriends   bool
	gamesLimit      int
)

// deleteBatch bounds a single DeleteChatMessages request.
const deleteBatch = 50

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List the chat rooms the account belongs to",
	Args:  cobra.NoArgs,
	RunE:  runRooms,
}

var sendCmd = &cobra.Command{
	Use:   "send [message]",
	Short: "Send a message to a group chat room",
	Long: `Sends a message to the room given by --group/--chat, or to CHAT_GROUP_ID/CHAT_ID.
Sent messages are recorded so "scposter delete" can remove them later.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete previously sent messages",
	Args:  cobra.NoArgs,
	RunE:  runDelete,
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Print incoming group messages as JSON lines",
	Args:  cobra.NoArgs,
	RunE:  runListen,
}

var gamesCmd = &cobra.Command{
	Use:   "games",
	Short: "List the games the account owns",
	Args:  cobra.NoArgs,
	RunE:  runGames,
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Log on and check that the session can reach Steam",
	Args:  cobra.NoArgs,
	RunE:  runPing,
}

func runRooms(cmd *cobra.Command, _ []string) error {
	a, err := connect(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	rooms, err := a.chat.MyChatRooms(cmd.Context())
	if err != nil {
		return fmt.Errorf("list chat rooms: %w", err)
	}
	writeRooms(cmd.OutOrStdout(), rooms)
	return nil
}

func writeRooms(w io.Writer, rooms []chatroom.RoomInfo) {
	if len(rooms) == 0 {
		fmt.Fprintln(w, "No chat rooms found.")
		return
	}
	for _, r := range rooms {
		joined := ""
		if r.IsJoined {
			joined = " (joined)"
		}
		fmt.Fprintf(w, "%d/%d\t%s / %s%s\n", r.ChatGroupID, r.ChatID, r.ChatGroupName, r.ChatName, joined)
	}
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	group, chat, err := resolveRoom(cfg, sendGroup, sendChat)
	if err != nil {
		return err
	}
	message, err := composeMessage(strings.Join(args, " "), sendMentions, sendAll, sendHere)
	if err != nil {
		return err
	}

	a, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	params := chatroom.NewSendGroupMessageParams(group, chat, message).WithEchoToSender(sendEcho)
	sent, err := a.chat.SendGroupMessage(ctx, params)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	if sent.Identified() {
		record := &database.SentMessage{
			CreatedAt:       time.Now().UTC(),
			GroupID:         group,
			ChatID:          chat,
			OriginalMessage: sent.OriginalMessage,
			ModifiedMessage: sent.ModifiedMessage,
			ServerTimestamp: *sent.ServerTimestamp,
			Ordinal:         *sent.Ordinal,
		}
		if err := a.store.SaveSentMessage(ctx, record); err != nil {
			log.Warn("Message sent but not recorded", "error", err)
		}
	} else {
		log.Warn("Message sent without ordinal; it cannot be deleted later")
	}

	return writeJSON(cmd.OutOrStdout(), sent)
}

// composeMessage appends the requested mentions to text.
func composeMessage(text string, mentions []string, all, here bool) (string, error) {
	ids := make([]steamid.ID, 0, len(mentions))
	for _, m := range mentions {
		id, err := chatroom.ParseSteamID(m)
		if err != nil {
			return "", fmt.Errorf("invalid --mention %q: %w", m, err)
		}
		ids = append(ids, id)
	}

	text = chatroom.MessageWithMentions(text, ids)
	if all {
		text = chatroom.MessageWithAllMention(text)
	}
	if here {
		text = chatroom.MessageWithHereMention(text)
	}
	return text, nil
}

func runDelete(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	group, chat, err := resolveRoom(cfg, sendGroup, sendChat)
	if err != nil {
		return err
	}

	a, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	before := uint32(time.Now().Add(-deleteOlderThan).Unix())
	total := 0
	for {
		pending, err := a.store.PendingSentMessages(ctx, group, chat, before, deleteBatch)
		if err != nil {
			return fmt.Errorf("list sent messages: %w", err)
		}
		if len(pending) == 0 {
			break
		}

		refs := lo.Map(pending, func(m database.SentMessage, _ int) chatroom.MessageRef {
			return chatroom.MessageRef{ServerTimestamp: m.ServerTimestamp, Ordinal: m.Ordinal}
		})
		err = a.chat.DeleteGroupMessages(ctx, group, chat, refs)
		if err != nil && !steam.IsAPIResult(err, steam.ResultFileNotFound) && !steam.IsAPIResult(err, steam.ResultNoMatch) {
			return fmt.Errorf("delete messages: %w", err)
		}

		ids := lo.Map(pending, func(m database.SentMessage, _ int) int64 { return m.ID })
		if err := a.store.MarkSentMessagesDeleted(ctx, ids); err != nil {
			return fmt.Errorf("mark messages deleted: %w", err)
		}
		total += len(ids)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d message(s) from %d/%d.\n", total, group, chat)
	return nil
}

func runListen(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	out := &jsonLines{w: cmd.OutOrStdout()}
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.chat.ListenForGroupMessagesWith(gCtx, func(msg chatroom.GroupMessage) error {
			return out.write(msg)
		})
	})
	if listenFriends {
		g.Go(func() error {
			return a.chat.ListenForFriendMessagesWith(gCtx, func(msg chatroom.FriendMessage) error {
				return out.write(msg)
			})
		})
	}

	log.Info("Listening for messages, press Ctrl+C to stop")
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

func runGames(cmd *cobra.Command, _ []string) error {
	a, err := connect(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	games, err := a.session.OwnedGames(cmd.Context())
	if err != nil {
		return fmt.Errorf("fetch owned games: %w", err)
	}
	writeGames(cmd.OutOrStdout(), games, gamesLimit)
	return nil
}

func writeGames(w io.Writer, games []steam.GameInfo, limit int) {
	fmt.Fprintf(w, "Found %d owned games:\n", len(games))
	shown := games
	if limit > 0 && len(games) > limit {
		shown = games[:limit]
	}
	for i, game := range shown {
		fmt.Fprintf(w, "  %d. %s\n", i+1, game)
	}
	if rest := len(games) - len(shown); rest > 0 {
		fmt.Fprintf(w, "  ... and %d more games\n", rest)
	}
}

func runPing(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	start := time.Now()
	if err := a.session.Ping(ctx); err != nil {
		inv := steam.Classify(err)
		return fmt.Errorf("connection test failed (%s): %w", inv.Description, err)
	}

	snap := a.session.Snapshot()
	fmt.Fprintf(cmd.OutOrStdout(), "OK %s as %s in %s (token valid until %s)\n",
		snap.SteamID.Steam3(), snap.AccountName, time.Since(start).Round(time.Millisecond),
		formatExpiry(snap.AccessTokenExpiry))
	return nil
}

// formatExpiry renders a token expiry, which is zero when the token carried none.
func formatExpiry(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Format(time.RFC3339)
}

// jsonLines serializes writers from several listeners onto one output.
type jsonLines struct {
	mu sync.Mutex
	w  io.Writer
}

func (j *jsonLines) write(v any) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return writeJSON(j.w, v)
}

func writeJSON(w io.Writer, v any) error {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
