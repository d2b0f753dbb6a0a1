// Package main is the entrypoint for the scposter command line tool.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/edgard/scposter/internal/config"
	"github.com/edgard/scposter/internal/logger"
)

var (
	// Global flags
	configPath string
	logLevel   string

	cfg *config.Config
	log *slog.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "scposter",
	Short: "Post to and listen on Steam group chats",
	Long: `scposter logs in to Steam with STEAM_ACCOUNT and STEAM_PASSWORD, lists the
chat rooms the account belongs to, posts messages and listens for new ones.

CHAT_GROUP_ID and CHAT_ID select the default room. Other settings come from
config.yaml and SCPOSTER_* environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if cmd.Flags().Changed("log-level") {
			cfg.Logger.Level = logLevel
		}
		log = logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
		log.Debug("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", config.DefaultLogLevel, "Log level (debug, info, warn, error)")

	sendCmd.Flags().Uint64Var(&sendGroup, "group", 0, "Chat group id (default: CHAT_GROUP_ID)")
	sendCmd.Flags().Uint64Var(&sendChat, "chat", 0, "Chat id within the group (default: CHAT_ID)")
	sendCmd.Flags().BoolVar(&sendEcho, "echo", false, "Echo the message back to the sender")
	sendCmd.Flags().StringSliceVar(&sendMentions, "mention", nil, "Steam id to mention (repeatable)")
	sendCmd.Flags().BoolVar(&sendAll, "all", false, "Append an @all mention")
	sendCmd.Flags().BoolVar(&sendHere, "here", false, "Append an @here mention")

	deleteCmd.Flags().Uint64Var(&sendGroup, "group", 0, "Chat group id (default: CHAT_GROUP_ID)")
	deleteCmd.Flags().Uint64Var(&sendChat, "chat", 0, "Chat id within the group (default: CHAT_ID)")
	deleteCmd.Flags().DurationVar(&deleteOlderThan, "older-than", 0, "Only delete posts older than this")

	listenCmd.Flags().BoolVar(&listenFriends, "friends", false, "Also listen for friend messages")

	gamesCmd.Flags().IntVar(&gamesLimit, "limit", 10, "Maximum number of games to print (0 prints all)")

	rootCmd.AddCommand(roomsCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(gamesCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(runCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop() // Ensure context cancellation is signaled before exit
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
