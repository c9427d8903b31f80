// Package main provides the oraculo CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/richinex/oraculo/cli"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	search  bool
	verbose bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "oraculo",
		Short: "Conversational assistant with web, vision and document context",
		Long: `A conversational CLI assistant that augments each turn with extra context
before asking the model:

- web search and URL extraction (explicit or triggered by realtime keywords)
- image descriptions via a vision model
- attached document excerpts

Answers stream to the terminal as they are generated.`,
	}

	rootCmd.PersistentFlags().BoolVarP(&search, "search", "s", false, "Enable web search for every turn")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show verbose output")

	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(sessionsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func chatCmd() *cobra.Command {
	var sessionID string
	var dbPath string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Chat(context.Background(), cli.Options{
				Search:    search,
				SessionID: sessionID,
				DBPath:    dbPath,
				Verbose:   verbose,
			})
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID to resume")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite path for persistence (default: in-memory)")

	return cmd
}

func askCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a single question and exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Ask(context.Background(), args[0], cli.Options{
				Search:  search,
				Verbose: verbose,
			})
		},
	}
	return cmd
}

func sessionsCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List stored chat sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Sessions(context.Background(), cli.Options{DBPath: dbPath})
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", ".oraculo/oraculo.db", "SQLite path to list sessions from")

	return cmd
}
