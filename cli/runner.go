// Command execution for CLI commands.
//
// Information Hiding:
// - Collaborator wiring hidden
// - Interactive loop and delta rendering hidden
// - Output formatting hidden

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/richinex/oraculo/augment"
	"github.com/richinex/oraculo/config"
	"github.com/richinex/oraculo/internal/log"
	"github.com/richinex/oraculo/llm"
	"github.com/richinex/oraculo/storage"
	"github.com/richinex/oraculo/transport"
	"github.com/richinex/oraculo/turn"
	"github.com/richinex/oraculo/vision"
	"github.com/richinex/oraculo/web"
)

// Options holds CLI execution options.
type Options struct {
	Search    bool   // enable the explicit web search trigger for every turn
	SessionID string // chat to resume; "" starts a fresh one
	DBPath    string // SQLite path; "" keeps the session in memory
	Verbose   bool
}

// app bundles the wired collaborators for one CLI invocation.
type app struct {
	controller *turn.Controller
	store      storage.Store
	render     *deltaRenderer
	closeStore func() error
}

// Chat starts an interactive chat session.
func Chat(ctx context.Context, opts Options) error {
	a, err := buildApp(opts)
	if err != nil {
		return err
	}
	defer a.close()

	chatID, history, err := a.resumeOrCreate(ctx, opts.SessionID)
	if err != nil {
		return err
	}

	fmt.Println("Chat session started. Type a message, or /exit to quit.")
	if opts.SessionID != "" {
		fmt.Printf("Resumed session %s with %d messages.\n", chatID, len(history))
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "/exit" || input == "/quit" {
			break
		}
		if input == "" {
			continue
		}

		a.render.reset()
		result, err := a.controller.Run(ctx, turn.Input{
			ChatID:        chatID,
			Text:          input,
			History:       history,
			SearchEnabled: opts.Search,
		})
		fmt.Println()
		if err != nil {
			if errors.Is(err, turn.ErrTooSoon) {
				fmt.Println("(please wait a moment between messages)")
				continue
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}

		history = append(history, llm.UserMessage(input), llm.AssistantMessage(result.Text))
		if opts.Verbose && result.Source != "" {
			fmt.Printf("\n[source: %s]\n", result.Source)
		}
	}
	return scanner.Err()
}

// Ask answers a single question and exits.
func Ask(ctx context.Context, question string, opts Options) error {
	a, err := buildApp(opts)
	if err != nil {
		return err
	}
	defer a.close()

	a.render.reset()
	result, err := a.controller.Run(ctx, turn.Input{
		Text:          question,
		SearchEnabled: opts.Search,
	})
	fmt.Println()
	if err != nil {
		return err
	}
	if opts.Verbose && result.Source != "" {
		fmt.Printf("\n[source: %s]\n", result.Source)
	}
	return nil
}

// Sessions lists stored chats.
func Sessions(ctx context.Context, opts Options) error {
	if opts.DBPath == "" {
		return fmt.Errorf("sessions require a database path")
	}
	store, err := storage.OpenSqlite(opts.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	chats, err := store.ListChats(ctx)
	if err != nil {
		return err
	}
	if len(chats) == 0 {
		fmt.Println("No stored sessions.")
		return nil
	}
	for _, chat := range chats {
		flags := ""
		if chat.Archived {
			flags += " [archived]"
		}
		if chat.Shared {
			flags += " [shared]"
		}
		fmt.Printf("%s  %s  %s%s\n", chat.ID, chat.UpdatedAt.Format("2006-01-02 15:04"), chat.Title, flags)
	}
	return nil
}

func buildApp(opts Options) (*app, error) {
	settings, err := config.New()
	if err != nil {
		return nil, err
	}

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level})

	tc := transport.NewClient(settings.Limits.MaxRetries, settings.Limits.BackoffBase, logger)
	streamer := llm.NewStreamClient(tc, settings.Chat, logger)

	var searcher web.Searcher = web.NewHTTPSearcher(tc, settings.Search, logger)
	searcher = web.NewCachedSearcher(searcher, settings.Search.CacheTTL)
	extractor := web.NewPageExtractor(tc, settings.Search, logger)

	visionAug := augment.NewVision(
		vision.NewClient(settings.Vision),
		vision.OptimizeOptions{MaxDim: settings.Limits.MaxImageDim, MaxBytes: settings.Limits.MaxImageBytes},
		settings.Vision.Timeout,
		logger,
	)
	docAug := augment.NewDocuments(settings.Limits.MaxDocCharsFile, settings.Limits.MaxDocCharsTotal)
	webAug := augment.NewWeb(searcher, extractor, settings.Triggers, logger)

	a := &app{render: newDeltaRenderer(os.Stdout)}

	if opts.DBPath != "" {
		sqliteStore, err := storage.OpenSqlite(opts.DBPath)
		if err != nil {
			return nil, err
		}
		a.store = sqliteStore
		a.closeStore = sqliteStore.Close
	} else {
		a.store = storage.NewMemoryStore()
	}

	a.controller = turn.NewController(turn.Options{
		Streamer:  streamer,
		Vision:    visionAug,
		Documents: docAug,
		Web:       webAug,
		Store:     a.store,
		Prompt:    settings.Prompt,
		Limits:    settings.Limits,
		Events: turn.Events{
			OnDelta: a.render.update,
			OnSource: func(source, raw string) {
				logger.Debug("search source available", "source", source)
			},
			OnError: func(kind, message string) {
				logger.Error("turn failed", "kind", kind, "message", message)
			},
		},
		Logger: logger,
	})
	return a, nil
}

func (a *app) close() {
	if a.closeStore != nil {
		if err := a.closeStore(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: closing store: %v\n", err)
		}
	}
}

// resumeOrCreate loads an existing session's history or starts a new chat.
func (a *app) resumeOrCreate(ctx context.Context, sessionID string) (string, []llm.ChatMessage, error) {
	if sessionID != "" {
		messages, err := a.store.GetMessages(ctx, sessionID)
		if err != nil {
			return "", nil, fmt.Errorf("resume session: %w", err)
		}
		history := make([]llm.ChatMessage, 0, len(messages))
		for _, m := range messages {
			history = append(history, llm.ChatMessage{Role: m.Role, Content: m.Content})
		}
		return sessionID, history, nil
	}

	chat, err := a.store.CreateChat(ctx, "cli session")
	if err != nil {
		return "", nil, fmt.Errorf("create session: %w", err)
	}
	return chat.ID, nil, nil
}
