// Command history inspects and edits a chat's history directly in the
// configured store. It reads the same environment as the server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/tleguede/esgis-chatbot/internal/config"
	"github.com/tleguede/esgis-chatbot/internal/models"
	"github.com/tleguede/esgis-chatbot/internal/store"
)

func main() {
	chatID := flag.Int64("chat", 0, "Chat ID")
	limit := flag.Int("limit", 0, "Show at most this many recent messages (0 = all)")
	reset := flag.Bool("reset", false, "Reset the chat's history before anything else")
	say := flag.String("say", "", "Save this message before printing the history")
	as := flag.String("as", "user", "Sender of -say: user or bot")
	user := flag.String("user", "cli", "Username for -say when sending as user")
	verbose := flag.Bool("v", false, "Log store activity to stderr")
	flag.Parse()

	if *chatID == 0 {
		fmt.Fprintln(os.Stderr, "Usage: history -chat <id> [-limit n] [-reset] [-say <text> [-as user|bot] [-user name]]")
		os.Exit(1)
	}

	sender := models.Sender(*as)
	if !sender.Valid() {
		fmt.Fprintf(os.Stderr, "Invalid sender %q: must be user or bot\n", *as)
		os.Exit(1)
	}

	logger := zerolog.Nop()
	if *verbose {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	}

	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if cfg.StoreBackend == config.BackendPostgres {
		if err := store.RunMigrations(ctx, cfg.DatabaseURL); err != nil {
			fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
			os.Exit(1)
		}
	}

	s, err := store.Open(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer s.Close()

	if err := run(ctx, s, *chatID, *limit, *reset, *say, sender, *user); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		s.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, s store.ConversationStore, chatID int64, limit int, reset bool, say string, sender models.Sender, username string) error {
	if reset {
		if err := s.ResetHistory(ctx, chatID); err != nil {
			return fmt.Errorf("reset failed: %w", err)
		}
	}

	if say != "" {
		var err error
		if sender == models.SenderBot {
			err = s.SaveBotMessage(ctx, chatID, say)
		} else {
			err = s.SaveUserMessage(ctx, chatID, username, say)
		}
		if err != nil {
			return fmt.Errorf("save failed: %w", err)
		}
	}

	history := s.GetHistory(ctx, chatID, limit)
	if history.Degraded {
		return fmt.Errorf("history unavailable for chat %d", chatID)
	}

	for _, msg := range history.Messages {
		name := msg.Username
		if msg.Sender == models.SenderBot || name == "" {
			name = string(msg.Sender)
		}
		fmt.Printf("%s  %-12s %s\n", msg.Timestamp.UTC().Format(time.RFC3339), name, msg.Content)
	}
	return nil
}
