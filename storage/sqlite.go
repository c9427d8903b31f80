// SQLite chat store.
//
// Schema and connection management are encapsulated here; sql.DB's
// connection pooling makes the store safe for concurrent use.

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SqliteStore implements Store using a SQLite database file.
type SqliteStore struct {
	db *sql.DB
}

// OpenSqlite opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string) (*SqliteStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	store := &SqliteStore{db: db}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// NewSqliteInMemory creates an in-memory database (useful for testing).
func NewSqliteInMemory() (*SqliteStore, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}

	store := &SqliteStore{db: db}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *SqliteStore) Close() error {
	return s.db.Close()
}

func (s *SqliteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS chats (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			archived INTEGER NOT NULL DEFAULT 0,
			shared INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS messages (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			chat_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY (chat_id) REFERENCES chats(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateChat creates a new chat.
func (s *SqliteStore) CreateChat(ctx context.Context, title string) (Chat, error) {
	now := time.Now().UTC()
	chat := Chat{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (id, title, archived, shared, created_at, updated_at) VALUES (?, ?, 0, 0, ?, ?)`,
		chat.ID, chat.Title, now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Chat{}, fmt.Errorf("create chat: %w", err)
	}
	return chat, nil
}

// AppendMessage appends a message in insertion order.
func (s *SqliteStore) AppendMessage(ctx context.Context, chatID, role, content string) (Message, error) {
	now := time.Now().UTC()
	msg := Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Role:      role,
		Content:   content,
		CreatedAt: now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, chat_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, chatID, role, content, now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Message{}, fmt.Errorf("append message: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE chats SET updated_at = ? WHERE id = ?`,
		now.Format(time.RFC3339Nano), chatID,
	)
	if err != nil {
		return Message{}, fmt.Errorf("touch chat: %w", err)
	}
	return msg, nil
}

// PatchChat applies the non-nil patch fields.
func (s *SqliteStore) PatchChat(ctx context.Context, chatID string, patch ChatPatch) error {
	if patch.Title != nil {
		if _, err := s.db.ExecContext(ctx, `UPDATE chats SET title = ? WHERE id = ?`, *patch.Title, chatID); err != nil {
			return fmt.Errorf("patch chat title: %w", err)
		}
	}
	if patch.Archived != nil {
		if _, err := s.db.ExecContext(ctx, `UPDATE chats SET archived = ? WHERE id = ?`, boolToInt(*patch.Archived), chatID); err != nil {
			return fmt.Errorf("patch chat archived: %w", err)
		}
	}
	if patch.Shared != nil {
		if _, err := s.db.ExecContext(ctx, `UPDATE chats SET shared = ? WHERE id = ?`, boolToInt(*patch.Shared), chatID); err != nil {
			return fmt.Errorf("patch chat shared: %w", err)
		}
	}
	return nil
}

// GetMessages returns a chat's messages in insertion order.
func (s *SqliteStore) GetMessages(ctx context.Context, chatID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, role, content, created_at FROM messages WHERE chat_id = ? ORDER BY seq`,
		chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var msg Message
		var createdAt string
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.Role, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// ListChats lists chats, most recently updated first.
func (s *SqliteStore) ListChats(ctx context.Context) ([]Chat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, archived, shared, created_at, updated_at FROM chats ORDER BY updated_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	chats := []Chat{}
	for rows.Next() {
		var chat Chat
		var archived, shared int
		var createdAt, updatedAt string
		if err := rows.Scan(&chat.ID, &chat.Title, &archived, &shared, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chat.Archived = archived != 0
		chat.Shared = shared != 0
		chat.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		chat.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

// DeleteChat removes a chat and its messages.
func (s *SqliteStore) DeleteChat(ctx context.Context, chatID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("delete chat messages: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, chatID); err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Verify SqliteStore implements Store
var _ Store = (*SqliteStore)(nil)
