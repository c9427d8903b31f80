// Package storage provides chat persistence.
//
// The orchestrator treats persistence as a best-effort collaborator:
// failures here are logged by the caller and never roll back an
// already-delivered answer. Implementations can swap between SQLite and
// memory without API changes.
package storage

import (
	"context"
	"time"
)

// Chat is one stored conversation.
type Chat struct {
	ID        string
	Title     string
	Archived  bool
	Shared    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is one stored chat message.
type Message struct {
	ID        string
	ChatID    string
	Role      string
	Content   string
	CreatedAt time.Time
}

// ChatPatch updates chat flags; nil fields are left unchanged.
type ChatPatch struct {
	Title    *string
	Archived *bool
	Shared   *bool
}

// Store defines the persistence interface for chats and messages.
type Store interface {
	// CreateChat creates a new chat and returns it.
	CreateChat(ctx context.Context, title string) (Chat, error)

	// AppendMessage appends a message to a chat. Insertion order is
	// semantic order; implementations must preserve it.
	AppendMessage(ctx context.Context, chatID, role, content string) (Message, error)

	// PatchChat applies the non-nil fields of patch to a chat.
	PatchChat(ctx context.Context, chatID string, patch ChatPatch) error

	// GetMessages returns a chat's messages in insertion order.
	// Returns empty slice (not nil) for an unknown chat.
	GetMessages(ctx context.Context, chatID string) ([]Message, error)

	// ListChats lists all chats, most recently updated first.
	ListChats(ctx context.Context) ([]Chat, error)

	// DeleteChat removes a chat and its messages.
	DeleteChat(ctx context.Context, chatID string) error
}
