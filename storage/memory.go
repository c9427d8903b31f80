// In-memory chat store for ephemeral sessions and tests.

package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements Store with in-process maps. Safe for
// concurrent use. Contents are lost on process exit.
type MemoryStore struct {
	mu       sync.Mutex
	chats    map[string]Chat
	messages map[string][]Message
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		chats:    make(map[string]Chat),
		messages: make(map[string][]Message),
	}
}

// CreateChat creates a new chat.
func (s *MemoryStore) CreateChat(ctx context.Context, title string) (Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	chat := Chat{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.chats[chat.ID] = chat
	return chat, nil
}

// AppendMessage appends a message in insertion order.
func (s *MemoryStore) AppendMessage(ctx context.Context, chatID, role, content string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return Message{}, fmt.Errorf("unknown chat: %s", chatID)
	}

	now := time.Now().UTC()
	msg := Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Role:      role,
		Content:   content,
		CreatedAt: now,
	}
	s.messages[chatID] = append(s.messages[chatID], msg)
	chat.UpdatedAt = now
	s.chats[chatID] = chat
	return msg, nil
}

// PatchChat applies the non-nil patch fields.
func (s *MemoryStore) PatchChat(ctx context.Context, chatID string, patch ChatPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return fmt.Errorf("unknown chat: %s", chatID)
	}
	if patch.Title != nil {
		chat.Title = *patch.Title
	}
	if patch.Archived != nil {
		chat.Archived = *patch.Archived
	}
	if patch.Shared != nil {
		chat.Shared = *patch.Shared
	}
	s.chats[chatID] = chat
	return nil
}

// GetMessages returns a chat's messages in insertion order.
func (s *MemoryStore) GetMessages(ctx context.Context, chatID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages[chatID]
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// ListChats lists chats, most recently updated first.
func (s *MemoryStore) ListChats(ctx context.Context) ([]Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chats := make([]Chat, 0, len(s.chats))
	for _, chat := range s.chats {
		chats = append(chats, chat)
	}
	sort.Slice(chats, func(i, j int) bool {
		return chats[i].UpdatedAt.After(chats[j].UpdatedAt)
	})
	return chats, nil
}

// DeleteChat removes a chat and its messages.
func (s *MemoryStore) DeleteChat(ctx context.Context, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.chats, chatID)
	delete(s.messages, chatID)
	return nil
}

// Verify MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
