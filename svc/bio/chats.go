package bio

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/biogen/pkg/docstore"
)

// ChatStore persists per-user chat threads and their messages. Writes are
// best-effort context for the user: generation itself never depends on a
// chat read.
type ChatStore struct {
	store docstore.Store
	now   func() time.Time
}

// NewChatStore creates a chat store over the document store.
func NewChatStore(store docstore.Store) *ChatStore {
	if store == nil {
		panic("bio: document store is required")
	}
	return &ChatStore{store: store, now: time.Now}
}

func chatPath(userID, chatID string) string {
	return "users/" + userID + "/chats/" + chatID
}

func messagePath(userID, chatID, messageID string) string {
	return chatPath(userID, chatID) + "/messages/" + messageID
}

// NewChatID allocates an id for a fresh chat thread.
func (c *ChatStore) NewChatID() string {
	return uuid.NewString()
}

// AppendMessage adds a message to a chat. Role is "user" or "ai".
func (c *ChatStore) AppendMessage(ctx context.Context, userID, chatID, role, text string) error {
	return c.store.Set(ctx, messagePath(userID, chatID, uuid.NewString()), map[string]any{
		"role":      role,
		"text":      text,
		"createdAt": c.now().UTC(),
	}, true)
}

// Touch updates the chat's summary fields after a completed exchange. The
// title is only written when non-empty, so existing titles survive.
func (c *ChatStore) Touch(ctx context.Context, userID, chatID, lastMessage, title string) error {
	lastMessage = truncateRunes(lastMessage, 100)
	fields := map[string]any{
		"lastUpdated": c.now().UTC(),
		"lastMessage": lastMessage,
	}
	if title != "" {
		fields["title"] = title
	}
	return c.store.Set(ctx, chatPath(userID, chatID), fields, true)
}
