// Package thread owns conversation state: messages, threads, and the
// persisted thread collection. The collection is read and written as a whole
// snapshot on each mutation; persistence is best-effort and never blocks the
// conversation.
package thread

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Message is a single chat message. Immutable once created.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// NewMessage creates a message with a fresh identity and timestamp.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// Thread is one conversation thread.
type Thread struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewThread creates an empty thread.
func NewThread(title string) *Thread {
	now := time.Now().UTC()
	return &Thread{
		ID:        uuid.New().String(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append adds a message to the thread.
func (t *Thread) Append(msg Message) {
	t.Messages = append(t.Messages, msg)
	t.UpdatedAt = time.Now().UTC()
}

// Clone returns a deep copy of the thread.
func (t *Thread) Clone() *Thread {
	cp := *t
	cp.Messages = make([]Message, len(t.Messages))
	copy(cp.Messages, t.Messages)
	return &cp
}

// Store persists the full thread collection as a snapshot. Implementations
// must treat Save as atomic with respect to Load: a reader sees either the
// previous snapshot or the new one, never a partial write.
type Store interface {
	Load(ctx context.Context) ([]*Thread, error)
	Save(ctx context.Context, threads []*Thread) error
}
