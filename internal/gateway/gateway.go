package gateway

import (
	"context"
	"time"
)

// Responder produces the reply batch for one user turn. Client implements it
// against the real backend; DemoResponder implements it offline.
type Responder interface {
	Respond(ctx context.Context, chatID, agentID, content string) (ReplyBatch, error)
}

// Backend is the full client surface a chat session needs.
type Backend interface {
	Responder
	CreateChat(ctx context.Context, agentID string) (Chat, error)
}

// ReplyBatch is the uniform result of one agent turn: the fragments to reveal,
// in order. Normalization guarantees it is never empty.
type ReplyBatch struct {
	AgentID   string
	Fragments []string
}

// Chat is the backend's conversation resource. LastMessage and MessageCount
// are denormalized previews the backend refreshes as messages append.
type Chat struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	AgentID      string    `json:"agentId"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	MessageCount int       `json:"messageCount"`
	LastMessage  string    `json:"lastMessage"`
}

// Message is the backend's wire representation of a stored message.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
