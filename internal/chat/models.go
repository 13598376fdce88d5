package chat

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// SequenceMeta describes a fragment's position inside a multi-fragment
// reply. It is nil on user messages.
type SequenceMeta struct {
	IsMultiMessage bool `json:"is_multi_message"`
	IsFirst        bool `json:"is_first"`
	IsAdditional   bool `json:"is_additional"`
	Index          int  `json:"index"`
	Total          int  `json:"total"`
}

type Message struct {
	ID        string        `json:"id"`
	ChatID    string        `json:"chat_id"`
	Role      Role          `json:"role"`
	Content   string        `json:"content"`
	Timestamp time.Time     `json:"timestamp"`
	Sequence  *SequenceMeta `json:"sequence,omitempty"`
}
