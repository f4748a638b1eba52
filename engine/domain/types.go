// Package domain defines the core types, sentinel errors, and validation for
// the askdocs pipeline. It acts as the validation gate at pipeline entry points.
package domain

import "time"

// Role tags a conversation message. Providers that only distinguish
// system vs. non-system map everything else to "user".
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is one of the three known roles.
func (r Role) Valid() bool {
	return r == RoleSystem || r == RoleUser || r == RoleAssistant
}

// Message is a single turn in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// System returns a system-role message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User returns a user-role message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Assistant returns an assistant-role message.
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// Conversation is an append-only ordered message sequence. The last message
// before an orchestration run must be the user's question.
type Conversation struct {
	Messages []Message `json:"messages"`
}

// Question returns the content of the trailing user message, or "" if the
// conversation does not end with one.
func (c Conversation) Question() string {
	if len(c.Messages) == 0 {
		return ""
	}
	last := c.Messages[len(c.Messages)-1]
	if last.Role != RoleUser {
		return ""
	}
	return last.Content
}

// Append returns a new Conversation with msg added. The receiver is not
// mutated, so callers can keep their original slice.
func (c Conversation) Append(msg Message) Conversation {
	msgs := make([]Message, 0, len(c.Messages)+1)
	msgs = append(msgs, c.Messages...)
	msgs = append(msgs, msg)
	return Conversation{Messages: msgs}
}

// Document is an uploaded source document after text extraction.
type Document struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Source     string    `json:"source"`
	Text       string    `json:"text"`
	UploadedBy string    `json:"uploaded_by"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Chunk is a bounded text segment of a document, the unit of embedding
// and retrieval.
type Chunk struct {
	Text  string `json:"text"`
	Index int    `json:"index"`
	DocID string `json:"doc_id"`
}
