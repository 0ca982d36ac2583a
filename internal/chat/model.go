package chat

import "time"

// MessageTTL is fixed: every message expires a day after it was written.
const MessageTTL = 24 * time.Hour

// ---------------------------------------------
// 🗄️ Database Models
// ---------------------------------------------

// Message is one row of the messages table. Content is either legacy
// plaintext or an ENC: blob produced by roomcrypto.
type Message struct {
	ID          string    `json:"id"`
	Content     string    `json:"content"`
	AuthorID    int       `json:"author_id"`
	AuthorName  string    `json:"author_name"`
	IsAnonymous bool      `json:"is_anonymous"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	IsDeleted   bool      `json:"is_deleted"`
}

// Live reports whether the row may still be shown to anyone at now.
func (m *Message) Live(now time.Time) bool {
	return !m.IsDeleted && now.Before(m.ExpiresAt)
}

// ---------------------------------------------
// ⚡ Feed Models
// ---------------------------------------------

type EventKind string

const (
	EventInsert EventKind = "insert"
	EventDelete EventKind = "delete"
)

// Event travels over the change feed. Inserts carry the full row, deletes
// only the id.
type Event struct {
	Kind    EventKind `json:"kind"`
	Message *Message  `json:"message,omitempty"`
	ID      string    `json:"id,omitempty"`
}

// ---------------------------------------------
// 🔌 Websocket Frames
// ---------------------------------------------

// InboundFrame is what the browser sends us.
type InboundFrame struct {
	Type    string `json:"type"` // join, send, delete, rename, leave
	Key     string `json:"key,omitempty"`
	Content string `json:"content,omitempty"`
	ID      string `json:"id,omitempty"`
}

// OutboundFrame is everything we push back. Unused fields are omitted.
type OutboundFrame struct {
	Type        string     `json:"type"`
	ID          string     `json:"id,omitempty"`
	Content     string     `json:"content,omitempty"`
	AuthorName  string     `json:"author_name,omitempty"`
	IsAnonymous bool       `json:"is_anonymous,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	DisplayName string     `json:"display_name,omitempty"`
	Reason      string     `json:"reason,omitempty"`
}

func messageFrame(d Delivery) OutboundFrame {
	return OutboundFrame{
		Type:        "message",
		ID:          d.ID,
		Content:     d.Content,
		AuthorName:  d.AuthorName,
		IsAnonymous: d.IsAnonymous,
		CreatedAt:   &d.CreatedAt,
		ExpiresAt:   &d.ExpiresAt,
	}
}
