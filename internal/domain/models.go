// Package domain defines the core domain models for the training backend.
package domain

import "time"

// TimeLayout is the wall-clock format persisted for message timestamps.
// Second resolution, local time.
const TimeLayout = "2006-01-02 15:04:05"

// Persona identifies which assistant a turn is addressed to.
type Persona string

const (
	PersonaRed  Persona = "red"
	PersonaBlue Persona = "blue"
)

// Valid reports whether p names a known persona.
func (p Persona) Valid() bool {
	return p == PersonaRed || p == PersonaBlue
}

// Source labels attached to assistant messages. Stats bucketing matches
// on the 红/蓝 markers inside these labels.
const (
	SourceRed  = "红方魔鬼导师"
	SourceBlue = "蓝方心理教练"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Session represents one durable training conversation.
type Session struct {
	ID               string    `json:"id"`
	RedSID           string    `json:"red_sid,omitempty"`
	BlueSID          string    `json:"blue_sid,omitempty"`
	KnowledgeFileIDs []string  `json:"knowledge_file_ids,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Message is a single immutable turn within a session.
type Message struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"` // user, assistant
	Source    string    `json:"source,omitempty"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// KnowledgeFile is the local registry row for a document registered with
// the remote knowledge base. FileID is the only durable handle.
type KnowledgeFile struct {
	ID         int64     `json:"id"`
	FileID     string    `json:"file_id"`
	FileName   string    `json:"file_name"`
	FileType   string    `json:"file_type"`
	FileSize   int64     `json:"file_size,omitempty"`
	Content    string    `json:"content,omitempty"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// SessionStats summarizes a session's transcript.
type SessionStats struct {
	Total     int `json:"total"`
	User      int `json:"user"`
	Assistant int `json:"assistant"`
	Red       int `json:"red"`
	Blue      int `json:"blue"`
}

// ChatMessage is a role/content pair on the wire to the assistants.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TurnResult is the outcome of one orchestrated user turn.
type TurnResult struct {
	SessionID string  `json:"session_id"`
	Persona   Persona `json:"persona"`
	Reply     string  `json:"reply"`
	Source    string  `json:"source"`
	Round     int     `json:"round"`
	// Warning carries a non-fatal knowledge-base failure, if any.
	Warning string `json:"warning,omitempty"`
}
