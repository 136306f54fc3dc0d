package domain

import (
	"strings"
	"time"

	"github.com/draftly/draftly/internal/mailbox"
)

type Status string

const (
	StatusDrafted  Status = "drafted"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusSent     Status = "sent"
)

// Known reports whether the literal is one of the recognized statuses. No
// transition graph is enforced beyond this allow-list; callers may move a
// draft between any two known statuses.
func (s Status) Known() bool {
	switch s {
	case StatusDrafted, StatusApproved, StatusRejected, StatusSent:
		return true
	}
	return false
}

// Draft is a generated, editable reply body tied to one user/thread/message.
// At most one logical draft exists per (UserID, ThreadID, MessageID);
// regeneration overwrites the content fields of the existing row while
// preserving ID and IdempotencyKey.
type Draft struct {
	ID              string                 `json:"id"`
	UserID          string                 `json:"user_id"`
	ThreadID        string                 `json:"thread_id"`
	MessageID       string                 `json:"message_id"`
	Tone            string                 `json:"tone"`
	Prompt          string                 `json:"prompt"`
	ContextSnapshot mailbox.MessageContext `json:"context_snapshot"`
	Body            string                 `json:"body"`
	Status          Status                 `json:"status"`
	IdempotencyKey  string                 `json:"idempotency_key"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

type SendLogStatus string

const (
	SendLogSuccess SendLogStatus = "success"
	SendLogFailed  SendLogStatus = "failed"
)

// SendLog is one numbered, append-only attempt at external delivery of a
// draft. A single success row per draft is the terminal marker of delivery.
type SendLog struct {
	ID           string        `json:"id"`
	DraftID      string        `json:"draft_id"`
	Attempt      int           `json:"attempt"`
	Status       SendLogStatus `json:"status"`
	ErrorCode    *string       `json:"error_code,omitempty"`
	ErrorMessage *string       `json:"error_message,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
}

// SanitizeSnapshot prepares a message context for jsonb persistence:
// attachment payloads are already excluded by the type, and NUL bytes are
// stripped from every text field because Postgres jsonb rejects them.
func SanitizeSnapshot(snap mailbox.MessageContext) mailbox.MessageContext {
	snap.Subject = stripNUL(snap.Subject)
	snap.From = stripNUL(snap.From)
	snap.To = stripNUL(snap.To)
	snap.Body = stripNUL(snap.Body)
	snap.BodyHTML = stripNUL(snap.BodyHTML)
	for i := range snap.Attachments {
		snap.Attachments[i].Filename = stripNUL(snap.Attachments[i].Filename)
	}
	return snap
}

func stripNUL(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}
