package mailbox

import (
	"context"
	"errors"
)

var (
	ErrMessageNotFound = errors.New("mailbox message not found")
	ErrMailboxReject   = errors.New("mailbox provider rejected the request")
)

// Attachment describes a file attached to a message. Payload bytes are never
// carried here; only metadata survives into persisted snapshots.
type Attachment struct {
	Filename  string `json:"filename"`
	MimeType  string `json:"mimeType"`
	Size      int64  `json:"size"`
	ContentID string `json:"contentId,omitempty"`
	Inline    bool   `json:"inline,omitempty"`
}

// MessageContext is the slice of a mailbox message a draft is generated
// against. It is persisted on the draft as its context snapshot.
type MessageContext struct {
	Subject     string       `json:"subject"`
	From        string       `json:"from"`
	To          string       `json:"to"`
	Body        string       `json:"body"`
	BodyHTML    string       `json:"bodyHtml,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

type ThreadSummary struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Snippet string `json:"snippet"`
	From    string `json:"from"`
	To      string `json:"to"`
}

type Message struct {
	ID          string       `json:"id"`
	ThreadID    string       `json:"threadId"`
	Subject     string       `json:"subject"`
	From        string       `json:"from"`
	To          string       `json:"to"`
	Date        string       `json:"date"`
	Snippet     string       `json:"snippet"`
	Body        string       `json:"body"`
	BodyHTML    string       `json:"html,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

type Thread struct {
	ID       string    `json:"id"`
	Subject  string    `json:"subject"`
	Messages []Message `json:"messages"`
}

// Reader is the read side of the mailbox collaborator.
type Reader interface {
	ListThreads(ctx context.Context, userID string, maxResults int) ([]ThreadSummary, error)
	GetThread(ctx context.Context, userID, threadID string) (*Thread, error)
	GetMessageContext(ctx context.Context, userID, threadID, messageID string) (*MessageContext, error)
}

// Deliverer hands a composed RFC 2822 message to the external delivery
// channel and returns the provider's message id.
type Deliverer interface {
	Deliver(ctx context.Context, userID string, raw []byte) (string, error)
}
