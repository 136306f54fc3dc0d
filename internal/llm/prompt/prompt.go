package prompt

import (
	"fmt"

	"github.com/draftly/draftly/internal/mailbox"
)

// Tones the generation pipeline accepts. Anything else falls back to concise.
const (
	ToneFormal   = "formal"
	ToneConcise  = "concise"
	ToneFriendly = "friendly"
)

// maxContextBodyChars bounds the original message body interpolated into the
// prompt, keeping backend latency and cost in check.
const maxContextBodyChars = 2000

// NormalizeTone maps the legacy synonym "neutral" to "concise" and any
// unrecognized or absent tone to "concise".
func NormalizeTone(requested string) string {
	if requested == "neutral" {
		return ToneConcise
	}
	switch requested {
	case ToneFormal, ToneConcise, ToneFriendly:
		return requested
	}
	return ToneConcise
}

const replyTemplate = `I want you to act as my professional communications assistant. I will provide you with an Email Body (the message I received) and my Preferred Tone.
Your task is to:
Analyze the sender's main questions or requests.
Draft a reply that addresses all points clearly and concisely.
Ensure the draft matches the requested tone exactly (e.g., if 'Casual,' use natural contractions and friendly language; if 'Formal,' use professional syntax and greetings).
No need to include the subject again in the reply.
Include an appropriate greeting (salutation) and a closing (sign-off) based on the preferred tone.
Here are the required email details for drafting the response:
Subject: %s
From: %s
To: %s
Preferred Tone: %s
Email Body: > %s`

// BuildPrompt fills the reply template from the message context. Empty fields
// interpolate as empty strings; the source body is truncated to the character
// cap before interpolation.
func BuildPrompt(snap mailbox.MessageContext, tone string) string {
	body := snap.Body
	// The cap counts characters, not bytes; a byte slice could split a
	// multi-byte rune and leave invalid UTF-8 in the prompt.
	if runes := []rune(body); len(runes) > maxContextBodyChars {
		body = string(runes[:maxContextBodyChars])
	}
	return fmt.Sprintf(replyTemplate, snap.Subject, snap.From, snap.To, tone, body)
}
