package prompt

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/draftly/draftly/internal/mailbox"
)

func TestNormalizeTone(t *testing.T) {
	tests := []struct {
		requested string
		want      string
	}{
		{"neutral", "concise"},
		{"unknown", "concise"},
		{"", "concise"},
		{"formal", "formal"},
		{"friendly", "friendly"},
		{"concise", "concise"},
		{"FORMAL", "concise"}, // allow-list is case-sensitive
	}
	for _, tt := range tests {
		t.Run(tt.requested, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTone(tt.requested))
		})
	}
}

func TestBuildPrompt_Interpolation(t *testing.T) {
	snap := mailbox.MessageContext{
		Subject: "Quarterly review",
		From:    "boss@example.com",
		To:      "me@example.com",
		Body:    "Can we meet Thursday?",
	}
	p := BuildPrompt(snap, "formal")

	assert.Contains(t, p, "Subject: Quarterly review")
	assert.Contains(t, p, "From: boss@example.com")
	assert.Contains(t, p, "To: me@example.com")
	assert.Contains(t, p, "Preferred Tone: formal")
	assert.Contains(t, p, "Email Body: > Can we meet Thursday?")
}

func TestBuildPrompt_TruncatesLongBody(t *testing.T) {
	snap := mailbox.MessageContext{
		Subject: "s",
		Body:    strings.Repeat("a", 5000),
	}
	p := BuildPrompt(snap, "concise")

	assert.Contains(t, p, strings.Repeat("a", maxContextBodyChars))
	assert.NotContains(t, p, strings.Repeat("a", maxContextBodyChars+1))
}

func TestBuildPrompt_TruncatesOnRuneBoundary(t *testing.T) {
	// A multi-byte rune straddling the cut point must survive whole, not be
	// split into invalid UTF-8.
	snap := mailbox.MessageContext{
		Body: strings.Repeat("a", maxContextBodyChars-1) + "é" + strings.Repeat("b", 100),
	}
	p := BuildPrompt(snap, "concise")

	assert.True(t, utf8.ValidString(p), "prompt must remain valid UTF-8 after truncation")
	assert.Contains(t, p, "é")
	assert.NotContains(t, p, "bb")
}

func TestBuildPrompt_CapCountsCharactersNotBytes(t *testing.T) {
	// 2000 two-byte runes exceed the cap in bytes but not in characters.
	snap := mailbox.MessageContext{Body: strings.Repeat("é", maxContextBodyChars)}
	p := BuildPrompt(snap, "concise")

	assert.Contains(t, p, strings.Repeat("é", maxContextBodyChars))
}

func TestBuildPrompt_EmptyFieldsDegrade(t *testing.T) {
	p := BuildPrompt(mailbox.MessageContext{}, "concise")

	assert.Contains(t, p, "Subject: \n")
	assert.Contains(t, p, "Email Body: > ")
}
