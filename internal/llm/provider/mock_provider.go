package provider

import (
	"context"
	"strings"
)

// MockProvider emits a fixed token sequence. Useful in tests and for running
// the API without credentials (LLM_PROVIDER=mock).
type MockProvider struct {
	Tokens []string
	Err    error
}

func NewMockProvider(tokens []string, err error) *MockProvider {
	if tokens == nil {
		tokens = []string{"Hello,", " this is a mock draft reply.", " Best regards."}
	}
	return &MockProvider{Tokens: tokens, Err: err}
}

func (p *MockProvider) Name() string { return "mock" }

func (p *MockProvider) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	if p.Err != nil {
		return "", p.Err
	}
	return strings.Join(p.Tokens, ""), nil
}

func (p *MockProvider) GenerateStream(ctx context.Context, prompt string, opts Options, onToken func(string)) (string, error) {
	if p.Err != nil {
		return "", p.Err
	}
	var full strings.Builder
	for _, tok := range p.Tokens {
		if ctx.Err() != nil {
			return full.String(), ctx.Err()
		}
		full.WriteString(tok)
		if onToken != nil {
			onToken(tok)
		}
	}
	return full.String(), nil
}
