package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrProvider classifies transport or backend failures of a generation call.
// No retry happens inside this layer; retry policy belongs to callers.
var ErrProvider = errors.New("generation provider error")

// Options carries per-call generation parameters.
type Options struct {
	Tone string
}

// Provider is the capability every generation backend exposes. GenerateStream
// invokes onToken zero or more times with text deltas in generation order and
// returns the fully concatenated text. Backends that only support single-shot
// generation satisfy GenerateStream via SingleShotStream; callers must not
// assume more than one token event will occur.
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
	GenerateStream(ctx context.Context, prompt string, opts Options, onToken func(delta string)) (string, error)
}

// SingleShotStream adapts a single-shot Generate into the streaming contract
// by delivering the entire result as one token event.
func SingleShotStream(ctx context.Context, p Provider, prompt string, opts Options, onToken func(string)) (string, error) {
	full, err := p.Generate(ctx, prompt, opts)
	if err != nil {
		return "", err
	}
	if onToken != nil && ctx.Err() == nil {
		onToken(full)
	}
	return full, nil
}

// New selects a backend by runtime key. Providers are stateless aside from
// held credentials, so one instance per process is enough.
func New(name, apiKey string, logger *slog.Logger) (Provider, error) {
	switch name {
	case "openai":
		return NewOpenAIProvider(logger, defaultOpenAIBaseURL, apiKey, nil), nil
	case "gemini":
		return NewGeminiProvider(logger, defaultGeminiBaseURL, apiKey, nil), nil
	case "mock":
		return NewMockProvider(nil, nil), nil
	default:
		return nil, fmt.Errorf("unknown generation provider: %q", name)
	}
}
