package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/draftly/draftly/internal/draft/domain"
	"github.com/draftly/draftly/internal/draft/repository"
	"github.com/draftly/draftly/internal/llm/prompt"
	"github.com/draftly/draftly/internal/llm/provider"
	"github.com/draftly/draftly/internal/mailbox"
)

// GenerateInput identifies the message a reply is generated for.
type GenerateInput struct {
	UserID    string
	ThreadID  string
	MessageID string
	Tone      string
}

// Service orchestrates draft generation: it fetches mailbox context, builds a
// bounded prompt, dispatches to the generation backend and persists the
// result through the draft repository's idempotent upsert.
type Service struct {
	drafts   repository.DraftRepository
	mailbox  mailbox.Reader
	provider provider.Provider
	logger   *slog.Logger
}

func NewService(
	drafts repository.DraftRepository,
	reader mailbox.Reader,
	llm provider.Provider,
	logger *slog.Logger,
) *Service {
	return &Service{
		drafts:   drafts,
		mailbox:  reader,
		provider: llm,
		logger:   logger.With("service", "draft_app"),
	}
}

// Generate runs the single-shot pipeline and returns the persisted draft.
func (s *Service) Generate(ctx context.Context, in GenerateInput) (*domain.Draft, error) {
	return s.generate(ctx, in, "single", func(ctx context.Context, promptText, tone string) (string, error) {
		return s.provider.Generate(ctx, promptText, provider.Options{Tone: tone})
	})
}

// GenerateStream runs the streaming pipeline, relaying token deltas to
// onToken in arrival order, and persists the concatenated result once the
// stream completes.
func (s *Service) GenerateStream(ctx context.Context, in GenerateInput, onToken func(delta string)) (*domain.Draft, error) {
	return s.generate(ctx, in, "stream", func(ctx context.Context, promptText, tone string) (string, error) {
		return s.provider.GenerateStream(ctx, promptText, provider.Options{Tone: tone}, onToken)
	})
}

func (s *Service) generate(
	ctx context.Context,
	in GenerateInput,
	mode string,
	produce func(ctx context.Context, promptText, tone string) (string, error),
) (*domain.Draft, error) {
	start := time.Now()
	tone := prompt.NormalizeTone(in.Tone)

	snapshot, err := s.mailbox.GetMessageContext(ctx, in.UserID, in.ThreadID, in.MessageID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to fetch mailbox context",
			"error", err, "user_id", in.UserID, "thread_id", in.ThreadID, "message_id", in.MessageID)
		generationCounter.WithLabelValues(s.provider.Name(), mode, "error_mailbox").Inc()
		return nil, fmt.Errorf("failed to fetch message context: %w", err)
	}

	promptText := prompt.BuildPrompt(*snapshot, tone)

	body, err := produce(ctx, promptText, tone)
	if err != nil {
		s.logger.ErrorContext(ctx, "Generation backend failed",
			"error", err, "provider", s.provider.Name(), "user_id", in.UserID, "message_id", in.MessageID)
		generationCounter.WithLabelValues(s.provider.Name(), mode, "error_provider").Inc()
		return nil, err
	}

	draft, err := s.drafts.UpsertByKey(ctx, &domain.Draft{
		UserID:          in.UserID,
		ThreadID:        in.ThreadID,
		MessageID:       in.MessageID,
		Tone:            tone,
		Prompt:          promptText,
		ContextSnapshot: *snapshot,
		Body:            body,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to persist generated draft",
			"error", err, "user_id", in.UserID, "message_id", in.MessageID)
		generationCounter.WithLabelValues(s.provider.Name(), mode, "error_store").Inc()
		return nil, err
	}

	generationCounter.WithLabelValues(s.provider.Name(), mode, "success").Inc()
	generationDuration.WithLabelValues(s.provider.Name(), mode).Observe(time.Since(start).Seconds())
	s.logger.InfoContext(ctx, "Draft generated", "draft_id", draft.ID, "provider", s.provider.Name(), "mode", mode, "tone", tone)
	return draft, nil
}
