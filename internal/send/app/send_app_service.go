package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/draftly/draftly/internal/draft/domain"
	"github.com/draftly/draftly/internal/draft/repository"
	"github.com/draftly/draftly/internal/mailbox"
)

var (
	ErrDraftNotFound    = errors.New("draft not found")
	ErrDraftRejected    = errors.New("draft is rejected and cannot be sent")
	ErrDraftNotApproved = errors.New("draft not approved")
)

// SendFailedError carries the failure log row inserted before the error was
// raised, so no failed attempt is ever silent.
type SendFailedError struct {
	Log   *domain.SendLog
	cause error
}

func (e *SendFailedError) Error() string {
	return fmt.Sprintf("send failed, logged for retry (attempt %d): %v", e.Log.Attempt, e.cause)
}

func (e *SendFailedError) Unwrap() error { return e.cause }

const (
	StatusSent        = "sent"
	StatusAlreadySent = "already_sent"
)

// Result is the outcome of a send invocation.
type Result struct {
	Status            string          `json:"status"`
	Log               *domain.SendLog `json:"log,omitempty"`
	ProviderMessageID string          `json:"provider_message_id,omitempty"`
}

// Service is the at-most-once send pipeline. It is the only writer of
// send_logs and the only component permitted to move a draft into "sent".
type Service struct {
	drafts    repository.DraftRepository
	sendLogs  repository.SendLogRepository
	deliverer mailbox.Deliverer
	logger    *slog.Logger
}

func NewService(
	drafts repository.DraftRepository,
	sendLogs repository.SendLogRepository,
	deliverer mailbox.Deliverer,
	logger *slog.Logger,
) *Service {
	return &Service{
		drafts:    drafts,
		sendLogs:  sendLogs,
		deliverer: deliverer,
		logger:    logger.With("service", "send_app"),
	}
}

// SendDraft dispatches an approved draft to the delivery channel. Retries are
// safe: the success-log check runs before every dispatch, so repeated calls
// either converge on "already_sent" or append numbered failure rows until one
// attempt succeeds. Invoking send on an already-sent draft falls through to
// the idempotency short-circuit rather than erroring, so a client that lost
// the response can retry blindly.
func (s *Service) SendDraft(ctx context.Context, draftID, userID string) (*Result, error) {
	draft, err := s.drafts.GetByIDForUser(ctx, draftID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrDraftNotFound) {
			return nil, ErrDraftNotFound
		}
		return nil, err
	}

	switch {
	case draft.Status == domain.StatusRejected:
		return nil, ErrDraftRejected
	case draft.Status != domain.StatusApproved && draft.Status != domain.StatusSent:
		return nil, ErrDraftNotApproved
	}

	if existing, err := s.sendLogs.LatestSuccess(ctx, draftID); err == nil {
		sendCounter.WithLabelValues("already_sent").Inc()
		return &Result{Status: StatusAlreadySent, Log: existing}, nil
	} else if !errors.Is(err, repository.ErrSendLogNotFound) {
		return nil, err
	}

	attempt, err := s.sendLogs.NextAttempt(ctx, draftID)
	if err != nil {
		return nil, err
	}

	raw := composeMessage(draft)

	s.logger.InfoContext(ctx, "Dispatching draft to delivery channel",
		"draft_id", draftID, "user_id", userID, "attempt", attempt)
	start := time.Now()
	providerMessageID, sendErr := s.deliverer.Deliver(ctx, userID, raw)
	deliveryDuration.Observe(time.Since(start).Seconds())

	if sendErr != nil {
		return nil, s.recordFailure(ctx, draftID, attempt, sendErr)
	}
	return s.recordSuccess(ctx, draftID, attempt, providerMessageID)
}

func (s *Service) recordSuccess(ctx context.Context, draftID string, attempt int, providerMessageID string) (*Result, error) {
	log, err := s.sendLogs.Insert(ctx, &domain.SendLog{
		DraftID: draftID,
		Attempt: attempt,
		Status:  domain.SendLogSuccess,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateSuccess) {
			// A concurrent attempt won the race past the idempotency check.
			// The message went out once; report the recorded delivery.
			s.logger.WarnContext(ctx, "Concurrent send already recorded success", "draft_id", draftID)
			existing, lookupErr := s.sendLogs.LatestSuccess(ctx, draftID)
			if lookupErr != nil {
				return nil, lookupErr
			}
			sendCounter.WithLabelValues("already_sent").Inc()
			return &Result{Status: StatusAlreadySent, Log: existing}, nil
		}
		s.logger.ErrorContext(ctx, "Failed to record send success", "error", err, "draft_id", draftID)
		return nil, err
	}

	if _, err := s.drafts.SetStatus(ctx, draftID, domain.StatusSent); err != nil {
		// The success row is the terminal marker; a failed status write does
		// not un-send the message. Log and report delivery.
		s.logger.ErrorContext(ctx, "Delivered but failed to mark draft sent", "error", err, "draft_id", draftID)
	}

	sendCounter.WithLabelValues("sent").Inc()
	s.logger.InfoContext(ctx, "Draft sent", "draft_id", draftID, "attempt", attempt, "provider_message_id", providerMessageID)
	return &Result{Status: StatusSent, Log: log, ProviderMessageID: providerMessageID}, nil
}

func (s *Service) recordFailure(ctx context.Context, draftID string, attempt int, sendErr error) error {
	errCode := "SEND_ERROR"
	errMsg := sendErr.Error()
	log, insertErr := s.sendLogs.Insert(ctx, &domain.SendLog{
		DraftID:      draftID,
		Attempt:      attempt,
		Status:       domain.SendLogFailed,
		ErrorCode:    &errCode,
		ErrorMessage: &errMsg,
	})
	if insertErr != nil {
		s.logger.ErrorContext(ctx, "Failed to record send failure", "error", insertErr, "draft_id", draftID, "send_error", sendErr)
		return insertErr
	}

	sendCounter.WithLabelValues("failed").Inc()
	s.logger.WarnContext(ctx, "Send attempt failed",
		"draft_id", draftID, "attempt", attempt, "error", sendErr)
	return &SendFailedError{Log: log, cause: sendErr}
}

// composeMessage builds the raw RFC 2822 wire message from the draft's
// context snapshot and body.
func composeMessage(draft *domain.Draft) []byte {
	msg := fmt.Sprintf("From: me\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n%s",
		draft.ContextSnapshot.To, draft.ContextSnapshot.Subject, draft.Body)
	return []byte(msg)
}
