package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/draftly/draftly/internal/draft/domain"
	"github.com/draftly/draftly/internal/draft/repository"
	"github.com/draftly/draftly/internal/mailbox"
)

// --- Mocks ---

type MockDraftRepository struct {
	mock.Mock
}

func (m *MockDraftRepository) UpsertByKey(ctx context.Context, draft *domain.Draft) (*domain.Draft, error) {
	args := m.Called(ctx, draft)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Draft), args.Error(1)
}

func (m *MockDraftRepository) SetBody(ctx context.Context, id, body string) (*domain.Draft, error) {
	args := m.Called(ctx, id, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Draft), args.Error(1)
}

func (m *MockDraftRepository) SetStatus(ctx context.Context, id string, status domain.Status) (*domain.Draft, error) {
	args := m.Called(ctx, id, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Draft), args.Error(1)
}

func (m *MockDraftRepository) GetByID(ctx context.Context, id string) (*domain.Draft, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Draft), args.Error(1)
}

func (m *MockDraftRepository) GetByIDForUser(ctx context.Context, id, userID string) (*domain.Draft, error) {
	args := m.Called(ctx, id, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Draft), args.Error(1)
}

func (m *MockDraftRepository) GetByKey(ctx context.Context, userID, threadID, messageID string) (*domain.Draft, error) {
	args := m.Called(ctx, userID, threadID, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Draft), args.Error(1)
}

func (m *MockDraftRepository) ListByUser(ctx context.Context, userID string) ([]domain.Draft, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Draft), args.Error(1)
}

type MockSendLogRepository struct {
	mock.Mock
}

func (m *MockSendLogRepository) LatestSuccess(ctx context.Context, draftID string) (*domain.SendLog, error) {
	args := m.Called(ctx, draftID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SendLog), args.Error(1)
}

func (m *MockSendLogRepository) NextAttempt(ctx context.Context, draftID string) (int, error) {
	args := m.Called(ctx, draftID)
	return args.Int(0), args.Error(1)
}

func (m *MockSendLogRepository) Insert(ctx context.Context, log *domain.SendLog) (*domain.SendLog, error) {
	args := m.Called(ctx, log)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SendLog), args.Error(1)
}

type MockDeliverer struct {
	mock.Mock
}

func (m *MockDeliverer) Deliver(ctx context.Context, userID string, raw []byte) (string, error) {
	args := m.Called(ctx, userID, raw)
	return args.String(0), args.Error(1)
}

// --- Helpers ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func approvedDraft() *domain.Draft {
	return &domain.Draft{
		ID:        "draft-1",
		UserID:    "user-1",
		ThreadID:  "thread-1",
		MessageID: "msg-1",
		Status:    domain.StatusApproved,
		Body:      "Thanks, see you Thursday.",
		ContextSnapshot: mailbox.MessageContext{
			To:      "boss@example.com",
			Subject: "Quarterly review",
		},
	}
}

// --- Tests ---

func TestSendDraft_NotFound(t *testing.T) {
	drafts := new(MockDraftRepository)
	logs := new(MockSendLogRepository)
	deliverer := new(MockDeliverer)
	svc := NewService(drafts, logs, deliverer, testLogger())

	drafts.On("GetByIDForUser", mock.Anything, "missing", "user-1").Return(nil, repository.ErrDraftNotFound)

	_, err := svc.SendDraft(context.Background(), "missing", "user-1")
	assert.ErrorIs(t, err, ErrDraftNotFound)
	deliverer.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendDraft_RejectedAndUnapprovedGuards(t *testing.T) {
	tests := []struct {
		status  domain.Status
		wantErr error
	}{
		{domain.StatusRejected, ErrDraftRejected},
		{domain.StatusDrafted, ErrDraftNotApproved},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			drafts := new(MockDraftRepository)
			logs := new(MockSendLogRepository)
			deliverer := new(MockDeliverer)
			svc := NewService(drafts, logs, deliverer, testLogger())

			d := approvedDraft()
			d.Status = tt.status
			drafts.On("GetByIDForUser", mock.Anything, d.ID, d.UserID).Return(d, nil)

			_, err := svc.SendDraft(context.Background(), d.ID, d.UserID)
			assert.ErrorIs(t, err, tt.wantErr)
			deliverer.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestSendDraft_AlreadySentShortCircuits(t *testing.T) {
	drafts := new(MockDraftRepository)
	logs := new(MockSendLogRepository)
	deliverer := new(MockDeliverer)
	svc := NewService(drafts, logs, deliverer, testLogger())

	d := approvedDraft()
	d.Status = domain.StatusSent
	existing := &domain.SendLog{ID: "log-1", DraftID: d.ID, Attempt: 1, Status: domain.SendLogSuccess, Timestamp: time.Now()}

	drafts.On("GetByIDForUser", mock.Anything, d.ID, d.UserID).Return(d, nil)
	logs.On("LatestSuccess", mock.Anything, d.ID).Return(existing, nil)

	res, err := svc.SendDraft(context.Background(), d.ID, d.UserID)
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadySent, res.Status)
	assert.Equal(t, existing, res.Log)
	deliverer.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything, mock.Anything)
	logs.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestSendDraft_SuccessfulDispatch(t *testing.T) {
	drafts := new(MockDraftRepository)
	logs := new(MockSendLogRepository)
	deliverer := new(MockDeliverer)
	svc := NewService(drafts, logs, deliverer, testLogger())

	d := approvedDraft()
	drafts.On("GetByIDForUser", mock.Anything, d.ID, d.UserID).Return(d, nil)
	logs.On("LatestSuccess", mock.Anything, d.ID).Return(nil, repository.ErrSendLogNotFound)
	logs.On("NextAttempt", mock.Anything, d.ID).Return(1, nil)

	deliverer.On("Deliver", mock.Anything, d.UserID, mock.MatchedBy(func(raw []byte) bool {
		msg := string(raw)
		return strings.Contains(msg, "To: boss@example.com") &&
			strings.Contains(msg, "Subject: Quarterly review") &&
			strings.Contains(msg, "Thanks, see you Thursday.")
	})).Return("gmail-msg-9", nil)

	inserted := &domain.SendLog{ID: "log-1", DraftID: d.ID, Attempt: 1, Status: domain.SendLogSuccess}
	logs.On("Insert", mock.Anything, mock.MatchedBy(func(l *domain.SendLog) bool {
		return l.DraftID == d.ID && l.Attempt == 1 && l.Status == domain.SendLogSuccess && l.ErrorCode == nil
	})).Return(inserted, nil)

	sent := *d
	sent.Status = domain.StatusSent
	drafts.On("SetStatus", mock.Anything, d.ID, domain.StatusSent).Return(&sent, nil)

	res, err := svc.SendDraft(context.Background(), d.ID, d.UserID)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, res.Status)
	assert.Equal(t, "gmail-msg-9", res.ProviderMessageID)
	assert.Equal(t, inserted, res.Log)
	drafts.AssertExpectations(t)
	logs.AssertExpectations(t)
}

func TestSendDraft_FailureThenRetryThenSuccess(t *testing.T) {
	drafts := new(MockDraftRepository)
	logs := new(MockSendLogRepository)
	deliverer := new(MockDeliverer)
	svc := NewService(drafts, logs, deliverer, testLogger())

	d := approvedDraft()
	drafts.On("GetByIDForUser", mock.Anything, d.ID, d.UserID).Return(d, nil)
	logs.On("LatestSuccess", mock.Anything, d.ID).Return(nil, repository.ErrSendLogNotFound)

	// Attempts 1 and 2 fail at the channel; attempt 3 succeeds.
	logs.On("NextAttempt", mock.Anything, d.ID).Return(1, nil).Once()
	logs.On("NextAttempt", mock.Anything, d.ID).Return(2, nil).Once()
	logs.On("NextAttempt", mock.Anything, d.ID).Return(3, nil).Once()

	deliverer.On("Deliver", mock.Anything, d.UserID, mock.Anything).Return("", errors.New("provider outage")).Twice()
	deliverer.On("Deliver", mock.Anything, d.UserID, mock.Anything).Return("gmail-msg-3", nil).Once()

	logs.On("Insert", mock.Anything, mock.MatchedBy(func(l *domain.SendLog) bool {
		return l.Status == domain.SendLogFailed && l.ErrorCode != nil && *l.ErrorCode == "SEND_ERROR"
	})).Return(&domain.SendLog{ID: "log-f", DraftID: d.ID, Attempt: 1, Status: domain.SendLogFailed}, nil).Twice()
	logs.On("Insert", mock.Anything, mock.MatchedBy(func(l *domain.SendLog) bool {
		return l.Status == domain.SendLogSuccess && l.Attempt == 3
	})).Return(&domain.SendLog{ID: "log-s", DraftID: d.ID, Attempt: 3, Status: domain.SendLogSuccess}, nil).Once()

	sent := *d
	sent.Status = domain.StatusSent
	drafts.On("SetStatus", mock.Anything, d.ID, domain.StatusSent).Return(&sent, nil).Once()

	for i := 0; i < 2; i++ {
		_, err := svc.SendDraft(context.Background(), d.ID, d.UserID)
		var sendFailed *SendFailedError
		require.ErrorAs(t, err, &sendFailed)
		assert.NotNil(t, sendFailed.Log)
	}

	res, err := svc.SendDraft(context.Background(), d.ID, d.UserID)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, res.Status)
	assert.Equal(t, 3, res.Log.Attempt)
	logs.AssertExpectations(t)
	deliverer.AssertExpectations(t)
}

func TestSendDraft_DuplicateSuccessRaceConverges(t *testing.T) {
	drafts := new(MockDraftRepository)
	logs := new(MockSendLogRepository)
	deliverer := new(MockDeliverer)
	svc := NewService(drafts, logs, deliverer, testLogger())

	d := approvedDraft()
	recorded := &domain.SendLog{ID: "log-w", DraftID: d.ID, Attempt: 1, Status: domain.SendLogSuccess}

	drafts.On("GetByIDForUser", mock.Anything, d.ID, d.UserID).Return(d, nil)
	// The pre-dispatch check sees nothing, but by insert time a concurrent
	// attempt has recorded success.
	logs.On("LatestSuccess", mock.Anything, d.ID).Return(nil, repository.ErrSendLogNotFound).Once()
	logs.On("NextAttempt", mock.Anything, d.ID).Return(2, nil)
	deliverer.On("Deliver", mock.Anything, d.UserID, mock.Anything).Return("gmail-msg-dup", nil)
	logs.On("Insert", mock.Anything, mock.Anything).Return(nil, repository.ErrDuplicateSuccess)
	logs.On("LatestSuccess", mock.Anything, d.ID).Return(recorded, nil).Once()

	res, err := svc.SendDraft(context.Background(), d.ID, d.UserID)
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadySent, res.Status)
	assert.Equal(t, recorded, res.Log)
	drafts.AssertNotCalled(t, "SetStatus", mock.Anything, mock.Anything, mock.Anything)
}
