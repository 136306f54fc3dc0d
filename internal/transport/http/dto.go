package http

import "github.com/draftly/draftly/internal/draft/domain"

// GenericErrorResponse is the error envelope every handler writes.
type GenericErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type GenerateDraftRequest struct {
	ThreadID  string `json:"threadId"`
	MessageID string `json:"messageId"`
	Tone      string `json:"tone"`
}

type UpdateDraftBodyRequest struct {
	Body string `json:"body"`
}

type UpdateDraftStatusRequest struct {
	Status string `json:"status"`
}

type SendDraftRequest struct {
	DraftID string `json:"draftId"`
}

// SendFailedResponse surfaces the logged failure row alongside the error so
// clients can show attempt numbers without a second round trip.
type SendFailedResponse struct {
	Error string          `json:"error"`
	Code  string          `json:"code"`
	Log   *domain.SendLog `json:"log,omitempty"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type TokenPairResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type MessageResponse struct {
	Message string `json:"message"`
}
