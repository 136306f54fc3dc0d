package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	sendapp "github.com/draftly/draftly/internal/send/app"
	"github.com/draftly/draftly/internal/transport/http/middleware"
)

// SendHandler exposes the dispatch endpoint over the send pipeline.
type SendHandler struct {
	sender *sendapp.Service
	logger *slog.Logger
}

func NewSendHandler(sender *sendapp.Service, logger *slog.Logger) *SendHandler {
	return &SendHandler{
		sender: sender,
		logger: logger.With("handler", "send"),
	}
}

func (h *SendHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.handleSend)
}

func (h *SendHandler) handleSend(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		h.jsonError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var req SendDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DraftID == "" {
		h.jsonError(w, "draftId is required", http.StatusBadRequest)
		return
	}

	result, err := h.sender.SendDraft(r.Context(), req.DraftID, user.ID)
	if err != nil {
		var failed *sendapp.SendFailedError
		switch {
		case errors.Is(err, sendapp.ErrDraftNotFound):
			h.jsonError(w, "Draft not found", http.StatusNotFound)
		case errors.Is(err, sendapp.ErrDraftRejected):
			h.jsonError(w, "Draft is rejected and cannot be sent", http.StatusBadRequest)
		case errors.Is(err, sendapp.ErrDraftNotApproved):
			h.jsonError(w, "Draft must be approved before sending", http.StatusBadRequest)
		case errors.As(err, &failed):
			writeJSON(w, http.StatusBadGateway, SendFailedResponse{
				Error: "Delivery failed; attempt logged",
				Code:  "SEND_ERROR",
				Log:   failed.Log,
			})
		default:
			h.logger.ErrorContext(r.Context(), "Send pipeline failed", "error", err, "draft_id", req.DraftID)
			h.jsonError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *SendHandler) jsonError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, GenericErrorResponse{Error: message})
}
