package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	draftapp "github.com/draftly/draftly/internal/draft/app"
	"github.com/draftly/draftly/internal/draft/domain"
	draftrepo "github.com/draftly/draftly/internal/draft/repository"
	"github.com/draftly/draftly/internal/llm/provider"
	"github.com/draftly/draftly/internal/mailbox"
	"github.com/draftly/draftly/internal/transport/http/middleware"
)

// DraftHandler serves the draft lifecycle routes: lookup, generation (both
// modes), edits and status changes.
type DraftHandler struct {
	drafts    draftrepo.DraftRepository
	generator *draftapp.Service
	logger    *slog.Logger
}

func NewDraftHandler(drafts draftrepo.DraftRepository, generator *draftapp.Service, logger *slog.Logger) *DraftHandler {
	return &DraftHandler{
		drafts:    drafts,
		generator: generator,
		logger:    logger.With("handler", "draft"),
	}
}

func (h *DraftHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleGetByKey)
	r.Post("/generate", h.handleGenerate)
	r.Post("/generate/stream", h.handleGenerateStream)
	r.Get("/user/{userId}", h.handleListByUser)
	r.Get("/{draftId}", h.handleGetByID)
	r.Patch("/{draftId}", h.handleUpdateBody)
	r.Patch("/{draftId}/status", h.handleUpdateStatus)
}

func (h *DraftHandler) handleGetByKey(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		h.jsonError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	threadID := r.URL.Query().Get("threadId")
	messageID := r.URL.Query().Get("messageId")
	if threadID == "" || messageID == "" {
		h.jsonError(w, "threadId and messageId query parameters are required", http.StatusBadRequest)
		return
	}

	draft, err := h.drafts.GetByKey(r.Context(), user.ID, threadID, messageID)
	if err != nil {
		if errors.Is(err, draftrepo.ErrDraftNotFound) {
			h.jsonError(w, "No draft for this message", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(r.Context(), "Failed to look up draft by key", "error", err, "thread_id", threadID, "message_id", messageID)
		h.jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (h *DraftHandler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		h.jsonError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var req GenerateDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if req.ThreadID == "" || req.MessageID == "" {
		h.jsonError(w, "threadId and messageId are required", http.StatusBadRequest)
		return
	}

	draft, err := h.generator.Generate(r.Context(), draftapp.GenerateInput{
		UserID:    user.ID,
		ThreadID:  req.ThreadID,
		MessageID: req.MessageID,
		Tone:      req.Tone,
	})
	if err != nil {
		h.writeGenerateError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

// handleGenerateStream relays generation tokens to the client as Server-Sent
// Events. Each delta arrives as a {"token": ...} frame, the persisted draft
// as a final {"finalDraft": ...} frame, and the stream always terminates
// with a [DONE] marker regardless of outcome.
func (h *DraftHandler) handleGenerateStream(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		h.jsonError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var req GenerateDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if req.ThreadID == "" || req.MessageID == "" {
		h.jsonError(w, "threadId and messageId are required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.jsonError(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	draft, err := h.generator.GenerateStream(r.Context(), draftapp.GenerateInput{
		UserID:    user.ID,
		ThreadID:  req.ThreadID,
		MessageID: req.MessageID,
		Tone:      req.Tone,
	}, func(delta string) {
		writeSSE(w, map[string]string{"token": delta})
		flusher.Flush()
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Streaming generation failed", "error", err, "thread_id", req.ThreadID)
		writeSSE(w, map[string]string{"error": "Draft generation failed"})
	} else {
		writeSSE(w, map[string]any{"finalDraft": draft})
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func writeSSE(w http.ResponseWriter, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func (h *DraftHandler) handleGetByID(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		h.jsonError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	draft, err := h.drafts.GetByIDForUser(r.Context(), chi.URLParam(r, "draftId"), user.ID)
	if err != nil {
		if errors.Is(err, draftrepo.ErrDraftNotFound) {
			h.jsonError(w, "Draft not found", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(r.Context(), "Failed to fetch draft", "error", err)
		h.jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (h *DraftHandler) handleListByUser(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		h.jsonError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	// Drafts are private; the path parameter must be the caller itself.
	if chi.URLParam(r, "userId") != user.ID {
		h.jsonError(w, "Cannot list another user's drafts", http.StatusForbidden)
		return
	}

	drafts, err := h.drafts.ListByUser(r.Context(), user.ID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to list drafts", "error", err, "user_id", user.ID)
		h.jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, drafts)
}

func (h *DraftHandler) handleUpdateBody(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		h.jsonError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var req UpdateDraftBodyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if req.Body == "" {
		h.jsonError(w, "Draft body is required", http.StatusBadRequest)
		return
	}

	draftID := chi.URLParam(r, "draftId")
	if _, err := h.drafts.GetByIDForUser(r.Context(), draftID, user.ID); err != nil {
		if errors.Is(err, draftrepo.ErrDraftNotFound) {
			h.jsonError(w, "Draft not found", http.StatusNotFound)
			return
		}
		h.jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	draft, err := h.drafts.SetBody(r.Context(), draftID, req.Body)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to update draft body", "error", err, "draft_id", draftID)
		h.jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (h *DraftHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		h.jsonError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var req UpdateDraftStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	status := domain.Status(req.Status)
	if !status.Known() {
		h.jsonError(w, "Invalid status: "+req.Status, http.StatusBadRequest)
		return
	}

	draftID := chi.URLParam(r, "draftId")
	if _, err := h.drafts.GetByIDForUser(r.Context(), draftID, user.ID); err != nil {
		if errors.Is(err, draftrepo.ErrDraftNotFound) {
			h.jsonError(w, "Draft not found", http.StatusNotFound)
			return
		}
		h.jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	draft, err := h.drafts.SetStatus(r.Context(), draftID, status)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to update draft status", "error", err, "draft_id", draftID)
		h.jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (h *DraftHandler) writeGenerateError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, mailbox.ErrMessageNotFound):
		h.jsonError(w, "Message not found", http.StatusNotFound)
	case errors.Is(err, provider.ErrProvider):
		h.jsonError(w, "Draft generation failed", http.StatusBadGateway)
	case errors.Is(err, mailbox.ErrMailboxReject):
		h.jsonError(w, "Mailbox rejected the request", http.StatusBadGateway)
	default:
		h.logger.ErrorContext(r.Context(), "Draft generation failed", "error", err)
		h.jsonError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *DraftHandler) jsonError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, GenericErrorResponse{Error: message})
}
