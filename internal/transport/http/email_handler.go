package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/draftly/draftly/internal/mailbox"
	"github.com/draftly/draftly/internal/transport/http/middleware"
)

const defaultThreadPageSize = 20

// EmailHandler serves read-only mailbox views: the inbox thread list and a
// single thread expansion.
type EmailHandler struct {
	mail   mailbox.Reader
	logger *slog.Logger
}

func NewEmailHandler(mail mailbox.Reader, logger *slog.Logger) *EmailHandler {
	return &EmailHandler{
		mail:   mail,
		logger: logger.With("handler", "email"),
	}
}

func (h *EmailHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleListThreads)
	r.Get("/{threadId}", h.handleGetThread)
}

func (h *EmailHandler) handleListThreads(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		h.jsonError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	maxResults := defaultThreadPageSize
	if raw := r.URL.Query().Get("maxResults"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			maxResults = n
		}
	}

	threads, err := h.mail.ListThreads(r.Context(), user.ID, maxResults)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to list mailbox threads", "error", err, "user_id", user.ID)
		h.jsonError(w, "Failed to fetch emails", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, threads)
}

func (h *EmailHandler) handleGetThread(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		h.jsonError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	threadID := chi.URLParam(r, "threadId")
	thread, err := h.mail.GetThread(r.Context(), user.ID, threadID)
	if err != nil {
		if errors.Is(err, mailbox.ErrMessageNotFound) {
			h.jsonError(w, "Thread not found", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(r.Context(), "Failed to fetch thread", "error", err, "thread_id", threadID)
		h.jsonError(w, "Failed to fetch thread", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, thread)
}

func (h *EmailHandler) jsonError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, GenericErrorResponse{Error: message})
}
