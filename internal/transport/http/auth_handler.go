package http

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/draftly/draftly/internal/auth/token"
	"github.com/draftly/draftly/internal/platform/config"
	"github.com/draftly/draftly/internal/platform/crypto"
	"github.com/draftly/draftly/internal/transport/http/middleware"
	userdomain "github.com/draftly/draftly/internal/user/domain"
	userrepo "github.com/draftly/draftly/internal/user/repository"
)

const (
	googleAuthURL  = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenURL = "https://oauth2.googleapis.com/token"

	oauthScopes = "openid email profile https://www.googleapis.com/auth/gmail.readonly https://www.googleapis.com/auth/gmail.send"
)

// AuthHandler owns the Google OAuth flow and the token lifecycle routes.
type AuthHandler struct {
	users  userrepo.UserRepository
	issuer *token.Issuer
	cipher *crypto.Cipher
	logger *slog.Logger

	clientID     string
	clientSecret string
	redirectURI  string
	frontendURL  string

	authURL    string
	tokenURL   string
	httpClient *http.Client
}

func NewAuthHandler(
	users userrepo.UserRepository,
	issuer *token.Issuer,
	cipher *crypto.Cipher,
	cfg *config.Config,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		users:        users,
		issuer:       issuer,
		cipher:       cipher,
		logger:       logger.With("handler", "auth"),
		clientID:     cfg.GoogleClientID,
		clientSecret: cfg.GoogleClientSecret,
		redirectURI:  cfg.GoogleRedirectURI,
		frontendURL:  cfg.FrontendURL,
		authURL:      googleAuthURL,
		tokenURL:     googleTokenURL,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
	}
}

// RegisterPublicRoutes wires the routes that run without the session guard.
func (h *AuthHandler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/google", h.handleGoogleStart)
	r.Get("/google/callback", h.handleGoogleCallback)
	r.Post("/refresh", h.handleRefresh)
}

// RegisterProtectedRoutes wires the routes that require an authenticated caller.
func (h *AuthHandler) RegisterProtectedRoutes(r chi.Router) {
	r.Post("/logout", h.handleLogout)
}

func (h *AuthHandler) handleGoogleStart(w http.ResponseWriter, r *http.Request) {
	params := url.Values{}
	params.Set("client_id", h.clientID)
	params.Set("redirect_uri", h.redirectURI)
	params.Set("response_type", "code")
	params.Set("scope", oauthScopes)
	// offline + consent so Google returns a refresh_token we can store.
	params.Set("access_type", "offline")
	params.Set("prompt", "consent")

	http.Redirect(w, r, h.authURL+"?"+params.Encode(), http.StatusFound)
}

type googleTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	IDToken      string `json:"id_token"`
}

func (h *AuthHandler) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		h.jsonError(w, "Missing authorization code", http.StatusBadRequest)
		return
	}

	tokens, err := h.exchangeCode(r.Context(), code)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "OAuth code exchange failed", "error", err)
		h.jsonError(w, "Failed to exchange authorization code", http.StatusBadGateway)
		return
	}

	sub, email, err := decodeIDToken(tokens.IDToken)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to decode id_token", "error", err)
		h.jsonError(w, "Invalid identity token", http.StatusBadGateway)
		return
	}

	encAccess, err := h.cipher.EncryptToken(tokens.AccessToken)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to encrypt OAuth access token", "error", err)
		h.jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	var encRefresh string
	if tokens.RefreshToken != "" {
		if encRefresh, err = h.cipher.EncryptToken(tokens.RefreshToken); err != nil {
			h.logger.ErrorContext(r.Context(), "Failed to encrypt OAuth refresh token", "error", err)
			h.jsonError(w, "Internal server error", http.StatusInternalServerError)
			return
		}
	}

	expiry := time.Now().Add(time.Duration(tokens.ExpiresIn) * time.Second)
	user, err := h.users.UpsertFromGoogle(r.Context(), &userdomain.User{
		Email:              email,
		GoogleID:           sub,
		GoogleAccessToken:  encAccess,
		GoogleRefreshToken: encRefresh,
		TokenExpiry:        &expiry,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to upsert user from Google profile", "error", err, "email", email)
		h.jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	principal := token.Principal{ID: user.ID, Email: user.Email}
	accessToken, err := h.issuer.IssueAccess(principal)
	if err != nil {
		h.jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	refreshToken, err := h.issuer.IssueRefresh(principal)
	if err != nil {
		h.jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	// Persisting the refresh credential is what makes it the single valid
	// one; any previously issued credential is revoked by this write.
	if err := h.users.SetRefreshCredential(r.Context(), user.ID, &refreshToken); err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to persist refresh credential", "error", err, "user_id", user.ID)
		h.jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(r.Context(), "User authenticated via Google", "user_id", user.ID, "email", user.Email)

	redirect := fmt.Sprintf("%s/auth/callback?accessToken=%s&refreshToken=%s",
		strings.TrimRight(h.frontendURL, "/"),
		url.QueryEscape(accessToken),
		url.QueryEscape(refreshToken))
	http.Redirect(w, r, redirect, http.StatusFound)
}

func (h *AuthHandler) exchangeCode(ctx context.Context, code string) (*googleTokenResponse, error) {
	form := url.Values{}
	form.Set("code", code)
	form.Set("client_id", h.clientID)
	form.Set("client_secret", h.clientSecret)
	form.Set("redirect_uri", h.redirectURI)
	form.Set("grant_type", "authorization_code")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token endpoint request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var tokens googleTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tokens.IDToken == "" {
		return nil, errors.New("token response missing id_token")
	}
	return &tokens, nil
}

// decodeIDToken extracts subject and email from the id_token payload. The
// token arrived over TLS directly from Google's token endpoint in the same
// exchange, so signature verification is not repeated here.
func decodeIDToken(idToken string) (sub, email string, err error) {
	parts := strings.Split(idToken, ".")
	if len(parts) != 3 {
		return "", "", errors.New("malformed id_token")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", "", fmt.Errorf("failed to decode id_token payload: %w", err)
	}
	var claims struct {
		Sub   string `json:"sub"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return "", "", fmt.Errorf("failed to parse id_token claims: %w", err)
	}
	if claims.Sub == "" || claims.Email == "" {
		return "", "", errors.New("id_token missing sub or email")
	}
	return claims.Sub, claims.Email, nil
}

func (h *AuthHandler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		h.jsonError(w, "refreshToken is required", http.StatusBadRequest)
		return
	}

	principal, err := h.issuer.VerifyRefresh(req.RefreshToken)
	if err != nil {
		h.jsonError(w, "Invalid or expired refresh token", http.StatusForbidden)
		return
	}

	user, err := h.users.GetByID(r.Context(), principal.ID)
	if err != nil {
		if errors.Is(err, userrepo.ErrUserNotFound) {
			h.jsonError(w, "Invalid or expired refresh token", http.StatusForbidden)
			return
		}
		h.logger.ErrorContext(r.Context(), "Failed to load user for refresh", "error", err, "user_id", principal.ID)
		h.jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if user.RefreshCredential == nil ||
		subtle.ConstantTimeCompare([]byte(*user.RefreshCredential), []byte(req.RefreshToken)) != 1 {
		h.logger.WarnContext(r.Context(), "Refresh rejected against stored credential", "user_id", principal.ID)
		h.jsonError(w, "Invalid or expired refresh token", http.StatusForbidden)
		return
	}

	fresh := token.Principal{ID: user.ID, Email: user.Email}
	accessToken, err := h.issuer.IssueAccess(fresh)
	if err != nil {
		h.jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	refreshToken, err := h.issuer.IssueRefresh(fresh)
	if err != nil {
		h.jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if err := h.users.SetRefreshCredential(r.Context(), user.ID, &refreshToken); err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to rotate refresh credential", "error", err, "user_id", user.ID)
		h.jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, TokenPairResponse{AccessToken: accessToken, RefreshToken: refreshToken})
}

func (h *AuthHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		h.jsonError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	if err := h.users.SetRefreshCredential(r.Context(), user.ID, nil); err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to clear refresh credential on logout", "error", err, "user_id", user.ID)
		h.jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(r.Context(), "User logged out", "user_id", user.ID)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Logged out"})
}

func (h *AuthHandler) jsonError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, GenericErrorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}
