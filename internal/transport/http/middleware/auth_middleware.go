package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/draftly/draftly/internal/auth/token"
	userrepo "github.com/draftly/draftly/internal/user/repository"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const AuthenticatedUserContextKey = ContextKey("authenticatedUser")

// AccessTokenHeader carries a freshly minted access credential back to the
// client whenever the guard rotated one mid-request.
const AccessTokenHeader = "x-access-token"

// RefreshTokenHeader is the fallback credential clients attach so an expired
// access credential does not force a visible re-login.
const RefreshTokenHeader = "x-refresh-token"

// AuthenticatedUser holds the identity of the verified caller.
type AuthenticatedUser struct {
	ID    string
	Email string
}

// UserFromContext extracts the authenticated caller placed by AuthMiddleware.
func UserFromContext(ctx context.Context) (AuthenticatedUser, bool) {
	user, ok := ctx.Value(AuthenticatedUserContextKey).(AuthenticatedUser)
	return user, ok
}

type authError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// AuthMiddleware guards routes with the dual-credential scheme: a valid
// access credential passes directly; an expired one falls back to the
// refresh credential, which must verify AND byte-match the server-side
// stored copy before a replacement access credential is minted into the
// response headers. A cleared or rotated stored copy revokes every
// outstanding refresh credential at once.
func AuthMiddleware(issuer *token.Issuer, users userrepo.UserRepository, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accessToken := bearerToken(r)
			if accessToken == "" {
				// The refresh credential alone never authenticates; it only
				// backs up a presented-but-expired access credential.
				writeAuthError(w, http.StatusUnauthorized, "Authentication required", "MISSING_CREDENTIAL")
				return
			}

			principal, err := issuer.VerifyAccess(accessToken)
			if err == nil {
				serveAs(next, w, r, principal)
				return
			}
			if !errors.Is(err, token.ErrTokenExpired) && !errors.Is(err, token.ErrTokenInvalid) {
				logger.ErrorContext(r.Context(), "Access token verification failed unexpectedly", "error", err)
			}

			// Expired or bad access credential: the refresh path is the only
			// way forward.
			refreshToken := r.Header.Get(RefreshTokenHeader)
			if refreshToken == "" {
				writeAuthError(w, http.StatusUnauthorized, "Access token expired", "REFRESH_REQUIRED")
				return
			}

			principal, err = issuer.VerifyRefresh(refreshToken)
			if err != nil {
				logger.WarnContext(r.Context(), "Refresh token rejected", "error", err)
				writeAuthError(w, http.StatusForbidden, "Invalid refresh token", "REFRESH_INVALID")
				return
			}

			user, err := users.GetByID(r.Context(), principal.ID)
			if err != nil {
				if errors.Is(err, userrepo.ErrUserNotFound) {
					writeAuthError(w, http.StatusForbidden, "User not found", "PRINCIPAL_NOT_FOUND")
					return
				}
				logger.ErrorContext(r.Context(), "Failed to load user during refresh", "error", err, "user_id", principal.ID)
				writeAuthError(w, http.StatusInternalServerError, "Internal server error", "INTERNAL")
				return
			}

			// The presented credential must be the one on record; logout and
			// rotation both invalidate older copies even before they expire.
			if user.RefreshCredential == nil ||
				subtle.ConstantTimeCompare([]byte(*user.RefreshCredential), []byte(refreshToken)) != 1 {
				logger.WarnContext(r.Context(), "Refresh token revoked or superseded", "user_id", principal.ID)
				writeAuthError(w, http.StatusForbidden, "Refresh token revoked", "REFRESH_REVOKED")
				return
			}

			newAccess, err := issuer.IssueAccess(token.Principal{ID: user.ID, Email: user.Email})
			if err != nil {
				logger.ErrorContext(r.Context(), "Failed to mint rotated access token", "error", err, "user_id", user.ID)
				writeAuthError(w, http.StatusInternalServerError, "Internal server error", "INTERNAL")
				return
			}

			w.Header().Set(AccessTokenHeader, newAccess)
			logger.InfoContext(r.Context(), "Access token rotated via refresh credential", "user_id", user.ID)
			serveAs(next, w, r, token.Principal{ID: user.ID, Email: user.Email})
		})
	}
}

func serveAs(next http.Handler, w http.ResponseWriter, r *http.Request, p token.Principal) {
	ctx := context.WithValue(r.Context(), AuthenticatedUserContextKey, AuthenticatedUser{ID: p.ID, Email: p.Email})
	next.ServeHTTP(w, r.WithContext(ctx))
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

func writeAuthError(w http.ResponseWriter, statusCode int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(authError{Error: message, Code: code})
}
