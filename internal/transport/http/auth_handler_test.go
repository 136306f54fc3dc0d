package http

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/draftly/draftly/internal/auth/token"
	"github.com/draftly/draftly/internal/platform/config"
	"github.com/draftly/draftly/internal/platform/crypto"
	userdomain "github.com/draftly/draftly/internal/user/domain"
)

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) UpsertFromGoogle(ctx context.Context, user *userdomain.User) (*userdomain.User, error) {
	args := m.Called(ctx, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*userdomain.User), args.Error(1)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*userdomain.User), args.Error(1)
}

func (m *MockUserRepository) SetRefreshCredential(ctx context.Context, id string, credential *string) error {
	args := m.Called(ctx, id, credential)
	return args.Error(0)
}

const testEncryptionKey = "6368616e676520746869732070617373776f726420746f206120736563726574"

func newAuthTestIssuer() *token.Issuer {
	return token.NewIssuer(token.Config{
		AccessSecret:  "access-secret-for-tests",
		RefreshSecret: "refresh-secret-for-tests",
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
	})
}

func newAuthHandlerForTest(t *testing.T, users *MockUserRepository, tokenURL string) *AuthHandler {
	t.Helper()
	cipher, err := crypto.NewCipher(testEncryptionKey)
	require.NoError(t, err)
	h := NewAuthHandler(users, newAuthTestIssuer(), cipher, &config.Config{
		GoogleClientID:     "client-id",
		GoogleClientSecret: "client-secret",
		GoogleRedirectURI:  "http://localhost:4000/api/auth/google/callback",
		FrontendURL:        "http://localhost:5173",
	}, discardLogger())
	if tokenURL != "" {
		h.tokenURL = tokenURL
	}
	return h
}

func newAuthRouter(h *AuthHandler) chi.Router {
	r := chi.NewRouter()
	r.Route("/api/auth", func(r chi.Router) {
		h.RegisterPublicRoutes(r)
		r.Group(func(protected chi.Router) {
			protected.Use(asUser("user-1"))
			h.RegisterProtectedRoutes(protected)
		})
	})
	return r
}

// fakeIDToken builds an unsigned JWT-shaped id_token carrying sub and email.
func fakeIDToken(t *testing.T, sub, email string) string {
	t.Helper()
	payload, err := json.Marshal(map[string]string{"sub": sub, "email": email})
	require.NoError(t, err)
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256"}`))
	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + ".sig"
}

func TestAuthHandler_GoogleStartRedirectsWithOfflineConsent(t *testing.T) {
	router := newAuthRouter(newAuthHandlerForTest(t, new(MockUserRepository), ""))

	req := httptest.NewRequest(http.MethodGet, "/api/auth/google", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusFound, rr.Code)
	location, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "accounts.google.com", location.Host)
	q := location.Query()
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Contains(t, q.Get("scope"), "gmail.send")
}

func TestAuthHandler_CallbackExchangesCodeAndRedirectsWithTokens(t *testing.T) {
	google := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "auth-code-1", r.FormValue("code"))
		assert.Equal(t, "authorization_code", r.FormValue("grant_type"))
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "google-access",
			"refresh_token": "google-refresh",
			"expires_in":    3600,
			"id_token":      fakeIDToken(t, "google-123", "me@example.com"),
		})
	}))
	defer google.Close()

	users := new(MockUserRepository)
	users.On("UpsertFromGoogle", mock.Anything, mock.MatchedBy(func(u *userdomain.User) bool {
		// OAuth material must never be stored in the clear.
		return u.GoogleID == "google-123" &&
			u.Email == "me@example.com" &&
			u.GoogleAccessToken != "google-access" &&
			u.GoogleRefreshToken != "google-refresh"
	})).Return(&userdomain.User{ID: "user-1", Email: "me@example.com", GoogleID: "google-123"}, nil)
	users.On("SetRefreshCredential", mock.Anything, "user-1", mock.AnythingOfType("*string")).Return(nil)

	router := newAuthRouter(newAuthHandlerForTest(t, users, google.URL))

	req := httptest.NewRequest(http.MethodGet, "/api/auth/google/callback?code=auth-code-1", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusFound, rr.Code)
	location, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(location.Path, "/auth/callback"))
	assert.NotEmpty(t, location.Query().Get("accessToken"))
	assert.NotEmpty(t, location.Query().Get("refreshToken"))
	users.AssertExpectations(t)
}

func TestAuthHandler_CallbackWithoutCodeIsBadRequest(t *testing.T) {
	router := newAuthRouter(newAuthHandlerForTest(t, new(MockUserRepository), ""))

	req := httptest.NewRequest(http.MethodGet, "/api/auth/google/callback", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAuthHandler_CallbackExchangeFailureIsBadGateway(t *testing.T) {
	google := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer google.Close()

	router := newAuthRouter(newAuthHandlerForTest(t, new(MockUserRepository), google.URL))

	req := httptest.NewRequest(http.MethodGet, "/api/auth/google/callback?code=bad-code", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestAuthHandler_RefreshRotatesBothTokens(t *testing.T) {
	users := new(MockUserRepository)
	handler := newAuthHandlerForTest(t, users, "")

	refresh, err := handler.issuer.IssueRefresh(token.Principal{ID: "user-1", Email: "me@example.com"})
	require.NoError(t, err)
	users.On("GetByID", mock.Anything, "user-1").Return(&userdomain.User{
		ID: "user-1", Email: "me@example.com", RefreshCredential: &refresh,
	}, nil)
	// The rotated credential replaces, and thereby revokes, the old one.
	users.On("SetRefreshCredential", mock.Anything, "user-1", mock.MatchedBy(func(cred *string) bool {
		return cred != nil && *cred != ""
	})).Return(nil)

	router := newAuthRouter(handler)
	body, err := json.Marshal(RefreshTokenRequest{RefreshToken: refresh})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", strings.NewReader(string(body)))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp TokenPairResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	users.AssertExpectations(t)
}

func TestAuthHandler_RefreshWithRevokedCredentialForbidden(t *testing.T) {
	users := new(MockUserRepository)
	handler := newAuthHandlerForTest(t, users, "")

	refresh, err := handler.issuer.IssueRefresh(token.Principal{ID: "user-1"})
	require.NoError(t, err)
	users.On("GetByID", mock.Anything, "user-1").Return(&userdomain.User{
		ID: "user-1", RefreshCredential: nil,
	}, nil)

	router := newAuthRouter(handler)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh",
		strings.NewReader(`{"refreshToken":"`+refresh+`"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	users.AssertNotCalled(t, "SetRefreshCredential", mock.Anything, mock.Anything, mock.Anything)
}

func TestAuthHandler_LogoutClearsStoredCredential(t *testing.T) {
	users := new(MockUserRepository)
	users.On("SetRefreshCredential", mock.Anything, "user-1", (*string)(nil)).Return(nil)

	router := newAuthRouter(newAuthHandlerForTest(t, users, ""))
	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	users.AssertExpectations(t)
}
