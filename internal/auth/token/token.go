package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenExpired = errors.New("token is expired")
	ErrTokenInvalid = errors.New("token is invalid")
)

// Principal is the identity carried by both credential classes.
type Principal struct {
	ID    string
	Email string
}

// Issuer mints and verifies the two credential classes. Access and refresh
// credentials are signed with independent secrets; leaking one verification
// key cannot be used to mint the other class.
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

type Config struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

func NewIssuer(cfg Config) *Issuer {
	return &Issuer{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
	}
}

// IssueAccess mints a short-lived access credential for the principal.
func (i *Issuer) IssueAccess(p Principal) (string, error) {
	return sign(p, i.accessSecret, i.accessTTL)
}

// IssueRefresh mints a long-lived refresh credential for the principal.
func (i *Issuer) IssueRefresh(p Principal) (string, error) {
	return sign(p, i.refreshSecret, i.refreshTTL)
}

func (i *Issuer) VerifyAccess(tokenString string) (Principal, error) {
	return verify(tokenString, i.accessSecret)
}

func (i *Issuer) VerifyRefresh(tokenString string) (Principal, error) {
	return verify(tokenString, i.refreshSecret)
}

func sign(p Principal, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   p.ID,
		"email": p.Email,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
		"iss":   "draftly-api",
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func verify(tokenString string, secret []byte) (Principal, error) {
	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		// Expiry must classify distinctly from a bad signature so the
		// session guard knows when falling back to the refresh credential
		// is worthwhile.
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, ErrTokenExpired
		}
		return Principal{}, ErrTokenInvalid
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return Principal{}, ErrTokenInvalid
	}

	id, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	if id == "" {
		return Principal{}, ErrTokenInvalid
	}
	return Principal{ID: id, Email: email}, nil
}
