package domain

import "time"

// User is a mailbox owner. GoogleAccessToken and GoogleRefreshToken are the
// encrypted OAuth credentials used against the Gmail API; RefreshCredential is
// the Draftly-issued refresh token currently recognized for this user. At most
// one refresh credential is valid at a time: issuing a new one overwrites the
// previous value, and logout clears it.
type User struct {
	ID                 string
	Email              string
	GoogleID           string
	GoogleAccessToken  string
	GoogleRefreshToken string
	TokenExpiry        *time.Time
	RefreshCredential  *string
	CreatedAt          time.Time
}
