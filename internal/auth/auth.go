package auth

import (
	"errors"
	"net/http"
)

var (
	ErrInvalidFormat     = errors.New("invalid init data format")
	ErrMissingHash       = errors.New("missing hash")
	ErrSignatureMismatch = errors.New("signature mismatch")
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenInvalid      = errors.New("token invalid")
)

// Authentication failure kinds. They are the machine-readable codes the
// API returns in the "error" field.
const (
	KindMissingBotToken       = "missing_bot_token"
	KindMissingInitData       = "missing_initdata"
	KindInvalidInitDataFormat = "invalid_initdata_format"
	KindMissingHash           = "missing_hash"
	KindSignatureMismatch     = "signature_mismatch"
	KindMissingAuthDate       = "missing_auth_date"
	KindInitDataExpired       = "initdata_expired"
	KindMissingUserData       = "missing_user_data"
	KindInvalidUserJSON       = "invalid_user_json"
	KindInvalidUserID         = "invalid_user_id"
)

// Error is returned by the Authenticator for every rejected request.
type Error struct {
	Kind   string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind + ": " + e.Err.Error()
	}
	return e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind string, err error) *Error {
	return &Error{Kind: kind, Status: http.StatusUnauthorized, Err: err}
}

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr, true
	}
	return nil, false
}

// User is the mini-app user recovered from a verified launch payload.
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
	IsPremium    bool   `json:"is_premium,omitempty"`
	PhotoURL     string `json:"photo_url,omitempty"`
}
