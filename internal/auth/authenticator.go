package auth

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
)

const DefaultMaxAge = 24 * time.Hour

// AuthenticatorConfig controls launch payload policy.
type AuthenticatorConfig struct {
	BotToken string
	// AllowDemoHash accepts the "demo_hash" sentinel in place of a valid
	// signature. Local development only.
	AllowDemoHash bool
	// EnforceMaxAge rejects payloads older than MaxAge. When false, stale
	// payloads are only logged.
	EnforceMaxAge bool
	MaxAge        time.Duration
}

// Authenticator turns an inbound request into a verified User.
type Authenticator struct {
	cfg      AuthenticatorConfig
	verifier *Verifier
	now      func() time.Time
	logger   *slog.Logger
}

func NewAuthenticator(cfg AuthenticatorConfig, logger *slog.Logger) *Authenticator {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		cfg:      cfg,
		verifier: NewVerifier(cfg.BotToken, cfg.AllowDemoHash),
		now:      time.Now,
		logger:   logger,
	}
}

// HasBotToken reports whether a bot token is configured.
func (a *Authenticator) HasBotToken() bool {
	return a.cfg.BotToken != ""
}

// Authenticate extracts the launch payload from r and verifies it.
func (a *Authenticator) Authenticate(r Request) (*User, error) {
	return a.AuthenticateInitData(ExtractInitData(r))
}

// AuthenticateInitData verifies a raw launch payload. Every failure is an
// *Error carrying the rejection kind.
func (a *Authenticator) AuthenticateInitData(initData string) (*User, error) {
	if a.cfg.BotToken == "" {
		return nil, newError(KindMissingBotToken, nil)
	}
	if initData == "" {
		return nil, newError(KindMissingInitData, nil)
	}

	fields, err := ParseInitData(initData)
	if err != nil {
		return nil, newError(KindInvalidInitDataFormat, err)
	}

	demo, err := a.verifier.Verify(fields)
	switch {
	case errors.Is(err, ErrMissingHash):
		return nil, newError(KindMissingHash, err)
	case err != nil:
		a.logger.Warn("init data signature mismatch", "len", len(initData))
		return nil, newError(KindSignatureMismatch, err)
	case demo:
		a.logger.Warn("init data accepted with demo hash")
	}

	authDate, ok := parseAuthDate(fields.Get("auth_date"))
	if !ok && !demo {
		return nil, newError(KindMissingAuthDate, nil)
	}
	if ok && !demo {
		if age := a.now().Sub(time.Unix(authDate, 0)); age > a.cfg.MaxAge {
			a.logger.Warn("init data older than max age", "age", age.Round(time.Second).String(), "max_age", a.cfg.MaxAge.String())
			if a.cfg.EnforceMaxAge {
				return nil, newError(KindInitDataExpired, nil)
			}
		}
	}

	rawUser := fields.Get("user")
	if rawUser == "" {
		return nil, newError(KindMissingUserData, nil)
	}
	user, err := decodeUser(rawUser)
	if err != nil {
		return nil, err
	}

	a.logger.Debug("init data verified", "user_id", user.ID, "demo", demo)
	return user, nil
}

func parseAuthDate(s string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func decodeUser(raw string) (*User, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || obj == nil || dec.More() {
		return nil, newError(KindInvalidUserJSON, err)
	}

	id, ok := coerceUserID(obj["id"])
	if !ok {
		return nil, newError(KindInvalidUserID, nil)
	}

	user := &User{ID: id}
	user.Username, _ = obj["username"].(string)
	user.FirstName, _ = obj["first_name"].(string)
	user.LastName, _ = obj["last_name"].(string)
	user.LanguageCode, _ = obj["language_code"].(string)
	user.IsPremium, _ = obj["is_premium"].(bool)
	user.PhotoURL, _ = obj["photo_url"].(string)
	return user, nil
}

// maxSafeInteger is the largest integer the client can represent exactly.
const maxSafeInteger = 1<<53 - 1

// coerceUserID accepts a JSON number or a numeric string holding a
// positive integer.
func coerceUserID(v any) (int64, bool) {
	var s string
	switch id := v.(type) {
	case json.Number:
		s = id.String()
	case string:
		s = strings.TrimSpace(id)
	default:
		return 0, false
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, n > 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || f <= 0 || f > maxSafeInteger {
		return 0, false
	}
	return int64(f), true
}
