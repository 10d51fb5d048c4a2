package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const sessionIssuer = "rewards-ads"

type sessionClaims struct {
	jwt.RegisteredClaims
	UserID    int64 `json:"uid"`
	StartedAt int64 `json:"st"`
}

// AdSession binds an ad-watch session id to the user who started it.
type AdSession struct {
	ID        string
	UserID    int64
	StartedAt time.Time
	// ExpiresAt is set on validated sessions.
	ExpiresAt time.Time
}

// SessionService signs and validates ad-watch session tokens.
type SessionService struct {
	signingKey []byte
	ttl        time.Duration
	now        func() time.Time
}

func NewSessionService(signingKey []byte, ttl time.Duration) *SessionService {
	return &SessionService{
		signingKey: signingKey,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Sign returns the token ("sig") for a new session.
func (s *SessionService) Sign(session AdSession) (string, error) {
	now := s.now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   strconv.FormatInt(session.UserID, 10),
			ID:        session.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		UserID:    session.UserID,
		StartedAt: session.StartedAt.UnixMilli(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.signingKey)
}

// Validate checks the token and returns the session it was issued for.
func (s *SessionService) Validate(tokenString string) (*AdSession, error) {
	token, err := jwt.ParseWithClaims(tokenString, &sessionClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(sessionIssuer), jwt.WithTimeFunc(s.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	session := &AdSession{
		ID:        claims.ID,
		UserID:    claims.UserID,
		StartedAt: time.UnixMilli(claims.StartedAt),
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}

// DeriveSessionKey derives a session signing key from the bot token for
// deployments that do not configure one.
func DeriveSessionKey(botToken string) []byte {
	mac := hmac.New(sha256.New, []byte("AdSession"))
	mac.Write([]byte(botToken))
	return mac.Sum(nil)
}
