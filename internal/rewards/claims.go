package rewards

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dailydrop/rewards/internal/platform/database"
)

// ClaimLedger records which ad sessions have already been credited.
// Claim reports true only for the first claim of a session.
type ClaimLedger interface {
	Claim(ctx context.Context, sessionID string, userID int64, expiresAt time.Time) (bool, error)
}

// MemoryClaimLedger keeps claims in process memory until the session expires.
type MemoryClaimLedger struct {
	mu     sync.Mutex
	claims map[string]time.Time
	now    func() time.Time
}

func NewMemoryClaimLedger() *MemoryClaimLedger {
	return &MemoryClaimLedger{
		claims: make(map[string]time.Time),
		now:    time.Now,
	}
}

func (l *MemoryClaimLedger) Claim(_ context.Context, sessionID string, _ int64, expiresAt time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for id, exp := range l.claims {
		if now.After(exp) {
			delete(l.claims, id)
		}
	}
	if _, seen := l.claims[sessionID]; seen {
		return false, nil
	}
	l.claims[sessionID] = expiresAt
	return true, nil
}

// PGClaimLedger stores claims in ad_session_claims so they hold across
// restarts and replicas.
type PGClaimLedger struct {
	db database.Querier
}

func NewPGClaimLedger(db database.Querier) *PGClaimLedger {
	return &PGClaimLedger{db: db}
}

func (l *PGClaimLedger) Claim(ctx context.Context, sessionID string, userID int64, expiresAt time.Time) (bool, error) {
	tag, err := l.db.Exec(ctx, `WITH pruned AS (
			DELETE FROM ad_session_claims WHERE expires_at < now() - interval '1 hour'
		)
		INSERT INTO ad_session_claims (session_id, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id) DO NOTHING`, sessionID, userID, expiresAt)
	if err != nil {
		return false, fmt.Errorf("claiming ad session: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
