package audit

import (
	"context"

	"github.com/dailydrop/rewards/internal/auth"
)

// Event represents a single auditable action in the system.
type Event struct {
	UserID    *int64 // nil when the caller could not be authenticated
	Action    string // e.g. "membership.checked", "auth.rejected"
	Metadata  map[string]any
	Source    string // "api", "system"
	RequestID string
}

const (
	ActionAuthRejected        = "auth.rejected"
	ActionMembershipChecked   = "membership.checked"
	ActionSubscribeStarted    = "subscribe.started"
	ActionSubscribeVerified   = "subscribe.verified"
	ActionAdsSessionStarted   = "ads.session_started"
	ActionAdsSessionVerified  = "ads.session_verified"
	ActionWithdrawalRequested = "withdraw.requested"
)

const (
	MetadataChat     = "chat"
	MetadataStatus   = "status"
	MetadataReason   = "reason"
	MetadataIsMember = "is_member"
	MetadataProvider = "provider"
	MetadataPath     = "path"
	MetadataSession  = "session_id"
	MetadataAmount   = "amount"
)

const SourceAPI = "api"

// Logger is the audit logging interface. Log is fire-and-forget.
type Logger interface {
	Log(ctx context.Context, event Event)
	Close() error
}

// NopLogger is a no-op audit logger for testing and when audit is disabled.
type NopLogger struct{}

func (NopLogger) Log(context.Context, Event) {}
func (NopLogger) Close() error               { return nil }

// UserIDFromContext returns the authenticated user's id, or nil.
func UserIDFromContext(ctx context.Context) *int64 {
	user := auth.GetUser(ctx)
	if user == nil {
		return nil
	}
	id := user.ID
	return &id
}
