// Package membership decides whether a user belongs to the sponsor channel.
package membership

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dailydrop/rewards/internal/telegram"
)

// Result reasons, returned as values rather than errors.
const (
	ReasonMissingBotToken = "missing_bot_token"
	ReasonInvalidUserID   = "invalid_user_id"
	ReasonNoChatConfig    = "no_chat_config"
	ReasonNotMember       = "not_member"
	ReasonAPINotOK        = "tg_api_not_ok"
	ReasonNetworkError    = "network_error"
	ReasonCheckFailed     = "check_failed"
)

const statusRestrictedMember = "restricted(is_member=true)"

// MemberLookup is the Bot API call the checker depends on.
type MemberLookup interface {
	HasToken() bool
	GetChatMember(ctx context.Context, chatID string, userID int64) (*telegram.ChatMember, error)
}

// Result is the outcome of one membership check.
type Result struct {
	IsMember    bool                 `json:"isMember"`
	Status      string               `json:"status,omitempty"`
	Chat        string               `json:"chat,omitempty"`
	Reason      string               `json:"reason,omitempty"`
	APIOK       bool                 `json:"apiOk"`
	Description string               `json:"description,omitempty"`
	Member      *telegram.ChatMember `json:"-"`
}

// Checker resolves membership with a single Bot API call per check.
type Checker struct {
	lookup  MemberLookup
	channel ChannelConfig
	logger  *slog.Logger
}

func NewChecker(lookup MemberLookup, channel ChannelConfig, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{lookup: lookup, channel: channel, logger: logger}
}

// Channel returns the configured channel.
func (c *Checker) Channel() ChannelConfig {
	return c.channel
}

// Check never returns an error; failures are reported through Reason.
func (c *Checker) Check(ctx context.Context, userID int64) Result {
	if !c.lookup.HasToken() {
		return Result{Reason: ReasonMissingBotToken}
	}
	if userID <= 0 {
		return Result{Reason: ReasonInvalidUserID}
	}
	chat, err := c.channel.MembershipChat()
	if err != nil {
		return Result{Reason: ReasonNoChatConfig}
	}
	return c.CheckChat(ctx, chat, userID)
}

// CheckChat checks userID against an explicit chat identifier.
func (c *Checker) CheckChat(ctx context.Context, chat string, userID int64) Result {
	res := Result{Chat: chat}

	member, err := c.lookup.GetChatMember(ctx, chat, userID)
	if err != nil {
		if apiErr, ok := telegram.AsAPIError(err); ok {
			res.Description = apiErr.Description
			res.Reason = apiErr.Description
			if res.Reason == "" {
				res.Reason = ReasonAPINotOK
			}
			c.logger.Info("membership lookup rejected", "chat", chat, "user_id", userID, "code", apiErr.Code)
			return res
		}
		if errors.Is(err, telegram.ErrTransport) {
			res.Reason = ReasonNetworkError
		} else {
			res.Reason = ReasonCheckFailed
		}
		c.logger.Warn("membership lookup failed", "chat", chat, "user_id", userID, "error", err)
		return res
	}

	res.APIOK = true
	res.Member = member
	res.Status = member.Status
	res.IsMember = Classify(member.Status, member.IsMember)
	switch {
	case !res.IsMember:
		res.Reason = ReasonNotMember
	case member.Status == StatusRestricted:
		res.Status = statusRestrictedMember
	}
	return res
}
