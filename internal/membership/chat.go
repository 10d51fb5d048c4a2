package membership

import (
	"errors"
	"regexp"
	"strings"
)

var (
	ErrNoChatConfig     = errors.New("no_chat_config")
	ErrNoJoinLinkConfig = errors.New("no_join_link_config")
)

var channelURLPattern = regexp.MustCompile(`(?i)t\.me/(?:c/)?([^/?#]+)`)

// ChannelConfig identifies the sponsor channel. Any subset of fields may be
// set; the resolvers apply a fixed precedence.
type ChannelConfig struct {
	ID       string
	Username string
	URL      string
	Invite   string
}

// MembershipChat returns the chat identifier to query: the numeric id,
// then @username, then the handle parsed from the channel URL.
func (c ChannelConfig) MembershipChat() (string, error) {
	if id := strings.TrimSpace(c.ID); id != "" {
		return id, nil
	}
	if username := strings.TrimLeft(strings.TrimSpace(c.Username), "@"); username != "" {
		return "@" + username, nil
	}
	if m := channelURLPattern.FindStringSubmatch(strings.TrimSpace(c.URL)); m != nil {
		return "@" + m[1], nil
	}
	return "", ErrNoChatConfig
}

// JoinLink returns the URL users open to join: the invite link, then the
// public username link, then the channel URL.
func (c ChannelConfig) JoinLink() (string, error) {
	if invite := strings.TrimSpace(c.Invite); invite != "" {
		return invite, nil
	}
	if username := strings.TrimLeft(strings.TrimSpace(c.Username), "@"); username != "" {
		return "https://t.me/" + username, nil
	}
	if u := strings.TrimSpace(c.URL); u != "" {
		return u, nil
	}
	return "", ErrNoJoinLinkConfig
}
