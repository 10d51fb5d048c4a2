// Package telegram is a minimal Bot API client for membership lookups.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

const (
	DefaultAPIBaseURL = "https://api.telegram.org"
	defaultTimeout    = 10 * time.Second
	maxResponseBytes  = 64 << 10
)

var (
	// ErrTransport means the Bot API could not be reached.
	ErrTransport = errors.New("telegram transport failure")
	// ErrBadResponse means the Bot API answered with something undecodable.
	ErrBadResponse = errors.New("telegram response undecodable")
	// ErrCircuitOpen means calls are short-circuited after repeated failures.
	ErrCircuitOpen = errors.New("telegram circuit open")
)

// APIError is an "ok": false reply from the Bot API.
type APIError struct {
	Code        int
	Description string
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("telegram api error %d", e.Code)
	}
	return fmt.Sprintf("telegram api error %d: %s", e.Code, e.Description)
}

// AsAPIError extracts an *APIError from err's chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// ChatMember is the subset of the Bot API ChatMember object the service
// reads. Raw keeps the full object for diagnostics.
type ChatMember struct {
	Status   string          `json:"status"`
	IsMember *bool           `json:"is_member,omitempty"`
	User     *User           `json:"user,omitempty"`
	Raw      json.RawMessage `json:"-"`
}

type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
}

// Config configures the client.
type Config struct {
	BotToken   string
	APIBaseURL string
	Timeout    time.Duration
	// MaxFailures consecutive transport failures open the breaker for
	// OpenTimeout.
	MaxFailures int
	OpenTimeout time.Duration
}

// Client calls the Bot API. Each call is a single attempt.
type Client struct {
	httpClient *http.Client
	apiBaseURL string
	botToken   string
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
}

func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}

	apiBaseURL := strings.TrimSpace(cfg.APIBaseURL)
	if apiBaseURL == "" {
		apiBaseURL = DefaultAPIBaseURL
	}

	maxFailures := cfg.MaxFailures
	if maxFailures <= 0 {
		maxFailures = 5
	}
	openTimeout := cfg.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}

	c := &Client{
		httpClient: httpClient,
		apiBaseURL: strings.TrimRight(apiBaseURL, "/"),
		botToken:   strings.TrimSpace(cfg.BotToken),
		logger:     logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "telegram-bot-api",
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(maxFailures) // #nosec G115 -- positive, small
		},
		IsSuccessful: func(err error) bool {
			// A well-formed API rejection means the API is healthy.
			if apiErr, ok := AsAPIError(err); ok {
				return apiErr.Code < http.StatusInternalServerError
			}
			// The caller gave up; that says nothing about the API.
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return true
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// HasToken reports whether a bot token is configured.
func (c *Client) HasToken() bool {
	return c.botToken != ""
}

// GetChatMember looks up userID in chatID. chatID is a numeric id or an
// @username.
func (c *Client) GetChatMember(ctx context.Context, chatID string, userID int64) (*ChatMember, error) {
	params := url.Values{}
	params.Set("chat_id", chatID)
	params.Set("user_id", strconv.FormatInt(userID, 10))

	raw, err := c.call(ctx, "getChatMember", params)
	if err != nil {
		return nil, err
	}

	var member ChatMember
	if err := json.Unmarshal(raw, &member); err != nil {
		return nil, fmt.Errorf("%w: decoding chat member: %v", ErrBadResponse, err)
	}
	member.Raw = raw
	return &member, nil
}

func (c *Client) call(ctx context.Context, method string, params url.Values) (json.RawMessage, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		return c.do(ctx, method, params)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		return nil, err
	}
	raw, _ := result.(json.RawMessage)
	return raw, nil
}

func (c *Client) do(ctx context.Context, method string, params url.Values) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/bot%s/%s?%s", c.apiBaseURL, c.botToken, method, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building telegram request: %s", c.redact(err.Error()))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, "sending request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, c.transportError(ctx, "reading body", err)
	}

	// The Bot API reports failures with a JSON body on non-2xx statuses too.
	var response apiResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("%w: status %d: %v", ErrBadResponse, resp.StatusCode, err)
	}
	if !response.OK {
		code := response.ErrorCode
		if code == 0 {
			code = resp.StatusCode
		}
		return nil, &APIError{Code: code, Description: strings.TrimSpace(response.Description)}
	}
	if len(response.Result) == 0 || string(response.Result) == "null" {
		// An ok reply without a member reads as an empty member: not a member.
		return json.RawMessage("{}"), nil
	}
	return response.Result, nil
}

// transportError wraps a failed round trip. When the caller's context is
// done its error stays in the chain so the breaker can ignore it. The
// underlying error is flattened to redacted text because it carries the URL.
func (c *Client) transportError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w: %s: %s", ErrTransport, ctxErr, op, c.redact(err.Error()))
	}
	return fmt.Errorf("%w: %s: %s", ErrTransport, op, c.redact(err.Error()))
}

func (c *Client) redact(s string) string {
	return Redact(s, c.botToken)
}

// Redact removes every occurrence of token from s.
func Redact(s, token string) string {
	if token == "" {
		return s
	}
	s = strings.ReplaceAll(s, token, "[redacted]")
	if escaped := url.PathEscape(token); escaped != token {
		s = strings.ReplaceAll(s, escaped, "[redacted]")
	}
	return s
}
