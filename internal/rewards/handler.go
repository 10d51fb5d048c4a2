// Package rewards serves the mini-app task endpoints: channel
// subscription, ad watching and withdrawal requests.
package rewards

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"time"

	"github.com/dailydrop/rewards/internal/audit"
	"github.com/dailydrop/rewards/internal/auth"
	"github.com/dailydrop/rewards/internal/membership"
	"github.com/dailydrop/rewards/internal/platform/middleware"
	"github.com/google/uuid"
)

const (
	ProviderTelegram = "tg"
	ProviderX        = "x"

	defaultXProfileURL = "https://x.com/"
	defaultAdURL       = "https://example.com"
	defaultAdMinWatch  = 8 * time.Second

	timestampLayout = "2006-01-02T15:04:05.000Z07:00"
	maxBodyBytes    = 64 << 10
)

// Error codes returned in the "error" field.
const (
	errProviderRequired = "provider_required"
	errUnknownProvider  = "unknown_provider"
	errNoChatConfig     = "no_chat_config"
	errNoJoinLinkConfig = "no_join_link_config"
	errInvalidPayload   = "invalid_payload"
	errSessionRequired  = "session_required"
	errInvalidSession   = "invalid_session"
	errWatchIncomplete  = "watch_incomplete"
	errAlreadyClaimed   = "session_already_claimed"
	errServerError      = "server_error"
)

// Config holds reward amounts and task settings.
type Config struct {
	SubscribeAmount float64
	AdAmount        float64
	AdMinWatch      time.Duration
	AdURL           string
	XProfileURL     string
}

// Handler serves the rewards endpoints.
type Handler struct {
	authn    *auth.Authenticator
	checker  *membership.Checker
	sessions *auth.SessionService
	claims   ClaimLedger
	audit    audit.Logger
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

func NewHandler(authn *auth.Authenticator, checker *membership.Checker, sessions *auth.SessionService, claims ClaimLedger, auditLogger audit.Logger, cfg Config, logger *slog.Logger) *Handler {
	if cfg.AdMinWatch <= 0 {
		cfg.AdMinWatch = defaultAdMinWatch
	}
	if cfg.AdURL == "" {
		cfg.AdURL = defaultAdURL
	}
	if cfg.XProfileURL == "" {
		cfg.XProfileURL = defaultXProfileURL
	}
	if claims == nil {
		claims = NewMemoryClaimLedger()
	}
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		authn:    authn,
		checker:  checker,
		sessions: sessions,
		claims:   claims,
		audit:    auditLogger,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// AuditRejection records requests turned away by the auth middleware.
func (h *Handler) AuditRejection(r *http.Request, err *auth.Error) {
	h.audit.Log(r.Context(), audit.Event{
		Action: audit.ActionAuthRejected,
		Metadata: map[string]any{
			audit.MetadataReason: err.Kind,
			audit.MetadataPath:   r.URL.Path,
		},
		Source:    audit.SourceAPI,
		RequestID: middleware.GetRequestID(r.Context()),
	})
}

func (h *Handler) logEvent(r *http.Request, action string, metadata map[string]any) {
	h.audit.Log(r.Context(), audit.Event{
		UserID:    audit.UserIDFromContext(r.Context()),
		Action:    action,
		Metadata:  metadata,
		Source:    audit.SourceAPI,
		RequestID: middleware.GetRequestID(r.Context()),
	})
}

func (h *Handler) timestamp() string {
	return h.now().UTC().Format(timestampLayout)
}

// readBody decodes a JSON object or form body. Anything else, including
// malformed JSON, yields an empty map.
func readBody(r *http.Request) map[string]any {
	body := map[string]any{}
	if r.Body == nil {
		return body
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil || len(data) == 0 {
		return body
	}
	r.Body = io.NopCloser(bytes.NewReader(data))

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		values, err := url.ParseQuery(string(data))
		if err == nil {
			for k := range values {
				body[k] = values.Get(k)
			}
		}
		return body
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err == nil && obj != nil {
		return obj
	}
	return body
}

func stringField(body map[string]any, name string) string {
	s, _ := body[name].(string)
	return s
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// currentUser returns the authenticated user, answering 500 when the
// route was mounted without the auth middleware.
func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) (*auth.User, bool) {
	user := auth.GetUser(r.Context())
	if user == nil {
		h.logger.Error("handler reached without authenticated user", "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, errServerError)
		return nil, false
	}
	return user, true
}
