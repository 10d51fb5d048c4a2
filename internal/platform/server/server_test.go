package server_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/dailydrop/rewards/internal/audit"
	"github.com/dailydrop/rewards/internal/auth"
	"github.com/dailydrop/rewards/internal/membership"
	"github.com/dailydrop/rewards/internal/platform/middleware"
	"github.com/dailydrop/rewards/internal/platform/server"
	"github.com/dailydrop/rewards/internal/rewards"
	"github.com/dailydrop/rewards/internal/telegram"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const botToken = "12345:server-test"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestDeps wires the real handlers against a fake Bot API.
func newTestDeps(t *testing.T, botAPI http.Handler) server.Dependencies {
	t.Helper()
	api := httptest.NewServer(botAPI)
	t.Cleanup(api.Close)

	authn := auth.NewAuthenticator(auth.AuthenticatorConfig{BotToken: botToken}, quietLogger())
	client := telegram.NewClient(telegram.Config{BotToken: botToken, APIBaseURL: api.URL}, nil, quietLogger())
	checker := membership.NewChecker(client, membership.ChannelConfig{Username: "dailydrop"}, quietLogger())
	sessions := auth.NewSessionService(auth.DeriveSessionKey(botToken), time.Minute)

	return server.Dependencies{
		Authenticator: authn,
		Rewards: rewards.NewHandler(authn, checker, sessions, nil, audit.NopLogger{}, rewards.Config{
			SubscribeAmount: 0.002,
		}, quietLogger()),
		AuditHandler:       audit.NewHandler(nil),
		CORSAllowedOrigins: []string{"*"},
	}
}

func memberAPI(status string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true,"result":{"status":"` + status + `"}}`))
	})
}

func initData(userID string) string {
	return auth.Sign(url.Values{
		"auth_date": {"1700000000"},
		"user":      {`{"id":` + userID + `,"username":"alice"}`},
	}, botToken)
}

func serve(srv *server.Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestServer_HealthCheck(t *testing.T) {
	srv := server.New(":0", server.Dependencies{})

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestServer_ReadinessCheck_NoBotToken(t *testing.T) {
	authn := auth.NewAuthenticator(auth.AuthenticatorConfig{}, quietLogger())
	srv := server.New(":0", server.Dependencies{Authenticator: authn})

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "bot token not configured", decode(t, w)["reason"])
}

func TestServer_ReadinessCheck_NoDB(t *testing.T) {
	srv := server.New(":0", newTestDeps(t, memberAPI("member")))

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "ready", body["status"])
	assert.Equal(t, "disabled", body["database"])
}

func TestServer_NotFound(t *testing.T) {
	srv := server.New(":0", server.Dependencies{})

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/nonexistent", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decode(t, w)["error"])
}

func TestServer_MethodNotAllowed(t *testing.T) {
	srv := server.New(":0", newTestDeps(t, memberAPI("member")))

	// Method is checked before the launch payload.
	w := serve(srv, httptest.NewRequest(http.MethodGet, "/subscribe/verify", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "method_not_allowed", decode(t, w)["error"])
	assert.Equal(t, "POST", w.Header().Get("Allow"))
}

func TestServer_ProtectedRoute_NoInitData(t *testing.T) {
	srv := server.New(":0", newTestDeps(t, memberAPI("member")))

	w := serve(srv, httptest.NewRequest(http.MethodPost, "/ads/start", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, auth.KindMissingInitData, decode(t, w)["error"])
}

func TestServer_SubscribeStartIsPublic(t *testing.T) {
	srv := server.New(":0", newTestDeps(t, memberAPI("member")))

	req := httptest.NewRequest(http.MethodPost, "/subscribe/start", strings.NewReader(`{"provider":"tg"}`))
	req.Header.Set("Content-Type", "application/json")
	w := serve(srv, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://t.me/dailydrop", decode(t, w)["joinUrl"])
}

func TestServer_SubscribeVerify_EndToEnd(t *testing.T) {
	srv := server.New(":0", newTestDeps(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bot"+botToken+"/getChatMember", r.URL.Path)
		assert.Equal(t, "@dailydrop", r.URL.Query().Get("chat_id"))
		assert.Equal(t, "42", r.URL.Query().Get("user_id"))
		_, _ = w.Write([]byte(`{"ok":true,"result":{"status":"member"}}`))
	})))

	req := httptest.NewRequest(http.MethodPost, "/subscribe/verify", strings.NewReader(`{"provider":"tg"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Telegram-Init-Data", initData("42"))
	w := serve(srv, req)

	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, 0.002, body["amount"])
	assert.Equal(t, "member", body["status"])
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestServer_InitDataInBodyAndProvider(t *testing.T) {
	srv := server.New(":0", newTestDeps(t, memberAPI("left")))

	payload, err := json.Marshal(map[string]string{"provider": "tg", "initData": initData("42")})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/subscribe/verify", strings.NewReader(string(payload)))
	req.Header.Set("Content-Type", "application/json")
	w := serve(srv, req)

	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["valid"])
	assert.Equal(t, membership.ReasonNotMember, body["reason"])
}

func TestServer_Activity_NoDatabase(t *testing.T) {
	srv := server.New(":0", newTestDeps(t, memberAPI("member")))

	req := httptest.NewRequest(http.MethodGet, "/activity", nil)
	req.Header.Set("Authorization", "Bearer "+initData("42"))
	w := serve(srv, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_CORSPreflight(t *testing.T) {
	srv := server.New(":0", newTestDeps(t, memberAPI("member")))

	req := httptest.NewRequest(http.MethodOptions, "/ads/start", nil)
	req.Header.Set("Origin", "https://web.telegram.org")
	w := serve(srv, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-Telegram-Init-Data")
}

func TestServer_RateLimited(t *testing.T) {
	deps := newTestDeps(t, memberAPI("member"))
	deps.RateLimiter = middleware.NewRateLimiter(0.001, 1, 0)
	srv := server.New(":0", deps)

	first := serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	second := serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "rate_limited", decode(t, second)["error"])
}

func TestServer_StartStop(t *testing.T) {
	srv := server.New("127.0.0.1:0", server.Dependencies{})

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	cancel()

	err := <-errCh
	assert.NoError(t, err)
}
