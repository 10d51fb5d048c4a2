package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/dailydrop/rewards/internal/audit"
	"github.com/dailydrop/rewards/internal/auth"
	"github.com/dailydrop/rewards/internal/platform/database"
	"github.com/dailydrop/rewards/internal/platform/middleware"
	"github.com/dailydrop/rewards/internal/rewards"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Dependencies holds all injected dependencies for the server.
type Dependencies struct {
	Pool               *pgxpool.Pool
	Authenticator      *auth.Authenticator
	Rewards            *rewards.Handler
	AuditHandler       *audit.Handler
	RateLimiter        *middleware.RateLimiter
	Logger             *slog.Logger
	CORSAllowedOrigins []string
}

type Server struct {
	httpServer  *http.Server
	mux         *http.ServeMux
	pool        *pgxpool.Pool
	authn       *auth.Authenticator
	requireAuth func(http.Handler) http.Handler
	handler     http.Handler
}

func New(addr string, deps Dependencies) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		mux:   mux,
		pool:  deps.Pool,
		authn: deps.Authenticator,
	}

	// Public routes
	s.route("/healthz", http.HandlerFunc(s.handleHealth), http.MethodGet)
	s.route("/readyz", http.HandlerFunc(s.handleReadiness), http.MethodGet)

	if deps.Authenticator != nil {
		var onReject auth.RejectFunc
		if deps.Rewards != nil {
			onReject = deps.Rewards.AuditRejection
		}
		s.requireAuth = auth.Middleware(deps.Authenticator, onReject)
	}

	if h := deps.Rewards; h != nil {
		s.route("/auth/selftest", http.HandlerFunc(h.HandleSelfTest), http.MethodGet, http.MethodPost)
		s.route("/subscribe/start", http.HandlerFunc(h.HandleSubscribeStart), http.MethodPost)

		// Authenticated routes
		s.protected("/membership/check", h.HandleMembershipCheck, http.MethodPost)
		s.protected("/subscribe/verify", h.HandleSubscribeVerify, http.MethodPost)
		s.protected("/ads/start", h.HandleAdsStart, http.MethodPost)
		s.protected("/ads/verify", h.HandleAdsVerify, http.MethodPost)
		s.protected("/withdraw/create", h.HandleWithdrawCreate, http.MethodPost)
	}
	if deps.AuditHandler != nil {
		s.protected("/activity", deps.AuditHandler.HandleListActivity, http.MethodGet)
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found"})
	})

	// Wrap mux with the middleware chain, innermost first
	var handler http.Handler = mux
	if deps.RateLimiter != nil {
		handler = middleware.RateLimit(deps.RateLimiter)(handler)
	}
	if len(deps.CORSAllowedOrigins) > 0 {
		handler = middleware.CORS(deps.CORSAllowedOrigins)(handler)
	}
	if deps.Logger != nil {
		handler = middleware.Logging(deps.Logger)(handler)
	}
	handler = middleware.RequestID(handler)

	s.handler = handler
	s.httpServer.Handler = handler
	return s
}

// route registers a path-only pattern so method mismatches get the JSON
// 405 from AllowMethods instead of the mux's plain-text one.
func (s *Server) route(path string, h http.Handler, methods ...string) {
	s.mux.Handle(path, middleware.AllowMethods(methods...)(h))
}

// protected registers a route behind the launch payload check. Without an
// authenticator the route is left unregistered.
func (s *Server) protected(path string, h http.HandlerFunc, methods ...string) {
	if s.requireAuth == nil {
		return
	}
	s.route(path, s.requireAuth(h), methods...)
}

// Handler returns the full middleware-wrapped handler chain (for testing).
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Start(ctx context.Context) error {
	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpServer.Addr, err)
	}

	slog.Info("server starting", "addr", listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadiness needs a bot token. The database is optional; when one is
// configured it must answer a ping.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.authn == nil || !s.authn.HasBotToken() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "bot token not configured",
		})
		return
	}

	if s.pool == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "database": "disabled"})
		return
	}

	if err := database.Ping(r.Context(), s.pool); err != nil {
		slog.Warn("readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "database ping failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "database": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
