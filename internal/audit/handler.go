package audit

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dailydrop/rewards/internal/auth"
	"github.com/dailydrop/rewards/internal/platform/database"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Handler serves the authenticated user's own activity history.
type Handler struct {
	db database.Querier
}

// NewHandler creates an activity handler. A nil db yields empty lists.
func NewHandler(db database.Querier) *Handler {
	return &Handler{db: db}
}

// HandleListActivity returns the caller's audit events, newest first.
// GET /activity?limit=50&action=ads.session_verified&after=<RFC3339>
func (h *Handler) HandleListActivity(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		writeAuditJSON(w, http.StatusUnauthorized, map[string]string{"error": auth.KindMissingInitData})
		return
	}

	params := ListEventsParams{UserID: user.ID, Limit: defaultListLimit}
	q := r.URL.Query()

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeAuditJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_limit"})
			return
		}
		params.Limit = min(n, maxListLimit)
	}
	if raw := q.Get("action"); raw != "" {
		params.Action = &raw
	}
	for name, dst := range map[string]**time.Time{"after": &params.After, "before": &params.Before} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeAuditJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_" + name})
			return
		}
		*dst = &t
	}

	if h.db == nil {
		writeAuditJSON(w, http.StatusOK, map[string]any{"events": []any{}, "count": 0})
		return
	}

	sql, args := buildListQuery(params)
	rows, err := h.db.Query(r.Context(), sql, args...)
	if err != nil {
		slog.Error("listing activity failed", "error", err)
		writeAuditJSON(w, http.StatusInternalServerError, map[string]string{"error": "server_error"})
		return
	}
	defer rows.Close()

	events := []map[string]any{}
	for rows.Next() {
		var (
			id        int64
			action    string
			metadata  json.RawMessage
			source    string
			createdAt time.Time
		)
		if err := rows.Scan(&id, &action, &metadata, &source, &createdAt); err != nil {
			slog.Warn("scanning activity row failed", "error", err)
			continue
		}
		events = append(events, map[string]any{
			"id":         id,
			"action":     action,
			"metadata":   metadata,
			"source":     source,
			"created_at": createdAt,
		})
	}
	if err := rows.Err(); err != nil {
		slog.Error("iterating activity rows failed", "error", err)
		writeAuditJSON(w, http.StatusInternalServerError, map[string]string{"error": "server_error"})
		return
	}

	writeAuditJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

func writeAuditJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
