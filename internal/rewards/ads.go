package rewards

import (
	"net/http"
	"strings"

	"github.com/dailydrop/rewards/internal/audit"
	"github.com/dailydrop/rewards/internal/auth"
)

// HandleAdsStart opens an ad-watch session for the caller.
// POST /ads/start
func (h *Handler) HandleAdsStart(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	session := auth.AdSession{
		ID:        strings.ReplaceAll(h.newID(), "-", ""),
		UserID:    user.ID,
		StartedAt: h.now(),
	}
	sig, err := h.sessions.Sign(session)
	if err != nil {
		h.logger.Error("signing ad session", "error", err)
		writeError(w, http.StatusInternalServerError, errServerError)
		return
	}

	h.logEvent(r, audit.ActionAdsSessionStarted, map[string]any{
		audit.MetadataSession: session.ID,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"session":    session.ID,
		"sig":        sig,
		"minWatchMs": h.cfg.AdMinWatch.Milliseconds(),
		"adUrl":      h.cfg.AdURL,
	})
}

// HandleAdsVerify credits a session once the minimum watch time has passed.
// Each session is credited at most once.
// POST /ads/verify
func (h *Handler) HandleAdsVerify(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	body := readBody(r)
	sessionID := strings.TrimSpace(stringField(body, "session"))
	sig := strings.TrimSpace(stringField(body, "sig"))
	if sessionID == "" || sig == "" {
		writeError(w, http.StatusBadRequest, errSessionRequired)
		return
	}

	session, err := h.sessions.Validate(sig)
	if err != nil {
		h.logger.Info("ad session rejected", "error", err)
		writeError(w, http.StatusBadRequest, errInvalidSession)
		return
	}
	if session.ID != sessionID || session.UserID != user.ID {
		writeError(w, http.StatusBadRequest, errInvalidSession)
		return
	}
	if h.now().Sub(session.StartedAt) < h.cfg.AdMinWatch {
		writeError(w, http.StatusBadRequest, errWatchIncomplete)
		return
	}

	first, err := h.claims.Claim(r.Context(), session.ID, session.UserID, session.ExpiresAt)
	if err != nil {
		h.logger.Error("claiming ad session", "error", err, "session", session.ID)
		writeError(w, http.StatusInternalServerError, errServerError)
		return
	}
	if !first {
		writeError(w, http.StatusConflict, errAlreadyClaimed)
		return
	}

	h.logEvent(r, audit.ActionAdsSessionVerified, map[string]any{
		audit.MetadataSession: session.ID,
		audit.MetadataAmount:  h.cfg.AdAmount,
	})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "amount": h.cfg.AdAmount})
}
