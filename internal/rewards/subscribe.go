package rewards

import (
	"net/http"
	"strings"

	"github.com/dailydrop/rewards/internal/audit"
)

// providerFromRequest reads the provider from the body, falling back to the
// query string.
func providerFromRequest(r *http.Request, body map[string]any) string {
	provider := strings.TrimSpace(stringField(body, "provider"))
	if provider == "" {
		provider = strings.TrimSpace(r.URL.Query().Get("provider"))
	}
	return strings.ToLower(provider)
}

// HandleSubscribeStart returns the link the client opens for a provider.
// POST /subscribe/start
func (h *Handler) HandleSubscribeStart(w http.ResponseWriter, r *http.Request) {
	provider := providerFromRequest(r, readBody(r))

	var joinURL string
	switch provider {
	case "":
		writeError(w, http.StatusBadRequest, errProviderRequired)
		return
	case ProviderTelegram:
		link, err := h.checker.Channel().JoinLink()
		if err != nil {
			writeError(w, http.StatusBadRequest, errNoJoinLinkConfig)
			return
		}
		joinURL = link
	case ProviderX:
		joinURL = h.cfg.XProfileURL
	default:
		writeError(w, http.StatusBadRequest, errUnknownProvider)
		return
	}

	h.logEvent(r, audit.ActionSubscribeStarted, map[string]any{
		audit.MetadataProvider: provider,
	})
	writeJSON(w, http.StatusOK, map[string]string{"joinUrl": joinURL})
}

// HandleSubscribeVerify checks whether the caller completed the subscription.
// X follows cannot be verified and always report invalid.
// POST /subscribe/verify
func (h *Handler) HandleSubscribeVerify(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	provider := providerFromRequest(r, readBody(r))
	switch provider {
	case "":
		writeError(w, http.StatusBadRequest, errProviderRequired)
		return
	case ProviderX:
		h.logEvent(r, audit.ActionSubscribeVerified, map[string]any{
			audit.MetadataProvider: provider,
			audit.MetadataIsMember: false,
		})
		writeJSON(w, http.StatusOK, map[string]any{"valid": false, "amount": 0})
		return
	case ProviderTelegram:
	default:
		writeError(w, http.StatusBadRequest, errUnknownProvider)
		return
	}

	res := h.checker.Check(r.Context(), user.ID)
	h.logEvent(r, audit.ActionSubscribeVerified, map[string]any{
		audit.MetadataProvider: provider,
		audit.MetadataChat:     res.Chat,
		audit.MetadataIsMember: res.IsMember,
		audit.MetadataStatus:   res.Status,
		audit.MetadataReason:   res.Reason,
	})

	if res.IsMember {
		writeJSON(w, http.StatusOK, map[string]any{
			"valid":  true,
			"amount": h.cfg.SubscribeAmount,
			"status": res.Status,
			"chat":   res.Chat,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":  false,
		"amount": 0,
		"reason": res.Reason,
		"status": nullable(res.Status),
		"chat":   nullable(res.Chat),
	})
}
