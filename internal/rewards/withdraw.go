package rewards

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/dailydrop/rewards/internal/audit"
)

type withdrawalRequest struct {
	Amount  float64
	Address string
	Memo    string
	Network string
}

func parseWithdrawal(body map[string]any) (withdrawalRequest, bool) {
	req := withdrawalRequest{
		Address: strings.TrimSpace(stringField(body, "address")),
		Memo:    strings.TrimSpace(stringField(body, "memo")),
		Network: strings.TrimSpace(stringField(body, "network")),
	}

	var err error
	switch v := body["amount"].(type) {
	case json.Number:
		req.Amount, err = v.Float64()
	case string:
		req.Amount, err = strconv.ParseFloat(strings.TrimSpace(v), 64)
	case float64:
		req.Amount = v
	default:
		return req, false
	}
	if err != nil || math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) || req.Amount <= 0 {
		return req, false
	}
	if req.Address == "" || req.Network == "" {
		return req, false
	}
	return req, true
}

// HandleWithdrawCreate accepts a withdrawal request. Payouts happen
// elsewhere; this only validates and acknowledges.
// POST /withdraw/create
func (h *Handler) HandleWithdrawCreate(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	req, valid := parseWithdrawal(readBody(r))
	if !valid {
		writeError(w, http.StatusBadRequest, errInvalidPayload)
		return
	}

	id := strings.ReplaceAll(h.newID(), "-", "")
	if len(id) > 8 {
		id = id[:8]
	}
	id = "wd_" + id
	h.logEvent(r, audit.ActionWithdrawalRequested, map[string]any{
		audit.MetadataAmount: req.Amount,
		"network":            req.Network,
		"withdrawal_id":      id,
	})
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "userId": user.ID})
}
