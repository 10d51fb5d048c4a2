package rewards

import (
	"encoding/json"
	"net/http"

	"github.com/dailydrop/rewards/internal/audit"
)

type membershipReport struct {
	Chat              string          `json:"chat"`
	UserID            int64           `json:"userId"`
	Username          string          `json:"username,omitempty"`
	APIOK             bool            `json:"apiOk"`
	TGDescription     any             `json:"tgDescription"`
	TGResult          json.RawMessage `json:"tgResult"`
	Status            any             `json:"status"`
	Reason            any             `json:"reason"`
	InterpretedMember bool            `json:"interpretedMember"`
	Timestamp         string          `json:"timestamp"`
}

// HandleMembershipCheck runs one membership lookup for the caller and
// returns the raw API verdict next to the interpretation.
// POST /membership/check
func (h *Handler) HandleMembershipCheck(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	chat, err := h.checker.Channel().MembershipChat()
	if err != nil {
		writeError(w, http.StatusBadRequest, errNoChatConfig)
		return
	}

	res := h.checker.CheckChat(r.Context(), chat, user.ID)

	report := membershipReport{
		Chat:              chat,
		UserID:            user.ID,
		Username:          user.Username,
		APIOK:             res.APIOK,
		TGDescription:     nullable(res.Description),
		TGResult:          json.RawMessage("null"),
		Status:            nullable(res.Status),
		Reason:            nullable(res.Reason),
		InterpretedMember: res.IsMember,
		Timestamp:         h.timestamp(),
	}
	if res.Member != nil && len(res.Member.Raw) > 0 {
		report.TGResult = res.Member.Raw
	}

	h.logEvent(r, audit.ActionMembershipChecked, map[string]any{
		audit.MetadataChat:     chat,
		audit.MetadataIsMember: res.IsMember,
		audit.MetadataStatus:   res.Status,
		audit.MetadataReason:   res.Reason,
	})
	writeJSON(w, http.StatusOK, report)
}
