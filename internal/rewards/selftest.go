package rewards

import (
	"net/http"

	"github.com/dailydrop/rewards/internal/auth"
)

type selfTestReport struct {
	Timestamp      string `json:"timestamp"`
	HaveToken      bool   `json:"haveToken"`
	HaveInitHeader bool   `json:"haveInitHeader"`
	HaveInitBody   bool   `json:"haveInitBody"`
	HaveInitQuery  bool   `json:"haveInitQuery"`
	HeaderInitLen  int    `json:"headerInitLen"`
	BodyInitLen    int    `json:"bodyInitLen"`
	QueryInitLen   int    `json:"queryInitLen"`
	TotalInitLen   int    `json:"totalInitLen"`
	Signature      string `json:"signature,omitempty"`
	UserID         int64  `json:"userId,omitempty"`
	Username       string `json:"username,omitempty"`
	Error          string `json:"error,omitempty"`
	ErrorStatus    int    `json:"errorStatus,omitempty"`
}

// HandleSelfTest reports where the launch payload was found and whether it
// verifies. It authenticates on its own so failures are described rather
// than just rejected. The bot token is never echoed.
// GET|POST /auth/selftest
func (h *Handler) HandleSelfTest(w http.ResponseWriter, r *http.Request) {
	req := auth.NewHTTPRequest(r)
	src := auth.LocateInitData(req)
	initData := auth.ExtractInitData(req)

	report := selfTestReport{
		Timestamp:      h.timestamp(),
		HaveToken:      h.authn.HasBotToken(),
		HaveInitHeader: src.Header != "",
		HaveInitBody:   src.Body != "",
		HaveInitQuery:  src.Query != "",
		HeaderInitLen:  len(src.Header),
		BodyInitLen:    len(src.Body),
		QueryInitLen:   len(src.Query),
		TotalInitLen:   len(initData),
	}

	user, err := h.authn.AuthenticateInitData(initData)
	if err != nil {
		authErr, ok := auth.AsError(err)
		if !ok {
			authErr = &auth.Error{Kind: errServerError, Status: http.StatusInternalServerError}
		}
		report.Error = authErr.Kind
		report.ErrorStatus = authErr.Status
		writeJSON(w, authErr.Status, report)
		return
	}

	report.Signature = "ok"
	report.UserID = user.ID
	report.Username = user.Username
	writeJSON(w, http.StatusOK, report)
}
