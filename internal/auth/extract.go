package auth

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

const maxBodyBytes = 1 << 20

// Request is the view of an inbound request the extractor needs.
// ParsedBody returns a map[string]any for structured bodies, a string for
// everything else, or nil when there is no body.
type Request interface {
	Header(name string) string
	QueryParam(name string) string
	ParsedBody() any
	RawBody() string
}

var initDataHeaders = []string{
	"X-Telegram-Init",
	"X-Telegram-Init-Data",
	"X-Tg-Init-Data",
	"X-Tg-Initdata",
	"X-Telegram-Initdata",
	"Telegram-Init-Data",
}

var initDataQueryParams = []string{
	"init",
	"initData",
	"tgWebAppData",
	"tg_init_data",
	"telegram_init_data",
}

// InitDataSources holds the candidate payload found at each location.
// Raw is set only when the unparsed body looks like a payload.
type InitDataSources struct {
	Header string
	Body   string
	Query  string
	Raw    string
}

// LocateInitData inspects every supported location without choosing one.
func LocateInitData(r Request) InitDataSources {
	var src InitDataSources
	src.Header = initDataFromHeaders(r)
	src.Body = initDataFromBody(r.ParsedBody())
	for _, name := range initDataQueryParams {
		if v := r.QueryParam(name); v != "" {
			src.Query = v
			break
		}
	}
	if raw := r.RawBody(); looksLikeInitData(raw) {
		src.Raw = raw
	}
	return src
}

// ExtractInitData locates the launch payload. Headers win over the parsed
// body, the body over query parameters, and a raw body that looks like a
// payload is the last resort. It returns "" when nothing is found.
func ExtractInitData(r Request) string {
	src := LocateInitData(r)
	switch {
	case src.Header != "":
		slog.Debug("init data found", "source", "header", "len", len(src.Header))
		return src.Header
	case src.Body != "":
		slog.Debug("init data found", "source", "body", "len", len(src.Body))
		return src.Body
	case src.Query != "":
		slog.Debug("init data found", "source", "query", "len", len(src.Query))
		return src.Query
	case src.Raw != "":
		slog.Debug("init data found", "source", "raw_body", "len", len(src.Raw))
		return src.Raw
	}
	return ""
}

func initDataFromHeaders(r Request) string {
	for _, name := range initDataHeaders {
		if v := r.Header(name); v != "" {
			return v
		}
	}
	token, ok := bearerToken(r.Header("Authorization"))
	if ok {
		return token
	}
	return ""
}

func initDataFromBody(body any) string {
	switch b := body.(type) {
	case map[string]any:
		s, _ := b["initData"].(string)
		return s
	case string:
		var decoded any
		if err := json.Unmarshal([]byte(b), &decoded); err == nil {
			obj, _ := decoded.(map[string]any)
			s, _ := obj["initData"].(string)
			return s
		}
		if looksLikeInitData(b) {
			return b
		}
	}
	return ""
}

func looksLikeInitData(s string) bool {
	return strings.Contains(s, "query_id=") || strings.Contains(s, "user=")
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// HTTPRequest adapts *http.Request to Request. The body is read once and
// restored so downstream handlers can decode it again.
type HTTPRequest struct {
	r      *http.Request
	raw    string
	parsed any
}

func NewHTTPRequest(r *http.Request) *HTTPRequest {
	h := &HTTPRequest{r: r}
	if r.Body != nil && r.Body != http.NoBody {
		data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		_ = r.Body.Close()
		if err != nil {
			slog.Debug("reading request body failed", "error", err)
		}
		r.Body = io.NopCloser(bytes.NewReader(data))
		h.raw = string(data)
	}
	h.parsed = parseBody(h.raw, r.Header.Get("Content-Type"))
	return h
}

func (h *HTTPRequest) Header(name string) string { return h.r.Header.Get(name) }

func (h *HTTPRequest) QueryParam(name string) string { return h.r.URL.Query().Get(name) }

func (h *HTTPRequest) ParsedBody() any { return h.parsed }

func (h *HTTPRequest) RawBody() string { return h.raw }

func parseBody(raw, contentType string) any {
	if raw == "" {
		return nil
	}
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch mediaType {
	case "application/json":
		var obj map[string]any
		if err := json.Unmarshal([]byte(raw), &obj); err == nil && obj != nil {
			return obj
		}
		var s string
		if err := json.Unmarshal([]byte(raw), &s); err == nil {
			return s
		}
	case "application/x-www-form-urlencoded":
		if values, err := url.ParseQuery(raw); err == nil {
			obj := make(map[string]any, len(values))
			for k := range values {
				obj[k] = values.Get(k)
			}
			return obj
		}
	}
	return raw
}
