package auth_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dailydrop/rewards/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRequest struct {
	headers map[string]string
	query   map[string]string
	parsed  any
	raw     string
}

func (f fakeRequest) Header(name string) string     { return f.headers[http.CanonicalHeaderKey(name)] }
func (f fakeRequest) QueryParam(name string) string { return f.query[name] }
func (f fakeRequest) ParsedBody() any               { return f.parsed }
func (f fakeRequest) RawBody() string               { return f.raw }

func TestExtractInitData_HeaderAliases(t *testing.T) {
	for _, name := range []string{
		"X-Telegram-Init",
		"X-Telegram-Init-Data",
		"X-Tg-Init-Data",
		"X-Tg-Initdata",
		"X-Telegram-Initdata",
		"Telegram-Init-Data",
	} {
		t.Run(name, func(t *testing.T) {
			r := fakeRequest{headers: map[string]string{name: "user=1&hash=ab"}}
			assert.Equal(t, "user=1&hash=ab", auth.ExtractInitData(r))
		})
	}
}

func TestExtractInitData_HeaderOrder(t *testing.T) {
	r := fakeRequest{headers: map[string]string{
		"X-Telegram-Init-Data": "second",
		"X-Telegram-Init":      "first",
		"Authorization":        "Bearer last",
	}}
	assert.Equal(t, "first", auth.ExtractInitData(r))
}

func TestExtractInitData_Bearer(t *testing.T) {
	r := fakeRequest{headers: map[string]string{"Authorization": "bearer query_id=1&hash=x"}}
	assert.Equal(t, "query_id=1&hash=x", auth.ExtractInitData(r))

	r = fakeRequest{headers: map[string]string{"Authorization": "Basic Zm9vOmJhcg=="}}
	assert.Empty(t, auth.ExtractInitData(r))
}

func TestExtractInitData_Precedence(t *testing.T) {
	r := fakeRequest{
		headers: map[string]string{"X-Telegram-Init-Data": "A"},
		parsed:  map[string]any{"initData": "B"},
		query:   map[string]string{"initData": "C"},
	}
	assert.Equal(t, "A", auth.ExtractInitData(r))

	r.headers = nil
	assert.Equal(t, "B", auth.ExtractInitData(r))

	r.parsed = nil
	assert.Equal(t, "C", auth.ExtractInitData(r))
}

func TestExtractInitData_StringBody(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"json string with initData", `{"initData":"user=1&hash=x"}`, "user=1&hash=x"},
		{"json without initData is not sniffed", `{"note":"user=1"}`, ""},
		{"raw payload with query_id", "query_id=AAE&user=%7B%7D&hash=x", "query_id=AAE&user=%7B%7D&hash=x"},
		{"raw payload with user", "user=%7B%22id%22%3A1%7D&hash=x", "user=%7B%22id%22%3A1%7D&hash=x"},
		{"unrelated text", "hello world", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, auth.ExtractInitData(fakeRequest{parsed: tt.body}))
		})
	}
}

func TestExtractInitData_QueryParamOrder(t *testing.T) {
	for _, name := range []string{"init", "initData", "tgWebAppData", "tg_init_data", "telegram_init_data"} {
		r := fakeRequest{query: map[string]string{name: "v-" + name}}
		assert.Equal(t, "v-"+name, auth.ExtractInitData(r))
	}

	r := fakeRequest{query: map[string]string{"tgWebAppData": "later", "init": "first"}}
	assert.Equal(t, "first", auth.ExtractInitData(r))
}

func TestExtractInitData_RawBodyLast(t *testing.T) {
	r := fakeRequest{raw: "auth_date=1&user=%7B%7D&hash=x"}
	assert.Equal(t, "auth_date=1&user=%7B%7D&hash=x", auth.ExtractInitData(r))

	r.query = map[string]string{"init": "from-query"}
	assert.Equal(t, "from-query", auth.ExtractInitData(r))

	assert.Empty(t, auth.ExtractInitData(fakeRequest{raw: "nothing here"}))
}

func TestHTTPRequest_JSONBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/membership/check?init=q", strings.NewReader(`{"initData":"user=1","provider":"tg"}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	hr := auth.NewHTTPRequest(req)

	body, ok := hr.ParsedBody().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "tg", body["provider"])
	assert.Equal(t, "q", hr.QueryParam("init"))
	assert.Equal(t, "user=1", auth.ExtractInitData(hr))

	// Body remains readable downstream.
	rest, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"initData":"user=1","provider":"tg"}`, string(rest))
}

func TestHTTPRequest_TextBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/auth/selftest", strings.NewReader("query_id=1&hash=x"))
	req.Header.Set("Content-Type", "text/plain")

	hr := auth.NewHTTPRequest(req)

	assert.Equal(t, "query_id=1&hash=x", hr.ParsedBody())
	assert.Equal(t, "query_id=1&hash=x", hr.RawBody())
	assert.Equal(t, "query_id=1&hash=x", auth.ExtractInitData(hr))
}

func TestHTTPRequest_FormBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/auth/selftest", strings.NewReader("initData=user%3D1%26hash%3Dx"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	hr := auth.NewHTTPRequest(req)

	assert.Equal(t, "user=1&hash=x", auth.ExtractInitData(hr))
}

func TestHTTPRequest_NoBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/auth/selftest", nil)
	req.Header.Set("X-Tg-Init-Data", "user=1")

	hr := auth.NewHTTPRequest(req)

	assert.Nil(t, hr.ParsedBody())
	assert.Equal(t, "user=1", auth.ExtractInitData(hr))
}

func TestLocateInitData_ReportsEverySource(t *testing.T) {
	r := fakeRequest{
		headers: map[string]string{"X-Tg-Init-Data": "A"},
		parsed:  map[string]any{"initData": "B"},
		query:   map[string]string{"tgWebAppData": "C"},
		raw:     "query_id=D",
	}

	src := auth.LocateInitData(r)

	assert.Equal(t, auth.InitDataSources{Header: "A", Body: "B", Query: "C", Raw: "query_id=D"}, src)
}
