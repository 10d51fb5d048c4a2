package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

const (
	hashField     = "hash"
	webAppDataKey = "WebAppData"
	DemoHash      = "demo_hash"
)

// ParseInitData decodes a query-encoded launch payload.
func ParseInitData(initData string) (url.Values, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	return values, nil
}

// DataCheckString renders fields as sorted "key=value" lines joined by
// "\n". The hash field is excluded. Repeated keys keep their order.
func DataCheckString(fields url.Values) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == hashField {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range fields[k] {
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(v)
		}
	}
	return b.String()
}

func secretKey(botToken string) []byte {
	mac := hmac.New(sha256.New, []byte(webAppDataKey))
	mac.Write([]byte(botToken))
	return mac.Sum(nil)
}

// Signature computes the lowercase hex signature of fields.
func Signature(fields url.Values, botToken string) string {
	mac := hmac.New(sha256.New, secretKey(botToken))
	mac.Write([]byte(DataCheckString(fields)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Sign returns fields encoded as a launch payload with a valid hash.
func Sign(fields url.Values, botToken string) string {
	signed := url.Values{}
	for k, vs := range fields {
		if k == hashField {
			continue
		}
		signed[k] = append([]string(nil), vs...)
	}
	signed.Set(hashField, Signature(signed, botToken))
	return signed.Encode()
}

// Verifier checks launch payload signatures against a bot token.
type Verifier struct {
	botToken      string
	allowDemoHash bool
}

func NewVerifier(botToken string, allowDemoHash bool) *Verifier {
	return &Verifier{botToken: botToken, allowDemoHash: allowDemoHash}
}

// Verify checks the hash of already parsed fields. It reports whether the
// payload was accepted through the demo sentinel.
func (v *Verifier) Verify(fields url.Values) (demo bool, err error) {
	hash := fields.Get(hashField)
	if hash == "" {
		return false, ErrMissingHash
	}

	expected := Signature(fields, v.botToken)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(hash))) == 1 {
		return false, nil
	}
	if v.allowDemoHash && hash == DemoHash {
		return true, nil
	}
	return false, ErrSignatureMismatch
}
