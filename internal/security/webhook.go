package security

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strings"
)

// WebhookVerifier checks the gateway's HMAC-SHA512 signature over a webhook
// body. The body must be the bytes exactly as read off the wire; parsing and
// re-encoding it first changes field order and number formatting.
type WebhookVerifier struct {
	secret []byte
}

func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: []byte(secret)}
}

// Sign returns the lowercase hex signature for rawBody.
func (v *WebhookVerifier) Sign(rawBody []byte) string {
	mac := hmac.New(sha512.New, v.secret)
	mac.Write(rawBody)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signatureHeader matches rawBody. An empty secret or
// header never verifies.
func (v *WebhookVerifier) Verify(rawBody []byte, signatureHeader string) bool {
	if len(v.secret) == 0 {
		return false
	}

	got, err := hex.DecodeString(strings.TrimSpace(signatureHeader))
	if err != nil || len(got) != sha512.Size {
		return false
	}

	mac := hmac.New(sha512.New, v.secret)
	mac.Write(rawBody)
	return hmac.Equal(mac.Sum(nil), got)
}
