package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignWebhookBody computes the hex HMAC-SHA256 the provider sends in the
// signature header, over the raw request body.
func SignWebhookBody(secret string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyWebhookSignature checks the signature header against the raw body.
func VerifyWebhookSignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := SignWebhookBody(secret, body)
	return hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected))
}
