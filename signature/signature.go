// Package signature authenticates gateway payment callbacks and webhooks.
//
// Both checks are HMAC-SHA256 with a shared secret and compare in constant
// time. Every failure path returns false; nothing here returns an error that
// could carry the secret or the expected digest.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Verify reports whether sig is the hex HMAC-SHA256 of "orderID|paymentID"
// under secret.
func Verify(orderID, paymentID, sig, secret string) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	if secret == "" || orderID == "" || paymentID == "" || sig == "" {
		return false
	}
	return equalHex(sig, mac([]byte(orderID+"|"+paymentID), secret))
}

// VerifyWebhook reports whether sig is the hex HMAC-SHA256 of the raw request
// body under secret.
func VerifyWebhook(body []byte, sig, secret string) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	if secret == "" || sig == "" || len(body) == 0 {
		return false
	}
	return equalHex(sig, mac(body, secret))
}

// Sign produces the callback signature the gateway would send for the pair.
func Sign(orderID, paymentID, secret string) string {
	return hex.EncodeToString(mac([]byte(orderID+"|"+paymentID), secret))
}

// SignWebhook produces the webhook signature for body.
func SignWebhook(body []byte, secret string) string {
	return hex.EncodeToString(mac(body, secret))
}

func mac(msg []byte, secret string) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(msg)
	return h.Sum(nil)
}

func equalHex(sig string, expected []byte) bool {
	got, err := hex.DecodeString(strings.TrimSpace(sig))
	if err != nil || len(got) != len(expected) {
		return false
	}
	return hmac.Equal(got, expected)
}

// Verifier binds a callback secret so callers never handle it directly.
type Verifier struct {
	secret string
}

// NewVerifier returns a Verifier for secret.
func NewVerifier(secret string) Verifier {
	return Verifier{secret: secret}
}

// Verify checks a payment callback.
func (v Verifier) Verify(orderID, paymentID, sig string) bool {
	return Verify(orderID, paymentID, sig, v.secret)
}

// String hides the secret from %v and %s formatting.
func (v Verifier) String() string {
	return "signature.Verifier{secret:<redacted>}"
}

// GoString hides the secret from %#v formatting.
func (v Verifier) GoString() string {
	return v.String()
}
