package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes the gateway's payment signature: hex-encoded
// HMAC-SHA256 over "<orderID>|<paymentID>".
func Sign(orderID, paymentID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether sig is the valid payment signature for the
// (orderID, paymentID) pair under secret. Malformed input returns
// false rather than an error; the caller treats all failures the same.
// The comparison is constant-time.
func Verify(orderID, paymentID, sig, secret string) bool {
	if orderID == "" || paymentID == "" || sig == "" || secret == "" {
		return false
	}

	expected := Sign(orderID, paymentID, secret)
	return hmac.Equal([]byte(expected), []byte(sig))
}

// VerifyWebhookBody checks the transport-level signature a webhook
// delivery carries over its raw request body. This uses a separate
// secret and is independent of the per-payment check above; on the
// webhook path both must pass.
func VerifyWebhookBody(body []byte, sig, secret string) bool {
	if len(body) == 0 || sig == "" || secret == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(sig))
}
