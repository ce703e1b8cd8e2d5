package domain

// Confirmation is the canonical payment confirmation produced by the
// transport layer, whether it arrived as a client redirect callback or
// as a webhook delivery. The reconciliation service never sees raw
// transport payloads.
type Confirmation struct {
	OrderID   string
	PaymentID string
	// Signature is the gateway's HMAC over "<order id>|<payment id>".
	Signature string
	// EventID is set on the webhook path only and is recorded for
	// audit; it is not what makes reconciliation idempotent.
	EventID string
}
