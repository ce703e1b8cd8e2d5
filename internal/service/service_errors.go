package service

import "errors"

var (
	// ErrInvalidSignature means the confirmation's HMAC did not verify.
	// Untrusted input; never retried blindly.
	ErrInvalidSignature = errors.New("invalid payment signature")

	// ErrStockExhausted means a line of the order's cart would take
	// inventory below zero. The whole reconciliation is aborted.
	ErrStockExhausted = errors.New("stock exhausted")

	// ErrPaymentPending means required confirmation fields are not
	// available yet (asynchronous wallet flows deliver the payment id
	// later). The caller should retry the whole confirmation.
	ErrPaymentPending = errors.New("payment not yet finalized")
)
