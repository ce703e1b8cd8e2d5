package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"checkout/internal/domain"
)

var ErrNoOrderID = errors.New("confirmation carries no order id")

// Field aliases seen across gateway callback variants. The first
// non-empty alias wins.
var (
	orderIDAliases   = []string{"razorpay_order_id", "order_id", "ordId"}
	paymentIDAliases = []string{"razorpay_payment_id", "payment_id", "payId"}
	signatureAliases = []string{"razorpay_signature", "signature", "sign"}
)

// NormalizeConfirmation turns a raw callback body (JSON or
// form-encoded) into the canonical confirmation. It is the only place
// that knows about transport field names; everything past this point
// works with domain.Confirmation. A missing payment id is legal here;
// asynchronous wallet flows deliver it later and the reconcile service
// reports that as a retryable condition.
func NormalizeConfirmation(contentType string, body []byte) (domain.Confirmation, error) {
	fields, err := parseFields(contentType, body)
	if err != nil {
		return domain.Confirmation{}, err
	}

	conf := domain.Confirmation{
		OrderID:   firstNonEmpty(fields, orderIDAliases),
		PaymentID: firstNonEmpty(fields, paymentIDAliases),
		Signature: firstNonEmpty(fields, signatureAliases),
	}

	if conf.OrderID == "" {
		return domain.Confirmation{}, ErrNoOrderID
	}

	return conf, nil
}

func parseFields(contentType string, body []byte) (map[string]string, error) {
	fields := make(map[string]string)

	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") {
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, fmt.Errorf("failed to parse form body: %w", err)
		}

		for key := range values {
			fields[key] = values.Get(key)
		}

		return fields, nil
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse json body: %w", err)
	}

	for key, value := range raw {
		if s, ok := value.(string); ok {
			fields[key] = s
		}
	}

	return fields, nil
}

func firstNonEmpty(fields map[string]string, aliases []string) string {
	for _, alias := range aliases {
		if v := strings.TrimSpace(fields[alias]); v != "" {
			return v
		}
	}

	return ""
}
