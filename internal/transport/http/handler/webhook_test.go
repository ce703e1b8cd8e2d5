package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"checkout/internal/domain"
	"checkout/internal/service"
)

const webhookTestSecret = "test_webhook_secret"

type stubReconcileService struct {
	outcome service.ReconcileOutcome
	order   *domain.Order
	err     error
	calls   []domain.Confirmation
}

func (s *stubReconcileService) Reconcile(_ context.Context, conf domain.Confirmation) (service.ReconcileOutcome, *domain.Order, error) {
	s.calls = append(s.calls, conf)

	return s.outcome, s.order, s.err
}

func newWebhookApp(stub *stubReconcileService) *fiber.App {
	app := fiber.New()
	h := NewWebhookHandler(stub, webhookTestSecret, zap.NewNop())
	app.Post("/webhooks/razorpay", h.HandlePaymentWebhook)

	return app
}

func signWebhookBody(body []byte) string {
	mac := hmac.New(sha256.New, []byte(webhookTestSecret))
	mac.Write(body)

	return hex.EncodeToString(mac.Sum(nil))
}

func newWebhookRequest(body []byte, transportSig string) *http.Request {
	req := httptest.NewRequest(fiber.MethodPost, "/webhooks/razorpay", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Razorpay-Signature", transportSig)

	return req
}

func capturedEnvelope() []byte {
	return []byte(`{
		"event": "payment.captured",
		"payload": {
			"payment": {
				"entity": {
					"id": "pay_def",
					"order_id": "order_abc",
					"signature": "sig_hex"
				}
			}
		}
	}`)
}

func TestWebhook_BadTransportSignature(t *testing.T) {
	stub := &stubReconcileService{}
	app := newWebhookApp(stub)

	resp, err := app.Test(newWebhookRequest(capturedEnvelope(), "0000"))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Empty(t, stub.calls, "nothing past the transport check may run")
}

func TestWebhook_MalformedBodyWithValidSignature(t *testing.T) {
	stub := &stubReconcileService{}
	app := newWebhookApp(stub)

	body := []byte(`not json`)
	resp, err := app.Test(newWebhookRequest(body, signWebhookBody(body)))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Empty(t, stub.calls)
}

func TestWebhook_IgnoredEventIsAcked(t *testing.T) {
	stub := &stubReconcileService{}
	app := newWebhookApp(stub)

	body := []byte(`{"event": "payment.failed", "payload": {}}`)
	resp, err := app.Test(newWebhookRequest(body, signWebhookBody(body)))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Empty(t, stub.calls, "only captures reach reconciliation")
}

func TestWebhook_CapturedEventForwardsConfirmation(t *testing.T) {
	stub := &stubReconcileService{
		outcome: service.OutcomeReconciled,
		order:   &domain.Order{ID: "order_abc", Status: domain.OrderStatusPaid},
	}
	app := newWebhookApp(stub)

	body := capturedEnvelope()
	req := newWebhookRequest(body, signWebhookBody(body))
	req.Header.Set("X-Razorpay-Event-Id", "evt_001")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	require.Len(t, stub.calls, 1)
	require.Equal(t, domain.Confirmation{
		OrderID:   "order_abc",
		PaymentID: "pay_def",
		Signature: "sig_hex",
		EventID:   "evt_001",
	}, stub.calls[0])
}

func TestWebhook_InvalidPaymentSignature(t *testing.T) {
	stub := &stubReconcileService{err: service.ErrInvalidSignature}
	app := newWebhookApp(stub)

	body := capturedEnvelope()
	resp, err := app.Test(newWebhookRequest(body, signWebhookBody(body)))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestWebhook_StockExhaustedIsAcked(t *testing.T) {
	// Redelivery cannot repair exhausted stock, so the delivery is
	// acknowledged instead of looping.
	stub := &stubReconcileService{err: service.ErrStockExhausted}
	app := newWebhookApp(stub)

	body := capturedEnvelope()
	resp, err := app.Test(newWebhookRequest(body, signWebhookBody(body)))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestWebhook_TransientErrorAsksForRedelivery(t *testing.T) {
	stub := &stubReconcileService{err: errors.New("connection refused")}
	app := newWebhookApp(stub)

	body := capturedEnvelope()
	resp, err := app.Test(newWebhookRequest(body, signWebhookBody(body)))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	require.Len(t, stub.calls, 1)
}
