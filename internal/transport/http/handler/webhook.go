package handler

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"checkout/internal/domain"
	"checkout/internal/service"
	"checkout/internal/signature"
	"checkout/pkg/mylogger"
)

type WebhookHandler struct {
	reconcileService service.ReconcileService
	webhookSecret    string
	logger           *zap.Logger
}

func NewWebhookHandler(
	reconcileService service.ReconcileService,
	webhookSecret string,
	logger *zap.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		reconcileService: reconcileService,
		webhookSecret:    webhookSecret,
		logger:           logger,
	}
}

type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID        string `json:"id"`
				OrderID   string `json:"order_id"`
				Signature string `json:"signature"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// HandlePaymentWebhook processes asynchronous gateway deliveries. The
// transport signature over the raw body is checked before the body is
// parsed; the per-payment signature inside the envelope is then checked
// by the reconcile service. Both are mandatory.
func (h *WebhookHandler) HandlePaymentWebhook(c *fiber.Ctx) error {
	rawBody := c.Body()
	headerSig := c.Get("X-Razorpay-Signature")

	if !signature.VerifyWebhookBody(rawBody, headerSig, h.webhookSecret) {
		h.logger.Warn("Webhook transport signature verification failed")

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "bad signature",
		})
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(rawBody, &envelope); err != nil {
		h.logger.Warn(
			"Failed to unmarshal webhook envelope",
			zap.Error(err),
		)

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "malformed payload",
		})
	}

	// Only successful captures change state; everything else is acked
	// so the gateway stops redelivering it.
	if envelope.Event != "payment.captured" {
		return c.SendStatus(fiber.StatusOK)
	}

	conf := domain.Confirmation{
		OrderID:   envelope.Payload.Payment.Entity.OrderID,
		PaymentID: envelope.Payload.Payment.Entity.ID,
		Signature: envelope.Payload.Payment.Entity.Signature,
		EventID:   c.Get("X-Razorpay-Event-Id"),
	}

	outcome, order, err := h.reconcileService.Reconcile(c.UserContext(), conf)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidSignature):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid signature",
			})
		case errors.Is(err, service.ErrStockExhausted):
			// Redelivery cannot repair exhausted stock; ack so the
			// gateway stops retrying. The order stays initiated.
			mylogger.Error(
				c.UserContext(),
				h.logger,
				"Webhook reconciliation hit exhausted stock",
				zap.String("order_id", conf.OrderID),
				zap.Error(err),
			)

			return c.SendStatus(fiber.StatusOK)
		case errors.Is(err, service.ErrPaymentPending):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "capture without payment id",
			})
		default:
			mylogger.Error(
				c.UserContext(),
				h.logger,
				"Webhook reconciliation failed, gateway will redeliver",
				zap.String("order_id", conf.OrderID),
				zap.Error(err),
			)

			return c.SendStatus(fiber.StatusInternalServerError)
		}
	}

	mylogger.Info(
		c.UserContext(),
		h.logger,
		"Webhook processed",
		zap.String("order_id", order.ID),
		zap.String("outcome", string(outcome)),
	)

	return c.SendStatus(fiber.StatusOK)
}
