package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"checkout/internal/repository"
	"checkout/internal/service"
	"checkout/pkg/mylogger"
	"checkout/pkg/utils"
)

type CheckoutHandler struct {
	checkoutService  service.CheckoutService
	reconcileService service.ReconcileService
	validate         *validator.Validate
	logger           *zap.Logger
}

func NewCheckoutHandler(
	checkoutService service.CheckoutService,
	reconcileService service.ReconcileService,
	logger *zap.Logger,
) *CheckoutHandler {
	return &CheckoutHandler{
		checkoutService:  checkoutService,
		reconcileService: reconcileService,
		validate:         validator.New(),
		logger:           logger,
	}
}

type createOrderItemInput struct {
	ProductID string `json:"product_id" validate:"required"`
	Size      string `json:"size" validate:"required"`
	Quantity  int32  `json:"quantity" validate:"required,gte=1"`
}

type createOrderInput struct {
	Items    []createOrderItemInput `json:"items" validate:"required,min=1,dive"`
	Currency string                 `json:"currency" validate:"required,len=3"`
}

func (h *CheckoutHandler) CreateOrder(c *fiber.Ctx) error {
	input := new(createOrderInput)

	if err := c.BodyParser(input); err != nil {
		h.logger.Warn(
			"Failed to parse body in create order",
			zap.Error(err),
		)

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "error parsing body",
		})
	}

	if err := h.validate.Struct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"errors": utils.FormatValidationError(err),
		})
	}

	lines := make([]service.CartLine, 0, len(input.Items))
	for _, item := range input.Items {
		lines = append(lines, service.CartLine{
			ProductID: item.ProductID,
			Size:      item.Size,
			Quantity:  item.Quantity,
		})
	}

	order, err := h.checkoutService.CreateOrder(c.UserContext(), lines, input.Currency)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "unknown product in cart",
			})
		}

		if errors.Is(err, gobreaker.ErrOpenState) {
			h.logger.Warn("Circuit breaker open")

			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "payment gateway temporarily unavailable",
			})
		}

		mylogger.Error(
			c.UserContext(),
			h.logger,
			"Create order failed",
			zap.Error(err),
		)

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to create order",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"order_id": order.ID,
		"amount":   order.Amount,
		"currency": order.Currency,
	})
}

// Confirm is the redirect-style client callback path. The webhook path
// lands in WebhookHandler; both feed the same reconcile service.
func (h *CheckoutHandler) Confirm(c *fiber.Ctx) error {
	conf, err := NormalizeConfirmation(c.Get(fiber.HeaderContentType), c.Body())
	if err != nil {
		h.logger.Warn(
			"Failed to normalize confirmation",
			zap.Error(err),
		)

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "malformed confirmation",
		})
	}

	outcome, order, err := h.reconcileService.Reconcile(c.UserContext(), conf)
	if err != nil {
		return h.mapReconcileError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"order_id":           order.ID,
		"status":             order.Status,
		"already_reconciled": outcome == service.OutcomeAlreadyReconciled,
	})
}

func (h *CheckoutHandler) GetOrder(c *fiber.Ctx) error {
	orderID := c.Params("id")

	order, err := h.checkoutService.GetOrder(c.UserContext(), orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "order not found",
			})
		}

		mylogger.Error(
			c.UserContext(),
			h.logger,
			"Get order failed",
			zap.String("order_id", orderID),
			zap.Error(err),
		)

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load order",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"order_id":   order.ID,
		"status":     order.Status,
		"amount":     order.Amount,
		"currency":   order.Currency,
		"payment_id": order.PaymentID,
		"paid_at":    order.PaidAt,
	})
}

func (h *CheckoutHandler) mapReconcileError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrPaymentPending):
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"status": "pending",
			"retry":  true,
		})
	case errors.Is(err, service.ErrInvalidSignature):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid signature",
		})
	case errors.Is(err, repository.ErrOrderNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "order not found",
		})
	case errors.Is(err, service.ErrStockExhausted):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "stock exhausted",
		})
	default:
		mylogger.Error(
			c.UserContext(),
			h.logger,
			"Reconciliation failed",
			zap.Error(err),
		)

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "reconciliation failed, retry later",
		})
	}
}
