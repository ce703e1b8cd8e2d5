package http

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"checkout/internal/transport/http/handler"
)

type Handlers struct {
	Checkout *handler.CheckoutHandler
	Webhook  *handler.WebhookHandler
}

func RegisterRoutes(app *fiber.App, h *Handlers) {
	api := app.Group("/api/checkout")

	api.Post("/orders", h.Checkout.CreateOrder)
	api.Get("/orders/:id", h.Checkout.GetOrder)
	api.Post("/confirm", h.Checkout.Confirm)

	app.Post("/webhooks/razorpay", h.Webhook.HandlePaymentWebhook)
}

// NewRateLimiter throttles interactive API traffic per client IP.
// Gateway webhook deliveries arrive in bursts from a handful of egress
// IPs and a 429 counts as a failed delivery there, so the webhook
// routes are exempt.
func NewRateLimiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        20,
		Expiration: 5 * time.Second,
		Next: func(c *fiber.Ctx) bool {
			return strings.HasPrefix(c.Path(), "/webhooks/")
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests. Try again later.",
			})
		},
	})
}
