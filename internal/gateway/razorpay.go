package gateway

import (
	"context"
	"fmt"
	"time"

	razorpay "github.com/razorpay/razorpay-go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"checkout/pkg/mylogger"
	"checkout/pkg/utils"
)

// Client is the narrow surface this service needs from the payment
// gateway: create an order for an amount and get its identifier back.
type Client interface {
	CreateOrder(ctx context.Context, amount int64, currency, receipt string) (string, error)
}

type razorpayClient struct {
	client *razorpay.Client
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

func NewRazorpayClient(keyID, keySecret string, logger *zap.Logger) Client {
	settings := gobreaker.Settings{
		Name:        "RazorpayOrders",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn(
				"Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &razorpayClient{
		client: razorpay.NewClient(keyID, keySecret),
		cb:     gobreaker.NewCircuitBreaker(settings),
		logger: logger,
	}
}

func (c *razorpayClient) CreateOrder(ctx context.Context, amount int64, currency, receipt string) (string, error) {
	data := map[string]interface{}{
		"amount":          amount,
		"currency":        currency,
		"receipt":         receipt,
		"payment_capture": 1,
	}

	body, err := utils.ExecuteWithBreaker(c.cb, func() (map[string]interface{}, error) {
		return c.client.Order.Create(data, nil)
	})
	if err != nil {
		mylogger.Warn(
			ctx,
			c.logger,
			"Gateway order creation failed",
			zap.Int64("amount", amount),
			zap.String("currency", currency),
			zap.Error(err),
		)

		return "", fmt.Errorf("gateway order creation failed: %w", err)
	}

	orderID, ok := body["id"].(string)
	if !ok || orderID == "" {
		return "", fmt.Errorf("gateway returned no order id")
	}

	mylogger.Info(
		ctx,
		c.logger,
		"Gateway order created",
		zap.String("order_id", orderID),
		zap.Int64("amount", amount),
		zap.String("currency", currency),
	)

	return orderID, nil
}
