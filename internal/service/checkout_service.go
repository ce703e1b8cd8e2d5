package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"checkout/internal/domain"
	"checkout/internal/gateway"
	"checkout/internal/repository"
	"checkout/pkg/mylogger"
)

type CartLine struct {
	ProductID string
	Size      string
	Quantity  int32
}

type CheckoutService interface {
	// CreateOrder prices the cart from the catalog, creates the
	// gateway order and persists the initiated order under the
	// gateway's id. Amounts submitted by the client are ignored.
	CreateOrder(ctx context.Context, lines []CartLine, currency string) (*domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
}

type checkoutService struct {
	pool        *pgxpool.Pool
	catalogRepo repository.CatalogRepository
	orderRepo   repository.OrderRepository
	gateway     gateway.Client
	logger      *zap.Logger
	tracer      trace.Tracer
}

func NewCheckoutService(
	pool *pgxpool.Pool,
	catalogRepo repository.CatalogRepository,
	orderRepo repository.OrderRepository,
	gatewayClient gateway.Client,
	logger *zap.Logger,
) CheckoutService {
	return &checkoutService{
		pool:        pool,
		catalogRepo: catalogRepo,
		orderRepo:   orderRepo,
		gateway:     gatewayClient,
		logger:      logger,
		tracer:      otel.Tracer("service/checkout_service"),
	}
}

func (s *checkoutService) CreateOrder(ctx context.Context, lines []CartLine, currency string) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "CheckoutService.CreateOrder")
	defer span.End()

	span.SetAttributes(
		attribute.Int("lines_count", len(lines)),
		attribute.String("currency", currency),
	)

	items := make([]domain.OrderItem, 0, len(lines))
	for _, line := range lines {
		product, err := s.catalogRepo.GetProduct(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, repository.ErrProductNotFound) {
				mylogger.Warn(
					ctx,
					s.logger,
					"Unknown product in cart",
					zap.String("product_id", line.ProductID),
				)
			}

			return nil, err
		}

		items = append(items, domain.OrderItem{
			ProductID: product.ID,
			Size:      line.Size,
			Quantity:  line.Quantity,
			UnitPrice: product.Price,
		})
	}

	order := &domain.Order{
		Status:   domain.OrderStatusInitiated,
		Currency: currency,
		Items:    items,
	}
	order.CalculateTotal()

	receipt := "rcpt_" + uuid.New().String()
	gatewayOrderID, err := s.gateway.CreateOrder(ctx, order.Amount, order.Currency, receipt)
	if err != nil {
		return nil, err
	}
	order.ID = gatewayOrderID

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)

		if err := tx.Rollback(cleanupCtx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Warn(
				cleanupCtx,
				s.logger,
				"Error rolling back transaction",
				zap.Error(err),
			)
		}
	}()

	if err := s.orderRepo.CreateTx(ctx, tx, order); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		mylogger.Error(
			ctx,
			s.logger,
			"Failed to commit transaction",
			zap.String("order_id", order.ID),
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Order created",
		zap.String("order_id", order.ID),
		zap.Int64("amount", order.Amount),
		zap.String("currency", order.Currency),
	)

	return order, nil
}

func (s *checkoutService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	return order, nil
}
