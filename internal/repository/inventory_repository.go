package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"checkout/internal/domain"
	"checkout/pkg/mylogger"
)

type InventoryRepository interface {
	// DecrementManyTx applies every decrement inside the caller's
	// transaction. Any line that would take a quantity below zero
	// returns ErrInsufficientStock; the caller is expected to roll the
	// whole transaction back, so no partial decrement is ever visible.
	DecrementManyTx(ctx context.Context, tx pgx.Tx, items []domain.OrderItem) error
	GetQuantity(ctx context.Context, productID, size string) (int32, error)
}

type inventoryRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewInventoryRepository(pool *pgxpool.Pool, logger *zap.Logger) InventoryRepository {
	return &inventoryRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("repository/inventory_repo"),
	}
}

func (r *inventoryRepo) DecrementManyTx(ctx context.Context, tx pgx.Tx, items []domain.OrderItem) error {
	ctx, span := r.tracer.Start(ctx, "InventoryRepository.DecrementManyTx")
	defer span.End()

	span.SetAttributes(
		attribute.Int("items_count", len(items)),
	)

	query := `
		UPDATE inventory
		SET quantity = quantity - $3, updated_at = NOW()
		WHERE product_id = $1
			AND size = $2
			AND quantity >= $3
	`

	for _, item := range items {
		commandTag, err := tx.Exec(ctx, query, item.ProductID, item.Size, item.Quantity)
		if err != nil {
			span.RecordError(err)

			mylogger.Error(
				ctx,
				r.logger,
				"Error decreasing stock",
				zap.String("product_id", item.ProductID),
				zap.String("size", item.Size),
				zap.Int32("quantity", item.Quantity),
				zap.Error(err),
			)

			return fmt.Errorf("error decreasing stock for product %s/%s: %w", item.ProductID, item.Size, err)
		}

		if commandTag.RowsAffected() == 0 {
			mylogger.Warn(
				ctx,
				r.logger,
				"Stock underflow",
				zap.String("product_id", item.ProductID),
				zap.String("size", item.Size),
				zap.Int32("quantity", item.Quantity),
			)

			return fmt.Errorf("product %s size %s: %w", item.ProductID, item.Size, ErrInsufficientStock)
		}
	}

	return nil
}

func (r *inventoryRepo) GetQuantity(ctx context.Context, productID, size string) (int32, error) {
	ctx, span := r.tracer.Start(ctx, "InventoryRepository.GetQuantity")
	defer span.End()

	span.SetAttributes(
		attribute.String("product_id", productID),
		attribute.String("size", size),
	)

	query := `
		SELECT quantity
		FROM inventory
		WHERE product_id = $1 AND size = $2
	`

	var quantity int32
	if err := r.pool.QueryRow(ctx, query, productID, size).Scan(&quantity); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrProductNotFound
		}

		span.RecordError(err)

		return 0, fmt.Errorf("failed to query inventory: %w", err)
	}

	return quantity, nil
}
