package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"checkout/internal/domain"
	"checkout/pkg/mylogger"
)

type OrderRepository interface {
	CreateTx(ctx context.Context, tx pgx.Tx, order *domain.Order) error
	// GetForUpdateTx reads the order row under FOR UPDATE, serializing
	// concurrent reconciliation attempts on the same order.
	GetForUpdateTx(ctx context.Context, tx pgx.Tx, orderID string) (*domain.Order, error)
	MarkPaidTx(ctx context.Context, tx pgx.Tx, orderID, paymentID string, paidAt time.Time) error
	GetByID(ctx context.Context, orderID string) (*domain.Order, error)
}

type orderRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewOrderRepository(pool *pgxpool.Pool, logger *zap.Logger) OrderRepository {
	return &orderRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("repository/order_repo"),
	}
}

func (r *orderRepo) CreateTx(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.CreateTx")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", order.ID),
		attribute.Int("items_count", len(order.Items)),
	)

	queryOrder := `
		INSERT INTO orders (id, status, amount, currency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING created_at, updated_at
	`

	if err := tx.QueryRow(
		ctx,
		queryOrder,
		order.ID,
		string(order.Status),
		order.Amount,
		order.Currency,
	).Scan(
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to insert order",
			zap.String("order_id", order.ID),
			zap.Error(err),
		)

		return fmt.Errorf("failed to insert order: %w", err)
	}

	queryItem := `
		INSERT INTO order_items (order_id, product_id, size, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID

		if err := tx.QueryRow(
			ctx,
			queryItem,
			order.ID,
			item.ProductID,
			item.Size,
			item.Quantity,
			item.UnitPrice,
		).Scan(&item.ID); err != nil {
			span.RecordError(err)

			mylogger.Error(
				ctx,
				r.logger,
				"Failed to insert order item",
				zap.String("order_id", order.ID),
				zap.String("product_id", item.ProductID),
				zap.Error(err),
			)

			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	return nil
}

func (r *orderRepo) GetForUpdateTx(ctx context.Context, tx pgx.Tx, orderID string) (*domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.GetForUpdateTx")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", orderID),
	)

	query := `
		SELECT id, status, amount, currency, payment_id, paid_at, created_at, updated_at
		FROM orders
		WHERE id = $1
		FOR UPDATE
	`

	var order domain.Order
	if err := tx.QueryRow(ctx, query, orderID).Scan(
		&order.ID,
		&order.Status,
		&order.Amount,
		&order.Currency,
		&order.PaymentID,
		&order.PaidAt,
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to query order for update",
			zap.String("order_id", orderID),
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to query order for update: %w", err)
	}

	items, err := r.loadItems(ctx, tx, orderID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	order.Items = items

	return &order, nil
}

func (r *orderRepo) loadItems(ctx context.Context, q queryer, orderID string) ([]domain.OrderItem, error) {
	query := `
		SELECT id, order_id, product_id, size, quantity, unit_price
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`

	rows, err := q.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Size,
			&item.Quantity,
			&item.UnitPrice,
		); err != nil {
			return nil, fmt.Errorf("error scanning order item: %w", err)
		}

		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

func (r *orderRepo) MarkPaidTx(ctx context.Context, tx pgx.Tx, orderID, paymentID string, paidAt time.Time) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.MarkPaidTx")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", orderID),
		attribute.String("payment_id", paymentID),
	)

	// The status guard makes the initiated -> paid transition the only
	// one this query can perform; payment_id and paid_at are written in
	// the same statement as the transition.
	query := `
		UPDATE orders
		SET status = $2, payment_id = $3, paid_at = $4, updated_at = NOW()
		WHERE id = $1 AND status = $5
	`

	commandTag, err := tx.Exec(
		ctx,
		query,
		orderID,
		string(domain.OrderStatusPaid),
		paymentID,
		paidAt,
		string(domain.OrderStatusInitiated),
	)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to mark order paid",
			zap.String("order_id", orderID),
			zap.Error(err),
		)

		return fmt.Errorf("failed to mark order paid: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return ErrOrderAlreadyPaid
	}

	return nil
}

func (r *orderRepo) GetByID(ctx context.Context, orderID string) (*domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.GetByID")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", orderID),
	)

	query := `
		SELECT id, status, amount, currency, payment_id, paid_at, created_at, updated_at
		FROM orders
		WHERE id = $1
	`

	var order domain.Order
	if err := r.pool.QueryRow(ctx, query, orderID).Scan(
		&order.ID,
		&order.Status,
		&order.Amount,
		&order.Currency,
		&order.PaymentID,
		&order.PaidAt,
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}

		span.RecordError(err)

		return nil, fmt.Errorf("failed to query order: %w", err)
	}

	items, err := r.loadItems(ctx, r.pool, orderID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	order.Items = items

	return &order, nil
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}
