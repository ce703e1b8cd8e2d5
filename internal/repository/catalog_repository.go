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
)

// CatalogRepository is the read side of the product catalog. Prices
// come from here at order creation; client-submitted amounts are never
// used.
type CatalogRepository interface {
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)
}

type catalogRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewCatalogRepository(pool *pgxpool.Pool, logger *zap.Logger) CatalogRepository {
	return &catalogRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("repository/catalog_repo"),
	}
}

func (r *catalogRepo) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	ctx, span := r.tracer.Start(ctx, "CatalogRepository.GetProduct")
	defer span.End()

	span.SetAttributes(
		attribute.String("product_id", productID),
	)

	query := `
		SELECT id, name, price, currency, created_at, updated_at
		FROM products
		WHERE id = $1
	`

	var product domain.Product
	if err := r.pool.QueryRow(ctx, query, productID).Scan(
		&product.ID,
		&product.Name,
		&product.Price,
		&product.Currency,
		&product.CreatedAt,
		&product.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}

		span.RecordError(err)

		return nil, fmt.Errorf("failed to query product: %w", err)
	}

	return &product, nil
}
