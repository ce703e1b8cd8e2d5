package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// WebhookRepository records delivered webhook event ids. The record is
// an audit trail of what the gateway sent; reconciliation stays
// idempotent through the order's PAID check, not through this table.
type WebhookRepository interface {
	RecordEventTx(ctx context.Context, tx pgx.Tx, eventID, eventType string) (firstDelivery bool, err error)
}

type webhookRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewWebhookRepository(pool *pgxpool.Pool, logger *zap.Logger) WebhookRepository {
	return &webhookRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("repository/webhook_repo"),
	}
}

func (r *webhookRepo) RecordEventTx(ctx context.Context, tx pgx.Tx, eventID, eventType string) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "WebhookRepository.RecordEventTx")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.String("event_type", eventType),
	)

	query := `
		INSERT INTO webhook_events (event_id, event_type, processed_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (event_id) DO NOTHING
	`

	commandTag, err := tx.Exec(ctx, query, eventID, eventType)
	if err != nil {
		span.RecordError(err)

		return false, fmt.Errorf("failed to record webhook event: %w", err)
	}

	return commandTag.RowsAffected() == 1, nil
}
