package service

import (
	"context"
	"encoding/json"
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
	"checkout/internal/repository"
	"checkout/internal/signature"
	"checkout/pkg/mylogger"
	outboxDomain "checkout/pkg/outbox/domain"
	"checkout/pkg/outbox/worker"
)

type ReconcileOutcome string

const (
	// OutcomeReconciled: this call performed the initiated -> paid
	// transition and the inventory decrement.
	OutcomeReconciled ReconcileOutcome = "reconciled"
	// OutcomeAlreadyReconciled: the order was already paid; nothing was
	// written. Duplicate webhook deliveries and client/webhook races
	// land here.
	OutcomeAlreadyReconciled ReconcileOutcome = "already_reconciled"
)

type ReconcileService interface {
	Reconcile(ctx context.Context, conf domain.Confirmation) (ReconcileOutcome, *domain.Order, error)
}

type reconcileService struct {
	pool          *pgxpool.Pool
	orderRepo     repository.OrderRepository
	inventoryRepo repository.InventoryRepository
	webhookRepo   repository.WebhookRepository
	outboxRepo    worker.OutboxRepository
	paymentSecret string
	logger        *zap.Logger
	tracer        trace.Tracer
}

func NewReconcileService(
	pool *pgxpool.Pool,
	orderRepo repository.OrderRepository,
	inventoryRepo repository.InventoryRepository,
	webhookRepo repository.WebhookRepository,
	outboxRepo worker.OutboxRepository,
	paymentSecret string,
	logger *zap.Logger,
) ReconcileService {
	return &reconcileService{
		pool:          pool,
		orderRepo:     orderRepo,
		inventoryRepo: inventoryRepo,
		webhookRepo:   webhookRepo,
		outboxRepo:    outboxRepo,
		paymentSecret: paymentSecret,
		logger:        logger,
		tracer:        otel.Tracer("service/reconcile_service"),
	}
}

// Reconcile transitions an order from initiated to paid and decrements
// inventory for its stored cart, exactly once. Everything after the
// signature check runs in a single transaction; the FOR UPDATE read
// serializes concurrent attempts on the same order, so replays observe
// the paid status and return AlreadyReconciled without touching stock.
func (s *reconcileService) Reconcile(ctx context.Context, conf domain.Confirmation) (ReconcileOutcome, *domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "ReconcileService.Reconcile")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", conf.OrderID),
	)

	if conf.PaymentID == "" {
		mylogger.Info(
			ctx,
			s.logger,
			"Confirmation without payment id, asking caller to retry",
			zap.String("order_id", conf.OrderID),
		)

		return "", nil, ErrPaymentPending
	}

	// Pure check, deliberately outside the transaction.
	if !signature.Verify(conf.OrderID, conf.PaymentID, conf.Signature, s.paymentSecret) {
		mylogger.Warn(
			ctx,
			s.logger,
			"Payment signature verification failed",
			zap.String("order_id", conf.OrderID),
			zap.String("payment_id", conf.PaymentID),
		)

		return "", nil, ErrInvalidSignature
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		mylogger.Error(
			ctx,
			s.logger,
			"Failed to begin transaction",
			zap.Error(err),
		)

		return "", nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)

		if err := tx.Rollback(cleanupCtx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Warn(
				cleanupCtx,
				s.logger,
				"Error rolling back transaction",
				zap.String("order_id", conf.OrderID),
				zap.Error(err),
			)
		}
	}()

	if conf.EventID != "" {
		first, err := s.webhookRepo.RecordEventTx(ctx, tx, conf.EventID, "payment.captured")
		if err != nil {
			return "", nil, err
		}
		if !first {
			mylogger.Info(
				ctx,
				s.logger,
				"Duplicate webhook delivery",
				zap.String("event_id", conf.EventID),
				zap.String("order_id", conf.OrderID),
			)
		}
	}

	order, err := s.orderRepo.GetForUpdateTx(ctx, tx, conf.OrderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			mylogger.Warn(
				ctx,
				s.logger,
				"Confirmation for unknown order",
				zap.String("order_id", conf.OrderID),
			)
		}

		return "", nil, err
	}

	if order.Status == domain.OrderStatusPaid {
		// Idempotent no-op: commit so the webhook audit record sticks,
		// but write nothing else.
		if err := tx.Commit(ctx); err != nil {
			return "", nil, fmt.Errorf("failed to commit transaction: %w", err)
		}

		mylogger.Info(
			ctx,
			s.logger,
			"Order already reconciled",
			zap.String("order_id", order.ID),
		)

		return OutcomeAlreadyReconciled, order, nil
	}

	// Decrement from the cart stored at order creation, never from
	// anything the confirmation payload carried.
	if err := s.inventoryRepo.DecrementManyTx(ctx, tx, order.Items); err != nil {
		if errors.Is(err, repository.ErrInsufficientStock) {
			mylogger.Warn(
				ctx,
				s.logger,
				"Reconciliation aborted, stock exhausted",
				zap.String("order_id", order.ID),
				zap.Error(err),
			)

			return "", nil, fmt.Errorf("%w: %w", ErrStockExhausted, err)
		}

		return "", nil, err
	}

	paidAt := time.Now().UTC()
	if err := s.orderRepo.MarkPaidTx(ctx, tx, order.ID, conf.PaymentID, paidAt); err != nil {
		return "", nil, err
	}

	if err := s.emitOrderPaid(ctx, tx, order, conf.PaymentID, paidAt); err != nil {
		return "", nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		mylogger.Error(
			ctx,
			s.logger,
			"Failed to commit transaction",
			zap.String("order_id", order.ID),
			zap.Error(err),
		)

		return "", nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	order.Status = domain.OrderStatusPaid
	order.PaymentID = &conf.PaymentID
	order.PaidAt = &paidAt

	mylogger.Info(
		ctx,
		s.logger,
		"Order reconciled",
		zap.String("order_id", order.ID),
		zap.String("payment_id", conf.PaymentID),
	)

	return OutcomeReconciled, order, nil
}

func (s *reconcileService) emitOrderPaid(ctx context.Context, tx pgx.Tx, order *domain.Order, paymentID string, paidAt time.Time) error {
	wrapper := map[string]any{
		"event": "OrderPaid",
		"payload": domain.OrderPaidEvent{
			OrderID:   order.ID,
			PaymentID: paymentID,
			Amount:    order.Amount,
			Currency:  order.Currency,
			PaidAt:    paidAt,
		},
	}

	wrapperBytes, err := json.Marshal(wrapper)
	if err != nil {
		return fmt.Errorf("failed to marshal event wrapper: %w", err)
	}

	outboxEvent := &outboxDomain.OutboxEvent{
		AggregateType: "Order",
		AggregateID:   order.ID,
		EventType:     "OrderPaid",
		Payload:       wrapperBytes,
		Topic:         "checkout_events",
	}

	return s.outboxRepo.SaveOutboxEvent(ctx, tx, outboxEvent)
}
