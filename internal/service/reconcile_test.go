package service_test

import (
	"sync"

	"checkout/internal/domain"
	"checkout/internal/repository"
	"checkout/internal/service"
	"checkout/internal/signature"
)

func (s *IntegrationTestSuite) confirmationFor(orderID, paymentID string) domain.Confirmation {
	return domain.Confirmation{
		OrderID:   orderID,
		PaymentID: paymentID,
		Signature: signature.Sign(orderID, paymentID, testPaymentSecret),
	}
}

func (s *IntegrationTestSuite) TestReconcileMarksOrderPaidAndDecrementsStock() {
	s.seedProduct("P1", "Oversized Tee", 129900)
	s.seedInventory("P1", "M", 3)

	orderID := s.createOrder([]service.CartLine{
		{ProductID: "P1", Size: "M", Quantity: 1},
	})

	outcome, order, err := s.ReconcileService.Reconcile(s.Ctx, s.confirmationFor(orderID, "pay_001"))
	s.Require().NoError(err)
	s.Require().Equal(service.OutcomeReconciled, outcome)
	s.Require().NotNil(order)

	s.Equal(domain.OrderStatusPaid, order.Status)
	s.Require().NotNil(order.PaymentID)
	s.Equal("pay_001", *order.PaymentID)
	s.Require().NotNil(order.PaidAt)

	s.Equal("paid", s.orderStatus(orderID))
	s.Equal(int32(2), s.stockQuantity("P1", "M"))
}

func (s *IntegrationTestSuite) TestReconcileReplayIsIdempotent() {
	s.seedProduct("P1", "Oversized Tee", 129900)
	s.seedInventory("P1", "M", 3)

	orderID := s.createOrder([]service.CartLine{
		{ProductID: "P1", Size: "M", Quantity: 1},
	})
	conf := s.confirmationFor(orderID, "pay_001")

	outcome, _, err := s.ReconcileService.Reconcile(s.Ctx, conf)
	s.Require().NoError(err)
	s.Require().Equal(service.OutcomeReconciled, outcome)

	// Same confirmation delivered again, e.g. client redirect after the
	// webhook already landed.
	outcome, order, err := s.ReconcileService.Reconcile(s.Ctx, conf)
	s.Require().NoError(err)
	s.Equal(service.OutcomeAlreadyReconciled, outcome)
	s.Require().NotNil(order)
	s.Equal(domain.OrderStatusPaid, order.Status)

	s.Equal(int32(2), s.stockQuantity("P1", "M"))
}

func (s *IntegrationTestSuite) TestConcurrentReconcileDecrementsOnce() {
	s.seedProduct("P1", "Oversized Tee", 129900)
	s.seedInventory("P1", "M", 5)

	orderID := s.createOrder([]service.CartLine{
		{ProductID: "P1", Size: "M", Quantity: 2},
	})
	conf := s.confirmationFor(orderID, "pay_001")

	const racers = 4

	outcomes := make([]service.ReconcileOutcome, racers)
	errs := make([]error, racers)

	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], _, errs[i] = s.ReconcileService.Reconcile(s.Ctx, conf)
		}(i)
	}
	wg.Wait()

	reconciled := 0
	for i := 0; i < racers; i++ {
		s.Require().NoError(errs[i])
		if outcomes[i] == service.OutcomeReconciled {
			reconciled++
		} else {
			s.Equal(service.OutcomeAlreadyReconciled, outcomes[i])
		}
	}

	s.Equal(1, reconciled)
	s.Equal("paid", s.orderStatus(orderID))
	s.Equal(int32(3), s.stockQuantity("P1", "M"))
}

func (s *IntegrationTestSuite) TestReconcileStockExhaustedLeavesOrderInitiated() {
	s.seedProduct("P1", "Oversized Tee", 129900)
	s.seedInventory("P1", "M", 3)

	orderID := s.createOrder([]service.CartLine{
		{ProductID: "P1", Size: "M", Quantity: 1},
	})

	// Stock drained between order creation and payment confirmation.
	s.seedInventory("P1", "M", 0)

	outcome, _, err := s.ReconcileService.Reconcile(s.Ctx, s.confirmationFor(orderID, "pay_001"))
	s.Require().ErrorIs(err, service.ErrStockExhausted)
	s.Empty(outcome)

	s.Equal("initiated", s.orderStatus(orderID))
	s.Equal(int32(0), s.stockQuantity("P1", "M"))
}

func (s *IntegrationTestSuite) TestReconcilePartialStockRollsBackEverything() {
	s.seedProduct("P1", "Oversized Tee", 129900)
	s.seedProduct("P2", "Cargo Pants", 249900)
	s.seedInventory("P1", "M", 3)
	s.seedInventory("P2", "L", 0)

	orderID := s.createOrder([]service.CartLine{
		{ProductID: "P1", Size: "M", Quantity: 1},
		{ProductID: "P2", Size: "L", Quantity: 1},
	})

	_, _, err := s.ReconcileService.Reconcile(s.Ctx, s.confirmationFor(orderID, "pay_001"))
	s.Require().ErrorIs(err, service.ErrStockExhausted)

	// The first line's decrement must not survive the rollback.
	s.Equal("initiated", s.orderStatus(orderID))
	s.Equal(int32(3), s.stockQuantity("P1", "M"))
	s.Equal(int32(0), s.stockQuantity("P2", "L"))
}

func (s *IntegrationTestSuite) TestReconcileRejectsTamperedSignature() {
	s.seedProduct("P1", "Oversized Tee", 129900)
	s.seedInventory("P1", "M", 3)

	orderID := s.createOrder([]service.CartLine{
		{ProductID: "P1", Size: "M", Quantity: 1},
	})

	conf := domain.Confirmation{
		OrderID:   orderID,
		PaymentID: "pay_tampered",
		Signature: signature.Sign(orderID, "pay_001", testPaymentSecret),
	}

	_, _, err := s.ReconcileService.Reconcile(s.Ctx, conf)
	s.Require().ErrorIs(err, service.ErrInvalidSignature)

	s.Equal("initiated", s.orderStatus(orderID))
	s.Equal(int32(3), s.stockQuantity("P1", "M"))
}

func (s *IntegrationTestSuite) TestReconcileUnknownOrder() {
	_, _, err := s.ReconcileService.Reconcile(s.Ctx, s.confirmationFor("order_missing", "pay_001"))
	s.Require().ErrorIs(err, repository.ErrOrderNotFound)
}

func (s *IntegrationTestSuite) TestReconcileWithoutPaymentIDAsksForRetry() {
	s.seedProduct("P1", "Oversized Tee", 129900)
	s.seedInventory("P1", "M", 3)

	orderID := s.createOrder([]service.CartLine{
		{ProductID: "P1", Size: "M", Quantity: 1},
	})

	_, _, err := s.ReconcileService.Reconcile(s.Ctx, domain.Confirmation{OrderID: orderID})
	s.Require().ErrorIs(err, service.ErrPaymentPending)

	s.Equal("initiated", s.orderStatus(orderID))
}

func (s *IntegrationTestSuite) TestReconcileRecordsWebhookDeliveries() {
	s.seedProduct("P1", "Oversized Tee", 129900)
	s.seedInventory("P1", "M", 3)

	orderID := s.createOrder([]service.CartLine{
		{ProductID: "P1", Size: "M", Quantity: 1},
	})

	conf := s.confirmationFor(orderID, "pay_001")
	conf.EventID = "evt_001"

	outcome, _, err := s.ReconcileService.Reconcile(s.Ctx, conf)
	s.Require().NoError(err)
	s.Require().Equal(service.OutcomeReconciled, outcome)

	// Redelivery of the same event id stays a no-op but its audit
	// record still commits.
	outcome, _, err = s.ReconcileService.Reconcile(s.Ctx, conf)
	s.Require().NoError(err)
	s.Equal(service.OutcomeAlreadyReconciled, outcome)

	var deliveries int
	err = s.DbPool.QueryRow(
		s.Ctx,
		`SELECT COUNT(*) FROM webhook_events WHERE event_id = $1`,
		"evt_001",
	).Scan(&deliveries)
	s.Require().NoError(err)
	s.Equal(1, deliveries)

	s.Equal(int32(2), s.stockQuantity("P1", "M"))
}

func (s *IntegrationTestSuite) TestReconcileWritesOutboxEvent() {
	s.seedProduct("P1", "Oversized Tee", 129900)
	s.seedInventory("P1", "M", 3)

	orderID := s.createOrder([]service.CartLine{
		{ProductID: "P1", Size: "M", Quantity: 1},
	})

	_, _, err := s.ReconcileService.Reconcile(s.Ctx, s.confirmationFor(orderID, "pay_001"))
	s.Require().NoError(err)

	var eventType string
	err = s.DbPool.QueryRow(
		s.Ctx,
		`SELECT event_type FROM outbox WHERE aggregate_id = $1`,
		orderID,
	).Scan(&eventType)
	s.Require().NoError(err)
	s.Equal("OrderPaid", eventType)
}
