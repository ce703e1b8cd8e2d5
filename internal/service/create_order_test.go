package service_test

import (
	"checkout/internal/domain"
	"checkout/internal/repository"
	"checkout/internal/service"
)

func (s *IntegrationTestSuite) TestCreateOrderPricesCartFromCatalog() {
	s.seedProduct("P1", "Oversized Tee", 129900)
	s.seedProduct("P2", "Cargo Pants", 249900)
	s.seedInventory("P1", "M", 10)
	s.seedInventory("P2", "L", 10)

	order, err := s.CheckoutService.CreateOrder(s.Ctx, []service.CartLine{
		{ProductID: "P1", Size: "M", Quantity: 2},
		{ProductID: "P2", Size: "L", Quantity: 1},
	}, "USD")
	s.Require().NoError(err)
	s.Require().NotNil(order)

	s.Equal(domain.OrderStatusInitiated, order.Status)
	s.Equal(int64(2*129900+249900), order.Amount)
	s.Equal("USD", order.Currency)
	s.Nil(order.PaymentID)
	s.Nil(order.PaidAt)

	stored, err := s.CheckoutService.GetOrder(s.Ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(order.Amount, stored.Amount)
	s.Require().Len(stored.Items, 2)

	byProduct := map[string]domain.OrderItem{}
	for _, item := range stored.Items {
		byProduct[item.ProductID] = item
	}

	s.Equal(int64(129900), byProduct["P1"].UnitPrice)
	s.Equal(int32(2), byProduct["P1"].Quantity)
	s.Equal(int64(249900), byProduct["P2"].UnitPrice)
	s.Equal(int32(1), byProduct["P2"].Quantity)
}

func (s *IntegrationTestSuite) TestCreateOrderRejectsUnknownProduct() {
	order, err := s.CheckoutService.CreateOrder(s.Ctx, []service.CartLine{
		{ProductID: "P404", Size: "M", Quantity: 1},
	}, "USD")
	s.Require().ErrorIs(err, repository.ErrProductNotFound)
	s.Nil(order)
}

func (s *IntegrationTestSuite) TestCreateOrderDoesNotTouchStock() {
	s.seedProduct("P1", "Oversized Tee", 129900)
	s.seedInventory("P1", "M", 3)

	s.createOrder([]service.CartLine{
		{ProductID: "P1", Size: "M", Quantity: 2},
	})

	// Stock is reserved only at reconciliation, never at creation.
	s.Equal(int32(3), s.stockQuantity("P1", "M"))
}

func (s *IntegrationTestSuite) TestGetOrderUnknownID() {
	_, err := s.CheckoutService.GetOrder(s.Ctx, "order_missing")
	s.Require().ErrorIs(err, repository.ErrOrderNotFound)
}
