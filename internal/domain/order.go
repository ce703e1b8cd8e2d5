package domain

import "time"

type OrderStatus string

const (
	// OrderStatusInitiated is the only status an order is created with.
	// The transition to paid happens exactly once, during reconciliation,
	// and never reverses.
	OrderStatusInitiated OrderStatus = "initiated"
	OrderStatusPaid      OrderStatus = "paid"
)

// Order is keyed by the payment gateway's order identifier. PaymentID
// and PaidAt are set together with the status transition to paid and
// are nil otherwise.
type Order struct {
	ID       string      `db:"id"`
	Status   OrderStatus `db:"status"`
	Amount   int64       `db:"amount"` // minor units
	Currency string      `db:"currency"`
	Items    []OrderItem `db:"items"`

	PaymentID *string    `db:"payment_id"`
	PaidAt    *time.Time `db:"paid_at"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type OrderItem struct {
	ID        int64  `db:"id"`
	OrderID   string `db:"order_id"`
	ProductID string `db:"product_id"`
	Size      string `db:"size"`
	Quantity  int32  `db:"quantity"`
	UnitPrice int64  `db:"unit_price"` // minor units, snapshot at order creation
}

func (o *Order) CalculateTotal() {
	var total int64
	for _, item := range o.Items {
		total += item.UnitPrice * int64(item.Quantity)
	}
	o.Amount = total
}

type Product struct {
	ID       string `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	Price    int64  `db:"price" json:"price"` // minor units
	Currency string `db:"currency" json:"currency"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
