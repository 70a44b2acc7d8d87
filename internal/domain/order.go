package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderItem struct {
	ProductID   int64   `json:"product_id"`
	ProductName string  `json:"product_name"`
	Image       string  `json:"image,omitempty"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
	Size        string  `json:"size,omitempty"`
	Color       string  `json:"color,omitempty"`
}

type Order struct {
	ID                 uuid.UUID          `json:"id"`
	CheckoutID         uuid.UUID          `json:"checkout_id"`
	UserID             string             `json:"user_id"`
	Status             OrderStatus        `json:"status"`
	CancellationStatus CancellationStatus `json:"cancellation_status,omitempty"`
	Items              []OrderItem        `json:"items"`
	ShippingAddress    Address            `json:"shipping_address"`
	PaymentMethod      string             `json:"payment_method"`
	TotalAmount        float64            `json:"total_amount"`
	Currency           string             `json:"currency"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// Subtotal sums price*quantity over all items without float drift.
func (o *Order) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		line := decimal.NewFromFloat(item.Price).Mul(decimal.NewFromInt(int64(item.Quantity)))
		total = total.Add(line)
	}
	return total
}

// Item returns the line item for productID.
func (o *Order) Item(productID int64) (OrderItem, bool) {
	for _, item := range o.Items {
		if item.ProductID == productID {
			return item, true
		}
	}
	return OrderItem{}, false
}

func (o *Order) OwnedBy(userID string) bool {
	return userID != "" && o.UserID == userID
}
