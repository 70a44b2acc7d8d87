package repository

import (
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/google/uuid"
)

func testAddress() domain.Address {
	return domain.Address{
		FullName:   "Jane Doe",
		Phone:      "+1 555 0100",
		Line1:      "1 Main St",
		City:       "Springfield",
		State:      "IL",
		PostalCode: "62701",
		Country:    "US",
	}
}

func newTestOrder(userID string, status domain.OrderStatus) *domain.Order {
	return &domain.Order{
		ID:         uuid.New(),
		CheckoutID: uuid.New(),
		UserID:     userID,
		Status:     status,
		Items: []domain.OrderItem{
			{ProductID: 1, ProductName: "Cotton T-Shirt", Quantity: 2, Price: 19.99, Size: "M", Color: "Black"},
			{ProductID: 2, ProductName: "Canvas Tote", Quantity: 1, Price: 19.99},
		},
		ShippingAddress: testAddress(),
		PaymentMethod:   "cod",
		TotalAmount:     59.97,
		Currency:        "USD",
	}
}

func newTestReturnRequest(order *domain.Order, productID int64) *domain.ReturnRequest {
	return &domain.ReturnRequest{
		ID:            uuid.New(),
		OrderID:       order.ID,
		UserID:        order.UserID,
		ProductID:     productID,
		Type:          domain.ReturnTypeExchange,
		Reason:        domain.ReasonSizeFit,
		NewSize:       "L",
		PickupAddress: testAddress(),
		Images:        []string{"img-1"},
		Status:        domain.ReturnStatusPending,
	}
}
