package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OrderView is an order together with everything a client needs to render it.
type OrderView struct {
	Order          *Order          `json:"order"`
	Actions        Actions         `json:"actions"`
	Tracker        Tracker         `json:"tracker"`
	NextStatuses   []OrderStatus   `json:"next_statuses,omitempty"`
	ReturnRequests []ReturnRequest `json:"return_requests"`
}

// SavedAddress is an address a user keeps for checkout and return pickups.
// Orders and return requests copy the embedded Address, never the id.
type SavedAddress struct {
	ID     primitive.ObjectID `json:"id" bson:"_id"`
	UserID string             `json:"user_id" bson:"user_id"`

	Address `bson:",inline"`

	IsDefault bool      `json:"is_default" bson:"is_default"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}
