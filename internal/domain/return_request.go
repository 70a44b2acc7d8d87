package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Photo limits for a single return or exchange request.
const (
	MaxReturnImages    = 5
	MaxReturnImageSize = 5 << 20
)

type ReturnType string

const (
	ReturnTypeReturn   ReturnType = "return"
	ReturnTypeExchange ReturnType = "exchange"
)

func ParseReturnType(s string) (ReturnType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "return":
		return ReturnTypeReturn, true
	case "exchange":
		return ReturnTypeExchange, true
	default:
		return "", false
	}
}

type ReturnReason string

const (
	ReasonDefective     ReturnReason = "Defective / Damaged"
	ReasonWrongItem     ReturnReason = "Wrong Item Delivered"
	ReasonNotAsExpected ReturnReason = "Not as Expected"
	ReasonSizeFit       ReturnReason = "Size / Fit Issue"
	ReasonChangedMind   ReturnReason = "Changed My Mind"
	ReasonOther         ReturnReason = "Other"
)

// ReturnReasons lists the reasons a customer can pick, in display order.
var ReturnReasons = []ReturnReason{
	ReasonDefective,
	ReasonWrongItem,
	ReasonNotAsExpected,
	ReasonSizeFit,
	ReasonChangedMind,
	ReasonOther,
}

func (r ReturnReason) IsValid() bool {
	for _, known := range ReturnReasons {
		if r == known {
			return true
		}
	}
	return false
}

// RequiresImages reports whether the customer must attach a photo as evidence.
func (r ReturnReason) RequiresImages() bool {
	return r == ReasonDefective || r == ReasonWrongItem
}

type ReturnStatus string

const (
	ReturnStatusPending  ReturnStatus = "pending"
	ReturnStatusApproved ReturnStatus = "approved"
	ReturnStatusRejected ReturnStatus = "rejected"
)

// ParseReturnStatus accepts "accepted" as the admin dashboard's word for approved.
func ParseReturnStatus(s string) (ReturnStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return ReturnStatusPending, true
	case "approved", "accepted":
		return ReturnStatusApproved, true
	case "rejected":
		return ReturnStatusRejected, true
	default:
		return "", false
	}
}

func (s ReturnStatus) IsFinal() bool {
	return s == ReturnStatusApproved || s == ReturnStatusRejected
}

type ReturnRequest struct {
	ID            uuid.UUID    `json:"id"`
	OrderID       uuid.UUID    `json:"order_id"`
	UserID        string       `json:"user_id"`
	ProductID     int64        `json:"product_id"`
	Type          ReturnType   `json:"type"`
	Reason        ReturnReason `json:"reason"`
	NewSize       string       `json:"new_size,omitempty"`
	NewColor      string       `json:"new_color,omitempty"`
	PickupAddress Address      `json:"pickup_address"`
	Images        []string     `json:"images"`
	Status        ReturnStatus `json:"status"`
	AdminNote     string       `json:"admin_note,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// ReturnDraft is what the customer submits before any image is stored.
type ReturnDraft struct {
	OrderID       uuid.UUID
	ProductID     int64
	Type          ReturnType
	Reason        ReturnReason
	NewSize       string
	NewColor      string
	PickupAddress Address
	ImageCount    int
}

// Validate checks the draft on its own, without looking at the order.
// Exchange-only fields are dropped from return drafts.
func (d *ReturnDraft) Validate() error {
	return d.validate(true)
}

// ValidateDetails is Validate for drafts whose pickup address is resolved
// later from a saved address id.
func (d *ReturnDraft) ValidateDetails() error {
	return d.validate(false)
}

func (d *ReturnDraft) validate(withAddress bool) error {
	if d.OrderID == uuid.Nil {
		return invalid("order_id", "missing_field", "is required")
	}
	if d.ProductID <= 0 {
		return invalid("product_id", "missing_field", "is required")
	}
	if d.Type != ReturnTypeReturn && d.Type != ReturnTypeExchange {
		return invalid("type", "invalid_type", "must be return or exchange")
	}
	if !d.Reason.IsValid() {
		return invalid("reason", "invalid_reason", "is not one of the supported reasons")
	}
	if withAddress {
		if d.PickupAddress.IsZero() {
			return invalid("pickup_address", "missing_field", "is required")
		}
		if err := d.PickupAddress.Validate(); err != nil {
			return err
		}
	}
	if d.Reason.RequiresImages() && d.ImageCount == 0 {
		return ErrImagesRequired
	}
	if d.Type == ReturnTypeReturn {
		d.NewSize = ""
		d.NewColor = ""
	}
	return nil
}

// CanTransitionTo reports whether an admin may move the request to next.
func (s ReturnStatus) CanTransitionTo(next ReturnStatus) bool {
	return s == ReturnStatusPending && next.IsFinal()
}
