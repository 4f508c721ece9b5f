package models

import (
	"time"

	"gorm.io/gorm"
)

// OrderStatus is the order-level lifecycle state.
type OrderStatus string

const (
	OrderStatusNew        OrderStatus = "new"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// PaymentMethod identifies how the customer pays.
type PaymentMethod string

const (
	PaymentMethodCard  PaymentMethod = "card"
	PaymentMethodCash  PaymentMethod = "cash"
	PaymentMethodOther PaymentMethod = "other"
)

// PaymentStatus tracks settlement of the order total.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// DeliveryStatus tracks fulfillment progress as reported by the assignee.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusPickedUp  DeliveryStatus = "picked_up"
	DeliveryStatusOnTheWay  DeliveryStatus = "on_the_way"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

// ValidDeliveryStatus reports whether s is a known delivery status.
func ValidDeliveryStatus(s DeliveryStatus) bool {
	switch s {
	case DeliveryStatusPending, DeliveryStatusPickedUp, DeliveryStatusOnTheWay,
		DeliveryStatusDelivered, DeliveryStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further order-status transitions are permitted.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// directStatusTargets are the statuses a moderator/admin may set directly.
// Processing, shipped and delivered are only reachable through delivery-status
// propagation, never through a direct edit.
var directStatusTargets = map[OrderStatus]bool{
	OrderStatusNew:       true,
	OrderStatusConfirmed: true,
	OrderStatusCancelled: true,
}

// CanTransitionTo validates a direct status change from s to target.
// Terminal states are sinks; direct edits may otherwise move freely between
// new, confirmed and cancelled (the correction/revert path).
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	if s.IsTerminal() {
		return false
	}
	return directStatusTargets[target]
}

// OrderItem is a single product line within an order. UnitPrice is the
// product price snapshotted at order-creation time and never updated.
type OrderItem struct {
	ProductID string  `json:"product_id" validate:"required"`
	Quantity  int     `json:"quantity" validate:"required,gte=1"`
	UnitPrice float64 `json:"unit_price"`
}

// ShippingAddress is an immutable snapshot taken at checkout.
type ShippingAddress struct {
	Street  string `json:"street,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	ZipCode string `json:"zip_code,omitempty"`
	Country string `json:"country,omitempty"`
}

// ChangeEntry is one record in an order's append-only change history.
// Entries are never mutated or removed after being appended.
type ChangeEntry struct {
	ChangedBy string                 `json:"changed_by"`
	ChangedAt time.Time              `json:"changed_at"`
	Action    string                 `json:"action"`
	Changes   map[string]interface{} `json:"changes,omitempty"`
	Notes     string                 `json:"notes,omitempty"`
}

// Change-history action tags.
const (
	ActionVerifyOrder    = "verify_order"
	ActionUpdateStatus   = "update_status"
	ActionAssignDelivery = "assign_delivery"
	ActionUpdateNotes    = "update_notes"
)

// Order is the aggregate representing a customer purchase, its fulfillment
// and payment state. Line items, the address snapshot, payment details and
// the change history are stored as JSON columns.
type Order struct {
	ID          string      `json:"id" gorm:"primaryKey;type:varchar(36)"`
	CustomerID  string      `json:"customer_id,omitempty" gorm:"type:varchar(36);index"`
	Items       []OrderItem `json:"items" gorm:"serializer:json" validate:"required,min=1,dive"`
	TotalAmount float64     `json:"total_amount"`

	ShippingAddress ShippingAddress        `json:"shipping_address" gorm:"serializer:json"`
	PaymentMethod   PaymentMethod          `json:"payment_method" gorm:"type:varchar(16);default:card"`
	PaymentDetails  map[string]interface{} `json:"payment_details,omitempty" gorm:"serializer:json"`
	PaymentStatus   PaymentStatus          `json:"payment_status" gorm:"type:varchar(16);default:pending"`

	Status     OrderStatus `json:"status" gorm:"type:varchar(16);default:new;index"`
	Verified   bool        `json:"verified"`
	VerifiedBy string      `json:"verified_by,omitempty" gorm:"type:varchar(36)"`
	VerifiedAt *time.Time  `json:"verified_at,omitempty"`

	InternalNotes string `json:"internal_notes,omitempty"`

	AssignedDeliveryMan string         `json:"assigned_delivery_man,omitempty" gorm:"type:varchar(36);index"`
	DeliveryStatus      DeliveryStatus `json:"delivery_status" gorm:"type:varchar(16);default:pending"`
	DeliveryNotes       string         `json:"delivery_notes,omitempty"`

	ContactConsent bool          `json:"contact_consent"`
	ChangeHistory  []ChangeEntry `json:"change_history" gorm:"serializer:json"`

	// Version guards concurrent writes: every successful update increments
	// it, and repository updates match on the value they loaded.
	Version    int `json:"-" gorm:"default:0"`
	gorm.Model     // CreatedAt, UpdatedAt, DeletedAt
}

// AppendChange records an audit entry. The history is append-only; callers
// never edit or remove existing entries.
func (o *Order) AppendChange(entry ChangeEntry) {
	o.ChangeHistory = append(o.ChangeHistory, entry)
}
