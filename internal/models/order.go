package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// OrderStatus represents the fulfilment status of an order
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusContacted  OrderStatus = "contacted"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// OrderStatuses lists every accepted order status in lifecycle order
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusContacted,
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

var orderMilestones = map[OrderStatus]string{
	OrderStatusContacted: "contacted_at",
	OrderStatusConfirmed: "confirmed_at",
	OrderStatusShipped:   "shipped_at",
	OrderStatusDelivered: "delivered_at",
}

// Valid reports whether s is a known order status
func (s OrderStatus) Valid() bool {
	for _, known := range OrderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// MilestoneColumn returns the timestamp column stamped when an order enters s
func (s OrderStatus) MilestoneColumn() (string, bool) {
	col, ok := orderMilestones[s]
	return col, ok
}

// PaymentStatus represents how much of an order has been paid
type PaymentStatus string

const (
	PaymentStatusUnpaid  PaymentStatus = "unpaid"
	PaymentStatusPartial PaymentStatus = "partial"
	PaymentStatusPaid    PaymentStatus = "paid"
)

// Valid reports whether s is a known payment status
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusUnpaid, PaymentStatusPartial, PaymentStatusPaid:
		return true
	}
	return false
}

// LineItem is one ordered product line
type LineItem struct {
	ProductName string  `json:"product_name" validate:"required"`
	Slug        string  `json:"slug"`
	UnitPrice   float64 `json:"unit_price" validate:"gte=0"`
	Length      float64 `json:"length" validate:"gt=0"`
	Quantity    int     `json:"quantity" validate:"gte=1"`
	Subtotal    float64 `json:"subtotal"`
	Color       string  `json:"color,omitempty"`
}

// LineItems is stored as a JSONB array
type LineItems []LineItem

// Value implements driver.Valuer
func (li LineItems) Value() (driver.Value, error) {
	if li == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(li)
}

// Scan implements sql.Scanner
func (li *LineItems) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*li = LineItems{}
		return nil
	case []byte:
		return json.Unmarshal(v, li)
	case string:
		return json.Unmarshal([]byte(v), li)
	default:
		return fmt.Errorf("cannot scan %T into LineItems", src)
	}
}

// Order represents a guest checkout submission
type Order struct {
	ID                   string        `db:"id" json:"id"`
	OrderNumber          string        `db:"order_number" json:"order_number"`
	CustomerName         string        `db:"customer_name" json:"customer_name"`
	CustomerEmail        string        `db:"customer_email" json:"customer_email"`
	CustomerPhone        string        `db:"customer_phone" json:"customer_phone"`
	Address              *string       `db:"address" json:"address"`
	City                 *string       `db:"city" json:"city"`
	PostalCode           *string       `db:"postal_code" json:"postal_code"`
	Notes                *string       `db:"notes" json:"notes"`
	Items                LineItems     `db:"items" json:"items"`
	TotalAmount          float64       `db:"total_amount" json:"total_amount"`
	Status               OrderStatus   `db:"status" json:"status"`
	PaymentStatus        PaymentStatus `db:"payment_status" json:"payment_status"`
	AmountPaid           *float64      `db:"amount_paid" json:"amount_paid"`
	PaymentMethod        *string       `db:"payment_method" json:"payment_method"`
	TransactionReference *string       `db:"transaction_reference" json:"transaction_reference"`
	PaymentDate          *Date         `db:"payment_date" json:"payment_date"`
	PaymentNotes         *string       `db:"payment_notes" json:"payment_notes"`
	AdminNotes           *string       `db:"admin_notes" json:"admin_notes"`
	ContactedAt          *time.Time    `db:"contacted_at" json:"contacted_at"`
	ConfirmedAt          *time.Time    `db:"confirmed_at" json:"confirmed_at"`
	ShippedAt            *time.Time    `db:"shipped_at" json:"shipped_at"`
	DeliveredAt          *time.Time    `db:"delivered_at" json:"delivered_at"`
	CreatedAt            time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time     `db:"updated_at" json:"updated_at"`
}

// NewOrder creates a pending, unpaid order
func NewOrder(now time.Time) *Order {
	return &Order{
		ID:            GenerateID(),
		OrderNumber:   NewOrderNumber(now),
		Status:        OrderStatusPending,
		PaymentStatus: PaymentStatusUnpaid,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// OrderStatusUpdate is the admin PATCH payload for an order
type OrderStatusUpdate struct {
	Status               *string          `json:"status"`
	AdminNotes           Optional[string] `json:"adminNotes"`
	PaymentStatus        Optional[string] `json:"payment_status"`
	AmountPaid           FlexNumber       `json:"amount_paid"`
	PaymentMethod        Optional[string] `json:"payment_method"`
	TransactionReference Optional[string] `json:"transaction_reference"`
	PaymentDate          FlexText         `json:"payment_date"`
	PaymentNotes         Optional[string] `json:"payment_notes"`
}

// TouchesPayment reports whether any payment field was present in the request
func (u OrderStatusUpdate) TouchesPayment() bool {
	return u.PaymentStatus.Set ||
		u.AmountPaid.Set ||
		u.PaymentMethod.Set ||
		u.TransactionReference.Set ||
		u.PaymentDate.Set ||
		u.PaymentNotes.Set
}
