// Package domain contains persistence models for installment orders, their
// payment schedules and the platforms that finance them.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// OrderStatus represents lifecycle states for an order.
type OrderStatus string

const (
	OrderStatusActive    OrderStatus = "active"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRefunded  OrderStatus = "refunded"
)

// Valid reports whether the status is one of the known order states.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusActive, OrderStatusCompleted, OrderStatusCancelled, OrderStatusRefunded:
		return true
	default:
		return false
	}
}

// PaymentStatus represents lifecycle states for a single installment.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusOverdue PaymentStatus = "overdue"
)

// Valid reports whether the status is one of the known payment states.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusOverdue:
		return true
	default:
		return false
	}
}

// Order is a purchase financed through a platform and split into installments.
// TotalAmount is kept in minor currency units and equals the sum of the
// order's payment amounts outside of an in-flight redistribution.
type Order struct {
	ID               string                      `gorm:"primaryKey;type:text" json:"id" validate:"required"`
	PlatformID       string                      `gorm:"type:text;not null;index:idx_orders_platform_id" json:"platformId" validate:"required"`
	StoreName        *string                     `gorm:"type:text" json:"storeName,omitempty"`
	TotalAmount      int64                       `gorm:"not null" json:"totalAmount" validate:"gte=0"`
	FirstPaymentDate time.Time                   `gorm:"not null;index:idx_orders_first_payment_date" json:"firstPaymentDate"`
	Status           OrderStatus                 `gorm:"type:text;not null;index:idx_orders_status" json:"status" validate:"omitempty,oneof=active completed cancelled refunded"`
	CreatedAt        time.Time                   `gorm:"not null" json:"createdAt"`
	IntervalDays     *int                        `json:"intervalDays,omitempty"`
	Installments     *int                        `json:"installments,omitempty"`
	APR              *float64                    `json:"apr,omitempty"`
	Tags             datatypes.JSONSlice[string] `json:"tags,omitempty"`
	Notes            *string                     `gorm:"type:text" json:"notes,omitempty"`
	Category         string                      `gorm:"type:text" json:"category,omitempty"`
	Inconsistent     bool                        `gorm:"not null;default:false" json:"inconsistent,omitempty"`
}

// TableName sets the database table name.
func (Order) TableName() string { return "orders" }

// Payment is one scheduled installment of an order.
type Payment struct {
	ID                string        `gorm:"primaryKey;type:text" json:"id" validate:"required"`
	OrderID           string        `gorm:"type:text;not null;index:idx_payments_order_id" json:"orderId" validate:"required"`
	PlatformID        string        `gorm:"type:text;not null;index:idx_payments_platform_id" json:"platformId"`
	Amount            int64         `gorm:"not null" json:"amount" validate:"gte=0"`
	DueDate           time.Time     `gorm:"not null;index:idx_payments_due_date" json:"dueDate"`
	InstallmentNumber int           `gorm:"not null" json:"installmentNumber" validate:"gte=1"`
	Status            PaymentStatus `gorm:"type:text;not null;index:idx_payments_status" json:"status" validate:"oneof=pending paid overdue"`
	PaidDate          *time.Time    `json:"paidDate,omitempty"`
	PaidOnTime        *bool         `json:"paidOnTime,omitempty"`
	IsManualOverride  bool          `gorm:"not null;default:false" json:"isManualOverride"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }

// Platform is a buy-now-pay-later provider with its credit metadata and
// default schedule parameters.
type Platform struct {
	ID                  string `gorm:"primaryKey;type:text" json:"id" validate:"required"`
	Name                string `gorm:"type:text;not null" json:"name"`
	Color               string `gorm:"type:text" json:"color,omitempty"`
	CreditLimit         int64  `gorm:"not null;default:0" json:"creditLimit"`
	GoalLimit           *int64 `json:"goalLimit,omitempty"`
	Tier                string `gorm:"type:text" json:"tier,omitempty"`
	Category            string `gorm:"type:text" json:"category,omitempty"`
	DefaultInstallments int    `gorm:"not null" json:"defaultInstallments"`
	DefaultIntervalDays int    `gorm:"not null" json:"defaultIntervalDays"`
	CurrentStreak       int    `gorm:"not null;default:0" json:"currentStreak"`
}

// TableName sets the database table name.
func (Platform) TableName() string { return "platforms" }

// Subscription records the recurring cost a platform charges, keyed by platform.
type Subscription struct {
	PlatformID  string `gorm:"primaryKey;type:text" json:"platformId" validate:"required"`
	Name        string `gorm:"type:text" json:"name,omitempty"`
	MonthlyCost int64  `gorm:"not null;default:0" json:"monthlyCost"`
	BillingDay  int    `gorm:"not null" json:"billingDay"`
	Active      bool   `gorm:"not null;default:false" json:"active"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// LimitChange is an append-only audit entry for a platform credit limit change.
type LimitChange struct {
	ID             string    `gorm:"primaryKey;type:text" json:"id" validate:"required"`
	PlatformID     string    `gorm:"type:text;not null;index:idx_limit_changes_platform_id" json:"platformId"`
	PreviousLimit  int64     `gorm:"not null" json:"previousLimit"`
	NewLimit       int64     `gorm:"not null" json:"newLimit"`
	ChangedAt      time.Time `gorm:"not null;index:idx_limit_changes_changed_at" json:"changedAt"`
	StreakAtChange int       `gorm:"not null;default:0" json:"streakAtChange"`
}

// TableName sets the database table name.
func (LimitChange) TableName() string { return "limit_changes" }
