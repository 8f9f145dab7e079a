package store

import (
	"context"
	"fmt"
	"time"

	"github.com/smallbiznis/splitpay/internal/domain"
	"github.com/smallbiznis/splitpay/internal/schedule"
	"gorm.io/gorm"
)

// PaymentPatch is a manual override of one installment. Any field set pins
// the installment against later redistribution and recalculation.
type PaymentPatch struct {
	Amount  *int64     `json:"amount,omitempty"`
	DueDate *time.Time `json:"dueDate,omitempty"`
}

// UpdatePayment pins the amount or due date of payment id. A new amount is
// balanced by redistributing the other unpinned installments so the order
// total is unchanged.
func (e *Engine) UpdatePayment(ctx context.Context, id string, patch PaymentPatch, opts ...WriteOption) (*domain.Payment, error) {
	if err := e.awaitReady(ctx); err != nil {
		return nil, err
	}
	if patch.Amount != nil && *patch.Amount < 0 {
		return nil, domain.ErrInvalidAmount
	}

	var updated domain.Payment
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, order, siblings, err := e.loadPayment(ctx, tx, id)
		if err != nil {
			return err
		}

		if patch.DueDate != nil {
			payment.DueDate = *patch.DueDate
			payment.IsManualOverride = true
		}

		var changed []domain.Payment
		if patch.Amount != nil {
			payment.Amount = *patch.Amount
			payment.IsManualOverride = true

			for i := range siblings {
				if siblings[i].ID == payment.ID {
					siblings[i] = *payment
				}
			}
			plan, err := schedule.RedistributeAmounts(schedule.FromPayments(siblings), order.TotalAmount)
			if err != nil {
				return err
			}
			for _, p := range schedule.ApplyToPayments(siblings, plan) {
				if p.ID != payment.ID {
					changed = append(changed, p)
				}
			}
		}

		if err := e.Payments.putTx(ctx, tx, append(changed, *payment)...); err != nil {
			return err
		}
		updated = *payment
		return nil
	})
	e.metrics.RecordWrite(ctx, e.Payments.name, "update", err)
	if err != nil {
		return nil, err
	}
	e.committed(ctx, resolve(opts), "update payment")
	return &updated, nil
}

// MarkPaymentPaid records payment id as paid at paidAt. The order completes
// once every payment is paid, and the platform streak grows on an on-time
// payment and resets on a late one. Marking a paid payment again is a no-op.
func (e *Engine) MarkPaymentPaid(ctx context.Context, id string, paidAt time.Time, opts ...WriteOption) (*domain.Payment, error) {
	if err := e.awaitReady(ctx); err != nil {
		return nil, err
	}

	var (
		updated domain.Payment
		noop    bool
	)
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, order, siblings, err := e.loadPayment(ctx, tx, id)
		if err != nil {
			return err
		}
		if payment.Status == domain.PaymentStatusPaid {
			updated, noop = *payment, true
			return nil
		}

		onTime := schedule.DateDelta(payment.DueDate, paidAt) <= 0
		payment.Status = domain.PaymentStatusPaid
		payment.PaidDate = &paidAt
		payment.PaidOnTime = &onTime
		if err := e.Payments.putTx(ctx, tx, *payment); err != nil {
			return err
		}

		allPaid := true
		for _, p := range siblings {
			if p.ID != payment.ID && p.Status != domain.PaymentStatusPaid {
				allPaid = false
				break
			}
		}
		if allPaid && order.Status == domain.OrderStatusActive {
			order.Status = domain.OrderStatusCompleted
			if err := e.Orders.putTx(ctx, tx, *order); err != nil {
				return err
			}
		}

		platform, err := e.Platforms.repo.WithTrx(tx).FindByKey(ctx, payment.PlatformID)
		if err != nil {
			return domain.WrapStorage("get platforms", err)
		}
		if platform != nil {
			if onTime {
				platform.CurrentStreak++
			} else {
				platform.CurrentStreak = 0
			}
			if err := e.Platforms.putTx(ctx, tx, *platform); err != nil {
				return err
			}
		}

		updated = *payment
		return nil
	})
	if noop {
		return &updated, nil
	}
	e.metrics.RecordWrite(ctx, e.Payments.name, "mark_paid", err)
	if err != nil {
		return nil, err
	}
	e.committed(ctx, resolve(opts), "mark payment paid")
	return &updated, nil
}

// UnmarkPaymentPaid returns payment id to pending and reopens a completed
// order. Callers run the overdue sweep afterwards.
func (e *Engine) UnmarkPaymentPaid(ctx context.Context, id string, opts ...WriteOption) (*domain.Payment, error) {
	if err := e.awaitReady(ctx); err != nil {
		return nil, err
	}

	var updated domain.Payment
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, order, _, err := e.loadPayment(ctx, tx, id)
		if err != nil {
			return err
		}

		payment.Status = domain.PaymentStatusPending
		payment.PaidDate = nil
		payment.PaidOnTime = nil
		if err := e.Payments.putTx(ctx, tx, *payment); err != nil {
			return err
		}
		if order.Status == domain.OrderStatusCompleted {
			order.Status = domain.OrderStatusActive
			if err := e.Orders.putTx(ctx, tx, *order); err != nil {
				return err
			}
		}
		updated = *payment
		return nil
	})
	e.metrics.RecordWrite(ctx, e.Payments.name, "unmark_paid", err)
	if err != nil {
		return nil, err
	}
	e.committed(ctx, resolve(opts), "unmark payment paid")
	return &updated, nil
}

// loadPayment reads payment id, its order and all payments of that order
// inside tx.
func (e *Engine) loadPayment(ctx context.Context, tx *gorm.DB, id string) (*domain.Payment, *domain.Order, []domain.Payment, error) {
	payment, err := e.Payments.repo.WithTrx(tx).FindByKey(ctx, id)
	if err != nil {
		return nil, nil, nil, domain.WrapStorage("get payments", err)
	}
	if payment == nil {
		return nil, nil, nil, fmt.Errorf("%q: %w", id, domain.ErrPaymentNotFound)
	}
	order, err := e.Orders.repo.WithTrx(tx).FindByKey(ctx, payment.OrderID)
	if err != nil {
		return nil, nil, nil, domain.WrapStorage("get orders", err)
	}
	if order == nil {
		return nil, nil, nil, fmt.Errorf("%q of payment %q: %w", payment.OrderID, id, domain.ErrOrderNotFound)
	}
	siblings, err := e.Payments.repo.WithTrx(tx).FindBy(ctx, "order_id", payment.OrderID)
	if err != nil {
		return nil, nil, nil, domain.WrapStorage("list payments", err)
	}
	return payment, order, siblings, nil
}
