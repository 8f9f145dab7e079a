package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/splitpay/internal/domain"
	"github.com/smallbiznis/splitpay/internal/observability/logger"
	"github.com/smallbiznis/splitpay/internal/schedule"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// NewOrder is the input of CreateOrder. Zero Installments or IntervalDays
// fall back to the platform defaults.
type NewOrder struct {
	PlatformID       string    `json:"platformId" validate:"required"`
	StoreName        *string   `json:"storeName,omitempty"`
	TotalAmount      int64     `json:"totalAmount" validate:"gte=0"`
	FirstPaymentDate time.Time `json:"firstPaymentDate" validate:"required"`
	Installments     int       `json:"installments,omitempty" validate:"gte=0"`
	IntervalDays     int       `json:"intervalDays,omitempty" validate:"gte=0"`
	APR              *float64  `json:"apr,omitempty" validate:"omitempty,gte=0"`
	Tags             []string  `json:"tags,omitempty"`
	Notes            *string   `json:"notes,omitempty"`
}

// OrderPatch lists the order fields UpdateOrder may change. Nil fields are
// left alone.
type OrderPatch struct {
	PlatformID       *string             `json:"platformId,omitempty"`
	StoreName        *string             `json:"storeName,omitempty"`
	TotalAmount      *int64              `json:"totalAmount,omitempty"`
	FirstPaymentDate *time.Time          `json:"firstPaymentDate,omitempty"`
	IntervalDays     *int                `json:"intervalDays,omitempty"`
	Status           *domain.OrderStatus `json:"status,omitempty"`
	APR              *float64            `json:"apr,omitempty"`
	Tags             *[]string           `json:"tags,omitempty"`
	Notes            *string             `json:"notes,omitempty"`
}

// CreateOrder generates the payment schedule for in and stores the order
// together with its payments through AddOrder.
func (e *Engine) CreateOrder(ctx context.Context, in NewOrder, opts ...WriteOption) (*domain.Order, []domain.Payment, error) {
	if err := validate.Struct(in); err != nil {
		return nil, nil, domain.NewValidationError("new order: %v", err)
	}
	platform, err := e.Platforms.Get(ctx, in.PlatformID)
	if err != nil {
		return nil, nil, err
	}
	if platform == nil {
		return nil, nil, fmt.Errorf("%q: %w", in.PlatformID, domain.ErrPlatformNotFound)
	}

	count := in.Installments
	if count == 0 {
		count = platform.DefaultInstallments
	}
	interval := in.IntervalDays
	if interval == 0 {
		interval = platform.DefaultIntervalDays
	}
	plan, err := e.calc.Generate(in.TotalAmount, in.FirstPaymentDate, count, interval, in.APR)
	if err != nil {
		return nil, nil, err
	}

	order := domain.Order{
		ID:               e.nextID(),
		PlatformID:       platform.ID,
		StoreName:        in.StoreName,
		TotalAmount:      schedule.Sum(plan),
		FirstPaymentDate: in.FirstPaymentDate,
		Status:           domain.OrderStatusActive,
		CreatedAt:        e.clock.Now(),
		APR:              in.APR,
		Notes:            in.Notes,
		Category:         platform.Category,
	}
	if in.Installments > 0 {
		order.Installments = &in.Installments
	}
	if in.IntervalDays > 0 {
		order.IntervalDays = &in.IntervalDays
	}
	if len(in.Tags) > 0 {
		order.Tags = datatypes.JSONSlice[string](in.Tags)
	}

	payments := make([]domain.Payment, len(plan))
	for i, inst := range plan {
		payments[i] = domain.Payment{
			ID:                e.nextID(),
			OrderID:           order.ID,
			PlatformID:        order.PlatformID,
			Amount:            inst.Amount,
			DueDate:           inst.DueDate,
			InstallmentNumber: inst.Number,
			Status:            domain.PaymentStatusPending,
		}
	}

	if err := e.AddOrder(ctx, order, payments, opts...); err != nil {
		return nil, nil, err
	}
	return &order, payments, nil
}

// AddOrder writes order and then each payment in sequence. When a write
// fails, everything written so far is deleted again in reverse order and the
// original error is returned. The sequence is not isolated from concurrent
// readers. If a compensating delete fails the order is kept, flagged
// inconsistent, and the error also matches ErrRollbackIncomplete.
func (e *Engine) AddOrder(ctx context.Context, order domain.Order, payments []domain.Payment, opts ...WriteOption) error {
	if err := e.awaitReady(ctx); err != nil {
		return err
	}
	if err := checkOrderPayments(order, payments); err != nil {
		return err
	}

	err := e.addOrder(ctx, order, payments)
	e.metrics.RecordWrite(ctx, e.Orders.name, "add", err)
	if err != nil {
		return err
	}
	e.committed(ctx, resolve(opts), "add order")
	return nil
}

func checkOrderPayments(order domain.Order, payments []domain.Payment) error {
	if err := validate.Struct(order); err != nil {
		return domain.NewValidationError("order %q: %v", order.ID, err)
	}
	for i := range payments {
		if payments[i].OrderID != order.ID {
			return domain.NewValidationError("payment %q belongs to order %q, not %q", payments[i].ID, payments[i].OrderID, order.ID)
		}
		if err := validate.Struct(&payments[i]); err != nil {
			return domain.NewValidationError("payment %q: %v", payments[i].ID, err)
		}
	}
	plan := schedule.FromPayments(payments)
	if err := schedule.Validate(plan); err != nil {
		return domain.NewValidationError("order %q: %v", order.ID, err)
	}
	if sum := schedule.Sum(plan); sum != order.TotalAmount {
		return fmt.Errorf("order %q: payments sum to %d, total is %d: %w", order.ID, sum, order.TotalAmount, domain.ErrInvalidAmount)
	}
	return nil
}

func (e *Engine) addOrder(ctx context.Context, order domain.Order, payments []domain.Payment) error {
	if err := e.Orders.repo.Create(ctx, &order); err != nil {
		return domain.WrapStorage("add order", err)
	}

	written := make([]string, 0, len(payments))
	for i := range payments {
		if err := e.Payments.repo.Create(ctx, &payments[i]); err != nil {
			err = domain.WrapStorage(fmt.Sprintf("add payment %d of order %q", payments[i].InstallmentNumber, order.ID), err)
			return e.rollbackOrder(ctx, order.ID, written, err)
		}
		written = append(written, payments[i].ID)
	}
	return nil
}

// rollbackOrder undoes a failed AddOrder. It stops at the first failing
// delete so the order is never removed while any of its payments remain.
func (e *Engine) rollbackOrder(ctx context.Context, orderID string, paymentIDs []string, cause error) error {
	ctx = context.WithoutCancel(ctx)
	log := logger.WithContext(ctx, e.log).With(zap.String("order_id", orderID))

	var rollbackErr error
	for i := len(paymentIDs) - 1; i >= 0; i-- {
		if _, err := e.Payments.repo.Delete(ctx, paymentIDs[i]); err != nil {
			rollbackErr = fmt.Errorf("delete payment %q: %w", paymentIDs[i], err)
			break
		}
	}
	if rollbackErr == nil {
		if _, err := e.Orders.repo.Delete(ctx, orderID); err != nil {
			rollbackErr = fmt.Errorf("delete order: %w", err)
		}
	}
	if rollbackErr == nil {
		log.Warn("add order rolled back", zap.Error(cause))
		return cause
	}

	log.Error("add order rollback incomplete", zap.Error(cause), zap.NamedError("rollback_error", rollbackErr))
	if err := e.db.WithContext(ctx).Model(&domain.Order{}).
		Where("id = ?", orderID).
		Update("inconsistent", true).Error; err != nil {
		log.Error("failed to flag order inconsistent", zap.Error(err))
	}
	return errors.Join(cause, fmt.Errorf("%w: %w", domain.ErrRollbackIncomplete, rollbackErr))
}

// DeleteOrder deletes the payments of order id and then the order. If any
// payment cannot be deleted the error is returned and the order stays.
func (e *Engine) DeleteOrder(ctx context.Context, id string, opts ...WriteOption) error {
	if err := e.awaitReady(ctx); err != nil {
		return err
	}
	order, err := e.Orders.repo.FindByKey(ctx, id)
	if err != nil {
		return domain.WrapStorage("get orders", err)
	}
	if order == nil {
		return fmt.Errorf("%q: %w", id, domain.ErrOrderNotFound)
	}
	payments, err := e.Payments.repo.FindBy(ctx, "order_id", id)
	if err != nil {
		return domain.WrapStorage("list payments", err)
	}

	o := resolve(opts)
	deleted := 0
	for _, p := range payments {
		if err := e.Payments.delete(ctx, e.db, p.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			e.metrics.RecordWrite(ctx, e.Orders.name, "delete", err)
			if deleted > 0 {
				e.committed(ctx, o, "delete order partial")
			}
			return fmt.Errorf("delete order %q: cascade to payment %q: %w", id, p.ID, err)
		}
		deleted++
	}

	err = e.Orders.delete(ctx, e.db, id)
	e.metrics.RecordWrite(ctx, e.Orders.name, "delete", err)
	if err != nil {
		if deleted > 0 {
			e.committed(ctx, o, "delete order partial")
		}
		return err
	}
	e.committed(ctx, o, "delete order")
	return nil
}

// UpdateOrder applies patch to order id and reshapes its schedule:
// an interval change recomputes every due date, a first-date change alone
// shifts them, and a total change redistributes unpinned amounts. Nothing is
// written when the new total cannot be met.
func (e *Engine) UpdateOrder(ctx context.Context, id string, patch OrderPatch, opts ...WriteOption) (*domain.Order, error) {
	if err := e.awaitReady(ctx); err != nil {
		return nil, err
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, fmt.Errorf("%q: %w", *patch.Status, domain.ErrInvalidStatus)
	}

	var updated domain.Order
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := e.Orders.repo.WithTrx(tx).FindByKey(ctx, id)
		if err != nil {
			return domain.WrapStorage("get orders", err)
		}
		if order == nil {
			return fmt.Errorf("%q: %w", id, domain.ErrOrderNotFound)
		}
		payments, err := e.Payments.repo.WithTrx(tx).FindBy(ctx, "order_id", id)
		if err != nil {
			return domain.WrapStorage("list payments", err)
		}

		plan := schedule.FromPayments(payments)
		switch {
		case patch.IntervalDays != nil && (order.IntervalDays == nil || *order.IntervalDays != *patch.IntervalDays):
			first := order.FirstPaymentDate
			if patch.FirstPaymentDate != nil {
				first = *patch.FirstPaymentDate
			}
			if plan, err = schedule.RecalculateDates(plan, first, *patch.IntervalDays); err != nil {
				return err
			}
			order.IntervalDays = patch.IntervalDays
			order.FirstPaymentDate = first
		case patch.FirstPaymentDate != nil:
			if delta := schedule.DateDelta(order.FirstPaymentDate, *patch.FirstPaymentDate); delta != 0 {
				plan = schedule.ShiftDates(plan, delta)
			}
			order.FirstPaymentDate = *patch.FirstPaymentDate
		}

		if patch.TotalAmount != nil && *patch.TotalAmount != order.TotalAmount {
			if *patch.TotalAmount < 0 {
				return domain.ErrInvalidAmount
			}
			if plan, err = schedule.RedistributeAmounts(plan, *patch.TotalAmount); err != nil {
				return err
			}
			order.TotalAmount = *patch.TotalAmount
		}

		platformChanged := patch.PlatformID != nil && *patch.PlatformID != order.PlatformID
		if platformChanged {
			platform, err := e.Platforms.repo.WithTrx(tx).FindByKey(ctx, *patch.PlatformID)
			if err != nil {
				return domain.WrapStorage("get platforms", err)
			}
			if platform == nil {
				return fmt.Errorf("%q: %w", *patch.PlatformID, domain.ErrPlatformNotFound)
			}
			order.PlatformID = platform.ID
		}

		applyOrderFields(order, patch)
		if err := validate.Struct(order); err != nil {
			return domain.NewValidationError("order %q: %v", order.ID, err)
		}

		changed := schedule.ApplyToPayments(payments, plan)
		if platformChanged {
			changed = withPlatform(payments, changed, order.PlatformID)
		}

		if err := e.Orders.putTx(ctx, tx, *order); err != nil {
			return err
		}
		if err := e.Payments.putTx(ctx, tx, changed...); err != nil {
			return err
		}
		updated = *order
		return nil
	})
	e.metrics.RecordWrite(ctx, e.Orders.name, "update", err)
	if err != nil {
		return nil, err
	}
	e.committed(ctx, resolve(opts), "update order")
	return &updated, nil
}

func applyOrderFields(order *domain.Order, patch OrderPatch) {
	if patch.StoreName != nil {
		order.StoreName = patch.StoreName
	}
	if patch.Status != nil {
		order.Status = *patch.Status
	}
	if patch.APR != nil {
		order.APR = patch.APR
	}
	if patch.Tags != nil {
		order.Tags = datatypes.JSONSlice[string](*patch.Tags)
	}
	if patch.Notes != nil {
		order.Notes = patch.Notes
	}
}

// withPlatform returns every payment moved to platformID, carrying over the
// schedule changes already in changed.
func withPlatform(payments, changed []domain.Payment, platformID string) []domain.Payment {
	byID := make(map[string]domain.Payment, len(changed))
	for _, p := range changed {
		byID[p.ID] = p
	}
	out := make([]domain.Payment, 0, len(payments))
	for _, p := range payments {
		if c, ok := byID[p.ID]; ok {
			p = c
		}
		p.PlatformID = platformID
		out = append(out, p)
	}
	return out
}
