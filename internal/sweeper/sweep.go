// Package sweeper promotes pending payments whose due day has passed to
// overdue.
package sweeper

import (
	"time"

	"github.com/smallbiznis/splitpay/internal/domain"
	"github.com/smallbiznis/splitpay/internal/schedule"
)

// Sweep returns the payments of set that become overdue at now: pending
// payments whose due calendar day is before the calendar day of now. The
// returned payments carry the new status; set is not modified.
func Sweep(now time.Time, set []domain.Payment) []domain.Payment {
	var changed []domain.Payment
	for _, p := range set {
		if p.Status != domain.PaymentStatusPending {
			continue
		}
		if schedule.DateDelta(p.DueDate, now) <= 0 {
			continue
		}
		p.Status = domain.PaymentStatusOverdue
		changed = append(changed, p)
	}
	return changed
}
