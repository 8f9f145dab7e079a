package schedule

import (
	"sort"

	"github.com/smallbiznis/splitpay/internal/domain"
)

// FromPayments projects stored payments onto a schedule ordered by
// installment number.
func FromPayments(payments []domain.Payment) []Installment {
	out := make([]Installment, 0, len(payments))
	for _, p := range payments {
		out = append(out, Installment{
			Number:  p.InstallmentNumber,
			Amount:  p.Amount,
			DueDate: p.DueDate,
			Pinned:  p.IsManualOverride,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// ApplyToPayments copies schedule amounts and due dates back onto the
// payments with the same installment number and returns only the payments
// that actually changed.
func ApplyToPayments(payments []domain.Payment, s []Installment) []domain.Payment {
	byNumber := make(map[int]Installment, len(s))
	for _, inst := range s {
		byNumber[inst.Number] = inst
	}

	changed := make([]domain.Payment, 0, len(payments))
	for _, p := range payments {
		inst, ok := byNumber[p.InstallmentNumber]
		if !ok {
			continue
		}
		if p.Amount == inst.Amount && p.DueDate.Equal(inst.DueDate) {
			continue
		}
		p.Amount = inst.Amount
		p.DueDate = inst.DueDate
		changed = append(changed, p)
	}
	return changed
}
