// Package schedule generates and reshapes installment schedules. Every
// function here is pure: inputs are never mutated and results are fresh
// slices.
package schedule

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/smallbiznis/splitpay/internal/domain"
)

// Installment is one entry of a schedule. Pinned marks a user override that
// redistribution must leave untouched.
type Installment struct {
	Number  int       `json:"installmentNumber"`
	Amount  int64     `json:"amount"`
	DueDate time.Time `json:"dueDate"`
	Pinned  bool      `json:"isManualOverride,omitempty"`
}

// Calculator builds schedules. The zero value applies no interest.
type Calculator struct {
	interest InterestStrategy
}

// New returns a Calculator that adjusts APR-bearing schedules with strategy.
// A nil strategy means NoInterest.
func New(strategy InterestStrategy) *Calculator {
	return &Calculator{interest: strategy}
}

// Generate splits total evenly across count installments spaced intervalDays
// apart starting at firstDue. The rounding remainder lands on the last
// installment so the amounts always sum to total. A non-nil, positive apr is
// handed to the configured InterestStrategy.
func (c *Calculator) Generate(total int64, firstDue time.Time, count, intervalDays int, apr *float64) ([]Installment, error) {
	if total < 0 {
		return nil, domain.ErrInvalidAmount
	}
	if count < 1 {
		return nil, domain.ErrInvalidInstallments
	}
	if intervalDays < 1 {
		return nil, domain.ErrInvalidInterval
	}

	amounts := splitEven(total, count)
	if apr != nil && *apr > 0 {
		adjusted, err := c.strategy().Apply(amounts, *apr, intervalDays)
		if err != nil {
			return nil, fmt.Errorf("apply interest: %w", err)
		}
		if len(adjusted) != count {
			return nil, fmt.Errorf("interest strategy returned %d amounts, want %d", len(adjusted), count)
		}
		amounts = adjusted
	}

	out := make([]Installment, count)
	for i := 0; i < count; i++ {
		out[i] = Installment{
			Number:  i + 1,
			Amount:  amounts[i],
			DueDate: firstDue.AddDate(0, 0, i*intervalDays),
		}
	}
	return out, nil
}

func (c *Calculator) strategy() InterestStrategy {
	if c == nil || c.interest == nil {
		return NoInterest{}
	}
	return c.interest
}

// ShiftDates moves every due date by deltaDays calendar days. Amounts and
// relative spacing are preserved, including manually pinned dates.
func ShiftDates(s []Installment, deltaDays int) []Installment {
	out := ordered(s)
	if deltaDays == 0 {
		return out
	}
	for i := range out {
		out[i].DueDate = out[i].DueDate.AddDate(0, 0, deltaDays)
	}
	return out
}

// RecalculateDates rebuilds due dates from newFirstDue and newIntervalDays.
// A structural schedule change supersedes date pins, so pinned installments
// are recomputed too; amounts and pin flags are untouched.
func RecalculateDates(s []Installment, newFirstDue time.Time, newIntervalDays int) ([]Installment, error) {
	if newIntervalDays < 1 {
		return nil, domain.ErrInvalidInterval
	}
	out := ordered(s)
	for i := range out {
		out[i].DueDate = newFirstDue.AddDate(0, 0, i*newIntervalDays)
	}
	return out, nil
}

// RedistributeAmounts rewrites unpinned amounts so the schedule sums to
// newTotal. Pinned amounts never change. The difference between newTotal and
// the pinned sum is split evenly over the unpinned installments with the
// remainder on the last of them. When nothing can absorb the difference the
// schedule is returned unchanged together with ErrUnsatisfiableSchedule.
func RedistributeAmounts(s []Installment, newTotal int64) ([]Installment, error) {
	out := ordered(s)

	var pinnedSum int64
	free := make([]int, 0, len(out))
	for i, inst := range out {
		if inst.Pinned {
			pinnedSum += inst.Amount
			continue
		}
		free = append(free, i)
	}

	remaining := newTotal - pinnedSum
	if len(free) == 0 {
		if remaining != 0 {
			return ordered(s), fmt.Errorf("%w: pinned installments sum to %d, want %d", domain.ErrUnsatisfiableSchedule, pinnedSum, newTotal)
		}
		return out, nil
	}
	if remaining < 0 {
		return ordered(s), fmt.Errorf("%w: pinned installments sum to %d, exceeding %d", domain.ErrUnsatisfiableSchedule, pinnedSum, newTotal)
	}

	amounts := splitEven(remaining, len(free))
	for j, idx := range free {
		out[idx].Amount = amounts[j]
	}
	return out, nil
}

// DateDelta returns the number of calendar days from oldDate to newDate,
// ignoring wall-clock time and daylight saving shifts. Both days are read in
// newDate's location.
func DateDelta(oldDate, newDate time.Time) int {
	a := civilDay(oldDate.In(newDate.Location()))
	b := civilDay(newDate)
	return int(b.Sub(a).Hours() / 24)
}

// Sum adds up every installment amount.
func Sum(s []Installment) int64 {
	var total int64
	for _, inst := range s {
		total += inst.Amount
	}
	return total
}

// Validate checks that installment numbers run 1..n without gaps.
func Validate(s []Installment) error {
	sorted := ordered(s)
	for i, inst := range sorted {
		if inst.Number != i+1 {
			return errors.New("installment numbers must be contiguous from 1")
		}
	}
	return nil
}

func civilDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func splitEven(total int64, n int) []int64 {
	out := make([]int64, n)
	base := total / int64(n)
	for i := range out {
		out[i] = base
	}
	out[n-1] += total - base*int64(n)
	return out
}

func ordered(s []Installment) []Installment {
	out := make([]Installment, len(s))
	copy(out, s)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}
