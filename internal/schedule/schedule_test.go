package schedule

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/smallbiznis/splitpay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestGenerateSumsExactlyToTotal(t *testing.T) {
	calc := New(nil)
	first := day(2026, time.January, 31)

	totals := []int64{0, 1, 3, 99, 100, 1000, 9999, 10001, 123457}
	for _, total := range totals {
		for count := 1; count <= 12; count++ {
			for _, interval := range []int{1, 7, 14, 30} {
				got, err := calc.Generate(total, first, count, interval, nil)
				require.NoError(t, err)
				require.Len(t, got, count)
				assert.Equal(t, total, Sum(got), "total=%d count=%d", total, count)

				for i, inst := range got {
					assert.Equal(t, i+1, inst.Number)
					assert.Equal(t, first.AddDate(0, 0, i*interval), inst.DueDate)
					if i > 0 {
						assert.Equal(t, interval, DateDelta(got[i-1].DueDate, inst.DueDate))
					}
				}
			}
		}
	}
}

func TestGenerateRemainderOnLastInstallment(t *testing.T) {
	got, err := New(nil).Generate(1000, day(2026, time.March, 1), 3, 14, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(333), got[0].Amount)
	assert.Equal(t, int64(333), got[1].Amount)
	assert.Equal(t, int64(334), got[2].Amount)
}

func TestGenerateRejectsInvalidInput(t *testing.T) {
	calc := New(nil)
	first := day(2026, time.March, 1)

	_, err := calc.Generate(-1, first, 4, 14, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = calc.Generate(100, first, 0, 14, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInstallments)

	_, err = calc.Generate(100, first, 4, 0, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInterval)
}

func TestGenerateDelegatesAPRToStrategy(t *testing.T) {
	var gotAPR float64
	calc := New(InterestFunc(func(principal []int64, apr float64, intervalDays int) ([]int64, error) {
		gotAPR = apr
		out := make([]int64, len(principal))
		for i, p := range principal {
			out[i] = p + 10
		}
		return out, nil
	}))

	apr := 0.25
	got, err := calc.Generate(400, day(2026, time.March, 1), 4, 14, &apr)
	require.NoError(t, err)
	assert.Equal(t, 0.25, gotAPR)
	assert.Equal(t, int64(440), Sum(got))

	zero := 0.0
	got, err = calc.Generate(400, day(2026, time.March, 1), 4, 14, &zero)
	require.NoError(t, err)
	assert.Equal(t, int64(400), Sum(got))
}

func TestGenerateStrategyErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	calc := New(InterestFunc(func([]int64, float64, int) ([]int64, error) { return nil, boom }))

	apr := 0.1
	_, err := calc.Generate(400, day(2026, time.March, 1), 4, 14, &apr)
	assert.ErrorIs(t, err, boom)
}

func TestShiftDatesPreservesAmountsAndSpacing(t *testing.T) {
	s := []Installment{
		{Number: 1, Amount: 100, DueDate: day(2026, time.March, 1)},
		{Number: 2, Amount: 150, DueDate: day(2026, time.March, 20), Pinned: true},
		{Number: 3, Amount: 250, DueDate: day(2026, time.March, 29)},
	}

	got := ShiftDates(s, 5)
	assert.Equal(t, day(2026, time.March, 6), got[0].DueDate)
	assert.Equal(t, day(2026, time.March, 25), got[1].DueDate)
	assert.Equal(t, day(2026, time.April, 3), got[2].DueDate)
	for i := range s {
		assert.Equal(t, s[i].Amount, got[i].Amount)
	}
	assert.Equal(t, day(2026, time.March, 1), s[0].DueDate, "input must not be mutated")
}

func TestRecalculateDatesIgnoresPins(t *testing.T) {
	s := []Installment{
		{Number: 2, Amount: 150, DueDate: day(2026, time.June, 9), Pinned: true},
		{Number: 1, Amount: 100, DueDate: day(2026, time.March, 1)},
	}

	got, err := RecalculateDates(s, day(2026, time.April, 1), 30)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Number)
	assert.Equal(t, day(2026, time.April, 1), got[0].DueDate)
	assert.Equal(t, day(2026, time.May, 1), got[1].DueDate)
	assert.True(t, got[1].Pinned)
	assert.Equal(t, int64(150), got[1].Amount)

	_, err = RecalculateDates(s, day(2026, time.April, 1), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInterval)
}

func TestRedistributeAmountsKeepsPinnedAmounts(t *testing.T) {
	s := []Installment{
		{Number: 1, Amount: 250, DueDate: day(2026, time.March, 1)},
		{Number: 2, Amount: 400, DueDate: day(2026, time.March, 15), Pinned: true},
		{Number: 3, Amount: 250, DueDate: day(2026, time.March, 29)},
		{Number: 4, Amount: 100, DueDate: day(2026, time.April, 12)},
	}

	for _, total := range []int64{400, 401, 1000, 1333, 5000} {
		got, err := RedistributeAmounts(s, total)
		require.NoError(t, err)
		assert.Equal(t, total, Sum(got))
		assert.Equal(t, int64(400), got[1].Amount)
		assert.True(t, got[1].Pinned)
	}

	got, err := RedistributeAmounts(s, 1001)
	require.NoError(t, err)
	assert.Equal(t, []int64{200, 400, 200, 201}, []int64{got[0].Amount, got[1].Amount, got[2].Amount, got[3].Amount})
}

func TestRedistributeAmountsAllPinned(t *testing.T) {
	s := []Installment{
		{Number: 1, Amount: 500, Pinned: true},
		{Number: 2, Amount: 500, Pinned: true},
	}

	got, err := RedistributeAmounts(s, 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), Sum(got))

	got, err = RedistributeAmounts(s, 1200)
	assert.ErrorIs(t, err, domain.ErrUnsatisfiableSchedule)
	assert.Equal(t, s, got)
}

func TestRedistributeAmountsRejectsTotalBelowPinnedSum(t *testing.T) {
	s := []Installment{
		{Number: 1, Amount: 500, Pinned: true},
		{Number: 2, Amount: 500},
	}

	_, err := RedistributeAmounts(s, 400)
	assert.ErrorIs(t, err, domain.ErrUnsatisfiableSchedule)
}

func TestDateDeltaCountsCalendarDays(t *testing.T) {
	assert.Equal(t, 0, DateDelta(day(2026, time.March, 1), day(2026, time.March, 1)))
	assert.Equal(t, 14, DateDelta(day(2026, time.March, 1), day(2026, time.March, 15)))
	assert.Equal(t, -3, DateDelta(day(2026, time.March, 4), day(2026, time.March, 1)))

	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	before := time.Date(2026, time.March, 7, 23, 30, 0, 0, loc)
	after := time.Date(2026, time.March, 9, 0, 15, 0, 0, loc)
	assert.Equal(t, 2, DateDelta(before, after))
}

func TestDateDeltaReadsBothDaysInNewDateLocation(t *testing.T) {
	local := time.FixedZone("UTC-5", -5*3600)
	now := time.Date(2026, time.March, 10, 10, 0, 0, 0, local)

	// 02:00 UTC on the 10th is still the 9th at UTC-5.
	due := time.Date(2026, time.March, 10, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, 1, DateDelta(due, now))

	due = time.Date(2026, time.March, 10, 6, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, DateDelta(due, now))
}

func TestApplyToPaymentsReturnsOnlyChanged(t *testing.T) {
	payments := []domain.Payment{
		{ID: "p1", InstallmentNumber: 1, Amount: 100, DueDate: day(2026, time.March, 1)},
		{ID: "p2", InstallmentNumber: 2, Amount: 100, DueDate: day(2026, time.March, 15)},
	}
	s := FromPayments(payments)
	s[1].Amount = 120

	changed := ApplyToPayments(payments, s)
	require.Len(t, changed, 1)
	assert.Equal(t, "p2", changed[0].ID)
	assert.Equal(t, int64(120), changed[0].Amount)
	assert.Equal(t, int64(100), payments[1].Amount)
}

func TestValidateContiguousNumbers(t *testing.T) {
	assert.NoError(t, Validate([]Installment{{Number: 2}, {Number: 1}}))
	assert.Error(t, Validate([]Installment{{Number: 1}, {Number: 3}}))
}
