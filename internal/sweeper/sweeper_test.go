package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/splitpay/internal/clock"
	"github.com/smallbiznis/splitpay/internal/domain"
	obsmetrics "github.com/smallbiznis/splitpay/internal/observability/metrics"
	"github.com/smallbiznis/splitpay/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type memoryPayments struct {
	mu      sync.Mutex
	byID    map[string]domain.Payment
	order   []string
	puts    int
	loadErr error
}

func newMemoryPayments(payments ...domain.Payment) *memoryPayments {
	m := &memoryPayments{byID: map[string]domain.Payment{}}
	for _, p := range payments {
		m.byID[p.ID] = p
		m.order = append(m.order, p.ID)
	}
	return m
}

func (m *memoryPayments) GetAll(context.Context) ([]domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := make([]domain.Payment, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.byID[id])
	}
	return out, nil
}

func (m *memoryPayments) PutAll(_ context.Context, items []domain.Payment, _ ...store.WriteOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	for _, p := range items {
		m.byID[p.ID] = p
	}
	return nil
}

func (m *memoryPayments) status(id string) domain.PaymentStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id].Status
}

var now = time.Date(2026, time.March, 10, 8, 30, 0, 0, time.UTC)

func payment(id string, due time.Time, status domain.PaymentStatus) domain.Payment {
	return domain.Payment{ID: id, OrderID: "o-1", Amount: 100, DueDate: due, InstallmentNumber: 1, Status: status}
}

func TestSweepPromotesOnlyPastDuePending(t *testing.T) {
	yesterday := now.AddDate(0, 0, -1)
	set := []domain.Payment{
		payment("late", yesterday, domain.PaymentStatusPending),
		payment("today", time.Date(2026, time.March, 10, 23, 0, 0, 0, time.UTC), domain.PaymentStatusPending),
		payment("earlier-today", time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC), domain.PaymentStatusPending),
		payment("paid", yesterday, domain.PaymentStatusPaid),
		payment("future", now.AddDate(0, 0, 7), domain.PaymentStatusPending),
	}

	changed := Sweep(now, set)
	require.Len(t, changed, 1)
	assert.Equal(t, "late", changed[0].ID)
	assert.Equal(t, domain.PaymentStatusOverdue, changed[0].Status)
	assert.Equal(t, domain.PaymentStatusPending, set[0].Status)
}

func TestSweepIsIdempotent(t *testing.T) {
	set := []domain.Payment{
		payment("a", now.AddDate(0, 0, -3), domain.PaymentStatusPending),
		payment("b", now.AddDate(0, 0, -1), domain.PaymentStatusOverdue),
	}
	first := Sweep(now, set)
	require.Len(t, first, 1)

	set[0] = first[0]
	assert.Empty(t, Sweep(now, set))
}

func TestSweepUsesLocalCalendarDay(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	localNow := time.Date(2026, time.March, 10, 1, 0, 0, 0, loc)
	due := time.Date(2026, time.March, 10, 0, 0, 0, 0, loc)

	assert.Empty(t, Sweep(localNow, []domain.Payment{payment("a", due, domain.PaymentStatusPending)}))
}

func TestSweepComparesStoredUTCDueDateInLocalDay(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	localNow := time.Date(2026, time.March, 10, 10, 0, 0, 0, loc)
	set := []domain.Payment{
		// the evening of March 9 locally
		payment("yesterday", time.Date(2026, time.March, 10, 2, 0, 0, 0, time.UTC), domain.PaymentStatusPending),
		// the morning of March 10 locally
		payment("today", time.Date(2026, time.March, 10, 14, 0, 0, 0, time.UTC), domain.PaymentStatusPending),
	}

	changed := Sweep(localNow, set)
	require.Len(t, changed, 1)
	assert.Equal(t, "yesterday", changed[0].ID)
}

func newTestService(t *testing.T, payments PaymentStore, clk clock.Clock) *Service {
	t.Helper()
	obsmetrics.ResetSweeperMetricsForTest()
	t.Cleanup(obsmetrics.ResetSweeperMetricsForTest)
	svc, err := New(Params{Payments: payments, Clock: clk, Log: zaptest.NewLogger(t), Metrics: obsmetrics.Sweeper()})
	require.NoError(t, err)
	return svc
}

func TestRunOnceWritesBackChangedSubset(t *testing.T) {
	payments := newMemoryPayments(
		payment("late", now.AddDate(0, 0, -1), domain.PaymentStatusPending),
		payment("today", now, domain.PaymentStatusPending),
		payment("paid", now.AddDate(0, 0, -1), domain.PaymentStatusPaid),
	)
	clk := clock.NewFakeClock(now)
	svc := newTestService(t, payments, clk)

	promoted, err := svc.RunOnce(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 1, promoted)
	assert.Equal(t, domain.PaymentStatusOverdue, payments.status("late"))
	assert.Equal(t, domain.PaymentStatusPending, payments.status("today"))
	assert.Equal(t, domain.PaymentStatusPaid, payments.status("paid"))

	promoted, err = svc.RunOnce(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.Zero(t, promoted)
	assert.Equal(t, 1, payments.puts)

	clk.Advance(24 * time.Hour)
	promoted, err = svc.RunOnce(context.Background(), TriggerTimer)
	require.NoError(t, err)
	assert.Equal(t, 1, promoted)
	assert.Equal(t, domain.PaymentStatusOverdue, payments.status("today"))
}

func TestRunOnceReportsLoadErrors(t *testing.T) {
	payments := newMemoryPayments()
	payments.loadErr = domain.ErrNotInitialized
	svc := newTestService(t, payments, clock.NewFakeClock(now))

	_, err := svc.RunOnce(context.Background(), TriggerManual)
	assert.ErrorIs(t, err, domain.ErrNotInitialized)
}

func TestRunForeverStopsOnCancel(t *testing.T) {
	payments := newMemoryPayments(payment("late", now.AddDate(0, 0, -1), domain.PaymentStatusPending))
	svc := newTestService(t, payments, clock.NewFakeClock(now))
	svc.cfg.RunInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.RunForever(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return payments.status("late") == domain.PaymentStatusOverdue
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunForever did not return after cancel")
	}
	assert.Equal(t, 1, payments.puts)
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := New(Params{})
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}
