package snapshot

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/splitpay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot() *Snapshot {
	due := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	return Build(
		time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC),
		[]domain.Order{{ID: "o1", PlatformID: "zip", TotalAmount: 200, FirstPaymentDate: due, Status: domain.OrderStatusActive}},
		[]domain.Payment{
			{ID: "p1", OrderID: "o1", PlatformID: "zip", Amount: 100, DueDate: due, InstallmentNumber: 1, Status: domain.PaymentStatusPending},
			{ID: "p2", OrderID: "o1", PlatformID: "zip", Amount: 100, DueDate: due.AddDate(0, 0, 14), InstallmentNumber: 2, Status: domain.PaymentStatusPending},
		},
		[]domain.Platform{{ID: "zip", Name: "Zip", DefaultInstallments: 4, DefaultIntervalDays: 14}},
		nil,
		nil,
	)
}

func TestParseRoundTrip(t *testing.T) {
	raw, err := json.Marshal(sampleSnapshot())
	require.NoError(t, err)

	snap, err := NewValidator().Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, snap.Version)
	assert.Len(t, snap.Payments, 2)
	assert.NotNil(t, snap.Subscriptions)
	assert.NotNil(t, snap.LimitHistory)
}

func TestDecodeAcceptsVersionOneWithoutLimitHistory(t *testing.T) {
	raw := []byte(`{"version":1,"exportedAt":"2025-01-01T00:00:00Z","orders":[],"payments":[],"platforms":[],"subscriptions":[]}`)

	snap, err := NewValidator().Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Version)
	assert.Empty(t, snap.LimitHistory)
}

func TestDecodeRejectsStructuralProblems(t *testing.T) {
	cases := map[string]string{
		"not an object":       `[1,2]`,
		"missing version":     `{"orders":[],"payments":[],"platforms":[],"subscriptions":[]}`,
		"string version":      `{"version":"2","orders":[],"payments":[],"platforms":[],"subscriptions":[],"limitHistory":[]}`,
		"unsupported version": `{"version":9,"orders":[],"payments":[],"platforms":[],"subscriptions":[],"limitHistory":[]}`,
		"missing payments":    `{"version":1,"orders":[],"platforms":[],"subscriptions":[]}`,
		"orders not array":    `{"version":1,"orders":{},"payments":[],"platforms":[],"subscriptions":[]}`,
		"null platforms":      `{"version":1,"orders":[],"payments":[],"platforms":null,"subscriptions":[]}`,
		"v2 without history":  `{"version":2,"orders":[],"payments":[],"platforms":[],"subscriptions":[]}`,
		"wrong field type":    `{"version":1,"orders":[{"id":"o1","totalAmount":"ten"}],"payments":[],"platforms":[],"subscriptions":[]}`,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(raw))
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestValidateCountsOrphanedPayments(t *testing.T) {
	snap := sampleSnapshot()
	snap.Payments = append(snap.Payments,
		domain.Payment{ID: "p3", OrderID: "ghost", PlatformID: "zip", Amount: 1, InstallmentNumber: 1, Status: domain.PaymentStatusPending},
	)

	err := NewValidator().Validate(snap)
	require.Error(t, err)
	var vErr *domain.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, 1, vErr.Orphaned)
}

func TestValidateRejectsBadRecords(t *testing.T) {
	v := NewValidator()

	snap := sampleSnapshot()
	snap.Payments[0].Status = "late"
	assert.ErrorIs(t, v.Validate(snap), domain.ErrValidation)

	snap = sampleSnapshot()
	snap.Payments[1].ID = "p1"
	assert.ErrorIs(t, v.Validate(snap), domain.ErrValidation)

	snap = sampleSnapshot()
	snap.Orders[0].ID = ""
	assert.ErrorIs(t, v.Validate(snap), domain.ErrValidation)
}

func TestHasOrderData(t *testing.T) {
	assert.False(t, (*Snapshot)(nil).HasOrderData())
	assert.False(t, Build(time.Now(), nil, nil, nil, nil, nil).HasOrderData())
	assert.True(t, sampleSnapshot().HasOrderData())
}
