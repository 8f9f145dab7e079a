package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/smallbiznis/splitpay/internal/domain"
	"github.com/smallbiznis/splitpay/internal/mirror/mocks"
	"github.com/smallbiznis/splitpay/internal/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testSnapshot() *snapshot.Snapshot {
	due := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	return snapshot.Build(
		due,
		[]domain.Order{{ID: "o1", PlatformID: "zip", TotalAmount: 100, FirstPaymentDate: due, Status: domain.OrderStatusActive, CreatedAt: due}},
		[]domain.Payment{{ID: "p1", OrderID: "o1", PlatformID: "zip", Amount: 100, DueDate: due, InstallmentNumber: 1, Status: domain.PaymentStatusPending}},
		[]domain.Platform{{ID: "zip", Name: "Zip", DefaultInstallments: 4, DefaultIntervalDays: 14}},
		nil,
		nil,
	)
}

func openMemorySlot(t *testing.T) *BadgerSlot {
	t.Helper()
	slot, err := OpenBadgerSlot(BadgerConfig{InMemory: true, Key: "test:mirror"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = slot.Close() })
	return slot
}

func TestMirrorSaveLoadWithBadger(t *testing.T) {
	ctx := context.Background()
	m := New(openMemorySlot(t), zaptest.NewLogger(t))

	empty, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, empty)

	want := testSnapshot()
	require.NoError(t, m.Save(ctx, want, time.Now()))

	got, err := m.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.Orders[0].ID, got.Orders[0].ID)
	assert.Equal(t, want.Payments[0].Amount, got.Payments[0].Amount)
	assert.True(t, want.Payments[0].DueDate.Equal(got.Payments[0].DueDate))

	require.NoError(t, m.Discard(ctx))
	gone, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestDecodeRejectsCorruptBlobs(t *testing.T) {
	v := snapshot.NewValidator()
	good, err := Encode(testSnapshot(), time.Now())
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(good, &env))

	tampered := env
	tampered.Payload = append([]byte{}, env.Payload...)
	tampered.Payload[len(tampered.Payload)-1] ^= 0xff
	tamperedBlob, _ := json.Marshal(tampered)

	foreign := env
	foreign.Kind = "someone.else"
	foreignBlob, _ := json.Marshal(foreign)

	cases := map[string][]byte{
		"not json":      []byte("{{{"),
		"legacy blob":   []byte(`{"orders":[],"payments":[]}`),
		"checksum":      tamperedBlob,
		"foreign kind":  foreignBlob,
		"empty payload": []byte(`{"kind":"splitpay.mirror","schemaVersion":2,"savedAt":"2026-01-01T00:00:00Z","checksum":0,"payload":""}`),
	}
	for name, blob := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(blob, v)
			assert.ErrorIs(t, err, ErrCorruptMirror)
		})
	}

	snap, err := Decode(good, v)
	require.NoError(t, err)
	assert.Len(t, snap.Orders, 1)
}

func TestMirrorSaveMapsQuotaErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	slot := mocks.NewMockSlot(ctrl)
	slot.EXPECT().Store(gomock.Any(), gomock.Any()).Return(fmt.Errorf("write: %w", errors.New("OOM command not allowed when used memory > 'maxmemory'")))

	m := New(slot, zaptest.NewLogger(t))
	err := m.Save(context.Background(), testSnapshot(), time.Now())
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
}

func TestMirrorLoadPropagatesSlotErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	slot := mocks.NewMockSlot(ctrl)
	boom := errors.New("connection refused")
	slot.EXPECT().Load(gomock.Any()).Return(nil, boom)

	m := New(slot, zaptest.NewLogger(t))
	_, err := m.Load(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrCorruptMirror)
}
