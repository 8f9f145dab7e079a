// Package mirror keeps a secondary full-dataset copy of the primary store in
// a simple key-value slot. The copy is only read during cold-start recovery.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/splitpay/internal/domain"
	"github.com/smallbiznis/splitpay/internal/snapshot"
	"go.uber.org/zap"
)

//go:generate mockgen -source=mirror.go -destination=./mocks/mock_slot.go -package=mocks

var (
	// ErrSlotEmpty is returned by a Slot that holds no blob.
	ErrSlotEmpty = errors.New("mirror_slot_empty")
	// ErrCorruptMirror marks a blob that failed envelope, checksum or
	// snapshot validation.
	ErrCorruptMirror = errors.New("mirror_corrupt")
)

// Slot is a single-key blob store.
type Slot interface {
	Load(ctx context.Context) ([]byte, error)
	Store(ctx context.Context, data []byte) error
	Discard(ctx context.Context) error
	Close() error
}

// Mirror encodes snapshots into envelopes and keeps them in a Slot.
type Mirror struct {
	slot      Slot
	validator *snapshot.Validator
	log       *zap.Logger
}

func New(slot Slot, log *zap.Logger) *Mirror {
	return &Mirror{
		slot:      slot,
		validator: snapshot.NewValidator(),
		log:       log.Named("mirror"),
	}
}

// Save replaces the stored blob with snap. Out-of-space failures are
// reported as domain.ErrQuotaExceeded.
func (m *Mirror) Save(ctx context.Context, snap *snapshot.Snapshot, savedAt time.Time) error {
	blob, err := Encode(snap, savedAt)
	if err != nil {
		return err
	}
	if err := m.slot.Store(ctx, blob); err != nil {
		return classify(err)
	}
	m.log.Debug("mirror saved",
		zap.Int("bytes", len(blob)),
		zap.Int("orders", len(snap.Orders)),
		zap.Int("payments", len(snap.Payments)),
	)
	return nil
}

// Load returns the stored snapshot, or nil when the slot is empty. A blob
// that fails validation yields ErrCorruptMirror.
func (m *Mirror) Load(ctx context.Context) (*snapshot.Snapshot, error) {
	blob, err := m.slot.Load(ctx)
	if errors.Is(err, ErrSlotEmpty) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load mirror: %w", err)
	}
	return Decode(blob, m.validator)
}

// Discard removes the stored blob.
func (m *Mirror) Discard(ctx context.Context) error {
	if err := m.slot.Discard(ctx); err != nil {
		return fmt.Errorf("discard mirror: %w", err)
	}
	return nil
}

func classify(err error) error {
	if isQuotaErr(err) {
		return fmt.Errorf("%w: %v", domain.ErrQuotaExceeded, err)
	}
	return fmt.Errorf("store mirror: %w", err)
}
