package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/smallbiznis/splitpay/internal/domain"
	"github.com/smallbiznis/splitpay/internal/migration"
	"github.com/smallbiznis/splitpay/internal/observability/logger"
	"github.com/smallbiznis/splitpay/internal/snapshot"
	"github.com/smallbiznis/splitpay/pkg/telemetry/correlation"
	"go.uber.org/zap"
)

// ImportResult summarises an applied import.
type ImportResult struct {
	ID            string `json:"id"`
	Version       int    `json:"version"`
	Orders        int    `json:"orders"`
	Payments      int    `json:"payments"`
	Platforms     int    `json:"platforms"`
	Subscriptions int    `json:"subscriptions"`
	LimitHistory  int    `json:"limitHistory"`
}

// Dataset is every collection after load-time migration.
type Dataset struct {
	Orders        []domain.Order
	Payments      []domain.Payment
	Platforms     []domain.Platform
	Subscriptions []domain.Subscription
	LimitHistory  []domain.LimitChange
}

// Export returns a current-version snapshot of the whole store.
func (e *Engine) Export(ctx context.Context) (*snapshot.Snapshot, error) {
	if err := e.awaitReady(ctx); err != nil {
		return nil, err
	}
	return e.buildSnapshot(ctx)
}

// Import replaces the whole store with the snapshot encoded in raw. The
// snapshot is validated before storage is touched and a rejected snapshot
// leaves every collection as it was. The backup mirror is retired and
// rewritten only after the new data is committed.
func (e *Engine) Import(ctx context.Context, raw []byte) (*ImportResult, error) {
	if err := e.awaitReady(ctx); err != nil {
		return nil, err
	}
	id := uuid.NewString()
	ctx = correlation.ContextWithCorrelationID(ctx, id)
	log := logger.WithContext(ctx, e.log).With(zap.String("import_id", id))

	snap, err := e.validator.Parse(raw)
	if err != nil {
		e.metrics.RecordImport(ctx, err)
		log.Warn("import rejected", zap.Error(err))
		return nil, err
	}

	if err := e.replaceAll(ctx, snap); err != nil {
		e.metrics.RecordImport(ctx, err)
		return nil, fmt.Errorf("import: %w", err)
	}
	e.bootstrap(ctx, ModeImport)
	e.replaceMirror(ctx, log)
	e.metrics.RecordImport(ctx, nil)

	res := &ImportResult{
		ID:            id,
		Version:       snap.Version,
		Orders:        len(snap.Orders),
		Payments:      len(snap.Payments),
		Platforms:     len(snap.Platforms),
		Subscriptions: len(snap.Subscriptions),
		LimitHistory:  len(snap.LimitHistory),
	}
	log.Info("import applied",
		zap.Int("version", res.Version),
		zap.Int("orders", res.Orders),
		zap.Int("payments", res.Payments),
	)
	return res, nil
}

// replaceMirror discards the pre-import backup and writes a fresh one
// synchronously. Failures are logged only.
func (e *Engine) replaceMirror(ctx context.Context, log *zap.Logger) {
	ctx = context.WithoutCancel(ctx)
	e.mirrorMu.Lock()
	defer e.mirrorMu.Unlock()

	if err := e.mirror.Discard(ctx); err != nil {
		log.Warn("failed to discard previous backup mirror", zap.Error(err))
	}
	snap, err := e.buildSnapshot(ctx)
	if err == nil {
		err = e.mirror.Save(ctx, snap, e.clock.Now())
	}
	e.metrics.RecordMirrorRefresh(ctx, mirrorFailureReason(err), err)
	if err != nil {
		log.Error("failed to write backup mirror after import", zap.Error(err))
	}
}

// Load reads every collection and backfills fields missing from records
// written by older versions. Backfilled records are written back; a failed
// write-back is logged and the backfilled values are still returned.
func (e *Engine) Load(ctx context.Context) (*Dataset, error) {
	if err := e.awaitReady(ctx); err != nil {
		return nil, err
	}
	snap, err := e.buildSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	res := migration.Backfill(e.catalog.Get(), snap.Orders, snap.Platforms)
	if res.PlatformsChanged() {
		if err := e.Platforms.PutAll(ctx, res.ChangedPlatforms); err != nil {
			e.log.Warn("failed to write back migrated platforms", zap.Error(err))
		}
	}
	if res.OrdersChanged() {
		if err := e.Orders.PutAll(ctx, res.ChangedOrders); err != nil {
			e.log.Warn("failed to write back migrated orders", zap.Error(err))
		}
	}

	return &Dataset{
		Orders:        res.Orders,
		Payments:      snap.Payments,
		Platforms:     res.Platforms,
		Subscriptions: snap.Subscriptions,
		LimitHistory:  snap.LimitHistory,
	}, nil
}
