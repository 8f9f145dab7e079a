// Package store is the persistence engine: five keyed collections in the
// primary database, a backup mirror refreshed after every mutation, and the
// open sequence that upgrades, recovers and seeds the store.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/splitpay/internal/clock"
	"github.com/smallbiznis/splitpay/internal/config"
	"github.com/smallbiznis/splitpay/internal/domain"
	"github.com/smallbiznis/splitpay/internal/migration"
	"github.com/smallbiznis/splitpay/internal/mirror"
	"github.com/smallbiznis/splitpay/internal/observability/logger"
	"github.com/smallbiznis/splitpay/internal/observability/metrics"
	"github.com/smallbiznis/splitpay/internal/schedule"
	"github.com/smallbiznis/splitpay/internal/seed"
	"github.com/smallbiznis/splitpay/internal/snapshot"
	"github.com/smallbiznis/splitpay/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// Mode says which open-sequence path the engine is running. Recovery and
// seeding writes never refresh the backup mirror; ModeImport also skips
// cold-start recovery.
type Mode int

const (
	ModeNormal Mode = iota
	// ModeRestore copies the backup mirror into an empty store.
	ModeRestore
	// ModeSeed writes built-in defaults.
	ModeSeed
	// ModeImport applies a validated snapshot and skips cold-start recovery.
	ModeImport
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeRestore:
		return "restore"
	case ModeSeed:
		return "seed"
	case ModeImport:
		return "import"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

const initKey = "initialize"

type Params struct {
	fx.In

	DB         *gorm.DB
	Mirror     *mirror.Mirror
	Seeder     seed.Seeder
	Catalog    *config.CatalogHolder
	Clock      clock.Clock
	Log        *zap.Logger
	Node       *snowflake.Node
	Metrics    *metrics.Metrics     `optional:"true"`
	Calculator *schedule.Calculator `optional:"true"`
}

// Engine is the persistence engine. Construct one per process with New.
type Engine struct {
	db        *gorm.DB
	mirror    *mirror.Mirror
	seeder    seed.Seeder
	catalog   *config.CatalogHolder
	clock     clock.Clock
	log       *zap.Logger
	node      *snowflake.Node
	metrics   *metrics.Metrics
	calc      *schedule.Calculator
	validator *snapshot.Validator

	Orders        *Collection[domain.Order]
	Payments      *Collection[domain.Payment]
	Platforms     *Collection[domain.Platform]
	Subscriptions *Collection[domain.Subscription]
	LimitHistory  *Collection[domain.LimitChange]

	started atomic.Bool
	ready   atomic.Bool
	flight  singleflight.Group

	mirrorMu sync.Mutex
	mirrorJobs inflight
}

func New(p Params) *Engine {
	calc := p.Calculator
	if calc == nil {
		calc = schedule.New(nil)
	}
	e := &Engine{
		db:        p.DB,
		mirror:    p.Mirror,
		seeder:    p.Seeder,
		catalog:   p.Catalog,
		clock:     p.Clock,
		log:       p.Log.Named("store"),
		node:      p.Node,
		metrics:   p.Metrics,
		calc:      calc,
		validator: snapshot.NewValidator(),
	}

	e.Orders = newCollection[domain.Order](e, "orders", "id", func(o *domain.Order) string { return o.ID }, map[string]string{
		"byPlatform": "platform_id",
		"byStatus":   "status",
		"byDate":     "first_payment_date",
	})
	e.Payments = newCollection[domain.Payment](e, "payments", "id", func(p *domain.Payment) string { return p.ID }, map[string]string{
		"byOrder":    "order_id",
		"byPlatform": "platform_id",
		"byStatus":   "status",
		"byDate":     "due_date",
	})
	e.Orders.remove = e.DeleteOrder
	e.Payments.check = e.checkPaymentOrder
	e.Platforms = newCollection[domain.Platform](e, "platforms", "id", func(p *domain.Platform) string { return p.ID }, nil)
	e.Subscriptions = newCollection[domain.Subscription](e, "subscriptions", "platform_id", func(s *domain.Subscription) string { return s.PlatformID }, nil)
	e.LimitHistory = newCollection[domain.LimitChange](e, "limitHistory", "id", func(l *domain.LimitChange) string { return l.ID }, map[string]string{
		"byPlatform": "platform_id",
		"byDate":     "changed_at",
	})
	return e
}

// Initialize upgrades the schema, restores from the backup mirror when the
// store is empty, and seeds defaults. Concurrent callers share one run; a
// failed run can be retried by calling Initialize again.
func (e *Engine) Initialize(ctx context.Context) error {
	if e.ready.Load() {
		return nil
	}
	e.started.Store(true)

	ch := e.flight.DoChan(initKey, func() (any, error) {
		if e.ready.Load() {
			return nil, nil
		}
		err := e.open(context.WithoutCancel(ctx))
		if err == nil {
			e.ready.Store(true)
		}
		return nil, err
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready reports whether Initialize has completed successfully.
func (e *Engine) Ready() bool {
	return e.ready.Load()
}

// awaitReady blocks until an Initialize that is under way finishes. It fails
// fast when Initialize was never called.
func (e *Engine) awaitReady(ctx context.Context) error {
	if e.ready.Load() {
		return nil
	}
	if !e.started.Load() {
		return domain.ErrNotInitialized
	}
	return e.Initialize(ctx)
}

func (e *Engine) open(ctx context.Context) error {
	from, err := migration.Upgrade(ctx, e.db, e.log)
	if err != nil {
		return domain.WrapStorage("upgrade schema", err)
	}
	e.log.Info("store opened", zap.Int("from_version", from), zap.Int("version", migration.TargetVersion))

	e.bootstrap(ctx, ModeNormal)
	return nil
}

// bootstrap runs cold-start recovery and default seeding. Both are best
// effort and only log failures.
func (e *Engine) bootstrap(ctx context.Context, mode Mode) {
	if mode != ModeImport {
		if err := e.recoverFromMirror(ctx); err != nil {
			e.log.Warn("cold-start recovery failed", zap.Error(err))
		}
	}
	if err := e.seedDefaults(ctx); err != nil {
		e.log.Warn("default seeding failed", zap.String("mode", mode.String()), zap.Error(err))
	}
}

func (e *Engine) recoverFromMirror(ctx context.Context) error {
	for _, c := range []interface {
		count(context.Context) (int64, error)
	}{e.Orders, e.Payments, e.Platforms} {
		n, err := c.count(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
	}

	snap, err := e.mirror.Load(ctx)
	if errors.Is(err, mirror.ErrCorruptMirror) {
		e.log.Warn("ignoring unreadable backup mirror", zap.Error(err))
		return nil
	}
	if err != nil {
		return err
	}
	if snap == nil || !snap.HasOrderData() {
		return nil
	}

	err = e.replaceAll(ctx, snap)
	e.metrics.RecordRecovery(ctx, err)
	if err != nil {
		return err
	}
	e.log.Info("restored store from backup mirror",
		zap.String("mode", ModeRestore.String()),
		zap.Int("orders", len(snap.Orders)),
		zap.Int("payments", len(snap.Payments)),
		zap.Time("saved_at", snap.ExportedAt),
	)
	return nil
}

func (e *Engine) seedDefaults(ctx context.Context) error {
	platforms, err := e.Platforms.count(ctx)
	if err != nil {
		return err
	}
	if platforms == 0 {
		defaults := e.seeder.DefaultPlatforms()
		if err := e.Platforms.putAll(ctx, defaults); err != nil {
			return fmt.Errorf("seed platforms: %w", err)
		}
		e.log.Info("seeded default platforms", zap.Int("count", len(defaults)))
	}

	subscriptions, err := e.Subscriptions.count(ctx)
	if err != nil {
		return err
	}
	if subscriptions == 0 {
		defaults := e.seeder.DefaultSubscriptions()
		if err := e.Subscriptions.putAll(ctx, defaults); err != nil {
			return fmt.Errorf("seed subscriptions: %w", err)
		}
		e.log.Info("seeded default subscriptions", zap.Int("count", len(defaults)))
	}
	return nil
}

// replaceAll clears all five collections and inserts snap in one
// transaction.
func (e *Engine) replaceAll(ctx context.Context, snap *snapshot.Snapshot) error {
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := e.Payments.repo.WithTrx(tx).DeleteAll(ctx); err != nil {
			return domain.WrapStorage("clear payments", err)
		}
		if err := e.Orders.repo.WithTrx(tx).DeleteAll(ctx); err != nil {
			return domain.WrapStorage("clear orders", err)
		}
		if err := e.Platforms.repo.WithTrx(tx).DeleteAll(ctx); err != nil {
			return domain.WrapStorage("clear platforms", err)
		}
		if err := e.Subscriptions.repo.WithTrx(tx).DeleteAll(ctx); err != nil {
			return domain.WrapStorage("clear subscriptions", err)
		}
		if err := e.LimitHistory.repo.WithTrx(tx).DeleteAll(ctx); err != nil {
			return domain.WrapStorage("clear limit history", err)
		}

		if err := e.Orders.repo.WithTrx(tx).BatchCreate(ctx, snap.Orders); err != nil {
			return domain.WrapStorage("insert orders", err)
		}
		if err := e.Payments.repo.WithTrx(tx).BatchCreate(ctx, snap.Payments); err != nil {
			return domain.WrapStorage("insert payments", err)
		}
		if err := e.Platforms.repo.WithTrx(tx).BatchCreate(ctx, snap.Platforms); err != nil {
			return domain.WrapStorage("insert platforms", err)
		}
		if err := e.Subscriptions.repo.WithTrx(tx).BatchCreate(ctx, snap.Subscriptions); err != nil {
			return domain.WrapStorage("insert subscriptions", err)
		}
		if err := e.LimitHistory.repo.WithTrx(tx).BatchCreate(ctx, snap.LimitHistory); err != nil {
			return domain.WrapStorage("insert limit history", err)
		}
		return nil
	})
}

// WriteOption adjusts a single mutating call.
type WriteOption func(*writeOptions)

type writeOptions struct {
	skipMirror bool
	mirrorDone *<-chan error
}

// SkipMirror suppresses the backup mirror refresh for this write.
func SkipMirror() WriteOption {
	return func(o *writeOptions) { o.skipMirror = true }
}

// MirrorDone receives the completion signal of the mirror refresh the write
// triggers. The channel yields one value (nil on success) and is closed.
// When no refresh runs the channel is already closed.
func MirrorDone(ch *<-chan error) WriteOption {
	return func(o *writeOptions) { o.mirrorDone = ch }
}

func resolve(opts []WriteOption) writeOptions {
	var o writeOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

var closedDone = func() <-chan error {
	ch := make(chan error)
	close(ch)
	return ch
}()

// committed finishes a successful mutation: it starts the mirror refresh
// when the mode allows one and hands the completion signal to the caller.
func (e *Engine) committed(ctx context.Context, o writeOptions, reason string) {
	done := closedDone
	if !o.skipMirror {
		done = e.refreshMirror(ctx, reason)
	}
	if o.mirrorDone != nil {
		*o.mirrorDone = done
	}
}

// refreshMirror rebuilds the backup mirror in the background. Its failures
// are logged and counted, never returned to the writer.
func (e *Engine) refreshMirror(ctx context.Context, reason string) <-chan error {
	done := make(chan error, 1)
	ctx = context.WithoutCancel(ctx)
	log := logger.WithContext(ctx, e.log)

	e.mirrorJobs.add()
	go func() {
		defer e.mirrorJobs.done()
		defer close(done)

		err := e.saveMirror(ctx)
		e.metrics.RecordMirrorRefresh(ctx, mirrorFailureReason(err), err)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrQuotaExceeded):
			log.Warn("backup mirror quota exceeded", zap.String("reason", reason), zap.Error(err))
		default:
			log.Error("backup mirror refresh failed", zap.String("reason", reason), zap.Error(err))
		}
		done <- err
	}()
	return done
}

func (e *Engine) saveMirror(ctx context.Context) error {
	e.mirrorMu.Lock()
	defer e.mirrorMu.Unlock()

	snap, err := e.buildSnapshot(ctx)
	if err != nil {
		return err
	}
	return e.mirror.Save(ctx, snap, e.clock.Now())
}

func mirrorFailureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrQuotaExceeded):
		return "quota"
	case errors.Is(err, domain.ErrStorageFailure):
		return "read"
	default:
		return "write"
	}
}

// Flush waits for every mirror refresh started so far.
func (e *Engine) Flush(ctx context.Context) error {
	select {
	case <-e.mirrorJobs.wait():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) buildSnapshot(ctx context.Context) (*snapshot.Snapshot, error) {
	orders, err := e.Orders.all(ctx)
	if err != nil {
		return nil, err
	}
	payments, err := e.Payments.all(ctx)
	if err != nil {
		return nil, err
	}
	platforms, err := e.Platforms.all(ctx)
	if err != nil {
		return nil, err
	}
	subscriptions, err := e.Subscriptions.all(ctx)
	if err != nil {
		return nil, err
	}
	limits, err := e.LimitHistory.all(ctx)
	if err != nil {
		return nil, err
	}
	return snapshot.Build(e.clock.Now(), orders, payments, platforms, subscriptions, limits), nil
}

func (e *Engine) nextID() string {
	return e.node.Generate().String()
}

func isMissingTable(err error) bool {
	return db.IsMissingTableErr(err)
}
