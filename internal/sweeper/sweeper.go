package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/splitpay/internal/clock"
	"github.com/smallbiznis/splitpay/internal/domain"
	"github.com/smallbiznis/splitpay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/splitpay/internal/observability/metrics"
	"github.com/smallbiznis/splitpay/internal/store"
	"github.com/smallbiznis/splitpay/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	TriggerStartup = "startup"
	TriggerTimer   = "timer"
	TriggerManual  = "manual"
	TriggerUnmark  = "unmark"
)

var ErrInvalidConfig = errors.New("invalid_sweeper_config")

// PaymentStore is the part of the payments collection the sweeper needs.
type PaymentStore interface {
	GetAll(ctx context.Context) ([]domain.Payment, error)
	PutAll(ctx context.Context, items []domain.Payment, opts ...store.WriteOption) error
}

type Params struct {
	fx.In

	Payments PaymentStore
	Clock    clock.Clock
	Log      *zap.Logger
	Metrics  *obsmetrics.SweeperMetrics `optional:"true"`
	Config   Config                     `optional:"true"`
	Locker   Locker                     `optional:"true"`
}

// Service runs the overdue sweep against the store.
type Service struct {
	payments PaymentStore
	clock    clock.Clock
	log      *zap.Logger
	metrics  *obsmetrics.SweeperMetrics
	cfg      Config
	locker   Locker
}

func New(p Params) (*Service, error) {
	if p.Payments == nil || p.Clock == nil || p.Log == nil {
		return nil, ErrInvalidConfig
	}
	m := p.Metrics
	if m == nil {
		m = obsmetrics.Sweeper()
	}
	return &Service{
		payments: p.Payments,
		clock:    p.Clock,
		log:      p.Log.Named("sweeper"),
		metrics:  m,
		cfg:      p.Config.withDefaults(),
		locker:   p.Locker,
	}, nil
}

// RunOnce sweeps every payment and writes back the ones that became overdue.
// It returns the number of promoted payments.
func (s *Service) RunOnce(ctx context.Context, trigger string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()
	ctx, _ = correlation.EnsureCorrelationID(ctx)
	log := logger.WithContext(ctx, s.log)

	start := s.clock.Now()
	promoted, err := s.sweep(ctx)
	finished := s.clock.Now()
	s.metrics.ObserveRun(trigger, finished.Sub(start), promoted, finished, err)

	if err != nil {
		log.Warn("overdue sweep failed", zap.String("trigger", trigger), zap.Error(err))
		return 0, err
	}
	if promoted > 0 {
		log.Info("overdue sweep promoted payments", zap.String("trigger", trigger), zap.Int("promoted", promoted))
	} else {
		log.Debug("overdue sweep found nothing", zap.String("trigger", trigger))
	}
	return promoted, nil
}

func (s *Service) sweep(ctx context.Context) (int, error) {
	if s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, s.cfg.LockKey, s.cfg.RunTimeout)
		if err != nil {
			return 0, fmt.Errorf("acquire sweep lock: %w", err)
		}
		if !ok {
			s.log.Debug("another process holds the sweep lock")
			return 0, nil
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), s.cfg.LockKey, token); err != nil {
				s.log.Warn("release sweep lock failed", zap.Error(err))
			}
		}()
	}

	payments, err := s.payments.GetAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load payments: %w", err)
	}
	changed := Sweep(s.clock.Now(), payments)
	if len(changed) == 0 {
		return 0, nil
	}
	if err := s.payments.PutAll(ctx, changed); err != nil {
		return 0, fmt.Errorf("write overdue payments: %w", err)
	}
	return len(changed), nil
}

// RunForever sweeps once immediately and then on every tick until ctx is
// done.
func (s *Service) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	trigger := TriggerStartup
	for {
		if _, err := s.RunOnce(ctx, trigger); err != nil && ctx.Err() != nil {
			return
		}
		trigger = TriggerTimer

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
