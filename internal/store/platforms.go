package store

import (
	"context"
	"fmt"

	"github.com/gosimple/slug"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/splitpay/internal/domain"
	"gorm.io/gorm"
)

const (
	defaultInstallments = 4
	defaultIntervalDays = 14
)

// AddPlatform creates a custom platform. An empty id is derived from the
// display name. Missing schedule defaults become 4 installments every 14
// days.
func (e *Engine) AddPlatform(ctx context.Context, p domain.Platform, opts ...WriteOption) (*domain.Platform, error) {
	if err := e.awaitReady(ctx); err != nil {
		return nil, err
	}
	if p.ID == "" {
		p.ID = slug.Make(p.Name)
	}
	if p.ID == "" || p.Name == "" {
		return nil, fmt.Errorf("platform needs a name: %w", domain.ErrInvalidPlatform)
	}
	if p.DefaultInstallments < 1 {
		p.DefaultInstallments = defaultInstallments
	}
	if p.DefaultIntervalDays < 1 {
		p.DefaultIntervalDays = defaultIntervalDays
	}
	if err := validate.Struct(&p); err != nil {
		return nil, domain.NewValidationError("platform %q: %v", p.ID, err)
	}

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := e.Platforms.repo.WithTrx(tx).FindByKey(ctx, p.ID)
		if err != nil {
			return domain.WrapStorage("get platforms", err)
		}
		if existing != nil {
			return fmt.Errorf("platform %q: %w", p.ID, domain.ErrConflict)
		}
		if err := e.Platforms.repo.WithTrx(tx).Create(ctx, &p); err != nil {
			return domain.WrapStorage("add platform", err)
		}
		return nil
	})
	e.metrics.RecordWrite(ctx, e.Platforms.name, "add", err)
	if err != nil {
		return nil, err
	}
	e.committed(ctx, resolve(opts), "add platform")
	return &p, nil
}

// RecordLimitChange sets the credit limit of platformID and appends the
// change to the limit history.
func (e *Engine) RecordLimitChange(ctx context.Context, platformID string, newLimit int64, opts ...WriteOption) (*domain.LimitChange, error) {
	if err := e.awaitReady(ctx); err != nil {
		return nil, err
	}
	if newLimit < 0 {
		return nil, domain.ErrInvalidAmount
	}

	var change domain.LimitChange
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		platform, err := e.Platforms.repo.WithTrx(tx).FindByKey(ctx, platformID)
		if err != nil {
			return domain.WrapStorage("get platforms", err)
		}
		if platform == nil {
			return fmt.Errorf("%q: %w", platformID, domain.ErrPlatformNotFound)
		}

		change = domain.LimitChange{
			ID:             ulid.Make().String(),
			PlatformID:     platform.ID,
			PreviousLimit:  platform.CreditLimit,
			NewLimit:       newLimit,
			ChangedAt:      e.clock.Now(),
			StreakAtChange: platform.CurrentStreak,
		}
		if err := e.LimitHistory.repo.WithTrx(tx).Create(ctx, &change); err != nil {
			return domain.WrapStorage("append limit history", err)
		}

		platform.CreditLimit = newLimit
		return e.Platforms.putTx(ctx, tx, *platform)
	})
	e.metrics.RecordWrite(ctx, e.LimitHistory.name, "append", err)
	if err != nil {
		return nil, err
	}
	e.committed(ctx, resolve(opts), "record limit change")
	return &change, nil
}
