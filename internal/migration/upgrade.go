// Package migration upgrades the primary store schema and backfills fields
// that older records lack.
package migration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/splitpay/internal/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TargetVersion is the schema version this build expects.
const TargetVersion = 3

// SchemaVersion records one applied upgrade step.
type SchemaVersion struct {
	Version   int       `gorm:"primaryKey;autoIncrement:false"`
	AppliedAt time.Time `gorm:"not null"`
}

func (SchemaVersion) TableName() string { return "schema_versions" }

type step struct {
	version     int
	description string
	apply       func(m gorm.Migrator) error
}

// Steps only ever add tables, columns and indexes.
var steps = []step{
	{
		version:     1,
		description: "orders, payments, platforms, subscriptions",
		apply: func(m gorm.Migrator) error {
			return ensureTables(m, &domain.Order{}, &domain.Payment{}, &domain.Platform{}, &domain.Subscription{})
		},
	},
	{
		version:     2,
		description: "limit history",
		apply: func(m gorm.Migrator) error {
			return ensureTables(m, &domain.LimitChange{})
		},
	},
	{
		version:     3,
		description: "order category, inconsistency flag, platform tier and category",
		apply: func(m gorm.Migrator) error {
			if err := ensureColumns(m, &domain.Order{}, "Category", "Inconsistent"); err != nil {
				return err
			}
			return ensureColumns(m, &domain.Platform{}, "Tier", "Category")
		},
	},
}

// CurrentVersion returns the highest applied schema version, or 0 for a new
// database.
func CurrentVersion(ctx context.Context, db *gorm.DB) (int, error) {
	if !db.Migrator().HasTable(&SchemaVersion{}) {
		return 0, nil
	}
	var version *int
	if err := db.WithContext(ctx).Model(&SchemaVersion{}).Select("MAX(version)").Scan(&version).Error; err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	if version == nil {
		return 0, nil
	}
	return *version, nil
}

// Upgrade applies every step above the stored version up to TargetVersion
// and returns the version it started from. A database newer than this build
// is left untouched.
func Upgrade(ctx context.Context, db *gorm.DB, log *zap.Logger) (int, error) {
	return UpgradeTo(ctx, db, log, TargetVersion)
}

// UpgradeTo is Upgrade with an explicit target version.
func UpgradeTo(ctx context.Context, db *gorm.DB, log *zap.Logger, target int) (int, error) {
	if db == nil {
		return 0, errors.New("migration database handle is required")
	}
	if err := db.WithContext(ctx).Migrator().AutoMigrate(&SchemaVersion{}); err != nil {
		return 0, fmt.Errorf("create schema_versions: %w", err)
	}

	current, err := CurrentVersion(ctx, db)
	if err != nil {
		return 0, err
	}
	if current > target {
		log.Warn("database schema is newer than this build",
			zap.Int("current", current),
			zap.Int("target", target),
		)
		return current, nil
	}

	for _, s := range steps {
		if s.version <= current || s.version > target {
			continue
		}
		if err := s.apply(db.WithContext(ctx).Migrator()); err != nil {
			return current, fmt.Errorf("apply schema step %d (%s): %w", s.version, s.description, err)
		}
		if err := db.WithContext(ctx).Create(&SchemaVersion{Version: s.version, AppliedAt: time.Now().UTC()}).Error; err != nil {
			return current, fmt.Errorf("record schema step %d: %w", s.version, err)
		}
		log.Info("schema step applied", zap.Int("version", s.version), zap.String("description", s.description))
	}

	return current, nil
}

func ensureTables(m gorm.Migrator, models ...any) error {
	for _, model := range models {
		if !m.HasTable(model) {
			if err := m.CreateTable(model); err != nil {
				return err
			}
			continue
		}
		if err := ensureIndexes(m, model); err != nil {
			return err
		}
	}
	return nil
}

func ensureColumns(m gorm.Migrator, model any, fields ...string) error {
	for _, field := range fields {
		if m.HasColumn(model, field) {
			continue
		}
		if err := m.AddColumn(model, field); err != nil {
			return fmt.Errorf("add column %s: %w", field, err)
		}
	}
	return nil
}

func ensureIndexes(m gorm.Migrator, model any) error {
	for _, name := range indexNames(model) {
		if m.HasIndex(model, name) {
			continue
		}
		if err := m.CreateIndex(model, name); err != nil {
			return fmt.Errorf("create index %s: %w", name, err)
		}
	}
	return nil
}

func indexNames(model any) []string {
	switch model.(type) {
	case *domain.Order:
		return []string{"idx_orders_platform_id", "idx_orders_status", "idx_orders_first_payment_date"}
	case *domain.Payment:
		return []string{"idx_payments_order_id", "idx_payments_platform_id", "idx_payments_status", "idx_payments_due_date"}
	case *domain.LimitChange:
		return []string{"idx_limit_changes_platform_id", "idx_limit_changes_changed_at"}
	default:
		return nil
	}
}
