// Package repository provides a generic GORM-backed collection store keyed by
// a single primary key column.
package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is a keyed collection of T.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	FindAll(ctx context.Context) ([]T, error)
	FindByKey(ctx context.Context, key string) (*T, error)
	FindBy(ctx context.Context, column string, value any) ([]T, error)
	Create(ctx context.Context, resource *T) error
	Upsert(ctx context.Context, resource *T) error
	BatchCreate(ctx context.Context, resources []T) error
	Delete(ctx context.Context, key string) (int64, error)
	DeleteAll(ctx context.Context) error
	Count(ctx context.Context) (int64, error)
}

type store[T any] struct {
	db  *gorm.DB
	key string
}

// ProvideStore returns a Repository whose primary key column is key.
func ProvideStore[T any](db *gorm.DB, key string) Repository[T] {
	return &store[T]{db: db, key: key}
}

func (r *store[T]) WithTrx(tx *gorm.DB) Repository[T] {
	return &store[T]{db: tx, key: r.key}
}

func (r *store[T]) FindAll(ctx context.Context) ([]T, error) {
	var result []T
	err := r.db.WithContext(ctx).Order(r.key).Find(&result).Error
	return result, err
}

// FindByKey returns nil without error when no row has the key.
func (r *store[T]) FindByKey(ctx context.Context, key string) (*T, error) {
	var result T
	err := r.db.WithContext(ctx).Where(clause.Eq{Column: clause.Column{Name: r.key}, Value: key}).First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (r *store[T]) FindBy(ctx context.Context, column string, value any) ([]T, error) {
	var result []T
	err := r.db.WithContext(ctx).
		Where(clause.Eq{Column: clause.Column{Name: column}, Value: value}).
		Order(r.key).
		Find(&result).Error
	return result, err
}

func (r *store[T]) Create(ctx context.Context, resource *T) error {
	return r.db.WithContext(ctx).Create(resource).Error
}

func (r *store[T]) Upsert(ctx context.Context, resource *T) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: r.key}}, UpdateAll: true}).
		Create(resource).Error
}

func (r *store[T]) BatchCreate(ctx context.Context, resources []T) error {
	if len(resources) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(resources, 200).Error
}

// Delete returns the number of rows removed.
func (r *store[T]) Delete(ctx context.Context, key string) (int64, error) {
	var dummy T
	res := r.db.WithContext(ctx).Where(clause.Eq{Column: clause.Column{Name: r.key}, Value: key}).Delete(&dummy)
	return res.RowsAffected, res.Error
}

func (r *store[T]) DeleteAll(ctx context.Context) error {
	var dummy T
	return r.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&dummy).Error
}

func (r *store[T]) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(new(T)).Count(&count).Error
	return count, err
}
