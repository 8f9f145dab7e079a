package store

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/splitpay/internal/domain"
	"github.com/smallbiznis/splitpay/pkg/repository"
	"gorm.io/gorm"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Collection is one keyed entity collection of the primary store. Reads wait
// for an Initialize in progress; writes refresh the backup mirror unless told
// otherwise.
type Collection[T any] struct {
	e       *Engine
	name    string
	repo    repository.Repository[T]
	key     func(*T) string
	indexes map[string]string

	// check runs inside the write transaction before an upsert.
	check func(ctx context.Context, tx *gorm.DB, item *T) error
	// remove replaces the plain row delete when removing a record must
	// cascade to dependent collections.
	remove func(ctx context.Context, key string, opts ...WriteOption) error
}

func newCollection[T any](e *Engine, name, keyColumn string, key func(*T) string, indexes map[string]string) *Collection[T] {
	return &Collection[T]{
		e:       e,
		name:    name,
		repo:    repository.ProvideStore[T](e.db, keyColumn),
		key:     key,
		indexes: indexes,
	}
}

// Name returns the collection name used in snapshots.
func (c *Collection[T]) Name() string { return c.name }

// Key returns the primary key of item.
func (c *Collection[T]) Key(item *T) string { return c.key(item) }

func (c *Collection[T]) GetAll(ctx context.Context) ([]T, error) {
	if err := c.e.awaitReady(ctx); err != nil {
		return nil, err
	}
	return c.all(ctx)
}

// Get returns nil without error when key is absent.
func (c *Collection[T]) Get(ctx context.Context, key string) (*T, error) {
	if err := c.e.awaitReady(ctx); err != nil {
		return nil, err
	}
	item, err := c.repo.FindByKey(ctx, key)
	if err != nil {
		if isMissingTable(err) {
			return nil, nil
		}
		return nil, domain.WrapStorage("get "+c.name, err)
	}
	return item, nil
}

// GetByIndex returns every entity whose indexed field equals value.
func (c *Collection[T]) GetByIndex(ctx context.Context, index string, value any) ([]T, error) {
	column, ok := c.indexes[index]
	if !ok {
		return nil, fmt.Errorf("%s.%s: %w", c.name, index, domain.ErrUnknownIndex)
	}
	if err := c.e.awaitReady(ctx); err != nil {
		return nil, err
	}
	items, err := c.repo.FindBy(ctx, column, value)
	if err != nil {
		if isMissingTable(err) {
			return []T{}, nil
		}
		return nil, domain.WrapStorage("query "+c.name, err)
	}
	return items, nil
}

// Put upserts item by primary key.
func (c *Collection[T]) Put(ctx context.Context, item T, opts ...WriteOption) error {
	return c.PutAll(ctx, []T{item}, opts...)
}

// PutAll upserts items in one transaction and refreshes the mirror once.
func (c *Collection[T]) PutAll(ctx context.Context, items []T, opts ...WriteOption) error {
	if err := c.e.awaitReady(ctx); err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		if err := validate.Struct(&items[i]); err != nil {
			return domain.NewValidationError("%s %q: %v", c.name, c.key(&items[i]), err)
		}
	}

	err := c.putAll(ctx, items)
	c.e.metrics.RecordWrite(ctx, c.name, "put", err)
	if err != nil {
		return err
	}
	c.e.committed(ctx, resolve(opts), "put "+c.name)
	return nil
}

func (c *Collection[T]) putAll(ctx context.Context, items []T) error {
	return c.e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return c.putTx(ctx, tx, items...)
	})
}

func (c *Collection[T]) putTx(ctx context.Context, tx *gorm.DB, items ...T) error {
	repo := c.repo.WithTrx(tx)
	for i := range items {
		if c.check != nil {
			if err := c.check(ctx, tx, &items[i]); err != nil {
				return err
			}
		}
		if err := repo.Upsert(ctx, &items[i]); err != nil {
			return domain.WrapStorage("put "+c.name, err)
		}
	}
	return nil
}

// Delete removes the entity with key. A missing key is ErrNotFound.
func (c *Collection[T]) Delete(ctx context.Context, key string, opts ...WriteOption) error {
	if c.remove != nil {
		return c.remove(ctx, key, opts...)
	}
	if err := c.e.awaitReady(ctx); err != nil {
		return err
	}
	err := c.delete(ctx, c.e.db, key)
	c.e.metrics.RecordWrite(ctx, c.name, "delete", err)
	if err != nil {
		return err
	}
	c.e.committed(ctx, resolve(opts), "delete "+c.name)
	return nil
}

func (c *Collection[T]) delete(ctx context.Context, tx *gorm.DB, key string) error {
	n, err := c.repo.WithTrx(tx).Delete(ctx, key)
	if err != nil {
		return domain.WrapStorage("delete "+c.name, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %q: %w", c.name, key, domain.ErrNotFound)
	}
	return nil
}

func (c *Collection[T]) Count(ctx context.Context) (int64, error) {
	if err := c.e.awaitReady(ctx); err != nil {
		return 0, err
	}
	return c.count(ctx)
}

func (c *Collection[T]) all(ctx context.Context) ([]T, error) {
	items, err := c.repo.FindAll(ctx)
	if err != nil {
		if isMissingTable(err) {
			return []T{}, nil
		}
		return nil, domain.WrapStorage("list "+c.name, err)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

func (c *Collection[T]) count(ctx context.Context) (int64, error) {
	n, err := c.repo.Count(ctx)
	if err != nil {
		if isMissingTable(err) {
			return 0, nil
		}
		return 0, domain.WrapStorage("count "+c.name, err)
	}
	return n, nil
}

func (e *Engine) checkPaymentOrder(ctx context.Context, tx *gorm.DB, p *domain.Payment) error {
	order, err := e.Orders.repo.WithTrx(tx).FindByKey(ctx, p.OrderID)
	if err != nil {
		return domain.WrapStorage("get orders", err)
	}
	if order == nil {
		return fmt.Errorf("payment %q references order %q: %w", p.ID, p.OrderID, domain.ErrOrderNotFound)
	}
	return nil
}
