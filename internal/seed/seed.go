// Package seed produces the built-in platforms and subscriptions written into
// an empty store.
package seed

import (
	"github.com/smallbiznis/splitpay/internal/config"
	"github.com/smallbiznis/splitpay/internal/domain"
)

// Seeder supplies default records.
type Seeder interface {
	DefaultPlatforms() []domain.Platform
	DefaultSubscriptions() []domain.Subscription
}

// CatalogSeeder reads defaults from the current catalog on every call, so a
// reloaded catalog.yml is picked up by the next seeding pass.
type CatalogSeeder struct {
	catalog *config.CatalogHolder
}

func NewCatalogSeeder(catalog *config.CatalogHolder) *CatalogSeeder {
	return &CatalogSeeder{catalog: catalog}
}

func (s *CatalogSeeder) DefaultPlatforms() []domain.Platform {
	c := s.catalog.Get()
	out := make([]domain.Platform, 0, len(c.Platforms))
	for _, p := range c.Platforms {
		platform := domain.Platform{
			ID:                  p.ID,
			Name:                p.Name,
			Color:               p.Color,
			CreditLimit:         p.CreditLimit,
			DefaultInstallments: p.DefaultInstallments,
			DefaultIntervalDays: p.DefaultIntervalDays,
		}
		if entry, ok := c.Tier(p.ID); ok {
			platform.Tier = entry.Tier
			platform.Category = entry.Category
		}
		out = append(out, platform)
	}
	return out
}

func (s *CatalogSeeder) DefaultSubscriptions() []domain.Subscription {
	c := s.catalog.Get()
	out := make([]domain.Subscription, 0, len(c.Subscriptions))
	for _, sub := range c.Subscriptions {
		out = append(out, domain.Subscription{
			PlatformID:  sub.PlatformID,
			Name:        sub.Name,
			MonthlyCost: sub.MonthlyCost,
			BillingDay:  sub.BillingDay,
		})
	}
	return out
}
