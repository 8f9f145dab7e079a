package migration

import (
	"github.com/smallbiznis/splitpay/internal/config"
	"github.com/smallbiznis/splitpay/internal/domain"
)

const (
	fallbackInstallments = 4
	fallbackIntervalDays = 14
)

// Backfilled is the outcome of Backfill. Orders and Platforms hold every
// record; the Changed slices hold only the records that were modified.
type Backfilled struct {
	Orders           []domain.Order
	Platforms        []domain.Platform
	ChangedOrders    []domain.Order
	ChangedPlatforms []domain.Platform
}

func (b Backfilled) OrdersChanged() bool    { return len(b.ChangedOrders) > 0 }
func (b Backfilled) PlatformsChanged() bool { return len(b.ChangedPlatforms) > 0 }

// Backfill fills fields that records written by an older schema lack:
// platform tier, category and schedule defaults, and order category and
// status. Values come from the catalog tier table keyed by platform id.
// Inputs are not mutated and a second pass over the output changes nothing.
func Backfill(catalog config.Catalog, orders []domain.Order, platforms []domain.Platform) Backfilled {
	defaults := make(map[string]config.PlatformDefault, len(catalog.Platforms))
	for _, p := range catalog.Platforms {
		defaults[p.ID] = p
	}

	out := Backfilled{
		Orders:    make([]domain.Order, len(orders)),
		Platforms: make([]domain.Platform, len(platforms)),
	}

	for i, p := range platforms {
		changed := false
		if entry, ok := catalog.Tier(p.ID); ok {
			if p.Tier == "" && entry.Tier != "" {
				p.Tier = entry.Tier
				changed = true
			}
			if p.Category == "" && entry.Category != "" {
				p.Category = entry.Category
				changed = true
			}
		}
		if p.DefaultInstallments < 1 {
			p.DefaultInstallments = fallbackInstallments
			if d, ok := defaults[p.ID]; ok {
				p.DefaultInstallments = d.DefaultInstallments
			}
			changed = true
		}
		if p.DefaultIntervalDays < 1 {
			p.DefaultIntervalDays = fallbackIntervalDays
			if d, ok := defaults[p.ID]; ok {
				p.DefaultIntervalDays = d.DefaultIntervalDays
			}
			changed = true
		}
		out.Platforms[i] = p
		if changed {
			out.ChangedPlatforms = append(out.ChangedPlatforms, p)
		}
	}

	for i, o := range orders {
		changed := false
		if o.Category == "" {
			if entry, ok := catalog.Tier(o.PlatformID); ok && entry.Category != "" {
				o.Category = entry.Category
				changed = true
			}
		}
		if o.Status == "" {
			o.Status = domain.OrderStatusActive
			changed = true
		}
		out.Orders[i] = o
		if changed {
			out.ChangedOrders = append(out.ChangedOrders, o)
		}
	}

	return out
}
