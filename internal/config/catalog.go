package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PlatformDefault describes a built-in platform seeded into an empty store.
type PlatformDefault struct {
	ID                  string `mapstructure:"id"`
	Name                string `mapstructure:"name"`
	Color               string `mapstructure:"color"`
	CreditLimit         int64  `mapstructure:"creditLimit"`
	DefaultInstallments int    `mapstructure:"defaultInstallments"`
	DefaultIntervalDays int    `mapstructure:"defaultIntervalDays"`
}

// SubscriptionDefault describes a built-in subscription record.
type SubscriptionDefault struct {
	PlatformID  string `mapstructure:"platformId"`
	Name        string `mapstructure:"name"`
	MonthlyCost int64  `mapstructure:"monthlyCost"`
	BillingDay  int    `mapstructure:"billingDay"`
}

// TierEntry is the classification backfilled onto platforms and their orders
// when a record predates the tier/category fields.
type TierEntry struct {
	Tier     string `mapstructure:"tier"`
	Category string `mapstructure:"category"`
}

// Catalog is the built-in reference data: default platforms, default
// subscriptions and the tier table keyed by platform id.
type Catalog struct {
	Platforms     []PlatformDefault     `mapstructure:"platforms"`
	Subscriptions []SubscriptionDefault `mapstructure:"subscriptions"`
	Tiers         map[string]TierEntry  `mapstructure:"tiers"`
}

// Tier looks up the tier entry for a platform id.
func (c Catalog) Tier(platformID string) (TierEntry, bool) {
	entry, ok := c.Tiers[strings.ToLower(strings.TrimSpace(platformID))]
	return entry, ok
}

func DefaultCatalog() Catalog {
	return Catalog{
		Platforms: []PlatformDefault{
			{ID: "afterpay", Name: "Afterpay", Color: "#b2fce4", CreditLimit: 150000, DefaultInstallments: 4, DefaultIntervalDays: 14},
			{ID: "klarna", Name: "Klarna", Color: "#ffb3c7", CreditLimit: 100000, DefaultInstallments: 4, DefaultIntervalDays: 14},
			{ID: "affirm", Name: "Affirm", Color: "#4a4af4", CreditLimit: 250000, DefaultInstallments: 4, DefaultIntervalDays: 14},
			{ID: "zip", Name: "Zip", Color: "#aa8fff", CreditLimit: 100000, DefaultInstallments: 4, DefaultIntervalDays: 14},
			{ID: "sezzle", Name: "Sezzle", Color: "#8333d4", CreditLimit: 50000, DefaultInstallments: 4, DefaultIntervalDays: 14},
			{ID: "paypal", Name: "PayPal Pay in 4", Color: "#003087", CreditLimit: 150000, DefaultInstallments: 4, DefaultIntervalDays: 14},
		},
		Subscriptions: []SubscriptionDefault{
			{PlatformID: "klarna", Name: "Klarna Plus", MonthlyCost: 799, BillingDay: 1},
			{PlatformID: "zip", Name: "Zip Plus", MonthlyCost: 499, BillingDay: 1},
			{PlatformID: "sezzle", Name: "Sezzle Anywhere", MonthlyCost: 599, BillingDay: 1},
		},
		Tiers: map[string]TierEntry{
			"afterpay": {Tier: "major", Category: "pay-in-4"},
			"klarna":   {Tier: "major", Category: "pay-in-4"},
			"affirm":   {Tier: "major", Category: "financing"},
			"paypal":   {Tier: "major", Category: "pay-in-4"},
			"zip":      {Tier: "standard", Category: "pay-in-4"},
			"sezzle":   {Tier: "standard", Category: "pay-in-4"},
		},
	}
}

// CatalogHolder serves the current catalog and swaps it atomically when the
// backing file changes.
type CatalogHolder struct {
	current atomic.Value // holds Catalog
}

// NewStaticCatalog returns a holder that always serves c.
func NewStaticCatalog(c Catalog) *CatalogHolder {
	holder := &CatalogHolder{}
	holder.current.Store(c)
	return holder
}

// NewCatalogHolder loads catalog.yml from cfg.CatalogPath or the default
// search paths and watches it for changes. Without a file the compiled
// defaults are served.
func NewCatalogHolder(cfg Config, log *zap.Logger) (*CatalogHolder, error) {
	log = log.Named("config.catalog")

	v := viper.New()
	if cfg.CatalogPath != "" {
		v.SetConfigFile(cfg.CatalogPath)
	} else {
		v.SetConfigName("catalog")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/splitpay")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read catalog: %w", err)
		}
		log.Info("catalog file not found, using built-in defaults")
		return NewStaticCatalog(DefaultCatalog()), nil
	}

	catalog, err := decodeCatalog(v)
	if err != nil {
		return nil, err
	}
	holder := NewStaticCatalog(catalog)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeCatalog(v)
		if err != nil {
			log.Warn("invalid catalog ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("catalog reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// Get returns the current catalog.
func (h *CatalogHolder) Get() Catalog {
	return h.current.Load().(Catalog)
}

func decodeCatalog(v *viper.Viper) (Catalog, error) {
	var c Catalog
	if err := v.UnmarshalKey("catalog", &c); err != nil {
		return Catalog{}, fmt.Errorf("decode catalog: %w", err)
	}
	normalized := make(map[string]TierEntry, len(c.Tiers))
	for id, entry := range c.Tiers {
		normalized[strings.ToLower(strings.TrimSpace(id))] = entry
	}
	c.Tiers = normalized
	if err := validateCatalog(c); err != nil {
		return Catalog{}, err
	}
	return c, nil
}

func validateCatalog(c Catalog) error {
	if len(c.Platforms) == 0 {
		return errors.New("catalog.platforms cannot be empty")
	}
	seen := make(map[string]struct{}, len(c.Platforms))
	for _, p := range c.Platforms {
		if strings.TrimSpace(p.ID) == "" {
			return errors.New("catalog platform id is required")
		}
		if _, ok := seen[p.ID]; ok {
			return fmt.Errorf("duplicate catalog platform %q", p.ID)
		}
		seen[p.ID] = struct{}{}
		if p.DefaultInstallments < 1 || p.DefaultIntervalDays < 1 {
			return fmt.Errorf("catalog platform %q has invalid schedule defaults", p.ID)
		}
	}
	for _, s := range c.Subscriptions {
		if strings.TrimSpace(s.PlatformID) == "" {
			return errors.New("catalog subscription platformId is required")
		}
		if s.BillingDay < 1 || s.BillingDay > 31 {
			return fmt.Errorf("catalog subscription %q has invalid billing day", s.PlatformID)
		}
	}
	return nil
}
