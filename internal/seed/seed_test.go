package seed

import (
	"testing"

	"github.com/smallbiznis/splitpay/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogSeederFollowsCatalog(t *testing.T) {
	seeder := NewCatalogSeeder(config.NewStaticCatalog(config.DefaultCatalog()))

	platforms := seeder.DefaultPlatforms()
	require.NotEmpty(t, platforms)
	for _, p := range platforms {
		assert.NotEmpty(t, p.Tier, p.ID)
		assert.Positive(t, p.DefaultInstallments, p.ID)
	}

	subs := seeder.DefaultSubscriptions()
	require.NotEmpty(t, subs)
	assert.False(t, subs[0].Active)
}

func TestCatalogSeederUsesCustomCatalog(t *testing.T) {
	seeder := NewCatalogSeeder(config.NewStaticCatalog(config.Catalog{
		Platforms: []config.PlatformDefault{{ID: "shop", Name: "Shop", DefaultInstallments: 3, DefaultIntervalDays: 30}},
	}))

	platforms := seeder.DefaultPlatforms()
	require.Len(t, platforms, 1)
	assert.Empty(t, platforms[0].Tier)
	assert.Empty(t, seeder.DefaultSubscriptions())
}
