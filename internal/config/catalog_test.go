package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewCatalogHolderReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yml")
	content := `
catalog:
  platforms:
    - id: afterpay
      name: Afterpay
      creditLimit: 90000
      defaultInstallments: 4
      defaultIntervalDays: 14
  subscriptions:
    - platformId: afterpay
      name: Afterpay Plus
      monthlyCost: 500
      billingDay: 15
  tiers:
    Afterpay:
      tier: major
      category: pay-in-4
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	holder, err := NewCatalogHolder(Config{CatalogPath: path}, zaptest.NewLogger(t))
	require.NoError(t, err)

	catalog := holder.Get()
	require.Len(t, catalog.Platforms, 1)
	assert.Equal(t, int64(90000), catalog.Platforms[0].CreditLimit)
	assert.Equal(t, 15, catalog.Subscriptions[0].BillingDay)

	entry, ok := catalog.Tier("AFTERPAY")
	require.True(t, ok)
	assert.Equal(t, "pay-in-4", entry.Category)
}

func TestNewCatalogHolderRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yml")
	content := `
catalog:
  platforms:
    - id: zip
      defaultInstallments: 0
      defaultIntervalDays: 14
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := NewCatalogHolder(Config{CatalogPath: path}, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestDefaultCatalogIsValid(t *testing.T) {
	catalog := DefaultCatalog()
	require.NoError(t, validateCatalog(catalog))

	for _, p := range catalog.Platforms {
		_, ok := catalog.Tier(p.ID)
		assert.True(t, ok, "missing tier for %s", p.ID)
	}
}
