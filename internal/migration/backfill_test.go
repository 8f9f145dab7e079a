package migration

import (
	"testing"

	"github.com/smallbiznis/splitpay/internal/config"
	"github.com/smallbiznis/splitpay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackfillFillsMissingFields(t *testing.T) {
	catalog := config.DefaultCatalog()
	platforms := []domain.Platform{
		{ID: "klarna", Name: "Klarna"},
		{ID: "custom-shop", Name: "Custom", DefaultInstallments: 6, DefaultIntervalDays: 30},
	}
	orders := []domain.Order{
		{ID: "o1", PlatformID: "klarna", Status: domain.OrderStatusActive},
		{ID: "o2", PlatformID: "custom-shop", Status: domain.OrderStatusCompleted},
		{ID: "o3", PlatformID: "affirm"},
	}

	got := Backfill(catalog, orders, platforms)

	require.Len(t, got.Platforms, 2)
	assert.Equal(t, "major", got.Platforms[0].Tier)
	assert.Equal(t, "pay-in-4", got.Platforms[0].Category)
	assert.Equal(t, 4, got.Platforms[0].DefaultInstallments)
	assert.Equal(t, 14, got.Platforms[0].DefaultIntervalDays)
	require.Len(t, got.ChangedPlatforms, 1)
	assert.Equal(t, "klarna", got.ChangedPlatforms[0].ID)

	assert.Equal(t, "pay-in-4", got.Orders[0].Category)
	assert.Empty(t, got.Orders[1].Category)
	assert.Equal(t, "financing", got.Orders[2].Category)
	assert.Equal(t, domain.OrderStatusActive, got.Orders[2].Status)
	assert.Len(t, got.ChangedOrders, 2)

	assert.Empty(t, platforms[0].Tier, "input must not be mutated")
	assert.Empty(t, orders[0].Category, "input must not be mutated")
}

func TestBackfillIsIdempotent(t *testing.T) {
	catalog := config.DefaultCatalog()
	first := Backfill(catalog,
		[]domain.Order{{ID: "o1", PlatformID: "zip"}},
		[]domain.Platform{{ID: "zip", Name: "Zip"}},
	)
	require.True(t, first.OrdersChanged())
	require.True(t, first.PlatformsChanged())

	second := Backfill(catalog, first.Orders, first.Platforms)
	assert.False(t, second.OrdersChanged())
	assert.False(t, second.PlatformsChanged())
	assert.Equal(t, first.Orders, second.Orders)
	assert.Equal(t, first.Platforms, second.Platforms)
}
