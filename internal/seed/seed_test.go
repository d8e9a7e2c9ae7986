package seed

import (
	"context"
	"testing"

	"storefront-checkout/internal/service/stock"
	"storefront-checkout/internal/storage/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyCoversStockShapes(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()
	repos := mem.Repos()

	proj, err := Apply(ctx, repos, nil)
	require.NoError(t, err)
	again, err := Apply(ctx, repos, nil)
	require.NoError(t, err)
	assert.Equal(t, proj.ID, again.ID)

	products, err := repos.Products.ListByProject(ctx, proj.ID)
	require.NoError(t, err)
	assert.Len(t, products, 3)

	want := map[string]struct {
		available *int
		strategy  string
	}{
		"SKU-DEMO-TSHIRT-M":      {intp(5), "variant_available"},
		"SKU-DEMO-TSHIRT-L":      {intp(4), "variant_available"},
		"SKU-DEMO-TSHIRT-XL":     {intp(5), "variant_counters"},
		"SKU-DEMO-MUG":           {intp(5), "inventory_records"},
		"SKU-DEMO-MUG-GIFT":      {intp(10), "external_figures"},
		"SKU-DEMO-POSTER":        {intp(0), "variant_available"},
		"SKU-DEMO-POSTER-SIGNED": {nil, ""},
	}
	for sku, exp := range want {
		v, err := repos.Products.GetVariantBySKU(ctx, proj.ID, sku)
		require.NoError(t, err, sku)
		recs, err := repos.Products.ListInventory(ctx, v.ID)
		require.NoError(t, err)
		got, name := stock.ResolveNamed(*v, recs)
		assert.Equal(t, exp.available, got, sku)
		assert.Equal(t, exp.strategy, name, sku)
	}
}
