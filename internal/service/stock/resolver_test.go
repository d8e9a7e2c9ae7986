package stock

import (
	"testing"

	"storefront-checkout/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intp(n int) *int { return &n }

func TestResolve(t *testing.T) {
	records := []domain.InventoryRecord{
		{OnHand: 10, Reserved: 2, SafetyStock: 1},
		{OnHand: 1, Reserved: 3},
	}

	tests := []struct {
		name     string
		variant  domain.Variant
		records  []domain.InventoryRecord
		want     *int
		strategy string
	}{
		{
			name:     "max of available fields",
			variant:  domain.Variant{AvailableStock: intp(3), ImportedAvailable: intp(7), OnHand: intp(100)},
			records:  records,
			want:     intp(7),
			strategy: "variant_available",
		},
		{
			name:     "imported only",
			variant:  domain.Variant{ImportedAvailable: intp(4)},
			want:     intp(4),
			strategy: "variant_available",
		},
		{
			name:     "on hand minus reserved",
			variant:  domain.Variant{OnHand: intp(9), Reserved: intp(4)},
			records:  records,
			want:     intp(5),
			strategy: "variant_counters",
		},
		{
			name:     "on hand without reserved",
			variant:  domain.Variant{OnHand: intp(9)},
			want:     intp(9),
			strategy: "variant_counters",
		},
		{
			name:     "external stock net of reserved",
			variant:  domain.Variant{ExternalStock: intp(6), InitialStock: intp(50), Reserved: intp(1)},
			want:     intp(5),
			strategy: "external_figures",
		},
		{
			name:     "initial stock when external missing",
			variant:  domain.Variant{InitialStock: intp(8), Reserved: intp(2)},
			want:     intp(6),
			strategy: "external_figures",
		},
		{
			name:     "records summed with per-record floor",
			variant:  domain.Variant{},
			records:  records,
			want:     intp(7),
			strategy: "inventory_records",
		},
		{
			name:     "negative result floored",
			variant:  domain.Variant{OnHand: intp(1), Reserved: intp(5)},
			want:     intp(0),
			strategy: "variant_counters",
		},
		{
			name:    "no signal",
			variant: domain.Variant{Reserved: intp(2)},
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, strategy := ResolveNamed(tt.variant, tt.records)
			if tt.want == nil {
				assert.Nil(t, got)
				assert.Empty(t, strategy)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
			assert.Equal(t, tt.strategy, strategy)
		})
	}
}

func TestStrategiesOrder(t *testing.T) {
	names := []string{}
	for _, s := range Strategies() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"variant_available", "variant_counters", "external_figures", "inventory_records"}, names)
}
