// Package pricing reads the price a shopper was shown from the cart line
// itself, only falling back to the live catalog when the line carries none.
package pricing

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"storefront-checkout/internal/domain"

	"github.com/shopspring/decimal"
)

// ErrNoPrice is returned for a line with no usable price anywhere.
var ErrNoPrice = errors.New("no price for cart line")

// Source names where a figure came from.
type Source string

const (
	SourceFrozen   Source = "frozen"
	SourceSnapshot Source = "snapshot"
	SourceVariant  Source = "variant"
	SourceProduct  Source = "product"
	SourceComputed Source = "computed"
)

// Line is the authoritative price of one cart line.
type Line struct {
	UnitPriceCents int64
	TotalCents     int64
	UnitSource     Source
	TotalSource    Source
}

// Snapshot keys holding minor units and major units respectively.
var (
	unitCentsKeys  = []string{"unitPriceCents", "priceCents"}
	unitMajorKeys  = []string{"unitPrice", "price"}
	totalCentsKeys = []string{"totalCents", "lineTotalCents"}
	totalMajorKeys = []string{"lineTotal", "total"}
)

// Read resolves the unit price and line total of line. v may be nil when the
// variant is unknown; then only the line's own figures can be used.
func Read(line domain.CartLine, v *domain.Variant) (Line, error) {
	if line.Quantity <= 0 {
		return Line{}, fmt.Errorf("cart line %s: quantity %d", line.ID, line.Quantity)
	}

	var out Line
	switch {
	case usable(line.UnitPriceCents):
		out.UnitPriceCents, out.UnitSource = *line.UnitPriceCents, SourceFrozen
	default:
		if cents, ok := fromSnapshot(line.Snapshot, unitCentsKeys, unitMajorKeys); ok {
			out.UnitPriceCents, out.UnitSource = cents, SourceSnapshot
		} else if v != nil && usable(v.PriceCents) {
			out.UnitPriceCents, out.UnitSource = *v.PriceCents, SourceVariant
		} else if v != nil && usable(v.ProductPriceCents) {
			out.UnitPriceCents, out.UnitSource = *v.ProductPriceCents, SourceProduct
		} else {
			return Line{}, fmt.Errorf("cart line %s: %w", line.ID, ErrNoPrice)
		}
	}

	switch {
	case usable(line.TotalCents):
		out.TotalCents, out.TotalSource = *line.TotalCents, SourceFrozen
	default:
		if cents, ok := fromSnapshot(line.Snapshot, totalCentsKeys, totalMajorKeys); ok {
			out.TotalCents, out.TotalSource = cents, SourceSnapshot
		} else {
			out.TotalCents, out.TotalSource = out.UnitPriceCents*int64(line.Quantity), SourceComputed
		}
	}
	return out, nil
}

func usable(cents *int64) bool {
	return cents != nil && *cents >= 0
}

func fromSnapshot(snapshot map[string]interface{}, centsKeys, majorKeys []string) (int64, bool) {
	for _, k := range centsKeys {
		if d, ok := parseAmount(snapshot[k]); ok {
			return d.Round(0).IntPart(), true
		}
	}
	for _, k := range majorKeys {
		if d, ok := parseAmount(snapshot[k]); ok {
			return d.Shift(2).Round(0).IntPart(), true
		}
	}
	return 0, false
}

// parseAmount accepts the shapes a JSON snapshot can hold. Non-finite and
// negative amounts are rejected.
func parseAmount(raw interface{}) (decimal.Decimal, bool) {
	var d decimal.Decimal
	switch v := raw.(type) {
	case nil:
		return d, false
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return d, false
		}
		d = decimal.NewFromFloat(v)
	case float32:
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return d, false
		}
		d = decimal.NewFromFloat(f)
	case int:
		d = decimal.NewFromInt(int64(v))
	case int64:
		d = decimal.NewFromInt(v)
	case json.Number:
		parsed, err := decimal.NewFromString(v.String())
		if err != nil {
			return d, false
		}
		d = parsed
	case string:
		parsed, err := decimal.NewFromString(v)
		if err != nil {
			return d, false
		}
		d = parsed
	default:
		return d, false
	}
	if d.IsNegative() {
		return d, false
	}
	return d, true
}
