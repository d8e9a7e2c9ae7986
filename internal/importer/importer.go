// Package importer bulk-loads variants and their per-location inventory from
// a CSV export. It is the upstream path that fills imported_available.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/logging"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type CatalogWriter interface {
	Upsert(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpsertVariant(ctx context.Context, v domain.Variant) (*domain.Variant, error)
	UpsertInventory(ctx context.Context, rec domain.InventoryRecord) (*domain.InventoryRecord, error)
}

// Result counts what a run wrote.
type Result struct {
	Products  int
	Variants  int
	Inventory int
}

// CSVImporter reads rows keyed by sku. Consecutive rows with the same sku
// add one inventory location each to that variant.
type CSVImporter struct {
	reader    *csv.Reader
	repo      CatalogWriter
	projectID string
	logger    *zap.Logger
}

func NewCSVImporter(r io.Reader, repo CatalogWriter, projectID string, logger *zap.Logger) *CSVImporter {
	csvr := csv.NewReader(r)
	csvr.FieldsPerRecord = -1 // rows may have trailing commas
	return &CSVImporter{
		reader:    csvr,
		repo:      repo,
		projectID: projectID,
		logger:    logging.OrNop(logger),
	}
}

type csvRow struct {
	line        int
	ProductKey  string
	ProductName string
	SKU         string
	Name        string
	Price       string
	Currency    string
	Available   string
	Backorder   string
	Location    string
	OnHand      string
	Reserved    string
	SafetyStock string
}

// Run parses all rows and writes products, variants and inventory records.
func (i *CSVImporter) Run(ctx context.Context) (Result, error) {
	var res Result
	headers, err := i.reader.Read()
	if err != nil {
		return res, fmt.Errorf("read headers: %w", err)
	}
	index := headerIndex(headers)
	for _, required := range []string{"product_key", "sku"} {
		if _, ok := index[required]; !ok {
			return res, fmt.Errorf("missing column %q", required)
		}
	}

	products := map[string]string{}
	var (
		line      = 1
		variant   *domain.Variant
		variantOf string
	)
	for {
		record, err := i.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return res, fmt.Errorf("read row %d: %w", line, err)
		}
		row := parseRow(record, index, line)
		if row.SKU == "" {
			continue
		}

		if variant == nil || variantOf != row.SKU {
			productID, ok := products[row.ProductKey]
			if !ok {
				p, err := i.saveProduct(ctx, row)
				if err != nil {
					return res, err
				}
				productID = p.ID
				products[row.ProductKey] = productID
				res.Products++
			}
			variant, err = i.saveVariant(ctx, row, productID)
			if err != nil {
				return res, err
			}
			variantOf = row.SKU
			res.Variants++
		}

		if row.Location != "" {
			if err := i.saveInventory(ctx, row, variant.ID); err != nil {
				return res, err
			}
			res.Inventory++
		}
	}

	i.logger.Info("import finished",
		zap.String("project_id", i.projectID),
		zap.Int("products", res.Products),
		zap.Int("variants", res.Variants),
		zap.Int("inventory_records", res.Inventory),
	)
	return res, nil
}

func (i *CSVImporter) saveProduct(ctx context.Context, row csvRow) (*domain.Product, error) {
	if row.ProductKey == "" || row.ProductName == "" || row.Currency == "" {
		return nil, fmt.Errorf("row %d: product_key, product_name and currency are required", row.line)
	}
	cents, err := parseCents(row.Price)
	if err != nil {
		return nil, fmt.Errorf("row %d: %w", row.line, err)
	}
	p, err := i.repo.Upsert(ctx, domain.Product{
		ProjectID:  i.projectID,
		Key:        row.ProductKey,
		Name:       row.ProductName,
		PriceCents: cents,
		Currency:   strings.ToUpper(row.Currency),
	})
	if err != nil {
		return nil, fmt.Errorf("upsert product %q: %w", row.ProductKey, err)
	}
	return p, nil
}

func (i *CSVImporter) saveVariant(ctx context.Context, row csvRow, productID string) (*domain.Variant, error) {
	cents, err := parseCents(row.Price)
	if err != nil {
		return nil, fmt.Errorf("row %d: %w", row.line, err)
	}
	available, err := parseOptionalInt(row.Available)
	if err != nil {
		return nil, fmt.Errorf("row %d: imported_available: %w", row.line, err)
	}
	name := row.Name
	if name == "" {
		name = row.ProductName
	}
	backorder, _ := strconv.ParseBool(row.Backorder)
	v, err := i.repo.UpsertVariant(ctx, domain.Variant{
		ProjectID:         i.projectID,
		ProductID:         productID,
		SKU:               row.SKU,
		Name:              name,
		PriceCents:        cents,
		BackorderAllowed:  backorder,
		ImportedAvailable: available,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert variant %q: %w", row.SKU, err)
	}
	return v, nil
}

func (i *CSVImporter) saveInventory(ctx context.Context, row csvRow, variantID string) error {
	var counts [3]int
	for n, raw := range []string{row.OnHand, row.Reserved, row.SafetyStock} {
		v, err := parseOptionalInt(raw)
		if err != nil {
			return fmt.Errorf("row %d: inventory: %w", row.line, err)
		}
		if v != nil {
			counts[n] = *v
		}
	}
	_, err := i.repo.UpsertInventory(ctx, domain.InventoryRecord{
		VariantID:   variantID,
		Location:    row.Location,
		OnHand:      counts[0],
		Reserved:    counts[1],
		SafetyStock: counts[2],
	})
	if err != nil {
		return fmt.Errorf("upsert inventory %q@%q: %w", row.SKU, row.Location, err)
	}
	return nil
}

// parseCents reads a major-unit decimal price such as "12.50". Empty means
// no price. Fractions of a cent are rejected.
func parseCents(raw string) (*int64, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("price %q: %w", raw, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("price %q is negative", raw)
	}
	cents := d.Shift(2)
	if !cents.IsInteger() {
		return nil, fmt.Errorf("price %q has sub-cent precision", raw)
	}
	v := cents.IntPart()
	return &v, nil
}

func parseOptionalInt(raw string) (*int, error) {
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func headerIndex(headers []string) map[string]int {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return idx
}

func parseRow(record []string, index map[string]int, line int) csvRow {
	return csvRow{
		line:        line,
		ProductKey:  pick(record, index, "product_key"),
		ProductName: pick(record, index, "product_name"),
		SKU:         pick(record, index, "sku"),
		Name:        pick(record, index, "variant_name"),
		Price:       pick(record, index, "price"),
		Currency:    pick(record, index, "currency"),
		Available:   pick(record, index, "imported_available"),
		Backorder:   pick(record, index, "backorder"),
		Location:    pick(record, index, "location"),
		OnHand:      pick(record, index, "on_hand"),
		Reserved:    pick(record, index, "reserved"),
		SafetyStock: pick(record, index, "safety_stock"),
	}
}

func pick(record []string, index map[string]int, key string) string {
	pos, ok := index[key]
	if !ok || pos >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[pos])
}
