package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dwsmith1983/ledgerlens/internal/mart"
	"github.com/dwsmith1983/ledgerlens/pkg/types"
)

// LoadSources reads every raw_* table. Values are read as text; NULL becomes "".
func (s *Store) LoadSources(ctx context.Context) (*types.RawSnapshot, error) {
	var (
		snap types.RawSnapshot
		err  error
	)
	if snap.Orders, err = loadRaw(ctx, s, mart.RawOrders, func(v []string) types.RawOrder {
		return types.RawOrder{OrderID: v[0], CustomerID: v[1], Status: v[2], PurchasedAt: v[3],
			ApprovedAt: v[4], DeliveredAt: v[5], EstimatedDelivery: v[6]}
	}); err != nil {
		return nil, err
	}
	if snap.Customers, err = loadRaw(ctx, s, mart.RawCustomers, func(v []string) types.RawCustomer {
		return types.RawCustomer{CustomerID: v[0], CustomerUniqueID: v[1], ZipCodePrefix: v[2], City: v[3], State: v[4]}
	}); err != nil {
		return nil, err
	}
	if snap.OrderItems, err = loadRaw(ctx, s, mart.RawOrderItems, func(v []string) types.RawOrderItem {
		return types.RawOrderItem{OrderID: v[0], OrderItemID: v[1], ProductID: v[2], SellerID: v[3], Price: v[4], FreightValue: v[5]}
	}); err != nil {
		return nil, err
	}
	if snap.Products, err = loadRaw(ctx, s, mart.RawProducts, func(v []string) types.RawProduct {
		return types.RawProduct{ProductID: v[0], CategoryName: v[1]}
	}); err != nil {
		return nil, err
	}
	if snap.Payments, err = loadRaw(ctx, s, mart.RawPayments, func(v []string) types.RawPayment {
		return types.RawPayment{OrderID: v[0], Sequential: v[1], PaymentType: v[2], Installments: v[3], Value: v[4]}
	}); err != nil {
		return nil, err
	}
	if snap.Sellers, err = loadRaw(ctx, s, mart.RawSellers, func(v []string) types.RawSeller {
		return types.RawSeller{SellerID: v[0], ZipCodePrefix: v[1], City: v[2], State: v[3]}
	}); err != nil {
		return nil, err
	}
	if snap.Translations, err = loadRaw(ctx, s, mart.RawTranslations, func(v []string) types.RawCategoryTranslation {
		return types.RawCategoryTranslation{CategoryName: v[0], CategoryNameEnglish: v[1]}
	}); err != nil {
		return nil, err
	}
	return &snap, nil
}

// loadRaw selects the catalog columns of a source table in key order and
// decodes each row with decode. decode receives one string per column.
func loadRaw[T any](ctx context.Context, s *Store, table string, decode func([]string) T) ([]T, error) {
	schema, err := mart.Lookup(table)
	if err != nil {
		return nil, err
	}
	cols := make([]string, len(schema.Columns))
	for i, c := range schema.Columns {
		cols[i] = fmt.Sprintf("COALESCE(%s::text, '')", pgx.Identifier{c.Name}.Sanitize())
	}
	query, args, err := psql.Select(cols...).
		From(pgx.Identifier{table}.Sanitize()).
		OrderBy(schema.Key...).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s query: %w", table, err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", table, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		vals := make([]string, len(cols))
		dest := make([]any, len(cols))
		for i := range vals {
			dest[i] = &vals[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		out = append(out, decode(vals))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load %s: %w", table, err)
	}
	return out, nil
}
