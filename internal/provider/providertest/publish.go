package providertest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/ledgerlens/internal/mart"
	"github.com/dwsmith1983/ledgerlens/internal/provider"
	"github.com/dwsmith1983/ledgerlens/pkg/types"
)

func trendRow(month string, sales string, orders int) types.MonthlyTrend {
	return types.MonthlyTrend{
		Month:       month,
		TotalOrders: orders,
		TotalSales:  decimal.RequireFromString(sales),
	}
}

// TestPublishReadBack verifies a multi-table publish is readable with catalog value types.
func TestPublishReadBack(t *testing.T, prov provider.Provider) {
	ctx := context.Background()

	first := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	tables := []mart.Table{
		{Name: mart.MonthlyTrendMart, Rows: []types.MonthlyTrend{
			trendRow("2024-01", "100.00", 2),
			trendRow("2024-02", "150.00", 3),
		}},
		{Name: mart.CustomerLTVMart, Rows: []types.CustomerLTV{{
			CustomerUniqueID: "ct-u1",
			TotalOrders:      1,
			TotalSpent:       decimal.RequireFromString("10.50"),
			FirstOrderDate:   &first,
		}}},
	}
	require.NoError(t, prov.Publish(ctx, "ct-run-pub", tables))

	rows, err := prov.ReadTable(ctx, mart.MonthlyTrendMart)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2024-01", rows[0]["month"])
	assert.Equal(t, 2, rows[0]["total_orders"])
	sales, ok := rows[1]["total_sales"].(decimal.Decimal)
	require.True(t, ok, "numeric columns read back as decimal")
	assert.True(t, decimal.RequireFromString("150").Equal(sales))
	assert.Nil(t, rows[0]["growth_pct"])

	ltv, err := prov.ReadTable(ctx, mart.CustomerLTVMart)
	require.NoError(t, err)
	require.Len(t, ltv, 1)
	assert.Equal(t, first, ltv[0]["first_order_date"])
	assert.Nil(t, ltv[0]["last_order_date"])
}

// TestPublishReplaces verifies a publish replaces the table wholesale.
func TestPublishReplaces(t *testing.T, prov provider.Provider) {
	ctx := context.Background()

	require.NoError(t, prov.Publish(ctx, "ct-run-a", []mart.Table{{
		Name: mart.MonthlyTrendMart,
		Rows: []types.MonthlyTrend{trendRow("2023-01", "1", 1), trendRow("2023-02", "2", 1)},
	}}))
	require.NoError(t, prov.Publish(ctx, "ct-run-b", []mart.Table{{
		Name: mart.MonthlyTrendMart,
		Rows: []types.MonthlyTrend{trendRow("2023-03", "3", 1)},
	}}))

	rows, err := prov.ReadTable(ctx, mart.MonthlyTrendMart)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2023-03", rows[0]["month"])

	require.NoError(t, prov.Publish(ctx, "ct-run-c", []mart.Table{{
		Name: mart.MonthlyTrendMart, Rows: []types.MonthlyTrend{},
	}}))
	rows, err = prov.ReadTable(ctx, mart.MonthlyTrendMart)
	require.NoError(t, err)
	assert.Empty(t, rows, "an empty publish clears the table")
}

// TestPublishRejectsMismatch verifies rows of the wrong type are refused and nothing changes.
func TestPublishRejectsMismatch(t *testing.T, prov provider.Provider) {
	ctx := context.Background()

	require.NoError(t, prov.Publish(ctx, "ct-run-ok", []mart.Table{{
		Name: mart.BuyerSplitMart, Rows: []types.BuyerSplit{{Month: "2024-01", FirstTimeCount: 1}},
	}}))

	err := prov.Publish(ctx, "ct-run-bad", []mart.Table{
		{Name: mart.BuyerSplitMart, Rows: []types.BuyerSplit{{Month: "2024-02", FirstTimeCount: 2}}},
		{Name: mart.MonthlyTrendMart, Rows: []types.BuyerSplit{}},
	})
	require.ErrorIs(t, err, mart.ErrSchemaMismatch)

	rows, err := prov.ReadTable(ctx, mart.BuyerSplitMart)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2024-01", rows[0]["month"])
}

// TestReadUnknownTable verifies catalog misses and never-published tables.
func TestReadUnknownTable(t *testing.T, prov provider.Provider) {
	ctx := context.Background()

	_, err := prov.ReadTable(ctx, "ct-no-such-table")
	assert.ErrorIs(t, err, mart.ErrUnknownTable)

	_, err = prov.ReadTable(ctx, mart.RetentionMart)
	assert.ErrorIs(t, err, provider.ErrNotFound)
}
