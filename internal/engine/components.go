package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/dwsmith1983/ledgerlens/internal/affinity"
	"github.com/dwsmith1983/ledgerlens/internal/dag"
	"github.com/dwsmith1983/ledgerlens/internal/facts"
	"github.com/dwsmith1983/ledgerlens/internal/mart"
	"github.com/dwsmith1983/ledgerlens/internal/rollup"
	"github.com/dwsmith1983/ledgerlens/internal/segment"
	"github.com/dwsmith1983/ledgerlens/internal/staging"
	"github.com/dwsmith1983/ledgerlens/internal/timeseries"
	"github.com/dwsmith1983/ledgerlens/pkg/types"
)

// Component names.
const (
	NodeStaging   = "staging"
	NodeFacts     = "facts"
	NodeLTV       = "ltv"
	NodeRFM       = "rfm"
	NodeProducts  = "products"
	NodeSellers   = "sellers"
	NodeStates    = "states"
	NodeDelivery  = "delivery"
	NodeTrend     = "trend"
	NodeBuyers    = "buyers"
	NodeCohorts   = "cohorts"
	NodeRetention = "retention"
	NodeAffinity  = "affinity"
)

// Params are the computation parameters of one run.
type Params struct {
	EvaluatedAt        time.Time
	ChurnThresholdDays int
	MinAffinitySupport int
}

var stagingOutputs = []string{
	mart.StgOrders, mart.StgCustomers, mart.StgOrderItems,
	mart.StgProducts, mart.StgPayments, mart.StgSellers,
}

// sourceTables lists the raw tables in the order LoadSources fills them.
var sourceTables = []string{
	mart.RawOrders, mart.RawCustomers, mart.RawOrderItems, mart.RawProducts,
	mart.RawPayments, mart.RawSellers, mart.RawTranslations,
}

// NewGraph builds and validates the component graph.
func NewGraph(p Params, logger *slog.Logger) (*dag.Graph, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return dag.New(sourceTables,
		dag.Node{
			Name:     NodeStaging,
			Inputs:   sourceTables,
			Outputs:  stagingOutputs,
			Critical: true,
			Run:      runStaging(logger),
		},
		dag.Node{
			Name:     NodeFacts,
			Inputs:   stagingOutputs,
			Outputs:  []string{mart.OrdersMart, mart.OrderLinesMart},
			Critical: true,
			Run:      runFacts,
		},
		factsNode(NodeLTV, mart.CustomerLTVMart, func(f []types.OrderFact) (any, error) {
			return rollup.CustomerLTV(f), nil
		}),
		dag.Node{
			Name:    NodeRFM,
			Inputs:  []string{mart.StgCustomers, mart.OrdersMart},
			Outputs: []string{mart.CustomerRFMMart},
			Run:     runRFM(p),
		},
		dag.Node{
			Name:    NodeProducts,
			Inputs:  []string{mart.OrderLinesMart},
			Outputs: []string{mart.ProductPerformanceMart, mart.CategoryPerformanceMart},
			Run:     runProducts,
		},
		linesNode(NodeSellers, mart.SellerPerformanceMart, func(l []types.OrderLine) any {
			return rollup.SellerPerformance(l)
		}),
		factsNode(NodeStates, mart.StatePerformanceMart, func(f []types.OrderFact) (any, error) {
			return rollup.StatePerformance(f), nil
		}),
		factsNode(NodeDelivery, mart.DeliveryPerformanceMart, func(f []types.OrderFact) (any, error) {
			return rollup.DeliveryPerformance(f), nil
		}),
		factsNode(NodeTrend, mart.MonthlyTrendMart, func(f []types.OrderFact) (any, error) {
			return timeseries.MonthlyTrend(f)
		}),
		factsNode(NodeBuyers, mart.BuyerSplitMart, func(f []types.OrderFact) (any, error) {
			return timeseries.BuyerSplit(f), nil
		}),
		factsNode(NodeCohorts, mart.CohortMatrixMart, func(f []types.OrderFact) (any, error) {
			return timeseries.Cohorts(f)
		}),
		factsNode(NodeRetention, mart.RetentionMart, func(f []types.OrderFact) (any, error) {
			return timeseries.Retention(f), nil
		}),
		linesNode(NodeAffinity, mart.AffinityPairsMart, func(l []types.OrderLine) any {
			return affinity.Pairs(l, p.MinAffinitySupport)
		}),
	)
}

// factsNode is a single-output component over orders_mart.
func factsNode(name, output string, fn func([]types.OrderFact) (any, error)) dag.Node {
	return dag.Node{
		Name:    name,
		Inputs:  []string{mart.OrdersMart},
		Outputs: []string{output},
		Run: func(_ context.Context, in mart.Dataset) ([]mart.Table, error) {
			f, err := mart.Get[types.OrderFact](in, mart.OrdersMart)
			if err != nil {
				return nil, err
			}
			rows, err := fn(f)
			if err != nil {
				return nil, err
			}
			return []mart.Table{{Name: output, Rows: rows}}, nil
		},
	}
}

// linesNode is a single-output component over order_lines_mart.
func linesNode(name, output string, fn func([]types.OrderLine) any) dag.Node {
	return dag.Node{
		Name:    name,
		Inputs:  []string{mart.OrderLinesMart},
		Outputs: []string{output},
		Run: func(_ context.Context, in mart.Dataset) ([]mart.Table, error) {
			l, err := mart.Get[types.OrderLine](in, mart.OrderLinesMart)
			if err != nil {
				return nil, err
			}
			return []mart.Table{{Name: output, Rows: fn(l)}}, nil
		},
	}
}

func runStaging(logger *slog.Logger) dag.RunFunc {
	return func(_ context.Context, in mart.Dataset) ([]mart.Table, error) {
		raw, err := rawSnapshot(in)
		if err != nil {
			return nil, err
		}
		snap, report := staging.Normalize(raw)
		for table, r := range report {
			if r.Rejected > 0 || r.Duplicates > 0 {
				logger.Warn("staging dropped rows", "table", table, "rejected", r.Rejected, "duplicates", r.Duplicates)
			}
		}
		return []mart.Table{
			{Name: mart.StgOrders, Rows: nonNil(snap.Orders)},
			{Name: mart.StgCustomers, Rows: nonNil(snap.Customers)},
			{Name: mart.StgOrderItems, Rows: nonNil(snap.OrderItems)},
			{Name: mart.StgProducts, Rows: nonNil(snap.Products)},
			{Name: mart.StgPayments, Rows: nonNil(snap.Payments)},
			{Name: mart.StgSellers, Rows: nonNil(snap.Sellers)},
		}, nil
	}
}

func runFacts(_ context.Context, in mart.Dataset) ([]mart.Table, error) {
	snap, err := stagedSnapshot(in)
	if err != nil {
		return nil, err
	}
	return []mart.Table{
		{Name: mart.OrdersMart, Rows: nonNil(facts.Assemble(snap))},
		{Name: mart.OrderLinesMart, Rows: nonNil(facts.Lines(snap))},
	}, nil
}

func runRFM(p Params) dag.RunFunc {
	return func(_ context.Context, in mart.Dataset) ([]mart.Table, error) {
		customers, err := mart.Get[types.Customer](in, mart.StgCustomers)
		if err != nil {
			return nil, err
		}
		f, err := mart.Get[types.OrderFact](in, mart.OrdersMart)
		if err != nil {
			return nil, err
		}
		rows := segment.Score(customers, f, segment.Params{
			EvaluatedAt:        p.EvaluatedAt,
			ChurnThresholdDays: p.ChurnThresholdDays,
		})
		return []mart.Table{{Name: mart.CustomerRFMMart, Rows: nonNil(rows)}}, nil
	}
}

func runProducts(_ context.Context, in mart.Dataset) ([]mart.Table, error) {
	lines, err := mart.Get[types.OrderLine](in, mart.OrderLinesMart)
	if err != nil {
		return nil, err
	}
	products := rollup.ProductPerformance(lines)
	return []mart.Table{
		{Name: mart.ProductPerformanceMart, Rows: nonNil(products)},
		{Name: mart.CategoryPerformanceMart, Rows: nonNil(rollup.CategoryPerformance(products))},
	}, nil
}

func rawSnapshot(in mart.Dataset) (*types.RawSnapshot, error) {
	var (
		raw types.RawSnapshot
		err error
	)
	if raw.Orders, err = mart.Get[types.RawOrder](in, mart.RawOrders); err != nil {
		return nil, err
	}
	if raw.Customers, err = mart.Get[types.RawCustomer](in, mart.RawCustomers); err != nil {
		return nil, err
	}
	if raw.OrderItems, err = mart.Get[types.RawOrderItem](in, mart.RawOrderItems); err != nil {
		return nil, err
	}
	if raw.Products, err = mart.Get[types.RawProduct](in, mart.RawProducts); err != nil {
		return nil, err
	}
	if raw.Payments, err = mart.Get[types.RawPayment](in, mart.RawPayments); err != nil {
		return nil, err
	}
	if raw.Sellers, err = mart.Get[types.RawSeller](in, mart.RawSellers); err != nil {
		return nil, err
	}
	if raw.Translations, err = mart.Get[types.RawCategoryTranslation](in, mart.RawTranslations); err != nil {
		return nil, err
	}
	return &raw, nil
}

func stagedSnapshot(in mart.Dataset) (*types.Snapshot, error) {
	var (
		snap types.Snapshot
		err  error
	)
	if snap.Orders, err = mart.Get[types.Order](in, mart.StgOrders); err != nil {
		return nil, err
	}
	if snap.Customers, err = mart.Get[types.Customer](in, mart.StgCustomers); err != nil {
		return nil, err
	}
	if snap.OrderItems, err = mart.Get[types.OrderItem](in, mart.StgOrderItems); err != nil {
		return nil, err
	}
	if snap.Products, err = mart.Get[types.Product](in, mart.StgProducts); err != nil {
		return nil, err
	}
	if snap.Payments, err = mart.Get[types.Payment](in, mart.StgPayments); err != nil {
		return nil, err
	}
	if snap.Sellers, err = mart.Get[types.Seller](in, mart.StgSellers); err != nil {
		return nil, err
	}
	return &snap, nil
}

// sourceDataset wraps the raw snapshot as the graph's source tables.
func sourceDataset(raw *types.RawSnapshot) mart.Dataset {
	ds := mart.Dataset{}
	ds.Put(mart.RawOrders, nonNil(raw.Orders))
	ds.Put(mart.RawCustomers, nonNil(raw.Customers))
	ds.Put(mart.RawOrderItems, nonNil(raw.OrderItems))
	ds.Put(mart.RawProducts, nonNil(raw.Products))
	ds.Put(mart.RawPayments, nonNil(raw.Payments))
	ds.Put(mart.RawSellers, nonNil(raw.Sellers))
	ds.Put(mart.RawTranslations, nonNil(raw.Translations))
	return ds
}

// nonNil keeps empty tables typed so they still publish as empty.
func nonNil[T any](rows []T) []T {
	if rows == nil {
		return []T{}
	}
	return rows
}
