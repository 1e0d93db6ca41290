// Package affinity counts how often two distinct products appear in the same order.
package affinity

import (
	"sort"

	"github.com/dwsmith1983/ledgerlens/pkg/types"
)

type pairKey struct{ a, b string }

// Pairs counts each unordered pair of distinct products once per order, keeps
// pairs with at least minSupport co-occurrences, and ranks them by count
// descending with ties broken by (product a, product b). Ranks start at 1.
// Lines for unknown products are included; their category is empty.
func Pairs(lines []types.OrderLine, minSupport int) []types.AffinityPair {
	if minSupport < 1 {
		minSupport = 1
	}

	categories := make(map[string]string)
	byOrder := make(map[string]map[string]bool)
	for _, l := range lines {
		if l.ProductID == "" {
			continue
		}
		products, ok := byOrder[l.OrderID]
		if !ok {
			products = make(map[string]bool)
			byOrder[l.OrderID] = products
		}
		products[l.ProductID] = true
		if l.CategoryName != "" {
			categories[l.ProductID] = l.CategoryName
		}
	}

	counts := make(map[pairKey]int)
	for _, products := range byOrder {
		if len(products) < 2 {
			continue
		}
		ids := make([]string, 0, len(products))
		for id := range products {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				counts[pairKey{ids[i], ids[j]}]++
			}
		}
	}

	out := make([]types.AffinityPair, 0, len(counts))
	for k, n := range counts {
		if n < minSupport {
			continue
		}
		out = append(out, types.AffinityPair{
			ProductA:  k.a,
			CategoryA: categories[k.a],
			ProductB:  k.b,
			CategoryB: categories[k.b],
			Count:     n,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].ProductA != out[j].ProductA {
			return out[i].ProductA < out[j].ProductA
		}
		return out[i].ProductB < out[j].ProductB
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
