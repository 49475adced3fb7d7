// Package aggregate merges per-venue ladders and derives the market
// statistics published for each symbol.
package aggregate

import (
	"slices"

	"github.com/jidanzai321/aggregator/internal/domain"
)

// Merge sums the bid and ask sizes of every price present in any input.
// Prices absent from all inputs are absent from the result; zero-size
// entries that are present are kept.
//
// The result does not depend on argument order. Per-price contributions
// are summed in ascending order, so float rounding cannot leak the order
// in which sources were visited.
func Merge(ladders ...domain.Ladder) domain.Ladder {
	switch len(ladders) {
	case 0:
		return domain.Ladder{}
	case 1:
		return ladders[0].Clone()
	}

	type contribution struct {
		bids, asks []float64
	}
	acc := make(map[float64]*contribution)
	for _, l := range ladders {
		for p, lvl := range l {
			c := acc[p]
			if c == nil {
				c = &contribution{}
				acc[p] = c
			}
			c.bids = append(c.bids, lvl.Bid)
			c.asks = append(c.asks, lvl.Ask)
		}
	}

	out := make(domain.Ladder, len(acc))
	for p, c := range acc {
		out[p] = domain.Level{Bid: sortedSum(c.bids), Ask: sortedSum(c.asks)}
	}
	return out
}

func sortedSum(xs []float64) float64 {
	if len(xs) > 1 {
		slices.Sort(xs)
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum
}
