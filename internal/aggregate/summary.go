package aggregate

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jidanzai321/aggregator/internal/domain"
)

// Window controls the display range and bucket width of a summary.
type Window struct {
	// RangePct is the half-width of the display window relative to mid,
	// e.g. 0.2 for [0.8*mid, 1.2*mid].
	RangePct float64
	BinSize  float64
}

// Validate rejects windows that cannot produce buckets.
func (w Window) Validate() error {
	if math.IsNaN(w.RangePct) || w.RangePct <= 0 || w.RangePct > 1 {
		return fmt.Errorf("aggregate: range_pct %v outside (0,1]: %w", w.RangePct, domain.ErrInvalidWindow)
	}
	if math.IsNaN(w.BinSize) || math.IsInf(w.BinSize, 0) || w.BinSize <= 0 {
		return fmt.Errorf("aggregate: bin_size %v must be positive: %w", w.BinSize, domain.ErrInvalidWindow)
	}
	return nil
}

// BestBidAsk returns the highest price with resting bids and the lowest
// price with resting asks. ok is false when either side is empty.
func BestBidAsk(merged domain.Ladder) (bid, ask float64, ok bool) {
	haveBid, haveAsk := false, false
	for p, lvl := range merged {
		if lvl.Bid > 0 && (!haveBid || p > bid) {
			bid, haveBid = p, true
		}
		if lvl.Ask > 0 && (!haveAsk || p < ask) {
			ask, haveAsk = p, true
		}
	}
	return bid, ask, haveBid && haveAsk
}

// Summarize derives the snapshot for one merge cycle. It returns false
// when the merged ladder has no two-sided market; callers skip the cycle.
func Summarize(symbol string, merged domain.Ladder, w Window) (domain.MarketSnapshot, bool) {
	bestBid, bestAsk, ok := BestBidAsk(merged)
	if !ok {
		return domain.MarketSnapshot{}, false
	}

	mid := (bestBid + bestAsk) / 2
	dmid := decimal.NewFromFloat(mid)
	r := decimal.NewFromFloat(w.RangePct)
	low := dmid.Mul(decimal.NewFromInt(1).Sub(r)).InexactFloat64()
	high := dmid.Mul(decimal.NewFromInt(1).Add(r)).InexactFloat64()

	// Prices are visited from high to low so bucket sums are independent
	// of map order and buckets come out already sorted.
	prices := slices.Sorted(maps.Keys(merged))
	bin := decimal.NewFromFloat(w.BinSize)
	out := make([]domain.Bucket, 0)
	for i := len(prices) - 1; i >= 0; i-- {
		p := prices[i]
		if p < low || p > high {
			continue
		}
		lvl := merged[p]
		key := BucketKey(p, bin)
		if n := len(out); n == 0 || out[n-1].Lower != key {
			out = append(out, domain.Bucket{Lower: key})
		}
		b := &out[len(out)-1]
		b.Bid += lvl.Bid
		b.Ask += lvl.Ask
	}

	return domain.MarketSnapshot{
		Symbol:  symbol,
		BestBid: bestBid,
		BestAsk: bestAsk,
		Mid:     mid,
		Spread:  bestAsk - bestBid,
		Low:     low,
		High:    high,
		Buckets: out,
		Time:    time.Now().UTC(),
	}, true
}

// BucketKey returns floor(price/bin)*bin.
func BucketKey(price float64, bin decimal.Decimal) float64 {
	return decimal.NewFromFloat(price).Div(bin).Floor().Mul(bin).InexactFloat64()
}
