// Package book holds the per-source price ladder and the quantization
// rule that maps venue prices onto a symbol's shared tick grid.
package book

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/jidanzai321/aggregator/internal/domain"
)

// Grid quantizes prices to multiples of a tick size. Arithmetic is done
// in decimal so that every source of a symbol produces bit-identical
// float64 keys for the same grid price.
type Grid struct {
	tick decimal.Decimal
}

// NewGrid returns a Grid for tick. Non-positive or non-finite ticks are
// rejected with domain.ErrInvalidTick.
func NewGrid(tick float64) (Grid, error) {
	if math.IsNaN(tick) || math.IsInf(tick, 0) || tick <= 0 {
		return Grid{}, fmt.Errorf("book: new grid %v: %w", tick, domain.ErrInvalidTick)
	}
	return Grid{tick: decimal.NewFromFloat(tick)}, nil
}

// Tick returns the grid spacing.
func (g Grid) Tick() float64 {
	return g.tick.InexactFloat64()
}

// Quantize maps raw to the nearest multiple of the tick, rounding exact
// halves to the even multiple. Quantize(Quantize(x)) == Quantize(x).
func (g Grid) Quantize(raw float64) float64 {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return raw
	}
	return g.QuantizeDecimal(decimal.NewFromFloat(raw))
}

// QuantizeDecimal is Quantize for a price already parsed as a decimal.
func (g Grid) QuantizeDecimal(raw decimal.Decimal) float64 {
	steps := raw.Div(g.tick).RoundBank(0)
	return steps.Mul(g.tick).InexactFloat64()
}
