package book

import (
	"errors"
	"math"
	"testing"

	"github.com/jidanzai321/aggregator/internal/domain"
)

func TestNewGridRejectsBadTick(t *testing.T) {
	for _, tick := range []float64{0, -0.01, math.NaN(), math.Inf(1)} {
		if _, err := NewGrid(tick); !errors.Is(err, domain.ErrInvalidTick) {
			t.Fatalf("tick %v: expected ErrInvalidTick, got %v", tick, err)
		}
	}
}

func TestQuantize(t *testing.T) {
	cases := []struct {
		tick float64
		raw  float64
		want float64
	}{
		{0.01, 100.004, 100.00},
		{0.01, 99.996, 100.00},
		{0.01, 100.005, 100.00},
		{0.01, 100.015, 100.02},
		{0.5, 81.2, 81.0},
		{0.5, 81.3, 81.5},
		{1, 2.5, 2},
		{1, 3.5, 4},
		{0.001, 0.4567, 0.457},
	}
	for _, c := range cases {
		g, err := NewGrid(c.tick)
		if err != nil {
			t.Fatalf("new grid: %v", err)
		}
		if got := g.Quantize(c.raw); got != c.want {
			t.Fatalf("Quantize(%v) tick %v = %v, want %v", c.raw, c.tick, got, c.want)
		}
	}
}

func TestQuantizeIdempotent(t *testing.T) {
	for _, tick := range []float64{0.01, 0.1, 0.25, 1, 0.0001} {
		g, _ := NewGrid(tick)
		for i := 0; i < 2000; i++ {
			raw := 3 + float64(i)*0.01373
			q := g.Quantize(raw)
			if again := g.Quantize(q); again != q {
				t.Fatalf("tick %v raw %v: Quantize not idempotent: %v then %v", tick, raw, q, again)
			}
		}
	}
}

func TestQuantizeSharedKeys(t *testing.T) {
	g, _ := NewGrid(0.01)
	a := g.Quantize(100.004)
	b := g.Quantize(99.996)
	c := g.Quantize(100)
	if a != b || b != c {
		t.Fatalf("expected identical keys, got %v %v %v", a, b, c)
	}
}
