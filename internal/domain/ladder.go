package domain

// Side selects the bid or ask half of a price level.
type Side int

const (
	Bid Side = iota
	Ask
)

func (s Side) String() string {
	if s == Ask {
		return "ask"
	}
	return "bid"
}

// Level is the resting size on both sides of one grid price. Sizes are
// never negative.
type Level struct {
	Bid float64 `json:"bid"`
	Ask float64 `json:"ask"`
}

// Size returns the quantity on the given side.
func (l Level) Size(side Side) float64 {
	if side == Ask {
		return l.Ask
	}
	return l.Bid
}

func (l *Level) set(side Side, qty float64) {
	if qty < 0 {
		qty = 0
	}
	if side == Ask {
		l.Ask = qty
	} else {
		l.Bid = qty
	}
}

// Ladder maps grid prices to levels. A key, once present, stays present
// even when both sides reach zero.
type Ladder map[float64]Level

// Set replaces the quantity on one side of price.
func (l Ladder) Set(price float64, side Side, qty float64) {
	lvl := l[price]
	lvl.set(side, qty)
	l[price] = lvl
}

// Add adjusts one side of price by delta, clamping the result at zero.
// A missing entry starts from zero.
func (l Ladder) Add(price float64, side Side, delta float64) {
	lvl := l[price]
	lvl.set(side, lvl.Size(side)+delta)
	l[price] = lvl
}

// Clone returns an independent copy.
func (l Ladder) Clone() Ladder {
	out := make(Ladder, len(l))
	for p, lvl := range l {
		out[p] = lvl
	}
	return out
}
