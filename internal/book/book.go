package book

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jidanzai321/aggregator/internal/domain"
)

// Kind distinguishes a full book replacement from a partial update.
type Kind int

const (
	Snapshot Kind = iota
	Incremental
)

// Mode says how incremental sizes are interpreted.
type Mode int

const (
	// Absolute sizes replace the venue's level at that raw price.
	Absolute Mode = iota
	// Delta sizes are added to the current level.
	Delta
)

// RawLevel is one venue price level before quantization.
type RawLevel struct {
	Side  domain.Side
	Price decimal.Decimal
	Size  decimal.Decimal
}

// ParseLevel parses a venue's string encoded price and size.
func ParseLevel(side domain.Side, price, size string) (RawLevel, error) {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return RawLevel{}, fmt.Errorf("book: parse price %q: %w", price, err)
	}
	s, err := decimal.NewFromString(size)
	if err != nil {
		return RawLevel{}, fmt.Errorf("book: parse size %q: %w", size, err)
	}
	return RawLevel{Side: side, Price: p, Size: s}, nil
}

// ParsePairs parses [price, size] string pairs as they appear in most
// venue depth payloads. Entries with fewer than two fields are skipped.
func ParsePairs(side domain.Side, pairs [][]string) ([]RawLevel, error) {
	out := make([]RawLevel, 0, len(pairs))
	for _, pr := range pairs {
		if len(pr) < 2 {
			continue
		}
		lv, err := ParseLevel(side, pr[0], pr[1])
		if err != nil {
			return nil, err
		}
		out = append(out, lv)
	}
	return out, nil
}

// Update is one message from a venue, already decoded.
type Update struct {
	Kind   Kind
	Mode   Mode
	Levels []RawLevel
	Time   time.Time
}

// rawLevels tracks venue sizes per grid price, keyed by the raw price.
type rawLevels map[float64]map[string]float64

func (r rawLevels) set(grid float64, raw string, qty float64) float64 {
	m := r[grid]
	if m == nil {
		m = map[string]float64{}
		r[grid] = m
	}
	if qty <= 0 {
		delete(m, raw)
	} else {
		m[raw] = qty
	}
	var sum float64
	for _, q := range m {
		sum += q
	}
	if len(m) == 0 {
		delete(r, grid)
	}
	return sum
}

// Book is the ladder of one source. The owning source is its only
// writer; any goroutine may read a copy through Ladder.
type Book struct {
	grid Grid

	mu      sync.RWMutex
	ladder  domain.Ladder
	raw     [2]rawLevels
	synced  bool
	updated time.Time
}

// New returns an empty, unsynced Book on grid.
func New(grid Grid) *Book {
	return &Book{
		grid:   grid,
		ladder: domain.Ladder{},
		raw:    [2]rawLevels{{}, {}},
	}
}

// Grid returns the grid the book quantizes onto.
func (b *Book) Grid() Grid {
	return b.grid
}

// Apply folds u into the book and reports whether it was applied.
// Incremental updates that arrive before the first snapshot are
// discarded, since there is no base to apply them to.
func (b *Book) Apply(u Update) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch u.Kind {
	case Snapshot:
		ladder := make(domain.Ladder, len(u.Levels))
		raw := [2]rawLevels{{}, {}}
		for _, lv := range u.Levels {
			price := b.grid.QuantizeDecimal(lv.Price)
			qty := lv.Size.InexactFloat64()
			ladder.Add(price, lv.Side, qty)
			if qty > 0 {
				m := raw[lv.Side][price]
				if m == nil {
					m = map[string]float64{}
					raw[lv.Side][price] = m
				}
				m[lv.Price.String()] += qty
			}
		}
		b.ladder, b.raw, b.synced = ladder, raw, true

	case Incremental:
		if !b.synced {
			return false
		}
		for _, lv := range u.Levels {
			price := b.grid.QuantizeDecimal(lv.Price)
			qty := lv.Size.InexactFloat64()
			if u.Mode == Delta {
				b.ladder.Add(price, lv.Side, qty)
				continue
			}
			// Several raw prices can share a grid price, so the grid level
			// is the sum of the venue levels folded into it.
			sum := b.raw[lv.Side].set(price, lv.Price.String(), qty)
			b.ladder.Set(price, lv.Side, sum)
		}

	default:
		return false
	}

	b.updated = u.Time
	if b.updated.IsZero() {
		b.updated = time.Now()
	}
	return true
}

// Reset discards all state. The next incremental update is dropped until
// a snapshot arrives.
func (b *Book) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ladder = domain.Ladder{}
	b.raw = [2]rawLevels{{}, {}}
	b.synced = false
}

// Ladder returns a copy of the current ladder.
func (b *Book) Ladder() domain.Ladder {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ladder.Clone()
}

// Len returns the number of grid prices in the ladder.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.ladder)
}

// Synced reports whether a snapshot has been applied since the last reset.
func (b *Book) Synced() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.synced
}

// Updated returns the time of the last applied update.
func (b *Book) Updated() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.updated
}
