package sink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"text/tabwriter"

	"github.com/jidanzai321/aggregator/internal/domain"
)

// Terminal renders each snapshot as a depth table.
type Terminal struct {
	mu  sync.Mutex
	out io.Writer
}

func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{out: out}
}

func (t *Terminal) Name() string { return "terminal" }

func (t *Terminal) Emit(_ context.Context, symbol string, snap domain.MarketSnapshot) error {
	var buf bytes.Buffer
	Render(&buf, snap)

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.out.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("terminal: write %s: %w", symbol, err)
	}
	return nil
}

// Render writes snap as an aligned table to w.
func Render(w io.Writer, snap domain.MarketSnapshot) {
	fmt.Fprintf(w, "%s  bid %s  ask %s  mid %s  spread %s  %s\n",
		snap.Symbol, num(snap.BestBid), num(snap.BestAsk), num(snap.Mid), num(snap.Spread),
		snap.Time.Format("15:04:05"))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "price\tbid\task\t")
	for _, b := range snap.Buckets {
		fmt.Fprintf(tw, "%s\t%s\t%s\t\n", num(b.Lower), num(b.Bid), num(b.Ask))
	}
	tw.Flush()
	fmt.Fprintln(w)
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

var _ domain.Sink = (*Terminal)(nil)
