package dydx

import (
	"encoding/json"
	"fmt"

	"github.com/jidanzai321/aggregator/internal/book"
	"github.com/jidanzai321/aggregator/internal/domain"
)

// Message is the envelope of every indexer frame.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Channel   string          `json:"channel"`
	MessageID int             `json:"message_id"`
	Message   string          `json:"message"`
	Contents  json.RawMessage `json:"contents"`
}

// Entry is a level of the initial book.
type Entry struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// SubscribedContents is the full book sent once after subscribing.
type SubscribedContents struct {
	Bids []Entry `json:"bids"`
	Asks []Entry `json:"asks"`
}

// UpdateContents carries changed levels as [price, size] pairs. Sizes are
// absolute; "0" removes the level.
type UpdateContents struct {
	Bids [][]string `json:"bids"`
	Asks [][]string `json:"asks"`
}

type subscribeCmd struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	ID      string `json:"id"`
}

func (c SubscribedContents) toUpdate() (book.Update, error) {
	levels := make([]book.RawLevel, 0, len(c.Bids)+len(c.Asks))
	for _, e := range c.Bids {
		rl, err := book.ParseLevel(domain.Bid, e.Price, e.Size)
		if err != nil {
			return book.Update{}, err
		}
		levels = append(levels, rl)
	}
	for _, e := range c.Asks {
		rl, err := book.ParseLevel(domain.Ask, e.Price, e.Size)
		if err != nil {
			return book.Update{}, err
		}
		levels = append(levels, rl)
	}
	return book.Update{Kind: book.Snapshot, Levels: levels}, nil
}

func (c UpdateContents) toUpdate() (book.Update, error) {
	bids, err := book.ParsePairs(domain.Bid, c.Bids)
	if err != nil {
		return book.Update{}, err
	}
	asks, err := book.ParsePairs(domain.Ask, c.Asks)
	if err != nil {
		return book.Update{}, err
	}
	return book.Update{
		Kind:   book.Incremental,
		Mode:   book.Absolute,
		Levels: append(bids, asks...),
	}, nil
}

// parseMessage decodes one frame. ok is false for frames that carry no
// book data.
func parseMessage(raw []byte, market string) (u book.Update, ok bool, err error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return book.Update{}, false, fmt.Errorf("dydx: decode frame: %w", err)
	}

	switch m.Type {
	case "connected", "unsubscribed":
		return book.Update{}, false, nil
	case "error":
		return book.Update{}, false, fmt.Errorf("dydx: server error: %s", m.Message)
	case "subscribed":
		if m.ID != market {
			return book.Update{}, false, nil
		}
		var c SubscribedContents
		if err := json.Unmarshal(m.Contents, &c); err != nil {
			return book.Update{}, false, fmt.Errorf("dydx: decode subscribed: %w", err)
		}
		u, err = c.toUpdate()
	case "channel_data":
		if m.ID != market {
			return book.Update{}, false, nil
		}
		var c UpdateContents
		if err := json.Unmarshal(m.Contents, &c); err != nil {
			return book.Update{}, false, fmt.Errorf("dydx: decode channel_data: %w", err)
		}
		u, err = c.toUpdate()
	default:
		return book.Update{}, false, fmt.Errorf("dydx: unexpected message type: %s", m.Type)
	}
	if err != nil {
		return book.Update{}, false, fmt.Errorf("dydx: %s: %w", market, err)
	}
	return u, true, nil
}
