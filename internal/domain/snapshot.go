package domain

import "time"

// Bucket is the merged depth folded into one price bin. Lower is the
// inclusive lower edge of the bin.
type Bucket struct {
	Lower float64 `json:"lower"`
	Bid   float64 `json:"bid"`
	Ask   float64 `json:"ask"`
}

// MarketSnapshot is the derived cross-venue view of one symbol for one
// merge cycle. Buckets are ordered by descending price.
type MarketSnapshot struct {
	Symbol  string    `json:"symbol"`
	BestBid float64   `json:"best_bid"`
	BestAsk float64   `json:"best_ask"`
	Mid     float64   `json:"mid"`
	Spread  float64   `json:"spread"`
	Low     float64   `json:"low"`
	High    float64   `json:"high"`
	Buckets []Bucket  `json:"buckets"`
	Sources []string  `json:"sources,omitempty"`
	Time    time.Time `json:"time"`
}
