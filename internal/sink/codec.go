package sink

import (
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jidanzai321/aggregator/internal/domain"
)

// Encoding selects the wire format of published snapshots.
type Encoding string

const (
	EncodingJSON  Encoding = "json"
	EncodingProto Encoding = "proto"
)

// Channel returns the pub/sub channel of symbol.
func Channel(prefix, symbol string) string {
	return prefix + symbol
}

// Encode serializes snap. The proto form is a google.protobuf.Struct with
// the same field names as the JSON form.
func Encode(enc Encoding, snap domain.MarketSnapshot) ([]byte, error) {
	switch enc {
	case EncodingJSON, "":
		data, err := json.Marshal(snap)
		if err != nil {
			return nil, fmt.Errorf("codec: marshal json: %w", err)
		}
		return data, nil
	case EncodingProto:
		st, err := toStruct(snap)
		if err != nil {
			return nil, fmt.Errorf("codec: build struct: %w", err)
		}
		data, err := proto.Marshal(st)
		if err != nil {
			return nil, fmt.Errorf("codec: marshal proto: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("codec: unknown encoding %q", enc)
	}
}

// ContentType returns the MIME type of enc.
func ContentType(enc Encoding) string {
	if enc == EncodingProto {
		return "application/x-protobuf"
	}
	return "application/json"
}

func toStruct(snap domain.MarketSnapshot) (*structpb.Struct, error) {
	buckets := make([]any, len(snap.Buckets))
	for i, b := range snap.Buckets {
		buckets[i] = map[string]any{"lower": b.Lower, "bid": b.Bid, "ask": b.Ask}
	}
	sources := make([]any, len(snap.Sources))
	for i, s := range snap.Sources {
		sources[i] = s
	}
	return structpb.NewStruct(map[string]any{
		"symbol":   snap.Symbol,
		"best_bid": snap.BestBid,
		"best_ask": snap.BestAsk,
		"mid":      snap.Mid,
		"spread":   snap.Spread,
		"low":      snap.Low,
		"high":     snap.High,
		"buckets":  buckets,
		"sources":  sources,
		"time":     snap.Time.Format(time.RFC3339Nano),
	})
}
