// Package binance polls the spot REST depth endpoint. Every response is a
// complete book and replaces the previous one.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jidanzai321/aggregator/internal/book"
	"github.com/jidanzai321/aggregator/internal/domain"
	"github.com/jidanzai321/aggregator/internal/source"
)

// Venue is the configuration name of this adapter.
const Venue = "binance"

// DepthResponse is the body of GET /api/v3/depth.
type DepthResponse struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// ClientConfig configures the depth poller.
type ClientConfig struct {
	BaseURL      string
	PollInterval time.Duration
	// Limit is the number of levels requested per side.
	Limit int
}

// Feed polls the depth of one symbol at a fixed interval.
type Feed struct {
	cfg    ClientConfig
	http   *http.Client
	logger *slog.Logger
}

func NewFeed(cfg ClientConfig, logger *slog.Logger) *Feed {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 100
	}
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &Feed{
		cfg:    cfg,
		http:   &http.Client{Transport: tr, Timeout: 10 * time.Second},
		logger: logger.With(slog.String("component", "binance_rest")),
	}
}

func (f *Feed) Venue() string { return Venue }

// Stream polls until a request fails or ctx is cancelled. A failed
// request ends the stream so the caller clears the book and backs off.
func (f *Feed) Stream(ctx context.Context, symbol string, emit func(book.Update)) error {
	for {
		depth, err := f.Depth(ctx, symbol)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		u, err := depthToUpdate(depth)
		if err != nil {
			return fmt.Errorf("binance: depth %s: %w", symbol, err)
		}
		emit(u)

		timer := time.NewTimer(f.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Depth fetches one depth snapshot.
func (f *Feed) Depth(ctx context.Context, symbol string) (DepthResponse, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("limit", strconv.Itoa(f.cfg.Limit))
	reqURL := f.cfg.BaseURL + "/api/v3/depth?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return DepthResponse{}, fmt.Errorf("binance: build request: %w", err)
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return DepthResponse{}, fmt.Errorf("binance: depth %s: %w", symbol, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return DepthResponse{}, fmt.Errorf("binance: depth %s: %w", symbol, checkHTTPStatus(resp.StatusCode, body))
	}

	var d DepthResponse
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return DepthResponse{}, fmt.Errorf("binance: decode depth %s: %w", symbol, err)
	}
	return d, nil
}

func depthToUpdate(d DepthResponse) (book.Update, error) {
	bids, err := book.ParsePairs(domain.Bid, d.Bids)
	if err != nil {
		return book.Update{}, err
	}
	asks, err := book.ParsePairs(domain.Ask, d.Asks)
	if err != nil {
		return book.Update{}, err
	}
	return book.Update{Kind: book.Snapshot, Levels: append(bids, asks...)}, nil
}

// checkHTTPStatus maps a non-2xx status to a sentinel error. 418 is the
// ban that follows ignored 429s.
func checkHTTPStatus(statusCode int, body []byte) error {
	switch statusCode {
	case http.StatusTooManyRequests, http.StatusTeapot:
		return fmt.Errorf("%w (HTTP %d): %s", domain.ErrRateLimited, statusCode, body)
	case http.StatusBadRequest:
		return fmt.Errorf("%w (HTTP %d): %s", domain.ErrNotFound, statusCode, body)
	default:
		return fmt.Errorf("%w (HTTP %d): %s", domain.ErrBadStatus, statusCode, body)
	}
}

var _ source.Feed = (*Feed)(nil)
