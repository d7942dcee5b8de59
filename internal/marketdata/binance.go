// Package marketdata fetches BTCUSDT candles and prices over Binance's
// public REST API. Several mirror endpoints are tried in order because
// hosting providers routinely get 451-blocked by the primary; CoinGecko
// serves as a last-resort fallback with a coarser window.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"papertraderv1/internal/model"
)

// DefaultEndpoints are the Binance-compatible REST mirrors, tried in order.
var DefaultEndpoints = []string{
	"https://api.binance.com",
	"https://api1.binance.com",
	"https://api2.binance.com",
	"https://api3.binance.com",
	"https://data-api.binance.vision",
}

// Config configures the client.
type Config struct {
	Symbol    string        // e.g. "BTCUSDT"
	Interval  string        // e.g. "5m"
	Limit     int           // candle window size, e.g. 350
	Endpoints []string      // Binance mirrors; DefaultEndpoints when empty
	Timeout   time.Duration // per-request timeout
}

// Client is an HTTP candle/price source. It remembers the last endpoint
// that answered and tries it first on the next call.
type Client struct {
	cfg   Config
	http  *http.Client
	gecko *coinGecko

	mu          sync.Mutex
	lastWorking string
}

// New builds a client. Zero-valued config fields get BTCUSDT/5m/350
// defaults.
func New(cfg Config) *Client {
	if cfg.Symbol == "" {
		cfg.Symbol = "BTCUSDT"
	}
	if cfg.Interval == "" {
		cfg.Interval = "5m"
	}
	if cfg.Limit == 0 {
		cfg.Limit = 350
	}
	if len(cfg.Endpoints) == 0 {
		cfg.Endpoints = DefaultEndpoints
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:   cfg,
		http:  &http.Client{Timeout: cfg.Timeout},
		gecko: newCoinGecko(cfg.Timeout),
	}
}

// endpointsInOrder returns the mirror list with the last working endpoint
// moved to the front.
func (c *Client) endpointsInOrder() []string {
	c.mu.Lock()
	last := c.lastWorking
	c.mu.Unlock()

	if last == "" {
		return c.cfg.Endpoints
	}
	out := make([]string, 0, len(c.cfg.Endpoints))
	out = append(out, last)
	for _, ep := range c.cfg.Endpoints {
		if ep != last {
			out = append(out, ep)
		}
	}
	return out
}

// get tries each mirror until one returns 200, remembering the winner.
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	var lastErr error
	for _, ep := range c.endpointsInOrder() {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep+path+"?"+params.Encode(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			log.Printf("[marketdata] %s: %v", ep, err)
			lastErr = err
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode != http.StatusOK {
			log.Printf("[marketdata] %s returned %d", ep, resp.StatusCode)
			lastErr = fmt.Errorf("%s: status %d", ep, resp.StatusCode)
			continue
		}

		c.mu.Lock()
		c.lastWorking = ep
		c.mu.Unlock()
		return body, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no endpoints configured")
	}
	return nil, fmt.Errorf("all endpoints failed: %w", lastErr)
}

// FetchCandles returns the most recent candle window. Falls back to
// CoinGecko when every Binance mirror fails. Fails soft: total provider
// failure returns an empty slice with no error, which callers read as a
// no-trade tick.
func (c *Client) FetchCandles(ctx context.Context) ([]model.Candle, error) {
	params := url.Values{}
	params.Set("symbol", c.cfg.Symbol)
	params.Set("interval", c.cfg.Interval)
	params.Set("limit", strconv.Itoa(c.cfg.Limit))

	body, err := c.get(ctx, "/api/v3/klines", params)
	if err == nil {
		candles, perr := parseKlines(body)
		if perr == nil && len(candles) > 0 {
			return candles, nil
		}
		if perr != nil {
			log.Printf("[marketdata] kline parse: %v", perr)
		}
	} else {
		log.Printf("[marketdata] klines: %v", err)
	}

	candles, gerr := c.gecko.fetchOHLC(ctx)
	if gerr != nil {
		log.Printf("[marketdata] coingecko fallback: %v", gerr)
		return nil, nil
	}
	return candles, nil
}

// FetchPrice returns the current price, falling back to CoinGecko.
func (c *Client) FetchPrice(ctx context.Context) (float64, error) {
	params := url.Values{}
	params.Set("symbol", c.cfg.Symbol)

	body, err := c.get(ctx, "/api/v3/ticker/price", params)
	if err == nil {
		var ticker struct {
			Price string `json:"price"`
		}
		if jerr := json.Unmarshal(body, &ticker); jerr == nil {
			if p, perr := strconv.ParseFloat(ticker.Price, 64); perr == nil {
				return p, nil
			}
		}
	}

	price, gerr := c.gecko.fetchPrice(ctx)
	if gerr != nil {
		return 0, fmt.Errorf("price unavailable: %w", gerr)
	}
	return price, nil
}

// parseKlines decodes Binance kline arrays. Each row is
// [openTime, open, high, low, close, volume, ...] with the prices quoted
// as strings and the timestamp in epoch milliseconds.
func parseKlines(body []byte) ([]model.Candle, error) {
	var rows [][]json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}

	candles := make([]model.Candle, 0, len(rows))
	for i, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("kline row %d: %d fields", i, len(row))
		}
		var tsMs int64
		if err := json.Unmarshal(row[0], &tsMs); err != nil {
			return nil, fmt.Errorf("kline row %d time: %w", i, err)
		}
		vals := make([]float64, 5)
		for j := 0; j < 5; j++ {
			var s string
			if err := json.Unmarshal(row[j+1], &s); err != nil {
				return nil, fmt.Errorf("kline row %d field %d: %w", i, j+1, err)
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("kline row %d field %d: %w", i, j+1, err)
			}
			vals[j] = v
		}
		candles = append(candles, model.Candle{
			TS:     time.UnixMilli(tsMs).UTC(),
			Open:   vals[0],
			High:   vals[1],
			Low:    vals[2],
			Close:  vals[3],
			Volume: vals[4],
		})
	}
	return candles, nil
}
