package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"papertraderv1/internal/model"
)

const defaultCoinGeckoBase = "https://api.coingecko.com"

// coinGecko is the fallback source. Its OHLC endpoint has no volume and a
// coarser interval than Binance klines, which is acceptable for a
// last-resort window.
type coinGecko struct {
	base string
	http *http.Client
}

func newCoinGecko(timeout time.Duration) *coinGecko {
	return &coinGecko{
		base: defaultCoinGeckoBase,
		http: &http.Client{Timeout: timeout},
	}
}

func (g *coinGecko) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.base+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coingecko: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// fetchOHLC returns bitcoin OHLC rows ([timestampMs, o, h, l, c]) for the
// last day, converted to candles with zero volume.
func (g *coinGecko) fetchOHLC(ctx context.Context) ([]model.Candle, error) {
	body, err := g.get(ctx, "/api/v3/coins/bitcoin/ohlc?vs_currency=usd&days=1")
	if err != nil {
		return nil, err
	}

	var rows [][]float64
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode coingecko ohlc: %w", err)
	}

	candles := make([]model.Candle, 0, len(rows))
	for i, row := range rows {
		if len(row) < 5 {
			return nil, fmt.Errorf("coingecko ohlc row %d: %d fields", i, len(row))
		}
		candles = append(candles, model.Candle{
			TS:    time.UnixMilli(int64(row[0])).UTC(),
			Open:  row[1],
			High:  row[2],
			Low:   row[3],
			Close: row[4],
		})
	}
	log.Printf("[marketdata] fetched %d candles from coingecko fallback", len(candles))
	return candles, nil
}

// fetchPrice returns the current bitcoin USD price.
func (g *coinGecko) fetchPrice(ctx context.Context) (float64, error) {
	body, err := g.get(ctx, "/api/v3/simple/price?ids=bitcoin&vs_currencies=usd")
	if err != nil {
		return 0, err
	}

	var out map[string]map[string]float64
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, fmt.Errorf("decode coingecko price: %w", err)
	}
	price := out["bitcoin"]["usd"]
	if price <= 0 {
		return 0, fmt.Errorf("coingecko returned no price")
	}
	return price, nil
}
