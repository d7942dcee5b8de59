package model

import "context"

// ── Port Interfaces ──
// These interfaces decouple the decision engine from concrete collaborators
// (exchange REST client, JSON file store, Redis mirror, SQLite journal).

// CandleSource supplies market data for one symbol. Implementations fail soft:
// FetchCandles returns an empty slice when every provider is down, and callers
// must treat that as "do nothing, do not trade".
type CandleSource interface {
	// FetchCandles returns the most recent fixed-size candle window,
	// oldest first.
	FetchCandles(ctx context.Context) ([]Candle, error)

	// FetchPrice returns a best-effort current price.
	FetchPrice(ctx context.Context) (float64, error)
}

// DocumentStore reads and writes whole JSON documents by name. Documents are
// never patched field-by-field; every mutation rewrites the full document.
type DocumentStore interface {
	// Load unmarshals the named document into out.
	// Returns found=false (and no error) when the document doesn't exist yet.
	Load(name string, out interface{}) (found bool, err error)

	// Save marshals doc and replaces the named document atomically.
	Save(name string, doc interface{}) error
}

// TradeJournal is an append-only audit sink for closed trades, kept separate
// from the document store so history survives document resets.
type TradeJournal interface {
	RecordClose(trade ClosedTrade) error
	Close() error
}
