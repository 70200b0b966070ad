package models

// OhlcCandle summarises one UTC calendar day of prices for a token.
type OhlcCandle struct {
	Open              int64 `json:"open"`
	High              int64 `json:"high"`
	Low               int64 `json:"low"`
	Close             int64 `json:"close"`
	DayStartTimestamp int64 `json:"dayStartTimestamp"` // unix ms, 00:00 UTC
}

// PricePoint is an immutable history entry.
type PricePoint struct {
	Timestamp int64 `json:"timestamp"` // unix ms
	Price     int64 `json:"price"`
}

// MaxHistory bounds the per-token price history.
const MaxHistory = 1000

// TokenPriceState is the per-token aggregate owned by the candle store.
// Values handed out by the store are copies.
type TokenPriceState struct {
	LastPrice           int64        `json:"lastPrice"`
	LastChangeTimestamp int64        `json:"lastChangeTimestamp"`
	Ohlc                OhlcCandle   `json:"ohlc"`
	History             []PricePoint `json:"history"`
	// Seq grows by one on every write so persisted copies can be ordered.
	Seq uint64 `json:"seq"`
}

// Fresh reports whether no price was ever recorded for the token.
func (s TokenPriceState) Fresh() bool {
	return s.LastPrice <= 0
}

// Quote returns the {price, ohlc} view of the state.
func (s TokenPriceState) Quote() TokenQuote {
	return TokenQuote{Price: s.LastPrice, Ohlc: s.Ohlc}
}

// PriceBreakdown explains how a price was derived.
type PriceBreakdown struct {
	Base             int64   `json:"base"`
	EngagementChange float64 `json:"engagementChange"`
	Boost            float64 `json:"boost"`
	DropFloor        int64   `json:"dropFloor"`
	DropClamped      bool    `json:"dropClamped"`
	StagnationFactor float64 `json:"stagnationFactor"`
	MinClamped       bool    `json:"minClamped"`
}

// PriceResult is the outcome of one price computation for one token.
// Skipped is set when the engagement snapshot was unavailable.
type PriceResult struct {
	TokenID             string
	Price               int64
	Changed             bool
	Skipped             bool
	LastChangeTimestamp int64
	Timestamp           int64 // unix ms of the computation
	Breakdown           PriceBreakdown
}

// TokenQuote is the {price, ohlc} pair served by read endpoints.
type TokenQuote struct {
	Price int64      `json:"price"`
	Ohlc  OhlcCandle `json:"ohlc"`
}
