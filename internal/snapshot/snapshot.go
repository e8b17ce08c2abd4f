// Package snapshot builds and represents the immutable point-in-time market
// observation every decision is derived from. A snapshot is created once per
// cycle per symbol, persisted under its id, and never mutated; the feature
// vector and feature-spec fingerprint are frozen into it at build time.
package snapshot

import "encoding/json"

const SchemaVersion = "v3"

// PriceBlock is the OHLCV slice of the low-timeframe bar plus derived
// volatility fields.
type PriceBlock struct {
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
	ATRPct   float64 `json:"atr_pct"`
	MAFast   float64 `json:"ma_fast"`
	MASlow   float64 `json:"ma_slow"`
	RangePct float64 `json:"range_pct"`
}

// LTF is the low-timeframe block the rule policy prices from.
type LTF struct {
	TF    string     `json:"tf"`
	Time  int64      `json:"timestamp"`
	Price PriceBlock `json:"price"`
	Trend string     `json:"trend"`
}

// HTF is one higher-timeframe context block.
type HTF struct {
	Trend  string  `json:"trend"`
	ATRPct float64 `json:"atr_pct"`
	MAFast float64 `json:"ma_fast"`
	MASlow float64 `json:"ma_slow"`
}

// Context carries venue-level observation fields.
type Context struct {
	Exchange    string  `json:"exchange"`
	Session     string  `json:"session"`
	FundingRate float64 `json:"funding_rate"`
}

// Snapshot is the persisted observation document.
type Snapshot struct {
	SchemaVersion string         `json:"schema_version"`
	ID            string         `json:"snapshot_id"`
	Symbol        string         `json:"symbol"`
	Time          int64          `json:"snapshot_time_utc"`
	ObservedAt    int64          `json:"observer_time_utc"`
	LTF           LTF            `json:"ltf"`
	HTF           map[string]HTF `json:"htf"`
	Context       Context        `json:"context"`

	Features       []float64 `json:"features"`
	FeatureVersion string    `json:"feature_version"`
	FeatureHash    string    `json:"feature_hash"`
}

// JSON renders the canonical document form used by the feature mapper and
// the store.
func (s *Snapshot) JSON() []byte {
	raw, err := json.Marshal(s)
	if err != nil {
		// Snapshot contains only plain values; marshal cannot fail.
		panic(err)
	}
	return raw
}

// FromJSON rehydrates a stored snapshot document.
func FromJSON(raw []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
