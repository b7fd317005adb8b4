package types

import (
	"time"
)

// EquitySample is one point of the portfolio's equity history. The ledger
// appends exactly one sample per processed bar, in timestamp order, and never
// mutates a sample afterwards: the slice is the append-only audit trail the
// metrics calculator reduces over.
type EquitySample struct {
	Timestamp   time.Time `yaml:"timestamp" json:"timestamp" csv:"timestamp"`
	Cash        float64   `yaml:"cash" json:"cash" csv:"cash"`
	MarketValue float64   `yaml:"market_value" json:"market_value" csv:"market_value"`
	TotalEquity float64   `yaml:"total_equity" json:"total_equity" csv:"total_equity"`
	// UnrealizedPnL is the sum over open positions at this sample's prices.
	UnrealizedPnL float64 `yaml:"unrealized_pnl" json:"unrealized_pnl" csv:"unrealized_pnl"`
	// ReturnPct is total equity relative to initial capital, in percent.
	ReturnPct float64 `yaml:"return_pct" json:"return_pct" csv:"return_pct"`
}
