package types

import (
	"github.com/shopspring/decimal"
)

// Position represents the current holdings of one instrument. The ledger owns
// exactly one Position per instrument and is the only writer. Short inventory
// does not exist in this model: Quantity never goes below zero.
type Position struct {
	Symbol   string  `yaml:"symbol" json:"symbol" csv:"symbol"`
	Quantity float64 `yaml:"quantity" json:"quantity" csv:"quantity"`
	// AverageEntryPrice is the cash-weighted cost basis of the open quantity.
	// It resets to zero whenever the position is fully closed so a stale
	// basis cannot leak into a new lot.
	AverageEntryPrice float64 `yaml:"average_entry_price" json:"average_entry_price" csv:"average_entry_price"`
	// RealizedPnL accumulates profit locked in by sells, net of commission.
	RealizedPnL float64 `yaml:"realized_pnl" json:"realized_pnl" csv:"realized_pnl"`
	// UnrealizedPnL is refreshed by every mark to market.
	UnrealizedPnL float64 `yaml:"unrealized_pnl" json:"unrealized_pnl" csv:"unrealized_pnl"`
	// LastPrice is the most recent price this position was marked at.
	LastPrice float64 `yaml:"last_price" json:"last_price" csv:"last_price"`
}

// MarketValue returns the position's worth at its last marked price.
func (p *Position) MarketValue() float64 {
	value, _ := decimal.NewFromFloat(p.Quantity).Mul(decimal.NewFromFloat(p.LastPrice)).Float64()

	return value
}

// TotalPnL returns realized plus unrealized profit and loss.
func (p *Position) TotalPnL() float64 {
	total, _ := decimal.NewFromFloat(p.RealizedPnL).Add(decimal.NewFromFloat(p.UnrealizedPnL)).Float64()

	return total
}
