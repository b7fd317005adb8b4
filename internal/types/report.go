package types

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PerformanceReport is the read-only result of one finished run. The ledger
// fills the accounting fields; the metrics calculator fills drawdown, sharpe,
// and volatility from the finished equity curve.
type PerformanceReport struct {
	Instrument     string  `yaml:"instrument" json:"instrument"`
	StrategyName   string  `yaml:"strategy_name" json:"strategy_name"`
	InitialCapital float64 `yaml:"initial_capital" json:"initial_capital"`
	FinalEquity    float64 `yaml:"final_equity" json:"final_equity"`
	TotalReturnPct float64 `yaml:"total_return_pct" json:"total_return_pct"`
	// MaxDrawdownPct is the deepest decline from a running equity peak,
	// reported as a negative percentage.
	MaxDrawdownPct float64 `yaml:"max_drawdown_pct" json:"max_drawdown_pct"`
	SharpeRatio    float64 `yaml:"sharpe_ratio" json:"sharpe_ratio"`
	VolatilityPct  float64 `yaml:"volatility_pct" json:"volatility_pct"`
	TotalTrades    int     `yaml:"total_trades" json:"total_trades"`
	// WinRatePct counts winners among sells only; buys carry no realized
	// outcome and are excluded from both sides of the ratio.
	WinRatePct     float64        `yaml:"win_rate_pct" json:"win_rate_pct"`
	CommissionPaid float64        `yaml:"commission_paid" json:"commission_paid"`
	BarsProcessed  int            `yaml:"bars_processed" json:"bars_processed"`
	EquityCurve    []EquitySample `yaml:"-" json:"-"`
	TradeLog       []Order        `yaml:"-" json:"-"`
}

// CombinedReport aggregates the per-instrument reports of one coordinated
// multi-instrument run. Failed instruments are excluded from the combination
// and recorded under Failures.
type CombinedReport struct {
	RunID            string  `yaml:"run_id" json:"run_id"`
	InitialCapital   float64 `yaml:"initial_capital" json:"initial_capital"`
	TotalFinalEquity float64 `yaml:"total_final_equity" json:"total_final_equity"`
	// CombinedReturnPct treats the succeeded instruments as one pooled book:
	// (sum of final equities - sum of allocations) / sum of allocations.
	CombinedReturnPct float64 `yaml:"combined_return_pct" json:"combined_return_pct"`
	// WeightedReturnPct is the configured-weight average of the instruments'
	// own returns, for comparison against the pooled figure.
	WeightedReturnPct float64                       `yaml:"weighted_return_pct" json:"weighted_return_pct"`
	Reports           map[string]*PerformanceReport `yaml:"reports" json:"reports"`
	Failures          map[string]string             `yaml:"failures,omitempty" json:"failures,omitempty"`
}

// WriteReport writes a performance report to the given path as YAML.
func WriteReport(path string, report PerformanceReport) error {
	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report to file: %w", err)
	}

	return nil
}

// WriteCombinedReport writes a coordinator report to the given path as YAML.
func WriteCombinedReport(path string, report CombinedReport) error {
	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal combined report to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write combined report to file: %w", err)
	}

	return nil
}
