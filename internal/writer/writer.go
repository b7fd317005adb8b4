// Package writer persists the artifacts of a finished run. Writers consume
// the assembled report in one shot rather than streaming rows, so a run that
// fails mid-flight leaves no partial artifacts behind.
package writer

import (
	"github.com/stratlab/backsim/internal/types"
)

// ResultWriter defines the interface for writing one instrument's run results
// to a destination.
type ResultWriter interface {
	// WriteReport persists the summary report.
	WriteReport(report types.PerformanceReport) error

	// WriteTradeLog persists the executed trades.
	WriteTradeLog(trades []types.Order) error

	// WriteEquityCurve persists the per-bar equity history.
	WriteEquityCurve(curve []types.EquitySample) error

	// Close finalizes the writing process and releases resources.
	Close() error
}
