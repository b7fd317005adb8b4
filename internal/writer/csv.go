package writer

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/stratlab/backsim/internal/types"
)

// CSVWriter implements ResultWriter by writing plain-text artifacts into a
// single directory: trades.csv, equity_curve.csv and report.yaml.
type CSVWriter struct {
	dir        string
	tradesFile *os.File
	tradesCsv  *csv.Writer
}

var _ ResultWriter = (*CSVWriter)(nil)

// NewCSVWriter creates the output directory and the trade log file inside it.
// The directory may already exist; artifacts from a previous run there are
// truncated.
func NewCSVWriter(dir string) (*CSVWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	tradesFile, err := os.Create(filepath.Join(dir, "trades.csv"))
	if err != nil {
		return nil, fmt.Errorf("failed to create trades file: %w", err)
	}

	writer := &CSVWriter{
		dir:        dir,
		tradesFile: tradesFile,
		tradesCsv:  csv.NewWriter(tradesFile),
	}

	if err := writer.tradesCsv.Write([]string{
		"id", "symbol", "side", "quantity", "fill_price",
		"timestamp", "commission", "realized_pnl", "rationale", "strategy_name",
	}); err != nil {
		tradesFile.Close()

		return nil, fmt.Errorf("failed to write trades header: %w", err)
	}

	return writer, nil
}

// Dir returns the directory the artifacts are written into.
func (w *CSVWriter) Dir() string {
	return w.dir
}

// WriteReport writes the summary report as report.yaml.
func (w *CSVWriter) WriteReport(report types.PerformanceReport) error {
	return types.WriteReport(filepath.Join(w.dir, "report.yaml"), report)
}

// WriteTradeLog appends the executed trades to trades.csv. Trade rows are
// written by hand rather than through gocsv because the realized pnl is
// optional and renders as an empty cell on buys.
func (w *CSVWriter) WriteTradeLog(trades []types.Order) error {
	for _, trade := range trades {
		realized := ""
		if trade.RealizedPnL.IsSome() {
			realized = fmt.Sprintf("%f", trade.RealizedPnL.Unwrap())
		}

		record := []string{
			trade.ID,
			trade.Symbol,
			string(trade.Side),
			fmt.Sprintf("%f", trade.Quantity),
			fmt.Sprintf("%f", trade.FillPrice),
			trade.Timestamp.Format(time.RFC3339),
			fmt.Sprintf("%f", trade.Commission),
			realized,
			trade.Rationale,
			trade.StrategyName,
		}

		if err := w.tradesCsv.Write(record); err != nil {
			return fmt.Errorf("failed to write trade: %w", err)
		}
	}

	w.tradesCsv.Flush()

	return w.tradesCsv.Error()
}

// WriteEquityCurve writes the per-bar equity history as equity_curve.csv.
func (w *CSVWriter) WriteEquityCurve(curve []types.EquitySample) error {
	curveFile, err := os.Create(filepath.Join(w.dir, "equity_curve.csv"))
	if err != nil {
		return fmt.Errorf("failed to create equity curve file: %w", err)
	}
	defer curveFile.Close()

	if err := gocsv.MarshalFile(&curve, curveFile); err != nil {
		return fmt.Errorf("failed to write equity curve: %w", err)
	}

	return nil
}

// Close flushes and closes the trade log.
func (w *CSVWriter) Close() error {
	if w.tradesCsv != nil {
		w.tradesCsv.Flush()
	}

	if w.tradesFile != nil {
		err := w.tradesFile.Close()
		w.tradesFile = nil

		return err
	}

	return nil
}
