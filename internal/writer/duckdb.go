package writer

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"

	"github.com/stratlab/backsim/internal/types"
)

// DuckDBWriter implements ResultWriter by staging rows in an embedded DuckDB
// instance and exporting each artifact as a parquet file. The summary report
// stays as report.yaml; parquet is for the tabular artifacts that get loaded
// back into analysis tools.
type DuckDBWriter struct {
	db  *sql.DB
	dir string
	sq  squirrel.StatementBuilderType
}

var _ ResultWriter = (*DuckDBWriter)(nil)

// NewDuckDBWriter creates the output directory and an in-memory staging
// database holding the trades and equity_curve tables.
func NewDuckDBWriter(dir string) (*DuckDBWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			id TEXT,
			symbol TEXT,
			side TEXT,
			quantity DOUBLE,
			fill_price DOUBLE,
			timestamp TIMESTAMP,
			commission DOUBLE,
			realized_pnl DOUBLE,
			rationale TEXT,
			strategy_name TEXT
		)
	`); err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to create trades table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS equity_curve (
			timestamp TIMESTAMP,
			cash DOUBLE,
			market_value DOUBLE,
			total_equity DOUBLE,
			unrealized_pnl DOUBLE,
			return_pct DOUBLE
		)
	`); err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to create equity_curve table: %w", err)
	}

	return &DuckDBWriter{
		db:  db,
		dir: dir,
		sq:  squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}, nil
}

// Dir returns the directory the artifacts are written into.
func (w *DuckDBWriter) Dir() string {
	return w.dir
}

// WriteReport writes the summary report as report.yaml.
func (w *DuckDBWriter) WriteReport(report types.PerformanceReport) error {
	return types.WriteReport(filepath.Join(w.dir, "report.yaml"), report)
}

// WriteTradeLog stages the executed trades and exports trades.parquet.
func (w *DuckDBWriter) WriteTradeLog(trades []types.Order) error {
	rows := make([][]interface{}, 0, len(trades))

	for _, trade := range trades {
		// nil realized pnl becomes a NULL cell on buys.
		var realized interface{}
		if trade.RealizedPnL.IsSome() {
			realized = trade.RealizedPnL.Unwrap()
		}

		rows = append(rows, []interface{}{
			trade.ID,
			trade.Symbol,
			string(trade.Side),
			trade.Quantity,
			trade.FillPrice,
			trade.Timestamp,
			trade.Commission,
			realized,
			trade.Rationale,
			trade.StrategyName,
		})
	}

	columns := []string{
		"id", "symbol", "side", "quantity", "fill_price",
		"timestamp", "commission", "realized_pnl", "rationale", "strategy_name",
	}

	if err := w.insertRows("trades", columns, rows); err != nil {
		return err
	}

	return w.export("trades")
}

// WriteEquityCurve stages the equity history and exports equity_curve.parquet.
func (w *DuckDBWriter) WriteEquityCurve(curve []types.EquitySample) error {
	rows := make([][]interface{}, 0, len(curve))

	for _, sample := range curve {
		rows = append(rows, []interface{}{
			sample.Timestamp,
			sample.Cash,
			sample.MarketValue,
			sample.TotalEquity,
			sample.UnrealizedPnL,
			sample.ReturnPct,
		})
	}

	columns := []string{
		"timestamp", "cash", "market_value", "total_equity",
		"unrealized_pnl", "return_pct",
	}

	if err := w.insertRows("equity_curve", columns, rows); err != nil {
		return err
	}

	return w.export("equity_curve")
}

// insertRows inserts all rows in one transaction through a statement prepared
// once. The builder only shapes the statement; every row binds its own args.
func (w *DuckDBWriter) insertRows(table string, columns []string, rows [][]interface{}) error {
	if w.db == nil {
		return fmt.Errorf("writer is closed")
	}

	if len(rows) == 0 {
		return nil
	}

	query, _, err := w.sq.Insert(table).Columns(columns...).Values(rows[0]...).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert for %s: %w", table, err)
	}

	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.Prepare(query)
	if err != nil {
		tx.Rollback()

		return fmt.Errorf("failed to prepare insert for %s: %w", table, err)
	}

	for _, row := range rows {
		if _, err := stmt.Exec(row...); err != nil {
			stmt.Close()
			tx.Rollback()

			return fmt.Errorf("failed to insert into %s: %w", table, err)
		}
	}

	if err := stmt.Close(); err != nil {
		tx.Rollback()

		return fmt.Errorf("failed to close insert statement: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s rows: %w", table, err)
	}

	return nil
}

// export copies a staged table to <dir>/<table>.parquet. An empty table still
// exports, so every run produces the same artifact set.
func (w *DuckDBWriter) export(table string) error {
	if w.db == nil {
		return fmt.Errorf("writer is closed")
	}

	path := filepath.Join(w.dir, table+".parquet")

	// COPY takes no placeholders, so the path is inlined.
	if _, err := w.db.Exec(fmt.Sprintf(`COPY %s TO '%s' (FORMAT PARQUET)`, table, path)); err != nil {
		return fmt.Errorf("failed to export %s to parquet: %w", table, err)
	}

	return nil
}

// Close releases the staging database.
func (w *DuckDBWriter) Close() error {
	if w.db != nil {
		err := w.db.Close()
		w.db = nil

		return err
	}

	return nil
}
