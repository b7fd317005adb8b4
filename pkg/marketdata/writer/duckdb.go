package writer

import (
	"database/sql"
	"fmt"

	_ "github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"

	"github.com/stratlab/backsim/internal/logger"
	"github.com/stratlab/backsim/internal/types"
)

// ParquetBarWriter implements BarWriter by staging bars in an in-memory
// DuckDB instance and exporting a single parquet file on Finalize. The
// column layout matches what the simulation's parquet source reads back:
// time, symbol, open, high, low, close, volume.
type ParquetBarWriter struct {
	db         *sql.DB
	tx         *sql.Tx
	stmt       *sql.Stmt
	outputPath string
	log        *logger.Logger
}

var _ BarWriter = (*ParquetBarWriter)(nil)

// NewParquetBarWriter creates a writer targeting the given parquet file path.
func NewParquetBarWriter(outputPath string, l *logger.Logger) *ParquetBarWriter {
	if l == nil {
		l = logger.NewNopLogger()
	}

	return &ParquetBarWriter{
		outputPath: outputPath,
		log:        l,
	}
}

// Initialize opens the staging database, creates the bars table, begins a
// transaction, and prepares the insert statement.
func (w *ParquetBarWriter) Initialize() (err error) {
	w.db, err = sql.Open("duckdb", ":memory:")
	if err != nil {
		return fmt.Errorf("failed to open duckdb connection: %w", err)
	}

	_, err = w.db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			time TIMESTAMP,
			symbol TEXT,
			open DOUBLE,
			high DOUBLE,
			low DOUBLE,
			close DOUBLE,
			volume DOUBLE
		)
	`)
	if err != nil {
		w.db.Close()

		return fmt.Errorf("failed to create bars table: %w", err)
	}

	w.tx, err = w.db.Begin()
	if err != nil {
		w.db.Close()

		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	w.stmt, err = w.tx.Prepare(`
		INSERT INTO bars (time, symbol, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		w.tx.Rollback()
		w.db.Close()

		return fmt.Errorf("failed to prepare statement: %w", err)
	}

	return nil
}

// Write stages a single bar inside the open transaction.
func (w *ParquetBarWriter) Write(bar types.Bar) error {
	if w.stmt == nil {
		return fmt.Errorf("writer not initialized or statement is nil")
	}

	_, err := w.stmt.Exec(
		bar.Time,
		bar.Symbol,
		bar.Open,
		bar.High,
		bar.Low,
		bar.Close,
		bar.Volume,
	)
	if err != nil {
		return fmt.Errorf("failed to insert bar: %w", err)
	}

	return nil
}

// Finalize commits the staged bars and exports them as a parquet file.
func (w *ParquetBarWriter) Finalize() (outputPath string, err error) {
	if w.tx == nil {
		return "", fmt.Errorf("writer not initialized or transaction is nil")
	}

	if err = w.tx.Commit(); err != nil {
		w.tx.Rollback()

		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}

	w.tx = nil

	// COPY takes no placeholders, so the path is inlined.
	_, err = w.db.Exec(fmt.Sprintf(`COPY bars TO '%s' (FORMAT PARQUET)`, w.outputPath))
	if err != nil {
		return "", fmt.Errorf("failed to export to parquet: %w", err)
	}

	w.log.Debug("exported bars to parquet", zap.String("path", w.outputPath))

	return w.outputPath, nil
}

// Close releases the statement, any open transaction, and the database
// connection. A transaction still open here means Finalize never ran, so its
// staged rows are discarded.
func (w *ParquetBarWriter) Close() error {
	var closeErrors []error

	if w.stmt != nil {
		if err := w.stmt.Close(); err != nil {
			closeErrors = append(closeErrors, fmt.Errorf("failed to close statement: %w", err))
		}

		w.stmt = nil
	}

	if w.tx != nil {
		if err := w.tx.Rollback(); err != nil {
			w.log.Warn("failed to rollback transaction during close", zap.Error(err))
		}

		w.tx = nil
	}

	if w.db != nil {
		if err := w.db.Close(); err != nil {
			closeErrors = append(closeErrors, fmt.Errorf("failed to close db connection: %w", err))
		}

		w.db = nil
	}

	if len(closeErrors) > 0 {
		errMsg := "errors occurred during close:"
		for _, e := range closeErrors {
			errMsg += fmt.Sprintf("\n- %v", e)
		}

		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

// OutputPath returns the configured output file path.
func (w *ParquetBarWriter) OutputPath() string {
	return w.outputPath
}
