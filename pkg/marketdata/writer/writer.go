// Package writer persists fetched bars as parquet archives that the
// simulation's parquet source reads back.
package writer

import (
	"github.com/stratlab/backsim/internal/types"
)

// BarWriter defines the interface for writing fetched bars to a destination.
type BarWriter interface {
	// Initialize sets up the writer, potentially creating tables or files.
	Initialize() error
	// Write stages a single bar.
	Write(bar types.Bar) error
	// Finalize completes the writing process and returns the output path.
	Finalize() (outputPath string, err error)
	// Close releases any resources held by the writer.
	Close() error
	// OutputPath returns the configured output file path.
	OutputPath() string
}
