// Package provider implements the remote archives historical bars are
// downloaded from. Each provider translates one vendor's API into plain
// bars; paging, rate ceilings, and response parsing stay behind this
// boundary.
package provider

import (
	"context"
	"time"

	"github.com/stratlab/backsim/internal/types"
)

// Provider downloads historical bars from one remote archive.
type Provider interface {
	// Name identifies the provider in logs and errors.
	Name() string
	// FetchBars downloads the bars covering [start, end] at the given
	// granularity. Providers may return bars in any order; the client
	// sorts. The context cancels an in-flight download.
	FetchBars(ctx context.Context, symbol string, timespan Timespan, start time.Time, end time.Time) ([]types.Bar, error)
}
