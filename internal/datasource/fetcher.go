package datasource

import (
	"context"
	"time"

	"github.com/stratlab/backsim/internal/types"
	"github.com/stratlab/backsim/pkg/marketdata"
	"github.com/stratlab/backsim/pkg/marketdata/provider"
)

// ProviderFetcher adapts the market data client to the BarFetcher interface
// the archive source consumes. Interval names match the provider timespan
// vocabulary one for one, so the translation is a cast.
type ProviderFetcher struct {
	Client *marketdata.Client
}

// FetchBars implements BarFetcher.
func (f ProviderFetcher) FetchBars(ctx context.Context, symbol string, interval Interval, start time.Time, end time.Time) ([]types.Bar, error) {
	return f.Client.FetchBars(ctx, marketdata.FetchParams{
		Symbol:   symbol,
		Timespan: provider.Timespan(interval),
		Start:    start,
		End:      end,
	})
}
