package provider

import (
	"context"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"

	"github.com/stratlab/backsim/internal/types"
	"github.com/stratlab/backsim/pkg/errors"
)

// polygonPageSize is the aggregate page size requested from Polygon; the
// SDK's iterator follows continuation links past it transparently.
const polygonPageSize = 50000

// PolygonAggsIterator is the iteration surface of the Polygon SDK's
// aggregate listing.
type PolygonAggsIterator interface {
	Next() bool
	Item() models.Agg
	Err() error
}

// PolygonAPIClient is the slice of the Polygon SDK the provider consumes.
type PolygonAPIClient interface {
	ListAggs(ctx context.Context, params *models.ListAggsParams, options ...models.RequestOption) PolygonAggsIterator
}

type polygonAPI struct {
	client *polygon.Client
}

func (c *polygonAPI) ListAggs(ctx context.Context, params *models.ListAggsParams, options ...models.RequestOption) PolygonAggsIterator {
	return c.client.ListAggs(ctx, params, options...)
}

// PolygonProvider downloads historical aggregates from the Polygon REST API.
type PolygonProvider struct {
	api PolygonAPIClient
}

// NewPolygonProvider builds a provider authenticated with the given API key.
func NewPolygonProvider(apiKey string) (*PolygonProvider, error) {
	if apiKey == "" {
		return nil, errors.New(errors.ErrCodeInvalidProvider, "polygon provider requires an api key")
	}

	return &PolygonProvider{
		api: &polygonAPI{client: polygon.New(apiKey)},
	}, nil
}

// NewPolygonProviderWithAPI builds a provider over a custom API client.
func NewPolygonProviderWithAPI(api PolygonAPIClient) *PolygonProvider {
	return &PolygonProvider{api: api}
}

// Name implements Provider.
func (p *PolygonProvider) Name() string {
	return "polygon"
}

// FetchBars implements Provider. Aggregates are requested in ascending order
// and drained through the SDK iterator, which follows pagination on its own.
func (p *PolygonProvider) FetchBars(ctx context.Context, symbol string, timespan Timespan, start time.Time, end time.Time) ([]types.Bar, error) {
	if err := timespan.Validate(); err != nil {
		return nil, err
	}

	//nolint:exhaustruct // third-party struct with many optional fields
	params := models.ListAggsParams{
		Ticker:     symbol,
		Multiplier: timespan.PolygonMultiplier(),
		Timespan:   timespan.PolygonTimespan(),
		From:       models.Millis(start),
		To:         models.Millis(end),
	}.WithLimit(polygonPageSize).WithOrder(models.Asc)

	iter := p.api.ListAggs(ctx, params)

	var bars []types.Bar

	for iter.Next() {
		agg := iter.Item()

		bars = append(bars, types.Bar{
			Symbol: symbol,
			Time:   time.Time(agg.Timestamp).UTC(),
			Open:   agg.Open,
			High:   agg.High,
			Low:    agg.Low,
			Close:  agg.Close,
			Volume: agg.Volume,
		})
	}

	if err := iter.Err(); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err, "failed to list %s aggregates from polygon", symbol)
	}

	return bars, nil
}
