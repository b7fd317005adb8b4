// Package marketdata downloads historical bars from remote archives. The
// client validates requests, picks the configured provider, and guarantees
// ascending timestamps on whatever comes back; everything vendor-specific
// lives in the provider subpackage.
package marketdata

import (
	"context"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/stratlab/backsim/internal/types"
	"github.com/stratlab/backsim/pkg/errors"
	"github.com/stratlab/backsim/pkg/marketdata/provider"
)

// ProviderType selects the remote archive implementation.
type ProviderType string

const (
	ProviderPolygon ProviderType = "polygon"
	ProviderBinance ProviderType = "binance"
)

// Config holds the configuration for the market data client.
type Config struct {
	Provider      ProviderType `validate:"required,oneof=polygon binance"`
	PolygonAPIKey string       `validate:"required_if=Provider polygon"`
}

// FetchParams describes one historical download request.
type FetchParams struct {
	Symbol   string            `validate:"required"`
	Timespan provider.Timespan `validate:"required"`
	Start    time.Time         `validate:"required"`
	End      time.Time         `validate:"required,gtfield=Start"`
}

// Client downloads historical bars from the configured provider.
type Client struct {
	provider provider.Provider
	validate *validator.Validate
}

// NewClient creates a market data client for the configured provider.
func NewClient(config Config) (*Client, error) {
	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidProvider, "invalid market data configuration", err)
	}

	var marketProvider provider.Provider

	switch config.Provider {
	case ProviderBinance:
		marketProvider = provider.NewBinanceProvider()
	case ProviderPolygon:
		polygonProvider, err := provider.NewPolygonProvider(config.PolygonAPIKey)
		if err != nil {
			return nil, err
		}

		marketProvider = polygonProvider
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidProvider, "unsupported provider type: %s", config.Provider)
	}

	return &Client{
		provider: marketProvider,
		validate: validate,
	}, nil
}

// NewClientWithProvider binds the client to an existing provider.
func NewClientWithProvider(marketProvider provider.Provider) (*Client, error) {
	if marketProvider == nil {
		return nil, errors.New(errors.ErrCodeInvalidProvider, "nil market data provider")
	}

	return &Client{
		provider: marketProvider,
		validate: validator.New(),
	}, nil
}

// ProviderName identifies the bound provider.
func (c *Client) ProviderName() string {
	return c.provider.Name()
}

// FetchBars downloads the bars covering [params.Start, params.End] and
// returns them in ascending timestamp order regardless of how the provider
// pages them.
func (c *Client) FetchBars(ctx context.Context, params FetchParams) ([]types.Bar, error) {
	if err := c.validate.Struct(params); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidParameter, "invalid fetch parameters", err)
	}

	if err := params.Timespan.Validate(); err != nil {
		return nil, err
	}

	bars, err := c.provider.FetchBars(ctx, params.Symbol, params.Timespan, params.Start, params.End)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Time.Before(bars[j].Time)
	})

	return bars, nil
}
