package provider

import (
	"context"
	"strconv"
	"time"

	binance "github.com/adshao/go-binance/v2"

	"github.com/stratlab/backsim/internal/types"
	"github.com/stratlab/backsim/pkg/errors"
)

// binancePageSize is the kline page cap the exchange enforces per request.
const binancePageSize = 500

// BinanceKlinesService is the kline query surface of the Binance SDK the
// provider drives. The SDK's builder is wrapped behind this so tests can
// substitute the exchange.
type BinanceKlinesService interface {
	Symbol(symbol string) BinanceKlinesService
	Interval(interval string) BinanceKlinesService
	StartTime(startTime int64) BinanceKlinesService
	EndTime(endTime int64) BinanceKlinesService
	Limit(limit int) BinanceKlinesService
	Do(ctx context.Context, opts ...binance.RequestOption) ([]*binance.Kline, error)
}

// BinanceAPIClient is the slice of the Binance SDK the provider consumes.
type BinanceAPIClient interface {
	NewKlinesService() BinanceKlinesService
}

type binanceKlinesService struct {
	svc *binance.KlinesService
}

func (s *binanceKlinesService) Symbol(symbol string) BinanceKlinesService {
	s.svc = s.svc.Symbol(symbol)
	return s
}

func (s *binanceKlinesService) Interval(interval string) BinanceKlinesService {
	s.svc = s.svc.Interval(interval)
	return s
}

func (s *binanceKlinesService) StartTime(startTime int64) BinanceKlinesService {
	s.svc = s.svc.StartTime(startTime)
	return s
}

func (s *binanceKlinesService) EndTime(endTime int64) BinanceKlinesService {
	s.svc = s.svc.EndTime(endTime)
	return s
}

func (s *binanceKlinesService) Limit(limit int) BinanceKlinesService {
	s.svc = s.svc.Limit(limit)
	return s
}

func (s *binanceKlinesService) Do(ctx context.Context, opts ...binance.RequestOption) ([]*binance.Kline, error) {
	return s.svc.Do(ctx, opts...)
}

type binanceAPI struct {
	client *binance.Client
}

func (c *binanceAPI) NewKlinesService() BinanceKlinesService {
	return &binanceKlinesService{svc: c.client.NewKlinesService()}
}

// BinanceProvider downloads historical klines from the Binance spot API.
// Historical klines need no API key.
type BinanceProvider struct {
	api BinanceAPIClient
}

// NewBinanceProvider builds a provider over the public Binance endpoint.
func NewBinanceProvider() *BinanceProvider {
	return &BinanceProvider{
		api: &binanceAPI{client: binance.NewClient("", "")},
	}
}

// NewBinanceProviderWithBaseURL points the provider at an alternative
// endpoint, such as a local stand-in exchange.
func NewBinanceProviderWithBaseURL(baseURL string) *BinanceProvider {
	client := binance.NewClient("", "")
	client.BaseURL = baseURL

	return &BinanceProvider{
		api: &binanceAPI{client: client},
	}
}

// NewBinanceProviderWithAPI builds a provider over a custom API client.
func NewBinanceProviderWithAPI(api BinanceAPIClient) *BinanceProvider {
	return &BinanceProvider{api: api}
}

// Name implements Provider.
func (p *BinanceProvider) Name() string {
	return "binance"
}

// FetchBars implements Provider. The exchange caps a response at 500 klines,
// so the request is paged: the cursor advances to the last kline's close
// time plus one millisecond until a short page signals the end of the range.
func (p *BinanceProvider) FetchBars(ctx context.Context, symbol string, timespan Timespan, start time.Time, end time.Time) ([]types.Bar, error) {
	interval, err := timespan.BinanceInterval()
	if err != nil {
		return nil, err
	}

	endMillis := end.UnixMilli()
	cursor := start.UnixMilli()

	var bars []types.Bar

	for cursor <= endMillis {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err, "binance fetch for %s interrupted", symbol)
		}

		klines, err := p.api.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(cursor).
			EndTime(endMillis).
			Limit(binancePageSize).
			Do(ctx)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err, "failed to fetch %s klines from binance", symbol)
		}

		if len(klines) == 0 {
			break
		}

		page, err := klinesToBars(symbol, klines)
		if err != nil {
			return nil, err
		}

		bars = append(bars, page...)

		if len(klines) < binancePageSize {
			break
		}

		// The close time of the last kline + 1ms avoids refetching it.
		cursor = klines[len(klines)-1].CloseTime + 1
	}

	return bars, nil
}

func klinesToBars(symbol string, klines []*binance.Kline) ([]types.Bar, error) {
	bars := make([]types.Bar, 0, len(klines))

	for _, kline := range klines {
		bar, err := klineToBar(symbol, kline)
		if err != nil {
			return nil, err
		}

		bars = append(bars, bar)
	}

	return bars, nil
}

// klineToBar converts one kline, using its open time as the bar timestamp.
func klineToBar(symbol string, kline *binance.Kline) (types.Bar, error) {
	var parseErr error

	parse := func(field string, raw string) float64 {
		if parseErr != nil {
			return 0
		}

		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			parseErr = errors.Wrapf(errors.ErrCodeMarketDataParseFailed, err, "unparsable kline %s %q", field, raw)
		}

		return value
	}

	bar := types.Bar{
		Symbol: symbol,
		Time:   time.UnixMilli(kline.OpenTime).UTC(),
		Open:   parse("open", kline.Open),
		High:   parse("high", kline.High),
		Low:    parse("low", kline.Low),
		Close:  parse("close", kline.Close),
		Volume: parse("volume", kline.Volume),
	}

	if parseErr != nil {
		return types.Bar{}, parseErr
	}

	return bar, nil
}
