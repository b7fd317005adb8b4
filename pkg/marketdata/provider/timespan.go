package provider

import (
	"github.com/polygon-io/client-go/rest/models"

	"github.com/stratlab/backsim/pkg/errors"
)

// Timespan is the bar granularity of a fetch, named after the exchange kline
// conventions. Providers translate it to their native request vocabulary.
type Timespan string

const (
	TimespanOneSecond      Timespan = "1s"
	TimespanOneMinute      Timespan = "1m"
	TimespanThreeMinutes   Timespan = "3m"
	TimespanFiveMinutes    Timespan = "5m"
	TimespanFifteenMinutes Timespan = "15m"
	TimespanThirtyMinutes  Timespan = "30m"
	TimespanOneHour        Timespan = "1h"
	TimespanTwoHours       Timespan = "2h"
	TimespanFourHours      Timespan = "4h"
	TimespanSixHours       Timespan = "6h"
	TimespanEightHours     Timespan = "8h"
	TimespanTwelveHours    Timespan = "12h"
	TimespanOneDay         Timespan = "1d"
	TimespanThreeDays      Timespan = "3d"
	TimespanOneWeek        Timespan = "1w"
	TimespanOneMonth       Timespan = "1M"
)

// Validate rejects granularities outside the supported set.
func (t Timespan) Validate() error {
	switch t {
	case TimespanOneSecond, TimespanOneMinute, TimespanThreeMinutes, TimespanFiveMinutes,
		TimespanFifteenMinutes, TimespanThirtyMinutes, TimespanOneHour, TimespanTwoHours,
		TimespanFourHours, TimespanSixHours, TimespanEightHours, TimespanTwelveHours,
		TimespanOneDay, TimespanThreeDays, TimespanOneWeek, TimespanOneMonth:
		return nil
	default:
		return errors.Newf(errors.ErrCodeInvalidInterval, "unsupported timespan: %s", string(t))
	}
}

// BinanceInterval returns the native Binance kline interval string.
// Ref: https://binance-docs.github.io/apidocs/spot/en/#kline-candlestick-data
func (t Timespan) BinanceInterval() (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}

	// The supported set matches Binance's interval vocabulary one for one.
	return string(t), nil
}

// PolygonMultiplier returns the aggregate multiplier for the Polygon aggs
// endpoint.
func (t Timespan) PolygonMultiplier() int {
	switch t {
	case TimespanThreeMinutes:
		return 3
	case TimespanFiveMinutes:
		return 5
	case TimespanFifteenMinutes:
		return 15
	case TimespanThirtyMinutes:
		return 30
	case TimespanTwoHours:
		return 2
	case TimespanFourHours:
		return 4
	case TimespanSixHours:
		return 6
	case TimespanEightHours:
		return 8
	case TimespanTwelveHours:
		return 12
	case TimespanThreeDays:
		return 3
	default:
		return 1
	}
}

// PolygonTimespan returns the aggregate unit for the Polygon aggs endpoint.
func (t Timespan) PolygonTimespan() models.Timespan {
	switch t {
	case TimespanOneSecond:
		return models.Second
	case TimespanOneMinute, TimespanThreeMinutes, TimespanFiveMinutes, TimespanFifteenMinutes, TimespanThirtyMinutes:
		return models.Minute
	case TimespanOneHour, TimespanTwoHours, TimespanFourHours, TimespanSixHours, TimespanEightHours, TimespanTwelveHours:
		return models.Hour
	case TimespanOneDay, TimespanThreeDays:
		return models.Day
	case TimespanOneWeek:
		return models.Week
	case TimespanOneMonth:
		return models.Month
	default:
		return models.Day
	}
}
