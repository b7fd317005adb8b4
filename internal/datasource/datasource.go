// Package datasource supplies time-ordered market bars to the simulation
// driver. A BarSource serves exactly one instrument; multi-instrument runs
// hold one source per instrument. Every implementation guarantees ascending
// timestamps on everything it returns, either by construction (sorted
// ingestion) or by query (ORDER BY time).
package datasource

import (
	"time"

	"github.com/moznion/go-optional"

	"github.com/stratlab/backsim/internal/types"
	"github.com/stratlab/backsim/pkg/errors"
)

// Interval is the bar granularity of a source, named after the exchange
// kline conventions.
type Interval string

const (
	Interval1s  Interval = "1s"
	Interval1m  Interval = "1m"
	Interval3m  Interval = "3m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval2h  Interval = "2h"
	Interval4h  Interval = "4h"
	Interval6h  Interval = "6h"
	Interval8h  Interval = "8h"
	Interval12h Interval = "12h"
	Interval1d  Interval = "1d"
	Interval3d  Interval = "3d"
	Interval1w  Interval = "1w"
	Interval1M  Interval = "1M"
)

// ParseInterval validates a user-supplied interval string.
func ParseInterval(s string) (Interval, error) {
	interval := Interval(s)
	if _, err := interval.Duration(); err != nil {
		return "", err
	}

	return interval, nil
}

// Duration returns the nominal bar spacing. Weeks count as seven days and
// months as thirty; callers that need calendar-exact months must not derive
// them from this.
func (i Interval) Duration() (time.Duration, error) {
	switch i {
	case Interval1s:
		return time.Second, nil
	case Interval1m:
		return time.Minute, nil
	case Interval3m:
		return 3 * time.Minute, nil
	case Interval5m:
		return 5 * time.Minute, nil
	case Interval15m:
		return 15 * time.Minute, nil
	case Interval30m:
		return 30 * time.Minute, nil
	case Interval1h:
		return time.Hour, nil
	case Interval2h:
		return 2 * time.Hour, nil
	case Interval4h:
		return 4 * time.Hour, nil
	case Interval6h:
		return 6 * time.Hour, nil
	case Interval8h:
		return 8 * time.Hour, nil
	case Interval12h:
		return 12 * time.Hour, nil
	case Interval1d:
		return 24 * time.Hour, nil
	case Interval3d:
		return 72 * time.Hour, nil
	case Interval1w:
		return 7 * 24 * time.Hour, nil
	case Interval1M:
		return 30 * 24 * time.Hour, nil
	default:
		return 0, errors.Newf(errors.ErrCodeInvalidInterval, "unsupported interval: %s", string(i))
	}
}

// BarSource produces the bar sequence of one instrument.
type BarSource interface {
	// Symbol returns the instrument this source serves.
	Symbol() string
	// Bounds returns the timestamps of the first and last available bar.
	Bounds() (start time.Time, end time.Time, err error)
	// Range returns all bars within [start, end], ascending.
	Range(start time.Time, end time.Time) ([]types.Bar, error)
	// Stream yields bars within the optional [start, end] clamp, ascending,
	// one at a time.
	Stream(start optional.Option[time.Time], end optional.Option[time.Time]) func(yield func(types.Bar, error) bool)
	// Count returns the number of bars within the optional [start, end] clamp.
	Count(start optional.Option[time.Time], end optional.Option[time.Time]) (int, error)
	// Close releases any resources held by the source.
	Close() error
}
