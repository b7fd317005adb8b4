package datasource

import (
	"context"
	"time"

	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/stratlab/backsim/internal/logger"
	"github.com/stratlab/backsim/internal/types"
	"github.com/stratlab/backsim/pkg/errors"
)

// BarFetcher retrieves bars from a remote provider. ProviderFetcher adapts
// pkg/marketdata's client to it.
type BarFetcher interface {
	FetchBars(ctx context.Context, symbol string, interval Interval, start time.Time, end time.Time) ([]types.Bar, error)
}

const (
	defaultMaxAttempts = 3
	defaultRetryDelay  = 500 * time.Millisecond
)

// ArchiveSource serves bars from an in-memory cache and fills missing
// sub-ranges from a remote fetcher on demand. It exists for chunked runs
// over ranges too large to download up front: each window transition asks
// for just that window, and already-covered spans are never re-fetched.
//
// Range triggers the fill; Stream, Count and Bounds only see what the cache
// already holds.
type ArchiveSource struct {
	cache    *MemorySource
	fetcher  BarFetcher
	interval Interval
	logger   *logger.Logger

	maxAttempts int
	retryDelay  time.Duration

	// Closed-interval spans already requested from the fetcher, kept
	// merged and sorted. Coverage is tracked by request, not by returned
	// bars, so a legitimately empty span is not re-fetched forever.
	covered []span
}

type span struct {
	start time.Time
	end   time.Time
}

// NewArchiveSource builds an archive for one instrument at the given
// granularity.
func NewArchiveSource(symbol string, interval Interval, fetcher BarFetcher, l *logger.Logger) (*ArchiveSource, error) {
	if fetcher == nil {
		return nil, errors.New(errors.ErrCodeInvalidParameter, "archive source requires a fetcher")
	}

	if _, err := interval.Duration(); err != nil {
		return nil, err
	}

	if l == nil {
		l = logger.NewNopLogger()
	}

	cache, err := NewMemorySource(symbol, nil)
	if err != nil {
		return nil, err
	}

	return &ArchiveSource{
		cache:       cache,
		fetcher:     fetcher,
		interval:    interval,
		logger:      l,
		maxAttempts: defaultMaxAttempts,
		retryDelay:  defaultRetryDelay,
	}, nil
}

// Interval returns the bar granularity the archive fetches at.
func (a *ArchiveSource) Interval() Interval {
	return a.interval
}

// EnsureRange fetches any part of [start, end] not yet requested and merges
// the results into the cache. Transient fetcher failures are retried a
// bounded number of times before the call fails.
func (a *ArchiveSource) EnsureRange(ctx context.Context, start time.Time, end time.Time) error {
	if end.Before(start) {
		return errors.Newf(errors.ErrCodeInvalidParameter, "range end %s precedes start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	for _, gap := range a.missingSpans(start, end) {
		bars, err := a.fetchWithRetry(ctx, gap.start, gap.end)
		if err != nil {
			return err
		}

		if err := a.cache.Append(bars...); err != nil {
			return err
		}

		a.markCovered(gap)
		a.logger.Debug("archive gap filled",
			zap.String("symbol", a.cache.Symbol()),
			zap.Time("start", gap.start),
			zap.Time("end", gap.end),
			zap.Int("bars", len(bars)))
	}

	return nil
}

func (a *ArchiveSource) fetchWithRetry(ctx context.Context, start time.Time, end time.Time) ([]types.Bar, error) {
	var lastErr error

	delay := a.retryDelay

	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		bars, err := a.fetcher.FetchBars(ctx, a.cache.Symbol(), a.interval, start, end)
		if err == nil {
			return bars, nil
		}

		lastErr = err
		a.logger.Warn("archive fetch attempt failed",
			zap.String("symbol", a.cache.Symbol()),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if attempt == a.maxAttempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()

			return nil, errors.Wrap(errors.ErrCodeRunCancelled, "archive fetch cancelled", ctx.Err())
		case <-timer.C:
		}

		delay *= 2
	}

	return nil, errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, lastErr, "failed to fetch %s bars after %d attempts", a.cache.Symbol(), a.maxAttempts)
}

// missingSpans returns the parts of [start, end] not yet requested.
func (a *ArchiveSource) missingSpans(start time.Time, end time.Time) []span {
	gaps := []span{{start: start, end: end}}

	for _, c := range a.covered {
		next := make([]span, 0, len(gaps))

		for _, g := range gaps {
			// No overlap.
			if c.end.Before(g.start) || c.start.After(g.end) {
				next = append(next, g)

				continue
			}

			if c.start.After(g.start) {
				next = append(next, span{start: g.start, end: c.start.Add(-time.Nanosecond)})
			}

			if c.end.Before(g.end) {
				next = append(next, span{start: c.end.Add(time.Nanosecond), end: g.end})
			}
		}

		gaps = next
	}

	return gaps
}

func (a *ArchiveSource) markCovered(s span) {
	merged := append(a.covered, s)

	for changed := true; changed; {
		changed = false

		for i := 0; i < len(merged) && !changed; i++ {
			for j := i + 1; j < len(merged) && !changed; j++ {
				if merged[i].end.Before(merged[j].start) || merged[j].end.Before(merged[i].start) {
					continue
				}

				if merged[j].start.Before(merged[i].start) {
					merged[i].start = merged[j].start
				}

				if merged[j].end.After(merged[i].end) {
					merged[i].end = merged[j].end
				}

				merged = append(merged[:j], merged[j+1:]...)
				changed = true
			}
		}
	}

	a.covered = merged
}

// Symbol implements BarSource.
func (a *ArchiveSource) Symbol() string {
	return a.cache.Symbol()
}

// Bounds implements BarSource.
func (a *ArchiveSource) Bounds() (time.Time, time.Time, error) {
	return a.cache.Bounds()
}

// Range implements BarSource. The range is filled from the fetcher first,
// so callers always see the complete span the provider can serve.
func (a *ArchiveSource) Range(start time.Time, end time.Time) ([]types.Bar, error) {
	if err := a.EnsureRange(context.Background(), start, end); err != nil {
		return nil, err
	}

	return a.cache.Range(start, end)
}

// RangeContext behaves like Range but honors cancellation during the fill.
func (a *ArchiveSource) RangeContext(ctx context.Context, start time.Time, end time.Time) ([]types.Bar, error) {
	if err := a.EnsureRange(ctx, start, end); err != nil {
		return nil, err
	}

	return a.cache.Range(start, end)
}

// Stream implements BarSource over the cached bars.
func (a *ArchiveSource) Stream(start optional.Option[time.Time], end optional.Option[time.Time]) func(yield func(types.Bar, error) bool) {
	return a.cache.Stream(start, end)
}

// Count implements BarSource over the cached bars.
func (a *ArchiveSource) Count(start optional.Option[time.Time], end optional.Option[time.Time]) (int, error) {
	return a.cache.Count(start, end)
}

// Close implements BarSource.
func (a *ArchiveSource) Close() error {
	return a.cache.Close()
}
