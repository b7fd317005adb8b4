package datasource

import (
	"sort"
	"sync"
	"time"

	"github.com/moznion/go-optional"

	"github.com/stratlab/backsim/internal/types"
	"github.com/stratlab/backsim/pkg/errors"
)

// MemorySource holds the full bar sequence of one instrument in memory,
// sorted on ingestion. It backs small fixtures, generated data, and the
// archive cache.
type MemorySource struct {
	symbol string
	bars   []types.Bar
	mu     sync.RWMutex
}

// NewMemorySource ingests the given bars for the instrument: it stamps the
// symbol onto every bar, sorts by timestamp, and rejects duplicates. An
// empty source is valid; it simply has no bounds yet.
func NewMemorySource(symbol string, bars []types.Bar) (*MemorySource, error) {
	s := &MemorySource{
		symbol: symbol,
		bars:   make([]types.Bar, 0, len(bars)),
	}

	if err := s.Append(bars...); err != nil {
		return nil, err
	}

	return s, nil
}

// Append merges more bars into the source, keeping the sequence sorted.
// A bar with a timestamp already present is rejected and nothing is merged.
func (s *MemorySource) Append(bars ...types.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	merged := make([]types.Bar, 0, len(s.bars)+len(bars))
	merged = append(merged, s.bars...)

	for _, bar := range bars {
		bar.Symbol = s.symbol
		merged = append(merged, bar)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Time.Before(merged[j].Time)
	})

	for i := 1; i < len(merged); i++ {
		if merged[i].Time.Equal(merged[i-1].Time) {
			return errors.Newf(errors.ErrCodeUnsortedData, "duplicate bar timestamp %s for %s", merged[i].Time.Format(time.RFC3339), s.symbol)
		}
	}

	s.bars = merged

	return nil
}

// Symbol implements BarSource.
func (s *MemorySource) Symbol() string {
	return s.symbol
}

// Bounds implements BarSource.
func (s *MemorySource) Bounds() (time.Time, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.bars) == 0 {
		return time.Time{}, time.Time{}, errors.Newf(errors.ErrCodeNoData, "no bars available for %s", s.symbol)
	}

	return s.bars[0].Time, s.bars[len(s.bars)-1].Time, nil
}

// Range implements BarSource. Bounds are located by binary search, so a
// window query costs O(log n) plus the copy of the window itself.
func (s *MemorySource) Range(start time.Time, end time.Time) ([]types.Bar, error) {
	if end.Before(start) {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "range end %s precedes start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	lo := sort.Search(len(s.bars), func(i int) bool {
		return !s.bars[i].Time.Before(start)
	})
	hi := sort.Search(len(s.bars), func(i int) bool {
		return s.bars[i].Time.After(end)
	})

	window := make([]types.Bar, hi-lo)
	copy(window, s.bars[lo:hi])

	return window, nil
}

// Stream implements BarSource.
func (s *MemorySource) Stream(start optional.Option[time.Time], end optional.Option[time.Time]) func(yield func(types.Bar, error) bool) {
	// Bars are immutable once merged, so a snapshot of the slice header is
	// enough to iterate without holding the lock.
	s.mu.RLock()
	bars := s.bars
	s.mu.RUnlock()

	return func(yield func(types.Bar, error) bool) {
		for _, bar := range bars {
			if start.IsSome() && bar.Time.Before(start.Unwrap()) {
				continue
			}

			if end.IsSome() && bar.Time.After(end.Unwrap()) {
				return
			}

			if !yield(bar, nil) {
				return
			}
		}
	}
}

// Count implements BarSource.
func (s *MemorySource) Count(start optional.Option[time.Time], end optional.Option[time.Time]) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0

	for _, bar := range s.bars {
		if start.IsSome() && bar.Time.Before(start.Unwrap()) {
			continue
		}

		if end.IsSome() && bar.Time.After(end.Unwrap()) {
			break
		}

		count++
	}

	return count, nil
}

// Close implements BarSource.
func (s *MemorySource) Close() error {
	return nil
}
