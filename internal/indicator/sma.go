package indicator

import (
	"github.com/stratlab/backsim/pkg/errors"
)

// SMA is a simple moving average over the last period values.
type SMA struct {
	period int
	window []float64
}

// NewSMA creates a simple moving average accumulator.
func NewSMA(period int) (*SMA, error) {
	if period <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "sma period must be positive, got %d", period)
	}

	return &SMA{
		period: period,
		window: make([]float64, 0, period),
	}, nil
}

// Update feeds the next value, evicting the oldest once the window is full.
func (s *SMA) Update(value float64) {
	s.window = append(s.window, value)
	if len(s.window) > s.period {
		s.window = s.window[1:]
	}
}

// Ready reports whether a full window has been seen.
func (s *SMA) Ready() bool {
	return len(s.window) >= s.period
}

// Value returns the mean of the current window. It is only meaningful once
// Ready reports true.
func (s *SMA) Value() float64 {
	if len(s.window) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range s.window {
		sum += v
	}

	return sum / float64(len(s.window))
}

// Warmup implements Accumulator.
func (s *SMA) Warmup() int {
	return s.period
}

// Reset implements Accumulator.
func (s *SMA) Reset() {
	s.window = s.window[:0]
}
