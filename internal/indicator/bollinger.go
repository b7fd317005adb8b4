package indicator

import (
	"math"

	"github.com/stratlab/backsim/pkg/errors"
)

// Bollinger computes Bollinger bands: a simple moving average with an
// envelope of numStd sample standard deviations around it. Sample (n-1)
// deviation is used, so the period must be at least two.
type Bollinger struct {
	period int
	numStd float64
	window []float64
}

// NewBollinger creates a Bollinger band accumulator.
func NewBollinger(period int, numStd float64) (*Bollinger, error) {
	if period < 2 {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "bollinger period must be at least 2, got %d", period)
	}

	if numStd <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "bollinger band width must be positive, got %f", numStd)
	}

	return &Bollinger{
		period: period,
		numStd: numStd,
		window: make([]float64, 0, period),
	}, nil
}

// Update feeds the next value, evicting the oldest once the window is full.
func (b *Bollinger) Update(value float64) {
	b.window = append(b.window, value)
	if len(b.window) > b.period {
		b.window = b.window[1:]
	}
}

// Ready reports whether a full window has been seen.
func (b *Bollinger) Ready() bool {
	return len(b.window) >= b.period
}

// Bands returns the upper, middle, and lower band for the current window.
// Only meaningful once Ready reports true.
func (b *Bollinger) Bands() (upper, middle, lower float64) {
	middle = mean(b.window)
	deviation := sampleStdDev(b.window, middle)

	upper = middle + b.numStd*deviation
	lower = middle - b.numStd*deviation

	return upper, middle, lower
}

// Warmup implements Accumulator.
func (b *Bollinger) Warmup() int {
	return b.period
}

// Reset implements Accumulator.
func (b *Bollinger) Reset() {
	b.window = b.window[:0]
}

func sampleStdDev(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		diff := v - mean
		sum += diff * diff
	}

	return math.Sqrt(sum / float64(len(values)-1))
}
