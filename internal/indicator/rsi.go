package indicator

import (
	"github.com/stratlab/backsim/pkg/errors"
)

// RSI is a relative strength index over simple rolling means of gains and
// losses (Cutler's variant). It needs period+1 values before the first
// reading: one to anchor the deltas and period deltas for the windows.
type RSI struct {
	period  int
	prev    float64
	hasPrev bool
	gains   []float64
	losses  []float64
}

// NewRSI creates a relative strength index accumulator.
func NewRSI(period int) (*RSI, error) {
	if period <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "rsi period must be positive, got %d", period)
	}

	return &RSI{
		period: period,
		gains:  make([]float64, 0, period),
		losses: make([]float64, 0, period),
	}, nil
}

// Update feeds the next value in bar order.
func (r *RSI) Update(value float64) {
	if !r.hasPrev {
		r.prev = value
		r.hasPrev = true

		return
	}

	delta := value - r.prev
	r.prev = value

	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	r.gains = append(r.gains, gain)
	if len(r.gains) > r.period {
		r.gains = r.gains[1:]
	}

	r.losses = append(r.losses, loss)
	if len(r.losses) > r.period {
		r.losses = r.losses[1:]
	}
}

// Ready reports whether a full window of deltas has been seen.
func (r *RSI) Ready() bool {
	return len(r.gains) >= r.period
}

// Value returns the current index in [0, 100]. A window with no movement at
// all reads as the neutral midpoint 50.
func (r *RSI) Value() float64 {
	avgGain := mean(r.gains)
	avgLoss := mean(r.losses)

	switch {
	case avgGain == 0 && avgLoss == 0:
		return 50
	case avgLoss == 0:
		return 100
	default:
		rs := avgGain / avgLoss

		return 100 - (100 / (1 + rs))
	}
}

// Warmup implements Accumulator.
func (r *RSI) Warmup() int {
	return r.period + 1
}

// Reset implements Accumulator.
func (r *RSI) Reset() {
	r.prev = 0
	r.hasPrev = false
	r.gains = r.gains[:0]
	r.losses = r.losses[:0]
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}
