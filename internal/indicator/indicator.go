// Package indicator provides incremental technical indicators.
//
// Each indicator is a stateful accumulator: the caller feeds it one value per
// bar through Update and reads the current figure back once Ready reports
// true. Nothing here recomputes a whole rolling series per bar; state is
// bounded by the indicator's period, so accumulators survive arbitrarily long
// replays and chunked streams without losing warm-up.
package indicator

// Accumulator is the shared contract of all incremental indicators.
type Accumulator interface {
	// Update feeds the next value in bar order.
	Update(value float64)
	// Ready reports whether enough values have been seen to read the indicator.
	Ready() bool
	// Warmup returns the number of values required before Ready turns true.
	Warmup() int
	// Reset returns the accumulator to its initial empty state.
	Reset()
}

var (
	_ Accumulator = (*SMA)(nil)
	_ Accumulator = (*RSI)(nil)
	_ Accumulator = (*Bollinger)(nil)
)
