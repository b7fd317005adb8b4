package strategy

import (
	"fmt"

	"github.com/moznion/go-optional"

	"github.com/stratlab/backsim/internal/indicator"
	"github.com/stratlab/backsim/internal/types"
	"github.com/stratlab/backsim/pkg/errors"
)

// MovingAverageParams configures the crossover variant. LongWindow must
// exceed ShortWindow, and PositionSize is the currency budget per entry.
type MovingAverageParams struct {
	ShortWindow  int     `mapstructure:"short_window" validate:"required,gt=0"`
	LongWindow   int     `mapstructure:"long_window" validate:"required,gtfield=ShortWindow"`
	PositionSize float64 `mapstructure:"position_size" validate:"required,gt=0"`
}

func defaultMovingAverageParams() MovingAverageParams {
	return MovingAverageParams{
		ShortWindow:  5,
		LongWindow:   20,
		PositionSize: 1000,
	}
}

// MovingAverageCrossover buys when the short moving average crosses above
// the long one and sells when it crosses back below. A crossing needs the
// previous bar's relationship, so the first emission is possible only once
// LongWindow+1 bars have been seen.
type MovingAverageCrossover struct {
	params  MovingAverageParams
	shortMA *indicator.SMA
	longMA  *indicator.SMA

	prevShort float64
	prevLong  float64
	hasPrev   bool
}

// NewMovingAverageCrossover validates the parameters and builds the variant.
func NewMovingAverageCrossover(params MovingAverageParams) (*MovingAverageCrossover, error) {
	if err := validate.Struct(params); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStrategyConfig, "invalid moving average parameters", err)
	}

	shortMA, err := indicator.NewSMA(params.ShortWindow)
	if err != nil {
		return nil, err
	}

	longMA, err := indicator.NewSMA(params.LongWindow)
	if err != nil {
		return nil, err
	}

	return &MovingAverageCrossover{
		params:  params,
		shortMA: shortMA,
		longMA:  longMA,
	}, nil
}

// Name implements Strategy.
func (s *MovingAverageCrossover) Name() string {
	return fmt.Sprintf("MACrossover_%d_%d", s.params.ShortWindow, s.params.LongWindow)
}

// WarmupPeriod implements Strategy.
func (s *MovingAverageCrossover) WarmupPeriod() int {
	return s.params.LongWindow + 1
}

// GenerateSignal implements Strategy.
func (s *MovingAverageCrossover) GenerateSignal(history *History, state SignalState) (optional.Option[types.TradeIntent], SignalState, error) {
	bar, ok := history.Last()
	if !ok {
		return noIntent(), state, nil
	}

	s.shortMA.Update(bar.Close)
	s.longMA.Update(bar.Close)

	if !s.longMA.Ready() {
		return noIntent(), state, nil
	}

	curShort := s.shortMA.Value()
	curLong := s.longMA.Value()

	if !s.hasPrev {
		s.prevShort, s.prevLong, s.hasPrev = curShort, curLong, true

		return noIntent(), state, nil
	}

	crossedUp := s.prevShort <= s.prevLong && curShort > curLong
	crossedDown := s.prevShort >= s.prevLong && curShort < curLong
	s.prevShort, s.prevLong = curShort, curLong

	if crossedUp && !state.LastIs(types.SideBuy) {
		rationale := fmt.Sprintf("short MA (%.4f) crossed above long MA (%.4f)", curShort, curLong)

		return sizedIntent(types.SideBuy, s.params.PositionSize, bar, rationale), state.withLast(types.SideBuy), nil
	}

	if crossedDown && state.LastIs(types.SideBuy) {
		rationale := fmt.Sprintf("short MA (%.4f) crossed below long MA (%.4f)", curShort, curLong)

		return sizedIntent(types.SideSell, s.params.PositionSize, bar, rationale), state.withLast(types.SideSell), nil
	}

	return noIntent(), state, nil
}
