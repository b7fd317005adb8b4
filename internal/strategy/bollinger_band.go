package strategy

import (
	"fmt"

	"github.com/moznion/go-optional"

	"github.com/stratlab/backsim/internal/indicator"
	"github.com/stratlab/backsim/internal/types"
	"github.com/stratlab/backsim/pkg/errors"
)

// BollingerParams configures the Bollinger band variant.
type BollingerParams struct {
	Period       int     `mapstructure:"period" validate:"required,gt=1"`
	StdDev       float64 `mapstructure:"std_dev" validate:"required,gt=0"`
	PositionSize float64 `mapstructure:"position_size" validate:"required,gt=0"`
}

func defaultBollingerParams() BollingerParams {
	return BollingerParams{
		Period:       20,
		StdDev:       2.0,
		PositionSize: 1000,
	}
}

// BollingerBand buys when the close moves onto or below the lower band and
// sells when it moves onto or above the upper band. Like the moving average
// crossover it emits on the transition only: the previous bar must have
// closed inside the bands for the touch to count.
type BollingerBand struct {
	params BollingerParams
	bands  *indicator.Bollinger

	prevBelow bool
	prevAbove bool
	hasPrev   bool
}

// NewBollingerBand validates the parameters and builds the variant.
func NewBollingerBand(params BollingerParams) (*BollingerBand, error) {
	if err := validate.Struct(params); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStrategyConfig, "invalid bollinger parameters", err)
	}

	bands, err := indicator.NewBollinger(params.Period, params.StdDev)
	if err != nil {
		return nil, err
	}

	return &BollingerBand{
		params: params,
		bands:  bands,
	}, nil
}

// Name implements Strategy.
func (s *BollingerBand) Name() string {
	return fmt.Sprintf("Bollinger_%d", s.params.Period)
}

// WarmupPeriod implements Strategy.
func (s *BollingerBand) WarmupPeriod() int {
	return s.params.Period + 1
}

// GenerateSignal implements Strategy.
func (s *BollingerBand) GenerateSignal(history *History, state SignalState) (optional.Option[types.TradeIntent], SignalState, error) {
	bar, ok := history.Last()
	if !ok {
		return noIntent(), state, nil
	}

	s.bands.Update(bar.Close)

	if !s.bands.Ready() {
		return noIntent(), state, nil
	}

	upper, _, lower := s.bands.Bands()
	below := bar.Close <= lower
	above := bar.Close >= upper

	if !s.hasPrev {
		s.prevBelow, s.prevAbove, s.hasPrev = below, above, true

		return noIntent(), state, nil
	}

	touchedLower := below && !s.prevBelow
	touchedUpper := above && !s.prevAbove
	s.prevBelow, s.prevAbove = below, above

	if touchedLower && !state.LastIs(types.SideBuy) {
		rationale := fmt.Sprintf("close (%.2f) at or below lower band (%.2f)", bar.Close, lower)

		return sizedIntent(types.SideBuy, s.params.PositionSize, bar, rationale), state.withLast(types.SideBuy), nil
	}

	if touchedUpper && state.LastIs(types.SideBuy) {
		rationale := fmt.Sprintf("close (%.2f) at or above upper band (%.2f)", bar.Close, upper)

		return sizedIntent(types.SideSell, s.params.PositionSize, bar, rationale), state.withLast(types.SideSell), nil
	}

	return noIntent(), state, nil
}
