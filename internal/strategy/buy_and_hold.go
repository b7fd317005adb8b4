package strategy

import (
	"github.com/moznion/go-optional"

	"github.com/stratlab/backsim/internal/types"
	"github.com/stratlab/backsim/pkg/errors"
)

// BuyAndHoldParams configures the buy-and-hold baseline.
type BuyAndHoldParams struct {
	PositionSize float64 `mapstructure:"position_size" validate:"required,gt=0"`
}

func defaultBuyAndHoldParams() BuyAndHoldParams {
	return BuyAndHoldParams{
		PositionSize: 10000,
	}
}

// BuyAndHold enters once on the very first bar of the run and never trades
// again. It exists as the benchmark every other variant is measured against.
type BuyAndHold struct {
	params BuyAndHoldParams
}

// NewBuyAndHold validates the parameters and builds the variant.
func NewBuyAndHold(params BuyAndHoldParams) (*BuyAndHold, error) {
	if err := validate.Struct(params); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStrategyConfig, "invalid buy and hold parameters", err)
	}

	return &BuyAndHold{params: params}, nil
}

// Name implements Strategy.
func (s *BuyAndHold) Name() string {
	return "BuyAndHold"
}

// WarmupPeriod implements Strategy.
func (s *BuyAndHold) WarmupPeriod() int {
	return 1
}

// GenerateSignal implements Strategy.
func (s *BuyAndHold) GenerateSignal(history *History, state SignalState) (optional.Option[types.TradeIntent], SignalState, error) {
	if history.TotalSeen() != 1 {
		return noIntent(), state, nil
	}

	bar, ok := history.Last()
	if !ok {
		return noIntent(), state, nil
	}

	return sizedIntent(types.SideBuy, s.params.PositionSize, bar, "initial buy and hold entry"), state.withLast(types.SideBuy), nil
}
