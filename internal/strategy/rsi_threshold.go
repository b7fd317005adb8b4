package strategy

import (
	"fmt"

	"github.com/moznion/go-optional"

	"github.com/stratlab/backsim/internal/indicator"
	"github.com/stratlab/backsim/internal/types"
	"github.com/stratlab/backsim/pkg/errors"
)

// RSIParams configures the RSI threshold variant. Oversold must sit below
// Overbought and both are RSI points in (0, 100).
type RSIParams struct {
	RSIPeriod    int     `mapstructure:"rsi_period" validate:"required,gt=0"`
	Oversold     float64 `mapstructure:"oversold" validate:"gt=0,lt=100,ltfield=Overbought"`
	Overbought   float64 `mapstructure:"overbought" validate:"gt=0,lt=100"`
	PositionSize float64 `mapstructure:"position_size" validate:"required,gt=0"`
}

func defaultRSIParams() RSIParams {
	return RSIParams{
		RSIPeriod:    14,
		Oversold:     30,
		Overbought:   70,
		PositionSize: 1000,
	}
}

// RSIThreshold buys when the RSI crosses down into the oversold zone and
// sells when it crosses up into the overbought zone. Emission happens once
// per crossing into a zone, not on every bar the RSI stays inside it, and
// repeats are suppressed until the opposite boundary is crossed.
type RSIThreshold struct {
	params RSIParams
	rsi    *indicator.RSI

	prevRSI float64
	hasPrev bool
}

// NewRSIThreshold validates the parameters and builds the variant.
func NewRSIThreshold(params RSIParams) (*RSIThreshold, error) {
	if err := validate.Struct(params); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStrategyConfig, "invalid rsi parameters", err)
	}

	rsi, err := indicator.NewRSI(params.RSIPeriod)
	if err != nil {
		return nil, err
	}

	return &RSIThreshold{
		params: params,
		rsi:    rsi,
	}, nil
}

// Name implements Strategy.
func (s *RSIThreshold) Name() string {
	return fmt.Sprintf("RSI_%d", s.params.RSIPeriod)
}

// WarmupPeriod implements Strategy.
func (s *RSIThreshold) WarmupPeriod() int {
	return s.params.RSIPeriod + 2
}

// GenerateSignal implements Strategy.
func (s *RSIThreshold) GenerateSignal(history *History, state SignalState) (optional.Option[types.TradeIntent], SignalState, error) {
	bar, ok := history.Last()
	if !ok {
		return noIntent(), state, nil
	}

	s.rsi.Update(bar.Close)

	if !s.rsi.Ready() {
		return noIntent(), state, nil
	}

	cur := s.rsi.Value()

	if !s.hasPrev {
		s.prevRSI, s.hasPrev = cur, true

		return noIntent(), state, nil
	}

	enteredOversold := s.prevRSI >= s.params.Oversold && cur < s.params.Oversold
	enteredOverbought := s.prevRSI <= s.params.Overbought && cur > s.params.Overbought
	s.prevRSI = cur

	if enteredOversold && !state.LastIs(types.SideBuy) {
		rationale := fmt.Sprintf("RSI oversold: RSI(%.2f) < %.2f", cur, s.params.Oversold)

		return sizedIntent(types.SideBuy, s.params.PositionSize, bar, rationale), state.withLast(types.SideBuy), nil
	}

	if enteredOverbought && state.LastIs(types.SideBuy) {
		rationale := fmt.Sprintf("RSI overbought: RSI(%.2f) > %.2f", cur, s.params.Overbought)

		return sizedIntent(types.SideSell, s.params.PositionSize, bar, rationale), state.withLast(types.SideSell), nil
	}

	return noIntent(), state, nil
}
