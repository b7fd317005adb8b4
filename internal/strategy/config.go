package strategy

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/stratlab/backsim/pkg/errors"
)

var validate = validator.New()

// Config selects a strategy variant by name and carries its raw parameters.
// Parameter keys are variant-specific; unknown keys are rejected so a typo
// cannot silently fall back to a default.
type Config struct {
	Name   string         `yaml:"name" json:"name" validate:"required"`
	Params map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

// New builds the strategy variant named by the config. Recognized names
// (case-insensitive): ma, moving_average, rsi, bollinger, bollinger_bands,
// buy_hold, buy_and_hold.
func New(config Config) (Strategy, error) {
	switch normalizeName(config.Name) {
	case "ma", "moving_average":
		params := defaultMovingAverageParams()
		if err := decodeParams(config.Params, &params); err != nil {
			return nil, err
		}

		return NewMovingAverageCrossover(params)
	case "rsi":
		params := defaultRSIParams()
		if err := decodeParams(config.Params, &params); err != nil {
			return nil, err
		}

		return NewRSIThreshold(params)
	case "bollinger", "bollinger_bands":
		params := defaultBollingerParams()
		if err := decodeParams(config.Params, &params); err != nil {
			return nil, err
		}

		return NewBollingerBand(params)
	case "buy_hold", "buy_and_hold":
		params := defaultBuyAndHoldParams()
		if err := decodeParams(config.Params, &params); err != nil {
			return nil, err
		}

		return NewBuyAndHold(params)
	default:
		return nil, errors.Newf(errors.ErrCodeUnknownStrategy, "unknown strategy: %s", config.Name)
	}
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// decodeParams overlays the raw parameter map onto a defaults-filled target.
// Absent keys keep their defaults; unknown keys fail.
func decodeParams(params map[string]any, target any) error {
	if params == nil {
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      target,
		ErrorUnused: true,
	})
	if err != nil {
		return errors.Wrap(errors.ErrCodeStrategyConfig, "failed to build parameter decoder", err)
	}

	if err := decoder.Decode(params); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidParameter, "invalid strategy parameters", err)
	}

	return nil
}
