package types

import (
	"github.com/go-playground/validator/v10"

	"github.com/stratlab/backsim/pkg/errors"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// TradeIntent is a strategy's proposed trade. It is not yet priced or
// accepted: the ledger decides whether it fills. Quantity is always in
// base-asset units, never in currency.
type TradeIntent struct {
	Side      Side    `yaml:"side" json:"side" csv:"side" validate:"required,oneof=BUY SELL"`
	Quantity  float64 `yaml:"quantity" json:"quantity" csv:"quantity" validate:"required,gt=0"`
	Rationale string  `yaml:"rationale" json:"rationale" csv:"rationale"`
}

// Validate validates the TradeIntent struct.
func (ti *TradeIntent) Validate() error {
	validate := validator.New()

	if err := validate.Struct(ti); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidIntent, "invalid trade intent", err)
	}

	return nil
}
