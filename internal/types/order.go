package types

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"

	"github.com/stratlab/backsim/pkg/errors"
)

type OrderStatus string

const (
	OrderStatusFilled   OrderStatus = "FILLED"
	OrderStatusRejected OrderStatus = "REJECTED"
)

// Order is one executed trade. Orders are created by the ledger from accepted
// intents and are immutable once filled. The driver also builds transient
// rejected orders to report refusals, but those never enter the trade log.
type Order struct {
	// ID is derived from (symbol, timestamp, side) so replaying the same
	// input reproduces the same trade log.
	ID        string      `yaml:"id" json:"id" csv:"id"`
	Symbol    string      `yaml:"symbol" json:"symbol" csv:"symbol" validate:"required"`
	Side      Side        `yaml:"side" json:"side" csv:"side" validate:"required,oneof=BUY SELL"`
	Quantity  float64     `yaml:"quantity" json:"quantity" csv:"quantity" validate:"required,gt=0"`
	FillPrice float64     `yaml:"fill_price" json:"fill_price" csv:"fill_price" validate:"required,gt=0"`
	Timestamp time.Time   `yaml:"timestamp" json:"timestamp" csv:"timestamp" validate:"required"`
	Status    OrderStatus `yaml:"status" json:"status" csv:"status"`
	// Commission is the fee charged on execution, in currency.
	Commission float64 `yaml:"commission" json:"commission" csv:"commission" validate:"gte=0"`
	// RealizedPnL is set on sells only; a buy locks nothing in.
	RealizedPnL optional.Option[float64] `yaml:"realized_pnl" json:"realized_pnl" csv:"realized_pnl"`
	// Rationale is the strategy's stated reason for the trade.
	Rationale    string `yaml:"rationale" json:"rationale" csv:"rationale"`
	StrategyName string `yaml:"strategy_name" json:"strategy_name" csv:"strategy_name"`
}

// NewOrderID derives the reproducible order identifier for a fill at the
// given bar timestamp, for example "BTCUSDT_20240102_150405_BUY".
func NewOrderID(symbol string, timestamp time.Time, side Side) string {
	return fmt.Sprintf("%s_%s_%s", symbol, timestamp.UTC().Format("20060102_150405"), side)
}

// Validate validates the Order struct.
func (o *Order) Validate() error {
	validate := validator.New()

	if err := validate.Struct(o); err != nil {
		return errors.Wrap(errors.ErrCodeOrderFailed, "invalid order", err)
	}

	return nil
}
