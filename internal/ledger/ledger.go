// Package ledger implements the accounting core of a simulation run. A Ledger
// owns cash, open positions, the trade log, and the equity history; it is the
// only component allowed to mutate portfolio state. Every mutation either
// completes atomically or rejects without side effects, and the accounting
// invariants (cash never negative, inventory never negative, cash plus market
// value equal to total equity) hold after each one.
//
// A Ledger has exactly one owner at a time, so it carries no locks.
package ledger

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"

	"github.com/stratlab/backsim/internal/types"
	"github.com/stratlab/backsim/pkg/errors"
)

// Ledger tracks one portfolio through a run.
type Ledger struct {
	initialCapital float64
	cash           float64
	positions      map[string]*types.Position
	tradeLog       []types.Order
	equityCurve    []types.EquitySample
	strategyName   string
}

// New creates a ledger funded with the given initial capital.
func New(initialCapital float64) (*Ledger, error) {
	if initialCapital <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "initial capital must be positive, got %f", initialCapital)
	}

	return &Ledger{
		initialCapital: initialCapital,
		cash:           initialCapital,
		positions:      make(map[string]*types.Position),
	}, nil
}

// SetStrategyName sets the strategy name stamped onto subsequent orders.
func (l *Ledger) SetStrategyName(name string) {
	l.strategyName = name
}

// Submit prices an intent at fillPrice and either fills it or rejects it.
// Rejections (ErrCodeInsufficientCash, ErrCodeInsufficientPosition) leave the
// ledger untouched; the caller decides whether to continue. A filled order is
// appended to the trade log and returned.
func (l *Ledger) Submit(instrument string, intent types.TradeIntent, fillPrice float64, timestamp time.Time, commissionRate float64) (types.Order, error) {
	if err := intent.Validate(); err != nil {
		return types.Order{}, err
	}

	if fillPrice <= 0 {
		return types.Order{}, errors.Newf(errors.ErrCodeInvalidParameter, "fill price must be positive, got %f", fillPrice)
	}

	if commissionRate < 0 {
		return types.Order{}, errors.Newf(errors.ErrCodeInvalidParameter, "commission rate must not be negative, got %f", commissionRate)
	}

	var (
		order types.Order
		err   error
	)

	switch intent.Side {
	case types.SideBuy:
		order, err = l.executeBuy(instrument, intent, fillPrice, timestamp, commissionRate)
	case types.SideSell:
		order, err = l.executeSell(instrument, intent, fillPrice, timestamp, commissionRate)
	}

	if err != nil {
		return types.Order{}, err
	}

	l.tradeLog = append(l.tradeLog, order)

	if err := l.checkInvariants(); err != nil {
		return types.Order{}, err
	}

	return order, nil
}

// executeBuy deducts quantity*price*(1+rate) from cash and blends the fill
// into the position's cash-weighted average entry price.
func (l *Ledger) executeBuy(instrument string, intent types.TradeIntent, fillPrice float64, timestamp time.Time, commissionRate float64) (types.Order, error) {
	quantityDec := decimal.NewFromFloat(intent.Quantity)
	priceDec := decimal.NewFromFloat(fillPrice)
	grossDec := quantityDec.Mul(priceDec)
	commissionDec := grossDec.Mul(decimal.NewFromFloat(commissionRate))
	requiredDec := grossDec.Add(commissionDec)

	cashDec := decimal.NewFromFloat(l.cash)
	if cashDec.LessThan(requiredDec) {
		required, _ := requiredDec.Float64()

		return types.Order{}, errors.Newf(errors.ErrCodeInsufficientCash,
			"order cost (%.2f) exceeds available cash (%.2f)", required, l.cash)
	}

	position := l.position(instrument)

	oldQtyDec := decimal.NewFromFloat(position.Quantity)
	oldAvgDec := decimal.NewFromFloat(position.AverageEntryPrice)
	newQtyDec := oldQtyDec.Add(quantityDec)

	// new_avg = (old_qty*old_avg + qty*price) / (old_qty + qty)
	blendedDec := oldQtyDec.Mul(oldAvgDec).Add(grossDec).Div(newQtyDec)

	l.cash, _ = cashDec.Sub(requiredDec).Float64()
	position.Quantity, _ = newQtyDec.Float64()
	position.AverageEntryPrice, _ = blendedDec.Float64()
	position.LastPrice = fillPrice

	commission, _ := commissionDec.Float64()

	return types.Order{
		ID:           types.NewOrderID(instrument, timestamp, types.SideBuy),
		Symbol:       instrument,
		Side:         types.SideBuy,
		Quantity:     intent.Quantity,
		FillPrice:    fillPrice,
		Timestamp:    timestamp,
		Status:       types.OrderStatusFilled,
		Commission:   commission,
		RealizedPnL:  optional.None[float64](),
		Rationale:    intent.Rationale,
		StrategyName: l.strategyName,
	}, nil
}

// executeSell credits quantity*price minus commission to cash and locks in
// quantity*(price-avg)-commission of realized profit. Selling more than the
// open quantity is rejected; short inventory cannot exist.
func (l *Ledger) executeSell(instrument string, intent types.TradeIntent, fillPrice float64, timestamp time.Time, commissionRate float64) (types.Order, error) {
	position, ok := l.positions[instrument]
	if !ok || intent.Quantity > position.Quantity {
		held := 0.0
		if ok {
			held = position.Quantity
		}

		return types.Order{}, errors.Newf(errors.ErrCodeInsufficientPosition,
			"sell quantity (%.6f) exceeds position quantity (%.6f)", intent.Quantity, held)
	}

	quantityDec := decimal.NewFromFloat(intent.Quantity)
	priceDec := decimal.NewFromFloat(fillPrice)
	grossDec := quantityDec.Mul(priceDec)
	commissionDec := grossDec.Mul(decimal.NewFromFloat(commissionRate))
	proceedsDec := grossDec.Sub(commissionDec)

	avgDec := decimal.NewFromFloat(position.AverageEntryPrice)
	realizedDec := quantityDec.Mul(priceDec.Sub(avgDec)).Sub(commissionDec)

	l.cash, _ = decimal.NewFromFloat(l.cash).Add(proceedsDec).Float64()
	position.RealizedPnL, _ = decimal.NewFromFloat(position.RealizedPnL).Add(realizedDec).Float64()
	position.Quantity, _ = decimal.NewFromFloat(position.Quantity).Sub(quantityDec).Float64()
	position.LastPrice = fillPrice

	// A closed position must not leak its cost basis into the next lot.
	if position.Quantity == 0 {
		position.AverageEntryPrice = 0
		position.UnrealizedPnL = 0
	}

	commission, _ := commissionDec.Float64()
	realized, _ := realizedDec.Float64()

	return types.Order{
		ID:           types.NewOrderID(instrument, timestamp, types.SideSell),
		Symbol:       instrument,
		Side:         types.SideSell,
		Quantity:     intent.Quantity,
		FillPrice:    fillPrice,
		Timestamp:    timestamp,
		Status:       types.OrderStatusFilled,
		Commission:   commission,
		RealizedPnL:  optional.Some(realized),
		Rationale:    intent.Rationale,
		StrategyName: l.strategyName,
	}, nil
}

// MarkToMarket refreshes every position's unrealized profit and market value
// at the given prices (positions missing from the map keep their last marked
// price), appends one equity sample, and returns it. Call it exactly once per
// processed bar, after that bar's submissions, so the sample reflects
// post-trade state.
func (l *Ledger) MarkToMarket(prices map[string]float64, timestamp time.Time) (types.EquitySample, error) {
	marketValueDec := decimal.Zero
	unrealizedDec := decimal.Zero

	for symbol, position := range l.positions {
		price, ok := prices[symbol]
		if !ok {
			price = position.LastPrice
		}

		position.LastPrice = price

		if position.Quantity == 0 {
			position.UnrealizedPnL = 0

			continue
		}

		qtyDec := decimal.NewFromFloat(position.Quantity)
		priceDec := decimal.NewFromFloat(price)
		avgDec := decimal.NewFromFloat(position.AverageEntryPrice)

		positionValueDec := qtyDec.Mul(priceDec)
		positionUnrealizedDec := qtyDec.Mul(priceDec.Sub(avgDec))

		position.UnrealizedPnL, _ = positionUnrealizedDec.Float64()

		marketValueDec = marketValueDec.Add(positionValueDec)
		unrealizedDec = unrealizedDec.Add(positionUnrealizedDec)
	}

	cashDec := decimal.NewFromFloat(l.cash)
	equityDec := cashDec.Add(marketValueDec)

	initialDec := decimal.NewFromFloat(l.initialCapital)
	returnPctDec := equityDec.Sub(initialDec).Div(initialDec).Mul(decimal.NewFromInt(100))

	sample := types.EquitySample{Timestamp: timestamp}
	sample.Cash = l.cash
	sample.MarketValue, _ = marketValueDec.Float64()
	sample.TotalEquity, _ = equityDec.Float64()
	sample.UnrealizedPnL, _ = unrealizedDec.Float64()
	sample.ReturnPct, _ = returnPctDec.Float64()

	if err := l.checkInvariants(); err != nil {
		return types.EquitySample{}, err
	}

	l.equityCurve = append(l.equityCurve, sample)

	return sample, nil
}

// Summary produces the accounting half of the performance report: final
// equity, total return, trade counts, win rate over sells, and commission
// paid. Drawdown, sharpe, and volatility belong to the metrics calculator.
func (l *Ledger) Summary() types.PerformanceReport {
	report := types.PerformanceReport{
		StrategyName:   l.strategyName,
		InitialCapital: l.initialCapital,
		FinalEquity:    l.currentEquity(),
		TotalTrades:    len(l.tradeLog),
		EquityCurve:    l.EquityCurve(),
		TradeLog:       l.TradeLog(),
	}

	returnDec := decimal.NewFromFloat(report.FinalEquity).
		Sub(decimal.NewFromFloat(l.initialCapital)).
		Div(decimal.NewFromFloat(l.initialCapital)).
		Mul(decimal.NewFromInt(100))
	report.TotalReturnPct, _ = returnDec.Float64()

	sells, wins := 0, 0

	commissionDec := decimal.Zero
	for _, order := range l.tradeLog {
		commissionDec = commissionDec.Add(decimal.NewFromFloat(order.Commission))

		if order.RealizedPnL.IsSome() {
			sells++

			if order.RealizedPnL.Unwrap() > 0 {
				wins++
			}
		}
	}

	report.CommissionPaid, _ = commissionDec.Float64()

	if sells > 0 {
		report.WinRatePct = float64(wins) / float64(sells) * 100
	}

	return report
}

// Cash returns the free cash balance.
func (l *Ledger) Cash() float64 {
	return l.cash
}

// InitialCapital returns the capital the ledger was funded with.
func (l *Ledger) InitialCapital() float64 {
	return l.initialCapital
}

// Position returns a copy of the instrument's position, if one exists.
func (l *Ledger) Position(instrument string) (types.Position, bool) {
	position, ok := l.positions[instrument]
	if !ok {
		return types.Position{}, false
	}

	return *position, true
}

// EquityCurve returns the equity history accumulated so far.
func (l *Ledger) EquityCurve() []types.EquitySample {
	curve := make([]types.EquitySample, len(l.equityCurve))
	copy(curve, l.equityCurve)

	return curve
}

// TradeLog returns the orders filled so far, in execution order.
func (l *Ledger) TradeLog() []types.Order {
	log := make([]types.Order, len(l.tradeLog))
	copy(log, l.tradeLog)

	return log
}

// position returns the live position record, creating it on first use.
func (l *Ledger) position(instrument string) *types.Position {
	if existing, ok := l.positions[instrument]; ok {
		return existing
	}

	created := &types.Position{Symbol: instrument}
	l.positions[instrument] = created

	return created
}

// currentEquity values the portfolio at the last marked prices.
func (l *Ledger) currentEquity() float64 {
	equityDec := decimal.NewFromFloat(l.cash)
	for _, position := range l.positions {
		equityDec = equityDec.Add(decimal.NewFromFloat(position.MarketValue()))
	}

	equity, _ := equityDec.Float64()

	return equity
}

// checkInvariants verifies internal consistency after a mutation. A failure
// here is a defect in the simulation, not a business rejection, and must stop
// the run.
func (l *Ledger) checkInvariants() error {
	if l.cash < 0 {
		return errors.Newf(errors.ErrCodeInvariantViolation, "cash is negative: %.6f", l.cash)
	}

	for symbol, position := range l.positions {
		if position.Quantity < 0 {
			return errors.Newf(errors.ErrCodeInvariantViolation,
				"position %s has negative quantity: %.6f", symbol, position.Quantity)
		}
	}

	return nil
}
