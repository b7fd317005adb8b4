// Package metrics derives aggregate performance statistics from a finished
// equity curve and trade log. Every function is a pure reduction: nothing
// here mutates the inputs or holds run state.
package metrics

import (
	"math"

	"github.com/stratlab/backsim/internal/types"
	"github.com/stratlab/backsim/pkg/errors"
)

// DefaultAnnualizationFactor fits daily bars on a trading-day calendar.
// Callers running other bar frequencies must supply their own factor.
const DefaultAnnualizationFactor = 252

// Calculator computes curve statistics under a fixed annualization factor.
type Calculator struct {
	annualizationFactor float64
}

// NewCalculator creates a calculator with the given annualization factor.
func NewCalculator(annualizationFactor float64) (*Calculator, error) {
	if annualizationFactor <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter,
			"annualization factor must be positive, got %f", annualizationFactor)
	}

	return &Calculator{annualizationFactor: annualizationFactor}, nil
}

// MaxDrawdown returns the deepest decline from a running equity peak as a
// negative percentage. A curve that never declines reads as zero.
func (c *Calculator) MaxDrawdown(curve []types.EquitySample) float64 {
	if len(curve) == 0 {
		return 0
	}

	peak := curve[0].TotalEquity
	maxDrawdown := 0.0

	for _, sample := range curve {
		if sample.TotalEquity > peak {
			peak = sample.TotalEquity
		}

		if peak > 0 {
			drawdown := (sample.TotalEquity - peak) / peak
			if drawdown < maxDrawdown {
				maxDrawdown = drawdown
			}
		}
	}

	return maxDrawdown * 100
}

// SharpeRatio returns the annualized ratio of mean period return to its
// sample deviation, at zero risk-free rate. A flat or too-short curve reads
// as zero; the guard is not an error.
func (c *Calculator) SharpeRatio(curve []types.EquitySample) float64 {
	returns := periodReturns(curve)
	deviation := sampleStdDev(returns)

	if deviation == 0 {
		return 0
	}

	return meanOf(returns) / deviation * math.Sqrt(c.annualizationFactor)
}

// Volatility returns the annualized sample deviation of period returns, in
// percent.
func (c *Calculator) Volatility(curve []types.EquitySample) float64 {
	return sampleStdDev(periodReturns(curve)) * math.Sqrt(c.annualizationFactor) * 100
}

// WinRate returns the share of profitable sells, in percent. Buys carry no
// realized outcome and are excluded from both sides of the ratio; zero sells
// read as zero.
func (c *Calculator) WinRate(tradeLog []types.Order) float64 {
	sells, wins := 0, 0

	for _, order := range tradeLog {
		if order.RealizedPnL.IsNone() {
			continue
		}

		sells++

		if order.RealizedPnL.Unwrap() > 0 {
			wins++
		}
	}

	if sells == 0 {
		return 0
	}

	return float64(wins) / float64(sells) * 100
}

// Enrich fills the curve-derived statistics into a ledger-produced partial
// report.
func (c *Calculator) Enrich(report *types.PerformanceReport) {
	report.MaxDrawdownPct = c.MaxDrawdown(report.EquityCurve)
	report.SharpeRatio = c.SharpeRatio(report.EquityCurve)
	report.VolatilityPct = c.Volatility(report.EquityCurve)
}

// periodReturns computes consecutive-sample returns equity[i]/equity[i-1]-1.
// Samples following a zero equity are skipped rather than divided by.
func periodReturns(curve []types.EquitySample) []float64 {
	if len(curve) < 2 {
		return nil
	}

	returns := make([]float64, 0, len(curve)-1)

	for i := 1; i < len(curve); i++ {
		previous := curve[i-1].TotalEquity
		if previous == 0 {
			continue
		}

		returns = append(returns, curve[i].TotalEquity/previous-1)
	}

	return returns
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}

// sampleStdDev is the n-1 deviation; fewer than two samples read as zero.
func sampleStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	mean := meanOf(values)

	sum := 0.0
	for _, v := range values {
		diff := v - mean
		sum += diff * diff
	}

	return math.Sqrt(sum / float64(len(values)-1))
}
