package backtest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/stratlab/backsim/internal/datasource"
	"github.com/stratlab/backsim/internal/ledger"
	"github.com/stratlab/backsim/internal/logger"
	"github.com/stratlab/backsim/internal/metrics"
	"github.com/stratlab/backsim/internal/strategy"
	"github.com/stratlab/backsim/internal/types"
	"github.com/stratlab/backsim/pkg/errors"
)

// State is the lifecycle phase of a Driver. Transitions are one-way:
// IDLE -> STREAMING -> FINISHED or FAILED. A driver never leaves a terminal
// state; rerunning requires a new driver.
type State string

const (
	StateIdle      State = "IDLE"
	StateStreaming State = "STREAMING"
	StateFinished  State = "FINISHED"
	StateFailed    State = "FAILED"
)

// Callbacks are optional lifecycle hooks a caller can attach to a run. Nil
// fields are skipped. The driver invokes them synchronously from Run, so
// they observe the ledger exactly as of the event: OnBar fires before the
// bar's intent is evaluated, OnOrderFilled and OnOrderRejected fire as the
// book settles, and the terminal hooks receive the same report Run returns.
type Callbacks struct {
	OnRunStart      func(instrument string, totalBars int)
	OnWindowStart   func(window int, start time.Time, end time.Time)
	OnWindowSkipped func(window int, start time.Time, end time.Time)
	OnBar           func(index int, bar types.Bar)
	OnOrderFilled   func(order types.Order)
	OnOrderRejected func(intent types.TradeIntent, reason error)
	OnRunFinished   func(report types.PerformanceReport)
	OnRunFailed     func(err error)
}

// rangeContexter is satisfied by sources that can honor cancellation while
// materializing a window, such as the archive source that downloads missing
// spans on demand.
type rangeContexter interface {
	RangeContext(ctx context.Context, start time.Time, end time.Time) ([]types.Bar, error)
}

// Driver replays one instrument's bars through one strategy against one
// ledger. It owns the per-bar cycle: append the bar to history, consult the
// strategy, settle the resulting intent, then mark the book to market at the
// bar's close so every equity sample reflects the bar's trades.
//
// A driver is single-use and not safe for concurrent access; the coordinator
// builds one per instrument.
type Driver struct {
	config     Config
	instrument string
	source     datasource.BarSource
	strat      strategy.Strategy
	book       *ledger.Ledger
	history    *strategy.History
	signal     strategy.SignalState
	calc       *metrics.Calculator
	log        *logger.Logger

	state     State
	callbacks Callbacks
	barsSeen  int
	lastTime  time.Time
}

// NewDriver assembles a driver in the IDLE state. The ledger is funded with
// config.InitialCapital and the instrument is taken from the source. A nil
// logger disables logging.
func NewDriver(config Config, source datasource.BarSource, strat strategy.Strategy, log *logger.Logger) (*Driver, error) {
	if source == nil {
		return nil, errors.New(errors.ErrCodeNoDataSource, "driver requires a bar source")
	}

	if strat == nil {
		return nil, errors.New(errors.ErrCodeNoStrategy, "driver requires a strategy")
	}

	if config.CommissionRate < 0 || config.CommissionRate >= 1 {
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "commission rate %v outside [0, 1)", config.CommissionRate)
	}

	if config.WindowDays < 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "window days must not be negative, got %d", config.WindowDays)
	}

	if config.StartTime.IsSome() && config.EndTime.IsSome() && config.EndTime.Unwrap().Before(config.StartTime.Unwrap()) {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "end time precedes start time")
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	book, err := ledger.New(config.InitialCapital)
	if err != nil {
		return nil, err
	}

	book.SetStrategyName(strat.Name())

	annualization := config.AnnualizationFactor
	if annualization == 0 {
		annualization = metrics.DefaultAnnualizationFactor
	}

	calc, err := metrics.NewCalculator(annualization)
	if err != nil {
		return nil, err
	}

	return &Driver{
		config:     config,
		instrument: source.Symbol(),
		source:     source,
		strat:      strat,
		book:       book,
		history:    strategy.NewHistory(config.MaxHistoryBars),
		calc:       calc,
		log:        log,
		state:      StateIdle,
	}, nil
}

// State returns the driver's current lifecycle phase.
func (d *Driver) State() State {
	return d.state
}

// Instrument returns the symbol this driver replays.
func (d *Driver) Instrument() string {
	return d.instrument
}

// Run replays the configured range and returns the performance report. The
// report is also populated on failure, covering everything processed up to
// the fault. Run can be called once; subsequent calls fail with
// ErrCodeDriverState. Cancellation is observed between bars and surfaces as
// ErrCodeRunCancelled.
func (d *Driver) Run(ctx context.Context, callbacks Callbacks) (types.PerformanceReport, error) {
	if d.state != StateIdle {
		return types.PerformanceReport{}, errors.Newf(errors.ErrCodeDriverState, "driver already ran (state %s)", d.state)
	}

	d.state = StateStreaming
	d.callbacks = callbacks

	if callbacks.OnRunStart != nil {
		total, err := d.source.Count(d.config.StartTime, d.config.EndTime)
		if err != nil {
			total = 0
		}

		callbacks.OnRunStart(d.instrument, total)
	}

	d.log.Debug("run started",
		zap.String("instrument", d.instrument),
		zap.String("strategy", d.strat.Name()),
		zap.Float64("initial_capital", d.book.InitialCapital()),
		zap.Int("window_days", d.config.WindowDays))

	var err error
	if d.config.WindowDays > 0 {
		err = d.runWindowed(ctx)
	} else {
		err = d.runContiguous(ctx)
	}

	if err == nil && d.barsSeen == 0 {
		err = errors.Newf(errors.ErrCodeNoData, "no bars for %s in the requested range", d.instrument)
	}

	report := d.assembleReport()

	if err != nil {
		d.state = StateFailed
		d.log.Debug("run failed", zap.String("instrument", d.instrument), zap.Error(err))

		if callbacks.OnRunFailed != nil {
			callbacks.OnRunFailed(err)
		}

		return report, err
	}

	d.state = StateFinished
	d.log.Debug("run finished",
		zap.String("instrument", d.instrument),
		zap.Int("bars_processed", report.BarsProcessed),
		zap.Int("total_trades", report.TotalTrades),
		zap.Float64("final_equity", report.FinalEquity))

	if callbacks.OnRunFinished != nil {
		callbacks.OnRunFinished(report)
	}

	return report, nil
}

// runContiguous replays the whole configured range in one streaming pass.
func (d *Driver) runContiguous(ctx context.Context) error {
	for bar, err := range d.source.Stream(d.config.StartTime, d.config.EndTime) {
		if err != nil {
			return err
		}

		if err := ctx.Err(); err != nil {
			return errors.Wrap(errors.ErrCodeRunCancelled, "run cancelled", err)
		}

		if err := d.processBar(bar); err != nil {
			return err
		}
	}

	return nil
}

// runWindowed replays the range in fixed calendar-day windows. Each window
// materializes [winStart, winStart+WindowDays) clamped to the overall end;
// the next window starts where the previous one ended, so the union of all
// windows covers exactly the bars a contiguous pass would. History, ledger,
// and signal state persist across windows.
func (d *Driver) runWindowed(ctx context.Context) error {
	start, end, err := d.resolveRange()
	if err != nil {
		return err
	}

	winStart := start
	for window := 0; !winStart.After(end); window++ {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(errors.ErrCodeRunCancelled, "run cancelled", err)
		}

		winEnd := winStart.AddDate(0, 0, d.config.WindowDays).Add(-time.Nanosecond)
		if winEnd.After(end) {
			winEnd = end
		}

		bars, err := d.fetchWindow(ctx, winStart, winEnd)
		if err != nil {
			return err
		}

		if len(bars) == 0 {
			d.log.Debug("window skipped",
				zap.Int("window", window),
				zap.Time("start", winStart),
				zap.Time("end", winEnd))

			if d.callbacks.OnWindowSkipped != nil {
				d.callbacks.OnWindowSkipped(window, winStart, winEnd)
			}
		} else {
			d.log.Debug("window started",
				zap.Int("window", window),
				zap.Time("start", winStart),
				zap.Time("end", winEnd),
				zap.Int("bars", len(bars)))

			if d.callbacks.OnWindowStart != nil {
				d.callbacks.OnWindowStart(window, winStart, winEnd)
			}

			for _, bar := range bars {
				if err := ctx.Err(); err != nil {
					return errors.Wrap(errors.ErrCodeRunCancelled, "run cancelled", err)
				}

				if err := d.processBar(bar); err != nil {
					return err
				}
			}
		}

		winStart = winStart.AddDate(0, 0, d.config.WindowDays)
	}

	return nil
}

// resolveRange determines the overall [start, end] for windowed replay,
// falling back to the source's own bounds for any absent side.
func (d *Driver) resolveRange() (time.Time, time.Time, error) {
	if d.config.StartTime.IsSome() && d.config.EndTime.IsSome() {
		return d.config.StartTime.Unwrap(), d.config.EndTime.Unwrap(), nil
	}

	first, last, err := d.source.Bounds()
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	start, end := first, last
	if d.config.StartTime.IsSome() {
		start = d.config.StartTime.Unwrap()
	}

	if d.config.EndTime.IsSome() {
		end = d.config.EndTime.Unwrap()
	}

	return start, end, nil
}

func (d *Driver) fetchWindow(ctx context.Context, start time.Time, end time.Time) ([]types.Bar, error) {
	if rc, ok := d.source.(rangeContexter); ok {
		return rc.RangeContext(ctx, start, end)
	}

	return d.source.Range(start, end)
}

// processBar runs one full bar cycle. Rejected intents are reported and
// skipped; every other fault is fatal to the run.
func (d *Driver) processBar(bar types.Bar) error {
	if d.barsSeen > 0 && !bar.Time.After(d.lastTime) {
		return errors.Newf(errors.ErrCodeUnsortedData, "bar at %s does not advance past %s",
			bar.Time.Format(time.RFC3339), d.lastTime.Format(time.RFC3339))
	}

	d.history.Push(bar)
	d.lastTime = bar.Time
	d.barsSeen++

	if d.callbacks.OnBar != nil {
		d.callbacks.OnBar(d.barsSeen-1, bar)
	}

	intent, next, err := d.strat.GenerateSignal(d.history, d.signal)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeStrategyRuntime, err, "strategy %s failed at %s",
			d.strat.Name(), bar.Time.Format(time.RFC3339))
	}

	// The signal state advances even when the intent is later rejected:
	// the strategy has spoken for this crossing, and re-emitting the same
	// side on every subsequent bar would just repeat the rejection.
	d.signal = next

	if intent.IsSome() {
		if err := d.settle(intent.Unwrap(), bar); err != nil {
			return err
		}
	}

	if _, err := d.book.MarkToMarket(map[string]float64{d.instrument: bar.Close}, bar.Time); err != nil {
		return err
	}

	return nil
}

// settle submits one intent to the ledger at the bar's close.
func (d *Driver) settle(intent types.TradeIntent, bar types.Bar) error {
	order, err := d.book.Submit(d.instrument, intent, bar.Close, bar.Time, d.config.CommissionRate)
	if err == nil {
		d.log.Debug("order filled",
			zap.String("order_id", order.ID),
			zap.String("side", string(order.Side)),
			zap.Float64("quantity", order.Quantity),
			zap.Float64("fill_price", order.FillPrice))

		if d.callbacks.OnOrderFilled != nil {
			d.callbacks.OnOrderFilled(order)
		}

		return nil
	}

	if errors.IsRejection(err) {
		d.log.Debug("order rejected",
			zap.String("instrument", d.instrument),
			zap.String("side", string(intent.Side)),
			zap.Float64("quantity", intent.Quantity),
			zap.Error(err))

		if d.callbacks.OnOrderRejected != nil {
			d.callbacks.OnOrderRejected(intent, err)
		}

		return nil
	}

	return err
}

// assembleReport snapshots the ledger into a report and enriches it with
// risk metrics. Valid in both terminal states.
func (d *Driver) assembleReport() types.PerformanceReport {
	report := d.book.Summary()
	report.Instrument = d.instrument
	report.BarsProcessed = d.barsSeen
	d.calc.Enrich(&report)

	return report
}
