package backtest

import (
	"context"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/stratlab/backsim/internal/datasource"
	"github.com/stratlab/backsim/internal/logger"
	"github.com/stratlab/backsim/internal/strategy"
	"github.com/stratlab/backsim/internal/types"
	"github.com/stratlab/backsim/pkg/errors"
)

// SourceFactory resolves the bar source serving one instrument. The
// coordinator calls it once per instrument and closes the returned source
// when that instrument's run ends, so concurrent runs never share a source.
type SourceFactory func(instrument string) (datasource.BarSource, error)

// CoordinatorCallbacks are optional hooks into a multi-instrument run.
// OnInstrumentStart and OnInstrumentResult are serialized: at most one fires
// at a time even though runs proceed concurrently. DriverCallbacks, when
// set, supplies the per-bar hooks for one instrument's driver and is invoked
// from that instrument's worker goroutine.
type CoordinatorCallbacks struct {
	OnInstrumentStart  func(instrument string)
	OnInstrumentResult func(instrument string, report types.PerformanceReport, err error)
	DriverCallbacks    func(instrument string) Callbacks
}

// Coordinator fans a run configuration out across its instruments. Each
// instrument gets an isolated driver, a fresh strategy instance, and a
// capital slice proportional to its weight; one instrument's failure never
// stops the others.
type Coordinator struct {
	config  Config
	sources SourceFactory
	log     *logger.Logger
}

// NewCoordinator validates the configuration and the strategy selection up
// front, so a misconfigured run fails before any instrument starts.
func NewCoordinator(config Config, sources SourceFactory, log *logger.Logger) (*Coordinator, error) {
	if sources == nil {
		return nil, errors.New(errors.ErrCodeNoDataSource, "coordinator requires a source factory")
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if _, err := strategy.New(config.Strategy); err != nil {
		return nil, err
	}

	return &Coordinator{
		config:  config,
		sources: sources,
		log:     log,
	}, nil
}

// Run executes every configured instrument and combines the survivors. The
// returned report always carries whatever succeeded; the error is non-nil
// only when no instrument produced a report.
func (c *Coordinator) Run(ctx context.Context, callbacks CoordinatorCallbacks) (types.CombinedReport, error) {
	combined := types.CombinedReport{
		RunID:          uuid.New().String(),
		InitialCapital: c.config.InitialCapital,
		Reports:        make(map[string]*types.PerformanceReport, len(c.config.Instruments)),
		Failures:       make(map[string]string),
	}

	totalWeight := 0.0
	for _, instrument := range c.config.Instruments {
		totalWeight += instrument.Weight
	}

	allocations := make(map[string]float64, len(c.config.Instruments))
	for _, instrument := range c.config.Instruments {
		allocations[instrument.Symbol] = c.config.InitialCapital * instrument.Weight / totalWeight
	}

	parallelism := c.config.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}

	c.log.Debug("coordinated run started",
		zap.String("run_id", combined.RunID),
		zap.Int("instruments", len(c.config.Instruments)),
		zap.Int("parallelism", parallelism))

	// A plain errgroup, not WithContext: one instrument's failure is
	// recorded, never propagated as a cancellation of its siblings.
	var (
		mu    sync.Mutex
		group errgroup.Group
	)

	group.SetLimit(parallelism)

	for _, instrument := range c.config.Instruments {
		symbol := instrument.Symbol

		group.Go(func() error {
			mu.Lock()
			if callbacks.OnInstrumentStart != nil {
				callbacks.OnInstrumentStart(symbol)
			}
			mu.Unlock()

			report, err := c.runInstrument(ctx, symbol, allocations[symbol], callbacks)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				c.log.Debug("instrument failed", zap.String("instrument", symbol), zap.Error(err))
				combined.Failures[symbol] = err.Error()
			} else {
				combined.Reports[symbol] = &report
			}

			if callbacks.OnInstrumentResult != nil {
				callbacks.OnInstrumentResult(symbol, report, err)
			}

			return nil
		})
	}

	// Workers only record outcomes, they never return errors.
	_ = group.Wait()

	if len(combined.Reports) == 0 {
		return combined, errors.Newf(errors.ErrCodeAllRunsFailed, "all %d instruments failed", len(c.config.Instruments))
	}

	c.combine(&combined, allocations, totalWeight)

	c.log.Debug("coordinated run finished",
		zap.String("run_id", combined.RunID),
		zap.Int("succeeded", len(combined.Reports)),
		zap.Int("failed", len(combined.Failures)),
		zap.Float64("combined_return_pct", combined.CombinedReturnPct))

	return combined, nil
}

// runInstrument executes one instrument end to end on a capital slice.
func (c *Coordinator) runInstrument(ctx context.Context, symbol string, capital float64, callbacks CoordinatorCallbacks) (types.PerformanceReport, error) {
	source, err := c.sources(symbol)
	if err != nil {
		return types.PerformanceReport{}, errors.Wrapf(errors.ErrCodeDataNotFound, err, "no bar source for %s", symbol)
	}
	defer source.Close()

	// Fresh strategy per instrument: indicator accumulators must never be
	// shared across concurrent runs.
	strat, err := strategy.New(c.config.Strategy)
	if err != nil {
		return types.PerformanceReport{}, err
	}

	config := c.config
	config.InitialCapital = capital

	driver, err := NewDriver(config, source, strat, c.log)
	if err != nil {
		return types.PerformanceReport{}, err
	}

	var driverCallbacks Callbacks
	if callbacks.DriverCallbacks != nil {
		driverCallbacks = callbacks.DriverCallbacks(symbol)
	}

	return driver.Run(ctx, driverCallbacks)
}

// combine pools the surviving reports. The combined return treats the
// succeeded instruments as one pooled book: only their allocations count as
// the base. The weighted return averages per-instrument returns by
// configured weight across all instruments, so a failed instrument drags the
// average toward zero instead of silently inflating it.
func (c *Coordinator) combine(combined *types.CombinedReport, allocations map[string]float64, totalWeight float64) {
	allocated := decimal.Zero
	final := decimal.Zero

	for symbol, report := range combined.Reports {
		allocated = allocated.Add(decimal.NewFromFloat(allocations[symbol]))
		final = final.Add(decimal.NewFromFloat(report.FinalEquity))
	}

	combined.TotalFinalEquity, _ = final.Float64()

	if allocated.IsPositive() {
		pct := final.Sub(allocated).Div(allocated).Mul(decimal.NewFromInt(100))
		combined.CombinedReturnPct, _ = pct.Float64()
	}

	weighted := decimal.Zero
	total := decimal.NewFromFloat(totalWeight)

	for _, instrument := range c.config.Instruments {
		report, ok := combined.Reports[instrument.Symbol]
		if !ok {
			continue
		}

		share := decimal.NewFromFloat(instrument.Weight).Div(total)
		weighted = weighted.Add(share.Mul(decimal.NewFromFloat(report.TotalReturnPct)))
	}

	combined.WeightedReturnPct, _ = weighted.Float64()
}
