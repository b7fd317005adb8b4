package backtest

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/stratlab/backsim/internal/datasource"
	"github.com/stratlab/backsim/internal/strategy"
	"github.com/stratlab/backsim/internal/types"
	"github.com/stratlab/backsim/pkg/errors"
)

type CoordinatorTestSuite struct {
	suite.Suite
	base time.Time
}

func TestCoordinatorSuite(t *testing.T) {
	suite.Run(t, new(CoordinatorTestSuite))
}

func (suite *CoordinatorTestSuite) SetupTest() {
	suite.base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
}

func (suite *CoordinatorTestSuite) flatBars(symbol string, closes ...float64) []types.Bar {
	bars := make([]types.Bar, len(closes))
	for i, close := range closes {
		bars[i] = types.Bar{
			Symbol: symbol,
			Time:   suite.base.AddDate(0, 0, i),
			Open:   close,
			High:   close,
			Low:    close,
			Close:  close,
			Volume: 1000,
		}
	}

	return bars
}

// factory serves memory sources from a fixture map; unknown instruments
// fail resolution.
func (suite *CoordinatorTestSuite) factory(series map[string][]types.Bar) SourceFactory {
	return func(instrument string) (datasource.BarSource, error) {
		bars, ok := series[instrument]
		if !ok {
			return nil, errors.Newf(errors.ErrCodeDataNotFound, "unknown instrument %s", instrument)
		}

		return datasource.NewMemorySource(instrument, bars)
	}
}

func (suite *CoordinatorTestSuite) newConfig(capital, positionSize float64, instruments ...InstrumentConfig) Config {
	return Config{
		InitialCapital: capital,
		CommissionRate: 0,
		Strategy: strategy.Config{
			Name:   "buy_and_hold",
			Params: map[string]any{"position_size": positionSize},
		},
		Instruments: instruments,
	}
}

func (suite *CoordinatorTestSuite) TestEqualSplitAcrossInstruments() {
	series := map[string][]types.Bar{
		"UP":   suite.flatBars("UP", 100, 110),
		"FLAT": suite.flatBars("FLAT", 50, 50),
	}

	config := suite.newConfig(10000, 4000,
		InstrumentConfig{Symbol: "UP"},
		InstrumentConfig{Symbol: "FLAT"},
	)

	coordinator, err := NewCoordinator(config, suite.factory(series), nil)
	suite.Require().NoError(err)

	combined, err := coordinator.Run(context.Background(), CoordinatorCallbacks{})
	suite.Require().NoError(err)

	_, err = uuid.Parse(combined.RunID)
	suite.NoError(err)
	suite.Equal(10000.0, combined.InitialCapital)

	suite.Require().Len(combined.Reports, 2)
	suite.Empty(combined.Failures)

	// Omitted weights default to 1, so each instrument runs on half the
	// capital.
	up := combined.Reports["UP"]
	suite.Equal(5000.0, up.InitialCapital)
	suite.Equal(5400.0, up.FinalEquity)
	suite.Equal(8.0, up.TotalReturnPct)

	flat := combined.Reports["FLAT"]
	suite.Equal(5000.0, flat.InitialCapital)
	suite.Equal(5000.0, flat.FinalEquity)
	suite.Equal(0.0, flat.TotalReturnPct)

	suite.Equal(10400.0, combined.TotalFinalEquity)
	suite.Equal(4.0, combined.CombinedReturnPct)
	suite.Equal(4.0, combined.WeightedReturnPct)
}

func (suite *CoordinatorTestSuite) TestWeightedAllocation() {
	series := map[string][]types.Bar{
		"HEAVY": suite.flatBars("HEAVY", 100, 100),
		"LIGHT": suite.flatBars("LIGHT", 100, 100),
	}

	config := suite.newConfig(10000, 1000,
		InstrumentConfig{Symbol: "HEAVY", Weight: 3},
		InstrumentConfig{Symbol: "LIGHT", Weight: 1},
	)

	coordinator, err := NewCoordinator(config, suite.factory(series), nil)
	suite.Require().NoError(err)

	combined, err := coordinator.Run(context.Background(), CoordinatorCallbacks{})
	suite.Require().NoError(err)

	suite.Equal(7500.0, combined.Reports["HEAVY"].InitialCapital)
	suite.Equal(2500.0, combined.Reports["LIGHT"].InitialCapital)
}

func (suite *CoordinatorTestSuite) TestPartialFailureKeepsSurvivors() {
	series := map[string][]types.Bar{
		"UP":    suite.flatBars("UP", 100, 110),
		"EMPTY": nil,
	}

	config := suite.newConfig(10000, 4000,
		InstrumentConfig{Symbol: "UP"},
		InstrumentConfig{Symbol: "EMPTY"},
	)

	coordinator, err := NewCoordinator(config, suite.factory(series), nil)
	suite.Require().NoError(err)

	combined, err := coordinator.Run(context.Background(), CoordinatorCallbacks{})
	suite.Require().NoError(err)

	suite.Require().Len(combined.Reports, 1)
	suite.Contains(combined.Reports, "UP")
	suite.Require().Len(combined.Failures, 1)
	suite.Contains(combined.Failures, "EMPTY")

	// The pooled return covers only the surviving allocation, while the
	// weighted average still counts the failed instrument's weight.
	suite.Equal(8.0, combined.CombinedReturnPct)
	suite.Equal(4.0, combined.WeightedReturnPct)
	suite.Equal(5400.0, combined.TotalFinalEquity)
}

func (suite *CoordinatorTestSuite) TestAllInstrumentsFailed() {
	series := map[string][]types.Bar{
		"EMPTY": nil,
	}

	config := suite.newConfig(10000, 4000,
		InstrumentConfig{Symbol: "EMPTY"},
		InstrumentConfig{Symbol: "MISSING"},
	)

	coordinator, err := NewCoordinator(config, suite.factory(series), nil)
	suite.Require().NoError(err)

	combined, err := coordinator.Run(context.Background(), CoordinatorCallbacks{})
	suite.True(errors.HasCode(err, errors.ErrCodeAllRunsFailed))
	suite.Empty(combined.Reports)
	suite.Len(combined.Failures, 2)
	suite.NotEmpty(combined.RunID)
}

func (suite *CoordinatorTestSuite) TestConstructorValidation() {
	series := map[string][]types.Bar{"A": suite.flatBars("A", 100)}
	valid := suite.newConfig(10000, 1000, InstrumentConfig{Symbol: "A"})

	_, err := NewCoordinator(valid, nil, nil)
	suite.True(errors.HasCode(err, errors.ErrCodeNoDataSource))

	unknown := valid
	unknown.Strategy = strategy.Config{Name: "teleportation"}
	_, err = NewCoordinator(unknown, suite.factory(series), nil)
	suite.True(errors.HasCode(err, errors.ErrCodeUnknownStrategy))

	duplicated := valid
	duplicated.Instruments = []InstrumentConfig{{Symbol: "A"}, {Symbol: "A"}}
	_, err = NewCoordinator(duplicated, suite.factory(series), nil)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))

	empty := valid
	empty.Instruments = nil
	_, err = NewCoordinator(empty, suite.factory(series), nil)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (suite *CoordinatorTestSuite) TestCallbacksFirePerInstrument() {
	series := map[string][]types.Bar{
		"A": suite.flatBars("A", 100, 101, 102),
		"B": suite.flatBars("B", 200, 201, 202),
		"C": suite.flatBars("C", 300, 301, 302),
	}

	config := suite.newConfig(9000, 1000,
		InstrumentConfig{Symbol: "A"},
		InstrumentConfig{Symbol: "B"},
		InstrumentConfig{Symbol: "C"},
	)
	config.Parallelism = 2

	coordinator, err := NewCoordinator(config, suite.factory(series), nil)
	suite.Require().NoError(err)

	barCounts := map[string]*int32{
		"A": new(int32),
		"B": new(int32),
		"C": new(int32),
	}

	var started, finished []string

	combined, err := coordinator.Run(context.Background(), CoordinatorCallbacks{
		OnInstrumentStart: func(instrument string) {
			started = append(started, instrument)
		},
		OnInstrumentResult: func(instrument string, report types.PerformanceReport, err error) {
			suite.NoError(err)
			finished = append(finished, instrument)
		},
		DriverCallbacks: func(instrument string) Callbacks {
			count := barCounts[instrument]

			return Callbacks{
				OnBar: func(index int, bar types.Bar) {
					atomic.AddInt32(count, 1)
				},
			}
		},
	})
	suite.Require().NoError(err)

	suite.ElementsMatch([]string{"A", "B", "C"}, started)
	suite.ElementsMatch([]string{"A", "B", "C"}, finished)
	suite.Len(combined.Reports, 3)

	for symbol, count := range barCounts {
		suite.Equal(int32(3), atomic.LoadInt32(count), "bars for %s", symbol)
	}
}

func (suite *CoordinatorTestSuite) TestCancelledContextFailsEverything() {
	series := map[string][]types.Bar{
		"A": suite.flatBars("A", 100, 101),
		"B": suite.flatBars("B", 200, 201),
	}

	config := suite.newConfig(10000, 1000,
		InstrumentConfig{Symbol: "A"},
		InstrumentConfig{Symbol: "B"},
	)

	coordinator, err := NewCoordinator(config, suite.factory(series), nil)
	suite.Require().NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	combined, err := coordinator.Run(ctx, CoordinatorCallbacks{})
	suite.True(errors.HasCode(err, errors.ErrCodeAllRunsFailed))
	suite.Len(combined.Failures, 2)
}
