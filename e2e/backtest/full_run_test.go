package backtest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
	"gopkg.in/yaml.v3"

	"github.com/stratlab/backsim/internal/backtest"
	"github.com/stratlab/backsim/internal/datasource"
	"github.com/stratlab/backsim/internal/logger"
	"github.com/stratlab/backsim/internal/types"
	"github.com/stratlab/backsim/internal/writer"
	"github.com/stratlab/backsim/mocks"
	mdwriter "github.com/stratlab/backsim/pkg/marketdata/writer"
)

const runConfigYAML = `
initial_capital: 100000
commission_rate: 0.001
strategy:
  name: buy_and_hold
  params:
    position_size: 10000
instruments:
  - symbol: BTCUSDT
    weight: 1
  - symbol: ETHUSDT
    weight: 1
`

// FullRunTestSuite replays the whole pipeline the CLI drives: generate bars,
// archive them as parquet, run the coordinated simulation off that archive,
// and persist the result artifacts with both writers.
type FullRunTestSuite struct {
	suite.Suite
	barCount    int
	parquetPath string
	config      backtest.Config
}

func TestFullRunSuite(t *testing.T) {
	suite.Run(t, new(FullRunTestSuite))
}

func (s *FullRunTestSuite) SetupTest() {
	tmpDir := s.T().TempDir()
	s.barCount = 90
	s.parquetPath = filepath.Join(tmpDir, "bars.parquet")

	generatorConfig := mocks.DefaultConfig()
	generatorConfig.Count = s.barCount

	generator := mocks.NewDataGenerator(7)
	series := generator.GenerateMultiSymbol([]string{"BTCUSDT", "ETHUSDT"}, generatorConfig)

	barWriter := mdwriter.NewParquetBarWriter(s.parquetPath, nil)
	s.Require().NoError(barWriter.Initialize())

	for _, bars := range series {
		for _, bar := range bars {
			s.Require().NoError(barWriter.Write(bar))
		}
	}

	_, err := barWriter.Finalize()
	s.Require().NoError(err)
	s.Require().NoError(barWriter.Close())

	configPath := filepath.Join(tmpDir, "config.yaml")
	s.Require().NoError(os.WriteFile(configPath, []byte(runConfigYAML), 0644))

	s.config, err = backtest.LoadConfig(configPath)
	s.Require().NoError(err)
}

// sourceFactory serves every instrument from the archive written in setup,
// the same way the CLI's parquet source does.
func (s *FullRunTestSuite) sourceFactory() backtest.SourceFactory {
	return func(symbol string) (datasource.BarSource, error) {
		source, err := datasource.NewDuckDBSource(":memory:", symbol, logger.NewNopLogger())
		if err != nil {
			return nil, err
		}

		if err := source.Initialize(s.parquetPath); err != nil {
			source.Close()

			return nil, err
		}

		return source, nil
	}
}

func (s *FullRunTestSuite) runCoordinated() types.CombinedReport {
	coordinator, err := backtest.NewCoordinator(s.config, s.sourceFactory(), logger.NewNopLogger())
	s.Require().NoError(err)

	combined, err := coordinator.Run(context.Background(), backtest.CoordinatorCallbacks{})
	s.Require().NoError(err)

	return combined
}

func (s *FullRunTestSuite) TestArchiveToCombinedReport() {
	combined := s.runCoordinated()

	s.NotEmpty(combined.RunID)
	s.Empty(combined.Failures)
	s.Require().Len(combined.Reports, 2)

	totalEquity := 0.0

	for _, symbol := range []string{"BTCUSDT", "ETHUSDT"} {
		report, ok := combined.Reports[symbol]
		s.Require().True(ok, "missing report for %s", symbol)

		s.Equal(symbol, report.Instrument)
		s.Equal("BuyAndHold", report.StrategyName)
		s.Equal(50000.0, report.InitialCapital)
		s.Equal(s.barCount, report.BarsProcessed)
		s.Len(report.EquityCurve, s.barCount)

		// Buy and hold enters exactly once and never exits.
		s.Equal(1, report.TotalTrades)
		s.Require().Len(report.TradeLog, 1)
		s.Equal(types.SideBuy, report.TradeLog[0].Side)
		s.InDelta(10.0, report.CommissionPaid, 1e-9)

		s.Greater(report.FinalEquity, 0.0)
		s.InDelta((report.FinalEquity-50000.0)/50000.0*100, report.TotalReturnPct, 1e-6)

		totalEquity += report.FinalEquity
	}

	s.InDelta(totalEquity, combined.TotalFinalEquity, 1e-6)
	s.InDelta((totalEquity-100000.0)/100000.0*100, combined.CombinedReturnPct, 1e-6)
}

func (s *FullRunTestSuite) TestRunIsDeterministic() {
	first := s.runCoordinated()
	second := s.runCoordinated()

	for symbol, report := range first.Reports {
		other, ok := second.Reports[symbol]
		s.Require().True(ok)

		s.Equal(report.FinalEquity, other.FinalEquity)
		s.Equal(report.TotalReturnPct, other.TotalReturnPct)
		s.Equal(report.MaxDrawdownPct, other.MaxDrawdownPct)
		s.Equal(report.SharpeRatio, other.SharpeRatio)
	}
}

func (s *FullRunTestSuite) TestArtifactsRoundTrip() {
	combined := s.runCoordinated()

	runDir := filepath.Join(s.T().TempDir(), combined.RunID)
	s.Require().NoError(os.MkdirAll(runDir, 0755))

	// CSV artifacts for one instrument, parquet for the other, matching the
	// CLI's per-instrument layout.
	btcReport := combined.Reports["BTCUSDT"]
	csvDir := filepath.Join(runDir, "BTCUSDT")

	csvWriter, err := writer.NewCSVWriter(csvDir)
	s.Require().NoError(err)
	s.Require().NoError(csvWriter.WriteReport(*btcReport))
	s.Require().NoError(csvWriter.WriteTradeLog(btcReport.TradeLog))
	s.Require().NoError(csvWriter.WriteEquityCurve(btcReport.EquityCurve))
	s.Require().NoError(csvWriter.Close())

	ethReport := combined.Reports["ETHUSDT"]
	duckDir := filepath.Join(runDir, "ETHUSDT")

	duckWriter, err := writer.NewDuckDBWriter(duckDir)
	s.Require().NoError(err)
	s.Require().NoError(duckWriter.WriteReport(*ethReport))
	s.Require().NoError(duckWriter.WriteTradeLog(ethReport.TradeLog))
	s.Require().NoError(duckWriter.WriteEquityCurve(ethReport.EquityCurve))
	s.Require().NoError(duckWriter.Close())

	s.Require().NoError(types.WriteCombinedReport(filepath.Join(runDir, "combined.yaml"), combined))

	tradesCSV, err := os.ReadFile(filepath.Join(csvDir, "trades.csv"))
	s.Require().NoError(err)
	s.Contains(string(tradesCSV), "BTCUSDT")
	s.Contains(string(tradesCSV), "BUY")

	var reloaded types.PerformanceReport

	reportYAML, err := os.ReadFile(filepath.Join(csvDir, "report.yaml"))
	s.Require().NoError(err)
	s.Require().NoError(yaml.Unmarshal(reportYAML, &reloaded))
	s.Equal(btcReport.FinalEquity, reloaded.FinalEquity)
	s.Equal(btcReport.TotalTrades, reloaded.TotalTrades)

	for _, name := range []string{"trades.parquet", "equity_curve.parquet", "report.yaml"} {
		_, err := os.Stat(filepath.Join(duckDir, name))
		s.NoError(err, "missing artifact %s", name)
	}

	var reloadedCombined types.CombinedReport

	combinedYAML, err := os.ReadFile(filepath.Join(runDir, "combined.yaml"))
	s.Require().NoError(err)
	s.Require().NoError(yaml.Unmarshal(combinedYAML, &reloadedCombined))
	s.Equal(combined.RunID, reloadedCombined.RunID)
	s.InDelta(combined.TotalFinalEquity, reloadedCombined.TotalFinalEquity, 1e-6)
}

func (s *FullRunTestSuite) TestWindowedRunMatchesContiguous() {
	contiguous := s.runCoordinated()

	windowed := s.config
	windowed.WindowDays = 30

	coordinator, err := backtest.NewCoordinator(windowed, s.sourceFactory(), logger.NewNopLogger())
	s.Require().NoError(err)

	combined, err := coordinator.Run(context.Background(), backtest.CoordinatorCallbacks{})
	s.Require().NoError(err)

	for symbol, report := range contiguous.Reports {
		other, ok := combined.Reports[symbol]
		s.Require().True(ok, "windowed run lost %s", symbol)

		s.Equal(report.BarsProcessed, other.BarsProcessed)
		s.InDelta(report.FinalEquity, other.FinalEquity, 1e-9)
		s.InDelta(report.TotalReturnPct, other.TotalReturnPct, 1e-9)
		s.Equal(report.TotalTrades, other.TotalTrades)
	}
}
