package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"

	"github.com/stratlab/backsim/internal/backtest"
	"github.com/stratlab/backsim/internal/datasource"
	"github.com/stratlab/backsim/internal/logger"
	"github.com/stratlab/backsim/internal/types"
	"github.com/stratlab/backsim/internal/version"
	"github.com/stratlab/backsim/internal/writer"
	"github.com/stratlab/backsim/mocks"
	"github.com/stratlab/backsim/pkg/marketdata"
	mdwriter "github.com/stratlab/backsim/pkg/marketdata/writer"
)

// runAction loads the run configuration, resolves a bar source per
// instrument, executes the coordinated run, and writes the result artifacts.
func runAction(ctx context.Context, cmd *cli.Command) error {
	writerKind := cmd.String("writer")
	outputDir := cmd.String("output")
	verbose := cmd.Bool("verbose")

	switch writerKind {
	case "csv", "duckdb":
	default:
		return fmt.Errorf("unknown writer %q (expected csv or duckdb)", writerKind)
	}

	baseLog := logger.NewNopLogger()

	if verbose {
		devLog, err := logger.NewDevelopmentLogger()
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}

		baseLog = devLog
		defer baseLog.Sync()
	}

	config, err := backtest.LoadConfig(cmd.String("config"))
	if err != nil {
		return err
	}

	factory, err := buildSourceFactory(ctx, cmd, config, baseLog)
	if err != nil {
		return err
	}

	coordinator, err := backtest.NewCoordinator(config, factory, baseLog)
	if err != nil {
		return err
	}

	// Stop between bars on interrupt; a cancelled run still reports what it
	// processed so far as a failure entry.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, stopping...")
		cancel()
	}()

	// Progress output and debug logging to the same terminal garble each
	// other, so verbose runs skip the bars.
	var callbacks backtest.CoordinatorCallbacks
	if !verbose {
		callbacks = progressCallbacks(config)
	}

	combined, err := coordinator.Run(ctx, callbacks)
	if err != nil {
		return err
	}

	runDir, err := writeResults(combined, outputDir, writerKind)
	if err != nil {
		return err
	}

	printSummary(combined, config, runDir)

	return nil
}

// buildSourceFactory maps the --source flag to a per-instrument bar source
// resolver.
func buildSourceFactory(ctx context.Context, cmd *cli.Command, config backtest.Config, log *logger.Logger) (backtest.SourceFactory, error) {
	interval := datasource.Interval(cmd.String("interval"))
	if _, err := interval.Duration(); err != nil {
		return nil, err
	}

	switch cmd.String("source") {
	case "synthetic":
		return syntheticFactory(cmd, config, interval)

	case "parquet":
		dataPath := cmd.String("data")
		if dataPath == "" {
			return nil, fmt.Errorf("the parquet source needs --data pointing at a parquet file")
		}

		return func(symbol string) (datasource.BarSource, error) {
			source, err := datasource.NewDuckDBSource(":memory:", symbol, log)
			if err != nil {
				return nil, err
			}

			if err := source.Initialize(dataPath); err != nil {
				source.Close()

				return nil, err
			}

			return source, nil
		}, nil

	case "binance":
		client, err := marketdata.NewClient(marketdata.Config{Provider: marketdata.ProviderBinance})
		if err != nil {
			return nil, err
		}

		return archiveFactory(ctx, client, config, interval, log)

	case "polygon":
		client, err := marketdata.NewClient(marketdata.Config{
			Provider:      marketdata.ProviderPolygon,
			PolygonAPIKey: os.Getenv("POLYGON_API_KEY"),
		})
		if err != nil {
			return nil, err
		}

		return archiveFactory(ctx, client, config, interval, log)

	default:
		return nil, fmt.Errorf("unknown source %q (expected synthetic, parquet, binance or polygon)", cmd.String("source"))
	}
}

// syntheticFactory generates every instrument's series up front, so the
// factory itself is a map lookup.
func syntheticFactory(cmd *cli.Command, config backtest.Config, interval datasource.Interval) (backtest.SourceFactory, error) {
	symbols := make([]string, 0, len(config.Instruments))
	for _, instrument := range config.Instruments {
		symbols = append(symbols, instrument.Symbol)
	}

	barInterval, err := interval.Duration()
	if err != nil {
		return nil, err
	}

	generatorConfig := mocks.DefaultConfig()
	generatorConfig.Count = int(cmd.Int("bars"))
	generatorConfig.Interval = barInterval

	if config.StartTime.IsSome() {
		generatorConfig.StartTime = config.StartTime.Unwrap()
	}

	generator := mocks.NewDataGenerator(cmd.Int("seed"))
	series := generator.GenerateMultiSymbol(symbols, generatorConfig)

	return func(symbol string) (datasource.BarSource, error) {
		return datasource.NewMemorySource(symbol, series[symbol])
	}, nil
}

// archiveFactory serves instruments from a provider-backed archive. Windowed
// runs fill the archive window by window; a contiguous run streams the cache,
// so it is filled up front here.
func archiveFactory(ctx context.Context, client *marketdata.Client, config backtest.Config, interval datasource.Interval, log *logger.Logger) (backtest.SourceFactory, error) {
	if config.StartTime.IsNone() || config.EndTime.IsNone() {
		return nil, fmt.Errorf("the %s source needs explicit start_time and end_time in the run configuration", client.ProviderName())
	}

	start := config.StartTime.Unwrap()
	end := config.EndTime.Unwrap()
	fetcher := datasource.ProviderFetcher{Client: client}

	return func(symbol string) (datasource.BarSource, error) {
		source, err := datasource.NewArchiveSource(symbol, interval, fetcher, log)
		if err != nil {
			return nil, err
		}

		if config.WindowDays == 0 {
			if err := source.EnsureRange(ctx, start, end); err != nil {
				source.Close()

				return nil, err
			}
		}

		return source, nil
	}, nil
}

// progressCallbacks wires progress bars into the run lifecycle: a per-bar bar
// for a single instrument, a per-instrument bar otherwise.
func progressCallbacks(config backtest.Config) backtest.CoordinatorCallbacks {
	if len(config.Instruments) == 1 {
		return backtest.CoordinatorCallbacks{
			DriverCallbacks: func(instrument string) backtest.Callbacks {
				var bar *progressbar.ProgressBar

				return backtest.Callbacks{
					OnRunStart: func(instrument string, totalBars int) {
						length := int64(totalBars)
						if length == 0 {
							// Unknown up front for lazily filled archives.
							length = -1
						}

						bar = progressbar.Default(length)
						bar.Describe(fmt.Sprintf("Replaying %s with %s", instrument, config.Strategy.Name))
					},
					OnBar: func(index int, b types.Bar) {
						if bar != nil {
							bar.Add(1)
						}
					},
					OnRunFinished: func(report types.PerformanceReport) {
						if bar != nil {
							bar.Finish()
						}
					},
				}
			},
		}
	}

	bar := progressbar.NewOptions(len(config.Instruments),
		progressbar.OptionSetDescription(fmt.Sprintf("Running %d instruments", len(config.Instruments))),
		progressbar.OptionShowCount())

	return backtest.CoordinatorCallbacks{
		OnInstrumentResult: func(instrument string, report types.PerformanceReport, err error) {
			bar.Add(1)
		},
	}
}

// writeResults writes per-instrument artifacts under <output>/<run id>/<symbol>
// and the combined report beside them.
func writeResults(combined types.CombinedReport, outputDir string, writerKind string) (string, error) {
	runDir := filepath.Join(outputDir, combined.RunID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create run directory: %w", err)
	}

	for symbol, report := range combined.Reports {
		if err := writeInstrument(filepath.Join(runDir, symbol), writerKind, *report); err != nil {
			return "", fmt.Errorf("failed to write results for %s: %w", symbol, err)
		}
	}

	if err := types.WriteCombinedReport(filepath.Join(runDir, "combined.yaml"), combined); err != nil {
		return "", err
	}

	return runDir, nil
}

func writeInstrument(dir string, writerKind string, report types.PerformanceReport) error {
	var (
		w   writer.ResultWriter
		err error
	)

	switch writerKind {
	case "duckdb":
		w, err = writer.NewDuckDBWriter(dir)
	default:
		w, err = writer.NewCSVWriter(dir)
	}

	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.WriteReport(report); err != nil {
		return err
	}

	if err := w.WriteTradeLog(report.TradeLog); err != nil {
		return err
	}

	return w.WriteEquityCurve(report.EquityCurve)
}

func printSummary(combined types.CombinedReport, config backtest.Config, runDir string) {
	fmt.Printf("\nRun %s: %d succeeded, %d failed\n",
		combined.RunID, len(combined.Reports), len(combined.Failures))

	symbols := make([]string, 0, len(combined.Reports))
	for symbol := range combined.Reports {
		symbols = append(symbols, symbol)
	}

	sort.Strings(symbols)

	for _, symbol := range symbols {
		report := combined.Reports[symbol]
		fmt.Printf("  %-12s return %8.2f%%  max drawdown %8.2f%%  sharpe %6.2f  trades %d\n",
			symbol, report.TotalReturnPct, report.MaxDrawdownPct, report.SharpeRatio, report.TotalTrades)
	}

	failed := make([]string, 0, len(combined.Failures))
	for symbol := range combined.Failures {
		failed = append(failed, symbol)
	}

	sort.Strings(failed)

	for _, symbol := range failed {
		fmt.Printf("  %-12s FAILED: %s\n", symbol, combined.Failures[symbol])
	}

	if len(combined.Reports) > 1 {
		fmt.Printf("Combined return %.2f%% (weighted %.2f%%), final equity %.2f\n",
			combined.CombinedReturnPct, combined.WeightedReturnPct, combined.TotalFinalEquity)
	}

	fmt.Printf("Results written to %s\n", runDir)
}

// fetchAction downloads historical bars from a provider and stores them as a
// parquet archive the run command's parquet source can replay.
func fetchAction(ctx context.Context, cmd *cli.Command) error {
	symbol := cmd.String("symbol")
	start := cmd.Timestamp("start")
	end := cmd.Timestamp("end")
	outputPath := cmd.String("output")

	interval := datasource.Interval(cmd.String("interval"))
	if _, err := interval.Duration(); err != nil {
		return err
	}

	fetchLog := logger.NewNopLogger()

	if cmd.Bool("verbose") {
		devLog, err := logger.NewDevelopmentLogger()
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}

		fetchLog = devLog
		defer fetchLog.Sync()
	}

	client, err := marketdata.NewClient(marketdata.Config{
		Provider:      marketdata.ProviderType(cmd.String("provider")),
		PolygonAPIKey: os.Getenv("POLYGON_API_KEY"),
	})
	if err != nil {
		return err
	}

	fmt.Printf("Fetching %s bars for %s from %s to %s via %s\n",
		interval, symbol, start.Format("2006-01-02"), end.Format("2006-01-02"), client.ProviderName())

	fetcher := datasource.ProviderFetcher{Client: client}

	bars, err := fetcher.FetchBars(ctx, symbol, interval, start, end)
	if err != nil {
		return err
	}

	if len(bars) == 0 {
		return fmt.Errorf("no bars returned for %s between %s and %s",
			symbol, start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	if outputPath == "" {
		outputPath = filepath.Join("data", fmt.Sprintf("%s_%s.parquet", symbol, interval))
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	barWriter := mdwriter.NewParquetBarWriter(outputPath, fetchLog)
	if err := barWriter.Initialize(); err != nil {
		return err
	}
	defer barWriter.Close()

	bar := progressbar.Default(int64(len(bars)))
	bar.Describe(fmt.Sprintf("Writing %s archive", symbol))

	for _, b := range bars {
		if err := barWriter.Write(b); err != nil {
			return err
		}

		bar.Add(1)
	}

	bar.Finish()

	path, err := barWriter.Finalize()
	if err != nil {
		return err
	}

	fmt.Printf("Wrote %d bars to %s\n", len(bars), path)

	return nil
}

func schemaAction(ctx context.Context, cmd *cli.Command) error {
	schema, err := (&backtest.Config{}).GenerateSchemaJSON()
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	fmt.Println(schema)

	return nil
}

func versionAction(ctx context.Context, cmd *cli.Command) error {
	fmt.Println(version.GetVersion())

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:    "backsim",
		Usage:   "Replay trading strategies over historical bars",
		Version: version.GetVersion(),
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Execute the run described by a configuration file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "config",
						Aliases:  []string{"c"},
						Usage:    "Path to the YAML run configuration",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "source",
						Aliases: []string{"s"},
						Usage:   "Bar source: synthetic, parquet, binance or polygon",
						Value:   "synthetic",
					},
					&cli.StringFlag{
						Name:    "data",
						Aliases: []string{"d"},
						Usage:   "Path to the parquet file for the parquet source",
					},
					&cli.StringFlag{
						Name:    "interval",
						Aliases: []string{"i"},
						Usage:   "Bar granularity, e.g. 1m, 1h, 1d",
						Value:   string(datasource.Interval1d),
					},
					&cli.IntFlag{
						Name:  "bars",
						Usage: "Bars per instrument for the synthetic source",
						Value: 250,
					},
					&cli.IntFlag{
						Name:  "seed",
						Usage: "Seed for the synthetic source",
						Value: 42,
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Directory result artifacts are written under",
						Value:   "results",
					},
					&cli.StringFlag{
						Name:    "writer",
						Aliases: []string{"w"},
						Usage:   "Result format: csv or duckdb (parquet)",
						Value:   "csv",
					},
					&cli.BoolFlag{
						Name:    "verbose",
						Aliases: []string{"v"},
						Usage:   "Log engine internals instead of progress bars",
					},
				},
				Action: runAction,
			},
			{
				Name:  "fetch",
				Usage: "Download historical bars into a parquet archive",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "symbol",
						Usage:    "Instrument symbol to download",
						Required: true,
					},
					&cli.TimestampFlag{
						Name:    "start",
						Aliases: []string{"s"},
						Usage:   "Start date in `YYYY-MM-DD` format (or other RFC3339 compatible)",
						Config: cli.TimestampConfig{
							Layouts: []string{"2006-01-02"},
						},
						Required: true,
					},
					&cli.TimestampFlag{
						Name:    "end",
						Aliases: []string{"e"},
						Usage:   "End date in `YYYY-MM-DD` format (or other RFC3339 compatible). Defaults to today.",
						Value:   time.Now(),
						Config: cli.TimestampConfig{
							Layouts: []string{"2006-01-02"},
						},
					},
					&cli.StringFlag{
						Name:    "provider",
						Aliases: []string{"p"},
						Usage:   "Data provider: binance or polygon",
						Value:   string(marketdata.ProviderBinance),
					},
					&cli.StringFlag{
						Name:    "interval",
						Aliases: []string{"i"},
						Usage:   "Bar granularity, e.g. 1m, 1h, 1d",
						Value:   string(datasource.Interval1d),
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Path of the parquet archive (defaults to data/<symbol>_<interval>.parquet)",
					},
					&cli.BoolFlag{
						Name:    "verbose",
						Aliases: []string{"v"},
						Usage:   "Log fetch internals instead of progress bars",
					},
				},
				Action: fetchAction,
			},
			{
				Name:   "schema",
				Usage:  "Print the JSON schema of the run configuration",
				Action: schemaAction,
			},
			{
				Name:   "version",
				Usage:  "Print the build version",
				Action: versionAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
