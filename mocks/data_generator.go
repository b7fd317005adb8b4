// Package mocks holds generated test doubles and the synthetic bar
// generator shared by tests and the CLI's synthetic source mode.
package mocks

import (
	"math"
	"math/rand"
	"time"

	"github.com/stratlab/backsim/internal/types"
)

// DataGenerator produces synthetic OHLCV bars following geometric Brownian
// motion. A fixed seed reproduces the exact same series.
type DataGenerator struct {
	rng *rand.Rand
}

// NewDataGenerator creates a generator with the given seed.
func NewDataGenerator(seed int64) *DataGenerator {
	return &DataGenerator{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// GeneratorConfig shapes one generated series.
type GeneratorConfig struct {
	// Symbol stamps every generated bar.
	Symbol string
	// StartTime is the timestamp of the first bar.
	StartTime time.Time
	// Interval is the spacing between bars.
	Interval time.Duration
	// Count is the number of bars to generate.
	Count int
	// InitialPrice is the open of the first bar.
	InitialPrice float64
	// Volatility is the per-bar movement scale (0.02 = 2% typical).
	Volatility float64
	// Trend is the total drift across the whole series (-0.5 to 0.5 is
	// a strongly bearish to strongly bullish year).
	Trend float64
	// VolumeBase is the average volume per bar.
	VolumeBase float64
	// VolumeVariance is the volume spread around the base (0.0 to 1.0).
	VolumeVariance float64
}

// DefaultConfig returns a neutral daily series: one trading year of bars at
// 2% daily volatility.
func DefaultConfig() GeneratorConfig {
	return GeneratorConfig{
		Symbol:         "TEST",
		StartTime:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Interval:       24 * time.Hour,
		Count:          250,
		InitialPrice:   100.0,
		Volatility:     0.02,
		Trend:          0.0,
		VolumeBase:     10000,
		VolumeVariance: 0.3,
	}
}

// Generate produces config.Count bars. Prices follow geometric Brownian
// motion with the configured drift; highs and lows extend past the
// open-close span, and lows never cross zero.
func (g *DataGenerator) Generate(config GeneratorConfig) []types.Bar {
	bars := make([]types.Bar, config.Count)
	currentPrice := config.InitialPrice
	currentTime := config.StartTime

	for i := 0; i < config.Count; i++ {
		open := currentPrice

		// Box-Muller transform for a normally distributed step.
		u1 := g.rng.Float64()
		u2 := g.rng.Float64()
		z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)

		priceChange := config.Volatility * z
		drift := config.Trend / float64(config.Count)

		close := open * (1 + priceChange + drift)
		if close <= 0 {
			close = open * 0.99
		}

		highExtension := math.Abs(g.rng.Float64() * config.Volatility * open * 0.5)
		lowExtension := math.Abs(g.rng.Float64() * config.Volatility * open * 0.5)

		high := math.Max(open, close) + highExtension

		low := math.Min(open, close) - lowExtension
		if low <= 0 {
			low = math.Min(open, close) * 0.99
		}

		volumeVariation := 1.0 + (g.rng.Float64()*2-1)*config.VolumeVariance

		volume := config.VolumeBase * volumeVariation
		if volume < 0 {
			volume = config.VolumeBase * 0.1
		}

		bars[i] = types.Bar{
			Symbol: config.Symbol,
			Time:   currentTime,
			Open:   roundToDecimals(open, 4),
			High:   roundToDecimals(high, 4),
			Low:    roundToDecimals(low, 4),
			Close:  roundToDecimals(close, 4),
			Volume: roundToDecimals(volume, 2),
		}

		currentPrice = close
		currentTime = currentTime.Add(config.Interval)
	}

	return bars
}

// GenerateMultiSymbol produces one series per symbol, keyed by symbol. Each
// symbol gets a slightly different initial price and volatility so the
// series are correlated in shape but not identical.
func (g *DataGenerator) GenerateMultiSymbol(symbols []string, baseConfig GeneratorConfig) map[string][]types.Bar {
	series := make(map[string][]types.Bar, len(symbols))

	for _, symbol := range symbols {
		config := baseConfig
		config.Symbol = symbol
		config.InitialPrice = baseConfig.InitialPrice * (0.8 + g.rng.Float64()*0.4)
		config.Volatility = baseConfig.Volatility * (0.8 + g.rng.Float64()*0.4)

		series[symbol] = g.Generate(config)
	}

	return series
}

// GenerateDaily is a convenience for tests: count neutral daily bars for one
// symbol from a fixed seed.
func GenerateDaily(symbol string, count int) []types.Bar {
	gen := NewDataGenerator(42)
	config := DefaultConfig()
	config.Symbol = symbol
	config.Count = count

	return gen.Generate(config)
}

// roundToDecimals rounds a float64 to the given number of decimal places.
func roundToDecimals(val float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))

	return math.Round(val*pow) / pow
}
