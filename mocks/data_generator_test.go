package mocks

import (
	"testing"
	"time"
)

func TestDataGenerator_Generate(t *testing.T) {
	gen := NewDataGenerator(42) // Fixed seed for reproducibility
	config := DefaultConfig()
	config.Count = 100

	bars := gen.Generate(config)

	if len(bars) != 100 {
		t.Errorf("expected 100 bars, got %d", len(bars))
	}

	// Verify bars are in chronological order
	for i := 1; i < len(bars); i++ {
		if !bars[i].Time.After(bars[i-1].Time) {
			t.Errorf("bars not in chronological order at index %d", i)
		}
	}

	// Verify symbol is set correctly
	for i, b := range bars {
		if b.Symbol != config.Symbol {
			t.Errorf("expected symbol %s at index %d, got %s", config.Symbol, i, b.Symbol)
		}
	}

	// Verify OHLC values are positive
	for i, b := range bars {
		if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
			t.Errorf("invalid OHLC values at index %d: O=%f H=%f L=%f C=%f",
				i, b.Open, b.High, b.Low, b.Close)
		}
	}

	// Verify High >= Low
	for i, b := range bars {
		if b.High < b.Low {
			t.Errorf("High < Low at index %d: H=%f L=%f", i, b.High, b.Low)
		}
	}

	// Verify time intervals
	expectedInterval := config.Interval
	for i := 1; i < len(bars); i++ {
		actualInterval := bars[i].Time.Sub(bars[i-1].Time)
		if actualInterval != expectedInterval {
			t.Errorf("unexpected interval at index %d: expected %v, got %v",
				i, expectedInterval, actualInterval)
		}
	}
}

func TestDataGenerator_Reproducibility(t *testing.T) {
	// Same seed should produce same results
	gen1 := NewDataGenerator(42)
	gen2 := NewDataGenerator(42)

	config := DefaultConfig()
	config.Count = 10

	bars1 := gen1.Generate(config)
	bars2 := gen2.Generate(config)

	for i := range bars1 {
		if bars1[i].Close != bars2[i].Close {
			t.Errorf("bars not reproducible at index %d: got %f and %f",
				i, bars1[i].Close, bars2[i].Close)
		}
	}
}

func TestDataGenerator_Different_Seeds(t *testing.T) {
	gen1 := NewDataGenerator(42)
	gen2 := NewDataGenerator(123)

	config := DefaultConfig()
	config.Count = 10

	bars1 := gen1.Generate(config)
	bars2 := gen2.Generate(config)

	// Different seeds should produce different results
	sameCount := 0
	for i := range bars1 {
		if bars1[i].Close == bars2[i].Close {
			sameCount++
		}
	}

	if sameCount == len(bars1) {
		t.Error("different seeds produced identical bars")
	}
}

func TestGenerateDaily(t *testing.T) {
	bars := GenerateDaily("TEST", 300)

	if len(bars) != 300 {
		t.Errorf("expected 300 bars, got %d", len(bars))
	}

	if bars[0].Symbol != "TEST" {
		t.Errorf("expected symbol TEST, got %s", bars[0].Symbol)
	}

	// Verify chronological order
	for i := 1; i < len(bars); i++ {
		if !bars[i].Time.After(bars[i-1].Time) {
			t.Errorf("bars not in chronological order at index %d", i)
		}
	}

	// Same symbol and count must reproduce the same series
	again := GenerateDaily("TEST", 300)
	for i := range bars {
		if bars[i].Close != again[i].Close {
			t.Errorf("series not reproducible at index %d", i)
		}
	}
}

func TestGenerateMultiSymbol(t *testing.T) {
	symbols := []string{"AAPL", "GOOG", "MSFT"}
	gen := NewDataGenerator(42)
	config := DefaultConfig()
	config.Count = 100

	series := gen.GenerateMultiSymbol(symbols, config)

	if len(series) != len(symbols) {
		t.Errorf("expected %d series, got %d", len(symbols), len(series))
	}

	for _, symbol := range symbols {
		bars, ok := series[symbol]
		if !ok {
			t.Errorf("missing series for %s", symbol)
			continue
		}

		if len(bars) != config.Count {
			t.Errorf("expected %d bars for %s, got %d", config.Count, symbol, len(bars))
		}

		for i, b := range bars {
			if b.Symbol != symbol {
				t.Errorf("expected symbol %s at index %d, got %s", symbol, i, b.Symbol)
			}
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Count != 250 {
		t.Errorf("expected default count 250, got %d", config.Count)
	}

	if config.Symbol != "TEST" {
		t.Errorf("expected default symbol TEST, got %s", config.Symbol)
	}

	if config.Interval != 24*time.Hour {
		t.Errorf("expected default interval 24h, got %v", config.Interval)
	}

	if config.InitialPrice != 100.0 {
		t.Errorf("expected default initial price 100.0, got %f", config.InitialPrice)
	}
}
