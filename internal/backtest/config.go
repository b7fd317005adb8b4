package backtest

import (
	"encoding/json"
	"os"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/moznion/go-optional"
	"gopkg.in/yaml.v2"

	"github.com/stratlab/backsim/internal/metrics"
	"github.com/stratlab/backsim/internal/strategy"
	"github.com/stratlab/backsim/internal/version"
	"github.com/stratlab/backsim/pkg/errors"
)

var validate = validator.New()

// DefaultWindowDays is the window width used when a run asks for chunked
// processing without choosing one.
const DefaultWindowDays = 30

// InstrumentConfig names one instrument of a run and its capital weight.
type InstrumentConfig struct {
	Symbol string  `yaml:"symbol" json:"symbol" validate:"required" jsonschema:"title=Symbol,description=Instrument identifier the bar source serves"`
	Weight float64 `yaml:"weight" json:"weight" validate:"gte=0" jsonschema:"title=Weight,description=Capital allocation weight; omitted means 1,default=1"`
}

// Config is the run configuration shared by the driver and the coordinator.
// Times are optional; an absent bound falls back to the bar source's own
// bounds. WindowDays zero means one contiguous pass.
type Config struct {
	SchemaVersion       string                     `yaml:"schema_version" json:"schema_version" jsonschema:"title=Schema Version,description=Configuration schema version this file was written against,default=1.0.0"`
	InitialCapital      float64                    `yaml:"initial_capital" json:"initial_capital" validate:"required,gt=0" jsonschema:"title=Initial Capital,description=Starting cash per unit weight,minimum=0"`
	CommissionRate      float64                    `yaml:"commission_rate" json:"commission_rate" validate:"gte=0,lt=1" jsonschema:"title=Commission Rate,description=Commission charged as a fraction of gross trade value,default=0.001"`
	StartTime           optional.Option[time.Time] `yaml:"start_time" json:"start_time" jsonschema:"title=Start Time,description=Optional start of the simulated period"`
	EndTime             optional.Option[time.Time] `yaml:"end_time" json:"end_time" jsonschema:"title=End Time,description=Optional end of the simulated period"`
	WindowDays          int                        `yaml:"window_days" json:"window_days" validate:"gte=0" jsonschema:"title=Window Days,description=Calendar days per processing window; 0 processes the whole range in one pass,default=0"`
	AnnualizationFactor float64                    `yaml:"annualization_factor" json:"annualization_factor" validate:"gte=0" jsonschema:"title=Annualization Factor,description=Periods per year for volatility and Sharpe scaling,default=252"`
	MaxHistoryBars      int                        `yaml:"max_history_bars" json:"max_history_bars" validate:"gte=0" jsonschema:"title=Max History Bars,description=Bars of history retained for the strategy; 0 retains everything,default=0"`
	Parallelism         int                        `yaml:"parallelism" json:"parallelism" validate:"gte=0" jsonschema:"title=Parallelism,description=Concurrent instrument runs; 0 uses the CPU count,default=0"`
	Strategy            strategy.Config            `yaml:"strategy" json:"strategy" jsonschema:"title=Strategy,description=Strategy variant and parameters"`
	Instruments         []InstrumentConfig         `yaml:"instruments" json:"instruments" validate:"min=1,dive" jsonschema:"title=Instruments,description=Instruments to simulate"`
}

// UnmarshalYAML implements custom unmarshaling for Config so absent times
// decode to None instead of the zero time.
func (c *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type plain struct {
		SchemaVersion       string             `yaml:"schema_version"`
		InitialCapital      float64            `yaml:"initial_capital"`
		CommissionRate      float64            `yaml:"commission_rate"`
		StartTime           *time.Time         `yaml:"start_time"`
		EndTime             *time.Time         `yaml:"end_time"`
		WindowDays          int                `yaml:"window_days"`
		AnnualizationFactor float64            `yaml:"annualization_factor"`
		MaxHistoryBars      int                `yaml:"max_history_bars"`
		Parallelism         int                `yaml:"parallelism"`
		Strategy            strategy.Config    `yaml:"strategy"`
		Instruments         []InstrumentConfig `yaml:"instruments"`
	}

	var raw plain
	if err := unmarshal(&raw); err != nil {
		return err
	}

	c.SchemaVersion = raw.SchemaVersion
	c.InitialCapital = raw.InitialCapital
	c.CommissionRate = raw.CommissionRate
	c.WindowDays = raw.WindowDays
	c.AnnualizationFactor = raw.AnnualizationFactor
	c.MaxHistoryBars = raw.MaxHistoryBars
	c.Parallelism = raw.Parallelism
	c.Strategy = raw.Strategy
	c.Instruments = raw.Instruments

	if raw.StartTime != nil {
		c.StartTime = optional.Some(*raw.StartTime)
	}

	if raw.EndTime != nil {
		c.EndTime = optional.Some(*raw.EndTime)
	}

	return nil
}

// applyDefaults fills the fields a minimal config may omit.
func (c *Config) applyDefaults() {
	if c.SchemaVersion == "" {
		c.SchemaVersion = version.SchemaVersion
	}

	if c.AnnualizationFactor == 0 {
		c.AnnualizationFactor = metrics.DefaultAnnualizationFactor
	}

	for i := range c.Instruments {
		if c.Instruments[i].Weight == 0 {
			c.Instruments[i].Weight = 1
		}
	}
}

// Validate checks the config against the schema version this build reads
// and the field constraints.
func (c *Config) Validate() error {
	if err := version.CheckSchemaCompatibility(version.SchemaVersion, c.SchemaVersion); err != nil {
		return errors.Wrap(errors.ErrCodeSchemaVersion, "unsupported configuration schema", err)
	}

	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid run configuration", err)
	}

	if c.StartTime.IsSome() && c.EndTime.IsSome() && c.EndTime.Unwrap().Before(c.StartTime.Unwrap()) {
		return errors.New(errors.ErrCodeInvalidConfiguration, "end_time precedes start_time")
	}

	totalWeight := 0.0
	for _, instrument := range c.Instruments {
		totalWeight += instrument.Weight
	}

	if totalWeight <= 0 {
		return errors.New(errors.ErrCodeInvalidWeight, "instrument weights sum to zero")
	}

	seen := make(map[string]struct{}, len(c.Instruments))
	for _, instrument := range c.Instruments {
		if _, dup := seen[instrument.Symbol]; dup {
			return errors.Newf(errors.ErrCodeInvalidConfiguration, "duplicate instrument %s", instrument.Symbol)
		}

		seen[instrument.Symbol] = struct{}{}
	}

	return nil
}

// ParseConfig decodes a YAML run configuration, fills defaults, and
// validates it.
func ParseConfig(content []byte) (Config, error) {
	var config Config

	if err := yaml.Unmarshal(content, &config); err != nil {
		return Config{}, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse run configuration", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}

// LoadConfig reads and parses a YAML run configuration file.
func LoadConfig(path string) (Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read configuration file %s", path)
	}

	return ParseConfig(content)
}

// GenerateSchema generates a JSON schema for the run configuration.
func (c *Config) GenerateSchema() (*jsonschema.Schema, error) {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  false,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t.String() == "optional.Option[time.Time]" {
				return &jsonschema.Schema{
					Type:   "string",
					Format: "date-time",
				}
			}

			return nil
		},
	}

	schema := reflector.Reflect(c)

	schema.Title = "backsim-run-config"
	schema.Description = "Configuration schema for a simulation run"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	return schema, nil
}

// GenerateSchemaJSON generates an indented JSON schema string for the run
// configuration.
func (c *Config) GenerateSchemaJSON() (string, error) {
	schema, err := c.GenerateSchema()
	if err != nil {
		return "", err
	}

	schemaBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", err
	}

	return string(schemaBytes), nil
}

// TestConfig returns a single-instrument configuration suitable for tests.
func TestConfig(symbol string, initialCapital float64) Config {
	config := Config{
		SchemaVersion:       version.SchemaVersion,
		InitialCapital:      initialCapital,
		CommissionRate:      0.001,
		AnnualizationFactor: metrics.DefaultAnnualizationFactor,
		Strategy:            strategy.Config{Name: "buy_and_hold"},
		Instruments:         []InstrumentConfig{{Symbol: symbol, Weight: 1}},
	}

	return config
}
