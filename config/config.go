package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/activecm/beaconsift/util"

	"github.com/go-playground/validator/v10"
	"github.com/hjson/hjson-go/v4"
	"github.com/spf13/afero"
)

var Version string

const DefaultConfigPath = "./config.hjson"

var errReadingConfigFile = errors.New("encountered an error while reading the config file")

type (
	Config struct {
		Env     Env     `json:"env"`
		Scoring Scoring `json:"scoring" validate:"required"`
	}

	Env struct { // set by .env file
		LogLevel int8 `validate:"min=-1,max=7"` // LOG_LEVEL
	}

	Scoring struct {
		Beacon BeaconScoring `json:"beacon" validate:"required"`
	}

	// BeaconScoring holds the tunables for the beacon scoring engine. The values
	// are read once at startup and never mutated during a scoring run.
	BeaconScoring struct {
		UniqueConnectionThreshold         int64   `json:"unique_connection_threshold" validate:"gte=2"`
		TimestampScoreWeight              float64 `json:"timestamp_score_weight" validate:"gte=0,lte=1"`
		DatasizeScoreWeight               float64 `json:"datasize_score_weight" validate:"gte=0,lte=1"`
		DurationScoreWeight               float64 `json:"duration_score_weight" validate:"gte=0,lte=1"`
		HistogramScoreWeight              float64 `json:"histogram_score_weight" validate:"gte=0,lte=1"`
		HistogramBucketCount              int32   `json:"histogram_bucket_count" validate:"gte=1,lte=168"`
		DurationMinHoursSeen              int32   `json:"duration_min_hours_seen" validate:"gte=1,lte=24"`
		DurationConsistencyIdealHoursSeen int32   `json:"duration_consistency_ideal_hours_seen" validate:"gte=1,lte=24"`
		HistogramModeSensitivity          float64 `json:"histogram_mode_sensitivity" validate:"gte=0,lte=1"`
		HistogramBimodalOutlierRemoval    int32   `json:"histogram_bimodal_outlier_removal" validate:"gte=0,lte=24"`
		HistogramBimodalMinHoursSeen      int32   `json:"histogram_bimodal_min_hours_seen" validate:"gte=3,lte=24"`
	}
)

// ReadFileConfig attempts to read the config file at the specified path and
// returns a config object
func ReadFileConfig(afs afero.Fs, path string) (*Config, error) {
	// read the config file
	contents, err := util.GetFileContents(afs, path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("%w, located by default at '%s', please correct the issue in the config and try again:\n\t- %w", errReadingConfigFile, path, err)
	}

	return &cfg, nil
}

// LoadConfig returns the config from the given path if it exists, falling back
// to the default config when no file is present
func LoadConfig(afs afero.Fs, path string) (*Config, error) {
	exists, err := afero.Exists(afs, path)
	if err != nil {
		return nil, err
	}

	if !exists {
		cfg := GetDefaultConfig()
		cfg.setEnv()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return &cfg, nil
	}

	return ReadFileConfig(afs, path)
}

// ReadConfigFromMemory reads the config from bytes already read into memory as
// opposed to reading from a file
func ReadConfigFromMemory(data []byte) (*Config, error) {
	var cfg Config
	if err := unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) setEnv() {
	// get the log level, defaulting to info when unset or unparseable
	c.Env.LogLevel = 1
	if logLevelStr := os.Getenv("LOG_LEVEL"); logLevelStr != "" {
		if logLevel, err := strconv.Atoi(logLevelStr); err == nil {
			c.Env.LogLevel = int8(logLevel)
		}
	}
}

// unmarshal unmarshals the data into the config struct, sets the environment
// variables, and validates the values
func unmarshal(data []byte, cfg *Config) error {
	if err := hjson.Unmarshal(data, &cfg); err != nil {
		return err
	}

	// set the environment struct
	cfg.setEnv()

	// validate values
	if err := cfg.Validate(); err != nil {
		return err
	}
	return nil
}

// UnmarshalJSON unmarshals the JSON bytes into the config struct
// overrides the default unmarshalling method so that fields absent from the
// file keep their default values
func (c *Config) UnmarshalJSON(bytes []byte) error {
	// create temporary config struct to unmarshal into
	// not doing this would result in an infinite unmarshalling loop
	type tmpConfig Config
	defaultCfg := GetDefaultConfig()

	// set the default config to a variable of the temporary type
	tmpCfg := tmpConfig(defaultCfg)

	// unmarshal json into the default config struct
	if err := hjson.Unmarshal(bytes, &tmpCfg); err != nil {
		return err
	}

	// set the new config values
	*c = Config(tmpCfg)

	return nil
}

// GetDefaultConfig returns a Config object with default values
func GetDefaultConfig() Config {
	// set version to dev if not set
	if Version == "" {
		Version = "dev"
	}

	return defaultConfig()
}

// Reset resets the config values to default
// note: Env values are not reset
func (cfg *Config) Reset() error {
	// store the environment values before resetting
	env := cfg.Env

	// get the default config
	newConfig := GetDefaultConfig()

	*cfg = newConfig
	cfg.Env = env

	// validate the config struct
	if err := cfg.Validate(); err != nil {
		return err
	}

	return nil
}

// Validate validates the config struct values
func (cfg *Config) Validate() error {
	// create a new validator
	validate, err := NewValidator()
	if err != nil {
		return err
	}

	// validate the config struct
	if err := validate.Struct(cfg); err != nil {
		return err
	}

	return nil
}

// NewValidator creates a new validator with custom validation rules
func NewValidator() (*validator.Validate, error) {
	v := validator.New(validator.WithRequiredStructEnabled())

	// the four component weights must sum to 1 for the composite score to stay in [0,1]
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		value := sl.Current().Interface().(BeaconScoring)
		totalWeight := value.TimestampScoreWeight + value.DatasizeScoreWeight + value.DurationScoreWeight + value.HistogramScoreWeight
		// epsilon comparison; sums like 0.7+0.1+0.1+0.1 land a few ulps away from 1
		if math.Abs(totalWeight-1) > 1e-9 {
			sl.ReportError(value, "TimestampScoreWeight", "BeaconScoring", "beacon_weights", "")
			sl.ReportError(value, "DatasizeScoreWeight", "BeaconScoring", "beacon_weights", "")
			sl.ReportError(value, "DurationScoreWeight", "BeaconScoring", "beacon_weights", "")
			sl.ReportError(value, "HistogramScoreWeight", "BeaconScoring", "beacon_weights", "")
		}
	}, BeaconScoring{})

	return v, nil
}

// return a copy of the default config object
func defaultConfig() Config {
	return Config{
		Scoring: Scoring{
			Beacon: BeaconScoring{
				UniqueConnectionThreshold:         2,
				TimestampScoreWeight:              0.25,
				DatasizeScoreWeight:               0.25,
				DurationScoreWeight:               0.25,
				HistogramScoreWeight:              0.25,
				HistogramBucketCount:              24, // one day partitioned hourly
				DurationMinHoursSeen:              6,
				DurationConsistencyIdealHoursSeen: 12,
				HistogramModeSensitivity:          0.05,
				HistogramBimodalOutlierRemoval:    1,
				HistogramBimodalMinHoursSeen:      11,
			},
		},
	}
}
