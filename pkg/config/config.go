package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment override, e.g. RFM_CLUSTERING_K.
// Keys are derived from field names; unprefixed variables such as PATH are never read.
const EnvPrefix = "RFM"

// Config holds the pipeline configuration
type Config struct {
	Input      InputConfig      `yaml:"input" split_words:"true"`
	Cleaning   CleaningConfig   `yaml:"cleaning" split_words:"true"`
	Trim       TrimConfig       `yaml:"trim" split_words:"true"`
	Clustering ClusteringConfig `yaml:"clustering" split_words:"true"`
	Model      ModelConfig      `yaml:"model" split_words:"true"`
	Output     OutputConfig     `yaml:"output" split_words:"true"`
	Logging    LoggingConfig    `yaml:"logging" split_words:"true"`
}

// InputConfig describes the transaction file
type InputConfig struct {
	Path        string   `yaml:"path" split_words:"true"`
	Delimiter   string   `yaml:"delimiter" split_words:"true" validate:"len=1"`
	Encoding    string   `yaml:"encoding" split_words:"true" validate:"oneof=latin1 windows1252 utf8"`
	DateLayouts []string `yaml:"date_layouts" split_words:"true" validate:"min=1,dive,required"`
}

// CleaningConfig controls the cleaner
type CleaningConfig struct {
	DescriptionPlaceholder string  `yaml:"description_placeholder" split_words:"true"`
	ZThreshold             float64 `yaml:"z_threshold" split_words:"true" validate:"gt=0"`
}

// TrimConfig controls the RFM outlier trimmer
type TrimConfig struct {
	LowerQuantile float64 `yaml:"lower_quantile" split_words:"true" validate:"gte=0,lt=1"`
	UpperQuantile float64 `yaml:"upper_quantile" split_words:"true" validate:"gt=0,lte=1,gtfield=LowerQuantile"`
	IQRMultiplier float64 `yaml:"iqr_multiplier" split_words:"true" validate:"gte=0"`
	Policy        string  `yaml:"policy" split_words:"true" validate:"oneof=shrinking original"`
}

// ClusteringConfig controls the final k-means run and the inertia sweep
type ClusteringConfig struct {
	K            int     `yaml:"k" split_words:"true" validate:"gte=1"`
	Seed         int64   `yaml:"seed" split_words:"true"`
	NInit        int     `yaml:"n_init" split_words:"true" validate:"gte=1"`
	MaxIter      int     `yaml:"max_iter" split_words:"true" validate:"gte=1"`
	Tolerance    float64 `yaml:"tolerance" split_words:"true" validate:"gte=0"`
	SweepMinK    int     `yaml:"sweep_min_k" split_words:"true" validate:"gte=1"`
	SweepMaxK    int     `yaml:"sweep_max_k" split_words:"true" validate:"gtefield=SweepMinK"`
	SweepMaxIter int     `yaml:"sweep_max_iter" split_words:"true" validate:"gte=1"`
	SweepSeed    int64   `yaml:"sweep_seed" split_words:"true"`
}

// ModelConfig controls the regressor
type ModelConfig struct {
	Type            string  `yaml:"type" split_words:"true" validate:"oneof=random_forest decision_tree"`
	TestFraction    float64 `yaml:"test_fraction" split_words:"true" validate:"gt=0,lt=1"`
	Seed            int64   `yaml:"seed" split_words:"true"`
	NumTrees        int     `yaml:"num_trees" split_words:"true" validate:"gte=1"`
	MaxDepth        int     `yaml:"max_depth" split_words:"true" validate:"gte=0"`
	MinSamplesSplit int     `yaml:"min_samples_split" split_words:"true" validate:"gte=2"`
	MinSamplesLeaf  int     `yaml:"min_samples_leaf" split_words:"true" validate:"gte=1"`
	MaxFeatures     int     `yaml:"max_features" split_words:"true" validate:"gte=0"`
}

// OutputConfig names the optional side artifacts; empty paths disable them
type OutputConfig struct {
	WorkbookPath string `yaml:"workbook_path" split_words:"true"`
	MetricsPath  string `yaml:"metrics_path" split_words:"true"`
	ArchivePath  string `yaml:"archive_path" split_words:"true"`
}

// LoggingConfig controls the process logger
type LoggingConfig struct {
	Level  string `yaml:"level" split_words:"true" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" split_words:"true" validate:"oneof=console json"`
}

// Default returns the configuration the pipeline runs with when nothing is overridden
func Default() *Config {
	return &Config{
		Input: InputConfig{
			Delimiter:   ",",
			Encoding:    "latin1",
			DateLayouts: []string{"2-1-2006 15:04", "2-1-2006 15:04:05"},
		},
		Cleaning: CleaningConfig{
			DescriptionPlaceholder: "Unknown",
			ZThreshold:             2,
		},
		Trim: TrimConfig{
			LowerQuantile: 0.05,
			UpperQuantile: 0.95,
			IQRMultiplier: 1.5,
			Policy:        "shrinking",
		},
		Clustering: ClusteringConfig{
			K:            4,
			Seed:         42,
			NInit:        10,
			MaxIter:      300,
			Tolerance:    1e-4,
			SweepMinK:    2,
			SweepMaxK:    8,
			SweepMaxIter: 50,
			SweepSeed:    0,
		},
		Model: ModelConfig{
			Type:            "random_forest",
			TestFraction:    0.2,
			Seed:            42,
			NumTrees:        100,
			MinSamplesSplit: 2,
			MinSamplesLeaf:  1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig builds the configuration from defaults, an optional YAML file and
// RFM_* environment variables, in that order of precedence.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field ranges and cross-field constraints
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s fails %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// DelimiterRune returns the input delimiter as a rune
func (c InputConfig) DelimiterRune() rune {
	return []rune(c.Delimiter)[0]
}
