// Package config loads and validates the retrieval engine's configuration
// from a YAML file, an optional .env file, and RE_* environment overrides.
// It provides typed structs for every subsystem (Experiment, Indexer,
// Search, Redis, Database, Kafka, Logging, Metrics).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment override, e.g.
// RE_EXPERIMENT_MODE or RE_INDEXER_WORKERS.
const EnvPrefix = "RE"

// Config is the top-level application configuration.
type Config struct {
	Experiment ExperimentConfig `yaml:"experiment" envconfig:"EXPERIMENT"`
	Indexer    IndexerConfig    `yaml:"indexer" envconfig:"INDEXER"`
	Search     SearchConfig     `yaml:"search" envconfig:"SEARCH"`
	Redis      RedisConfig      `yaml:"redis" envconfig:"REDIS"`
	Database   DatabaseConfig   `yaml:"database" envconfig:"DATABASE"`
	Kafka      KafkaConfig      `yaml:"kafka" envconfig:"KAFKA"`
	Logging    LoggingConfig    `yaml:"logging" envconfig:"LOGGING"`
	Metrics    MetricsConfig    `yaml:"metrics" envconfig:"METRICS"`
}

// ExperimentConfig holds the four run parameters plus the stop-word count
// and the per-query result limit.
type ExperimentConfig struct {
	ParametersFile string `yaml:"parametersFile" envconfig:"PARAMETERS_FILE"`
	QueriesPath    string `yaml:"queriesPath" envconfig:"QUERIES_PATH"`
	CollectionPath string `yaml:"collectionPath" envconfig:"COLLECTION_PATH"`
	OutputLocation string `yaml:"outputLocation" envconfig:"OUTPUT_LOCATION"`
	Mode           string `yaml:"mode" envconfig:"MODE"`
	StopWordCount  int    `yaml:"stopWordCount" envconfig:"STOP_WORD_COUNT"`
	Limit          int    `yaml:"limit" envconfig:"LIMIT"`
	IncludeHits    bool   `yaml:"includeHits" envconfig:"INCLUDE_HITS"`
}

// IndexerConfig controls how the collection is tokenized and indexed and
// where index snapshots are persisted.
type IndexerConfig struct {
	DataDir       string `yaml:"dataDir" envconfig:"DATA_DIR"`
	OpenMode      string `yaml:"openMode" envconfig:"OPEN_MODE"`
	Workers       int    `yaml:"workers" envconfig:"WORKERS"`
	Stem          bool   `yaml:"stem" envconfig:"STEM"`
	DropStopWords bool   `yaml:"dropStopWords" envconfig:"DROP_STOP_WORDS"`
	Persist       bool   `yaml:"persist" envconfig:"PERSIST"`
	// Prune removes, in update mode, restored documents that are no longer
	// part of the collection.
	Prune         bool   `yaml:"prune" envconfig:"PRUNE"`
}

// Open modes for the index builder.
const (
	OpenModeCreate = "create"
	OpenModeUpdate = "update"
)

// SearchConfig controls query execution limits.
type SearchConfig struct {
	MaxResults           int `yaml:"maxResults" envconfig:"MAX_RESULTS"`
	DefaultLimit         int `yaml:"defaultLimit" envconfig:"DEFAULT_LIMIT"`
	MaxConcurrentQueries int `yaml:"maxConcurrentQueries" envconfig:"MAX_CONCURRENT_QUERIES"`
}

// RedisConfig holds Redis connection and query-cache parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled" envconfig:"ENABLED"`
	Addr     string        `yaml:"addr" envconfig:"ADDR"`
	Password string        `yaml:"password" envconfig:"PASSWORD"`
	DB       int           `yaml:"db" envconfig:"DB"`
	PoolSize int           `yaml:"poolSize" envconfig:"POOL_SIZE"`
	CacheTTL time.Duration `yaml:"cacheTTL" envconfig:"CACHE_TTL"`
}

// DatabaseConfig holds connection-pool settings for SQL result sinks. The
// DSN itself comes from the experiment's output location.
type DatabaseConfig struct {
	MaxOpenConns    int           `yaml:"maxOpenConns" envconfig:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"maxIdleConns" envconfig:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime" envconfig:"CONN_MAX_LIFETIME"`
	ConnectAttempts int           `yaml:"connectAttempts" envconfig:"CONNECT_ATTEMPTS"`
}

// KafkaConfig holds Kafka settings for the result event sink.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers" envconfig:"BROKERS"`
	Topic   string   `yaml:"topic" envconfig:"TOPIC"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`
	Format string `yaml:"format" envconfig:"FORMAT"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" envconfig:"ENABLED"`
	Port    int  `yaml:"port" envconfig:"PORT"`
}

// Load reads an optional .env file and a YAML config file (if provided).
// When a parameters file is configured its four values replace the YAML
// run parameters; RE_* environment variables override everything.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	if file := parametersFile(cfg); file != "" {
		params, err := ReadParameters(file)
		if err != nil {
			return nil, err
		}
		cfg.Experiment.merge(params)
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading files or the
// environment.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Experiment: ExperimentConfig{
			OutputLocation: "-",
			Mode:           "bm25",
			StopWordCount:  20,
			Limit:          1000,
			IncludeHits:    true,
		},
		Indexer: IndexerConfig{
			DataDir:  "data/index",
			OpenMode: OpenModeCreate,
			Workers:  4,
		},
		Search: SearchConfig{
			MaxResults:           1000,
			DefaultLimit:         10,
			MaxConcurrentQueries: 8,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 5 * time.Minute,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    4,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
			ConnectAttempts: 3,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "retrieval-results",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads RE_* environment variables and overrides the
// corresponding config fields. Unset variables leave the field untouched.
func applyEnvOverrides(cfg *Config) error {
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return fmt.Errorf("applying environment overrides: %w", err)
	}
	return nil
}

// parametersFile resolves the parameters file path, letting the environment
// name it before the rest of the overrides are applied.
func parametersFile(cfg *Config) string {
	if v := os.Getenv(EnvPrefix + "_EXPERIMENT_PARAMETERS_FILE"); v != "" {
		return v
	}
	return cfg.Experiment.ParametersFile
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// Validate checks cross-field constraints and normalizes enum values.
func (c *Config) Validate() error {
	c.Indexer.OpenMode = strings.ToLower(strings.TrimSpace(c.Indexer.OpenMode))
	switch c.Indexer.OpenMode {
	case "":
		c.Indexer.OpenMode = OpenModeCreate
	case OpenModeCreate, OpenModeUpdate:
	default:
		return fmt.Errorf("indexer.openMode must be %q or %q, got %q", OpenModeCreate, OpenModeUpdate, c.Indexer.OpenMode)
	}
	if c.Experiment.StopWordCount < 0 {
		return fmt.Errorf("experiment.stopWordCount must be >= 0, got %d", c.Experiment.StopWordCount)
	}
	if c.Indexer.Workers < 1 {
		c.Indexer.Workers = 1
	}
	if c.Search.MaxConcurrentQueries < 1 {
		c.Search.MaxConcurrentQueries = 1
	}
	if c.Search.MaxResults > 0 && c.Experiment.Limit > c.Search.MaxResults {
		c.Experiment.Limit = c.Search.MaxResults
	}
	c.Experiment.Mode = strings.ToLower(strings.TrimSpace(c.Experiment.Mode))
	return nil
}
