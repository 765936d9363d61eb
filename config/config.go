package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Store backends for the analysis result sink.
const (
	StoreNone     = "none"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	PostgresHost     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	PostgresPort     string `envconfig:"POSTGRES_PORT" default:"5432"`
	PostgresUser     string `envconfig:"POSTGRES_USER" default:"licences"`
	PostgresPassword string `envconfig:"POSTGRES_PASSWORD" default:"licences"`
	PostgresDB       string `envconfig:"POSTGRES_DB" default:"licence_db"`
	PostgresSSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`

	StoreBackend string `envconfig:"STORE_BACKEND" default:"none" validate:"oneof=none postgres sqlite"`
	SQLitePath   string `envconfig:"SQLITE_PATH" default:"./data/cleaned/licences.sqlite"`

	APIBaseURL     string        `envconfig:"API_BASE_URL" default:"https://opendata.vancouver.ca/api/explore/v2.1/catalog/datasets" validate:"required,url"`
	PageSize       int           `envconfig:"PAGE_SIZE" default:"100" validate:"min=1,max=100"`
	MaxWorkers     int           `envconfig:"MAX_WORKERS" default:"15" validate:"min=1"`
	RateLimitMs    int           `envconfig:"RATE_LIMIT_MS" default:"0" validate:"min=0"`
	MaxRetries     int           `envconfig:"MAX_RETRIES" default:"3" validate:"min=1"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`

	RawDir     string `envconfig:"RAW_DIR" default:"./data/raw" validate:"required"`
	CleanedDir string `envconfig:"CLEANED_DIR" default:"./data/cleaned" validate:"required"`

	XLSXOutputPath     string `envconfig:"XLSX_OUTPUT_PATH" default:""`
	MetricsPath        string `envconfig:"METRICS_PATH" default:""`
	CrisisRegistryPath string `envconfig:"CRISIS_REGISTRY_PATH" default:""`

	ImpactBootstrap   int   `envconfig:"IMPACT_BOOTSTRAP" default:"1000" validate:"min=1"`
	ForecastBootstrap int   `envconfig:"FORECAST_BOOTSTRAP" default:"500" validate:"min=1"`
	EffectBootstrap   int   `envconfig:"EFFECT_BOOTSTRAP" default:"1000" validate:"min=1"`
	RandomSeed        int64 `envconfig:"RANDOM_SEED" default:"0"`

	ForecastStartYear int `envconfig:"FORECAST_START_YEAR" default:"2025" validate:"min=1900"`
	ForecastHorizon   int `envconfig:"FORECAST_HORIZON" default:"5" validate:"min=1"`
	ForecastMinYears  int `envconfig:"FORECAST_MIN_YEARS" default:"5" validate:"min=2"`
	TopBusinessTypes  int `envconfig:"TOP_BUSINESS_TYPES" default:"10" validate:"min=1"`

	SurvivalMinYears        float64 `envconfig:"SURVIVAL_MIN_YEARS" default:"2" validate:"gt=0"`
	VulnerabilityMinSamples int     `envconfig:"VULNERABILITY_MIN_SAMPLES" default:"10" validate:"min=1"`

	LogLevel       string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogDevelopment bool   `envconfig:"LOG_DEVELOPMENT" default:"true"`
}

// Source describes one raw extract: its local name and the open-data dataset id.
type Source struct {
	Name    string
	Dataset string
}

// Sources lists the three licence extracts in merge order.
var Sources = []Source{
	{Name: "1997_2012", Dataset: "business-licences-1997-to-2012"},
	{Name: "2013_2024", Dataset: "business-licences-2013-to-2024"},
	{Name: "current_2024_plus", Dataset: "business-licences"},
}

// Load reads the .env file (if any) and returns a populated, validated Config.
// envFile may be empty to use the default ".env" in the working directory.
func Load(envFile string) (*Config, error) {
	files := []string{}
	if envFile != "" {
		files = append(files, envFile)
	}
	if err := godotenv.Load(files...); err != nil {
		if envFile != "" && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", envFile, err)
		}
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: validation: %w", err)
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

// RawPath returns the CSV path for a source extract.
func (c *Config) RawPath(name string) string {
	return filepath.Join(c.RawDir, name+".csv")
}

// CleanedPath returns the path of a cleaned artifact.
func (c *Config) CleanedPath(file string) string {
	return filepath.Join(c.CleanedDir, file)
}

// MergedPath is the merged canonical licence table.
func (c *Config) MergedPath() string {
	return c.CleanedPath("business_licences_1997_2024.csv")
}
