package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"station-climate/internal/models"
	"station-climate/pkg/database"
	"station-climate/pkg/logging"
)

// Config holds the full application configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Ingestion   IngestionConfig   `mapstructure:"ingestion"`
	Aggregation AggregationConfig `mapstructure:"aggregation"`
}

// ServerConfig configures the HTTP API server
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// Addr returns host:port for http.Server
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig configures the weather store
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// ConnectionConfig converts to the database package configuration
func (d DatabaseConfig) ConnectionConfig() *database.Config {
	return &database.Config{
		Driver:          d.Driver,
		Host:            d.Host,
		Port:            d.Port,
		User:            d.User,
		Password:        d.Password,
		Database:        d.Database,
		SSLMode:         d.SSLMode,
		Path:            d.Path,
		MaxOpenConns:    d.MaxOpenConns,
		MaxIdleConns:    d.MaxIdleConns,
		ConnMaxLifetime: d.ConnMaxLifetime,
		ConnMaxIdleTime: d.ConnMaxIdleTime,
		ConnectTimeout:  d.ConnectTimeout,
	}
}

// LoggingConfig configures structured logging
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LogLevel parses Level; Validate has already rejected bad values
func (l LoggingConfig) LogLevel() logging.LogLevel {
	level, _ := logging.ParseLevel(l.Level)
	return level
}

// NewLogger builds the service logger described by this section
func (l LoggingConfig) NewLogger(service, version string) *logging.StructuredLogger {
	return logging.NewStructuredLoggerWithFormat(service, version, l.LogLevel(), l.Format)
}

// IngestionConfig configures the ingester
type IngestionConfig struct {
	DataDir   string `mapstructure:"data_dir"`
	BatchSize int    `mapstructure:"batch_size"`
	Workers   int    `mapstructure:"workers"`
}

// AggregationConfig configures annual statistics
type AggregationConfig struct {
	PrecipitationPolicy string `mapstructure:"precipitation_policy"`
}

// Policy parses PrecipitationPolicy; Validate has already rejected bad values
func (a AggregationConfig) Policy() models.PrecipitationPolicy {
	policy, _ := models.ParsePrecipitationPolicy(a.PrecipitationPolicy)
	return policy
}

// EnvPrefix is prepended to every environment override, e.g. WEATHER_DATABASE_HOST
const EnvPrefix = "WEATHER"

// LoadConfig reads configuration from defaults, an optional config.yaml in
// the working directory, a .env file and WEATHER_* environment variables,
// later sources winning.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load() // missing .env is fine

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("database.driver", database.DriverPostgres)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "weather")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "weather")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "weather.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.conn_max_idle_time", time.Minute)
	v.SetDefault("database.connect_timeout", 30*time.Second)
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", logging.FormatJSON)

	v.SetDefault("ingestion.data_dir", "./wx_data")
	v.SetDefault("ingestion.batch_size", 1000)
	v.SetDefault("ingestion.workers", 1)

	v.SetDefault("aggregation.precipitation_policy", string(models.PrecipitationJoint))
}

// Validate checks the configuration for values no component can run with
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case database.DriverPostgres:
		if c.Database.Host == "" {
			errs = append(errs, errors.New("database.host is required for postgres"))
		}
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Errorf("database.port %d out of range", c.Database.Port))
		}
	case database.DriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver must be %q or %q, got %q",
			database.DriverPostgres, database.DriverSQLite, c.Database.Driver))
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Ingestion.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("ingestion.batch_size must be >= 1, got %d", c.Ingestion.BatchSize))
	}
	if c.Ingestion.Workers < 1 {
		errs = append(errs, fmt.Errorf("ingestion.workers must be >= 1, got %d", c.Ingestion.Workers))
	}
	if _, err := models.ParsePrecipitationPolicy(c.Aggregation.PrecipitationPolicy); err != nil {
		errs = append(errs, fmt.Errorf("aggregation.precipitation_policy: %w", err))
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	if c.Logging.Format != logging.FormatJSON && c.Logging.Format != logging.FormatConsole {
		errs = append(errs, fmt.Errorf("logging.format must be %q or %q, got %q",
			logging.FormatJSON, logging.FormatConsole, c.Logging.Format))
	}

	return errors.Join(errs...)
}
