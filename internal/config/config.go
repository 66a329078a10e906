package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for dbboot.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Bootstrap BootstrapConfig `mapstructure:"bootstrap"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Events    EventsConfig    `mapstructure:"events"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
	ServiceName  string `mapstructure:"service_name"`
	LogLevel     string `mapstructure:"log_level"`
}

// BootstrapConfig holds policy layered on top of the bootstrap itself. A zero
// Timeout waits for the migration lock indefinitely.
type BootstrapConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// DatabaseConfig is the connection plus the extension and migration policy.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DB       string `mapstructure:"db"`
	SSLMode  string `mapstructure:"ssl_mode"`
	MaxConns int32  `mapstructure:"max_conns"`

	VectorExtension string           `mapstructure:"vector_extension"`
	SkipMigrations  bool             `mapstructure:"skip_migrations"`
	EngineRange     string           `mapstructure:"engine_range"`
	Extensions      ExtensionsConfig `mapstructure:"extensions"`
}

type ExtensionsConfig struct {
	PgVectoRS ExtensionConfig `mapstructure:"pgvecto_rs"`
	PgVector  ExtensionConfig `mapstructure:"pgvector"`
}

// ExtensionConfig is the supported version range and upgrade pin of one
// vector extension.
type ExtensionConfig struct {
	Range string `mapstructure:"range"`
	Pin   string `mapstructure:"pin"`
}

type EventsConfig struct {
	NATSURL string `mapstructure:"nats_url"`
	Subject string `mapstructure:"subject"`
}

// DSN renders a postgres:// connection string for the configured database.
func (c DatabaseConfig) DSN() string {
	return c.dsn("postgres")
}

// MigrateURL renders the connection string in the form the migration runner
// expects.
func (c DatabaseConfig) MigrateURL() string {
	return c.dsn("pgx5")
}

func (c DatabaseConfig) dsn(scheme string) string {
	u := url.URL{
		Scheme:   scheme,
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.DB,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

// Load reads config from the optional YAML file at path, then overlays
// environment variables with the DBBOOT_ prefix (e.g. DBBOOT_SERVER_PORT).
// DB_VECTOR_EXTENSION and DB_SKIP_MIGRATIONS are honoured as aliases.
// Secrets such as DBBOOT_DATABASE_PASSWORD are usually only set in the
// environment, so every key must be known to viper through a default.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("DBBOOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindEnv("database.vector_extension", "DBBOOT_DATABASE_VECTOR_EXTENSION", "DB_VECTOR_EXTENSION"); err != nil {
		return nil, fmt.Errorf("binding env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	applyLegacySkipMigrations(&cfg)

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8082)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_insecure", true)
	v.SetDefault("telemetry.service_name", "arc-dbboot")
	v.SetDefault("telemetry.log_level", "info")

	v.SetDefault("bootstrap.timeout", 0)

	v.SetDefault("database.host", "arc-oracle")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "arc")
	v.SetDefault("database.password", "")
	v.SetDefault("database.db", "arc_db")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("database.vector_extension", "pgvecto.rs")
	v.SetDefault("database.skip_migrations", false)
	v.SetDefault("database.engine_range", ">=14.0.0")
	v.SetDefault("database.extensions.pgvecto_rs.range", ">=0.2 <0.4")
	v.SetDefault("database.extensions.pgvecto_rs.pin", "range")
	v.SetDefault("database.extensions.pgvector.range", ">=0.5 <1")
	v.SetDefault("database.extensions.pgvector.pin", "range")

	v.SetDefault("events.nats_url", "")
	v.SetDefault("events.subject", "db.bootstrap.outcome")
}

// applyLegacySkipMigrations honours DB_SKIP_MIGRATIONS when the DBBOOT_ key
// is not set. Only the exact value "true" skips; anything else runs migrations.
func applyLegacySkipMigrations(cfg *Config) {
	raw, ok := os.LookupEnv("DB_SKIP_MIGRATIONS")
	if !ok {
		return
	}
	if _, set := os.LookupEnv("DBBOOT_DATABASE_SKIP_MIGRATIONS"); set {
		return
	}
	cfg.Database.SkipMigrations = raw == "true"
}
