// Package config loads tablekit settings from an optional YAML file and
// TABLEKIT_* environment variables.
//
// Precedence, lowest first: envDefault tags, the YAML file, the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/koustreak/tablekit/internal/authconfig"
	"github.com/koustreak/tablekit/internal/database"
	"github.com/koustreak/tablekit/internal/editor"
	"github.com/koustreak/tablekit/internal/errs"
	"github.com/koustreak/tablekit/internal/filestore"
	"github.com/koustreak/tablekit/internal/logger"
	"github.com/koustreak/tablekit/internal/server"
	"github.com/koustreak/tablekit/internal/spreadsheet"
	"github.com/koustreak/tablekit/internal/telemetry"
	"go.yaml.in/yaml/v3"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "TABLEKIT_"

// PathEnv names the variable holding the config file path.
const PathEnv = EnvPrefix + "CONFIG"

// Config is the full application configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"  envPrefix:"DATABASE_"`
	Server    ServerConfig    `yaml:"server"    envPrefix:"SERVER_"`
	Import    ImportConfig    `yaml:"import"    envPrefix:"IMPORT_"`
	Editor    EditorConfig    `yaml:"editor"    envPrefix:"EDITOR_"`
	Auth      AuthConfig      `yaml:"auth"      envPrefix:"AUTH_"`
	Telemetry TelemetryConfig `yaml:"telemetry" envPrefix:"TELEMETRY_"`
	FileStore FileStoreConfig `yaml:"filestore" envPrefix:"FILESTORE_"`
	Logging   LoggingConfig   `yaml:"logging"   envPrefix:"LOG_"`
}

// DatabaseConfig is the target PostgreSQL database.
type DatabaseConfig struct {
	DSN              string        `yaml:"dsn"                env:"DSN"`
	MaxConns         int32         `yaml:"max_conns"          env:"MAX_CONNS"          envDefault:"10"`
	MinConns         int32         `yaml:"min_conns"          env:"MIN_CONNS"          envDefault:"1"`
	MaxConnLifetime  time.Duration `yaml:"max_conn_lifetime"  env:"MAX_CONN_LIFETIME"  envDefault:"30m"`
	MaxConnIdleTime  time.Duration `yaml:"max_conn_idle_time" env:"MAX_CONN_IDLE_TIME" envDefault:"5m"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout"    env:"CONNECT_TIMEOUT"    envDefault:"10s"`
	StatementTimeout time.Duration `yaml:"statement_timeout"  env:"STATEMENT_TIMEOUT"`
}

// ServerConfig is the HTTP API.
type ServerConfig struct {
	Addr         string        `yaml:"addr"          env:"ADDR"          envDefault:":8080"`
	ReadTimeout  time.Duration `yaml:"read_timeout"  env:"READ_TIMEOUT"  envDefault:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT" envDefault:"5m"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" env:"MAX_BODY_BYTES" envDefault:"104857600"`

	// An empty JWTSecret disables bearer authentication.
	JWTSecret   string `yaml:"jwt_secret"   env:"JWT_SECRET"`
	JWTIssuer   string `yaml:"jwt_issuer"   env:"JWT_ISSUER"`
	JWTAudience string `yaml:"jwt_audience" env:"JWT_AUDIENCE"`
}

// ImportConfig tunes spreadsheet imports.
type ImportConfig struct {
	BatchSize    int           `yaml:"batch_size"    env:"BATCH_SIZE"    envDefault:"1000"`
	Concurrency  int           `yaml:"concurrency"   env:"CONCURRENCY"   envDefault:"10"`
	BatchTimeout time.Duration `yaml:"batch_timeout" env:"BATCH_TIMEOUT" envDefault:"30s"`
	ChunkBytes   int           `yaml:"chunk_bytes"   env:"CHUNK_BYTES"   envDefault:"102400"`
}

// EditorConfig controls table saves.
type EditorConfig struct {
	Transactional bool   `yaml:"transactional" env:"TRANSACTIONAL" envDefault:"true"`
	Publication   string `yaml:"publication"   env:"PUBLICATION"   envDefault:"supabase_realtime"`
	Project       string `yaml:"project"       env:"PROJECT"`
	Organization  string `yaml:"organization"  env:"ORGANIZATION"`
}

// AuthConfig is the auth configuration API.
type AuthConfig struct {
	BaseURL     string        `yaml:"base_url"     env:"BASE_URL"`
	ProjectRef  string        `yaml:"project_ref"  env:"PROJECT_REF"`
	AccessToken string        `yaml:"access_token" env:"ACCESS_TOKEN"`
	Timeout     time.Duration `yaml:"timeout"      env:"TIMEOUT"      envDefault:"30s"`
}

// TelemetryConfig is the event collector.
type TelemetryConfig struct {
	Enabled   bool          `yaml:"enabled"    env:"ENABLED"    envDefault:"false"`
	Endpoint  string        `yaml:"endpoint"   env:"ENDPOINT"`
	QueueSize int           `yaml:"queue_size" env:"QUEUE_SIZE" envDefault:"100"`
	Timeout   time.Duration `yaml:"timeout"    env:"TIMEOUT"    envDefault:"5s"`
}

// FileStoreConfig is the object store imports may read from.
type FileStoreConfig struct {
	Endpoint      string `yaml:"endpoint"       env:"ENDPOINT"`
	AccessKey     string `yaml:"access_key"     env:"ACCESS_KEY"`
	SecretKey     string `yaml:"secret_key"     env:"SECRET_KEY"`
	UseSSL        bool   `yaml:"use_ssl"        env:"USE_SSL"        envDefault:"false"`
	Region        string `yaml:"region"         env:"REGION"`
	DefaultBucket string `yaml:"default_bucket" env:"DEFAULT_BUCKET"`
}

// LoggingConfig mirrors logger.Config.
type LoggingConfig struct {
	Level      string `yaml:"level"       env:"LEVEL"       envDefault:"info"`
	Format     string `yaml:"format"      env:"FORMAT"      envDefault:"json"`
	TimeFormat string `yaml:"time_format" env:"TIME_FORMAT" envDefault:"rfc3339"`
}

// Default returns the configuration produced by the envDefault tags alone.
func Default() *Config {
	cfg := &Config{}
	// An empty environment leaves only defaults; parsing them cannot fail.
	_ = env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix, Environment: map[string]string{}})
	return cfg
}

// Load builds the configuration. path may be empty, in which case
// TABLEKIT_CONFIG is consulted; a missing file is only an error when the
// path was given explicitly.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv(PathEnv)
		explicit = path != ""
	}
	if path != "" {
		if err := loadFile(cfg, path, explicit); err != nil {
			return nil, err
		}
	}

	// Only variables that are actually set override the file.
	if err := env.ParseWithOptions(cfg, env.Options{
		Prefix:              EnvPrefix,
		DefaultValueTagName: "fileDefault",
	}); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "parse environment", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(cfg *Config, path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return errs.Wrap(errs.ErrKindInvalidInput, fmt.Sprintf("read config file %s", path), err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, fmt.Sprintf("parse config file %s", path), err)
	}
	return nil
}

// Validate checks cross-field constraints. It does not require a database
// DSN because some commands never connect.
func (c *Config) Validate() error {
	var problems []string

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		problems = append(problems, fmt.Sprintf("invalid log level %q (must be debug, info, warn or error)", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		problems = append(problems, fmt.Sprintf("invalid log format %q (must be json or console)", c.Logging.Format))
	}

	if c.Database.MaxConns <= 0 {
		problems = append(problems, "database max_conns must be positive")
	}
	if c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns {
		problems = append(problems, "database min_conns must be between 0 and max_conns")
	}
	if c.Import.BatchSize <= 0 {
		problems = append(problems, "import batch_size must be positive")
	}
	if c.Import.Concurrency <= 0 {
		problems = append(problems, "import concurrency must be positive")
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		problems = append(problems, "telemetry endpoint is required when telemetry is enabled")
	}
	if (c.FileStore.AccessKey != "" || c.FileStore.SecretKey != "") && c.FileStore.Endpoint == "" {
		problems = append(problems, "filestore endpoint is required when credentials are set")
	}
	if c.Server.JWTSecret == "" && (c.Server.JWTIssuer != "" || c.Server.JWTAudience != "") {
		problems = append(problems, "server jwt_secret is required when jwt_issuer or jwt_audience is set")
	}

	if len(problems) > 0 {
		return errs.New(errs.ErrKindInvalidInput, "invalid configuration: "+strings.Join(problems, "; "))
	}
	return nil
}

// DriverConfig converts the database section for the postgres driver.
func (c *Config) DriverConfig() *database.Config {
	return &database.Config{
		DSN:              c.Database.DSN,
		MaxConns:         c.Database.MaxConns,
		MinConns:         c.Database.MinConns,
		MaxConnLifetime:  c.Database.MaxConnLifetime,
		MaxConnIdleTime:  c.Database.MaxConnIdleTime,
		ConnectTimeout:   c.Database.ConnectTimeout,
		StatementTimeout: c.Database.StatementTimeout,
	}
}

// ImportOptions converts the section for spreadsheet.NewImporter.
func (c *Config) ImportOptions() spreadsheet.Options {
	return spreadsheet.Options{
		BatchSize:    c.Import.BatchSize,
		Concurrency:  c.Import.Concurrency,
		BatchTimeout: c.Import.BatchTimeout,
		ChunkBytes:   c.Import.ChunkBytes,
	}
}

// EditorOptions converts the section for editor.New.
func (c *Config) EditorOptions() editor.Options {
	opts := editor.DefaultOptions()
	opts.Transactional = c.Editor.Transactional
	if c.Editor.Publication != "" {
		opts.Publication = c.Editor.Publication
	}
	opts.Groups = telemetry.Groups{Project: c.Editor.Project, Organization: c.Editor.Organization}
	return opts
}

// HTTPServerConfig converts the server section for server.New.
func (c *Config) HTTPServerConfig() server.Config {
	return server.Config{
		Addr:         c.Server.Addr,
		ReadTimeout:  c.Server.ReadTimeout,
		WriteTimeout: c.Server.WriteTimeout,
		MaxBodyBytes: c.Server.MaxBodyBytes,
		JWT: server.JWTConfig{
			Secret:   c.Server.JWTSecret,
			Issuer:   c.Server.JWTIssuer,
			Audience: c.Server.JWTAudience,
		},
	}
}

// AuthClientConfig converts the section for authconfig.NewClient.
func (c *Config) AuthClientConfig() authconfig.ClientConfig {
	return authconfig.ClientConfig{
		BaseURL:     c.Auth.BaseURL,
		ProjectRef:  c.Auth.ProjectRef,
		AccessToken: c.Auth.AccessToken,
		Timeout:     c.Auth.Timeout,
	}
}

// ObjectStoreConfig converts the filestore section for the MinIO driver,
// or nil when no object store is configured.
func (c *Config) ObjectStoreConfig() *filestore.Config {
	if c.FileStore.Endpoint == "" {
		return nil
	}
	return &filestore.Config{
		Endpoint:      c.FileStore.Endpoint,
		AccessKey:     c.FileStore.AccessKey,
		SecretKey:     c.FileStore.SecretKey,
		UseSSL:        c.FileStore.UseSSL,
		Region:        c.FileStore.Region,
		DefaultBucket: c.FileStore.DefaultBucket,
	}
}

// LoggerConfig converts the section for logger.New.
func (c *Config) LoggerConfig() *logger.Config {
	lc := logger.DefaultConfig()
	lc.Level = c.Logging.Level
	lc.Format = c.Logging.Format
	lc.TimeFormat = c.Logging.TimeFormat
	return lc
}
