// Package config handles loading and parsing of blobd configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for blobd.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Metadata  MetadataConfig  `yaml:"metadata"`
	Storage   StorageConfig   `yaml:"storage"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// ShutdownTimeout is the graceful shutdown window in seconds.
	ShutdownTimeout int `yaml:"shutdown_timeout"`
	// MaxBodyBytes caps the size of a request body.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
	// Metrics toggles the /metrics endpoint and collectors.
	Metrics bool `yaml:"metrics"`
}

// AuthConfig holds bearer token settings.
type AuthConfig struct {
	// Enabled turns bearer token checks on. Disable only for local development.
	Enabled bool `yaml:"enabled"`
	// JWTSecret is the HS256 signing key.
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
	// TokenTTL is the lifetime of tokens issued by blobd-meta.
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// LoggingConfig holds slog settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

// RateLimitConfig holds per-caller request limits.
type RateLimitConfig struct {
	// RPS is the sustained requests per second per caller; 0 disables limiting.
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
	// IdleTTL is how long an idle caller's bucket is kept.
	IdleTTL time.Duration `yaml:"idle_ttl"`
}

// MetadataConfig holds metadata store settings.
type MetadataConfig struct {
	// Engine is one of sqlite, memory, bolt, dynamodb, firestore, cosmos, mongo.
	Engine    string          `yaml:"engine"`
	SQLite    SQLiteConfig    `yaml:"sqlite"`
	Bolt      BoltConfig      `yaml:"bolt"`
	DynamoDB  DynamoDBConfig  `yaml:"dynamodb"`
	Firestore FirestoreConfig `yaml:"firestore"`
	Cosmos    CosmosConfig    `yaml:"cosmos"`
	Mongo     MongoConfig     `yaml:"mongo"`
	// Redis enables a read-through record cache when Addr is set.
	Redis RedisConfig `yaml:"redis"`
}

// SQLiteConfig holds SQLite-specific metadata store settings.
type SQLiteConfig struct {
	// Path is the filesystem path for the SQLite database file.
	Path string `yaml:"path"`
}

// BoltConfig holds bbolt settings.
type BoltConfig struct {
	Path string `yaml:"path"`
}

// DynamoDBConfig holds DynamoDB settings.
type DynamoDBConfig struct {
	Table  string `yaml:"table"`
	Region string `yaml:"region"`
	// EndpointURL targets DynamoDB Local or another compatible endpoint.
	EndpointURL string `yaml:"endpoint_url"`
}

// FirestoreConfig holds Firestore settings.
type FirestoreConfig struct {
	ProjectID       string `yaml:"project_id"`
	Collection      string `yaml:"collection"`
	CredentialsFile string `yaml:"credentials_file"`
}

// CosmosConfig holds Azure Cosmos DB settings.
type CosmosConfig struct {
	Endpoint  string `yaml:"endpoint"`
	MasterKey string `yaml:"master_key"`
	Database  string `yaml:"database"`
	Container string `yaml:"container"`
}

// MongoConfig holds MongoDB settings.
type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// RedisConfig holds the record cache settings.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// StorageConfig holds payload storage settings.
type StorageConfig struct {
	// Backend is the variant new blobs are written to: local, db, s3, gcs,
	// azure or memory.
	Backend string `yaml:"backend"`
	// ReadBackends lists extra variants to open for reading blobs written
	// under an earlier Backend setting.
	ReadBackends []string    `yaml:"read_backends"`
	Local        LocalConfig `yaml:"local"`
	DB           DBConfig    `yaml:"db"`
	S3           S3Config    `yaml:"s3"`
	GCS          GCSConfig   `yaml:"gcs"`
	Azure        AzureConfig `yaml:"azure"`
	Memory       MemConfig   `yaml:"memory"`
}

// LocalConfig holds local filesystem storage backend settings.
type LocalConfig struct {
	// RootDir is the directory holding one file per blob.
	RootDir string `yaml:"root_dir"`
}

// DBConfig holds database payload storage settings.
type DBConfig struct {
	// Path is the SQLite file for the blobs_data table. Defaults to the
	// metadata SQLite path.
	Path string `yaml:"path"`
}

// S3Config holds remote object store settings.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	// Region overrides the region derived from Endpoint.
	Region string `yaml:"region"`
}

// GCSConfig holds Google Cloud Storage settings.
type GCSConfig struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	CredentialsFile string `yaml:"credentials_file"`
}

// AzureConfig holds Azure Blob Storage settings.
type AzureConfig struct {
	Container string `yaml:"container"`
	// Account is used to build AccountURL when that is empty.
	Account            string `yaml:"account"`
	AccountURL         string `yaml:"account_url"`
	ConnectionString   string `yaml:"connection_string"`
	UseManagedIdentity bool   `yaml:"use_managed_identity"`
	Prefix             string `yaml:"prefix"`
}

// MemConfig holds in-memory storage settings.
type MemConfig struct {
	// MaxSizeBytes caps total stored bytes; 0 means unlimited.
	MaxSizeBytes int64 `yaml:"max_size_bytes"`
}

// Load reads the YAML file at path, applies defaults, then environment
// overrides. A missing file is tolerated when optional is true, leaving a
// default configuration that the environment can still adjust.
func Load(path string, optional bool) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case optional && errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	applyDefaults(cfg)
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			ShutdownTimeout: 30,
			MaxBodyBytes:    64 << 20,
			Metrics:         true,
		},
		Auth: AuthConfig{
			Enabled:  true,
			Issuer:   "blobd",
			TokenTTL: time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		RateLimit: RateLimitConfig{
			RPS:     0,
			Burst:   20,
			IdleTTL: 10 * time.Minute,
		},
		Metadata: MetadataConfig{
			Engine: "sqlite",
			SQLite: SQLiteConfig{Path: "./data/metadata.db"},
		},
		Storage: StorageConfig{
			Backend: "local",
			Local:   LocalConfig{RootDir: "./data/blobs"},
		},
	}
}

// applyDefaults fills in any fields that are still at their zero value
// after YAML unmarshaling.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 64 << 20
	}
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "blobd"
	}
	if cfg.Auth.TokenTTL == 0 {
		cfg.Auth.TokenTTL = time.Hour
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 20
	}
	if cfg.RateLimit.IdleTTL == 0 {
		cfg.RateLimit.IdleTTL = 10 * time.Minute
	}
	if cfg.Metadata.Engine == "" {
		cfg.Metadata.Engine = "sqlite"
	}
	if cfg.Metadata.SQLite.Path == "" {
		cfg.Metadata.SQLite.Path = "./data/metadata.db"
	}
	if cfg.Metadata.Bolt.Path == "" {
		cfg.Metadata.Bolt.Path = "./data/metadata.bolt"
	}
	if cfg.Metadata.DynamoDB.Region == "" {
		cfg.Metadata.DynamoDB.Region = "us-east-1"
	}
	if cfg.Metadata.Firestore.Collection == "" {
		cfg.Metadata.Firestore.Collection = "blobs_meta"
	}
	if cfg.Metadata.Mongo.Database == "" {
		cfg.Metadata.Mongo.Database = "blobd"
	}
	if cfg.Metadata.Mongo.Collection == "" {
		cfg.Metadata.Mongo.Collection = "blobs_meta"
	}
	if cfg.Metadata.Redis.TTL == 0 {
		cfg.Metadata.Redis.TTL = time.Hour
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "local"
	}
	if cfg.Storage.Local.RootDir == "" {
		cfg.Storage.Local.RootDir = "./data/blobs"
	}
	if cfg.Storage.Azure.AccountURL == "" && cfg.Storage.Azure.Account != "" {
		cfg.Storage.Azure.AccountURL = fmt.Sprintf("https://%s.blob.core.windows.net", cfg.Storage.Azure.Account)
	}
}

// applyEnv overlays environment variables. BLOBD_* names come first; the
// bare names are accepted for deployments configured by environment alone.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(dst *string, names ...string) {
		for _, n := range names {
			if v, ok := lookup(n); ok && v != "" {
				*dst = v
				return
			}
		}
	}

	str(&cfg.Server.Host, "BLOBD_HOST")
	str(&cfg.Logging.Level, "BLOBD_LOG_LEVEL")
	str(&cfg.Logging.Format, "BLOBD_LOG_FORMAT")
	str(&cfg.Auth.JWTSecret, "BLOBD_JWT_SECRET", "JWT_SECRET")
	str(&cfg.Metadata.Engine, "BLOBD_METADATA_ENGINE")
	str(&cfg.Metadata.Redis.Addr, "BLOBD_REDIS_ADDR")
	str(&cfg.Metadata.Mongo.URI, "BLOBD_MONGO_URI")
	str(&cfg.Storage.Backend, "BLOBD_STORAGE_BACKEND", "STORAGE_BACKEND")
	str(&cfg.Storage.Local.RootDir, "BLOBD_LOCAL_STORAGE_PATH", "LOCAL_STORAGE_PATH")
	str(&cfg.Storage.S3.Bucket, "BLOBD_S3_BUCKET", "S3_BUCKET")
	str(&cfg.Storage.S3.Endpoint, "BLOBD_S3_ENDPOINT", "S3_ENDPOINT")
	str(&cfg.Storage.S3.AccessKey, "BLOBD_S3_ACCESS_KEY", "S3_ACCESS_KEY")
	str(&cfg.Storage.S3.SecretKey, "BLOBD_S3_SECRET_KEY", "S3_SECRET_KEY")
	str(&cfg.Storage.S3.Region, "BLOBD_S3_REGION", "S3_REGION")

	var dbURL string
	str(&dbURL, "BLOBD_DATABASE_URL", "DATABASE_URL")
	if dbURL != "" {
		path, err := sqlitePathFromURL(dbURL)
		if err != nil {
			return err
		}
		cfg.Metadata.SQLite.Path = path
	}

	if v, ok := lookup("BLOBD_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BLOBD_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v, ok := lookup("BLOBD_AUTH_ENABLED"); ok && v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("BLOBD_AUTH_ENABLED: %w", err)
		}
		cfg.Auth.Enabled = enabled
	}
	return nil
}

// sqlitePathFromURL accepts "sqlite:///abs/path", "sqlite://rel/path" or a
// bare file path.
func sqlitePathFromURL(u string) (string, error) {
	if !strings.Contains(u, "://") {
		return u, nil
	}
	const scheme = "sqlite://"
	if !strings.HasPrefix(u, scheme) {
		return "", fmt.Errorf("DATABASE_URL: only sqlite:// URLs are supported, got %q", u)
	}
	path := strings.TrimPrefix(u, scheme)
	if path == "" {
		return "", fmt.Errorf("DATABASE_URL: empty sqlite path")
	}
	return path, nil
}

// Validate checks that the selected backend and engine are known and that
// their required settings are present.
func (c *Config) Validate() error {
	var errs []error

	backends := append([]string{c.Storage.Backend}, c.Storage.ReadBackends...)
	for _, b := range backends {
		switch strings.ToLower(b) {
		case "local":
			if c.Storage.Local.RootDir == "" {
				errs = append(errs, errors.New("storage.local.root_dir is required for the local backend"))
			}
		case "db", "memory":
		case "s3":
			if c.Storage.S3.Endpoint == "" || c.Storage.S3.Bucket == "" {
				errs = append(errs, errors.New("storage.s3.endpoint and storage.s3.bucket are required for the s3 backend"))
			}
		case "gcs":
			if c.Storage.GCS.Bucket == "" {
				errs = append(errs, errors.New("storage.gcs.bucket is required for the gcs backend"))
			}
		case "azure":
			if c.Storage.Azure.Container == "" {
				errs = append(errs, errors.New("storage.azure.container is required for the azure backend"))
			}
			if c.Storage.Azure.AccountURL == "" && c.Storage.Azure.ConnectionString == "" {
				errs = append(errs, errors.New("storage.azure.account, account_url or connection_string is required for the azure backend"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown storage backend %q", b))
		}
	}

	switch c.Metadata.Engine {
	case "sqlite", "memory", "bolt":
	case "dynamodb":
		if c.Metadata.DynamoDB.Table == "" {
			errs = append(errs, errors.New("metadata.dynamodb.table is required"))
		}
	case "firestore":
		if c.Metadata.Firestore.ProjectID == "" {
			errs = append(errs, errors.New("metadata.firestore.project_id is required"))
		}
	case "cosmos":
		if c.Metadata.Cosmos.Endpoint == "" || c.Metadata.Cosmos.Database == "" || c.Metadata.Cosmos.Container == "" {
			errs = append(errs, errors.New("metadata.cosmos.endpoint, database and container are required"))
		}
	case "mongo":
		if c.Metadata.Mongo.URI == "" {
			errs = append(errs, errors.New("metadata.mongo.uri is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown metadata engine %q", c.Metadata.Engine))
	}

	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required when auth is enabled"))
	}
	if c.RateLimit.RPS < 0 {
		errs = append(errs, errors.New("rate_limit.rps must not be negative"))
	}
	return errors.Join(errs...)
}
