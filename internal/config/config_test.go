package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blobd.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaultsWhenOptionalMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), true)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("Port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.Storage.Backend != "local" || cfg.Metadata.Engine != "sqlite" {
		t.Errorf("unexpected defaults: backend=%q engine=%q", cfg.Storage.Backend, cfg.Metadata.Engine)
	}
	if !cfg.Auth.Enabled {
		t.Error("auth should be enabled by default")
	}
}

func TestLoadMissingRequiredFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), false); err == nil {
		t.Error("expected error for a missing explicit config file")
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9100
auth:
  enabled: false
  token_ttl: 15m
storage:
  backend: s3
  read_backends: [local]
  s3:
    endpoint: https://s3.eu-west-2.amazonaws.com
    bucket: blobs
metadata:
  engine: bolt
  redis:
    addr: localhost:6379
`)
	cfg, err := Load(path, false)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("Port = %d", cfg.Server.Port)
	}
	if cfg.Auth.Enabled {
		t.Error("auth.enabled: false was not honored")
	}
	if cfg.Auth.TokenTTL != 15*time.Minute {
		t.Errorf("TokenTTL = %v", cfg.Auth.TokenTTL)
	}
	if cfg.Storage.Backend != "s3" || cfg.Storage.S3.Bucket != "blobs" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if len(cfg.Storage.ReadBackends) != 1 || cfg.Storage.ReadBackends[0] != "local" {
		t.Errorf("ReadBackends = %v", cfg.Storage.ReadBackends)
	}
	if cfg.Metadata.Engine != "bolt" || cfg.Metadata.Bolt.Path == "" {
		t.Errorf("metadata = %+v", cfg.Metadata)
	}
	if cfg.Metadata.Redis.TTL != time.Hour {
		t.Errorf("redis TTL default = %v", cfg.Metadata.Redis.TTL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [unclosed")
	if _, err := Load(path, false); err == nil {
		t.Error("expected parse error")
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := defaultConfig()
	env := map[string]string{
		"STORAGE_BACKEND":    "s3",
		"S3_BUCKET":          "legacy-bucket",
		"BLOBD_S3_BUCKET":    "new-bucket",
		"S3_ENDPOINT":        "http://minio:9000",
		"S3_ACCESS_KEY":      "ak",
		"S3_SECRET_KEY":      "sk",
		"DATABASE_URL":       "sqlite:///var/lib/blobd/meta.db",
		"JWT_SECRET":         "s3cret",
		"BLOBD_PORT":         "9001",
		"BLOBD_AUTH_ENABLED": "true",
		"LOCAL_STORAGE_PATH": "/srv/blobs",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	if err := applyEnv(cfg, lookup); err != nil {
		t.Fatalf("applyEnv failed: %v", err)
	}
	if cfg.Storage.Backend != "s3" {
		t.Errorf("Backend = %q", cfg.Storage.Backend)
	}
	if cfg.Storage.S3.Bucket != "new-bucket" {
		t.Errorf("BLOBD_ name should win, Bucket = %q", cfg.Storage.S3.Bucket)
	}
	if cfg.Storage.S3.Endpoint != "http://minio:9000" || cfg.Storage.S3.AccessKey != "ak" || cfg.Storage.S3.SecretKey != "sk" {
		t.Errorf("S3 = %+v", cfg.Storage.S3)
	}
	if cfg.Metadata.SQLite.Path != "/var/lib/blobd/meta.db" {
		t.Errorf("SQLite path = %q", cfg.Metadata.SQLite.Path)
	}
	if cfg.Auth.JWTSecret != "s3cret" {
		t.Errorf("JWTSecret = %q", cfg.Auth.JWTSecret)
	}
	if cfg.Server.Port != 9001 {
		t.Errorf("Port = %d", cfg.Server.Port)
	}
	if cfg.Storage.Local.RootDir != "/srv/blobs" {
		t.Errorf("RootDir = %q", cfg.Storage.Local.RootDir)
	}
}

func TestApplyEnvRejectsBadValues(t *testing.T) {
	for name, env := range map[string]map[string]string{
		"port":         {"BLOBD_PORT": "eighty"},
		"auth":         {"BLOBD_AUTH_ENABLED": "maybe"},
		"database url": {"DATABASE_URL": "postgres://db/blobs"},
	} {
		t.Run(name, func(t *testing.T) {
			lookup := func(k string) (string, bool) {
				v, ok := env[k]
				return v, ok
			}
			if err := applyEnv(defaultConfig(), lookup); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSQLitePathFromURL(t *testing.T) {
	tests := map[string]string{
		"sqlite://db.sqlite3":      "db.sqlite3",
		"sqlite:///abs/db.sqlite3": "/abs/db.sqlite3",
		"./plain.db":               "./plain.db",
	}
	for in, want := range tests {
		got, err := sqlitePathFromURL(in)
		if err != nil {
			t.Errorf("sqlitePathFromURL(%q) error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("sqlitePathFromURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults with secret", func(c *Config) {}, ""},
		{"missing secret", func(c *Config) { c.Auth.JWTSecret = "" }, "jwt_secret"},
		{"auth disabled needs no secret", func(c *Config) { c.Auth.JWTSecret = ""; c.Auth.Enabled = false }, ""},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "ftp" }, "unknown storage backend"},
		{"s3 without bucket", func(c *Config) { c.Storage.Backend = "s3"; c.Storage.S3.Endpoint = "http://x" }, "storage.s3"},
		{"bad read backend", func(c *Config) { c.Storage.ReadBackends = []string{"tape"} }, "unknown storage backend"},
		{"unknown engine", func(c *Config) { c.Metadata.Engine = "etcd" }, "unknown metadata engine"},
		{"dynamodb without table", func(c *Config) { c.Metadata.Engine = "dynamodb" }, "dynamodb.table"},
		{"mongo without uri", func(c *Config) { c.Metadata.Engine = "mongo" }, "mongo.uri"},
		{"azure without account", func(c *Config) { c.Storage.Backend = "azure"; c.Storage.Azure.Container = "c" }, "account"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Auth.JWTSecret = "secret"
			applyDefaults(cfg)
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestAzureAccountURLDefault(t *testing.T) {
	cfg := defaultConfig()
	cfg.Storage.Azure.Account = "acct"
	applyDefaults(cfg)
	if cfg.Storage.Azure.AccountURL != "https://acct.blob.core.windows.net" {
		t.Errorf("AccountURL = %q", cfg.Storage.Azure.AccountURL)
	}
}
