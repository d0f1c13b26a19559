// Package config loads kd settings from KD_* environment variables layered
// over an optional <dir>/config.toml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Store backends.
const (
	StoreFile     = "file"
	StorePostgres = "postgres"
)

type Config struct {
	Dir         string // KD_DIR (default ".kd")
	Store       string // KD_STORE (default "file"; "file" or "postgres")
	DatabaseURL string // KD_DATABASE_URL (required when Store is postgres)
	GRPCAddr    string // KD_GRPC_ADDR (default ":9090")
	HTTPAddr    string // KD_HTTP_ADDR (default ":8080")
	NATSURL     string // KD_NATS_URL (optional, empty = no events)
	AuthToken   string // KD_AUTH_TOKEN (optional, empty = auth disabled)
	Trace       bool   // KD_TRACE (write spans to stderr)

	// Sync settings
	SyncInterval   time.Duration // KD_SYNC_INTERVAL (default 0 = disabled)
	SyncCompress   bool          // KD_SYNC_COMPRESS (zstd-compress the export)
	SyncS3Bucket   string        // KD_SYNC_S3_BUCKET (enables S3 when set)
	SyncS3Endpoint string        // KD_SYNC_S3_ENDPOINT (custom endpoint for MinIO)
	SyncS3Region   string        // KD_SYNC_S3_REGION (default "us-east-1")
	SyncS3Key      string        // KD_SYNC_S3_KEY (default "kd/graph.jsonl")
	SyncGitRepo    string        // KD_SYNC_GIT_REPO (enables git when set; path to clone)
	SyncGitFile    string        // KD_SYNC_GIT_FILE (default "kd-graph.jsonl")
	SyncGitBranch  string        // KD_SYNC_GIT_BRANCH (default "main")
}

// fileConfig mirrors Config in config.toml. Durations are strings.
type fileConfig struct {
	Store       string `toml:"store"`
	DatabaseURL string `toml:"database_url"`
	GRPCAddr    string `toml:"grpc_addr"`
	HTTPAddr    string `toml:"http_addr"`
	NATSURL     string `toml:"nats_url"`
	Trace       bool   `toml:"trace"`
	Sync        struct {
		Interval string `toml:"interval"`
		Compress bool   `toml:"compress"`
		S3       struct {
			Bucket   string `toml:"bucket"`
			Endpoint string `toml:"endpoint"`
			Region   string `toml:"region"`
			Key      string `toml:"key"`
		} `toml:"s3"`
		Git struct {
			Repo   string `toml:"repo"`
			File   string `toml:"file"`
			Branch string `toml:"branch"`
		} `toml:"git"`
	} `toml:"sync"`
}

// Load is LoadDir with the directory taken from KD_DIR (default ".kd").
func Load() (*Config, error) {
	return LoadDir(envOrDefault("KD_DIR", ".kd"))
}

// LoadDir builds the configuration for the kd directory dir: defaults, then
// <dir>/config.toml when it exists, then environment variables. The auth
// token is only read from the environment.
func LoadDir(dir string) (*Config, error) {
	c := &Config{
		Dir:           dir,
		Store:         StoreFile,
		GRPCAddr:      ":9090",
		HTTPAddr:      ":8080",
		SyncS3Region:  "us-east-1",
		SyncS3Key:     "kd/graph.jsonl",
		SyncGitFile:   "kd-graph.jsonl",
		SyncGitBranch: "main",
	}
	interval := ""

	fc, err := readFile(filepath.Join(c.Dir, "config.toml"))
	if err != nil {
		return nil, err
	}
	if fc != nil {
		c.Store = orDefault(fc.Store, c.Store)
		c.DatabaseURL = fc.DatabaseURL
		c.GRPCAddr = orDefault(fc.GRPCAddr, c.GRPCAddr)
		c.HTTPAddr = orDefault(fc.HTTPAddr, c.HTTPAddr)
		c.NATSURL = fc.NATSURL
		c.Trace = fc.Trace
		interval = fc.Sync.Interval
		c.SyncCompress = fc.Sync.Compress
		c.SyncS3Bucket = fc.Sync.S3.Bucket
		c.SyncS3Endpoint = fc.Sync.S3.Endpoint
		c.SyncS3Region = orDefault(fc.Sync.S3.Region, c.SyncS3Region)
		c.SyncS3Key = orDefault(fc.Sync.S3.Key, c.SyncS3Key)
		c.SyncGitRepo = fc.Sync.Git.Repo
		c.SyncGitFile = orDefault(fc.Sync.Git.File, c.SyncGitFile)
		c.SyncGitBranch = orDefault(fc.Sync.Git.Branch, c.SyncGitBranch)
	}

	c.Store = envOrDefault("KD_STORE", c.Store)
	c.DatabaseURL = envOrDefault("KD_DATABASE_URL", c.DatabaseURL)
	c.GRPCAddr = envOrDefault("KD_GRPC_ADDR", c.GRPCAddr)
	c.HTTPAddr = envOrDefault("KD_HTTP_ADDR", c.HTTPAddr)
	c.NATSURL = envOrDefault("KD_NATS_URL", c.NATSURL)
	c.AuthToken = os.Getenv("KD_AUTH_TOKEN")
	c.SyncS3Bucket = envOrDefault("KD_SYNC_S3_BUCKET", c.SyncS3Bucket)
	c.SyncS3Endpoint = envOrDefault("KD_SYNC_S3_ENDPOINT", c.SyncS3Endpoint)
	c.SyncS3Region = envOrDefault("KD_SYNC_S3_REGION", c.SyncS3Region)
	c.SyncS3Key = envOrDefault("KD_SYNC_S3_KEY", c.SyncS3Key)
	c.SyncGitRepo = envOrDefault("KD_SYNC_GIT_REPO", c.SyncGitRepo)
	c.SyncGitFile = envOrDefault("KD_SYNC_GIT_FILE", c.SyncGitFile)
	c.SyncGitBranch = envOrDefault("KD_SYNC_GIT_BRANCH", c.SyncGitBranch)

	if c.Trace, err = envBool("KD_TRACE", c.Trace); err != nil {
		return nil, err
	}
	if c.SyncCompress, err = envBool("KD_SYNC_COMPRESS", c.SyncCompress); err != nil {
		return nil, err
	}

	intervalStr := envOrDefault("KD_SYNC_INTERVAL", interval)
	if intervalStr != "" {
		d, err := time.ParseDuration(intervalStr)
		if err != nil {
			return nil, fmt.Errorf("KD_SYNC_INTERVAL: %w", err)
		}
		c.SyncInterval = d
	}

	switch c.Store {
	case StoreFile:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return nil, fmt.Errorf("KD_DATABASE_URL is required when KD_STORE is %s", StorePostgres)
		}
	default:
		return nil, fmt.Errorf("KD_STORE: unknown store %q (want %s or %s)", c.Store, StoreFile, StorePostgres)
	}

	return c, nil
}

// IssuesDir is where the file store keeps issue files.
func (c *Config) IssuesDir() string {
	return filepath.Join(c.Dir, "issues")
}

// IndexPath is where the file-backed edge index lives.
func (c *Config) IndexPath() string {
	return filepath.Join(c.Dir, "edges")
}

func readFile(path string) (*fileConfig, error) {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return &fc, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func orDefault(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
