package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

// kdEnv lists every variable LoadDir reads.
var kdEnv = []string{
	"KD_DIR", "KD_STORE", "KD_DATABASE_URL", "KD_GRPC_ADDR", "KD_HTTP_ADDR",
	"KD_NATS_URL", "KD_AUTH_TOKEN", "KD_TRACE",
	"KD_SYNC_INTERVAL", "KD_SYNC_COMPRESS",
	"KD_SYNC_S3_BUCKET", "KD_SYNC_S3_ENDPOINT", "KD_SYNC_S3_REGION", "KD_SYNC_S3_KEY",
	"KD_SYNC_GIT_REPO", "KD_SYNC_GIT_FILE", "KD_SYNC_GIT_BRANCH",
}

// isolate clears the KD_ environment and returns an empty kd directory.
func isolate(t *testing.T) string {
	t.Helper()
	for _, key := range kdEnv {
		t.Setenv(key, "")
	}
	return t.TempDir()
}

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func defaults(dir string) Config {
	return Config{
		Dir:           dir,
		Store:         StoreFile,
		GRPCAddr:      ":9090",
		HTTPAddr:      ":8080",
		SyncS3Region:  "us-east-1",
		SyncS3Key:     "kd/graph.jsonl",
		SyncGitFile:   "kd-graph.jsonl",
		SyncGitBranch: "main",
	}
}

func TestLoadDir(t *testing.T) {
	tests := []struct {
		name string
		file string
		env  map[string]string
		want func(c *Config)
	}{
		{
			name: "defaults",
			want: func(*Config) {},
		},
		{
			name: "environment",
			env: map[string]string{
				"KD_STORE":         "postgres",
				"KD_DATABASE_URL":  "postgres://db:5432/kd",
				"KD_GRPC_ADDR":     ":5050",
				"KD_HTTP_ADDR":     ":3000",
				"KD_NATS_URL":      "nats://localhost:4222",
				"KD_AUTH_TOKEN":    "s3cret",
				"KD_TRACE":         "1",
				"KD_SYNC_INTERVAL": "10m",
				"KD_SYNC_COMPRESS": "true",
			},
			want: func(c *Config) {
				c.Store, c.DatabaseURL = StorePostgres, "postgres://db:5432/kd"
				c.GRPCAddr, c.HTTPAddr = ":5050", ":3000"
				c.NATSURL, c.AuthToken, c.Trace = "nats://localhost:4222", "s3cret", true
				c.SyncInterval, c.SyncCompress = 10*time.Minute, true
			},
		},
		{
			name: "sync destinations from environment",
			env: map[string]string{
				"KD_SYNC_S3_BUCKET":   "my-bucket",
				"KD_SYNC_S3_ENDPOINT": "http://minio:9000",
				"KD_SYNC_S3_REGION":   "eu-west-1",
				"KD_SYNC_S3_KEY":      "custom/key.jsonl",
				"KD_SYNC_GIT_REPO":    "/srv/graph",
				"KD_SYNC_GIT_FILE":    "custom.jsonl",
				"KD_SYNC_GIT_BRANCH":  "backup",
			},
			want: func(c *Config) {
				c.SyncS3Bucket, c.SyncS3Endpoint = "my-bucket", "http://minio:9000"
				c.SyncS3Region, c.SyncS3Key = "eu-west-1", "custom/key.jsonl"
				c.SyncGitRepo, c.SyncGitFile, c.SyncGitBranch = "/srv/graph", "custom.jsonl", "backup"
			},
		},
		{
			name: "file under environment",
			file: `
store = "postgres"
database_url = "postgres://file/kd"
http_addr = ":7000"
trace = true

[sync]
interval = "5m"

[sync.s3]
bucket = "from-file"

[sync.git]
branch = "graph"
`,
			env: map[string]string{"KD_HTTP_ADDR": ":7100", "KD_TRACE": "false"},
			want: func(c *Config) {
				c.Store, c.DatabaseURL = StorePostgres, "postgres://file/kd"
				c.HTTPAddr = ":7100"
				c.SyncInterval = 5 * time.Minute
				c.SyncS3Bucket = "from-file"
				c.SyncGitBranch = "graph"
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := isolate(t)
			if tc.file != "" {
				writeConfig(t, dir, tc.file)
			}
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			got, err := LoadDir(dir)
			if err != nil {
				t.Fatalf("LoadDir: %v", err)
			}
			want := defaults(dir)
			tc.want(&want)
			if !reflect.DeepEqual(*got, want) {
				t.Errorf("config mismatch\n got: %+v\nwant: %+v", *got, want)
			}
		})
	}
}

func TestLoadDir_Errors(t *testing.T) {
	tests := []struct {
		name string
		file string
		env  map[string]string
		msg  string
	}{
		{"postgres without url", "", map[string]string{"KD_STORE": "postgres"}, "KD_DATABASE_URL is required"},
		{"unknown store", "", map[string]string{"KD_STORE": "sqlite"}, `unknown store "sqlite"`},
		{"bad interval", "", map[string]string{"KD_SYNC_INTERVAL": "hourly"}, "KD_SYNC_INTERVAL"},
		{"bad interval in file", "[sync]\ninterval = \"often\"\n", nil, "KD_SYNC_INTERVAL"},
		{"bad trace", "", map[string]string{"KD_TRACE": "sometimes"}, "KD_TRACE"},
		{"bad compress", "", map[string]string{"KD_SYNC_COMPRESS": "maybe"}, "KD_SYNC_COMPRESS"},
		{"malformed file", "store = \n", nil, "config.toml"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := isolate(t)
			if tc.file != "" {
				writeConfig(t, dir, tc.file)
			}
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := LoadDir(dir)
			if err == nil || !strings.Contains(err.Error(), tc.msg) {
				t.Fatalf("LoadDir error = %v, want it to mention %q", err, tc.msg)
			}
		})
	}
}

func TestLoad_UsesKDDir(t *testing.T) {
	dir := isolate(t)
	t.Setenv("KD_DIR", dir)
	writeConfig(t, dir, "grpc_addr = \":7300\"\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Dir != dir || cfg.GRPCAddr != ":7300" {
		t.Errorf("Dir = %q, GRPCAddr = %q; want %q and the file's :7300", cfg.Dir, cfg.GRPCAddr, dir)
	}
	if cfg.IssuesDir() != filepath.Join(dir, "issues") || cfg.IndexPath() != filepath.Join(dir, "edges") {
		t.Errorf("IssuesDir = %q, IndexPath = %q", cfg.IssuesDir(), cfg.IndexPath())
	}
}

func TestLoadDir_ArgumentBeatsKDDir(t *testing.T) {
	isolate(t)
	t.Setenv("KD_DIR", t.TempDir())
	other := t.TempDir()
	cfg, err := LoadDir(other)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if cfg.Dir != other {
		t.Errorf("Dir = %q, want %q", cfg.Dir, other)
	}
}

func TestEnvOrDefault(t *testing.T) {
	t.Setenv("KD_TEST_VALUE", "")
	if got := envOrDefault("KD_TEST_VALUE", "fallback"); got != "fallback" {
		t.Errorf("unset: got %q", got)
	}
	t.Setenv("KD_TEST_VALUE", "set")
	if got := envOrDefault("KD_TEST_VALUE", "fallback"); got != "set" {
		t.Errorf("set: got %q", got)
	}
}
