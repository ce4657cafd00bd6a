package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var allKeys = []string{
	"CONFIG_FILE", "PORT", "NOTION_TOKEN", "NOTION_PAGE_ID", "NOTION_BASE_URL", "NOTION_VERSION",
	"SOURCE", "SOURCE_FILE", "WATCH_SOURCE", "SINK", "OUTPUT_DIR", "SQLITE_PATH",
	"PATHSTORE_URL", "PATHSTORE_API_KEY", "PATHSTORE_PREFIX", "API_KEY",
	"WORKER_COUNT", "MAX_QUEUE_SIZE", "MAX_CONCURRENT_FETCH", "REBUILD_INTERVAL", "BUILD_ON_START",
	"JOB_TTL", "SEARCH_RANKING", "SEARCH_DEFAULT_LIMIT", "LOG_LEVEL",
}

// cleanEnv unsets every config variable for the test and runs it from an
// empty directory so no stray .env file is picked up.
func cleanEnv(t *testing.T) string {
	t.Helper()
	for _, key := range allKeys {
		old, ok := os.LookupEnv(key)
		os.Unsetenv(key)
		t.Cleanup(func() {
			if ok {
				os.Setenv(key, old)
			} else {
				os.Unsetenv(key)
			}
		})
	}
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	cleanEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8090" {
		t.Errorf("expected port 8090, got %q", cfg.Port)
	}
	if cfg.Source != SourceNotion || cfg.Sink != SinkFS {
		t.Errorf("expected notion/fs, got %s/%s", cfg.Source, cfg.Sink)
	}
	if cfg.WorkerCount != 1 {
		t.Errorf("expected 1 worker, got %d", cfg.WorkerCount)
	}
	if cfg.JobTTL != time.Hour {
		t.Errorf("expected job ttl 1h, got %s", cfg.JobTTL)
	}
	if !cfg.BuildOnStart {
		t.Error("expected build on start by default")
	}
	if cfg.RebuildInterval != 0 {
		t.Errorf("expected periodic rebuilds off, got %s", cfg.RebuildInterval)
	}
	if cfg.SearchRanking != "index" || cfg.SearchDefaultLimit != 5 {
		t.Errorf("expected index/5, got %s/%d", cfg.SearchRanking, cfg.SearchDefaultLimit)
	}
}

func TestLoad_FileExpandedThenEnvOverrides(t *testing.T) {
	dir := cleanEnv(t)
	t.Setenv("TEST_NOTION_SECRET", "abc")
	t.Setenv("WORKER_COUNT", "3")

	path := filepath.Join(dir, "notiondocs.yaml")
	yml := "port: \"9000\"\nsink: sqlite\nnotion_token: ${TEST_NOTION_SECRET}\nrebuild_interval: 15m\nworker_count: 2\n"
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "9000" {
		t.Errorf("expected port from file, got %q", cfg.Port)
	}
	if cfg.Sink != SinkSQLite {
		t.Errorf("expected sqlite sink, got %q", cfg.Sink)
	}
	if cfg.NotionToken != "abc" {
		t.Errorf("expected expanded token, got %q", cfg.NotionToken)
	}
	if cfg.RebuildInterval != 15*time.Minute {
		t.Errorf("expected 15m, got %s", cfg.RebuildInterval)
	}
	if cfg.WorkerCount != 3 {
		t.Errorf("expected env to override file, got %d", cfg.WorkerCount)
	}
}

func TestLoad_ConfigFileFromEnv(t *testing.T) {
	dir := cleanEnv(t)
	path := filepath.Join(dir, "c.yaml")
	if err := os.WriteFile(path, []byte("search_ranking: keyword\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SearchRanking != "keyword" {
		t.Errorf("expected keyword, got %q", cfg.SearchRanking)
	}
}

func TestLoad_FileErrors(t *testing.T) {
	dir := cleanEnv(t)
	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("worker_count: [\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(bad); err == nil {
		t.Error("expected error for malformed yaml")
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := cleanEnv(t)
	t.Setenv("SOURCE_FILE", "from-env")
	write := func(name, content string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write(".env", "NOTION_PAGE_ID=from-dotenv\nPORT=7000\nSOURCE_FILE=from-dotenv\n")
	write(".env.local", "NOTION_PAGE_ID=from-local\n")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.NotionPageID != "from-local" {
		t.Errorf("expected .env.local to win, got %q", cfg.NotionPageID)
	}
	if cfg.Port != "7000" {
		t.Errorf("expected port from .env, got %q", cfg.Port)
	}
	if cfg.SourceFile != "from-env" {
		t.Errorf("expected process env to win, got %q", cfg.SourceFile)
	}
}

func TestLoad_NonPositiveFallsBack(t *testing.T) {
	cleanEnv(t)
	t.Setenv("WORKER_COUNT", "0")
	t.Setenv("MAX_QUEUE_SIZE", "-1")
	t.Setenv("JOB_TTL", "0s")
	t.Setenv("SEARCH_DEFAULT_LIMIT", "nope")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.WorkerCount != 1 || cfg.MaxQueueSize != 10 {
		t.Errorf("expected defaults, got workers=%d queue=%d", cfg.WorkerCount, cfg.MaxQueueSize)
	}
	if cfg.JobTTL != time.Hour {
		t.Errorf("expected 1h, got %s", cfg.JobTTL)
	}
	if cfg.SearchDefaultLimit != 5 {
		t.Errorf("expected 5, got %d", cfg.SearchDefaultLimit)
	}
}

func TestValidate(t *testing.T) {
	valid := defaults()
	valid.NotionToken = "tok"
	valid.NotionPageID = "page"

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid notion", func(*Config) {}, ""},
		{"missing token", func(c *Config) { c.NotionToken = "" }, "NOTION_TOKEN"},
		{"missing page", func(c *Config) { c.NotionPageID = "" }, "NOTION_PAGE_ID"},
		{"file source", func(c *Config) { c.Source = SourceFile; c.SourceFile = "x.json" }, ""},
		{"file source without path", func(c *Config) { c.Source = SourceFile }, "SOURCE_FILE"},
		{"unknown source", func(c *Config) { c.Source = "git" }, "SOURCE"},
		{"pathstore without key", func(c *Config) { c.Sink = SinkPathstore }, "PATHSTORE_API_KEY"},
		{"unknown sink", func(c *Config) { c.Sink = "s3" }, "SINK"},
		{"unknown ranking", func(c *Config) { c.SearchRanking = "vector" }, "SEARCH_RANKING"},
		{"watch needs file", func(c *Config) { c.WatchSource = true }, "WATCH_SOURCE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateServerRequiresAPIKey(t *testing.T) {
	cfg := defaults()
	cfg.NotionToken = "tok"
	cfg.NotionPageID = "page"
	if err := cfg.ValidateServer(); err == nil || !strings.Contains(err.Error(), "API_KEY") {
		t.Fatalf("expected API_KEY error, got %v", err)
	}
	cfg.APIKey = "k"
	if err := cfg.ValidateServer(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
