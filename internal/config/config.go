package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port string `yaml:"port"`

	// Notion source
	NotionToken   string `yaml:"notion_token"`
	NotionPageID  string `yaml:"notion_page_id"`
	NotionBaseURL string `yaml:"notion_base_url"`
	NotionVersion string `yaml:"notion_version"`

	// Source selects where the content tree comes from: notion or file.
	Source      string `yaml:"source"`
	SourceFile  string `yaml:"source_file"`
	WatchSource bool   `yaml:"watch_source"`

	// Sink selects the page store: fs, sqlite, pathstore or memory.
	Sink       string `yaml:"sink"`
	OutputDir  string `yaml:"output_dir"`
	SQLitePath string `yaml:"sqlite_path"`

	// Pathstore connection
	PathstoreURL    string `yaml:"pathstore_url"`
	PathstoreAPIKey string `yaml:"pathstore_api_key"`
	PathstorePrefix string `yaml:"pathstore_prefix"`

	// Auth
	APIKey string `yaml:"api_key"`

	// Build workers
	WorkerCount        int           `yaml:"worker_count"`
	MaxQueueSize       int           `yaml:"max_queue_size"`
	MaxConcurrentFetch int           `yaml:"max_concurrent_fetch"`
	RebuildInterval    time.Duration `yaml:"rebuild_interval"`
	BuildOnStart       bool          `yaml:"build_on_start"`

	// Job state
	JobTTL time.Duration `yaml:"job_ttl"`

	// Search
	SearchRanking      string `yaml:"search_ranking"`
	SearchDefaultLimit int    `yaml:"search_default_limit"`

	LogLevel string `yaml:"log_level"`
}

const (
	SourceNotion = "notion"
	SourceFile   = "file"

	SinkFS        = "fs"
	SinkSQLite    = "sqlite"
	SinkPathstore = "pathstore"
	SinkMemory    = "memory"
)

func defaults() Config {
	return Config{
		Port:               "8090",
		NotionBaseURL:      "https://api.notion.com",
		NotionVersion:      "2022-06-28",
		Source:             SourceNotion,
		Sink:               SinkFS,
		OutputDir:          "./site",
		SQLitePath:         "./notiondocs.db",
		PathstoreURL:       "http://localhost:8080",
		PathstorePrefix:    "sites/docs",
		WorkerCount:        1,
		MaxQueueSize:       10,
		MaxConcurrentFetch: 3,
		BuildOnStart:       true,
		JobTTL:             1 * time.Hour,
		SearchRanking:      "index",
		SearchDefaultLimit: 5,
		LogLevel:           "info",
	}
}

// Load builds the configuration from, in increasing precedence: defaults, the
// YAML file at path (or $CONFIG_FILE when path is empty), and the environment.
// Variables from .env.local and .env are added to the environment first
// without replacing variables that are already set.
func Load(path string) (Config, error) {
	loadDotEnv(".env.local", ".env")

	cfg := defaults()
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg.Port = envOr("PORT", cfg.Port)

	cfg.NotionToken = envOr("NOTION_TOKEN", cfg.NotionToken)
	cfg.NotionPageID = envOr("NOTION_PAGE_ID", cfg.NotionPageID)
	cfg.NotionBaseURL = envOr("NOTION_BASE_URL", cfg.NotionBaseURL)
	cfg.NotionVersion = envOr("NOTION_VERSION", cfg.NotionVersion)

	cfg.Source = strings.ToLower(envOr("SOURCE", cfg.Source))
	cfg.SourceFile = envOr("SOURCE_FILE", cfg.SourceFile)
	cfg.WatchSource = envBool("WATCH_SOURCE", cfg.WatchSource)

	cfg.Sink = strings.ToLower(envOr("SINK", cfg.Sink))
	cfg.OutputDir = envOr("OUTPUT_DIR", cfg.OutputDir)
	cfg.SQLitePath = envOr("SQLITE_PATH", cfg.SQLitePath)

	cfg.PathstoreURL = envOr("PATHSTORE_URL", cfg.PathstoreURL)
	cfg.PathstoreAPIKey = envOr("PATHSTORE_API_KEY", cfg.PathstoreAPIKey)
	cfg.PathstorePrefix = envOr("PATHSTORE_PREFIX", cfg.PathstorePrefix)

	cfg.APIKey = envOr("API_KEY", cfg.APIKey)

	cfg.WorkerCount = envInt("WORKER_COUNT", cfg.WorkerCount)
	cfg.MaxQueueSize = envInt("MAX_QUEUE_SIZE", cfg.MaxQueueSize)
	cfg.MaxConcurrentFetch = envInt("MAX_CONCURRENT_FETCH", cfg.MaxConcurrentFetch)
	cfg.RebuildInterval = envDuration("REBUILD_INTERVAL", cfg.RebuildInterval)
	cfg.BuildOnStart = envBool("BUILD_ON_START", cfg.BuildOnStart)

	cfg.JobTTL = envDuration("JOB_TTL", cfg.JobTTL)

	cfg.SearchRanking = strings.ToLower(envOr("SEARCH_RANKING", cfg.SearchRanking))
	cfg.SearchDefaultLimit = envInt("SEARCH_DEFAULT_LIMIT", cfg.SearchDefaultLimit)

	cfg.LogLevel = envOr("LOG_LEVEL", cfg.LogLevel)

	d := defaults()
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = d.WorkerCount
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = d.MaxQueueSize
	}
	if cfg.MaxConcurrentFetch <= 0 {
		cfg.MaxConcurrentFetch = d.MaxConcurrentFetch
	}
	if cfg.RebuildInterval < 0 {
		cfg.RebuildInterval = 0
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = d.JobTTL
	}
	if cfg.SearchDefaultLimit <= 0 {
		cfg.SearchDefaultLimit = d.SearchDefaultLimit
	}

	return cfg, nil
}

func loadDotEnv(files ...string) {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		// godotenv.Load never overrides variables that are already set, so
		// earlier files win over later ones.
		_ = godotenv.Load(f)
	}
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks the settings every command needs.
func (c Config) Validate() error {
	switch c.Source {
	case SourceNotion:
		if c.NotionToken == "" {
			return fmt.Errorf("NOTION_TOKEN is required")
		}
		if c.NotionPageID == "" {
			return fmt.Errorf("NOTION_PAGE_ID is required")
		}
	case SourceFile:
		if c.SourceFile == "" {
			return fmt.Errorf("SOURCE_FILE is required when SOURCE=file")
		}
	default:
		return fmt.Errorf("unknown SOURCE %q (want notion or file)", c.Source)
	}

	switch c.Sink {
	case SinkFS:
		if c.OutputDir == "" {
			return fmt.Errorf("OUTPUT_DIR is required when SINK=fs")
		}
	case SinkSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when SINK=sqlite")
		}
	case SinkPathstore:
		if c.PathstoreAPIKey == "" {
			return fmt.Errorf("PATHSTORE_API_KEY is required when SINK=pathstore")
		}
	case SinkMemory:
	default:
		return fmt.Errorf("unknown SINK %q (want fs, sqlite, pathstore or memory)", c.Sink)
	}

	switch c.SearchRanking {
	case "index", "keyword":
	default:
		return fmt.Errorf("unknown SEARCH_RANKING %q (want index or keyword)", c.SearchRanking)
	}

	if c.WatchSource && c.Source != SourceFile {
		return errors.New("WATCH_SOURCE requires SOURCE=file")
	}
	return nil
}

// ValidateServer additionally checks settings only the HTTP server needs.
func (c Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.APIKey == "" {
		return fmt.Errorf("API_KEY is required")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
