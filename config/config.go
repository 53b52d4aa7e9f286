package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultZipCode = "90210"

type Config struct {
	Database  DatabaseConfig
	API       APIConfig
	Scheduler SchedulerConfig
	Scraper   ScraperConfig
	Refresh   RefreshConfig
	S3        S3Config
	OpsDBPath string
	LogPath   string
	LogLevel  string
	Location  *time.Location
	Searches  map[string]*SearchConfig

	searchDir string
}

type DatabaseConfig struct {
	Driver string // postgres or sqlite
	URL    string
	Path   string
}

type APIConfig struct {
	Addr       string
	CORSOrigin string
}

type SchedulerConfig struct {
	Interval time.Duration
	Cron     string
}

type ScraperConfig struct {
	DelayMS      int
	JitterMS     int
	Workers      int
	MaxRetries   int
	ProxiesFile  string
	BrowserDir   string
	FetchTimeout time.Duration
}

type RefreshConfig struct {
	Interval  time.Duration
	BatchSize int
}

type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	PublicURL string
}

// Enabled reports whether enough is set to talk to a bucket.
func (c S3Config) Enabled() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

// SearchConfig is one saved marketplace search, loaded from config/searches/*.yaml.
type SearchConfig struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Keyword     string `yaml:"keyword"`
	ZipCode     string `yaml:"zip_code"`
	MaxPages    int    `yaml:"max_pages"`
	Handler     string `yaml:"handler"`
	RateLimitMS int    `yaml:"rate_limit_ms"`
	BaseURL     string `yaml:"base_url"`
}

// StartURL builds the first results page for the search.
func (s *SearchConfig) StartURL() string {
	base := s.BaseURL
	if base == "" {
		base = "https://www.ebay.com/sch/i.html"
	}
	zip := s.ZipCode
	if zip == "" {
		zip = defaultZipCode
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_nkw=%s&_stpos=%s", base, sep, queryEscape(s.Keyword), zip)
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Database: DatabaseConfig{
			Driver: getEnv("DB_DRIVER", "postgres"),
			URL:    os.Getenv("DATABASE_URL"),
			Path:   getEnv("DB_PATH", "catalog.db"),
		},
		API: APIConfig{
			Addr:       getEnv("API_ADDR", ":5000"),
			CORSOrigin: getEnv("CORS_ORIGIN", "*"),
		},
		Scheduler: SchedulerConfig{
			Cron: os.Getenv("SCRAPE_CRON"),
		},
		Scraper: ScraperConfig{
			DelayMS:      getEnvInt("SCRAPE_DELAY_MS", 2000),
			JitterMS:     getEnvInt("SCRAPE_JITTER_MS", 3000),
			Workers:      getEnvInt("SCRAPE_WORKERS", 4),
			MaxRetries:   getEnvInt("SCRAPE_MAX_RETRIES", 3),
			ProxiesFile:  os.Getenv("PROXIES_FILE"),
			BrowserDir:   getEnv("BROWSER_DATA_DIR", ".browser-data"),
			FetchTimeout: getEnvDuration("SCRAPE_TIMEOUT", 30*time.Second),
		},
		Refresh: RefreshConfig{
			Interval:  getEnvDuration("REFRESH_INTERVAL", 6*time.Hour),
			BatchSize: getEnvInt("REFRESH_BATCH", 50),
		},
		S3: S3Config{
			Endpoint:  os.Getenv("S3_ENDPOINT"),
			Region:    getEnv("S3_REGION", "us-east-1"),
			Bucket:    os.Getenv("S3_BUCKET"),
			AccessKey: os.Getenv("S3_ACCESS_KEY"),
			SecretKey: os.Getenv("S3_SECRET_KEY"),
			PublicURL: os.Getenv("S3_PUBLIC_URL"),
		},
		OpsDBPath: getEnv("OPS_DB_PATH", "scraper.db"),
		LogPath:   getEnv("LOG_PATH", "daemon.log"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		Location:  time.UTC,
		Searches:  make(map[string]*SearchConfig),
		searchDir: getEnv("SEARCH_CONFIG_DIR", "config/searches"),
	}

	cfg.Scheduler.Interval = getEnvDuration("SCRAPE_INTERVAL", 0)

	if tz := os.Getenv("TIMEZONE"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", tz, err)
		}
		cfg.Location = loc
	}

	if err := cfg.loadSearchConfigs(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadSearchConfigs() error {
	searches, err := LoadSearches(c.searchDir)
	if err != nil {
		return err
	}
	c.Searches = searches
	return nil
}

// LoadSearches reads every *.yaml file in dir. A missing directory is not an error.
func LoadSearches(dir string) (map[string]*SearchConfig, error) {
	out := make(map[string]*SearchConfig)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, err
	}

	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}

		var search SearchConfig
		if err := yaml.Unmarshal(data, &search); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if search.ID == "" {
			search.ID = strings.TrimSuffix(entry.Name(), ext)
		}
		if search.Keyword == "" {
			return nil, fmt.Errorf("search %s: keyword is required", search.ID)
		}
		if search.MaxPages <= 0 {
			search.MaxPages = 1
		}
		if search.Handler == "" {
			search.Handler = "http"
		}

		out[search.ID] = &search
	}

	return out, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func queryEscape(s string) string {
	return url.QueryEscape(strings.TrimSpace(s))
}
