package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Apify     ApifyConfig
	DB        DBConfig
	Redis     RedisConfig
	Server    ServerConfig
	Scheduler SchedulerConfig
	Liveness  LivenessConfig
	ProxyURL  string
	LogPath   string
	Sources   map[string]*SourceConfig
}

type ApifyConfig struct {
	Token             string
	BaseURL           string
	PollInterval      time.Duration
	PollTimeout       time.Duration
	MaxItems          int
	RequestsPerSecond float64
}

type DBConfig struct {
	Driver string // sqlite or postgres
	Path   string
	URL    string
}

type RedisConfig struct {
	URL string
}

type ServerConfig struct {
	Port        string
	CORSOrigins []string
}

// SchedulerConfig drives the optional cron trigger. Queries and Sources
// form the same cartesian product an API caller would submit.
type SchedulerConfig struct {
	Cron       string
	Queries    []string
	Sources    []string
	Location   string
	MaxResults int
}

type LivenessConfig struct {
	Interval   time.Duration
	BatchSize  int
	StaleAfter time.Duration
}

// SourceConfig describes how a job board is harvested. Two-phase sources
// set DetailActor; single-phase sources leave it empty.
type SourceConfig struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	Adapter     string         `yaml:"adapter"`
	Actor       string         `yaml:"actor"`
	DetailActor string         `yaml:"detail_actor"`
	Country     string         `yaml:"country"`
	Proxy       ProxySettings  `yaml:"proxy"`
	Extra       map[string]any `yaml:"extra"`
}

type ProxySettings struct {
	UseApifyProxy bool     `yaml:"use_apify_proxy"`
	Groups        []string `yaml:"groups"`
}

const (
	DefaultApifyBaseURL = "https://api.apify.com/v2"
	DefaultPollInterval = 5 * time.Second
	DefaultPollTimeout  = 6 * time.Minute
	DefaultMaxItems     = 500

	DefaultLivenessInterval   = 30 * time.Minute
	DefaultLivenessBatch      = 20
	DefaultLivenessStaleAfter = 24 * time.Hour
)

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Apify: ApifyConfig{
			Token:             os.Getenv("APIFY_TOKEN"),
			BaseURL:           getEnv("APIFY_BASE_URL", DefaultApifyBaseURL),
			PollInterval:      getEnvDuration("APIFY_POLL_INTERVAL", DefaultPollInterval),
			PollTimeout:       getEnvDuration("APIFY_POLL_TIMEOUT", DefaultPollTimeout),
			MaxItems:          getEnvInt("APIFY_MAX_ITEMS", DefaultMaxItems),
			RequestsPerSecond: getEnvFloat("APIFY_REQUESTS_PER_SEC", 5),
		},
		DB: DBConfig{
			Driver: getEnv("DB_DRIVER", "sqlite"),
			Path:   getEnv("DB_PATH", "jobs.db"),
			URL:    os.Getenv("DATABASE_URL"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			CORSOrigins: getEnvList("CORS_ORIGINS"),
		},
		Scheduler: SchedulerConfig{
			Cron:       os.Getenv("SCRAPE_CRON"),
			Queries:    getEnvList("SCRAPE_QUERIES"),
			Sources:    getEnvList("SCRAPE_SOURCES"),
			Location:   os.Getenv("SCRAPE_LOCATION"),
			MaxResults: getEnvInt("SCRAPE_MAX_RESULTS", 50),
		},
		Liveness: LivenessConfig{
			Interval:   getEnvDuration("LIVENESS_INTERVAL", DefaultLivenessInterval),
			BatchSize:  getEnvInt("LIVENESS_BATCH", DefaultLivenessBatch),
			StaleAfter: getEnvDuration("LIVENESS_STALE_AFTER", DefaultLivenessStaleAfter),
		},
		ProxyURL: os.Getenv("HTTP_PROXY_URL"),
		LogPath:  getEnv("LOG_PATH", "ingest.log"),
		Sources:  DefaultSources(),
	}

	if err := cfg.loadSourceConfigs(getEnv("SOURCES_DIR", "config/sources")); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultSources returns the built-in source definitions. YAML files in the
// sources directory override them by ID.
func DefaultSources() map[string]*SourceConfig {
	return map[string]*SourceConfig{
		"indeed": {
			ID:      "indeed",
			Name:    "Indeed",
			Adapter: "indeed",
			Actor:   "misceres~indeed-scraper",
			Country: "US",
		},
		"linkedin": {
			ID:          "linkedin",
			Name:        "LinkedIn",
			Adapter:     "linkedin",
			Actor:       "apify~cheerio-scraper",
			DetailActor: "apify~cheerio-scraper",
			Proxy: ProxySettings{
				UseApifyProxy: true,
				Groups:        []string{"RESIDENTIAL"},
			},
		},
	}
}

func (c *Config) loadSourceConfigs(configDir string) error {
	entries, err := os.ReadDir(configDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(configDir, entry.Name()))
		if err != nil {
			return err
		}

		var src SourceConfig
		if err := yaml.Unmarshal(data, &src); err != nil {
			return err
		}
		if src.ID == "" {
			continue
		}
		if src.Adapter == "" {
			src.Adapter = src.ID
		}

		c.Sources[src.ID] = &src
	}

	return nil
}

// Actors lists every actor referenced by the configured sources.
func (c *Config) Actors() []string {
	seen := make(map[string]bool)
	var actors []string
	for _, src := range c.Sources {
		for _, a := range []string{src.Actor, src.DetailActor} {
			if a != "" && !seen[a] {
				seen[a] = true
				actors = append(actors, a)
			}
		}
	}
	return actors
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

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

// getEnvDuration only accepts positive durations; "0s" falls back to the
// default like an unparsable value does.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			return d
		}
	}
	return defaultVal
}

func getEnvList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
