package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv        string
	HTTPAddr      string
	RedisAddr     string
	RedisPassword string

	WorkerConcurrency int
	TaskMaxRetries    int
	JobTTL            time.Duration

	BrowserEngine   string
	UseStealth      bool
	BrowserHeadless bool
	BrowserBin      string
	BrowserLang     string
	UserAgent       string
	NavTimeout      time.Duration
	SelectorsFile   string
	BaseURL         string

	SupabaseURL        string
	SupabaseServiceKey string
	SupabaseBucket     string
}

// DefaultUserAgent is a current desktop Chrome on Windows.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// Load reads the environment, after merging a .env file when one exists.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppEnv:        getenv("APP_ENV", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8081"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		WorkerConcurrency: getenvInt("WORKER_CONCURRENCY", 2),
		TaskMaxRetries:    getenvInt("TASK_MAX_RETRIES", 0),
		JobTTL:            getenvDuration("JOB_TTL", time.Hour),

		BrowserEngine:   strings.ToLower(getenv("BROWSER_ENGINE", "chromedp")),
		UseStealth:      getenvBool("USE_STEALTH_BROWSER", false),
		BrowserHeadless: getenvBool("BROWSER_HEADLESS", true),
		BrowserBin:      os.Getenv("BROWSER_BIN"),
		BrowserLang:     getenv("BROWSER_LANG", "ko-KR"),
		UserAgent:       getenv("USER_AGENT", DefaultUserAgent),
		NavTimeout:      getenvDuration("NAV_TIMEOUT", 45*time.Second),
		SelectorsFile:   os.Getenv("SELECTORS_FILE"),
		BaseURL:         strings.TrimRight(getenv("BASE_URL", "https://www.airbnb.co.kr"), "/"),

		SupabaseURL:        os.Getenv("SUPABASE_URL"),
		SupabaseServiceKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseBucket:     getenv("SUPABASE_STORAGE_BUCKET", "exports"),
	}
	if cfg.WorkerConcurrency < 1 {
		cfg.WorkerConcurrency = 1
	}
	return cfg
}

// UsesQueue reports whether crawl jobs go through the redis-backed queue.
func (c Config) UsesQueue() bool { return c.RedisAddr != "" }

// UsesStorage reports whether finished exports are uploaded.
func (c Config) UsesStorage() bool { return c.SupabaseURL != "" && c.SupabaseServiceKey != "" }
