package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 應用配置
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	OpenRouter OpenRouterConfig `mapstructure:"openrouter"`
	Fetcher    FetcherConfig    `mapstructure:"fetcher"`
	Extract    ExtractConfig    `mapstructure:"extract"`
	Similarity SimilarityConfig `mapstructure:"similarity"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Queue      QueueConfig      `mapstructure:"queue"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Artifact   ArtifactConfig   `mapstructure:"artifact"`
	Sweep      SweepConfig      `mapstructure:"sweep"`
	LogLevel   string           `mapstructure:"log_level"`
}

// AppConfig 應用程式設定
type AppConfig struct {
	Env      string `mapstructure:"env"`
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
	Version  string `mapstructure:"version"`
	Name     string `mapstructure:"name"`
}

// ServerConfig 服務器配置
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// OpenRouterConfig OpenRouter 配置
type OpenRouterConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// FetcherConfig 網路抓取設定
type FetcherConfig struct {
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxBodyBytes     int64         `mapstructure:"max_body_bytes"`
	MaxRetries       int           `mapstructure:"max_retries"`
	RetryWaitMin     time.Duration `mapstructure:"retry_wait_min"`
	RetryWaitMax     time.Duration `mapstructure:"retry_wait_max"`
	MaxRedirects     int           `mapstructure:"max_redirects"`
	UserAgent        string        `mapstructure:"user_agent"`
	RespectRobots    bool          `mapstructure:"respect_robots"`
	BreakerThreshold int           `mapstructure:"breaker_threshold"`
	BreakerWindow    time.Duration `mapstructure:"breaker_window"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown"`
}

// ExtractConfig 擷取設定
type ExtractConfig struct {
	MaxInputChars int `mapstructure:"max_input_chars"` // 送入 LLM 的字元上限
	RepairTurns   int `mapstructure:"repair_turns"`    // JSON 修復回合上限
}

// SimilarityConfig 相似度政策設定
type SimilarityConfig struct {
	NgramSize           int     `mapstructure:"ngram_size"`
	MinTokenLength      int     `mapstructure:"min_token_length"`
	WarnContiguous      int     `mapstructure:"warn_contiguous"`
	ViolationContiguous int     `mapstructure:"violation_contiguous"`
	WarnJaccard         float64 `mapstructure:"warn_jaccard"`
	ViolationJaccard    float64 `mapstructure:"violation_jaccard"`
	BlockOnWarning      bool    `mapstructure:"block_on_warning"`
	RepairEnabled       bool    `mapstructure:"repair_enabled"`
}

// CacheConfig 緩存配置
type CacheConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	MaxSize         int           `mapstructure:"max_size"`
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	RedisAddr       string        `mapstructure:"redis_addr"` // 空字串時使用行程內緩存
}

// QueueConfig 任務隊列設定
type QueueConfig struct {
	Workers int `mapstructure:"workers"`
	MaxSize int `mapstructure:"max_size"`
}

// RateLimitConfig 速率限制配置
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// ArtifactConfig 工件儲存設定
type ArtifactConfig struct {
	Backend    string `mapstructure:"backend"` // memory | badger | s3
	BadgerPath string `mapstructure:"badger_path"`
	S3Bucket   string `mapstructure:"s3_bucket"`
	S3Prefix   string `mapstructure:"s3_prefix"`
}

// SweepConfig 審核過期清掃設定
type SweepConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Interval  time.Duration `mapstructure:"interval"`
	ReviewTTL time.Duration `mapstructure:"review_ttl"`
}

// LoadConfig 載入設定
func LoadConfig() (*Config, error) {
	// 加載 .env 文件（允許不存在）
	_ = godotenv.Load()

	// 設定預設值
	setDefaults()

	// 設定環境變數前綴
	viper.SetEnvPrefix("APP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 綁定環境變量
	viper.BindEnv("openrouter.api_key", "OPENROUTER_API_KEY")
	viper.BindEnv("openrouter.model", "OPENROUTER_MODEL")
	viper.BindEnv("openrouter.max_tokens", "MODEL_MAX_TOKENS")
	viper.BindEnv("cache.enabled", "CACHE_ENABLED")
	viper.BindEnv("cache.redis_addr", "REDIS_ADDR")
	viper.BindEnv("rate_limit.enabled", "RATE_LIMIT_ENABLED")
	viper.BindEnv("rate_limit.requests", "RATE_LIMIT_REQUESTS")
	viper.BindEnv("rate_limit.window", "RATE_LIMIT_WINDOW")
	viper.BindEnv("artifact.backend", "ARTIFACT_BACKEND")
	viper.BindEnv("artifact.s3_bucket", "ARTIFACT_S3_BUCKET")
	viper.BindEnv("log_level", "LOG_LEVEL")

	// 設定設定檔名稱和路徑
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")

	// 讀取設定檔
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// 添加調試日誌（logger 尚未初始化，改用 fmt.Println）
	fmt.Println("Loading configuration", "openrouter_api_key:", maskAPIKey(viper.GetString("openrouter.api_key")), "openrouter_model:", viper.GetString("openrouter.model"))

	// 解析設定
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 驗證必要設定
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// maskAPIKey 遮罩 API Key，只顯示前後各 4 個字符
func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// setDefaults 設定預設值
func setDefaults() {
	// 應用程式設定
	viper.SetDefault("app.env", "development")
	viper.SetDefault("app.debug", true)
	viper.SetDefault("app.log_level", "info")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.name", "recipe-ingest")

	// 伺服器設定
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")

	// OpenRouter 設定
	viper.SetDefault("openrouter.enabled", true)
	viper.SetDefault("openrouter.model", "qwen/qwen2.5-72b-instruct:free")
	viper.SetDefault("openrouter.max_tokens", 4096)
	viper.SetDefault("openrouter.temperature", 0.3)
	viper.SetDefault("openrouter.timeout", "60s")

	// 抓取設定
	viper.SetDefault("fetcher.timeout", "30s")
	viper.SetDefault("fetcher.max_body_bytes", 5*1024*1024) // 5MB
	viper.SetDefault("fetcher.max_retries", 3)
	viper.SetDefault("fetcher.retry_wait_min", "500ms")
	viper.SetDefault("fetcher.retry_wait_max", "8s")
	viper.SetDefault("fetcher.max_redirects", 5)
	viper.SetDefault("fetcher.user_agent", "recipe-ingest/1.0")
	viper.SetDefault("fetcher.respect_robots", false)
	viper.SetDefault("fetcher.breaker_threshold", 5)
	viper.SetDefault("fetcher.breaker_window", "1m")
	viper.SetDefault("fetcher.breaker_cooldown", "2m")

	// 擷取設定
	viper.SetDefault("extract.max_input_chars", 12000)
	viper.SetDefault("extract.repair_turns", 2)

	// 相似度設定
	viper.SetDefault("similarity.ngram_size", 5)
	viper.SetDefault("similarity.min_token_length", 2)
	viper.SetDefault("similarity.warn_contiguous", 10)
	viper.SetDefault("similarity.violation_contiguous", 20)
	viper.SetDefault("similarity.warn_jaccard", 0.3)
	viper.SetDefault("similarity.violation_jaccard", 0.5)
	viper.SetDefault("similarity.block_on_warning", false)
	viper.SetDefault("similarity.repair_enabled", true)

	// 快取設定
	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.max_size", 1000)
	viper.SetDefault("cache.ttl", "24h")
	viper.SetDefault("cache.cleanup_interval", "10m")
	viper.SetDefault("cache.redis_addr", "")

	// 隊列設定
	viper.SetDefault("queue.workers", 4)
	viper.SetDefault("queue.max_size", 64)

	// 限流設定
	viper.SetDefault("rate_limit.enabled", true)
	viper.SetDefault("rate_limit.requests", 100)
	viper.SetDefault("rate_limit.window", "1m")

	// 工件儲存設定
	viper.SetDefault("artifact.backend", "memory")
	viper.SetDefault("artifact.badger_path", "data/artifacts")
	viper.SetDefault("artifact.s3_prefix", "artifacts")

	// 清掃設定
	viper.SetDefault("sweep.enabled", true)
	viper.SetDefault("sweep.interval", "1m")
	viper.SetDefault("sweep.review_ttl", "24h")
}

// validateConfig 驗證設定
func validateConfig(config *Config) error {
	// 驗證伺服器設定
	if config.Server.Port == 0 {
		return fmt.Errorf("server port is required")
	}

	// 驗證抓取設定
	if config.Fetcher.MaxBodyBytes <= 0 {
		return fmt.Errorf("invalid fetcher max body bytes")
	}
	if config.Fetcher.MaxRetries < 0 {
		return fmt.Errorf("invalid fetcher max retries")
	}
	if config.Fetcher.BreakerThreshold <= 0 {
		return fmt.Errorf("invalid breaker threshold")
	}

	// 驗證相似度設定
	if config.Similarity.NgramSize <= 0 {
		return fmt.Errorf("invalid similarity ngram size")
	}
	if config.Similarity.ViolationJaccard < config.Similarity.WarnJaccard {
		return fmt.Errorf("violation jaccard threshold must be >= warn threshold")
	}
	if config.Similarity.ViolationContiguous < config.Similarity.WarnContiguous {
		return fmt.Errorf("violation contiguous threshold must be >= warn threshold")
	}

	// 驗證快取設定
	if config.Cache.Enabled {
		if config.Cache.MaxSize <= 0 {
			return fmt.Errorf("invalid cache max size")
		}
		if config.Cache.TTL <= 0 {
			return fmt.Errorf("invalid cache ttl")
		}
		if config.Cache.CleanupInterval <= 0 {
			return fmt.Errorf("invalid cache cleanup interval")
		}
	}

	// 驗證隊列設定
	if config.Queue.Workers <= 0 {
		return fmt.Errorf("invalid queue workers")
	}
	if config.Queue.MaxSize <= 0 {
		return fmt.Errorf("invalid queue max size")
	}

	// 驗證工件儲存設定
	switch config.Artifact.Backend {
	case "memory", "badger", "s3":
	default:
		return fmt.Errorf("unknown artifact backend: %s", config.Artifact.Backend)
	}
	if config.Artifact.Backend == "s3" && config.Artifact.S3Bucket == "" {
		return fmt.Errorf("artifact s3 bucket is required")
	}

	return nil
}
