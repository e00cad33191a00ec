package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"teachprep-server-go/logger"
)

// Config carries everything the server reads from the environment.
type Config struct {
	Host    string
	Port    int
	Debug   bool
	DebugAI bool

	// OpenAI-compatible completion endpoint
	AIAPIKey     string
	AIBaseURL    string
	AIModel      string
	AITimeout    time.Duration
	AIMaxRetries int

	// External exercise retrieval service
	SearchBaseURL string

	// Class profile persistence
	ProfilesPath string
	ClassDataDir string

	// Analyzer rule file (optional, compiled-in defaults apply when empty)
	AnalysisConfigPath string

	// Intent cache; Redis is used when RedisAddr is set
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration
}

// Load reads .env (when present) and assembles the config from environment
// variables, logging every fallback to a default.
func Load(log *logger.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file loaded", "error", err)
	}

	cfg := &Config{
		Host:               getEnv("HOST", "0.0.0.0", log),
		Port:               getEnvAsInt("PORT", 5000, log),
		Debug:              getEnvAsBool("DEBUG", true, log),
		DebugAI:            getEnvAsBool("DEBUG_AI", true, log),
		AIAPIKey:           strings.TrimSpace(os.Getenv("SILICONFLOW_API_KEY")),
		AIBaseURL:          getEnv("SILICONFLOW_BASE_URL", "https://api.siliconflow.cn/v1", log),
		AIModel:            getEnv("SILICONFLOW_MODEL", "deepseek-ai/DeepSeek-V3", log),
		AITimeout:          time.Duration(getEnvAsInt("SILICONFLOW_TIMEOUT_SECONDS", 120, log)) * time.Second,
		AIMaxRetries:       getEnvAsInt("SILICONFLOW_MAX_RETRIES", 2, log),
		SearchBaseURL:      getEnv("SEARCH_BASE_URL", "http://127.0.0.1:8001", log),
		ProfilesPath:       getEnv("PROFILES_PATH", "prompts/class_profiles.json", log),
		ClassDataDir:       getEnv("CLASS_DATA_DIR", "class_data", log),
		AnalysisConfigPath: strings.TrimSpace(os.Getenv("ANALYSIS_CONFIG_PATH")),
		RedisAddr:          strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            getEnvAsInt("REDIS_DB", 0, log),
		CacheTTL:           time.Duration(getEnvAsInt("INTENT_CACHE_TTL_SECONDS", 300, log)) * time.Second,
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.AIAPIKey == "" {
		return fmt.Errorf("SILICONFLOW_API_KEY 未设置")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("PORT 无效: %d", cfg.Port)
	}
	if cfg.AIBaseURL == "" {
		return fmt.Errorf("SILICONFLOW_BASE_URL 不能为空")
	}
	if cfg.AIMaxRetries < 0 {
		return fmt.Errorf("SILICONFLOW_MAX_RETRIES 不能为负数")
	}
	return nil
}

// LogMode maps the debug flag onto a logger mode string.
func (c *Config) LogMode() string {
	if c.Debug {
		return "development"
	}
	return "production"
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, fallback string, log *logger.Logger) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	log.Debug("env not set, using default", "key", key, "default", fallback)
	return fallback
}

func getEnvAsInt(key string, fallback int, log *logger.Logger) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		log.Warn("env is not an integer, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool, log *logger.Logger) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return fallback
	}
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		log.Warn("env is not a boolean, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
}
