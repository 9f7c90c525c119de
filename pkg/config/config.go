package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel    string
	Server      ServerConfig
	Database    DatabaseConfig
	PageSpeed   PageSpeedConfig
	Measurement MeasurementConfig
	Report      ReportConfig
	Solution    SolutionConfig
	Redis       RedisConfig
	NATS        NATSConfig
	CloudWatch  CloudWatchConfig
	S3          S3Config
	Dynamo      DynamoConfig
	Security    SecurityConfig
}

type ServerConfig struct {
	Port            string
	// WorkerPort обслуживает health и status процесса worker
	WorkerPort      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type StoreDriver string

const (
	StoreDriverPostgres StoreDriver = "postgres"
	StoreDriverSQLite   StoreDriver = "sqlite"
	StoreDriverREST     StoreDriver = "rest"
)

type DatabaseConfig struct {
	Driver          StoreDriver
	Host            string
	Port            string
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	SQLitePath      string
	DataAPIURL      string
	DataAPIKey      string
	DataAPITimeout  time.Duration
}

type PageSpeedConfig struct {
	APIKey   string
	Timeout  time.Duration
	Endpoint string
}

type MeasurementConfig struct {
	Delay            time.Duration
	Watchdog         time.Duration
	ScheduleEnabled  bool
	ScheduleCron     string
	ScheduleTimezone string
}

type ReportConfig struct {
	Days  int
	Limit int
}

type SolutionProvider string

const (
	SolutionProviderNone      SolutionProvider = "none"
	SolutionProviderGemini    SolutionProvider = "gemini"
	SolutionProviderAnthropic SolutionProvider = "anthropic"
)

type SolutionConfig struct {
	Provider        SolutionProvider
	GeminiAPIKey    string
	GeminiModel     string
	GeminiEndpoint  string
	AnthropicAPIKey string
	AnthropicModel  string
	Timeout         time.Duration
	MaxOutputTokens int
}

type RedisConfig struct {
	Enabled      bool
	Host         string
	Port         string
	Password     string
	DB           int
	TTL          time.Duration
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// KeyPrefix разделяет несколько инсталляций в одной базе Redis
	KeyPrefix string
}

type NATSConfig struct {
	Enabled bool
	URL     string
}

type CloudWatchConfig struct {
	MetricsEnabled           bool
	LogsEnabled              bool
	Region                   string
	Endpoint                 string
	AccessKeyID              string
	SecretAccessKey          string
	MetricsNamespace         string
	MetricsDimensions        map[string]string
	MetricsBufferSize        int
	MetricsFlushInterval     time.Duration
	MetricsStorageResolution int32
	LogGroupName             string
	LogStreamName            string
	LogsBufferSize           int
	LogsFlushInterval        time.Duration
}

type S3Config struct {
	Enabled         bool
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	KeyPrefix       string
	URLMode         string
	PresignedTTL    time.Duration
	// Compress хранит отчеты в gzip
	Compress bool
}

type DynamoConfig struct {
	Enabled         bool
	TableRunHistory string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	StrongReads     bool
}

type SecurityConfig struct {
	AllowedOrigins []string
	AuthEnabled    bool
	AuthToken      string
	RateLimitRPS   float64
	RateLimitBurst int
}

func Load() (*Config, error) {
	// Загружаем .env файл (игнорируем ошибку если файла нет)
	_ = godotenv.Load()

	durations := map[string]string{
		"PAGESPEED_TIMEOUT":      "150s",
		"MEASUREMENT_DELAY":      "1s",
		"MEASUREMENT_WATCHDOG":   "180m",
		"SOLUTION_TIMEOUT":       "30s",
		"REDIS_TTL":              "5m",
		"S3_PRESIGNED_TTL":       "24h",
		"DATA_API_TIMEOUT":       "15s",
		"CLOUDWATCH_FLUSH":       "10s",
		"CLOUDWATCH_LOGS_FLUSH":  "5s",
		"SERVER_WRITE_TIMEOUT":   "30s",
		"SERVER_SHUTDOWN_PERIOD": "30s",
	}
	parsed := make(map[string]time.Duration, len(durations))
	for key, fallback := range durations {
		value, err := parseDuration(getEnv(key, fallback))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
		if value < 0 {
			return nil, fmt.Errorf("invalid %s: must not be negative", key)
		}
		parsed[key] = value
	}

	reportDays, err := getEnvInt("REPORT_DAYS", 10)
	if err != nil {
		return nil, err
	}
	reportLimit, err := getEnvInt("REPORT_LIMIT", 20)
	if err != nil {
		return nil, err
	}
	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	maxOutputTokens, err := getEnvInt("SOLUTION_MAX_OUTPUT_TOKENS", 2048)
	if err != nil {
		return nil, err
	}
	storageResolution, err := getEnvInt("CLOUDWATCH_STORAGE_RESOLUTION", 60)
	if err != nil {
		return nil, err
	}

	rateLimitRPS, err := strconv.ParseFloat(getEnv("RATE_LIMIT_RPS", "5"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
	}
	rateLimitBurst, err := getEnvInt("RATE_LIMIT_BURST", 10)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			WorkerPort:      getEnv("WORKER_PORT", "8081"),
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    parsed["SERVER_WRITE_TIMEOUT"],
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: parsed["SERVER_SHUTDOWN_PERIOD"],
		},
		Database: DatabaseConfig{
			Driver:          StoreDriver(strings.ToLower(getEnv("STORE_DRIVER", string(StoreDriverPostgres)))),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Database:        getEnv("DB_NAME", "pagespeed"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 10 * time.Minute,
			SQLitePath:      getEnv("SQLITE_PATH", "pagespeed.db"),
			DataAPIURL:      strings.TrimRight(getEnv("DATA_API_URL", ""), "/"),
			DataAPIKey:      getEnv("DATA_API_KEY", ""),
			DataAPITimeout:  parsed["DATA_API_TIMEOUT"],
		},
		PageSpeed: PageSpeedConfig{
			APIKey:   getEnv("PAGESPEED_API_KEY", ""),
			Timeout:  parsed["PAGESPEED_TIMEOUT"],
			Endpoint: getEnv("PAGESPEED_ENDPOINT", ""),
		},
		Measurement: MeasurementConfig{
			Delay:            parsed["MEASUREMENT_DELAY"],
			Watchdog:         parsed["MEASUREMENT_WATCHDOG"],
			ScheduleEnabled:  getEnvBool("SCHEDULE_ENABLED", true),
			ScheduleCron:     getEnv("SCHEDULE_CRON", "0 2 * * *"),
			ScheduleTimezone: getEnv("SCHEDULE_TIMEZONE", "Asia/Seoul"),
		},
		Report: ReportConfig{
			Days:  reportDays,
			Limit: reportLimit,
		},
		Solution: SolutionConfig{
			Provider:        SolutionProvider(strings.ToLower(getEnv("SOLUTION_PROVIDER", string(SolutionProviderGemini)))),
			GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
			GeminiModel:     getEnv("GEMINI_MODEL", "gemini-3-flash-preview"),
			GeminiEndpoint:  getEnv("GEMINI_ENDPOINT", "https://generativelanguage.googleapis.com/v1beta"),
			AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
			AnthropicModel:  getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-5"),
			Timeout:         parsed["SOLUTION_TIMEOUT"],
			MaxOutputTokens: maxOutputTokens,
		},
		Redis: RedisConfig{
			Enabled:      getEnvBool("REDIS_ENABLED", false),
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           redisDB,
			TTL:          parsed["REDIS_TTL"],
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			KeyPrefix:    getEnv("REDIS_KEY_PREFIX", "pagespeed:"),
		},
		NATS: NATSConfig{
			Enabled: getEnvBool("NATS_ENABLED", false),
			URL:     getEnv("NATS_URL", "nats://localhost:4222"),
		},
		CloudWatch: CloudWatchConfig{
			MetricsEnabled:           getEnvBool("CLOUDWATCH_METRICS_ENABLED", false),
			LogsEnabled:              getEnvBool("CLOUDWATCH_LOGS_ENABLED", false),
			Region:                   getEnv("CLOUDWATCH_REGION", "us-east-1"),
			Endpoint:                 getEnv("CLOUDWATCH_ENDPOINT", ""),
			AccessKeyID:              getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:          getEnv("AWS_SECRET_ACCESS_KEY", ""),
			MetricsNamespace:         getEnv("CLOUDWATCH_NAMESPACE", "PageSpeedMonitor/Measurements"),
			MetricsDimensions:        parseKeyValues(getEnv("CLOUDWATCH_DIMENSIONS", "")),
			MetricsBufferSize:        100,
			MetricsFlushInterval:     parsed["CLOUDWATCH_FLUSH"],
			MetricsStorageResolution: int32(storageResolution),
			LogGroupName:             getEnv("CLOUDWATCH_LOG_GROUP", "/pagespeed-monitor/app"),
			LogStreamName:            getEnv("CLOUDWATCH_LOG_STREAM", hostnameOr("pagespeed-monitor")),
			LogsBufferSize:           50,
			LogsFlushInterval:        parsed["CLOUDWATCH_LOGS_FLUSH"],
		},
		S3: S3Config{
			Enabled:         getEnvBool("S3_ENABLED", false),
			Bucket:          getEnv("S3_BUCKET", ""),
			Region:          getEnv("S3_REGION", "ru-central1"),
			Endpoint:        getEnv("S3_ENDPOINT", "https://storage.yandexcloud.net"),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			UsePathStyle:    getEnvBool("S3_USE_PATH_STYLE", true),
			KeyPrefix:       getEnv("S3_KEY_PREFIX", "lighthouse"),
			URLMode:         getEnv("S3_URL_MODE", "presigned"),
			PresignedTTL:    parsed["S3_PRESIGNED_TTL"],
			Compress:        getEnvBool("S3_COMPRESS", true),
		},
		Dynamo: DynamoConfig{
			Enabled:         getEnvBool("DYNAMODB_ENABLED", false),
			TableRunHistory: getEnv("DYNAMODB_TABLE_RUN_HISTORY", "pagespeed_run_history"),
			Region:          getEnv("DYNAMODB_REGION", "us-east-1"),
			Endpoint:        getEnv("DYNAMODB_ENDPOINT", ""),
			AccessKeyID:     getEnv("DYNAMODB_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("DYNAMODB_SECRET_ACCESS_KEY", ""),
			StrongReads:     getEnvBool("DYNAMODB_STRONG_READS", false),
		},
		Security: SecurityConfig{
			AllowedOrigins: splitCSV(getEnv("ALLOWED_ORIGINS", "http://localhost:8080,http://127.0.0.1:8080")),
			AuthEnabled:    getEnvBool("AUTH_ENABLED", false),
			AuthToken:      getEnv("AUTH_BEARER_TOKEN", ""),
			RateLimitRPS:   rateLimitRPS,
			RateLimitBurst: rateLimitBurst,
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case StoreDriverPostgres, StoreDriverSQLite:
	case StoreDriverREST:
		if c.Database.DataAPIURL == "" || c.Database.DataAPIKey == "" {
			return fmt.Errorf("DATA_API_URL and DATA_API_KEY are required when STORE_DRIVER=rest")
		}
	default:
		return fmt.Errorf("invalid STORE_DRIVER: %q", c.Database.Driver)
	}

	switch c.Solution.Provider {
	case SolutionProviderNone, SolutionProviderGemini, SolutionProviderAnthropic:
	default:
		return fmt.Errorf("invalid SOLUTION_PROVIDER: %q", c.Solution.Provider)
	}

	if c.Measurement.Watchdog <= 0 {
		return fmt.Errorf("invalid MEASUREMENT_WATCHDOG: must be positive")
	}
	if c.PageSpeed.Timeout <= 0 {
		return fmt.Errorf("invalid PAGESPEED_TIMEOUT: must be positive")
	}
	if _, err := time.LoadLocation(c.Measurement.ScheduleTimezone); err != nil {
		return fmt.Errorf("invalid SCHEDULE_TIMEZONE: %w", err)
	}
	if c.Report.Days <= 0 || c.Report.Limit <= 0 {
		return fmt.Errorf("REPORT_DAYS and REPORT_LIMIT must be positive")
	}
	if c.Report.Days > 365 {
		return fmt.Errorf("REPORT_DAYS must not exceed 365")
	}
	if c.Security.AuthEnabled && c.Security.AuthToken == "" {
		return fmt.Errorf("AUTH_BEARER_TOKEN is required when AUTH_ENABLED=true")
	}

	return nil
}

// DisplayLocation возвращает часовой пояс для отображения времени пользователю
func (c *Config) DisplayLocation() *time.Location {
	loc, err := time.LoadLocation(c.Measurement.ScheduleTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return parsed
}

func splitCSV(raw string) []string {
	items := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// parseKeyValues разбирает строку вида "Env=prod,Team=web"
func parseKeyValues(raw string) map[string]string {
	result := make(map[string]string)
	for _, item := range splitCSV(raw) {
		key, value, ok := strings.Cut(item, "=")
		if !ok || strings.TrimSpace(key) == "" {
			continue
		}
		result[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return result
}

func hostnameOr(fallback string) string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return fallback
	}
	return name
}

func parseDuration(s string) (time.Duration, error) {
	return time.ParseDuration(s)
}
