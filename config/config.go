package config

import (
	"fmt"
	"net/url"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	logger "github.com/sirupsen/logrus"
)

type Config struct {
	HTTPAddr string
	LogLevel string

	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPass     string
	DBName     string
	SQLitePath string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	RedisEnabled  bool

	MinioHost     string
	MinioPort     string
	MinioUsername string
	MinioPassword string
	BucketName    string
	MirrorEnabled bool

	RabbitMQURL      string
	RabbitMQPrefetch int
	RunMode          string
	RunRetryMax      int
	RunRetryDelays   []time.Duration

	SourceDir        string
	DownloadFolder   string
	DownloadWorkers  int
	DownloadRate     float64
	DownloadBurst    int
	HTTPTimeout      time.Duration
	AllowPrivate     bool
	AllowedHosts     []string
	MaxBytes         int64
	RequirePDFExt    bool
	ProgressInterval time.Duration

	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPass     string
	SMTPFrom     string
	SMTPTLS      bool
	SMTPStartTLS bool
	NotifyEmail  string
}

const (
	RunModeLocal = "local"
	RunModeQueue = "queue"
)

var AppConfig Config

// getEnv returns the environment value or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvBool(key string, defaultValue bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if value == "" {
		return defaultValue
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return defaultValue
	}
}

func getEnvInt64(key string, defaultValue int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvList(key string, defaultValue []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvDurationList(key string, defaultValue []time.Duration) []time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	parts := strings.Split(raw, ",")
	out := make([]time.Duration, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		parsed, err := time.ParseDuration(part)
		if err != nil {
			return defaultValue
		}
		out = append(out, parsed)
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// InitConfig loads an optional .env file and then reads the environment.
func InitConfig() {
	envFile := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		logger.WithError(err).Warnf("load %s failed", envFile)
	}
	AppConfig = Load()
	applyLogLevel(AppConfig.LogLevel)
}

// Load builds a Config from the current environment.
func Load() Config {
	rabbitHost := getEnv("RABBITMQ_HOST", "localhost")
	rabbitPort := getEnv("RABBITMQ_PORT", "5672")
	rabbitUser := getEnv("RABBITMQ_USER", "guest")
	rabbitPass := getEnv("RABBITMQ_PASSWORD", "guest")
	rabbitVhost := getEnv("RABBITMQ_VHOST", "/")
	rabbitURL := getEnv("RABBITMQ_URL", "")
	if rabbitURL == "" {
		rabbitURL = fmt.Sprintf(
			"amqp://%s:%s@%s:%s/%s",
			url.PathEscape(rabbitUser),
			url.PathEscape(rabbitPass),
			rabbitHost,
			rabbitPort,
			url.PathEscape(rabbitVhost),
		)
	}
	runMode := strings.ToLower(getEnv("RUN_MODE", RunModeLocal))
	if runMode != RunModeQueue {
		runMode = RunModeLocal
	}
	smtpPort := getEnv("SMTP_PORT", "")

	return Config{
		HTTPAddr:         getEnv("HTTP_ADDR", ":8000"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		DBDriver:         strings.ToLower(getEnv("DB_DRIVER", "mysql")),
		DBHost:           getEnv("DB_HOST", "localhost"),
		DBPort:           getEnv("DB_PORT", "3306"),
		DBUser:           getEnv("DB_USER", "root"),
		DBPass:           getEnv("DB_PASS", "root"),
		DBName:           getEnv("DB_NAME", "pdfvault"),
		SQLitePath:       getEnv("SQLITE_PATH", "pdfvault.db"),
		RedisHost:        getEnv("REDIS_HOST", "localhost"),
		RedisPort:        getEnv("REDIS_PORT", "6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          getEnvInt("REDIS_DB", 0),
		RedisEnabled:     getEnvBool("REDIS_ENABLED", true),
		MinioHost:        getEnv("MINIO_HOST", "localhost"),
		MinioPort:        getEnv("MINIO_PORT", "9000"),
		MinioUsername:    getEnv("MINIO_USERNAME", "minioadmin"),
		MinioPassword:    getEnv("MINIO_PASSWORD", "minioadmin"),
		BucketName:       getEnv("BUCKET_NAME", "pdf-files"),
		MirrorEnabled:    getEnvBool("MIRROR_ENABLED", false),
		RabbitMQURL:      rabbitURL,
		RabbitMQPrefetch: getEnvInt("RABBITMQ_PREFETCH", 1),
		RunMode:          runMode,
		RunRetryMax:      getEnvInt("RUN_RETRY_MAX", 3),
		RunRetryDelays:   getEnvDurationList("RUN_RETRY_DELAYS", []time.Duration{10 * time.Second, time.Minute, 5 * time.Minute}),
		SourceDir:        getEnv("SOURCE_DIR", "pdf-urls"),
		DownloadFolder:   getEnv("DOWNLOAD_FOLDER", "pdf-files"),
		DownloadWorkers:  getEnvInt("DOWNLOAD_WORKERS", runtime.NumCPU()),
		DownloadRate:     getEnvFloat("DOWNLOAD_RATE", 0),
		DownloadBurst:    getEnvInt("DOWNLOAD_BURST", 4),
		HTTPTimeout:      getEnvDuration("DOWNLOAD_HTTP_TIMEOUT", 10*time.Second),
		AllowPrivate:     getEnvBool("DOWNLOAD_ALLOW_PRIVATE", false),
		AllowedHosts:     getEnvList("DOWNLOAD_ALLOW_HOSTS", nil),
		MaxBytes:         getEnvInt64("DOWNLOAD_MAX_BYTES", 0),
		RequirePDFExt:    getEnvBool("DOWNLOAD_REQUIRE_PDF_EXT", true),
		ProgressInterval: getEnvDuration("PROGRESS_INTERVAL", time.Second),
		SMTPHost:         getEnv("SMTP_HOST", ""),
		SMTPPort:         smtpPort,
		SMTPUser:         getEnv("SMTP_USER", ""),
		SMTPPass:         getEnv("SMTP_PASS", ""),
		SMTPFrom:         getEnv("SMTP_FROM", ""),
		SMTPTLS:          getEnvBool("SMTP_TLS", smtpPort == "465"),
		SMTPStartTLS:     getEnvBool("SMTP_STARTTLS", false),
		NotifyEmail:      getEnv("NOTIFY_EMAIL", ""),
	}
}

func applyLogLevel(raw string) {
	level, err := logger.ParseLevel(raw)
	if err != nil {
		logger.Warnf("unknown LOG_LEVEL %q, using info", raw)
		level = logger.InfoLevel
	}
	logger.SetLevel(level)
}
