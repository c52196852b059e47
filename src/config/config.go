package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	Port    string
	DataDir string
	// CSVDir is always $DATA_DIR/csv, where the scraper writes its downloads.
	CSVDir             string
	DatabasePath       string
	LogLevel           string
	LogFormat          string
	MaxUploadSizeBytes int64
	AllowedOrigins     []string
	RateLimitRPS       float64
	RateLimitBurst     int

	// Remote automation service (mis-comprobantes jobs)
	AutomationBaseURL      string
	AutomationPollInterval time.Duration
	AutomationMaxPolls     int
	AutomationHTTPTimeout  time.Duration

	// External portal scraper
	ScraperCommand string
	ScraperArgs    []string
	ScraperWorkDir string

	ReportCacheTTL time.Duration

	NotifyProvider       string
	MailgunDomain        string
	MailgunPrivateAPIKey string
	SenderEmail          string
	SenderName           string
	NotifyEmail          string
}

var Cfg *AppConfig

func LoadConfig() *AppConfig {
	errEnv := godotenv.Load()
	if errEnv != nil {
		log.Println("Info: No .env file found or error loading .env file. Relying on OS environment variables and defaults. Error (if any):", errEnv)
	} else {
		log.Println(".env file loaded successfully.")
	}

	log.Println("Loading application configuration...")

	dataDir := getEnv("DATA_DIR", "./data")

	maxUploadSizeBytesStr := getEnv("MAX_UPLOAD_SIZE_BYTES", "10485760")
	maxUploadSizeBytes, err := strconv.ParseInt(maxUploadSizeBytesStr, 10, 64)
	if err != nil {
		log.Printf("WARNING: Invalid MAX_UPLOAD_SIZE_BYTES format '%s'. Using default 10MB. Error: %v", maxUploadSizeBytesStr, err)
		maxUploadSizeBytes = 10 * 1024 * 1024
	}

	rps, err := strconv.ParseFloat(getEnv("RATE_LIMIT_RPS", "10"), 64)
	if err != nil || rps <= 0 {
		log.Printf("WARNING: Invalid RATE_LIMIT_RPS. Using default 10. Error: %v", err)
		rps = 10
	}

	Cfg = &AppConfig{
		Port:               getEnv("PORT", "3001"),
		DataDir:            dataDir,
		CSVDir:             filepath.Join(dataDir, "csv"),
		DatabasePath:       getEnv("DATABASE_PATH", filepath.Join(dataDir, "euphoria.db")),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "console"),
		MaxUploadSizeBytes: maxUploadSizeBytes,
		AllowedOrigins:     splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:5173"), ","),
		RateLimitRPS:       rps,
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 30),

		AutomationBaseURL:      getEnv("AUTOMATION_BASE_URL", "https://app.afipsdk.com/api/v1"),
		AutomationPollInterval: getEnvAsDuration("AUTOMATION_POLL_INTERVAL", 5*time.Second),
		AutomationMaxPolls:     getEnvAsInt("AUTOMATION_MAX_POLLS", 60),
		AutomationHTTPTimeout:  getEnvAsDuration("AUTOMATION_HTTP_TIMEOUT", 30*time.Second),

		ScraperCommand: getEnv("SCRAPER_COMMAND", "node"),
		ScraperArgs:    splitList(getEnv("SCRAPER_ARGS", "src/scraper/arca-scraper.js"), " "),
		ScraperWorkDir: getEnv("SCRAPER_WORKDIR", "."),

		ReportCacheTTL: getEnvAsDuration("REPORT_CACHE_TTL", 15*time.Minute),

		NotifyProvider:       strings.ToLower(getEnv("NOTIFY_PROVIDER", "none")),
		MailgunDomain:        getEnv("MAILGUN_DOMAIN", ""),
		MailgunPrivateAPIKey: getEnv("MAILGUN_PRIVATE_API_KEY", ""),
		SenderEmail:          getEnv("SENDER_EMAIL", "noreply@example.com"),
		SenderName:           getEnv("SENDER_NAME", "Euphoria IVA"),
		NotifyEmail:          getEnv("NOTIFY_EMAIL", ""),
	}

	if Cfg.AutomationMaxPolls <= 0 {
		log.Printf("WARNING: AUTOMATION_MAX_POLLS must be positive, using default 60")
		Cfg.AutomationMaxPolls = 60
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, CSVDir=%s, Scraper=%s",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.CSVDir, Cfg.ScraperCommand)
	return Cfg
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Environment variable %s not set, using default: %s", key, fallback)
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}

func splitList(value, sep string) []string {
	var out []string
	for _, part := range strings.Split(value, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
