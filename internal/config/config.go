package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	HTTPPort    string
	DatabaseURL string
	LogLevel    string

	JWTSecret string
	JWTTTL    time.Duration

	GeminiAPIKey string
	GeminiModel  string
	OpenAIAPIKey string
	OpenAIModel  string

	LeonardoAPIKey  string
	LeonardoBaseURL string

	MailgunDomain string
	MailgunAPIKey string
	MailFrom      string
	FrontendURL   string

	AllowedOrigins []string

	ProvisionAttempts int
	ProvisionBackoff  time.Duration
	ImagePolls        int
	ImagePollDelay    time.Duration

	AdminEmail string

	TraceExporter    string
	TraceEndpoint    string
	TraceSampleRatio float64
}

// LoadConfig reads .env when present, then the environment.
func LoadConfig(log logrus.FieldLogger) *Config {
	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found, relying on environment variables")
	}

	return &Config{
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", "astroulette.db"),
		LogLevel:    getEnv("LOG_LEVEL", "INFO"),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTTTL:    getEnvAsDuration("JWT_TTL", 7*24*time.Hour),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-1.5-flash-latest"),
		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4o"),

		LeonardoAPIKey:  getEnv("LEONARDO_API_KEY", ""),
		LeonardoBaseURL: getEnv("LEONARDO_BASE_URL", "https://cloud.leonardo.ai/api/rest/v1"),

		MailgunDomain: getEnv("MAILGUN_DOMAIN", ""),
		MailgunAPIKey: getEnv("MAILGUN_API_KEY", ""),
		MailFrom:      getEnv("MAIL_FROM", "MarsRoulette <login@marsroulette.com>"),
		FrontendURL:   getEnv("FRONTEND_URL", "https://marsroulette.com"),

		AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS", []string{"http://localhost:5173"}),

		ProvisionAttempts: getEnvAsInt("PROVISION_ATTEMPTS", 3),
		ProvisionBackoff:  getEnvAsDuration("PROVISION_BACKOFF", time.Second),
		ImagePolls:        getEnvAsInt("IMAGE_POLLS", 10),
		ImagePollDelay:    getEnvAsDuration("IMAGE_POLL_DELAY", time.Second),

		AdminEmail: getEnv("ADMIN_EMAIL", "admin@admin.com"),

		TraceExporter:    getEnv("TRACE_EXPORTER", "none"),
		TraceEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		TraceSampleRatio: getEnvAsFloat("TRACE_SAMPLE_RATIO", 1),
	}
}

// Validate reports every required setting that is missing.
func (c *Config) Validate() error {
	var errs []error
	for _, req := range []struct{ key, value string }{
		{"JWT_SECRET", c.JWTSecret},
		{"GEMINI_API_KEY", c.GeminiAPIKey},
		{"OPENAI_API_KEY", c.OpenAIAPIKey},
		{"LEONARDO_API_KEY", c.LeonardoAPIKey},
	} {
		if req.value == "" {
			errs = append(errs, errors.New(req.key+" environment variable is required"))
		}
	}
	if c.ProvisionAttempts < 1 {
		errs = append(errs, errors.New("PROVISION_ATTEMPTS must be at least 1"))
	}
	return errors.Join(errs...)
}

// MailEnabled reports whether magic links can be mailed.
func (c *Config) MailEnabled() bool {
	return c.MailgunDomain != "" && c.MailgunAPIKey != ""
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
