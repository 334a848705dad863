package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	LogFile       string

	// WhatsApp Cloud API credentials
	WhatsAppPhoneNumberID string
	WhatsAppAccessToken   string
	WhatsAppAppSecret     string
	WhatsAppVerifyToken   string
	WhatsAppAPIVersion    string

	// Operator relay settings
	OperatorNumber      string
	DefaultReplyTimeout time.Duration
	HistoryLimit        int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       getEnv("LOG_FILE", ""),

		WhatsAppPhoneNumberID: getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
		WhatsAppAccessToken:   getEnv("WHATSAPP_ACCESS_TOKEN", ""),
		WhatsAppAppSecret:     getEnv("WHATSAPP_APP_SECRET", ""),
		WhatsAppVerifyToken:   getEnv("WHATSAPP_VERIFY_TOKEN", ""),
		WhatsAppAPIVersion:    getEnv("WHATSAPP_API_VERSION", "v23.0"),

		OperatorNumber:      getEnv("OPERATOR_PHONE_NUMBER", ""),
		DefaultReplyTimeout: getEnvAsDuration("DEFAULT_REPLY_TIMEOUT", time.Hour),
		HistoryLimit:        getEnvAsInt("HISTORY_LIMIT", 20),
	}
}

// Validate reports every missing required value in a single error so operators
// can fix the whole environment in one pass instead of chasing values one by one.
func (c *Config) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"WHATSAPP_PHONE_NUMBER_ID", c.WhatsAppPhoneNumberID},
		{"WHATSAPP_ACCESS_TOKEN", c.WhatsAppAccessToken},
		{"WHATSAPP_APP_SECRET", c.WhatsAppAppSecret},
		{"WHATSAPP_VERIFY_TOKEN", c.WhatsAppVerifyToken},
		{"OPERATOR_PHONE_NUMBER", c.OperatorNumber},
		{"PORT", c.Port},
		{"PUBLIC_BASE_URL", c.PublicBaseURL},
	}

	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
