package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Pipedrive PipedriveConfig
	WhatsApp  WhatsAppConfig
	Log       LogConfig
	Metrics   MetricsConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port string
	Env  string
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	LogLevel        string
}

// PipedriveConfig holds the CRM connection settings plus the custom-field
// keys the brideside pipeline uses on persons and deals.
type PipedriveConfig struct {
	BaseURL            string
	APIToken           string
	OrgID              int64
	PipelineID         int64
	PersonSourceField  string
	EventTypeField     string
	EventDateField     string
	VenueField         string
	FullNameField      string
	DealSourceField    string
	DealSourceOptionID int
	Timeout            time.Duration
}

// WhatsAppConfig holds the Graph API settings for outbound confirmations.
type WhatsAppConfig struct {
	BaseURL       string
	PhoneNumberID string
	AccessToken   string
	TemplateName  string
	CountryCode   string
	Timeout       time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

// MetricsConfig holds metrics-related configuration
type MetricsConfig struct {
	Prefix string
}

// Load loads the application configuration from environment variables
func Load() (*Config, error) {
	// Load environment variables from .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Env:  getEnv("APP_ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Name:            getEnv("DB_NAME", "leadintake_db"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 1*time.Hour),
			LogLevel:        getEnv("DB_LOG_LEVEL", "info"),
		},
		Pipedrive: PipedriveConfig{
			BaseURL:            getEnv("PIPEDRIVE_BASE_URL", "https://api.pipedrive.com"),
			APIToken:           getEnv("PIPEDRIVE_API_TOKEN", ""),
			OrgID:              getEnvAsInt64("PIPEDRIVE_ORG_ID", 0),
			PipelineID:         getEnvAsInt64("PIPEDRIVE_PIPELINE_ID", 0),
			PersonSourceField:  getEnv("PIPEDRIVE_PERSON_SOURCE_FIELD", ""),
			EventTypeField:     getEnv("PIPEDRIVE_EVENT_TYPE_FIELD", ""),
			EventDateField:     getEnv("PIPEDRIVE_EVENT_DATE_FIELD", ""),
			VenueField:         getEnv("PIPEDRIVE_VENUE_FIELD", ""),
			FullNameField:      getEnv("PIPEDRIVE_FULL_NAME_FIELD", ""),
			DealSourceField:    getEnv("PIPEDRIVE_DEAL_SOURCE_FIELD", ""),
			DealSourceOptionID: getEnvAsInt("PIPEDRIVE_DEAL_SOURCE_OPTION_ID", 105),
			Timeout:            getEnvAsDuration("PIPEDRIVE_TIMEOUT", 10*time.Second),
		},
		WhatsApp: WhatsAppConfig{
			BaseURL:       getEnv("WHATSAPP_BASE_URL", "https://graph.facebook.com/v18.0"),
			PhoneNumberID: getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
			AccessToken:   getEnv("WHATSAPP_ACCESS_TOKEN", ""),
			TemplateName:  getEnv("WHATSAPP_TEMPLATE_NAME", "hello_world"),
			CountryCode:   getEnv("WHATSAPP_COUNTRY_CODE", "91"),
			Timeout:       getEnvAsDuration("WHATSAPP_TIMEOUT", 10*time.Second),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Metrics: MetricsConfig{
			Prefix: getEnv("METRICS_PREFIX", "leadintake"),
		},
	}, nil
}

// Helper functions to get environment variables with defaults
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
