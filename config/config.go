package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port      string
	JWTKey    string
	SaltRound int

	// Phoenix calibration authority
	PhoenixBaseURL         string
	PhoenixUsername        string
	PhoenixPassword        string
	PhoenixAuthURL         string
	PhoenixListURL         string
	PhoenixDetailURL       string // contains a {certNo} placeholder
	PhoenixApproveURL      string
	PhoenixTokenTTLMinutes int // assumed token lifetime, not declared by the server
	PhoenixTimeoutSeconds  int

	// Approval webhook notification
	WebhookEnabled      bool
	WebhookURL          string
	ReportViewerBaseURL string

	// Recommendation completion proxy
	RecommendationApiURL string
	RecommendationApiKey string
	RecommendationModel  string

	CoverageSyncCron string
}

// AppConfig is a global variable to access configuration
var AppConfig *Config

// LoadConfig initializes configuration from environment variables or defaults
func LoadConfig() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found. Using system environment variables.")
	}

	AppConfig = &Config{
		Port:      getEnv("PORT", "3000"),
		JWTKey:    getEnv("JWT_SECRET_KEY", "defaultSecret"),
		SaltRound: getEnvInt("SALT_ROUND", 10),

		PhoenixBaseURL:         getEnv("PHOENIX_BASE_URL", "https://phoenix.example.com"),
		PhoenixUsername:        getEnv("PHOENIX_USERNAME", ""),
		PhoenixPassword:        getEnv("PHOENIX_PASSWORD", ""),
		PhoenixAuthURL:         getEnv("PHOENIX_AUTH_URL", "/api/auth/login"),
		PhoenixListURL:         getEnv("PHOENIX_LIST_URL", "/api/certificates/search"),
		PhoenixDetailURL:       getEnv("PHOENIX_DETAIL_URL", "/api/certificates/{certNo}"),
		PhoenixApproveURL:      getEnv("PHOENIX_APPROVE_URL", "/api/calibrations/approve"),
		PhoenixTokenTTLMinutes: getEnvInt("PHOENIX_TOKEN_TTL_MINUTES", 55),
		PhoenixTimeoutSeconds:  getEnvInt("PHOENIX_TIMEOUT_SECONDS", 30),

		WebhookEnabled:      getEnvBool("WEBHOOK_ENABLED", false),
		WebhookURL:          getEnv("WEBHOOK_URL", ""),
		ReportViewerBaseURL: getEnv("REPORT_VIEWER_BASE_URL", "http://localhost:3000"),

		RecommendationApiURL: getEnv("RECOMMENDATION_API_URL", ""),
		RecommendationApiKey: getEnv("RECOMMENDATION_API_KEY", ""),
		RecommendationModel:  getEnv("RECOMMENDATION_MODEL", "gpt-4o-mini"),

		CoverageSyncCron: getEnv("COVERAGE_SYNC_CRON", "0 */30 * * * *"),
	}

	// Validate critical configuration
	if AppConfig.JWTKey == "defaultSecret" {
		log.Println("Warning: Using default JWT_SECRET_KEY. Update it in your environment.")
	}
	if AppConfig.PhoenixUsername == "" || AppConfig.PhoenixPassword == "" {
		log.Println("Warning: Phoenix credentials are not set. External approval calls will fail.")
	}
	if AppConfig.WebhookEnabled && AppConfig.WebhookURL == "" {
		log.Println("Warning: WEBHOOK_ENABLED is set but WEBHOOK_URL is empty. Notifications disabled.")
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt retrieves an environment variable as an integer or returns the default integer value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Error converting environment variable %s to int: %v", key, err)
		return defaultValue
	}
	return intValue
}

// getEnvBool retrieves an environment variable as a boolean or returns the default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Error converting environment variable %s to bool: %v", key, err)
		return defaultValue
	}
	return boolValue
}
