package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for our application
type Config struct {
	Port                      string
	Origin                    string
	Environment               string
	JWTSecret                 string
	JWTRefreshSecret          string
	Database                  DatabaseConfig
	Kafka                     KafkaConfig
	Consultation              ConsultationConfig
	JWTExpirationMinutes      int
	JWTRefreshExpirationHours int
	ReminderCronSpec          string
}

// DatabaseConfig holds database connection details
type DatabaseConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Name     string
	DSN      string
}

// KafkaConfig holds the appointment event broker settings.
// An empty Broker disables event publishing.
type KafkaConfig struct {
	Broker string
	Topic  string
}

// ConsultationConfig holds tuning knobs for live consultation sessions.
type ConsultationConfig struct {
	// GracePeriod is how long a session stays active after the sole peer
	// drops before it is declared ended.
	GracePeriod time.Duration
	// TickInterval is the elapsed-time counter granularity.
	TickInterval time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load database configuration
	dbConfig := DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnv("DB_PORT", "3306"),
		Username: getEnv("DB_USERNAME", "root"),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", "telehealth"),
	}

	// Build DSN (Data Source Name) for MySQL connection
	dbConfig.DSN = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		dbConfig.Username, dbConfig.Password, dbConfig.Host, dbConfig.Port, dbConfig.Name)

	kafkaConfig := KafkaConfig{
		Broker: getEnv("KAFKA_BROKER", ""),
		Topic:  getEnv("KAFKA_TOPIC", "appointment-events"),
	}

	jwtExpMinutes, err := strconv.Atoi(getEnv("JWT_EXPIRATION_MINUTES", "15"))
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_EXPIRATION_MINUTES: %w", err)
	}

	jwtRefreshExpHours, err := strconv.Atoi(getEnv("JWT_REFRESH_EXPIRATION_HOURS", "168")) // 7 days
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_REFRESH_EXPIRATION_HOURS: %w", err)
	}

	gracePeriodSeconds, err := strconv.Atoi(getEnv("CONSULTATION_GRACE_PERIOD_SECONDS", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid CONSULTATION_GRACE_PERIOD_SECONDS: %w", err)
	}

	// Return complete configuration
	return &Config{
		Port:             getEnv("PORT", "3001"),
		Origin:           getEnv("ORIGIN", "http://localhost:4200"),
		Environment:      getEnv("NODE_ENV", "development"),
		JWTSecret:        getEnv("JWT_SECRET", "default_jwt_secret"),
		JWTRefreshSecret: getEnv("JWT_REFRESH_SECRET", "default_refresh_secret"),
		Database:         dbConfig,
		Kafka:            kafkaConfig,
		Consultation: ConsultationConfig{
			GracePeriod:  time.Duration(gracePeriodSeconds) * time.Second,
			TickInterval: time.Second,
		},
		JWTExpirationMinutes:      jwtExpMinutes,
		JWTRefreshExpirationHours: jwtRefreshExpHours,
		ReminderCronSpec:          getEnv("REMINDER_CRON_SPEC", "0 8 * * *"),
	}, nil
}

// Helper function to get environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
