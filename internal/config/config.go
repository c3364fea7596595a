/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"errors"
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the banking-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort           string `mapstructure:"SERVER_PORT"`
	DatabaseURL          string `mapstructure:"DATABASE_URL"`
	RedisURL             string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL          string `mapstructure:"RABBITMQ_URL"`
	JWTSecret            string `mapstructure:"JWT_SECRET"`
	JWTExpiresInDays     int    `mapstructure:"JWT_EXPIRES_IN_DAYS"`
	RefreshExpiryDays    int    `mapstructure:"REFRESH_TOKEN_EXPIRY_DAYS"`
	RavenAPIBaseURL      string `mapstructure:"RAVEN_API_BASE_URL"`
	RavenAPIKey          string `mapstructure:"RAVEN_API_KEY"`
	RavenWebhookSecret   string `mapstructure:"RAVEN_WEBHOOK_SECRET"`
	DefaultCurrency      string `mapstructure:"DEFAULT_CURRENCY"`
	LoginRateLimitPerMin int    `mapstructure:"LOGIN_RATE_LIMIT_PER_MINUTE"`
	CORSAllowedOrigins   string `mapstructure:"CORS_ALLOWED_ORIGINS"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("JWT_EXPIRES_IN_DAYS", 1)
	viper.SetDefault("REFRESH_TOKEN_EXPIRY_DAYS", 30)
	viper.SetDefault("DEFAULT_CURRENCY", "NGN")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "banking:rate_limit")
	viper.SetDefault("LOGIN_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "*")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("JWT_EXPIRES_IN_DAYS")
	_ = viper.BindEnv("REFRESH_TOKEN_EXPIRY_DAYS")
	_ = viper.BindEnv("RAVEN_API_BASE_URL")
	_ = viper.BindEnv("RAVEN_API_KEY")
	_ = viper.BindEnv("RAVEN_WEBHOOK_SECRET", "RAVEN_WEBHOOK_SECRET", "WEBHOOK_SECRET")
	_ = viper.BindEnv("DEFAULT_CURRENCY")
	_ = viper.BindEnv("LOGIN_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "banking:rate_limit"
	}
	if strings.TrimSpace(config.RavenWebhookSecret) == "" {
		config.RavenWebhookSecret = strings.TrimSpace(os.Getenv("WEBHOOK_SECRET"))
	}

	if config.JWTExpiresInDays <= 0 {
		config.JWTExpiresInDays = 1
	}
	if config.RefreshExpiryDays <= 0 {
		config.RefreshExpiryDays = 30
	}
	if config.LoginRateLimitPerMin <= 0 {
		config.LoginRateLimitPerMin = 10
	}
	if strings.TrimSpace(config.DefaultCurrency) == "" {
		config.DefaultCurrency = "NGN"
	}

	if strings.TrimSpace(config.JWTSecret) == "" {
		return config, errors.New("JWT_SECRET must be set")
	}

	return
}
