package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	SMTP      SMTPConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Auth      AuthConfig
	Storage   StorageConfig
	App       AppConfig
	Supabase  SupabaseConfig
	MQTT      MQTTConfig
}

type ServerConfig struct {
	Port        string
	Host        string
	Environment string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type JWTConfig struct {
	Secret             string
	ExpiryHours        int
	RefreshExpiryHours int
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

type RateLimitConfig struct {
	GeneralRPS   float64 // Requests per second for general endpoints
	GeneralBurst int     // Burst size for general endpoints
	AuthRPS      float64 // Login, signup and password reset endpoints
	AuthBurst    int
}

type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// AuthConfig controls account lifecycle rules.
type AuthConfig struct {
	// RegistrationStatus is "pending" (status 0, verification mail sent) or
	// "active" (status 1).
	RegistrationStatus   string
	ResetTokenTTL        time.Duration
	VerificationTokenTTL time.Duration
	AdminEmails          []string
}

// StorageConfig selects where uploaded avatars live.
type StorageConfig struct {
	Driver        string // "local" or "s3"
	LocalDir      string
	PublicBaseURL string
	S3Bucket      string
	S3Region      string
	S3Endpoint    string
	S3AccessKey   string
	S3SecretKey   string
}

type AppConfig struct {
	FrontendURL string
}

type SupabaseConfig struct {
	URL        string
	AnonKey    string
	ServiceKey string
}

type MQTTConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

func setDefaults() {
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("ENVIRONMENT", "development")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("JWT_EXPIRY_HOURS", 24)
	viper.SetDefault("JWT_REFRESH_EXPIRY_HOURS", 168)
	viper.SetDefault("SMTP_PORT", 587)
	viper.SetDefault("RATE_LIMIT_GENERAL_RPS", 20)
	viper.SetDefault("RATE_LIMIT_GENERAL_BURST", 40)
	viper.SetDefault("RATE_LIMIT_AUTH_RPS", 1)
	viper.SetDefault("RATE_LIMIT_AUTH_BURST", 5)
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	viper.SetDefault("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS")
	viper.SetDefault("CORS_ALLOWED_HEADERS", "Content-Type,Authorization,X-Request-ID")
	viper.SetDefault("CORS_MAX_AGE", 600)
	viper.SetDefault("AUTH_REGISTRATION_STATUS", "pending")
	viper.SetDefault("AUTH_RESET_TOKEN_TTL", "1h")
	viper.SetDefault("AUTH_VERIFICATION_TOKEN_TTL", "24h")
	viper.SetDefault("STORAGE_DRIVER", "local")
	viper.SetDefault("STORAGE_LOCAL_DIR", "./public/uploads/avatars")
	viper.SetDefault("STORAGE_PUBLIC_BASE_URL", "/uploads/avatars")
	viper.SetDefault("FRONTEND_URL", "http://localhost:3000")
	viper.SetDefault("MQTT_CLIENT_ID", "prediction-platform-api")
	viper.SetDefault("MQTT_TOPIC_PREFIX", "prediction/users")
}

func readEnvFile() error {
	viper.SetConfigFile(".env")
	viper.AddConfigPath(".")
	if homeDir, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(homeDir)
	}
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to read config: %w", err)
		}
		log.Printf("Warning: config file not found: %v. Falling back to environment variables only.", err)
	}
	return nil
}

func Load() (*Config, error) {
	setDefaults()
	if err := readEnvFile(); err != nil {
		return nil, err
	}

	config := &Config{
		Server: ServerConfig{
			Port:        viper.GetString("SERVER_PORT"),
			Host:        viper.GetString("SERVER_HOST"),
			Environment: viper.GetString("ENVIRONMENT"),
		},
		Database: DatabaseConfig{
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetString("DB_PORT"),
			User:     viper.GetString("DB_USER"),
			Password: viper.GetString("DB_PASSWORD"),
			DBName:   viper.GetString("DB_NAME"),
			SSLMode:  viper.GetString("DB_SSLMODE"),
		},
		JWT: JWTConfig{
			Secret:             viper.GetString("JWT_SECRET"),
			ExpiryHours:        viper.GetInt("JWT_EXPIRY_HOURS"),
			RefreshExpiryHours: viper.GetInt("JWT_REFRESH_EXPIRY_HOURS"),
		},
		SMTP: SMTPConfig{
			Host:     viper.GetString("SMTP_HOST"),
			Port:     viper.GetInt("SMTP_PORT"),
			User:     viper.GetString("SMTP_USER"),
			Password: viper.GetString("SMTP_PASSWORD"),
			From:     viper.GetString("SMTP_FROM"),
		},
		RateLimit: RateLimitConfig{
			GeneralRPS:   viper.GetFloat64("RATE_LIMIT_GENERAL_RPS"),
			GeneralBurst: viper.GetInt("RATE_LIMIT_GENERAL_BURST"),
			AuthRPS:      viper.GetFloat64("RATE_LIMIT_AUTH_RPS"),
			AuthBurst:    viper.GetInt("RATE_LIMIT_AUTH_BURST"),
		},
		CORS: CORSConfig{
			AllowedOrigins:   splitList(viper.GetString("CORS_ALLOWED_ORIGINS")),
			AllowedMethods:   splitList(viper.GetString("CORS_ALLOWED_METHODS")),
			AllowedHeaders:   splitList(viper.GetString("CORS_ALLOWED_HEADERS")),
			ExposedHeaders:   splitList(viper.GetString("CORS_EXPOSED_HEADERS")),
			AllowCredentials: viper.GetBool("CORS_ALLOW_CREDENTIALS"),
			MaxAge:           viper.GetInt("CORS_MAX_AGE"),
		},
		Auth: AuthConfig{
			RegistrationStatus:   strings.ToLower(viper.GetString("AUTH_REGISTRATION_STATUS")),
			ResetTokenTTL:        viper.GetDuration("AUTH_RESET_TOKEN_TTL"),
			VerificationTokenTTL: viper.GetDuration("AUTH_VERIFICATION_TOKEN_TTL"),
			AdminEmails:          splitList(strings.ToLower(viper.GetString("AUTH_ADMIN_EMAILS"))),
		},
		Storage: StorageConfig{
			Driver:        strings.ToLower(viper.GetString("STORAGE_DRIVER")),
			LocalDir:      viper.GetString("STORAGE_LOCAL_DIR"),
			PublicBaseURL: viper.GetString("STORAGE_PUBLIC_BASE_URL"),
			S3Bucket:      viper.GetString("STORAGE_S3_BUCKET"),
			S3Region:      viper.GetString("STORAGE_S3_REGION"),
			S3Endpoint:    viper.GetString("STORAGE_S3_ENDPOINT"),
			S3AccessKey:   viper.GetString("STORAGE_S3_ACCESS_KEY"),
			S3SecretKey:   viper.GetString("STORAGE_S3_SECRET_KEY"),
		},
		App: AppConfig{
			FrontendURL: strings.TrimRight(viper.GetString("FRONTEND_URL"), "/"),
		},
		Supabase: SupabaseConfig{
			URL:        strings.TrimRight(viper.GetString("SUPABASE_URL"), "/"),
			AnonKey:    viper.GetString("SUPABASE_ANON_KEY"),
			ServiceKey: viper.GetString("SUPABASE_SERVICE_KEY"),
		},
		MQTT: MQTTConfig{
			Broker:      viper.GetString("MQTT_BROKER"),
			ClientID:    viper.GetString("MQTT_CLIENT_ID"),
			Username:    viper.GetString("MQTT_USERNAME"),
			Password:    viper.GetString("MQTT_PASSWORD"),
			TopicPrefix: viper.GetString("MQTT_TOPIC_PREFIX"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate reports the first missing or inconsistent setting.
func (c *Config) Validate() error {
	switch {
	case c.JWT.Secret == "":
		return errors.New("JWT_SECRET is required")
	case c.Database.Host == "" || c.Database.DBName == "":
		return errors.New("DB_HOST and DB_NAME are required")
	case c.Auth.RegistrationStatus != "pending" && c.Auth.RegistrationStatus != "active":
		return fmt.Errorf("AUTH_REGISTRATION_STATUS must be pending or active, got %q", c.Auth.RegistrationStatus)
	case c.Storage.Driver != "local" && c.Storage.Driver != "s3":
		return fmt.Errorf("STORAGE_DRIVER must be local or s3, got %q", c.Storage.Driver)
	case c.Storage.Driver == "s3" && c.Storage.S3Bucket == "":
		return errors.New("STORAGE_S3_BUCKET is required for the s3 driver")
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// RegistrationActive reports whether new accounts skip email verification.
func (c *AuthConfig) RegistrationActive() bool {
	return c.RegistrationStatus == "active"
}

// IsAdminEmail reports whether email is listed in AUTH_ADMIN_EMAILS.
func (c *AuthConfig) IsAdminEmail(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, admin := range c.AdminEmails {
		if admin == email {
			return true
		}
	}
	return false
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
