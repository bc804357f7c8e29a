package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ClientConfig configures cmd/client, the terminal front end that drives the
// session manager.
type ClientConfig struct {
	Provider       string // "rest" or "supabase"
	APIURL         string
	Supabase       SupabaseConfig
	SessionStore   string // "file" or "redis"
	SessionFile    string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RequestTimeout time.Duration
	ResetRedirect  string
	Debug          bool
}

func LoadClient() (*ClientConfig, error) {
	viper.SetDefault("CLIENT_PROVIDER", "rest")
	viper.SetDefault("CLIENT_API_URL", "http://localhost:8080")
	viper.SetDefault("CLIENT_SESSION_STORE", "file")
	viper.SetDefault("CLIENT_SESSION_FILE", defaultSessionFile())
	viper.SetDefault("CLIENT_REDIS_ADDR", "localhost:6379")
	viper.SetDefault("CLIENT_REQUEST_TIMEOUT", "10s")
	viper.SetDefault("FRONTEND_URL", "http://localhost:3000")

	if err := readEnvFile(); err != nil {
		return nil, err
	}

	return &ClientConfig{
		Provider: strings.ToLower(viper.GetString("CLIENT_PROVIDER")),
		APIURL:   strings.TrimRight(viper.GetString("CLIENT_API_URL"), "/"),
		Supabase: SupabaseConfig{
			URL:     strings.TrimRight(viper.GetString("SUPABASE_URL"), "/"),
			AnonKey: viper.GetString("SUPABASE_ANON_KEY"),
		},
		SessionStore:   strings.ToLower(viper.GetString("CLIENT_SESSION_STORE")),
		SessionFile:    viper.GetString("CLIENT_SESSION_FILE"),
		RedisAddr:      viper.GetString("CLIENT_REDIS_ADDR"),
		RedisPassword:  viper.GetString("CLIENT_REDIS_PASSWORD"),
		RedisDB:        viper.GetInt("CLIENT_REDIS_DB"),
		RequestTimeout: viper.GetDuration("CLIENT_REQUEST_TIMEOUT"),
		ResetRedirect:  strings.TrimRight(viper.GetString("FRONTEND_URL"), "/") + "/reset-password",
		Debug:          viper.GetBool("CLIENT_DEBUG"),
	}, nil
}

func defaultSessionFile() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, ".predict-session.json")
}
