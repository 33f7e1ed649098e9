package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ServerConfig holds all configuration for the server.
// Tags use mapstructure for Viper unmarshalling.
type ServerConfig struct {
	HTTPPort  string `mapstructure:"HTTP_PORT"`
	Env       string `mapstructure:"ENV"` // "production" enables Secure cookies
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`

	// Session handling
	SessionStore  string `mapstructure:"SESSION_STORE"` // "memory" or "redis"
	SessionTTLMin int    `mapstructure:"SESSION_TTL_MIN"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// CSRF protection
	CSRFTokenTTLMin      int  `mapstructure:"CSRF_TOKEN_TTL_MIN"`
	CSRFSweepIntervalMin int  `mapstructure:"CSRF_SWEEP_INTERVAL_MIN"`
	CSRFRequireSession   bool `mapstructure:"CSRF_REQUIRE_SESSION"`

	// User storage
	UserStore   string `mapstructure:"USER_STORE"` // "memory" or "mongo"
	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDBName string `mapstructure:"MONGO_DB_NAME"`

	// JWT configuration
	JWTSecretKey      string `mapstructure:"JWT_SECRET_KEY"`
	JWTIssuer         string `mapstructure:"JWT_ISSUER"`
	AccessTokenTTLMin int    `mapstructure:"ACCESS_TOKEN_TTL_MIN"`

	// Request shaping
	RateLimitPerSecond float64 `mapstructure:"RATE_LIMIT_PER_SECOND"`
	BodyLimit          string  `mapstructure:"BODY_LIMIT"`

	// File uploads
	UploadDir      string `mapstructure:"UPLOAD_DIR"`
	UploadMaxBytes int64  `mapstructure:"UPLOAD_MAX_BYTES"`

	// SEO metadata defaults injected into every rendered page
	SiteName        string `mapstructure:"SITE_NAME"`
	SiteDescription string `mapstructure:"SITE_DESCRIPTION"`
	SiteBaseURL     string `mapstructure:"SITE_BASE_URL"`
}

// IsProduction reports whether the server runs in production mode.
// It controls the Secure attribute on session and CSRF cookies.
func (c *ServerConfig) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// LoadConfig reads configuration from file, environment variables, and defaults.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("/etc/webstarter/")
	v.AddConfigPath("$HOME/.webstarter")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("SESSION_STORE", "memory")
	v.SetDefault("SESSION_TTL_MIN", 24*60)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CSRF_TOKEN_TTL_MIN", 60)
	v.SetDefault("CSRF_SWEEP_INTERVAL_MIN", 60)
	v.SetDefault("CSRF_REQUIRE_SESSION", false)
	v.SetDefault("USER_STORE", "memory")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017/webstarter_dev")
	v.SetDefault("MONGO_DB_NAME", "webstarter_dev")
	v.SetDefault("JWT_SECRET_KEY", "a_very_secret_jwt_key_change_me") // CHANGE IN PRODUCTION
	v.SetDefault("JWT_ISSUER", "webstarter")
	v.SetDefault("ACCESS_TOKEN_TTL_MIN", 60)
	v.SetDefault("RATE_LIMIT_PER_SECOND", 20.0)
	v.SetDefault("BODY_LIMIT", "2M")
	v.SetDefault("UPLOAD_DIR", "uploads")
	v.SetDefault("UPLOAD_MAX_BYTES", int64(5<<20))
	v.SetDefault("SITE_NAME", "Webstarter")
	v.SetDefault("SITE_DESCRIPTION", "A boilerplate web application.")
	v.SetDefault("SITE_BASE_URL", "http://localhost:8080")

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, we fall back to defaults and env vars.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &cfg, nil
}
