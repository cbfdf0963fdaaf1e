package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the service, loaded from the
// environment once at startup and injected everywhere else.
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name string
	Port int
	Env  string
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN builds the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Address returns host:port for the Redis client.
func (r RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// AuthConfig groups every credential-layer knob.
type AuthConfig struct {
	JWT          JWTConfig
	RefreshToken RefreshTokenConfig
	APIKey       APIKeyConfig
	Password     PasswordConfig
}

// JWTConfig configures access-token signing.
type JWTConfig struct {
	Secret         string
	AccessTokenTTL time.Duration
	Issuer         string
}

// RefreshTokenConfig configures the persisted refresh-token store.
type RefreshTokenConfig struct {
	TTL             time.Duration
	CleanupInterval time.Duration
}

// APIKeyConfig configures scoped API keys.
//
// ExpiryWindow is how long an issued key stays valid; RotationThreshold is
// how close to expiry a stored key may get before a bundle read rotates the
// whole bundle.
type APIKeyConfig struct {
	ExpiryWindow      time.Duration
	RotationThreshold time.Duration
	Scopes            []string
	BundleStore       string // "postgres" or "redis"
}

// PasswordConfig configures password verification.
type PasswordConfig struct {
	BcryptCost int
}

// Load reads the full configuration from the environment.
func Load() *Config {
	return &Config{
		App: AppConfig{
			Name: getEnv("APP_NAME", "senderpro-api"),
			Port: getEnvInt("APP_PORT", 8080),
			Env:  getEnv("APP_ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			Name:            getEnv("DB_NAME", "sender_pro"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			JWT: JWTConfig{
				Secret:         getEnv("SECRET_KEY", ""),
				AccessTokenTTL: time.Duration(getEnvInt("ACCESS_TOKEN_EXPIRE_MINUTES", 180)) * time.Minute,
				Issuer:         getEnv("JWT_ISSUER", "senderpro"),
			},
			RefreshToken: RefreshTokenConfig{
				TTL:             time.Duration(getEnvInt("REFRESH_TOKEN_EXPIRE_DAYS", 10)) * 24 * time.Hour,
				CleanupInterval: getEnvDuration("REFRESH_TOKEN_CLEANUP_INTERVAL", time.Hour),
			},
			APIKey: APIKeyConfig{
				ExpiryWindow:      time.Duration(getEnvInt("API_KEY_EXPIRY_HOURS", 3)) * time.Hour,
				RotationThreshold: time.Duration(getEnvInt("API_KEY_ROTATION_THRESHOLD_MINUTES", 30)) * time.Minute,
				Scopes: getEnvStringSlice("API_KEY_SCOPES", []string{
					"whatsapp_marketing", "device_management", "email_marketing", "sms_marketing",
				}),
				BundleStore: getEnv("API_KEY_BUNDLE_STORE", "postgres"),
			},
			Password: PasswordConfig{
				BcryptCost: getEnvInt("BCRYPT_COST", 12),
			},
		},
	}
}
