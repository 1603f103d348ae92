package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Security SecurityConfig
	Email    EmailConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string
}

type AuthConfig struct {
	JWTSecret         string
	AccessTokenExpiry time.Duration
}

// SecurityConfig holds every threshold of the brute-force mitigation and
// verification engine. Values are read once at startup and passed by
// reference; components never consult the environment themselves.
type SecurityConfig struct {
	// Account guard
	SoftLockThreshold int           // failed logins before step-up is required
	HardLockThreshold int           // failed logins before the account hard-locks
	HardLockDuration  time.Duration

	// Per-IP response delay throttle
	DelayBase       time.Duration
	DelayMax        time.Duration
	ThrottleIdleTTL time.Duration // inactivity window before an entry is dropped

	// Blanket per-IP request limit on the auth endpoints
	RateLimitWindow    time.Duration
	RateLimitThreshold int

	// Address blacklist
	BlacklistWindow    time.Duration
	BlacklistThreshold int
	BanDuration        time.Duration

	// Verification sessions
	CodeExpiry             time.Duration
	MaxVerifyAttempts      int
	VerifyLockoutDuration  time.Duration
	IssuanceWindow         time.Duration
	MaxIssuancesPerWindow  int

	// Attempt ledger retention
	AttemptRetention time.Duration
	CleanupInterval  time.Duration
}

type EmailConfig struct {
	AWSRegion   string
	FromAddress string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "rentd"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS"),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES"),
		},
		Auth: AuthConfig{
			JWTSecret:         jwtSecret,
			AccessTokenExpiry: getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
		},
		Security: SecurityConfig{
			SoftLockThreshold:     getEnvAsInt("SOFT_LOCK_THRESHOLD", 6),
			HardLockThreshold:     getEnvAsInt("HARD_LOCK_THRESHOLD", 10),
			HardLockDuration:      getEnvAsDuration("HARD_LOCK_DURATION", 30*time.Minute),
			DelayBase:             getEnvAsDuration("THROTTLE_DELAY_BASE", 500*time.Millisecond),
			DelayMax:              getEnvAsDuration("THROTTLE_DELAY_MAX", 10*time.Second),
			ThrottleIdleTTL:       getEnvAsDuration("THROTTLE_IDLE_TTL", 1*time.Hour),
			RateLimitWindow:       getEnvAsDuration("IP_RATE_LIMIT_WINDOW", 15*time.Minute),
			RateLimitThreshold:    getEnvAsInt("IP_RATE_LIMIT_THRESHOLD", 10),
			BlacklistWindow:       getEnvAsDuration("BLACKLIST_WINDOW", 30*time.Minute),
			BlacklistThreshold:    getEnvAsInt("BLACKLIST_THRESHOLD", 20),
			BanDuration:           getEnvAsDuration("BAN_DURATION", 60*time.Minute),
			CodeExpiry:            getEnvAsDuration("VERIFICATION_CODE_EXPIRY", 15*time.Minute),
			MaxVerifyAttempts:     getEnvAsInt("VERIFICATION_MAX_ATTEMPTS", 5),
			VerifyLockoutDuration: getEnvAsDuration("VERIFICATION_LOCKOUT_DURATION", 30*time.Minute),
			IssuanceWindow:        getEnvAsDuration("VERIFICATION_ISSUANCE_WINDOW", 1*time.Hour),
			MaxIssuancesPerWindow: getEnvAsInt("VERIFICATION_MAX_ISSUANCES", 5),
			AttemptRetention:      getEnvAsDuration("ATTEMPT_RETENTION", 24*time.Hour),
			CleanupInterval:       getEnvAsDuration("CLEANUP_INTERVAL", 1*time.Hour),
		},
		Email: EmailConfig{
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", "security@rentd.local"),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := cfg.Security.validate(); err != nil {
		return nil, err
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (sc *SecurityConfig) validate() error {
	if sc.SoftLockThreshold <= 0 || sc.HardLockThreshold <= 0 {
		return fmt.Errorf("lock thresholds must be positive")
	}
	if sc.SoftLockThreshold >= sc.HardLockThreshold {
		return fmt.Errorf("SOFT_LOCK_THRESHOLD (%d) must be below HARD_LOCK_THRESHOLD (%d)",
			sc.SoftLockThreshold, sc.HardLockThreshold)
	}
	if sc.DelayBase <= 0 || sc.DelayMax < sc.DelayBase {
		return fmt.Errorf("throttle delays must satisfy 0 < base <= max")
	}
	if sc.MaxVerifyAttempts <= 0 || sc.MaxIssuancesPerWindow <= 0 {
		return fmt.Errorf("verification attempt budgets must be positive")
	}
	return nil
}

// validateJWTSecret enforces minimum security standards for the JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
