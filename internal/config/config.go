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
	Database  DatabaseConfig
	Redis     RedisConfig
	Server    ServerConfig
	Auth      AuthConfig
	Captcha   CaptchaConfig
	Risk      RiskConfig
	Notify    NotifyConfig
	Retention RetentionConfig
	Bootstrap BootstrapConfig
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
	RunMigrations     bool
}

type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	SessionTTL time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration

	// Per-IP request budgets for the public endpoints.
	AuthRateLimit    int
	CaptchaRateLimit int
}

type AuthConfig struct {
	SessionSecret       string
	CookieDomain        string
	CookieSecure        bool
	CookieSameSite      string
	OTPValidity         time.Duration
	OTPLength           int
	OTPMaxAttempts      int // 0 disables the cap
	BcryptCost          int
	TimingDelayBaseMs   int
	TimingDelayRandomMs int
}

type CaptchaConfig struct {
	Enabled              bool
	AttemptsThreshold    int
	DefaultKind          string
	RecaptchaV2Enabled   bool
	RecaptchaV2SiteKey   string
	RecaptchaV2SecretKey string
	RecaptchaV3Enabled   bool
	RecaptchaV3SiteKey   string
	RecaptchaV3SecretKey string
	RecaptchaV3MinScore  float64
	RecaptchaVerifyURL   string
	RecaptchaTimeout     time.Duration
}

// RiskConfig holds the thresholds of the suspicious-activity rules.
type RiskConfig struct {
	FailedLoginThreshold  int
	FailedLoginWindow     time.Duration
	RapidAttemptThreshold int
	RapidAttemptWindow    time.Duration
}

type NotifyConfig struct {
	AWSRegion          string
	FromAddress        string
	EmailEnabled       bool
	SMSEnabled         bool
	SMSSenderID        string
	EmailAlertsEnabled bool
}

type RetentionConfig struct {
	AuditLogCap            int
	NotificationRetention  time.Duration
	ActivityRetention      time.Duration
	ResolvedAlertRetention time.Duration
	CleanupInterval        time.Duration
}

// BootstrapConfig describes accounts seeded at startup when absent.
type BootstrapConfig struct {
	AdminEmail       string
	AdminPassword    string
	AdminPhone       string
	DemoUserEmail    string
	DemoUserPassword string
	DemoUserPhone    string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	sessionSecret := getEnv("JWT_SECRET", "")
	if sessionSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "otpgate"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			RunMigrations:     getEnvAsBool("DB_RUN_MIGRATIONS", true),
		},
		Redis: RedisConfig{
			Addr:       getEnv("REDIS_ADDR", "localhost:6379"),
			Password:   getEnv("REDIS_PASSWORD", ""),
			DB:         getEnvAsInt("REDIS_DB", 0),
			SessionTTL: getEnvAsDuration("SESSION_TTL", 24*time.Hour),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			TrustedProxies: parseList(getEnv("TRUSTED_PROXIES", "")),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),

			AuthRateLimit:    getEnvAsInt("RATE_LIMIT_AUTH_PER_MINUTE", 20),
			CaptchaRateLimit: getEnvAsInt("RATE_LIMIT_CAPTCHA_PER_MINUTE", 30),
		},
		Auth: AuthConfig{
			SessionSecret:       sessionSecret,
			CookieDomain:        getEnv("COOKIE_DOMAIN", ""),
			CookieSecure:        getEnvAsBool("COOKIE_SECURE", env == "production"),
			CookieSameSite:      getEnv("COOKIE_SAMESITE", "lax"),
			OTPValidity:         getEnvAsDuration("OTP_VALIDITY", 5*time.Minute),
			OTPLength:           getEnvAsInt("OTP_LENGTH", 6),
			OTPMaxAttempts:      getEnvAsInt("OTP_MAX_ATTEMPTS", 0),
			BcryptCost:          getEnvAsInt("BCRYPT_COST", 12),
			TimingDelayBaseMs:   getEnvAsInt("TIMING_DELAY_BASE_MS", 500),
			TimingDelayRandomMs: getEnvAsInt("TIMING_DELAY_RANDOM_MS", 100),
		},
		Captcha: CaptchaConfig{
			Enabled:              getEnvAsBool("ENABLE_CAPTCHA", true),
			AttemptsThreshold:    getEnvAsInt("CAPTCHA_ATTEMPTS_THRESHOLD", 3),
			DefaultKind:          getEnv("CAPTCHA_TYPE", "text"),
			RecaptchaV2Enabled:   getEnvAsBool("ENABLE_RECAPTCHA_V2", false),
			RecaptchaV2SiteKey:   getEnv("RECAPTCHA_V2_SITE_KEY", ""),
			RecaptchaV2SecretKey: getEnv("RECAPTCHA_V2_SECRET_KEY", ""),
			RecaptchaV3Enabled:   getEnvAsBool("ENABLE_RECAPTCHA_V3", false),
			RecaptchaV3SiteKey:   getEnv("RECAPTCHA_V3_SITE_KEY", ""),
			RecaptchaV3SecretKey: getEnv("RECAPTCHA_V3_SECRET_KEY", ""),
			RecaptchaV3MinScore:  getEnvAsFloat("RECAPTCHA_V3_MIN_SCORE", 0.5),
			RecaptchaVerifyURL:   getEnv("RECAPTCHA_VERIFY_URL", "https://www.google.com/recaptcha/api/siteverify"),
			RecaptchaTimeout:     getEnvAsDuration("RECAPTCHA_TIMEOUT", 10*time.Second),
		},
		Risk: RiskConfig{
			FailedLoginThreshold:  getEnvAsInt("ALERT_THRESHOLD_FAILED_LOGINS", 5),
			FailedLoginWindow:     getEnvAsDuration("ALERT_THRESHOLD_TIME_WINDOW", 15*time.Minute),
			RapidAttemptThreshold: getEnvAsInt("ALERT_THRESHOLD_RAPID_ATTEMPTS", 10),
			RapidAttemptWindow:    getEnvAsDuration("ALERT_RAPID_ATTEMPT_WINDOW", 5*time.Minute),
		},
		Notify: NotifyConfig{
			AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
			FromAddress:        getEnv("EMAIL_FROM_ADDRESS", ""),
			EmailEnabled:       getEnvAsBool("ENABLE_EMAIL_DELIVERY", false),
			SMSEnabled:         getEnvAsBool("ENABLE_SMS_DELIVERY", false),
			SMSSenderID:        getEnv("SMS_SENDER_ID", ""),
			EmailAlertsEnabled: getEnvAsBool("ENABLE_EMAIL_ALERTS", false),
		},
		Retention: RetentionConfig{
			AuditLogCap:            getEnvAsInt("AUDIT_LOG_CAP", 10000),
			NotificationRetention:  getEnvAsDuration("NOTIFICATION_RETENTION", 30*24*time.Hour),
			ActivityRetention:      getEnvAsDuration("ACTIVITY_RETENTION", 90*24*time.Hour),
			ResolvedAlertRetention: getEnvAsDuration("RESOLVED_ALERT_RETENTION", 30*24*time.Hour),
			CleanupInterval:        getEnvAsDuration("CLEANUP_INTERVAL", 24*time.Hour),
		},
		Bootstrap: BootstrapConfig{
			AdminEmail:       getEnv("ADMIN_EMAIL", ""),
			AdminPassword:    getEnv("ADMIN_PASSWORD", ""),
			AdminPhone:       getEnv("ADMIN_PHONE", ""),
			DemoUserEmail:    getEnv("DEMO_USER_EMAIL", ""),
			DemoUserPassword: getEnv("DEMO_USER_PASSWORD", ""),
			DemoUserPhone:    getEnv("DEMO_USER_PHONE", ""),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateJWTSecret(sessionSecret, env); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Auth.OTPLength < 4 || c.Auth.OTPLength > 8 {
		return fmt.Errorf("OTP_LENGTH must be between 4 and 8 (got %d)", c.Auth.OTPLength)
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31 (got %d)", c.Auth.BcryptCost)
	}
	if c.Auth.OTPValidity <= 0 {
		return fmt.Errorf("OTP_VALIDITY must be positive")
	}
	if c.Captcha.AttemptsThreshold < 0 {
		return fmt.Errorf("CAPTCHA_ATTEMPTS_THRESHOLD cannot be negative")
	}
	if c.Captcha.DefaultKind != "text" && c.Captcha.DefaultKind != "math" {
		return fmt.Errorf("CAPTCHA_TYPE must be text or math (got %q)", c.Captcha.DefaultKind)
	}
	if c.Captcha.RecaptchaV3MinScore < 0 || c.Captcha.RecaptchaV3MinScore > 1 {
		return fmt.Errorf("RECAPTCHA_V3_MIN_SCORE must be within [0, 1]")
	}
	if c.Captcha.RecaptchaV2Enabled && c.Captcha.RecaptchaV2SecretKey == "" {
		return fmt.Errorf("RECAPTCHA_V2_SECRET_KEY is required when reCAPTCHA v2 is enabled")
	}
	if c.Captcha.RecaptchaV3Enabled && c.Captcha.RecaptchaV3SecretKey == "" {
		return fmt.Errorf("RECAPTCHA_V3_SECRET_KEY is required when reCAPTCHA v3 is enabled")
	}
	if c.Risk.FailedLoginThreshold <= 0 || c.Risk.RapidAttemptThreshold <= 0 {
		return fmt.Errorf("risk thresholds must be positive")
	}
	if (c.Notify.EmailEnabled || c.Notify.EmailAlertsEnabled) && c.Notify.FromAddress == "" {
		return fmt.Errorf("EMAIL_FROM_ADDRESS is required when email delivery is enabled")
	}
	if c.Server.AuthRateLimit <= 0 || c.Server.CaptchaRateLimit <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	if c.Retention.CleanupInterval <= 0 {
		return fmt.Errorf("CLEANUP_INTERVAL must be positive")
	}
	return nil
}

// validateJWTSecret enforces minimum security standards for the session signing secret
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

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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

func parseList(raw string) []string {
	if raw == "" {
		return []string{}
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

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		return parseList(getEnv("ALLOWED_ORIGINS", ""))
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
