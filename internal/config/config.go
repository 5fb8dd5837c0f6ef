package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration required by the API process.
// Values come from env, optionally seeded from a .env file that never overrides real env.
// No business logic should depend on raw environment variables.
type Config struct {
	App    AppConfig
	DB     DBConfig
	Redis  RedisConfig
	Auth   AuthConfig
	Twilio TwilioConfig
	Bulk   BulkConfig
	Locks  LockConfig
}

type AppConfig struct {
	Env  string
	Port int

	// PublicBaseURL is where the provider reaches our webhooks and TwiML endpoints.
	PublicBaseURL string
	CORSOrigin    string
	LogLevel      string
}

// DBConfig is optional. An empty Host disables the Postgres journal.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

// RedisConfig is optional. An empty Host keeps destination locks in process.
type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	AdminEmail    string
	AdminPassword string
	AgentEmail    string
	AgentPassword string
}

type TwilioConfig struct {
	// Provider is "twilio" or "sandbox".
	Provider string

	AccountSID  string
	AuthToken   string
	APIKey      string
	APISecret   string
	TwiMLAppSID string

	// DefaultNumber is the caller id used when the operator does not pick one.
	DefaultNumber string
	// ConnectCallerID is presented to the customer on manual connect legs.
	ConnectCallerID string

	ValidateSignatures bool
	CallsPerSecond     float64
}

type BulkConfig struct {
	AdvanceDelay   time.Duration
	RetryDelay     time.Duration
	AttemptTimeout time.Duration
	DialTimeout    time.Duration
}

type LockConfig struct {
	TTL time.Duration
}

const (
	ProviderTwilio  = "twilio"
	ProviderSandbox = "sandbox"
)

// LoadEnvFile seeds the process environment from path if it exists.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

func Load() (Config, error) {
	if err := LoadEnvFile(".env"); err != nil {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	c := Config{}
	env := &envReader{}

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.Port = env.intValue("APP_PORT", 8000)
	c.App.PublicBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL")), "/")
	c.App.CORSOrigin = strings.TrimSpace(os.Getenv("CORS_ORIGIN"))
	c.App.LogLevel = strings.TrimSpace(os.Getenv("LOG_LEVEL"))

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	c.DB.Port = env.intValue("DB_PORT", 5432)
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port = env.intValue("REDIS_PORT", 6379)

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	c.Auth.AccessTokenTTL = env.durationValue("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = env.durationValue("JWT_REFRESH_TTL")
	c.Auth.AdminEmail = strings.TrimSpace(os.Getenv("ADMIN_EMAIL"))
	c.Auth.AdminPassword = os.Getenv("ADMIN_PASSWORD")
	c.Auth.AgentEmail = strings.TrimSpace(os.Getenv("AGENT_EMAIL"))
	c.Auth.AgentPassword = os.Getenv("AGENT_PASSWORD")

	c.Twilio.Provider = strings.ToLower(strings.TrimSpace(os.Getenv("TELEPHONY_PROVIDER")))
	c.Twilio.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Twilio.APIKey = strings.TrimSpace(os.Getenv("TWILIO_API_KEY"))
	c.Twilio.APISecret = os.Getenv("TWILIO_API_SECRET")
	c.Twilio.TwiMLAppSID = strings.TrimSpace(os.Getenv("TWIML_APP_SID"))
	c.Twilio.DefaultNumber = strings.TrimSpace(os.Getenv("DEFAULT_TWILIO_NUMBER"))
	c.Twilio.ConnectCallerID = strings.TrimSpace(os.Getenv("TWILIO_NUMBER"))
	c.Twilio.ValidateSignatures = env.boolValue("TWILIO_VALIDATE_SIGNATURES", true)
	c.Twilio.CallsPerSecond = env.floatValue("TWILIO_CALLS_PER_SECOND")

	c.Bulk.AdvanceDelay = env.durationValue("BULK_ADVANCE_DELAY")
	c.Bulk.RetryDelay = env.durationValue("BULK_RETRY_DELAY")
	c.Bulk.AttemptTimeout = env.durationValue("BULK_ATTEMPT_TIMEOUT")
	c.Bulk.DialTimeout = env.durationValue("BULK_DIAL_TIMEOUT")

	c.Locks.TTL = env.durationValue("LOCK_TTL")

	if err := joinErrors(env.errs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the config and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.PublicBaseURL == "" {
		errs = append(errs, errors.New("PUBLIC_BASE_URL is required"))
	} else if u, err := url.Parse(c.App.PublicBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("PUBLIC_BASE_URL must be an absolute url, got %q", c.App.PublicBaseURL))
	}
	if c.App.CORSOrigin == "" {
		c.App.CORSOrigin = "http://localhost:3000"
	}

	if c.DBEnabled() {
		if c.DB.Port <= 0 || c.DB.Port > 65535 {
			errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
		}
		if c.DB.User == "" {
			errs = append(errs, errors.New("DB_USER is required when DB_HOST is set"))
		}
		if c.DB.Name == "" {
			errs = append(errs, errors.New("DB_NAME is required when DB_HOST is set"))
		}
		if c.DB.SSLMode == "" {
			if c.IsProduction() {
				errs = append(errs, errors.New("DB_SSLMODE is required in production"))
			} else {
				c.DB.SSLMode = "disable"
			}
		}
		if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
			errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
		}
	}

	if c.RedisEnabled() && (c.Redis.Port <= 0 || c.Redis.Port > 65535) {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 8 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}
	if c.Auth.AdminEmail == "" || c.Auth.AdminPassword == "" {
		errs = append(errs, errors.New("ADMIN_EMAIL and ADMIN_PASSWORD are required"))
	}
	if (c.Auth.AgentEmail == "") != (c.Auth.AgentPassword == "") {
		errs = append(errs, errors.New("AGENT_EMAIL and AGENT_PASSWORD must be set together"))
	}

	if c.Twilio.Provider == "" {
		c.Twilio.Provider = ProviderTwilio
	}
	switch c.Twilio.Provider {
	case ProviderTwilio:
		if c.Twilio.AccountSID == "" {
			errs = append(errs, errors.New("TWILIO_ACCOUNT_SID is required"))
		}
		if c.Twilio.AuthToken == "" {
			errs = append(errs, errors.New("TWILIO_AUTH_TOKEN is required"))
		}
	case ProviderSandbox:
		if c.IsProduction() {
			errs = append(errs, errors.New("TELEPHONY_PROVIDER=sandbox is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("TELEPHONY_PROVIDER must be one of twilio, sandbox, got %q", c.Twilio.Provider))
	}
	if c.IsProduction() {
		c.Twilio.ValidateSignatures = true
	}
	if c.Twilio.CallsPerSecond <= 0 {
		c.Twilio.CallsPerSecond = 1
	}
	if c.Twilio.ConnectCallerID == "" {
		c.Twilio.ConnectCallerID = c.Twilio.DefaultNumber
	}

	if c.Bulk.AdvanceDelay <= 0 {
		c.Bulk.AdvanceDelay = time.Second
	}
	if c.Bulk.RetryDelay <= 0 {
		c.Bulk.RetryDelay = 2 * time.Second
	}
	if c.Bulk.AttemptTimeout <= 0 {
		c.Bulk.AttemptTimeout = 3 * time.Minute
	}
	if c.Bulk.DialTimeout <= 0 {
		c.Bulk.DialTimeout = 15 * time.Second
	}
	if c.Locks.TTL <= 0 {
		c.Locks.TTL = 2 * time.Hour
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) DBEnabled() bool {
	return c.DB.Host != ""
}

func (c Config) RedisEnabled() bool {
	return c.Redis.Host != ""
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// envReader parses typed env values and collects every parse error.
type envReader struct {
	errs []error
}

func (r *envReader) intValue(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s must be an integer, got %q", key, v))
		return 0
	}
	return n
}

func (r *envReader) floatValue(key string) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s must be a number, got %q", key, v))
		return 0
	}
	return f
}

func (r *envReader) boolValue(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s must be a boolean, got %q", key, v))
		return def
	}
	return b
}

// durationValue returns 0 when unset; defaults are applied in Validate.
func (r *envReader) durationValue(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s must be a duration, got %q", key, v))
		return 0
	}
	return d
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
