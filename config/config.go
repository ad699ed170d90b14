package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/joho/godotenv"
)

const EnvDevelopment = "development"

type Config struct {
	AppEnv   string
	HTTP     ServerConfig
	GRPC     ServerConfig
	MySQL    MySQLConfig
	Redis    RedisConfig
	Session  SessionConfig
	Tokens   TokensConfig
	Password PasswordConfig
	Mail     MailConfig
	Log      LogConfig
}

type ServerConfig struct {
	Host string
	Port string
}

func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, s.Port)
}

type MySQLConfig struct {
	DSN string
}

type RedisConfig struct {
	URL string
}

type SessionConfig struct {
	Name     string
	Secret   string
	TTL      time.Duration
	Prefix   string
	HTTPOnly bool
	Secure   bool
}

type TokensConfig struct {
	TTL time.Duration
}

type PasswordConfig struct {
	Policy PasswordPolicy
	Hash   PasswordHashConfig
}

type PasswordHashConfig struct {
	MemoryKB   uint32
	Iterations uint32
	Threads    uint8
}

type MailConfig struct {
	AppOrigin    string
	KafkaBrokers []string
	KafkaTopic   string
}

type LogConfig struct {
	Level  string
	Format string
}

type PasswordPolicy struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireNumber    bool
	RequireSpecial   bool
}

func (p PasswordPolicy) Validate(password string) error {
	if len(password) < p.MinLength {
		return fmt.Errorf("password must be at least %d characters long", p.MinLength)
	}

	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, ch := range password {
		switch {
		case unicode.IsUpper(ch):
			hasUpper = true
		case unicode.IsLower(ch):
			hasLower = true
		case unicode.IsDigit(ch):
			hasNumber = true
		case unicode.IsPunct(ch) || unicode.IsSymbol(ch):
			hasSpecial = true
		}
	}

	var missing []string
	if p.RequireUppercase && !hasUpper {
		missing = append(missing, "uppercase letter")
	}
	if p.RequireLowercase && !hasLower {
		missing = append(missing, "lowercase letter")
	}
	if p.RequireNumber && !hasNumber {
		missing = append(missing, "number")
	}
	if p.RequireSpecial && !hasSpecial {
		missing = append(missing, "special character")
	}

	if len(missing) > 0 {
		return fmt.Errorf("password must contain at least one: %s", strings.Join(missing, ", "))
	}

	return nil
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignores error if not found)
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return nil, errors.New("REDIS_URL environment variable is required")
	}

	sessionSecret := os.Getenv("SESSION_SECRET")
	if sessionSecret == "" {
		return nil, errors.New("SESSION_SECRET environment variable is required")
	}

	return &Config{
		AppEnv: getEnv("APP_ENV", EnvDevelopment),
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		GRPC: ServerConfig{
			Host: getEnv("GRPC_HOST", "0.0.0.0"),
			Port: getEnv("GRPC_PORT", "9090"),
		},
		MySQL: MySQLConfig{
			DSN: mysqlDSN,
		},
		Redis: RedisConfig{
			URL: redisURL,
		},
		Session: SessionConfig{
			Name:     getEnv("SESSION_NAME", "session"),
			Secret:   sessionSecret,
			TTL:      getDurationEnv("SESSION_TTL", 7*24*time.Hour),
			Prefix:   getEnv("SESSION_PREFIX", "sessions:"),
			HTTPOnly: getBoolEnv("SESSION_HTTP_ONLY", true),
			Secure:   getBoolEnv("SESSION_SECURE", false),
		},
		Tokens: TokensConfig{
			TTL: getDurationEnv("TOKEN_TTL", time.Hour),
		},
		Password: PasswordConfig{
			Policy: loadPasswordPolicy(),
			Hash: PasswordHashConfig{
				MemoryKB:   uint32(getIntEnv("PASSWORD_HASH_MEMORY_KB", 64*1024)),
				Iterations: uint32(getIntEnv("PASSWORD_HASH_ITERATIONS", 1)),
				Threads:    uint8(getIntEnv("PASSWORD_HASH_THREADS", 4)),
			},
		},
		Mail: MailConfig{
			AppOrigin:    getEnv("APP_ORIGIN", "http://localhost:3000"),
			KafkaBrokers: getListEnv("KAFKA_BROKERS"),
			KafkaTopic:   getEnv("KAFKA_MAIL_TOPIC", "account.mail"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}, nil
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n >= 0 {
			return n
		}
	}
	return defaultValue
}

func getListEnv(key string) []string {
	var values []string
	for _, value := range strings.Split(os.Getenv(key), ",") {
		if value = strings.TrimSpace(value); value != "" {
			values = append(values, value)
		}
	}
	return values
}

func loadPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:        getIntEnv("PASSWORD_MIN_LENGTH", 6),
		RequireUppercase: getBoolEnv("PASSWORD_REQUIRE_UPPERCASE", false),
		RequireLowercase: getBoolEnv("PASSWORD_REQUIRE_LOWERCASE", false),
		RequireNumber:    getBoolEnv("PASSWORD_REQUIRE_NUMBER", false),
		RequireSpecial:   getBoolEnv("PASSWORD_REQUIRE_SPECIAL", false),
	}
}
