package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestPasswordPolicyValidate(t *testing.T) {
	policy := PasswordPolicy{
		MinLength:        8,
		RequireUppercase: true,
		RequireLowercase: true,
		RequireNumber:    true,
		RequireSpecial:   true,
	}

	if err := policy.Validate("short"); err == nil {
		t.Fatalf("expected error for short password")
	}
	if err := policy.Validate("lowercase1!"); err == nil {
		t.Fatalf("expected error for missing uppercase")
	}
	if err := policy.Validate("UPPERCASE1!"); err == nil {
		t.Fatalf("expected error for missing lowercase")
	}
	if err := policy.Validate("NoNumber!"); err == nil {
		t.Fatalf("expected error for missing number")
	}
	if err := policy.Validate("NoSpecial1"); err == nil {
		t.Fatalf("expected error for missing special")
	}
	if err := policy.Validate("GoodPass1!"); err != nil {
		t.Fatalf("expected valid password, got %v", err)
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STRING", "value")
	if got := getEnv("TEST_STRING", "default"); got != "value" {
		t.Fatalf("expected value, got %q", got)
	}
	if got := getEnv("MISSING_STRING", "default"); got != "default" {
		t.Fatalf("expected default, got %q", got)
	}

	t.Setenv("TEST_DURATION", "30")
	if got := getDurationEnv("TEST_DURATION", 5*time.Minute); got != 30*time.Minute {
		t.Fatalf("expected 30m, got %v", got)
	}
	t.Setenv("TEST_DURATION", "invalid")
	if got := getDurationEnv("TEST_DURATION", 5*time.Minute); got != 5*time.Minute {
		t.Fatalf("expected default duration, got %v", got)
	}

	t.Setenv("TEST_BOOL", "true")
	if got := getBoolEnv("TEST_BOOL", false); got != true {
		t.Fatalf("expected true, got %v", got)
	}
	t.Setenv("TEST_BOOL", "invalid")
	if got := getBoolEnv("TEST_BOOL", true); got != true {
		t.Fatalf("expected default bool, got %v", got)
	}

	t.Setenv("TEST_INT", "42")
	if got := getIntEnv("TEST_INT", 5); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	t.Setenv("TEST_INT", "invalid")
	if got := getIntEnv("TEST_INT", 5); got != 5 {
		t.Fatalf("expected default int, got %d", got)
	}

	t.Setenv("TEST_LIST", " a, ,b ")
	if got := getListEnv("TEST_LIST"); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("expected [a b], got %#v", got)
	}
}

func chdirTemp(t *testing.T) string {
	t.Helper()

	origDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd failed: %v", err)
	}
	tmp := t.TempDir()
	if err := os.Chdir(tmp); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(origDir)
	})
	return tmp
}

func setRequiredEnv(t *testing.T) {
	t.Helper()

	t.Setenv("MYSQL_DSN", "user:pass@tcp(localhost:3306)/account?parseTime=true")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("SESSION_SECRET", "secret")
}

func TestLoadRequiresSettings(t *testing.T) {
	chdirTemp(t)

	for _, key := range []string{"MYSQL_DSN", "REDIS_URL", "SESSION_SECRET"} {
		t.Run(key, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(key, "")
			if cfg, err := Load(); err == nil || cfg != nil {
				t.Fatalf("expected error when %s is missing", key)
			}
		})
	}
}

func TestLoadSuccess(t *testing.T) {
	chdirTemp(t)
	setRequiredEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("HTTP_HOST", "127.0.0.1")
	t.Setenv("HTTP_PORT", "8081")
	t.Setenv("GRPC_PORT", "9091")
	t.Setenv("SESSION_NAME", "sid")
	t.Setenv("SESSION_TTL", "120")
	t.Setenv("SESSION_PREFIX", "acct:")
	t.Setenv("SESSION_HTTP_ONLY", "false")
	t.Setenv("SESSION_SECURE", "true")
	t.Setenv("TOKEN_TTL", "30")
	t.Setenv("PASSWORD_MIN_LENGTH", "10")
	t.Setenv("PASSWORD_REQUIRE_NUMBER", "true")
	t.Setenv("PASSWORD_HASH_MEMORY_KB", "32768")
	t.Setenv("PASSWORD_HASH_ITERATIONS", "3")
	t.Setenv("PASSWORD_HASH_THREADS", "2")
	t.Setenv("APP_ORIGIN", "https://shop.example.com")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("KAFKA_MAIL_TOPIC", "mail")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.IsDevelopment() {
		t.Fatalf("expected production env")
	}
	if cfg.HTTP.Addr() != "127.0.0.1:8081" || cfg.GRPC.Port != "9091" {
		t.Fatalf("unexpected servers: %+v %+v", cfg.HTTP, cfg.GRPC)
	}
	if cfg.Redis.URL != "redis://localhost:6379/0" {
		t.Fatalf("unexpected redis url: %s", cfg.Redis.URL)
	}
	wantSession := SessionConfig{
		Name:     "sid",
		Secret:   "secret",
		TTL:      120 * time.Minute,
		Prefix:   "acct:",
		HTTPOnly: false,
		Secure:   true,
	}
	if cfg.Session != wantSession {
		t.Fatalf("unexpected session config: %+v", cfg.Session)
	}
	if cfg.Tokens.TTL != 30*time.Minute {
		t.Fatalf("unexpected token ttl: %v", cfg.Tokens.TTL)
	}
	if cfg.Password.Policy.MinLength != 10 || !cfg.Password.Policy.RequireNumber || cfg.Password.Policy.RequireSpecial {
		t.Fatalf("unexpected password policy: %+v", cfg.Password.Policy)
	}
	if cfg.Password.Hash != (PasswordHashConfig{MemoryKB: 32768, Iterations: 3, Threads: 2}) {
		t.Fatalf("unexpected hash params: %+v", cfg.Password.Hash)
	}
	if !reflect.DeepEqual(cfg.Mail.KafkaBrokers, []string{"kafka-1:9092", "kafka-2:9092"}) {
		t.Fatalf("unexpected kafka brokers: %#v", cfg.Mail.KafkaBrokers)
	}
	if cfg.Mail.AppOrigin != "https://shop.example.com" || cfg.Mail.KafkaTopic != "mail" {
		t.Fatalf("unexpected mail config: %+v", cfg.Mail)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Fatalf("unexpected log config: %+v", cfg.Log)
	}
}

func TestLoadUsesDefaults(t *testing.T) {
	chdirTemp(t)
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !cfg.IsDevelopment() {
		t.Fatalf("expected development env, got %q", cfg.AppEnv)
	}
	if cfg.HTTP.Port != "8080" || cfg.GRPC.Port != "9090" {
		t.Fatalf("unexpected default ports: %s %s", cfg.HTTP.Port, cfg.GRPC.Port)
	}
	if cfg.Session.TTL != 7*24*time.Hour || !cfg.Session.HTTPOnly || cfg.Session.Secure {
		t.Fatalf("unexpected session defaults: %+v", cfg.Session)
	}
	if cfg.Tokens.TTL != time.Hour {
		t.Fatalf("expected 1h token ttl, got %v", cfg.Tokens.TTL)
	}
	if err := cfg.Password.Policy.Validate("pw1234"); err != nil {
		t.Fatalf("expected default policy to accept 6 characters, got %v", err)
	}
	if err := cfg.Password.Policy.Validate("pw123"); err == nil {
		t.Fatalf("expected default policy to reject 5 characters")
	}
	if len(cfg.Mail.KafkaBrokers) != 0 {
		t.Fatalf("expected no kafka brokers, got %#v", cfg.Mail.KafkaBrokers)
	}
}

func TestLoadRespectsEnvFileLocation(t *testing.T) {
	tmp := chdirTemp(t)

	envPath := filepath.Join(tmp, ".env")
	content := "SESSION_SECRET=envfile-secret\nMYSQL_DSN=user:pass@tcp(localhost:3306)/account?parseTime=true\nREDIS_URL=redis://localhost:6379\nHTTP_PORT=9099\n"
	if err := os.WriteFile(envPath, []byte(content), 0600); err != nil {
		t.Fatalf("write .env failed: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Session.Secret != "envfile-secret" || cfg.HTTP.Port != "9099" {
		t.Fatalf("expected env file values, got %s %s", cfg.Session.Secret, cfg.HTTP.Port)
	}
}
