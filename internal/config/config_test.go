package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "JWT_SECRET", "test-secret")
	unsetEnvWithCleanup(t, "SERVER_PORT")
	unsetEnvWithCleanup(t, "PORT")
	unsetEnvWithCleanup(t, "JWT_EXPIRES_IN_DAYS")
	unsetEnvWithCleanup(t, "REFRESH_TOKEN_EXPIRY_DAYS")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Fatalf("expected default server port 8080, got %q", cfg.ServerPort)
	}
	if cfg.JWTExpiresInDays != 1 {
		t.Fatalf("expected default access token expiry of 1 day, got %d", cfg.JWTExpiresInDays)
	}
	if cfg.RefreshExpiryDays != 30 {
		t.Fatalf("expected default refresh token expiry of 30 days, got %d", cfg.RefreshExpiryDays)
	}
	if cfg.DefaultCurrency != "NGN" {
		t.Fatalf("expected default currency NGN, got %q", cfg.DefaultCurrency)
	}
}

func TestLoadConfig_RequiresJWTSecret(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "JWT_SECRET")

	if _, err := LoadConfig(t.TempDir()); err == nil {
		t.Fatal("expected error when JWT_SECRET is missing")
	}
}

func TestLoadConfig_WebhookSecretAlias(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "JWT_SECRET", "test-secret")
	unsetEnvWithCleanup(t, "RAVEN_WEBHOOK_SECRET")
	setEnvWithCleanup(t, "WEBHOOK_SECRET", "alias-only-secret")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.RavenWebhookSecret != "alias-only-secret" {
		t.Fatalf("expected webhook secret from alias env var, got %q", cfg.RavenWebhookSecret)
	}
}

func TestLoadConfig_PortOverridesServerPort(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "JWT_SECRET", "test-secret")
	setEnvWithCleanup(t, "SERVER_PORT", "8080")
	setEnvWithCleanup(t, "PORT", "9000")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "9000" {
		t.Fatalf("expected PORT to take precedence, got %q", cfg.ServerPort)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}
