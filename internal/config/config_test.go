package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("READINGS_POSTGRES_DSN", "postgres://localhost:5432/veilink")
	t.Setenv("READINGS_JWT_SECRET", "secret")
	t.Setenv("READINGS_PAYMENTS_URL", "http://payments.local")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddress() != ":8080" {
		t.Errorf("unexpected address %s", cfg.HTTPAddress())
	}
	if cfg.Metering.TickInterval != 15*time.Second {
		t.Errorf("unexpected tick interval %s", cfg.Metering.TickInterval)
	}
	if cfg.Redis.TTL != 24*time.Hour {
		t.Errorf("unexpected redis ttl %s", cfg.Redis.TTL)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("READINGS_HTTP_PORT", "9090")
	t.Setenv("READINGS_TICK_INTERVAL", "30s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddress() != ":9090" {
		t.Errorf("unexpected address %s", cfg.HTTPAddress())
	}
	if cfg.Metering.TickInterval != 30*time.Second {
		t.Errorf("unexpected tick interval %s", cfg.Metering.TickInterval)
	}
}

func TestLoadRejectsUnevenTick(t *testing.T) {
	setRequired(t)
	t.Setenv("READINGS_TICK_INTERVAL", "13s")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for tick that does not divide a minute")
	}
}

func TestLoadRequiresSecrets(t *testing.T) {
	t.Setenv("READINGS_POSTGRES_DSN", "postgres://localhost:5432/veilink")

	if _, err := Load(); err == nil {
		t.Fatal("expected error without jwt secret")
	}
}
