package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def := DefaultConfig()
	if cfg.DBType != def.DBType || cfg.CacheBackend != CacheSQL || cfg.ProviderAttempts != 3 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadMissingEnvFileIsFine(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CACHE_BACKEND", "redis")
	t.Setenv("PROVIDER_TIMEOUT", "90")
	t.Setenv("PROVIDER_BACKOFF", "250ms")
	t.Setenv("ADMIN_USER_IDS", "7, 11")
	t.Setenv("ENABLE_SCHEDULER", "false")
	t.Setenv("NUMERIC_PARTIAL_CREDIT", "0.25")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CacheBackend != CacheRedis || cfg.ProviderTimeout != 90*time.Second || cfg.ProviderBackoff != 250*time.Millisecond {
		t.Errorf("cfg = %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.AdminUserIDs, []int64{7, 11}) || !cfg.IsAdmin(11) || cfg.IsAdmin(3) {
		t.Errorf("admins = %v", cfg.AdminUserIDs)
	}
	if cfg.EnableScheduler || cfg.NumericPartialCredit != 0.25 || cfg.LogLevel != slog.LevelDebug {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("HTTP_ADDR=:9999\nPLAN_DAYS=3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	// godotenv does not override variables that are already set
	t.Setenv("HTTP_ADDR", "")
	os.Unsetenv("HTTP_ADDR")
	t.Setenv("PLAN_DAYS", "")
	os.Unsetenv("PLAN_DAYS")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9999" || cfg.PlanDays != 3 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"PROVIDER_ATTEMPTS":      "three",
		"PROVIDER_TIMEOUT":       "soon",
		"ENABLE_SCHEDULER":       "maybe",
		"ADMIN_USER_IDS":         "1,x",
		"NUMERIC_PARTIAL_CREDIT": "2",
		"CACHE_BACKEND":          "disk",
		"DB_TYPE":                "oracle",
		"LOG_LEVEL":              "loud",
	}
	for name, value := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(name, value)
			if _, err := Load(""); err == nil {
				t.Errorf("%s=%s accepted", name, value)
			}
		})
	}
}

func TestLoadPostgresNeedsURL(t *testing.T) {
	t.Setenv("DB_TYPE", "postgres")
	t.Setenv("DATABASE_URL", "")
	_, err := Load("")
	if err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("err = %v", err)
	}
}
