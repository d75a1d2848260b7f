package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"fintrack/internal/config"
	"fintrack/internal/log"
)

func TestSetupLoggerTo(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("LOG_FORMAT", "json")

	var buf bytes.Buffer
	logger := SetupLoggerTo(&buf, log.ComponentWorker)
	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"component":"worker"`) {
		t.Fatalf("output = %s", out)
	}
}

func TestLoadAndValidateConfig_CustomValidator(t *testing.T) {
	called := false
	cfg := LoadAndValidateConfig(log.Discard(), func(c *config.Config) error {
		called = true
		return nil
	})
	if !called || cfg == nil {
		t.Fatal("validator was not used")
	}
}

func TestInitSQLite(t *testing.T) {
	db, err := InitSQLite(log.Discard(), filepath.Join(t.TempDir(), "local.db"))
	if err != nil {
		t.Fatalf("InitSQLite() error = %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
}
