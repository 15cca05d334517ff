package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type envTestConfig struct {
	Port     int           `env:"ZMOOTH_TEST_PORT" envDefault:"123"`
	Interval time.Duration `env:"ZMOOTH_TEST_INTERVAL" envDefault:"5m"`
	Origins  []string      `env:"ZMOOTH_TEST_ORIGINS" envDefault:"http://localhost:5173" envSeparator:","`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Port != 123 {
		t.Fatalf("expected default port 123, got %d", cfg.Port)
	}
	if cfg.Interval != 5*time.Minute {
		t.Fatalf("expected default interval 5m, got %s", cfg.Interval)
	}
	if len(cfg.Origins) != 1 || cfg.Origins[0] != "http://localhost:5173" {
		t.Fatalf("unexpected default origins %v", cfg.Origins)
	}
}

func TestParseEnvSplitsLists(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("ZMOOTH_TEST_ORIGINS", "http://a,https://b")

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if len(cfg.Origins) != 2 || cfg.Origins[1] != "https://b" {
		t.Fatalf("unexpected origins %v", cfg.Origins)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("ZMOOTH_TEST_PORT", "not-an-int")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestParseEnvReportsEveryBadVariable(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("ZMOOTH_TEST_PORT", "many")
	t.Setenv("ZMOOTH_TEST_INTERVAL", "soon")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, name := range []string{"ZMOOTH_TEST_PORT", "ZMOOTH_TEST_INTERVAL"} {
		if !strings.Contains(err.Error(), name) {
			t.Fatalf("error %q does not name %s", err, name)
		}
	}
}

type envTestGateway struct {
	Port int `env:"PORT" envDefault:"8728"`
}

type envTestNested struct {
	Router envTestGateway `envPrefix:"ZMOOTH_TEST_ROUTER_"`
}

func TestParseEnvNamesPrefixedVariable(t *testing.T) {
	var cfg envTestNested
	t.Setenv("ZMOOTH_TEST_ROUTER_PORT", "api")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "ZMOOTH_TEST_ROUTER_PORT:") {
		t.Fatalf("error %q does not name ZMOOTH_TEST_ROUTER_PORT", err)
	}
}

func TestLoadReadsDotEnvWithoutOverriding(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("ZMOOTH_TEST_PORT=7000\nZMOOTH_TEST_INTERVAL=1m\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv(DotEnvPathVar, path)
	t.Setenv("ZMOOTH_TEST_INTERVAL", "2m")
	// godotenv sets variables directly; register cleanup for the one it sets.
	t.Setenv("ZMOOTH_TEST_PORT", "")
	os.Unsetenv("ZMOOTH_TEST_PORT")

	var cfg envTestConfig
	if err := Load(&cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 7000 {
		t.Fatalf("port = %d, want value from env file", cfg.Port)
	}
	if cfg.Interval != 2*time.Minute {
		t.Fatalf("interval = %s, want process value", cfg.Interval)
	}
}

func TestLoadDotEnvIgnoresMissingFile(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "nope.env")); err != nil {
		t.Fatalf("expected missing file to be ignored, got %v", err)
	}
}
