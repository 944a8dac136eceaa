package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"punchsync/internal/config"
)

func TestLoadDefaultConfigExpandsPathsAndUsesEnv(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("PUNCHSYNC_DEVICES", "Gate|10.0.0.5:4370")
	t.Setenv("PUNCHSYNC_BRIDGE_TOKEN", "secret")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "punchsync")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "punchsync.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.Devices.List != "Gate|10.0.0.5:4370" {
		t.Fatalf("expected device list from env, got %q", cfg.Devices.List)
	}
	if cfg.Devices.BridgeToken != "secret" {
		t.Fatalf("expected bridge token from env, got %q", cfg.Devices.BridgeToken)
	}
	if cfg.Devices.MaxRetries != 3 || cfg.RetryDelay() != 2*time.Second || cfg.ConnectTimeout() != 10*time.Second {
		t.Fatalf("unexpected retry policy: %+v", cfg.Devices)
	}
	if !cfg.Schedule.AutoAggregate {
		t.Fatal("expected auto aggregate enabled by default")
	}
	if cfg.Location() != time.Local {
		t.Fatalf("expected Local attendance zone, got %v", cfg.Location())
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv("HOME", tempDir)
	configPath := filepath.Join(tempDir, "punchsync.toml")

	type payload struct {
		Devices struct {
			List       string `toml:"list"`
			MaxRetries int    `toml:"max_retries"`
		} `toml:"devices"`
		Attendance struct {
			Timezone string `toml:"timezone"`
		} `toml:"attendance"`
		Paths struct {
			DataDir string `toml:"data_dir"`
		} `toml:"paths"`
	}
	custom := payload{}
	custom.Devices.List = "Lobby|192.168.1.10"
	custom.Devices.MaxRetries = 5
	custom.Attendance.Timezone = "UTC"
	custom.Paths.DataDir = "~/attendance"

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected config at %q, got %q (exists=%v)", configPath, resolved, exists)
	}
	if cfg.Devices.MaxRetries != 5 {
		t.Fatalf("expected max retries 5, got %d", cfg.Devices.MaxRetries)
	}
	if cfg.Location() != time.UTC {
		t.Fatalf("unexpected location: %v", cfg.Location())
	}
	if cfg.Paths.DataDir != filepath.Join(tempDir, "attendance") {
		t.Fatalf("unexpected data dir: %q", cfg.Paths.DataDir)
	}
	// Unset sections keep defaults.
	if cfg.Devices.DefaultPort != 4370 {
		t.Fatalf("expected default port retained, got %d", cfg.Devices.DefaultPort)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"zero retries", "[devices]\nmax_retries = -1\n", "devices.max_retries"},
		{"bad driver", "[devices]\ndriver = \"usb\"\n", "devices.driver"},
		{"bad timezone", "[attendance]\ntimezone = \"Mars/Olympus\"\n", "attendance.timezone"},
		{"bad cron", "[schedule]\nsync = \"every now and then\"\n", "schedule.sync"},
		{"bad log format", "[logging]\nformat = \"xml\"\n", "logging.format"},
		{"relative bridge url", "[devices]\nbridge_url = \"gateway:8089\"\n", "devices.bridge_url"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			t.Setenv("HOME", dir)
			path := filepath.Join(dir, "punchsync.toml")
			if err := os.WriteFile(path, []byte(tc.body), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			_, _, _, err := config.Load(path)
			if err == nil {
				t.Fatalf("expected error containing %q", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	path := filepath.Join(dir, "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if !strings.Contains(cfg.Devices.List, "Front Door|") {
		t.Fatalf("unexpected sample device list: %q", cfg.Devices.List)
	}
}
