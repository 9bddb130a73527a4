package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load returned error for missing file: %v", err)
	}
	if cfg.Listen != "127.0.0.1:8080" {
		t.Errorf("Listen = %q, want default", cfg.Listen)
	}
	if cfg.SyncIntervalMinutes != 15 {
		t.Errorf("SyncIntervalMinutes = %d, want 15", cfg.SyncIntervalMinutes)
	}
	if cfg.SMTP.Port != 587 {
		t.Errorf("SMTP.Port = %d, want 587", cfg.SMTP.Port)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "listen: \"0.0.0.0:9090\"\ngoogle:\n  client_id: from-file\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Listen != "0.0.0.0:9090" {
		t.Errorf("Listen = %q, want value from file", cfg.Listen)
	}
	if cfg.Google.ClientID != "from-file" {
		t.Errorf("Google.ClientID = %q, want from-file", cfg.Google.ClientID)
	}
	if cfg.DatabasePath != "church-connect.db" {
		t.Errorf("DatabasePath = %q, want default", cfg.DatabasePath)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("listen: \"file:1\"\nsync_interval_minutes: 5\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CHURCH_CONNECT_LISTEN", "env:2")
	t.Setenv("CHURCH_CONNECT_SYNC_INTERVAL_MIN", "30")
	t.Setenv("GOOGLE_CLIENT_SECRET", "shh")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Listen != "env:2" {
		t.Errorf("Listen = %q, env override lost", cfg.Listen)
	}
	if cfg.SyncIntervalMinutes != 30 {
		t.Errorf("SyncIntervalMinutes = %d, env override lost", cfg.SyncIntervalMinutes)
	}
	if cfg.Google.ClientSecret != "shh" {
		t.Errorf("Google.ClientSecret = %q, env override lost", cfg.Google.ClientSecret)
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("listen: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load accepted malformed YAML")
	}
}
