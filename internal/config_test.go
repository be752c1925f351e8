package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/notesync/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestRemoteConfig_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RemoteConfig)
	}{
		{"relative api url", func(c *RemoteConfig) { c.APIURL = "/api" }},
		{"ftp auth url", func(c *RemoteConfig) { c.AuthURL = "ftp://example.com" }},
		{"tiny timeout", func(c *RemoteConfig) { c.Timeout = time.Millisecond }},
		{"huge page", func(c *RemoteConfig) { c.PageSize = 5000 }},
		{"negative rate", func(c *RemoteConfig) { c.RateLimit = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(&cfg.Remote)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestSyncConfig_Interval(t *testing.T) {
	if err := (&SyncConfig{}).Validate(); err != nil {
		t.Errorf("zero interval disables the timer and is valid: %v", err)
	}
	if err := (&SyncConfig{Interval: time.Second}).Validate(); err == nil {
		t.Error("sub-minimum interval should fail")
	}
}

func TestLoad_YAMLWithEnv(t *testing.T) {
	t.Setenv("NOTESYNC_TEST_PASSWORD", "hunter2")
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
app:
  http:
    port: 9090
store:
  path: /tmp/notes
remote:
  email: me@example.com
  password: ${NOTESYNC_TEST_PASSWORD}
  timeout: 45s
sync:
  interval: 2m
  on_start: false
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.HTTP.Port != 9090 || cfg.Store.Path != "/tmp/notes" {
		t.Errorf("app/store = %+v / %+v", cfg.App, cfg.Store)
	}
	if cfg.Remote.Password != "hunter2" {
		t.Errorf("password = %q, want env expansion", cfg.Remote.Password)
	}
	if cfg.Remote.Timeout != 45*time.Second || cfg.Sync.Interval != 2*time.Minute || cfg.Sync.OnStart {
		t.Errorf("durations = %v / %+v", cfg.Remote.Timeout, cfg.Sync)
	}
	// Untouched sections keep their defaults.
	if cfg.SQLite.Path != "./notesync.db" || cfg.Remote.PageSize != 100 {
		t.Errorf("defaults lost: sqlite=%q page=%d", cfg.SQLite.Path, cfg.Remote.PageSize)
	}
	cc := cfg.Remote.ClientConfig()
	if cc.Email != "me@example.com" || cc.Timeout != 45*time.Second {
		t.Errorf("client config = %+v", cc)
	}
}
