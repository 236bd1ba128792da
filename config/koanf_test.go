package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolate points config discovery at an empty directory so a stray
// config.yaml cannot leak into the test.
func isolate(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv(ConfigPathEnvVar, "")
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want 3000", cfg.Server.Port)
	}
	if len(cfg.Server.CORSOrigins) != 1 || cfg.Server.CORSOrigins[0] != "http://localhost:8080" {
		t.Errorf("Server.CORSOrigins = %v", cfg.Server.CORSOrigins)
	}
	if cfg.Relay.Strict {
		t.Error("Relay.Strict should be false by default")
	}
	if cfg.Redis.Enabled || cfg.MDNS.Enabled || cfg.Auth.Enabled() {
		t.Error("optional integrations should be disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"PORT", "server.port"},
		{"ORIGIN", "server.cors_origins"},
		{"CORS_ORIGINS", "server.cors_origins"},
		{"UPLOAD_MAX_BYTES", "server.upload_max_bytes"},
		{"RELAY_STRICT", "relay.strict"},
		{"REDIS_ADDR", "redis.addr"},
		{"AUTH_SECRET", "auth.secret"},
		{"MDNS_ENABLED", "mdns.enabled"},
		{"LOG_LEVEL", "logging.level"},

		{"PATH", ""},
		{"HOME", ""},
		{"RANDOM_VAR", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := envTransformFunc(tt.input); got != tt.expected {
				t.Errorf("envTransformFunc(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestLoad_EnvVars(t *testing.T) {
	isolate(t)
	t.Setenv("PORT", "9000")
	t.Setenv("RELAY_STRICT", "true")
	t.Setenv("CORS_ORIGINS", "http://a.local, http://b.local")
	t.Setenv("UPLOAD_RATE_WINDOW", "30s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if !cfg.Relay.Strict {
		t.Error("Relay.Strict should be true")
	}
	if got := cfg.Server.CORSOrigins; len(got) != 2 || got[1] != "http://b.local" {
		t.Errorf("Server.CORSOrigins = %v", got)
	}
	if cfg.Server.UploadRateWindow != 30*time.Second {
		t.Errorf("Server.UploadRateWindow = %v, want 30s", cfg.Server.UploadRateWindow)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Relay.QueueSize != 256 {
		t.Errorf("Relay.QueueSize = %d, want 256 (default)", cfg.Relay.QueueSize)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "relay.yaml")
	content := `
server:
  port: 4000
  cors_origins:
    - http://file.local
relay:
  send_buffer: 64
redis:
  enabled: true
  addr: redis:6379
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("PORT", "5000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("env should override file: Server.Port = %d", cfg.Server.Port)
	}
	if cfg.Relay.SendBuffer != 64 {
		t.Errorf("Relay.SendBuffer = %d, want 64", cfg.Relay.SendBuffer)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Addr != "redis:6379" {
		t.Errorf("Redis = %+v", cfg.Redis)
	}
	if cfg.Redis.Channel != "scene-edits" {
		t.Errorf("Redis.Channel = %q, want default", cfg.Redis.Channel)
	}
	if got := cfg.Server.CORSOrigins; len(got) != 1 || got[0] != "http://file.local" {
		t.Errorf("Server.CORSOrigins = %v", got)
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"port out of range", map[string]string{"PORT": "70000"}, "Server.Port"},
		{"bad log level", map[string]string{"LOG_LEVEL": "loud"}, "Logging.Level"},
		{"short secret", map[string]string{"AUTH_SECRET": "short"}, "Auth.Secret"},
		{"redis db out of range", map[string]string{"REDIS_DB": "20"}, "Redis.DB"},
		{"zero send buffer", map[string]string{"RELAY_SEND_BUFFER": "0"}, "Relay.SendBuffer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should mention %s", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_RequiredWhenEnabled(t *testing.T) {
	cfg := defaultConfig()
	cfg.Redis.Channel = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled redis should not need a channel: %v", err)
	}

	cfg.Redis.Enabled = true
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "Redis.Channel") {
		t.Errorf("enabled redis without channel: err = %v", err)
	}

	cfg = defaultConfig()
	cfg.MDNS.Enabled = true
	cfg.MDNS.Instance = ""
	if err := cfg.Validate(); err == nil {
		t.Error("enabled mDNS without an instance name should fail")
	}
}

func TestFindConfigFile(t *testing.T) {
	isolate(t)
	if got := findConfigFile(); got != "" {
		t.Errorf("findConfigFile() = %q, want none", got)
	}

	if err := os.WriteFile("config.yaml", []byte("server:\n  port: 3001\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := findConfigFile(); got != "config.yaml" {
		t.Errorf("findConfigFile() = %q, want config.yaml", got)
	}

	t.Setenv(ConfigPathEnvVar, "/does/not/exist.yaml")
	if got := findConfigFile(); got != "config.yaml" {
		t.Errorf("missing CONFIG_PATH should fall back, got %q", got)
	}
}

func TestServerAddr(t *testing.T) {
	if got := (ServerConfig{Port: 3000}).Addr(); got != ":3000" {
		t.Errorf("Addr() = %q", got)
	}
	if got := (ServerConfig{Host: "127.0.0.1", Port: 80}).Addr(); got != "127.0.0.1:80" {
		t.Errorf("Addr() = %q", got)
	}
}
