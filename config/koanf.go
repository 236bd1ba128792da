package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order; the first file found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/scene-relay/config.yaml",
}

const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:             3000,
			Host:             "",
			StaticDir:        "",
			CORSOrigins:      []string{"http://localhost:8080"},
			ShutdownTimeout:  10 * time.Second,
			UploadMaxBytes:   32 << 20, // 32MB
			UploadRateLimit:  10,
			UploadRateWindow: time.Minute,
		},
		Relay: RelayConfig{
			Strict:     false,
			QueueSize:  256,
			SendBuffer: 256,
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			DB:      0,
			Channel: "scene-edits",
		},
		Auth: AuthConfig{
			Secret:   "", // tokens disabled
			TokenTTL: 24 * time.Hour,
		},
		MDNS: MDNSConfig{
			Enabled:  false,
			Instance: "scene-relay",
			Service:  "_scene-relay._tcp",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load layers configuration sources, later ones winning:
//  1. Built-in defaults
//  2. Optional YAML file (CONFIG_PATH or DefaultConfigPaths)
//  3. Environment variables
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

var sliceConfigPaths = []string{
	"server.cors_origins",
}

// processSliceFields splits comma-separated environment values for slice
// fields. Values already loaded as lists from YAML are left alone.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

var envMappings = map[string]string{
	// Server
	"port":               "server.port",
	"host":               "server.host",
	"static_dir":         "server.static_dir",
	"origin":             "server.cors_origins",
	"cors_origins":       "server.cors_origins",
	"shutdown_timeout":   "server.shutdown_timeout",
	"upload_max_bytes":   "server.upload_max_bytes",
	"upload_rate_limit":  "server.upload_rate_limit",
	"upload_rate_window": "server.upload_rate_window",

	// Relay
	"relay_strict":      "relay.strict",
	"relay_queue_size":  "relay.queue_size",
	"relay_send_buffer": "relay.send_buffer",

	// Redis
	"redis_enabled":  "redis.enabled",
	"redis_addr":     "redis.addr",
	"redis_password": "redis.password",
	"redis_db":       "redis.db",
	"redis_channel":  "redis.channel",

	// Auth
	"auth_secret":    "auth.secret",
	"auth_token_ttl": "auth.token_ttl",

	// mDNS
	"mdns_enabled":  "mdns.enabled",
	"mdns_instance": "mdns.instance",
	"mdns_service":  "mdns.service",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps environment variable names to config paths.
// Unknown variables return "" and are ignored.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
