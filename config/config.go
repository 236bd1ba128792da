// Package config loads the relay's settings from defaults, an optional YAML
// file and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Relay   RelayConfig   `koanf:"relay"`
	Redis   RedisConfig   `koanf:"redis"`
	Auth    AuthConfig    `koanf:"auth"`
	MDNS    MDNSConfig    `koanf:"mdns"`
	Logging LoggingConfig `koanf:"logging"`
}

type ServerConfig struct {
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	Host            string        `koanf:"host"`
	StaticDir       string        `koanf:"static_dir"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`

	UploadMaxBytes   int64         `koanf:"upload_max_bytes" validate:"gt=0"`
	UploadRateLimit  int           `koanf:"upload_rate_limit" validate:"min=0"` // 0 disables
	UploadRateWindow time.Duration `koanf:"upload_rate_window" validate:"gt=0"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type RelayConfig struct {
	Strict     bool `koanf:"strict"`
	QueueSize  int  `koanf:"queue_size" validate:"min=1"`
	SendBuffer int  `koanf:"send_buffer" validate:"min=1"`
}

type RedisConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Addr     string `koanf:"addr" validate:"required_if=Enabled true"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db" validate:"min=0,max=15"`
	Channel  string `koanf:"channel" validate:"required_if=Enabled true"`
}

// AuthConfig enables bearer tokens on the real-time endpoints when Secret is set.
type AuthConfig struct {
	Secret   string        `koanf:"secret" validate:"omitempty,min=16"`
	TokenTTL time.Duration `koanf:"token_ttl" validate:"min=0"`
}

func (a AuthConfig) Enabled() bool {
	return a.Secret != ""
}

type MDNSConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Instance string `koanf:"instance" validate:"required_if=Enabled true"`
	Service  string `koanf:"service" validate:"required_if=Enabled true"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error fatal panic disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and reports every violation at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s", field, fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
