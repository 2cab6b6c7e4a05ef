// Package config loads the configuration of the alipay-login tool.
//
// Sources are applied in order, later ones winning: built-in defaults, an
// optional YAML file, a .env file in the working directory, and ALIPAY_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/simp-lee/alipayauth"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "ALIPAY_"

// Config holds the settings of the alipay-login tool.
type Config struct {
	Env      string `yaml:"env" env:"ENV"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`
	Addr     string `yaml:"addr" env:"ADDR"`

	AppID               string        `yaml:"app_id" env:"APP_ID"`
	PrivateKey          string        `yaml:"private_key" env:"PRIVATE_KEY"`
	PrivateKeyFile      string        `yaml:"private_key_file" env:"PRIVATE_KEY_FILE"`
	AlipayPublicKey     string        `yaml:"alipay_public_key" env:"PUBLIC_KEY"`
	AlipayPublicKeyFile string        `yaml:"alipay_public_key_file" env:"PUBLIC_KEY_FILE"`
	KeyCacheTTL         time.Duration `yaml:"key_cache_ttl" env:"KEY_CACHE_TTL"`
	Gateway             string        `yaml:"gateway" env:"GATEWAY"`
	Sandbox             bool          `yaml:"sandbox" env:"SANDBOX"`
	HTTPTimeout         time.Duration `yaml:"http_timeout" env:"HTTP_TIMEOUT"`

	Scope           string `yaml:"scope" env:"SCOPE"`
	State           string `yaml:"state" env:"STATE"`
	CallbackURL     string `yaml:"callback_url" env:"CALLBACK_URL"`
	FailureRedirect string `yaml:"failure_redirect" env:"FAILURE_REDIRECT"`

	SessionSecret string        `yaml:"session_secret" env:"SESSION_SECRET"`
	SessionTTL    time.Duration `yaml:"session_ttl" env:"SESSION_TTL"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Env:         "dev",
		LogLevel:    "info",
		Addr:        ":8080",
		KeyCacheTTL: 5 * time.Minute,
		HTTPTimeout: 10 * time.Second,
		Scope:       "auth_user",
		State:       "ALIPAY",
		SessionTTL:  24 * time.Hour,
	}
}

// Load reads the configuration. path may be empty to skip the YAML file.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("config: parse environment: %w", err)
	}
	return cfg, nil
}

// ValidateClient checks the fields needed to build a gateway client.
func (c Config) ValidateClient() error {
	var missing []string
	if c.AppID == "" {
		missing = append(missing, "app_id")
	}
	if c.PrivateKey == "" && c.PrivateKeyFile == "" {
		missing = append(missing, "private_key or private_key_file")
	}
	if c.AlipayPublicKey == "" && c.AlipayPublicKeyFile == "" {
		missing = append(missing, "alipay_public_key or alipay_public_key_file")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// ValidateServer checks everything the demo server needs.
func (c Config) ValidateServer() error {
	if err := c.ValidateClient(); err != nil {
		return err
	}
	var missing []string
	if c.CallbackURL == "" {
		missing = append(missing, "callback_url")
	}
	if len(c.SessionSecret) < 32 {
		missing = append(missing, "session_secret (at least 32 bytes)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// KeyOptions returns the key options for alipayauth.NewSigner and NewClient.
func (c Config) KeyOptions() []alipayauth.Option {
	var opts []alipayauth.Option
	if c.PrivateKeyFile != "" {
		opts = append(opts, alipayauth.WithPrivateKeyFile(c.PrivateKeyFile))
	} else if c.PrivateKey != "" {
		opts = append(opts, alipayauth.WithPrivateKey(c.PrivateKey))
	}
	if c.AlipayPublicKeyFile != "" {
		opts = append(opts, alipayauth.WithAlipayPublicKeyFile(c.AlipayPublicKeyFile))
	} else if c.AlipayPublicKey != "" {
		opts = append(opts, alipayauth.WithAlipayPublicKey(c.AlipayPublicKey))
	}
	return append(opts, alipayauth.WithKeyCacheTTL(c.KeyCacheTTL))
}

// ClientOptions returns KeyOptions plus the gateway settings.
func (c Config) ClientOptions() []alipayauth.Option {
	opts := c.KeyOptions()
	if c.Gateway != "" {
		opts = append(opts, alipayauth.WithGateway(c.Gateway))
	}
	if c.Sandbox {
		opts = append(opts, alipayauth.WithSandbox())
	}
	if c.HTTPTimeout > 0 {
		opts = append(opts, alipayauth.WithHTTPClient(&http.Client{Timeout: c.HTTPTimeout}))
	}
	return opts
}
