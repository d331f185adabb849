package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultBaseURL is the API root used when base_url is not configured.
const DefaultBaseURL = "https://api.gamejolt.com/api/game/v1"

const (
	defaultKeepaliveInterval = 60 * time.Second
	defaultRequestTimeout    = 30 * time.Second
	defaultMaxPingFailures   = 0
	defaultLogLevel          = "info"

	configDirName  = ".jolt"
	configFileName = "config.toml"
)

// Config stores runtime settings loaded from TOML files and the environment.
type Config struct {
	BaseURL           string
	GameID            string
	Username          string
	UserToken         string
	PrivateKey        string
	Signature         string
	KeepaliveInterval time.Duration
	RequestTimeout    time.Duration
	MaxPingFailures   int
	LogLevel          string
	OTELEndpoint      string
}

type fileConfig struct {
	BaseURL           *string     `toml:"base_url"`
	GameID            *string     `toml:"game_id"`
	Username          *string     `toml:"username"`
	UserToken         *string     `toml:"user_token"`
	PrivateKey        *string     `toml:"private_key"`
	Signature         *string     `toml:"signature"`
	KeepaliveInterval *string     `toml:"keepalive_interval"`
	RequestTimeout    *string     `toml:"request_timeout"`
	MaxPingFailures   *int        `toml:"max_ping_failures"`
	LogLevel          *string     `toml:"log_level"`
	OTEL              *otelConfig `toml:"otel"`
}

type otelConfig struct {
	Endpoint *string `toml:"endpoint"`
}

var envOverrides = []struct {
	key   string
	apply func(*Config, string)
}{
	{key: "JOLT_BASE_URL", apply: func(cfg *Config, value string) { cfg.BaseURL = value }},
	{key: "JOLT_GAME_ID", apply: func(cfg *Config, value string) { cfg.GameID = value }},
	{key: "JOLT_USERNAME", apply: func(cfg *Config, value string) { cfg.Username = value }},
	{key: "JOLT_USER_TOKEN", apply: func(cfg *Config, value string) { cfg.UserToken = value }},
	{key: "JOLT_PRIVATE_KEY", apply: func(cfg *Config, value string) { cfg.PrivateKey = value }},
}

// Load reads config from ~/.jolt/config.toml, overlays a project-local
// .jolt/config.toml and finally applies JOLT_* environment variables.
func Load(ctx context.Context) (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	workingDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}

	cfg, err := LoadPaths(ctx,
		filepath.Join(homeDir, configDirName, configFileName),
		filepath.Join(workingDir, configDirName, configFileName),
	)
	if err != nil {
		return nil, err
	}

	for _, override := range envOverrides {
		if value := strings.TrimSpace(os.Getenv(override.key)); value != "" {
			override.apply(cfg, value)
		}
	}

	return cfg, nil
}

// LoadPaths overlays the given TOML files, in order, on top of the defaults.
// Missing files are skipped.
func LoadPaths(ctx context.Context, paths ...string) (*Config, error) {
	cfg := defaults()
	for _, path := range paths {
		if err := overlayFromFile(&cfg, path); err != nil {
			return nil, err
		}
	}

	_ = ctx
	return &cfg, nil
}

func defaults() Config {
	return Config{
		BaseURL:           DefaultBaseURL,
		KeepaliveInterval: defaultKeepaliveInterval,
		RequestTimeout:    defaultRequestTimeout,
		MaxPingFailures:   defaultMaxPingFailures,
		LogLevel:          defaultLogLevel,
	}
}

func overlayFromFile(cfg *Config, path string) error {
	if cfg == nil {
		return errors.New("config must not be nil")
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat config file %q: %w", path, err)
	}

	var decoded fileConfig
	if _, err := toml.DecodeFile(path, &decoded); err != nil {
		return fmt.Errorf("decode config file %q: %w", path, err)
	}

	applyScalarOverrides(cfg, decoded)
	if err := applyDurationOverrides(cfg, decoded, path); err != nil {
		return err
	}
	if decoded.MaxPingFailures != nil {
		if *decoded.MaxPingFailures < 0 {
			return fmt.Errorf("parse max_ping_failures in %q: must be >= 0", path)
		}
		cfg.MaxPingFailures = *decoded.MaxPingFailures
	}
	return nil
}

func applyScalarOverrides(cfg *Config, decoded fileConfig) {
	setString := func(target *string, value *string) {
		if value != nil {
			*target = strings.TrimSpace(*value)
		}
	}

	setString(&cfg.BaseURL, decoded.BaseURL)
	setString(&cfg.GameID, decoded.GameID)
	setString(&cfg.Username, decoded.Username)
	setString(&cfg.UserToken, decoded.UserToken)
	setString(&cfg.PrivateKey, decoded.PrivateKey)
	setString(&cfg.Signature, decoded.Signature)
	if decoded.LogLevel != nil {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(*decoded.LogLevel))
	}
	if decoded.OTEL != nil {
		setString(&cfg.OTELEndpoint, decoded.OTEL.Endpoint)
	}
}

func applyDurationOverrides(cfg *Config, decoded fileConfig, path string) error {
	if decoded.KeepaliveInterval != nil {
		value, err := parseDuration(*decoded.KeepaliveInterval, "keepalive_interval", path)
		if err != nil {
			return err
		}
		cfg.KeepaliveInterval = value
	}
	if decoded.RequestTimeout != nil {
		value, err := parseDuration(*decoded.RequestTimeout, "request_timeout", path)
		if err != nil {
			return err
		}
		cfg.RequestTimeout = value
	}
	return nil
}

func parseDuration(value, key, path string) (time.Duration, error) {
	parsed, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("parse %s in %q: %w", key, path, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("parse %s in %q: must be > 0", key, path)
	}
	return parsed, nil
}
