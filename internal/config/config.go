// Package config loads the CLI configuration: a YAML file with environment
// overrides. The library core never touches this; it takes an explicit
// tandem.Config instead.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Backend locates one Redis replica.
type Backend struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Log holds logging settings.
type Log struct {
	Level string `yaml:"level"`
}

// Encryption holds metadata-at-rest encryption keys, base64 encoded.
// Encryption is off when Key is empty.
type Encryption struct {
	Key          string   `yaml:"key"`
	FallbackKeys []string `yaml:"fallback_keys"`
}

// Config is the full CLI configuration.
type Config struct {
	Primary    Backend    `yaml:"primary"`
	Cache      Backend    `yaml:"cache"`
	Log        Log        `yaml:"log"`
	Encryption Encryption `yaml:"encryption"`
}

// Load reads the YAML file at path (skipped when path is empty), then applies
// environment overrides, then validates.
//
// Recognized variables: TANDEM_PRIMARY_ADDR, TANDEM_PRIMARY_PASSWORD,
// TANDEM_PRIMARY_DB, TANDEM_CACHE_ADDR, TANDEM_CACHE_PASSWORD,
// TANDEM_CACHE_DB, TANDEM_LOG_LEVEL, TANDEM_ENCRYPTION_KEY and
// TANDEM_ENCRYPTION_FALLBACK_KEYS (comma separated).
func Load(path string) (Config, error) {
	var cfg Config

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	overrideString(&cfg.Primary.Addr, "TANDEM_PRIMARY_ADDR")
	overrideString(&cfg.Primary.Password, "TANDEM_PRIMARY_PASSWORD")
	if err := overrideInt(&cfg.Primary.DB, "TANDEM_PRIMARY_DB"); err != nil {
		return Config{}, err
	}
	overrideString(&cfg.Cache.Addr, "TANDEM_CACHE_ADDR")
	overrideString(&cfg.Cache.Password, "TANDEM_CACHE_PASSWORD")
	if err := overrideInt(&cfg.Cache.DB, "TANDEM_CACHE_DB"); err != nil {
		return Config{}, err
	}
	overrideString(&cfg.Log.Level, "TANDEM_LOG_LEVEL")
	overrideString(&cfg.Encryption.Key, "TANDEM_ENCRYPTION_KEY")
	overrideStringList(&cfg.Encryption.FallbackKeys, "TANDEM_ENCRYPTION_FALLBACK_KEYS")

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	if c.Primary.Addr == "" {
		errs = append(errs, errors.New("primary.addr is required"))
	}
	if c.Cache.Addr == "" {
		errs = append(errs, errors.New("cache.addr is required"))
	}
	return errors.Join(errs...)
}

func overrideString(dst *string, name string) {
	if v, ok := os.LookupEnv(name); ok {
		*dst = v
	}
}

func overrideStringList(dst *[]string, name string) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return
	}
	var values []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	*dst = values
}

func overrideInt(dst *int, name string) error {
	v, ok := os.LookupEnv(name)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	*dst = n
	return nil
}
