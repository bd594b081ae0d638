package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, AINB_CONFIG env, ./config.yaml, /etc/ainb/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	// Start with defaults.
	cfg := Defaults()

	// Discover and load YAML config file.
	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	// Apply environment variable overrides.
	applyEnvOverrides(&cfg)

	// Resolve _file references.
	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	// Validate.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. AINB_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/ainb/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	// Explicit path takes priority.
	if configPath != "" {
		return configPath
	}

	// Check AINB_CONFIG env var.
	if envPath := os.Getenv("AINB_CONFIG"); envPath != "" {
		return envPath
	}

	// Check common locations.
	candidates := []string{
		"config.yaml",
		"/etc/ainb/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps environment variables to config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AINB_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("AINB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("AINB_SANDBOX_MODE"); v != "" {
		cfg.Sandbox.Mode = v
	}
	if v := os.Getenv("AINB_SANDBOX_RUNNER"); v != "" {
		cfg.Sandbox.RunnerPath = v
	}
	if v := os.Getenv("AINB_SETTINGS_STORE"); v != "" {
		cfg.Settings.Store = v
	}
	if v := os.Getenv("AINB_POSTGRES_DSN"); v != "" {
		cfg.Settings.Postgres.DSN = v
	}
	if v := os.Getenv("AINB_AUTH_TYPE"); v != "" {
		cfg.Auth.Type = v
	}
	if v := os.Getenv("AINB_JWT_JWKS_URL"); v != "" {
		cfg.Auth.JWT.JWKSURL = v
	}

	// AINB_API_KEYS: JSON array of API key configs.
	if v := os.Getenv("AINB_API_KEYS"); v != "" {
		keys, err := parseAPIKeysJSON(v)
		if err == nil && len(keys) > 0 {
			cfg.Auth.APIKeys = keys
		}
	}

	// AINB_PROVIDERS: JSON array of provider configs.
	if v := os.Getenv("AINB_PROVIDERS"); v != "" {
		providers, err := parseProvidersJSON(v)
		if err == nil && len(providers) > 0 {
			cfg.Providers = providers
		}
	}
}

// parseAPIKeysJSON parses a JSON array of API key configurations.
func parseAPIKeysJSON(jsonStr string) ([]APIKeyConfig, error) {
	var keys []APIKeyConfig
	if err := json.Unmarshal([]byte(jsonStr), &keys); err != nil {
		return nil, fmt.Errorf("parsing API keys JSON: %w", err)
	}
	return keys, nil
}

// parseProvidersJSON parses a JSON array of provider configurations.
func parseProvidersJSON(jsonStr string) ([]ProviderConfig, error) {
	var providers []ProviderConfig
	if err := json.Unmarshal([]byte(jsonStr), &providers); err != nil {
		return nil, fmt.Errorf("parsing providers JSON: %w", err)
	}
	return providers, nil
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	// settings.postgres.dsn_file -> settings.postgres.dsn
	if cfg.Settings.Postgres.DSNFile != "" && cfg.Settings.Postgres.DSN == "" {
		val, err := readSecretFile(cfg.Settings.Postgres.DSNFile)
		if err != nil {
			return fmt.Errorf("settings.postgres.dsn_file: %w", err)
		}
		cfg.Settings.Postgres.DSN = val
	}

	// providers[*].credential_file -> providers[*].credential
	for i := range cfg.Providers {
		if cfg.Providers[i].CredentialFile != "" && cfg.Providers[i].Credential == "" {
			val, err := readSecretFile(cfg.Providers[i].CredentialFile)
			if err != nil {
				return fmt.Errorf("providers[%d].credential_file: %w", i, err)
			}
			cfg.Providers[i].Credential = val
		}
	}

	// auth.api_keys[*].key_file -> auth.api_keys[*].key
	for i := range cfg.Auth.APIKeys {
		if cfg.Auth.APIKeys[i].KeyFile != "" && cfg.Auth.APIKeys[i].Key == "" {
			val, err := readSecretFile(cfg.Auth.APIKeys[i].KeyFile)
			if err != nil {
				return fmt.Errorf("auth.api_keys[%d].key_file: %w", i, err)
			}
			cfg.Auth.APIKeys[i].Key = val
		}
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
