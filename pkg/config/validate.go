package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	// server.port must be positive.
	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}

	// sandbox.mode must be a known value.
	switch c.Sandbox.Mode {
	case "subprocess", "kubernetes":
		// valid
	default:
		errs = append(errs, fmt.Errorf("sandbox.mode must be \"subprocess\" or \"kubernetes\", got %q", c.Sandbox.Mode))
	}

	if c.Sandbox.Mode == "subprocess" && c.Sandbox.RunnerPath == "" {
		errs = append(errs, fmt.Errorf("sandbox.runner_path is required when sandbox.mode is \"subprocess\""))
	}

	if c.Sandbox.DebounceDelay < 0 {
		errs = append(errs, fmt.Errorf("sandbox.debounce_delay must be >= 0, got %v", c.Sandbox.DebounceDelay))
	}
	if c.Sandbox.RunTimeout < 0 {
		errs = append(errs, fmt.Errorf("sandbox.run_timeout must be >= 0, got %v", c.Sandbox.RunTimeout))
	}

	// settings.store must be a known value.
	switch c.Settings.Store {
	case "memory", "postgres":
		// valid
	default:
		errs = append(errs, fmt.Errorf("settings.store must be \"memory\" or \"postgres\", got %q", c.Settings.Store))
	}

	// If settings.store is "postgres", DSN or DSNFile must be set.
	if c.Settings.Store == "postgres" {
		if c.Settings.Postgres.DSN == "" && c.Settings.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("settings.postgres.dsn or settings.postgres.dsn_file is required when settings.store is \"postgres\""))
		}
	}

	// providers[*].kind must be a known value; custom providers need an endpoint.
	for i, p := range c.Providers {
		switch p.Kind {
		case "standard-a", "standard-b", "aggregator", "custom":
			// valid
		default:
			errs = append(errs, fmt.Errorf("providers[%d].kind must be \"standard-a\", \"standard-b\", \"aggregator\", or \"custom\", got %q", i, p.Kind))
		}
		if p.Kind == "custom" && p.Endpoint == "" {
			errs = append(errs, fmt.Errorf("providers[%d].endpoint is required for kind \"custom\"", i))
		}
		if p.ID == "" {
			errs = append(errs, fmt.Errorf("providers[%d].id is required", i))
		}
	}

	// auth.type must be a known value.
	switch c.Auth.Type {
	case "none", "apikey", "jwt":
		// valid
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\", or \"jwt\", got %q", c.Auth.Type))
	}

	if c.Auth.Type == "apikey" && len(c.Auth.APIKeys) == 0 {
		errs = append(errs, fmt.Errorf("auth.api_keys must not be empty when auth.type is \"apikey\""))
	}
	if c.Auth.Type == "jwt" && c.Auth.JWT.JWKSURL == "" {
		errs = append(errs, fmt.Errorf("auth.jwt.jwks_url is required when auth.type is \"jwt\""))
	}

	return errors.Join(errs...)
}
