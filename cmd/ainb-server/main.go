// Command ainb-server runs the notebook cell execution service: the
// HTTP API, the execution engine with its sandbox pool, and the
// provider registry with the model catalog.
//
// Configuration is loaded from a YAML file discovered via the -config
// flag, the AINB_CONFIG environment variable, ./config.yaml, or
// /etc/ainb/config.yaml, with AINB_* environment overrides applied on
// top. See pkg/config for the full surface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/client"
	k8sconfig "sigs.k8s.io/controller-runtime/pkg/client/config"

	"github.com/grothkopp/ainb/pkg/api"
	"github.com/grothkopp/ainb/pkg/auth"
	"github.com/grothkopp/ainb/pkg/auth/apikey"
	authjwt "github.com/grothkopp/ainb/pkg/auth/jwt"
	"github.com/grothkopp/ainb/pkg/auth/noop"
	"github.com/grothkopp/ainb/pkg/config"
	"github.com/grothkopp/ainb/pkg/debug"
	"github.com/grothkopp/ainb/pkg/engine"
	"github.com/grothkopp/ainb/pkg/notebook"
	"github.com/grothkopp/ainb/pkg/observability"
	"github.com/grothkopp/ainb/pkg/provider"
	"github.com/grothkopp/ainb/pkg/provider/anthropic"
	"github.com/grothkopp/ainb/pkg/provider/custom"
	"github.com/grothkopp/ainb/pkg/provider/openai"
	"github.com/grothkopp/ainb/pkg/provider/openrouter"
	"github.com/grothkopp/ainb/pkg/sandbox"
	sandboxk8s "github.com/grothkopp/ainb/pkg/sandbox/kubernetes"
	"github.com/grothkopp/ainb/pkg/settings"
	memorystore "github.com/grothkopp/ainb/pkg/settings/memory"
	postgresstore "github.com/grothkopp/ainb/pkg/settings/postgres"
	transporthttp "github.com/grothkopp/ainb/pkg/transport/http"
)

// initialRefreshTimeout bounds the background catalog warm-up at boot.
const initialRefreshTimeout = 60 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	debug.Init(cfg.Logging.Debug, cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Settings store and persisted provider/model state.
	store, err := newSettingsStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	doc, err := store.Load(ctx)
	switch {
	case errors.Is(err, settings.ErrNotFound):
		doc = settings.DefaultDocument()
		observability.SettingsOpsTotal.WithLabelValues("load", "ok").Inc()
	case api.IsType(err, api.ErrorTypeMalformedState):
		// Normalize hands back a usable default document alongside the
		// error, so the server starts fresh instead of refusing to boot.
		slog.Warn("persisted settings are malformed, starting from defaults", "error", err)
		observability.SettingsOpsTotal.WithLabelValues("load", "error").Inc()
	case err != nil:
		return fmt.Errorf("loading settings: %w", err)
	default:
		observability.SettingsOpsTotal.WithLabelValues("load", "ok").Inc()
	}

	persisted, models, refreshedAt := provider.FromSettings(doc)
	providers := provider.MergeProviders(persisted, configuredProviders(cfg))

	registry := provider.NewRegistry(providers...)
	catalog := provider.NewCatalog()
	if len(models) > 0 {
		catalog.Replace(models, refreshedAt)
		slog.Info("model catalog restored", "models", len(models), "refreshed_at", refreshedAt)
	}
	resolver := provider.NewResolver(registry, catalog)
	manager := provider.NewCatalogManager(registry, catalog, store, newInvoker)

	// Notebook state.
	cells, err := notebook.NewStore()
	if err != nil {
		return fmt.Errorf("creating cell store: %w", err)
	}
	events := notebook.NewEvents(cells)
	expander := notebook.NoopExpander{}

	// Execution contexts and the engine.
	launcher, err := newLauncher(cfg)
	if err != nil {
		return err
	}
	eng, err := engine.New(cells, events, expander, sandbox.NewPool(launcher), engine.Config{
		RunTimeout:      cfg.Sandbox.RunTimeout,
		DefaultDebounce: cfg.Sandbox.DebounceDelay,
	})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}
	defer eng.Close()

	// HTTP surface.
	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	opts := []transporthttp.ServerOption{
		transporthttp.WithAddr(addr),
		transporthttp.WithReadTimeout(cfg.Server.ReadTimeout),
		transporthttp.WithWriteTimeout(cfg.Server.WriteTimeout),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithMiddleware(auth.Middleware(
			newAuthChain(cfg), newRateLimiter(cfg), auth.DefaultBypassEndpoints)),
	}

	srv, err := transporthttp.NewServer(transporthttp.Deps{
		Runner:   eng,
		Cells:    cells,
		Events:   events,
		Catalog:  catalog,
		Resolver: resolver,
		Manager:  manager,
		Invokers: newInvoker,
		Expander: expander,
		Ready:    store.HealthCheck,
	}, opts...)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	// Warm the catalog in the background; startup does not block on
	// provider availability.
	if registry.Len() > 0 {
		go func() {
			refreshCtx, cancel := context.WithTimeout(ctx, initialRefreshTimeout)
			defer cancel()
			outcome := manager.Refresh(refreshCtx, nil)
			slog.Info("initial model catalog refresh",
				"status", outcome.Status, "models", outcome.ModelCount, "failures", len(outcome.Failures))
		}()
	}

	slog.Info("server starting",
		"addr", addr,
		"sandbox_mode", cfg.Sandbox.Mode,
		"settings_store", cfg.Settings.Store,
		"auth", cfg.Auth.Type,
		"providers", registry.Len(),
	)
	return srv.Run(ctx)
}

// newSettingsStore selects the persistence backend from config.
func newSettingsStore(ctx context.Context, cfg *config.Config) (settings.Store, error) {
	switch cfg.Settings.Store {
	case "postgres":
		store, err := postgresstore.New(ctx, postgresstore.Config{
			DSN:            cfg.Settings.Postgres.DSN,
			MaxConns:       cfg.Settings.Postgres.MaxConns,
			MigrateOnStart: cfg.Settings.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		slog.Info("settings store ready", "type", "postgres", "migrate_on_start", cfg.Settings.Postgres.MigrateOnStart)
		return store, nil
	default:
		slog.Info("settings store ready", "type", "memory")
		return memorystore.New(), nil
	}
}

// newLauncher selects how execution contexts are provisioned. The
// kubernetes mode claims per-cell sandboxes on the cluster; the default
// spawns one local runner process per cell.
func newLauncher(cfg *config.Config) (sandbox.Launcher, error) {
	switch cfg.Sandbox.Mode {
	case "kubernetes":
		restCfg, err := k8sconfig.GetConfig()
		if err != nil {
			return nil, fmt.Errorf("loading kubeconfig: %w", err)
		}
		scheme, err := sandboxk8s.NewScheme()
		if err != nil {
			return nil, err
		}
		c, err := client.New(restCfg, client.Options{Scheme: scheme})
		if err != nil {
			return nil, fmt.Errorf("creating cluster client: %w", err)
		}
		k := cfg.Sandbox.Kubernetes
		launcher := sandboxk8s.NewLauncher(c, k.TemplateName, k.Namespace, k.ReadyTimeout)
		if k.RunnerPort > 0 {
			launcher.RunnerPort = k.RunnerPort
		}
		return launcher, nil
	default:
		return sandbox.NewSubprocessLauncher(cfg.Sandbox.RunnerPath, nil, nil), nil
	}
}

// configuredProviders maps bootstrap provider entries from config into
// registry values. Credentials have already been resolved from _file
// references by the loader.
func configuredProviders(cfg *config.Config) []provider.Provider {
	out := make([]provider.Provider, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		out = append(out, provider.Provider{
			ID:         p.ID,
			Kind:       provider.Kind(p.Kind),
			Label:      p.Label,
			Endpoint:   p.Endpoint,
			Credential: p.Credential,
		})
	}
	return out
}

// newInvoker builds the concrete API client for a provider kind. An
// empty endpoint selects the adapter's hosted default.
func newInvoker(kind provider.Kind, endpoint, credential string) (provider.Invoker, error) {
	switch kind {
	case provider.KindStandardB:
		return anthropic.New(anthropic.Config{BaseURL: endpoint, APIKey: credential})
	case provider.KindAggregator:
		return openrouter.New(openrouter.Config{BaseURL: endpoint, APIKey: credential})
	case provider.KindCustom:
		return custom.New(custom.Config{BaseURL: endpoint, APIKey: credential})
	default:
		return openai.New(openai.Config{BaseURL: endpoint, APIKey: credential})
	}
}

// newAuthChain builds the authenticator chain from config. With type
// "none" every request is accepted as anonymous.
func newAuthChain(cfg *config.Config) *auth.Chain {
	switch cfg.Auth.Type {
	case "apikey":
		keys := make([]apikey.Key, 0, len(cfg.Auth.APIKeys))
		for _, k := range cfg.Auth.APIKeys {
			id := auth.Identity{Subject: k.Subject, ServiceTier: k.Tier}
			if id.ServiceTier == "" {
				id.ServiceTier = "default"
			}
			if k.Workspace != "" {
				id.Metadata = map[string]string{auth.MetadataWorkspace: k.Workspace}
			}
			keys = append(keys, apikey.Key{Secret: k.Key, Identity: id})
		}
		return &auth.Chain{
			Authenticators: []auth.Authenticator{apikey.New(keys)},
			Fallback:       auth.No,
		}
	case "jwt":
		return &auth.Chain{
			Authenticators: []auth.Authenticator{authjwt.New(authjwt.Config{
				JWKSURL:        cfg.Auth.JWT.JWKSURL,
				Issuer:         cfg.Auth.JWT.Issuer,
				Audience:       cfg.Auth.JWT.Audience,
				WorkspaceClaim: cfg.Auth.JWT.WorkspaceClaim,
			})},
			Fallback: auth.No,
		}
	default:
		return &auth.Chain{
			Authenticators: []auth.Authenticator{&noop.Authenticator{}},
			Fallback:       auth.Yes,
		}
	}
}

// newRateLimiter maps the configured tier budgets into the in-process
// limiter. With no budgets configured it admits everything.
func newRateLimiter(cfg *config.Config) auth.RateLimiter {
	rl := cfg.Auth.RateLimit
	var tiers map[string]auth.TierConfig
	if len(rl.Tiers) > 0 {
		tiers = make(map[string]auth.TierConfig, len(rl.Tiers))
		for name, rpm := range rl.Tiers {
			tiers[name] = auth.TierConfig{RequestsPerMinute: rpm}
		}
	}
	return auth.NewInProcessLimiter(tiers, rl.DefaultRPM)
}
