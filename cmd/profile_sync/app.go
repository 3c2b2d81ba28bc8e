package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/profile-sync/internal/config"
	"github.com/jonathan/profile-sync/internal/credentials"
	"github.com/jonathan/profile-sync/internal/db"
	"github.com/jonathan/profile-sync/internal/jobs"
	"github.com/jonathan/profile-sync/internal/llm"
	"github.com/jonathan/profile-sync/internal/scraper"
)

// app wires the scraper, optional storage and optional parser into a jobs.Runner.
type app struct {
	registry *scraper.Registry
	runner   *jobs.Runner
	resolver *credentials.Resolver
	database *db.DB
	llm      *llm.GeminiClient
}

type appOptions struct {
	// useDatabase connects to DATABASE_URL when it is set.
	useDatabase bool
	// parse enables the Gemini profile parser when GEMINI_API_KEY is set.
	parse bool
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts appOptions) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	var store credentials.Store
	runnerOpts := []jobs.Option{
		jobs.WithMaxConcurrent(cfg.MaxConcurrentBrowsers),
		jobs.WithLogger(logger),
	}

	if opts.useDatabase && cfg.DatabaseURL != "" {
		a.database, err = db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err = a.database.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		store = a.database
		runnerOpts = append(runnerOpts, jobs.WithStore(a.database))
	}

	var vault *credentials.Vault
	if cfg.EncryptionKey != "" {
		vault, err = credentials.VaultFromBase64(cfg.EncryptionKey)
		if err != nil {
			return nil, err
		}
	} else if store != nil {
		logger.Warn("ENCRYPTION_KEY is not set, stored credentials are disabled")
	}
	a.resolver = credentials.NewResolver(store, vault, logger)

	if opts.parse && cfg.GeminiAPIKey != "" {
		a.llm, err = llm.NewGeminiClient(ctx, llm.DefaultConfig(), cfg.GeminiAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		runnerOpts = append(runnerOpts, jobs.WithParser(llm.NewProfileParser(a.llm)))
	}

	a.registry = scraper.NewRegistry(time.Duration(cfg.SessionTTL), scraper.RealClock(), logger)
	a.registry.StartJanitor(time.Duration(cfg.SweepInterval))
	engine := scraper.New(cfg.Scraper(), scraper.ChromeLauncher(cfg.Launch()),
		scraper.WithLogger(logger),
		scraper.WithRegistry(a.registry),
	)
	a.runner = jobs.NewRunner(engine, a.resolver, runnerOpts...)
	return a, nil
}

// Close stops background work and releases every resource the app opened.
func (a *app) Close() {
	if a.runner != nil {
		a.runner.Close()
	}
	if a.registry != nil {
		a.registry.Close()
	}
	if a.llm != nil {
		_ = a.llm.Close()
	}
	if a.database != nil {
		a.database.Close()
	}
}
