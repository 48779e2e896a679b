// Package app wires the application together: database pool,
// migrations, Genkit, the LLM client, the exercise catalog, coach
// tools, the bundle generator, and the memory extractor.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/repwise/repwise/db"
	"github.com/repwise/repwise/internal/bundle"
	"github.com/repwise/repwise/internal/catalog"
	"github.com/repwise/repwise/internal/coach"
	"github.com/repwise/repwise/internal/config"
	"github.com/repwise/repwise/internal/llm"
	"github.com/repwise/repwise/internal/memory"
	"github.com/repwise/repwise/internal/store"
)

// shutdownGrace bounds how long Close waits for background work
// (bundle regeneration, memory extraction, compaction) to drain.
const shutdownGrace = 30 * time.Second

// App is the application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Genkit *genkit.Genkit
	Pool   *pgxpool.Pool
	Store  *store.Store
	LLM    *llm.Client

	Catalog   *catalog.Catalog
	Tools     *coach.Tools
	ToolRefs  []ai.ToolRef
	Generator *bundle.Generator
	Extractor *memory.Extractor

	// BackgroundCtx outlives individual requests; detached work runs
	// under it and registers with WG so Close can drain.
	BackgroundCtx context.Context
	WG            *sync.WaitGroup

	bgCancel context.CancelFunc
}

// Setup initializes the application. Call Close to release resources.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger, WG: &sync.WaitGroup{}}

	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := store.Open(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	a.Pool = pool
	a.Store = store.New(pool, logger.With("component", "store"))

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, errors.New("initializing genkit")
	}
	a.Genkit = g

	client, err := llm.New(llm.Config{
		Genkit:    g,
		Logger:    logger.With("component", "llm"),
		ModelName: cfg.ModelName,
	})
	if err != nil {
		return nil, fmt.Errorf("creating llm client: %w", err)
	}
	a.LLM = client

	a.Catalog = catalog.New(a.Store, logger.With("component", "catalog"))
	a.Tools = coach.NewTools(a.Catalog)
	a.ToolRefs = a.Tools.Register(g)

	a.Generator, err = bundle.New(bundle.Config{
		Storage:    a.Store,
		Catalog:    a.Catalog,
		Logger:     logger.With("component", "bundle"),
		WindowDays: cfg.BundleWindowDays,
	})
	if err != nil {
		return nil, fmt.Errorf("creating bundle generator: %w", err)
	}

	a.Extractor, err = memory.New(memory.Config{
		LLM:     client,
		Storage: a.Store,
		Logger:  logger.With("component", "memory"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating memory extractor: %w", err)
	}

	a.BackgroundCtx, a.bgCancel = context.WithCancel(context.Background())

	logger.Info("application initialized", "model", cfg.ModelName, "db", cfg.PostgresDBName)
	return a, nil
}

// Close drains background work and releases resources. Safe to call on
// a partially initialized App.
func (a *App) Close() error {
	if a.WG != nil {
		done := make(chan struct{})
		go func() {
			a.WG.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(shutdownGrace):
			a.Logger.Warn("background work did not drain in time")
		}
	}

	if a.bgCancel != nil {
		a.bgCancel()
	}
	if a.Pool != nil {
		a.Pool.Close()
		a.Logger.Info("database pool closed")
	}
	return nil
}
