package main

import (
	"context"
	"database/sql"
	"strings"

	"go.uber.org/zap"

	"plant-id/api/internal/config"
	"plant-id/api/internal/engine"
	"plant-id/api/internal/engine/gemini"
	"plant-id/api/internal/engine/openai"
	"plant-id/api/internal/identify"
	"plant-id/api/internal/prompt"
	"plant-id/api/internal/store"
)

// app — собранные зависимости для команд.
type app struct {
	engines *engine.Engines
	svc     *identify.Service
	db      *sql.DB // nil без кэша
}

func (a *app) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}

// newEngines подменяется в тестах.
var newEngines = buildEngines

func buildEngines(cfg *config.Config, instruction string) *engine.Engines {
	engs := &engine.Engines{Default: cfg.DefaultEngine}
	if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		engs.Gemini = gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel, instruction)
	}
	if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
		engs.OpenAI = openai.New(cfg.OpenAIAPIKey, cfg.OpenAIModel, instruction)
	}
	// дефолтный движок без ключа — берём первый настроенный
	if _, err := engs.GetEngine(""); err != nil {
		engs.Default = ""
	}
	return engs
}

func newApp(ctx context.Context, cfg *config.Config, withCache bool, log *zap.Logger) (*app, error) {
	instruction, err := prompt.Load(cfg.PromptFile)
	if err != nil {
		return nil, err
	}
	a := &app{engines: newEngines(cfg, instruction)}

	opts := identify.Options{MaxImageBytes: cfg.MaxImageBytes, CacheMaxAge: cfg.CacheMaxAge}
	if withCache && cfg.CacheEnabled() {
		repo, db, err := openRepo(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return nil, err
		}
		a.db = db
		opts.Cache = repo
	}
	a.svc = identify.New(a.engines, opts, log)

	log.Info("engines configured",
		zap.Strings("engines", a.engines.Names()),
		zap.String("default", a.engines.Default),
		zap.Bool("cache", opts.Cache != nil),
		zap.Int64("max_image_bytes", a.svc.MaxImageBytes()),
	)
	return a, nil
}

func openRepo(ctx context.Context, dsn string, log *zap.Logger) (*store.IdentificationRepo, *sql.DB, error) {
	db, err := store.Open(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	repo := store.NewIdentificationRepo(db)
	if err := repo.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	log.Info("db connected", zap.String("dsn", store.SafeDSNSummary(dsn)))
	return repo, db, nil
}
