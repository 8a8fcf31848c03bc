package bootstrap

import (
	"context"
	"fmt"

	"github.com/asporlabs/aspor-intelligence/internal/config"
	"github.com/asporlabs/aspor-intelligence/internal/core/ports"
	"github.com/asporlabs/aspor-intelligence/internal/core/prompt"
	"github.com/asporlabs/aspor-intelligence/internal/core/usecase"
	"github.com/asporlabs/aspor-intelligence/internal/infrastructure/extractor/pdftext"
	"github.com/asporlabs/aspor-intelligence/internal/infrastructure/llm/ollama"
	natsqueue "github.com/asporlabs/aspor-intelligence/internal/infrastructure/queue/nats"
	"github.com/asporlabs/aspor-intelligence/internal/infrastructure/repository/postgres"
	"github.com/asporlabs/aspor-intelligence/internal/infrastructure/resilience"
	"github.com/asporlabs/aspor-intelligence/internal/infrastructure/storage/localfs"
	"github.com/asporlabs/aspor-intelligence/internal/infrastructure/storage/minio"
)

type App struct {
	Config config.Config

	Queue   *natsqueue.Queue
	Repo    ports.RunRepository
	Storage ports.ObjectStorage

	UploadUC  *usecase.UploadURLUseCase
	ExtractUC *usecase.ExtractRunUseCase
	AnalyzeUC *usecase.AnalyzeRunUseCase
	StatusUC  *usecase.RunStatusUseCase
	JobsUC    *usecase.RunJobProcessor

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewRunRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := newObjectStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	queue, err := natsqueue.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, natsqueue.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init job queue: %w", err)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaVisionModel, executor)
	analyzer := ollama.NewAnalyzer(ollamaClient)
	vision := ollama.NewVisionExtractor(ollamaClient, storage)
	fast := pdftext.NewExtractor(storage)

	catalog, err := newPromptCatalog(cfg)
	if err != nil {
		return nil, fmt.Errorf("load prompt catalog: %w", err)
	}

	uploadUC := usecase.NewUploadURLUseCase(storage, cfg.UploadURLExpiry)
	extractUC := usecase.NewExtractRunUseCase(repo, storage, queue, fast, vision, usecase.ExtractRunConfig{
		FastPathBudget: cfg.FastPathBudget,
		InputCap:       cfg.InputCharLimit,
	})
	analyzeUC := usecase.NewAnalyzeRunUseCase(repo, storage, queue, analyzer, catalog, usecase.AnalyzeRunConfig{
		SyncBudget: cfg.SyncAnalyzeBudget,
		OutputCap:  cfg.OutputCharLimit,
	})
	statusUC := usecase.NewRunStatusUseCase(repo, cfg.HistoryLimit)
	jobsUC := usecase.NewRunJobProcessor(extractUC, analyzeUC)

	return &App{
		Config:  cfg,
		Queue:   queue,
		Repo:    repo,
		Storage: storage,

		UploadUC:  uploadUC,
		ExtractUC: extractUC,
		AnalyzeUC: analyzeUC,
		StatusUC:  statusUC,
		JobsUC:    jobsUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func newObjectStorage(ctx context.Context, cfg config.Config) (ports.ObjectStorage, error) {
	switch cfg.StorageBackend {
	case "minio":
		return minio.New(ctx, minio.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			Region:    cfg.MinioRegion,
			UseSSL:    cfg.MinioUseSSL,
		})
	case "localfs", "":
		return localfs.New(cfg.StoragePath)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func newPromptCatalog(cfg config.Config) (*prompt.Catalog, error) {
	if cfg.PromptCatalogPath == "" {
		return prompt.NewCatalog(), nil
	}
	return prompt.NewCatalogFromFile(cfg.PromptCatalogPath)
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
