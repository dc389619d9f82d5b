package bootstrap

import (
	"context"
	"fmt"

	"github.com/pulsehq/pulse-backend/internal/config"
	"github.com/pulsehq/pulse-backend/internal/core/ports"
	"github.com/pulsehq/pulse-backend/internal/core/usecase"
	"github.com/pulsehq/pulse-backend/internal/infrastructure/classifier/gemini"
	"github.com/pulsehq/pulse-backend/internal/infrastructure/queue/nats"
	"github.com/pulsehq/pulse-backend/internal/infrastructure/repository/postgres"
	"github.com/pulsehq/pulse-backend/internal/infrastructure/resilience"
	"github.com/pulsehq/pulse-backend/internal/infrastructure/storage/localfs"
	"github.com/pulsehq/pulse-backend/internal/infrastructure/storage/minio"
)

type App struct {
	Config config.Config

	Queue *nats.Queue
	Repo  ports.VideoRepository
	Store ports.ArtifactStore

	IngestUC  *usecase.IngestVideoUseCase
	CatalogUC *usecase.CatalogUseCase

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewVideoRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	store, err := newArtifactStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init artifact store: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		StatusSubject:      cfg.NATSStatusSubject,
		ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig()),
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	return &App{
		Config: cfg,
		Queue:  queue,
		Repo:   repo,
		Store:  store,

		IngestUC:  usecase.NewIngestVideoUseCase(repo, store, queue),
		CatalogUC: usecase.NewCatalogUseCase(repo, store),

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

// NewProcessor wires the worker-side orchestrator. Notifier injection stays
// with the caller because lifecycle events leave the worker over the queue.
func (a *App) NewProcessor(notifier ports.LifecycleNotifier) ports.VideoProcessor {
	classifier := gemini.New(gemini.Config{
		BaseURL:         a.Config.GeminiBaseURL,
		APIKey:          a.Config.GeminiAPIKey,
		Model:           a.Config.GeminiModel,
		PollInterval:    a.Config.GeminiPollInterval,
		PollMaxAttempts: a.Config.GeminiPollMaxAttempts,
	}, resilience.NewExecutor(resilience.DefaultConfig()))

	return usecase.NewProcessVideoUseCase(a.Repo, a.Store, classifier, notifier, a.Config.ScratchDir)
}

func newArtifactStore(ctx context.Context, cfg config.Config) (ports.ArtifactStore, error) {
	switch cfg.StorageBackend {
	case "minio":
		return minio.New(ctx, minio.Config{
			Endpoint:        cfg.MinIOEndpoint,
			AccessKeyID:     cfg.MinIOAccessKey,
			SecretAccessKey: cfg.MinIOSecretKey,
			UseSSL:          cfg.MinIOUseSSL,
			Bucket:          cfg.MinIOBucket,
		})
	default:
		return localfs.New(cfg.StoragePath)
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
