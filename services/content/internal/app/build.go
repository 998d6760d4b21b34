package app

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"gorm.io/gorm"
	"spacey/pkg/ai"
	"spacey/pkg/extract"
	"spacey/pkg/queue"
	"spacey/pkg/storage"
	"spacey/pkg/store"
	"spacey/pkg/textsplit"
	"spacey/pkg/vectorindex"
	"spacey/services/content/internal/config"
)

// Build assembles the service from configuration. Resources opened along the
// way are released again when a later step fails.
func Build(cfg config.FileConfig, logger *slog.Logger) (_ *App, err error) {
	var (
		closers   []func() error
		scheduler queue.Scheduler
	)
	defer func() {
		if err == nil {
			return
		}
		if scheduler != nil {
			_ = scheduler.Close()
		}
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}()

	var db *gorm.DB
	openDB := func() (*gorm.DB, error) {
		if db != nil {
			return db, nil
		}
		var oerr error
		db, oerr = store.OpenPostgres(cfg.DatabaseURL)
		if oerr != nil {
			return nil, fmt.Errorf("open postgres: %w", oerr)
		}
		closers = append(closers, func() error {
			sqlDB, derr := db.DB()
			if derr != nil {
				return derr
			}
			return sqlDB.Close()
		})
		return db, nil
	}

	var contentStore store.ContentStore
	switch cfg.StoreBackend {
	case "memory":
		contentStore = store.NewMemoryStore()
	default:
		gdb, derr := openDB()
		if derr != nil {
			return nil, derr
		}
		gs, serr := store.NewGormStoreFromDB(gdb)
		if serr != nil {
			return nil, fmt.Errorf("init postgres store: %w", serr)
		}
		contentStore = gs
	}

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	generator, err := buildGenerator(cfg)
	if err != nil {
		return nil, err
	}

	var backend vectorindex.Backend
	switch cfg.IndexBackend {
	case "pgvector":
		gdb, derr := openDB()
		if derr != nil {
			return nil, derr
		}
		backend, err = vectorindex.NewPGVectorBackend(gdb, cfg.EmbeddingDim)
	default:
		backend, err = vectorindex.OpenChromem(cfg.ChromemPath, cfg.ChromemCollection)
	}
	if err != nil {
		return nil, fmt.Errorf("init vector backend: %w", err)
	}
	chunker, err := textsplit.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	index, err := vectorindex.New(chunker, embedder, backend, vectorindex.Options{
		BatchSize:   cfg.EmbeddingBatchSize,
		Concurrency: cfg.EmbeddingConcurrency,
		Dimensions:  cfg.EmbeddingDim,
	})
	if err != nil {
		return nil, err
	}

	var blobs storage.BlobStorage
	switch cfg.BlobBackend {
	case "minio":
		blobs, err = storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	case "file":
		blobs, err = storage.NewFileStore(cfg.BlobDir)
	}
	if err != nil {
		return nil, fmt.Errorf("init blob storage: %w", err)
	}

	scheduler, err = buildScheduler(cfg)
	if err != nil {
		scheduler = nil
		return nil, err
	}

	retryInterval := time.Duration(cfg.GenerationRetryIntervalMs) * time.Millisecond
	summarizer, err := ai.NewSummarizer(generator, ai.SummarizerConfig{
		WindowChars:   cfg.SummaryWindowChars,
		Attempts:      cfg.GenerationRetryAttempts,
		RetryInterval: retryInterval,
	})
	if err != nil {
		return nil, err
	}
	answerer, err := ai.NewAnswerer(generator, ai.AnswererConfig{
		Attempts:      cfg.GenerationRetryAttempts,
		RetryInterval: retryInterval,
	})
	if err != nil {
		return nil, err
	}

	extractor := extract.New(extract.Config{
		DOIResolverURL: cfg.DOIResolverURL,
		Pdftotext:      cfg.PdftotextEnabled,
		MaxBytes:       cfg.MaxUploadBytes,
		HTTPClient:     fetchClient(cfg.FetchTimeoutSeconds),
	})

	return New(Deps{
		Store:         contentStore,
		Blobs:         blobs,
		Index:         index,
		Scheduler:     scheduler,
		Extractor:     extractor,
		Summarizer:    summarizer,
		Answerer:      answerer,
		Concurrency:   cfg.QueueConcurrency,
		MaxResults:    cfg.SearchMaxResults,
		MaxAnswerDocs: cfg.AnswerMaxChunks,
		ArchiveExpiry: time.Duration(cfg.ArchiveURLExpirySeconds) * time.Second,
		Logger:        logger,
		Closers:       closers,
	})
}

func buildEmbedder(cfg config.FileConfig) (ai.Embedder, error) {
	switch cfg.EmbeddingProvider {
	case "gemini":
		client, err := ai.NewGeminiClient(cfg.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		return ai.NewGeminiEmbedder(client, cfg.EmbeddingModel), nil
	case "ollama":
		return ai.NewOllamaEmbedder(ai.NewOllamaClient(cfg.EmbeddingBaseURL), cfg.EmbeddingModel, cfg.EmbeddingDim), nil
	case "openai":
		return ai.NewOpenAICompatEmbedder(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDim), nil
	}
	return nil, fmt.Errorf("unknown embedding provider: %s", cfg.EmbeddingProvider)
}

func buildGenerator(cfg config.FileConfig) (ai.TextGenerator, error) {
	switch cfg.GenerationProvider {
	case "gemini":
		client, err := ai.NewGeminiClient(cfg.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		if cfg.GenerationBaseURL != "" {
			client = client.WithBaseURL(cfg.GenerationBaseURL)
		}
		return ai.NewGeminiGenerator(client, cfg.GenerationModel), nil
	case "ollama":
		return ai.NewOllamaGenerator(ai.NewOllamaClient(cfg.GenerationBaseURL), cfg.GenerationModel), nil
	case "openai":
		return ai.NewOpenAICompatGenerator(cfg.GenerationBaseURL, cfg.GenerationAPIKey, cfg.GenerationModel), nil
	}
	return nil, fmt.Errorf("unknown generation provider: %s", cfg.GenerationProvider)
}

func buildScheduler(cfg config.FileConfig) (queue.Scheduler, error) {
	switch cfg.QueueBackend {
	case "redis":
		return queue.NewRedisJobQueue(queue.RedisQueueConfig{
			Addr:       cfg.RedisAddr,
			Password:   cfg.RedisPassword,
			Stream:     defaultString(cfg.QueueName, "spacey:content"),
			Group:      defaultString(cfg.QueueGroup, "content"),
			MaxRetries: cfg.QueueMaxRetries,
			RetryDelay: time.Duration(cfg.QueueRetryDelaySeconds) * time.Second,
		})
	case "amqp":
		return queue.NewAMQPJobQueue(queue.AMQPQueueConfig{
			URL:   cfg.AMQPURL,
			Queue: defaultString(cfg.QueueName, "spacey.content"),
		})
	case "pool", "":
		return queue.NewWorkerPool(cfg.QueueBuffer), nil
	}
	return nil, errors.New("unknown queue backend: " + cfg.QueueBackend)
}

func fetchClient(timeoutSeconds int) *http.Client {
	if timeoutSeconds <= 0 {
		return nil
	}
	return &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second}
}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
