package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file, overridable with SPACEY_CONFIG.
var ConfigPath = configPathFromEnv()

func configPathFromEnv() string {
	if v := strings.TrimSpace(os.Getenv("SPACEY_CONFIG")); v != "" {
		return v
	}
	return "config.yaml"
}

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`
	LogsDir  string `yaml:"logsDir"`

	StoreBackend string `yaml:"storeBackend"`
	DatabaseURL  string `yaml:"databaseURL"`

	IndexBackend      string `yaml:"indexBackend"`
	ChromemPath       string `yaml:"chromemPath"`
	ChromemCollection string `yaml:"chromemCollection"`
	ChunkSize         int    `yaml:"chunkSize"`
	ChunkOverlap      int    `yaml:"chunkOverlap"`

	QueueBackend           string `yaml:"queueBackend"`
	QueueBuffer            int    `yaml:"queueBuffer"`
	QueueConcurrency       int    `yaml:"queueConcurrency"`
	RedisAddr              string `yaml:"redisAddr"`
	RedisPassword          string `yaml:"redisPassword"`
	QueueName              string `yaml:"queueName"`
	QueueGroup             string `yaml:"queueGroup"`
	QueueMaxRetries        int    `yaml:"queueMaxRetries"`
	QueueRetryDelaySeconds int    `yaml:"queueRetryDelaySeconds"`
	AMQPURL                string `yaml:"amqpURL"`

	BlobBackend               string `yaml:"blobBackend"`
	BlobDir                   string `yaml:"blobDir"`
	MinioEndpoint             string `yaml:"minioEndpoint"`
	MinioAccessKey            string `yaml:"minioAccessKey"`
	MinioSecretKey            string `yaml:"minioSecretKey"`
	MinioBucket               string `yaml:"minioBucket"`
	MinioUseSSL               bool   `yaml:"minioUseSSL"`
	ArchiveURLExpirySeconds   int    `yaml:"archiveURLExpirySeconds"`
	MaxUploadBytes            int64  `yaml:"maxUploadBytes"`
	DOIResolverURL            string `yaml:"doiResolverURL"`
	FetchTimeoutSeconds       int    `yaml:"fetchTimeoutSeconds"`
	PdftotextEnabled          bool   `yaml:"pdftotextEnabled"`
	SummaryWindowChars        int    `yaml:"summaryWindowChars"`
	SearchMaxResults          int    `yaml:"searchMaxResults"`
	AnswerMaxChunks           int    `yaml:"answerMaxChunks"`
	GenerationRetryAttempts   int    `yaml:"generationRetryAttempts"`
	GenerationRetryIntervalMs int    `yaml:"generationRetryIntervalMs"`

	GeminiAPIKey         string `yaml:"geminiAPIKey"`
	EmbeddingProvider    string `yaml:"embeddingProvider"`
	EmbeddingBaseURL     string `yaml:"embeddingBaseURL"`
	EmbeddingAPIKey      string `yaml:"embeddingAPIKey"`
	EmbeddingModel       string `yaml:"embeddingModel"`
	EmbeddingDim         int    `yaml:"embeddingDim"`
	EmbeddingBatchSize   int    `yaml:"embeddingBatchSize"`
	EmbeddingConcurrency int    `yaml:"embeddingConcurrency"`
	GenerationProvider   string `yaml:"generationProvider"`
	GenerationBaseURL    string `yaml:"generationBaseURL"`
	GenerationAPIKey     string `yaml:"generationAPIKey"`
	GenerationModel      string `yaml:"generationModel"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overrides file values with environment variables.
func applyEnv(cfg *FileConfig) {
	setString(&cfg.Port, "PORT")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.LogsDir, "LOGS_DIR")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.StoreBackend, "CONTENT_STORE_BACKEND")
	setString(&cfg.IndexBackend, "CONTENT_INDEX_BACKEND")
	setString(&cfg.ChromemPath, "CONTENT_CHROMEM_PATH")
	setInt(&cfg.ChunkSize, "CONTENT_CHUNK_SIZE")
	setInt(&cfg.ChunkOverlap, "CONTENT_CHUNK_OVERLAP")
	setString(&cfg.QueueBackend, "CONTENT_QUEUE_BACKEND")
	setInt(&cfg.QueueConcurrency, "CONTENT_QUEUE_CONCURRENCY")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RedisPassword, "REDIS_PASSWORD")
	setString(&cfg.AMQPURL, "AMQP_URL")
	setString(&cfg.BlobBackend, "CONTENT_BLOB_BACKEND")
	setString(&cfg.BlobDir, "CONTENT_BLOB_DIR")
	setString(&cfg.MinioEndpoint, "MINIO_ENDPOINT")
	setString(&cfg.MinioAccessKey, "MINIO_ACCESS_KEY")
	setString(&cfg.MinioSecretKey, "MINIO_SECRET_KEY")
	setString(&cfg.MinioBucket, "MINIO_BUCKET")
	if v := os.Getenv("MINIO_USE_SSL"); v == "true" {
		cfg.MinioUseSSL = true
	}
	setString(&cfg.DOIResolverURL, "CONTENT_DOI_RESOLVER_URL")
	setInt(&cfg.AnswerMaxChunks, "CONTENT_ANSWER_MAX_CHUNKS")
	if v := os.Getenv("CONTENT_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	setString(&cfg.GeminiAPIKey, "GEMINI_API_KEY")
	setString(&cfg.EmbeddingProvider, "EMBEDDING_PROVIDER")
	setString(&cfg.EmbeddingBaseURL, "EMBEDDING_BASE_URL")
	setString(&cfg.EmbeddingAPIKey, "EMBEDDING_API_KEY")
	setString(&cfg.EmbeddingModel, "EMBEDDING_MODEL")
	setInt(&cfg.EmbeddingDim, "EMBEDDING_DIM")
	setString(&cfg.GenerationProvider, "GENERATION_PROVIDER")
	setString(&cfg.GenerationBaseURL, "GENERATION_BASE_URL")
	setString(&cfg.GenerationAPIKey, "GENERATION_API_KEY")
	setString(&cfg.GenerationModel, "GENERATION_MODEL")
}

func applyDefaults(cfg *FileConfig) {
	lower := func(s *string, def string) {
		*s = strings.ToLower(strings.TrimSpace(*s))
		if *s == "" {
			*s = def
		}
	}
	lower(&cfg.StoreBackend, "postgres")
	lower(&cfg.IndexBackend, "chromem")
	lower(&cfg.QueueBackend, "pool")
	lower(&cfg.BlobBackend, "none")
	lower(&cfg.EmbeddingProvider, "ollama")
	lower(&cfg.GenerationProvider, "gemini")
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.ChunkOverlap == 0 && cfg.ChunkSize > 100 {
		cfg.ChunkOverlap = 100
	}
	if cfg.QueueConcurrency <= 0 {
		cfg.QueueConcurrency = 4
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 50 << 20
	}
	if cfg.ArchiveURLExpirySeconds <= 0 {
		cfg.ArchiveURLExpirySeconds = 900
	}
	if cfg.AnswerMaxChunks <= 0 {
		cfg.AnswerMaxChunks = 200
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.ChunkSize <= 0 {
		return errors.New("config: chunkSize must be > 0")
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		return errors.New("config: chunkOverlap must be >= 0 and < chunkSize")
	}

	switch cfg.StoreBackend {
	case "memory":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return errors.New("config: databaseURL is required for storeBackend postgres (set in config.yaml or DATABASE_URL)")
		}
	default:
		return fmt.Errorf("config: unknown storeBackend %q (postgres|memory)", cfg.StoreBackend)
	}

	switch cfg.IndexBackend {
	case "chromem":
	case "pgvector":
		if cfg.DatabaseURL == "" {
			return errors.New("config: databaseURL is required for indexBackend pgvector")
		}
		if cfg.EmbeddingDim <= 0 {
			return errors.New("config: embeddingDim is required for indexBackend pgvector")
		}
	default:
		return fmt.Errorf("config: unknown indexBackend %q (chromem|pgvector)", cfg.IndexBackend)
	}

	switch cfg.QueueBackend {
	case "pool":
	case "redis":
		if cfg.RedisAddr == "" {
			return errors.New("config: redisAddr is required for queueBackend redis (set in config.yaml or REDIS_ADDR)")
		}
	case "amqp":
		if cfg.AMQPURL == "" {
			return errors.New("config: amqpURL is required for queueBackend amqp (set in config.yaml or AMQP_URL)")
		}
	default:
		return fmt.Errorf("config: unknown queueBackend %q (pool|redis|amqp)", cfg.QueueBackend)
	}

	switch cfg.BlobBackend {
	case "none":
	case "file":
		if cfg.BlobDir == "" {
			return errors.New("config: blobDir is required for blobBackend file")
		}
	case "minio":
		if cfg.MinioEndpoint == "" || cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" || cfg.MinioBucket == "" {
			return errors.New("config: minioEndpoint, minioAccessKey, minioSecretKey and minioBucket are required for blobBackend minio")
		}
	default:
		return fmt.Errorf("config: unknown blobBackend %q (none|file|minio)", cfg.BlobBackend)
	}

	if err := validateProvider("embedding", cfg.EmbeddingProvider, cfg.EmbeddingModel, cfg.GeminiAPIKey); err != nil {
		return err
	}
	if cfg.EmbeddingProvider == "ollama" && cfg.EmbeddingDim <= 0 {
		return errors.New("config: embeddingDim is required for embeddingProvider ollama")
	}
	return validateProvider("generation", cfg.GenerationProvider, cfg.GenerationModel, cfg.GeminiAPIKey)
}

func validateProvider(kind, provider, model, geminiKey string) error {
	switch provider {
	case "gemini":
		if geminiKey == "" {
			return fmt.Errorf("config: geminiAPIKey is required for %sProvider gemini (set in config.yaml or GEMINI_API_KEY)", kind)
		}
	case "ollama", "openai":
	default:
		return fmt.Errorf("config: unknown %sProvider %q (gemini|ollama|openai)", kind, provider)
	}
	if strings.TrimSpace(model) == "" {
		return fmt.Errorf("config: %sModel is required", kind)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
