package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Every variable may be set as TENANTPAL_<NAME> or plain <NAME>; the
// prefixed form wins.
type Config struct {
	Env      string `envconfig:"ENV" default:"local"`
	LogLevel string `envconfig:"LOG_LEVEL"`
	Port     string `envconfig:"PORT" default:"8080"`

	OpenAIAPIKey        string        `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL       string        `envconfig:"OPENAI_BASE_URL"`
	ChatModel           string        `envconfig:"CHAT_MODEL" default:"gpt-4o-mini"`
	EmbeddingModel      string        `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDimensions int           `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`
	EmbeddingBatchSize  int           `envconfig:"EMBEDDING_BATCH_SIZE" default:"64"`
	LLMTimeout          time.Duration `envconfig:"LLM_TIMEOUT" default:"120s"`
	EmbeddingTimeout    time.Duration `envconfig:"EMBEDDING_TIMEOUT" default:"60s"`

	StoragePath      string `envconfig:"STORAGE_PATH" default:"./data/vectorstore"`
	CollectionName   string `envconfig:"COLLECTION_NAME" default:"california_tenant_guide"`
	DocumentPath     string `envconfig:"DOCUMENT_PATH" default:"knowledge/California-Tenants-Guide.pdf"`
	ChunkSize        int    `envconfig:"CHUNK_SIZE" default:"1000"`
	ChunkOverlap     int    `envconfig:"CHUNK_OVERLAP" default:"200"`
	SimilarityMetric string `envconfig:"SIMILARITY_METRIC" default:"cosine"`
	RetrievalK       int    `envconfig:"RETRIEVAL_K" default:"4"`
	DBMaxConns       int32  `envconfig:"DB_MAX_CONNS" default:"10"`

	CrewConfig  string `envconfig:"CREW_CONFIG"`
	MaxParallel int    `envconfig:"MAX_PARALLEL" default:"3"`

	BreakerEnabled bool `envconfig:"BREAKER_ENABLED" default:"false"`
	RateLimitRPM   int  `envconfig:"RATE_LIMIT_RPM" default:"0"`

	SentryDSN        string  `envconfig:"SENTRY_DSN"`
	SentrySampleRate float64 `envconfig:"SENTRY_TRACES_SAMPLE_RATE" default:"1.0"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"tenantpal-documents"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("TENANTPAL", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

// HasS3 reports whether an S3-compatible endpoint is configured. Plain AWS
// with ambient credentials needs only the region, so the endpoint alone
// does not decide it.
func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" || (c.S3AccessKey != "" && c.S3SecretKey != "")
}

func (c *Config) HasOpenAI() bool {
	return strings.TrimSpace(c.OpenAIAPIKey) != ""
}

func (c *Config) HasSentry() bool {
	return c.SentryDSN != ""
}

// UsesPostgres reports whether StoragePath selects the pgvector index.
func (c *Config) UsesPostgres() bool {
	return IsPostgresURL(c.StoragePath)
}

// IsPostgresURL reports whether path is a postgres connection URL rather
// than a directory.
func IsPostgresURL(path string) bool {
	return strings.HasPrefix(path, "postgres://") || strings.HasPrefix(path, "postgresql://")
}
