// Package commands implements the tenantpal subcommands and wires the
// process-wide collaborators they share.
package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cloo-solutions/tenantpal/internal/agent"
	"github.com/cloo-solutions/tenantpal/internal/config"
	"github.com/cloo-solutions/tenantpal/internal/crew"
	"github.com/cloo-solutions/tenantpal/internal/database"
	"github.com/cloo-solutions/tenantpal/internal/loader"
	"github.com/cloo-solutions/tenantpal/internal/localstore"
	"github.com/cloo-solutions/tenantpal/internal/logger"
	"github.com/cloo-solutions/tenantpal/internal/openai"
	"github.com/cloo-solutions/tenantpal/internal/pipeline"
	"github.com/cloo-solutions/tenantpal/internal/repository"
	"github.com/cloo-solutions/tenantpal/internal/resilience"
	"github.com/cloo-solutions/tenantpal/internal/service"
	"github.com/cloo-solutions/tenantpal/internal/storage"
	"github.com/cloo-solutions/tenantpal/internal/telemetry"
)

// App carries configuration and the logger from the root command to every
// subcommand. Collaborators are built on demand so commands that do not need
// the capability handle never require a credential.
type App struct {
	Config *config.Config
	Logger *zap.Logger

	shutdownTelemetry func()
}

// Setup loads configuration and builds the logger and telemetry.
func (a *App) Setup(logLevel string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	log, err := logger.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return err
	}

	shutdown, err := telemetry.Init(telemetry.Config{
		DSN:              cfg.SentryDSN,
		Environment:      cfg.Env,
		TracesSampleRate: cfg.SentrySampleRate,
	}, log)
	if err != nil {
		return err
	}

	a.Config = cfg
	a.Logger = log
	a.shutdownTelemetry = shutdown
	return nil
}

// Execute runs root and closes the app afterwards, including when the
// command returned an error.
func (a *App) Execute(ctx context.Context, root *cobra.Command) error {
	defer a.Close()
	return root.ExecuteContext(ctx)
}

// Close flushes telemetry and the logger.
func (a *App) Close() {
	if a.shutdownTelemetry != nil {
		a.shutdownTelemetry()
		a.shutdownTelemetry = nil
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
}

// OpenIndex selects the vector index backend from the storage path.
func (a *App) OpenIndex(ctx context.Context, storagePath string) (service.VectorIndex, error) {
	if config.IsPostgresURL(storagePath) {
		if err := repository.Migrate(storagePath, a.Logger); err != nil {
			return nil, err
		}
		pool, err := database.NewPool(ctx, database.Config{URL: storagePath, MaxConns: a.Config.DBMaxConns})
		if err != nil {
			return nil, err
		}
		a.Logger.Debug("using pgvector index")
		return repository.NewCollectionRepository(pool), nil
	}

	idx, err := localstore.Open(storagePath)
	if err != nil {
		return nil, err
	}
	a.Logger.Debug("using file index", zap.String("path", idx.Path()))
	return idx, nil
}

// Capability builds the single embedding and reasoning handle.
func (a *App) Capability() (*openai.Client, error) {
	return openai.NewClientFromConfig(openai.Config{
		APIKey:              a.Config.OpenAIAPIKey,
		BaseURL:             a.Config.OpenAIBaseURL,
		EmbeddingModel:      a.Config.EmbeddingModel,
		EmbeddingDimensions: a.Config.EmbeddingDimensions,
		ChatModel:           a.Config.ChatModel,
		EmbeddingTimeout:    a.Config.EmbeddingTimeout,
		ChatTimeout:         a.Config.LLMTimeout,
	})
}

// Loader builds a document loader. The S3 client is only created when the
// document lives in object storage or S3 is configured.
func (a *App) Loader(ctx context.Context, documentPath string) (*loader.Loader, error) {
	if !strings.HasPrefix(documentPath, "s3://") && !a.Config.HasS3() {
		return loader.New(nil, a.Logger), nil
	}
	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        a.Config.S3Endpoint,
		Region:          a.Config.S3Region,
		AccessKeyID:     a.Config.S3AccessKey,
		SecretAccessKey: a.Config.S3SecretKey,
		Bucket:          a.Config.S3Bucket,
		UsePathStyle:    a.Config.S3Endpoint != "",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	return loader.New(s3Client, a.Logger), nil
}

// CrewOptions select the grounding collection and stage concurrency.
type CrewOptions struct {
	Collection  string
	MaxParallel int
}

// Runner builds the crew runner for def. retriever may be nil to run ungrounded.
func (a *App) Runner(def *crew.Definition, client *openai.Client, retriever pipeline.Retriever, opts CrewOptions) (*pipeline.Runner, error) {
	def.WithCollection(opts.Collection)

	plan, err := def.Plan()
	if err != nil {
		return nil, err
	}

	completer := resilience.Wrap(client, resilience.Config{
		BreakerEnabled:    a.Config.BreakerEnabled,
		RequestsPerMinute: a.Config.RateLimitRPM,
	}, a.Logger)

	orch := pipeline.NewOrchestrator(
		agent.New(completer, client.DefaultModel()),
		retriever,
		pipeline.Config{MaxParallel: opts.MaxParallel, RetrievalK: a.Config.RetrievalK},
		a.Logger,
	)
	return pipeline.NewRunner(orch, plan), nil
}
