package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cloo-solutions/tenantpal/internal/api/handlers"
	"github.com/cloo-solutions/tenantpal/internal/crew"
	"github.com/cloo-solutions/tenantpal/internal/domain"
	"github.com/cloo-solutions/tenantpal/internal/jobs"
	"github.com/cloo-solutions/tenantpal/internal/openai"
	"github.com/cloo-solutions/tenantpal/internal/pipeline"
	"github.com/cloo-solutions/tenantpal/internal/server"
	"github.com/cloo-solutions/tenantpal/internal/service"
)

// ServeCmd returns the serve command
func ServeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long:  "Serves POST /api/run-crew, POST /api/search, GET /api/collections, /health and /metrics.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, app)
		},
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (default: PORT or 8080)")
	cmd.Flags().String("crew", "", "Crew YAML file (default: built-in renter crew)")
	cmd.Flags().String("storage", "", "Index directory or postgres:// URL")
	cmd.Flags().Bool("ingest", false, "Ingest DOCUMENT_PATH in the background if the collection is missing")
	cmd.Flags().Duration("ingest-interval", 30*time.Second, "Delay between background ingestion attempts")
	cmd.Flags().Int("ingest-attempts", 10, "Maximum background ingestion attempts (0 retries forever)")

	return cmd
}

func runServe(cmd *cobra.Command, app *App) error {
	ctx := cmd.Context()
	cfg := app.Config
	log := app.Logger

	port, _ := cmd.Flags().GetString("port")
	crewFile, _ := cmd.Flags().GetString("crew")
	storagePath, _ := cmd.Flags().GetString("storage")
	ingest, _ := cmd.Flags().GetBool("ingest")
	port = orDefault(port, cfg.Port)

	def, err := crew.Load(orDefault(crewFile, cfg.CrewConfig))
	if err != nil {
		return err
	}

	client, err := app.Capability()
	if err != nil {
		return err
	}

	routerCfg := server.RouterConfig{Logger: log}

	var retriever pipeline.Retriever
	index, err := app.OpenIndex(ctx, orDefault(storagePath, cfg.StoragePath))
	if err != nil {
		log.Warn("vector index unavailable, search disabled and runs ungrounded", zap.Error(err))
	} else {
		defer index.Close()
		svc := newRetriever(index, client)
		retriever = svc
		routerCfg.SearchHandler = handlers.NewSearchHandler(svc, cfg.CollectionName, cfg.RetrievalK)

		if ingest {
			worker, err := startIngestWorker(ctx, cmd, app, index, client)
			if err != nil {
				return err
			}
			defer worker.Stop()
		}
	}

	runner, err := app.Runner(def, client, retriever, CrewOptions{
		Collection:  cfg.CollectionName,
		MaxParallel: cfg.MaxParallel,
	})
	if err != nil {
		return err
	}
	routerCfg.CrewHandler = handlers.NewCrewHandler(runner)

	// A crew run makes several sequential model calls.
	writeTimeout := 3*cfg.LLMTimeout + 30*time.Second

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           server.NewRouter(routerCfg),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server exited")
	return nil
}

// startIngestWorker ingests the configured document without delaying startup.
// Queries against the collection return not found until it completes.
func startIngestWorker(ctx context.Context, cmd *cobra.Command, app *App, index service.VectorIndex, client *openai.Client) (*jobs.Worker, error) {
	cfg := app.Config
	interval, _ := cmd.Flags().GetDuration("ingest-interval")
	attempts, _ := cmd.Flags().GetInt("ingest-attempts")

	docLoader, err := app.Loader(ctx, cfg.DocumentPath)
	if err != nil {
		return nil, err
	}

	job := jobs.NewIngestJob(
		service.NewIngestor(index, docLoader, client, cfg.EmbeddingBatchSize, app.Logger),
		service.IngestRequest{
			DocumentPath: cfg.DocumentPath,
			Collection:   cfg.CollectionName,
			ChunkSize:    cfg.ChunkSize,
			ChunkOverlap: cfg.ChunkOverlap,
			Metric:       domain.SimilarityMetric(cfg.SimilarityMetric),
		},
		attempts,
		app.Logger,
	)
	worker := jobs.NewWorker(job, interval, app.Logger.Named("ingest"))
	go worker.Start(ctx)
	return worker, nil
}
