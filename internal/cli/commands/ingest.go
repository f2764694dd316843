package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cloo-solutions/tenantpal/internal/domain"
	"github.com/cloo-solutions/tenantpal/internal/service"
)

type ingestFlags struct {
	document     string
	storage      string
	collection   string
	chunkSize    int
	chunkOverlap int
	metric       string
	recreate     bool
}

// IngestCmd creates the ingest command.
func IngestCmd(app *App) *cobra.Command {
	var f ingestFlags

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Chunk, embed and index a reference document",
		Long: `Loads a PDF or text document (local path or s3://bucket/key), splits it into
overlapping chunks, embeds them and stores them as one collection.
Ingesting into an existing collection does nothing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := app.Config

			req := service.IngestRequest{
				DocumentPath: orDefault(f.document, cfg.DocumentPath),
				Collection:   orDefault(f.collection, cfg.CollectionName),
				ChunkSize:    cfg.ChunkSize,
				ChunkOverlap: cfg.ChunkOverlap,
				Metric:       domain.SimilarityMetric(orDefault(f.metric, cfg.SimilarityMetric)),
			}
			if cmd.Flags().Changed("chunk-size") {
				req.ChunkSize = f.chunkSize
			}
			if cmd.Flags().Changed("chunk-overlap") {
				req.ChunkOverlap = f.chunkOverlap
			}

			client, err := app.Capability()
			if err != nil {
				return err
			}
			index, err := app.OpenIndex(ctx, orDefault(f.storage, cfg.StoragePath))
			if err != nil {
				return err
			}
			defer index.Close()

			docLoader, err := app.Loader(ctx, req.DocumentPath)
			if err != nil {
				return err
			}

			if f.recreate {
				if err := dropCollection(ctx, index, req.Collection, app.Logger); err != nil {
					return err
				}
			}

			ingestor := service.NewIngestor(index, docLoader, client, cfg.EmbeddingBatchSize, app.Logger)
			result, err := ingestor.Ingest(ctx, req)
			if err != nil {
				return fmt.Errorf("ingestion failed: %w", err)
			}
			printIngestResult(cmd.OutOrStdout(), req, result)
			return nil
		},
	}

	cmd.Flags().StringVar(&f.document, "document", "", "Document path or s3:// URI (default: DOCUMENT_PATH)")
	cmd.Flags().StringVar(&f.storage, "storage", "", "Index directory or postgres:// URL (default: STORAGE_PATH)")
	cmd.Flags().StringVar(&f.collection, "collection", "", "Collection name (default: COLLECTION_NAME)")
	cmd.Flags().IntVar(&f.chunkSize, "chunk-size", 1000, "Chunk size in characters")
	cmd.Flags().IntVar(&f.chunkOverlap, "chunk-overlap", 200, "Overlap between consecutive chunks in characters")
	cmd.Flags().StringVar(&f.metric, "metric", "", "Similarity metric: cosine, l2, inner_product")
	cmd.Flags().BoolVar(&f.recreate, "recreate", false, "Delete the collection first and ingest again")

	return cmd
}

func dropCollection(ctx context.Context, index service.VectorIndex, name string, log *zap.Logger) error {
	err := index.DeleteCollection(ctx, name)
	if err != nil && !errors.Is(err, domain.ErrCollectionNotFound) {
		return fmt.Errorf("failed to delete collection %q: %w", name, err)
	}
	if err == nil {
		log.Info("deleted existing collection", zap.String("collection", name))
	}
	return nil
}

func printIngestResult(w io.Writer, req service.IngestRequest, result *domain.IngestResult) {
	if result.Skipped() {
		fmt.Fprintf(w, "Collection %q already exists; skipping ingestion.\n", result.Collection)
		return
	}
	fmt.Fprintf(w, "Ingested %s into collection %q\n", req.DocumentPath, result.Collection)
	fmt.Fprintf(w, "  pages:  %d\n", result.PageCount)
	fmt.Fprintf(w, "  chunks: %d (size %d, overlap %d)\n", result.ChunkCount, req.ChunkSize, req.ChunkOverlap)
}
