package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/tenantpal/internal/domain"
	"github.com/cloo-solutions/tenantpal/internal/openai"
	"github.com/cloo-solutions/tenantpal/internal/service"
)

func newRetriever(index service.VectorIndex, client *openai.Client) *service.RetrievalService {
	return service.NewRetrievalService(index, client)
}

// QueryCmd creates the query command.
func QueryCmd(app *App) *cobra.Command {
	var (
		collection string
		storage    string
		k          int
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Search an ingested collection",
		Long:  "Embeds the query text and prints the most similar passages of a collection.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := app.Config

			client, err := app.Capability()
			if err != nil {
				return err
			}
			index, err := app.OpenIndex(ctx, orDefault(storage, cfg.StoragePath))
			if err != nil {
				return err
			}
			defer index.Close()

			name := orDefault(collection, cfg.CollectionName)
			results, err := newRetriever(index, client).Query(ctx, name, strings.Join(args, " "), orDefaultInt(k, cfg.RetrievalK))
			if err != nil {
				return err
			}

			if outputJSON {
				return printResultsJSON(cmd.OutOrStdout(), results)
			}
			printResults(cmd.OutOrStdout(), name, results)
			return nil
		},
	}

	cmd.Flags().StringVarP(&collection, "collection", "c", "", "Collection name (default: COLLECTION_NAME)")
	cmd.Flags().StringVar(&storage, "storage", "", "Index directory or postgres:// URL (default: STORAGE_PATH)")
	cmd.Flags().IntVarP(&k, "k", "k", 0, "Number of passages (default: RETRIEVAL_K)")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "Output as JSON")

	return cmd
}

type passageJSON struct {
	Rank       int     `json:"rank"`
	Score      float64 `json:"score"`
	Source     string  `json:"source"`
	Page       int     `json:"page"`
	ChunkIndex int     `json:"chunk_index"`
	Content    string  `json:"content"`
}

func printResultsJSON(w io.Writer, results []domain.QueryResult) error {
	out := make([]passageJSON, 0, len(results))
	for i, r := range results {
		out = append(out, passageJSON{
			Rank:       i + 1,
			Score:      r.Score,
			Source:     r.Metadata.Source,
			Page:       r.Metadata.Page,
			ChunkIndex: r.Metadata.ChunkIndex,
			Content:    r.Content,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printResults(w io.Writer, collection string, results []domain.QueryResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}

	fmt.Fprintf(w, "Found %d passages in %q:\n\n", len(results), collection)
	for i, r := range results {
		fmt.Fprintf(w, "%d. %s, page %d (%.3f)\n", i+1, r.Metadata.Source, r.Metadata.Page, r.Score)
		content := strings.Join(strings.Fields(r.Content), " ")
		if len([]rune(content)) > 300 {
			content = string([]rune(content)[:297]) + "..."
		}
		fmt.Fprintf(w, "   %s\n", content)
		if i < len(results)-1 {
			fmt.Fprintln(w)
		}
	}
}
