// Command dirc-ingest is a thin demonstration binary that wires the
// ingestion pipeline and retrieval service together for manual, local
// operation. It is not a supported API surface; it exists only so the
// pieces can be exercised end-to-end outside of tests.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dirc-core/internal/embedding"
	"dirc-core/internal/indexing"
	"dirc-core/internal/lock"
	"dirc-core/internal/metrics"
	"dirc-core/internal/pipeline"
	"dirc-core/internal/rerank"
	"dirc-core/internal/retrieval"
	"dirc-core/internal/store/postgres"
	"dirc-core/internal/store/vector"
)

type nullExtractor struct{}

func (nullExtractor) Extract(_ context.Context, fileID string) (string, int, error) {
	return "", 0, fmt.Errorf("dirc-ingest: no extractor wired for %q; supply one via your own main", fileID)
}

func buildOrchestrator(ctx context.Context, logger *zap.Logger, databaseURL, ollamaURL, redisAddr string, dimensions int) (*indexing.Orchestrator, *retrieval.Service, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}

	relational := postgres.New(pool)
	if err := relational.EnsureSchema(ctx); err != nil {
		return nil, nil, err
	}

	vectors := vector.New(pool, dimensions)
	if err := vectors.EnsureSchema(ctx); err != nil {
		return nil, nil, err
	}

	var embedder embedding.Provider = embedding.NewOllamaProvider(ollamaURL, "nomic-embed-text", dimensions)
	var locker lock.Locker = lock.NewSemaphoreLocker()

	if redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: redisAddr})
		embedder = embedding.NewCachedProvider(embedder, client, "dirc:emb:")
		locker = lock.NewRedisLocker(client, "dirc:lock:", 0)
	}

	orchestrator := indexing.New(relational, vectors, embedder, locker, logger)
	retrievalSvc := retrieval.New(embedder, vectors, relational, rerank.Noop{})

	return orchestrator, retrievalSvc, nil
}

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()
	metrics.MustRegister(nil)

	var databaseURL, ollamaURL, redisAddr string
	var dimensions int

	root := &cobra.Command{
		Use:   "dirc-ingest",
		Short: "Demonstration wiring for the document ingestion and retrieval core.",
	}
	root.PersistentFlags().StringVar(&databaseURL, "database-url", os.Getenv("DIRC_DATABASE_URL"), "Postgres connection string")
	root.PersistentFlags().StringVar(&ollamaURL, "ollama-url", "http://localhost:11434", "Ollama embedding server base URL")
	root.PersistentFlags().StringVar(&redisAddr, "redis-addr", "", "optional Redis address for the embedding cache and distributed lock")
	root.PersistentFlags().IntVar(&dimensions, "dimensions", 768, "embedding vector width")

	ingestCmd := &cobra.Command{
		Use:   "ingest [file-id] [document-id]",
		Short: "Run a single document through the pipeline (requires an Extractor wired in your own main).",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			fileID := args[0]
			documentID := uuid.NewString()
			if len(args) == 2 {
				documentID = args[1]
			}
			orchestrator, _, err := buildOrchestrator(ctx, logger, databaseURL, ollamaURL, redisAddr, dimensions)
			if err != nil {
				return err
			}
			svc := pipeline.New(nullExtractor{}, orchestrator, logger)
			resp := svc.ProcessDocument(ctx, documentID, fileID, pipeline.DefaultOptions())
			if resp.Err != nil {
				return resp.Err
			}
			fmt.Printf("indexed %s: stage=%s stages=%d chunks=%d took=%dms\n",
				resp.DocumentID, resp.CurrentStage, len(resp.Stages), resp.ChunksIndexed, resp.TotalDurationMs)
			return nil
		},
	}

	searchCmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Run a hybrid search against the indexed corpus.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, retrievalSvc, err := buildOrchestrator(ctx, logger, databaseURL, ollamaURL, redisAddr, dimensions)
			if err != nil {
				return err
			}
			resp, err := retrievalSvc.SearchResponse(ctx, args[0], retrieval.DefaultOptions())
			if err != nil {
				return err
			}
			fmt.Printf("technique=%s total=%d took=%dms reranked=%v\n",
				resp.Technique, resp.TotalResults, resp.ExecutionTimeMs, resp.Reranked)
			if resp.DegradedLeg != "" {
				fmt.Printf("degraded leg: %s\n", resp.DegradedLeg)
			}
			for _, h := range resp.Results {
				fmt.Printf("%6.3f  chunk=%d  %.80s\n", h.Score, h.ChunkID, h.Text)
			}
			return nil
		},
	}

	root.AddCommand(ingestCmd, searchCmd)
	if err := root.Execute(); err != nil {
		logger.Fatal("dirc-ingest failed", zap.Error(err))
	}
}
