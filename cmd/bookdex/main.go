package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/kvander/bookdex/internal/ai"
	"github.com/kvander/bookdex/internal/chunksplit"
	"github.com/kvander/bookdex/internal/config"
	"github.com/kvander/bookdex/internal/db"
	"github.com/kvander/bookdex/internal/dedup"
	"github.com/kvander/bookdex/internal/detect"
	"github.com/kvander/bookdex/internal/embed"
	"github.com/kvander/bookdex/internal/embedcache"
	"github.com/kvander/bookdex/internal/filestore"
	"github.com/kvander/bookdex/internal/handler"
	"github.com/kvander/bookdex/internal/job"
	"github.com/kvander/bookdex/internal/middleware"
	"github.com/kvander/bookdex/internal/repo"
	"github.com/kvander/bookdex/internal/schedule"
	"github.com/kvander/bookdex/internal/search"
	"github.com/kvander/bookdex/internal/service"
	"github.com/kvander/bookdex/internal/task"
	"github.com/kvander/bookdex/internal/vectorindex"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "bookdex",
		Short: "bookdex ingestion and search server",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run bookdex server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Init(
				cfg.LogConfig.File,
				cfg.LogConfig.Level,
				int(cfg.LogConfig.FileCount),
				int(cfg.LogConfig.FileSize),
				int(cfg.LogConfig.KeepDays),
				cfg.LogConfig.Console,
			)
			logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

			conn, err := db.Open(cfg.Database)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			if err := db.ApplyMigrations(conn); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			return runServer(cfg, conn)
		},
	}

	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func buildEmbedder(cfg config.EmbeddingConfig) (ai.IEmbedder, error) {
	entries := make([]ai.EmbedderEntry, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		provider, err := ai.NewProvider(pc.Name, pc.Data)
		if err != nil {
			return nil, fmt.Errorf("init provider %s: %w", pc.Name, err)
		}
		entries = append(entries, ai.EmbedderEntry{
			Name:     pc.Name,
			Embedder: ai.NewEmbedder(provider, pc.Model, cfg.Dimension),
		})
	}
	embedder := ai.NewGroupEmbedder(entries)
	if embedder == nil {
		return nil, fmt.Errorf("no embedding providers configured")
	}
	return embedder, nil
}

func runServer(cfg *config.Config, conn *sql.DB) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("file_store", cfg.FileStore.Type),
		zap.Int("embedding_dimension", cfg.Embedding.Dimension),
	)

	bookRepo := repo.NewBookRepo(conn)
	chapterRepo := repo.NewChapterRepo(conn)
	chunkRepo := repo.NewChunkRepo(conn)
	cacheRepo := repo.NewEmbeddingCacheRepo(conn)

	store, err := filestore.New(cfg.FileStore)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}
	embedder, err := buildEmbedder(cfg.Embedding)
	if err != nil {
		return err
	}

	chapterIndex := vectorindex.NewPGIndex(conn, "chapters", cfg.Embedding.Dimension)
	chunkIndex := vectorindex.NewPGIndex(conn, "chunks", cfg.Embedding.Dimension)
	pipeline := embed.NewPipeline(embedder, cacheRepo, embed.Options{
		TokenLimit:  cfg.Embedding.ProviderTokenLimit,
		Concurrency: cfg.Embedding.Concurrency,
		MaxAttempts: cfg.Embedding.MaxAttempts,
	})
	dedupDetector := dedup.NewDetector(chapterRepo, chapterIndex, dedup.Config{
		Threshold:      cfg.Dedup.SimilarityThreshold,
		CandidateLimit: cfg.Search.CandidateLimit,
	})
	splitter := chunksplit.New(chunksplit.Config{
		WordThreshold:  cfg.Embedding.ChunkWordThreshold,
		TargetTokens:   cfg.Embedding.ChunkTargetTokens,
		OverlapTokens:  cfg.Embedding.ChunkOverlapTokens,
		HardTokenLimit: cfg.Embedding.ProviderTokenLimit,
	})
	dispatcher := task.NewDispatcher(cfg.WorkerCount, 0)

	ingestService := service.NewIngestService(service.IngestDeps{
		Books:        bookRepo,
		Chapters:     chapterRepo,
		Chunks:       chunkRepo,
		Store:        store,
		Detector:     detect.NewDetector(),
		Splitter:     splitter,
		Pipeline:     pipeline,
		Dedup:        dedupDetector,
		ChapterIndex: chapterIndex,
		ChunkIndex:   chunkIndex,
		Dispatcher:   dispatcher,
		TypeWeights:  cfg.Dedup.TypeWeights,
	})
	queryEmbedder := embedcache.WrapLruCacheToEmbedder(embedder, 4096, 2*time.Hour)
	ranker := search.NewRanker(search.Weights{
		Vector:   cfg.Search.VectorWeight,
		Text:     cfg.Search.TextWeight,
		Metadata: cfg.Search.MetaWeight,
	})
	searchService := service.NewSearchService(chapterRepo, chunkRepo, chapterIndex, queryEmbedder, ranker, cfg.Search.CandidateLimit)

	deps := handler.RouterDeps{
		Books:  handler.NewBookHandler(ingestService, cfg.MaxUploadBytes),
		Search: handler.NewSearchHandler(searchService),
		Files:  handler.NewFileHandler(store),
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSAllowlist),
			middleware.RateLimit(time.Duration(cfg.RateLimitSeconds)*time.Second),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dispatcher.Start(ctx)

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewEmbeddingSweepJob(ingestService, 200), cfg.Schedule.EmbeddingSweep); err != nil {
		return err
	}
	if err := scheduler.AddJob(job.NewDuplicateSweepJob(ingestService, 50), cfg.Schedule.DuplicateSweep); err != nil {
		return err
	}
	if err := scheduler.AddJob(job.NewEmbeddingCacheCleanupJob(cacheRepo, cfg.Embedding.CacheKeepDays), cfg.Schedule.CacheCleanup); err != nil {
		return err
	}
	scheduler.Start(ctx)

	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	scheduler.Stop()
	dispatcher.Stop()
	return nil
}
