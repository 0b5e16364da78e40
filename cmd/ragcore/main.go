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

	"github.com/xxxsen/ragcore/internal/ai"
	"github.com/xxxsen/ragcore/internal/config"
	"github.com/xxxsen/ragcore/internal/db"
	"github.com/xxxsen/ragcore/internal/embedcache"
	"github.com/xxxsen/ragcore/internal/handler"
	"github.com/xxxsen/ragcore/internal/index"
	"github.com/xxxsen/ragcore/internal/job"
	"github.com/xxxsen/ragcore/internal/middleware"
	"github.com/xxxsen/ragcore/internal/repo"
	"github.com/xxxsen/ragcore/internal/schedule"
	"github.com/xxxsen/ragcore/internal/service"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "ragcore",
		Short: "retrieval-augmented response engine",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run ragcore server",
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

			database, err := db.Open(cfg.Database)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			if err := db.ApplyMigrations(database); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			return runServer(cfg, database)
		},
	}

	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func buildGenerator(cfg config.AIConfig) (ai.IGenerator, error) {
	entries := make([]ai.GeneratorEntry, 0, len(cfg.Generators))
	for _, item := range cfg.Generators {
		provider, err := ai.NewProvider(item.Provider, item.Data)
		if err != nil {
			return nil, fmt.Errorf("init generator %s: %w", item.Provider, err)
		}
		entries = append(entries, ai.GeneratorEntry{
			Name:      item.Provider,
			Generator: ai.NewGenerator(provider, cfg.GenerateModel),
		})
	}
	return ai.NewGroupGenerator(entries), nil
}

func buildEmbedder(cfg config.AIConfig, cacheRepo *repo.EmbeddingCacheRepo) (ai.IEmbedder, error) {
	entries := make([]ai.EmbedderEntry, 0, len(cfg.Embedders))
	for _, item := range cfg.Embedders {
		provider, err := ai.NewEmbedProvider(item.Provider, item.Data)
		if err != nil {
			return nil, fmt.Errorf("init embedder %s: %w", item.Provider, err)
		}
		entries = append(entries, ai.EmbedderEntry{
			Name:     item.Provider,
			Embedder: ai.NewEmbedder(provider, cfg.EmbedModel),
		})
	}
	embedder := ai.NewGroupEmbedder(entries)
	embedder = embedcache.WrapDBCacheToEmbedder(embedder, cacheRepo)
	embedder = embedcache.WrapLruCacheToEmbedder(embedder, 2048, 10*time.Minute)
	return embedder, nil
}

func runServer(cfg *config.Config, database *sql.DB) error {
	ctx := context.Background()
	logutil.GetLogger(ctx).Info("starting server", zap.Int("port", cfg.Port))

	chunkRepo := repo.NewChunkRepo(database)
	vectorRepo := repo.NewVectorRepo(database)
	queryRepo := repo.NewQueryRepo(database)
	feedbackRepo := repo.NewFeedbackRepo(database)
	policyRepo := repo.NewPolicyRepo(database)
	cacheRepo := repo.NewEmbeddingCacheRepo(database)

	generator, err := buildGenerator(cfg.AI)
	if err != nil {
		return err
	}
	embedder, err := buildEmbedder(cfg.AI, cacheRepo)
	if err != nil {
		return err
	}
	gateway := ai.NewManager(generator, embedder, ai.ManagerConfig{
		Timeout:       cfg.AI.Timeout,
		MaxInputChars: cfg.AI.MaxInputChars,
	})

	idx := index.NewManager(cfg.Index.Dimension, cfg.Index.MergeThreshold, vectorRepo)
	if err := idx.Load(ctx); err != nil {
		return fmt.Errorf("load vector index: %w", err)
	}
	logutil.GetLogger(ctx).Info("vector index loaded", zap.Int("live_vectors", idx.LiveCount()))

	feedbackService := service.NewFeedbackService(feedbackRepo, queryRepo)
	if err := feedbackService.Load(ctx); err != nil {
		return fmt.Errorf("load feedback aggregates: %w", err)
	}
	policyService := service.NewPolicyService(policyRepo, feedbackRepo, cfg.Policy, cfg.Reinforce)
	if err := policyService.Init(ctx); err != nil {
		return fmt.Errorf("init policy: %w", err)
	}
	queryService := service.NewQueryService(chunkRepo, queryRepo, policyService, idx, gateway, cfg.Query)
	ingestService := service.NewIngestService(chunkRepo, idx, ai.NewChunker(), gateway)

	deps := handler.RouterDeps{
		Queries:       handler.NewQueryHandler(queryService),
		Feedback:      handler.NewFeedbackHandler(feedbackService),
		Policies:      handler.NewPolicyHandler(policyService),
		Sources:       handler.NewSourceHandler(ingestService),
		Index:         handler.NewIndexHandler(idx),
		JWTSecret:     []byte(cfg.AdminJWTSecret),
		RateLimitStep: time.Duration(cfg.Query.RateLimitMS) * time.Millisecond,
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.CORSAllowlist),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	jobs := []struct {
		job  schedule.Job
		spec string
	}{
		{job.NewReinforceJob(policyService), cfg.Reinforce.Cron},
		{job.NewIndexRebuildJob(idx), cfg.Jobs.RebuildCron},
		{job.NewConsistencyAuditJob(ingestService), cfg.Jobs.AuditCron},
		{job.NewEmbeddingBackfillJob(ingestService), cfg.Jobs.BackfillCron},
		{job.NewEmbeddingCacheCleanupJob(cacheRepo, cfg.AI.CacheMaxAge), cfg.Jobs.CacheCleanupCron},
	}
	for _, item := range jobs {
		if err := scheduler.AddJob(item.job, item.spec); err != nil {
			return fmt.Errorf("schedule %s: %w", item.job.Name(), err)
		}
	}
	scheduler.Start(runCtx)
	defer scheduler.Stop()

	logutil.GetLogger(ctx).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(ctx).Error("server error", zap.Error(err))
		}
	}()

	<-runCtx.Done()
	logutil.GetLogger(ctx).Info("server stopping...")
	return nil
}
