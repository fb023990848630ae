package main

import (
	"time"

	"github.com/Allan-at-NTU/udemy-recs/internal/auth"
	"github.com/Allan-at-NTU/udemy-recs/internal/cache"
	"github.com/Allan-at-NTU/udemy-recs/internal/catalog"
	"github.com/Allan-at-NTU/udemy-recs/internal/engine"
	"github.com/Allan-at-NTU/udemy-recs/internal/explain"
	"github.com/Allan-at-NTU/udemy-recs/internal/history"
	"github.com/Allan-at-NTU/udemy-recs/internal/logger"
	"github.com/Allan-at-NTU/udemy-recs/internal/planner"
	"github.com/Allan-at-NTU/udemy-recs/internal/server"
	"github.com/Allan-at-NTU/udemy-recs/pkg/llm"

	"github.com/joho/godotenv"
)

func main() {
	// .env 用于本地开发时注入 API Key，不存在也不报错
	_ = godotenv.Load()

	cfg := InitServerConfig()
	logger.SetDebug(cfg.Server.Debug)

	// 1. 加载 LLM 配置
	llmCfg, err := loadLLMConfig(cfg.Paths.LLM)
	if err != nil {
		logger.Fatal("Failed to load llm config: %v", err)
	}

	// 2. 加载语料快照
	// 任何产物缺失或损坏都是致命错误：不提供部分服务
	cat, err := catalog.Load(cfg.Paths.Artifacts)
	if err != nil {
		logger.Fatal("Failed to load catalog: %v", err)
	}
	defer cat.Close()
	logger.Info("Catalog loaded: %d courses, dim=%d", cat.Size(), cat.Index().Dim())

	// 3. 外部协作方客户端
	embedder := llm.NewEmbeddingClient(llmCfg.Embedding.Endpoint, llmCfg.Embedding.APIKey, llmCfg.Embedding.Model)
	chatClient := llm.NewOpenAIClient(llmCfg.Chat.Endpoint, llmCfg.Chat.APIKey, llmCfg.Chat.Model)
	explainer := explain.NewLLMExplainer(chatClient)

	// 4. 检索引擎
	eng := engine.New(cat, embedder, explainer, engine.Options{
		Weights:            cfg.Retrieval.Weights,
		Lambda:             cfg.Retrieval.Lambda,
		PairwiseDiversity:  cfg.Retrieval.PairwiseDiversity,
		DefaultPoolSize:    cfg.Retrieval.PoolSize,
		EmbedRetries:       cfg.Retrieval.EmbedRetries,
		ExplainConcurrency: cfg.Retrieval.ExplainConcurrency,
		ExplainTimeout:     time.Duration(cfg.Retrieval.ExplainTimeoutSeconds) * time.Second,
		MaxConcurrent:      cfg.Retrieval.MaxConcurrent,
	})

	// 5. 学习计划构建器
	pl, err := planner.New(cfg.Paths.Roles, eng)
	if err != nil {
		logger.Fatal("Failed to init planner: %v", err)
	}

	// 6. 客户端鉴权
	provider, err := auth.NewStaticProvider(cfg.Paths.Clients)
	if err != nil {
		logger.Fatal("Failed to init auth provider: %v", err)
	}

	// 7. 推荐历史
	historyStore, err := history.NewFileStore(cfg.Paths.History)
	if err != nil {
		logger.Fatal("Failed to init history store: %v", err)
	}

	// 8. 可选的响应缓存
	respCache, err := cache.New(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword,
		time.Duration(cfg.Cache.TTLSeconds)*time.Second)
	if err != nil {
		logger.Fatal("Failed to init cache: %v", err)
	}
	if respCache != nil {
		defer respCache.Close()
		logger.Info("Response cache enabled at %s", cfg.Cache.RedisAddr)
	}

	// 9. 启动 HTTP Server（含历史清理和任务回收的后台维护）
	srv := server.NewServer(eng, pl, provider, historyStore, respCache, server.MaintenanceOptions{
		Interval:             time.Duration(cfg.Maintenance.IntervalMinutes) * time.Minute,
		HistoryRetentionDays: cfg.Maintenance.HistoryRetentionDays,
		TaskMaxAge:           time.Duration(cfg.Maintenance.TaskMaxAgeMinutes) * time.Minute,
	})
	logger.Info("Starting HTTP server on port %s...", cfg.Server.Port)
	if err := srv.Run(":" + cfg.Server.Port); err != nil {
		logger.Fatal("Server failed: %v", err)
	}
}
