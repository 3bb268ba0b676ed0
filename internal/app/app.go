// Package app 根据配置装配存储、队列、检索与生成组件，供服务端和命令行共用。
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pai-docqa-go/internal/config"
	"pai-docqa-go/internal/handler"
	"pai-docqa-go/internal/pipeline"
	"pai-docqa-go/internal/repository"
	"pai-docqa-go/internal/service"
	"pai-docqa-go/internal/vectorindex"
	"pai-docqa-go/pkg/database"
	"pai-docqa-go/pkg/embedding"
	"pai-docqa-go/pkg/es"
	"pai-docqa-go/pkg/kafka"
	"pai-docqa-go/pkg/llm"
	"pai-docqa-go/pkg/log"
	"pai-docqa-go/pkg/storage"
	"pai-docqa-go/pkg/tasks"
	"pai-docqa-go/pkg/tika"
	"pai-docqa-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// App 持有装配好的组件以及关闭时需要释放的资源。
type App struct {
	Config config.Config

	Objects    storage.ObjectStore
	Docs       repository.DocumentRepository
	ChunkStore *repository.ChunkStore
	Queue      tasks.Queue
	Processor  *pipeline.Processor
	Worker     *pipeline.Worker

	Documents service.DocumentService
	Query     service.QueryService
	Themes    service.ThemeService
	Analysis  service.AnalysisService
	Chat      service.ChatService
	JWT       *token.JWTManager

	cleanupTasks []func() error
}

// Options 调整装配行为。
type Options struct {
	// Embedder 非空时替代配置中的向量化客户端。
	Embedder embedding.Client
	// LLM 非空时替代配置中的大模型客户端。
	LLM llm.Client
}

// New 按配置依次初始化各组件，任一步失败会释放已创建的资源。
func New(ctx context.Context, cfg config.Config, opts Options) (_ *App, err error) {
	a := &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	// 1. 对象存储
	if a.Objects, err = newObjectStore(ctx, cfg); err != nil {
		return nil, err
	}
	a.ChunkStore = repository.NewChunkStore(a.Objects)

	// 2. 文档状态存储
	if a.Docs, err = a.newDocumentRepository(ctx, cfg); err != nil {
		return nil, err
	}

	// 3. 摄取队列
	a.Queue = newQueue(cfg)
	a.addCleanup(a.Queue.Close)

	// 4. 抽取管道
	splitter := pipeline.NewRecursiveSplitter(
		pipeline.WithChunkSize(cfg.Extraction.ChunkSize),
		pipeline.WithChunkOverlap(cfg.Extraction.ChunkOverlap),
	)
	var ocr pipeline.TextSource
	if cfg.Tika.ServerURL != "" {
		ocr = tika.NewClient(cfg.Tika)
	}
	extractor := pipeline.NewExtractor(ocr, splitter, cfg.Extraction.MinContentChars)
	a.Processor = pipeline.NewProcessor(a.Objects, extractor, a.ChunkStore)
	a.Worker = pipeline.NewWorker(a.Queue, a.Processor, a.Docs)

	// 5. 向量化与检索
	embedder := opts.Embedder
	if embedder == nil {
		if embedder, err = a.newEmbedder(ctx, cfg); err != nil {
			return nil, err
		}
	}
	engine, err := newEngine(cfg)
	if err != nil {
		return nil, err
	}
	builder := vectorindex.NewBuilder(embedder, engine, cfg.Embedding.Concurrency)

	// 6. 大模型
	llmClient := opts.LLM
	if llmClient == nil {
		llmClient = llm.NewClient(cfg.LLM)
	}

	// 7. 业务服务
	a.Documents = service.NewDocumentService(a.Docs, a.ChunkStore, a.Objects, a.Queue)
	a.Query = service.NewQueryService(a.ChunkStore, builder, llmClient, cfg.Query.TopK)
	a.Themes = service.NewThemeService(a.ChunkStore, builder, llmClient, cfg.Theme)
	a.Analysis = service.NewAnalysisService(a.Docs, a.Query, a.Themes, cfg.Server.QueryParallel)
	a.Chat = service.NewChatService(a.Query)
	if cfg.JWT.Secret != "" {
		a.JWT = token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)
	}
	return a, nil
}

// Router 创建挂载全部 API 的 gin 引擎。
func (a *App) Router() *gin.Engine {
	return handler.NewRouter(handler.Services{
		Documents:   a.Documents,
		Analysis:    a.Analysis,
		Chat:        a.Chat,
		MaxUploadMB: a.Config.Server.MaxUploadMB,
	}, a.JWT)
}

// Close 按创建的逆序释放资源。
func (a *App) Close() error {
	var errs []error
	for i := len(a.cleanupTasks) - 1; i >= 0; i-- {
		if err := a.cleanupTasks[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.cleanupTasks = nil
	return errors.Join(errs...)
}

func (a *App) addCleanup(fn func() error) {
	a.cleanupTasks = append(a.cleanupTasks, fn)
}

func newObjectStore(ctx context.Context, cfg config.Config) (storage.ObjectStore, error) {
	switch strings.ToLower(cfg.Storage.Driver) {
	case "", "local":
		log.Infof("[App] 使用本地对象存储: %s", cfg.Storage.LocalDir)
		store, err := storage.NewLocalStore(cfg.Storage.LocalDir)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "minio":
		log.Infof("[App] 使用 MinIO 对象存储: %s/%s", cfg.MinIO.Endpoint, cfg.MinIO.BucketName)
		store, err := storage.NewMinIOStore(ctx, cfg.MinIO)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("未知的对象存储类型: %s", cfg.Storage.Driver)
	}
}

func (a *App) newDocumentRepository(ctx context.Context, cfg config.Config) (repository.DocumentRepository, error) {
	switch strings.ToLower(cfg.Store.Driver) {
	case "", "sqlite":
		db, err := database.NewSQLite(cfg.Database.SQLite.Path)
		if err != nil {
			return nil, err
		}
		a.addCleanup(db.Close)
		return repository.NewSQLiteDocumentRepository(ctx, db)
	case "mysql":
		db, err := database.NewMySQL(cfg.Database.MySQL.DSN)
		if err != nil {
			return nil, err
		}
		if sqlDB, err := db.DB(); err == nil {
			a.addCleanup(sqlDB.Close)
		}
		return repository.NewDocumentRepository(db), nil
	default:
		return nil, fmt.Errorf("未知的状态存储类型: %s", cfg.Store.Driver)
	}
}

func newQueue(cfg config.Config) tasks.Queue {
	if strings.ToLower(cfg.Queue.Driver) == "kafka" {
		log.Infof("[App] 使用 Kafka 队列, topic: %s", cfg.Kafka.Topic)
		return kafka.NewQueue(cfg.Kafka)
	}
	return tasks.NewMemoryQueue(cfg.Queue.Capacity)
}

func (a *App) newEmbedder(ctx context.Context, cfg config.Config) (embedding.Client, error) {
	client := embedding.NewClient(cfg.Embedding)
	if cfg.Database.Redis.Addr == "" {
		return client, nil
	}
	rdb, err := database.NewRedis(ctx, cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	if err != nil {
		return nil, err
	}
	a.addCleanup(rdb.Close)
	log.Infof("[App] 启用 Redis 向量缓存, TTL: %s", cfg.Embedding.CacheTTL)
	return embedding.NewCachedClient(client, rdb, cfg.Embedding.Model, cfg.Embedding.CacheTTL), nil
}

func newEngine(cfg config.Config) (vectorindex.Engine, error) {
	switch strings.ToLower(cfg.VectorIndex.Engine) {
	case "", "memory":
		return vectorindex.NewMemoryEngine(), nil
	case "elasticsearch", "es":
		client, err := es.NewClient(cfg.Elasticsearch)
		if err != nil {
			return nil, err
		}
		log.Infof("[App] 使用 Elasticsearch 向量检索, index: %s", cfg.Elasticsearch.IndexName)
		return vectorindex.NewElasticEngine(client, cfg.Elasticsearch.IndexName, cfg.Embedding.Model), nil
	default:
		return nil, fmt.Errorf("未知的向量检索引擎: %s", cfg.VectorIndex.Engine)
	}
}
