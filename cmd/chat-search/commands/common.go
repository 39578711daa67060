package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jinford/chat-search/internal/core/chunk"
	"github.com/jinford/chat-search/internal/core/index"
	"github.com/jinford/chat-search/internal/core/rag"
	"github.com/jinford/chat-search/internal/core/transcript"
	openaiinfra "github.com/jinford/chat-search/internal/infra/openai"
	"github.com/jinford/chat-search/internal/infra/postgres"
	"github.com/jinford/chat-search/internal/infra/sqlite"
	"github.com/jinford/chat-search/internal/platform/config"
	"github.com/jinford/chat-search/internal/platform/logger"
)

// AppContext はコマンド実行に必要な共通コンテキストを保持する
type AppContext struct {
	Config   *config.Config
	Logger   *slog.Logger
	Chunker  *chunk.Chunker
	Embedder *openaiinfra.Embedder
	Cache    index.CacheStore // nilの場合はキャッシュ無効
	RAG      *rag.Service

	closer io.Closer
}

// NewAppContext は設定を読み込み、プロバイダとキャッシュを初期化する
func NewAppContext(ctx context.Context, envFile string) (*AppContext, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	appLogger := logger.New(logger.Config{
		Level:  logger.ParseLevel(cfg.LogLevel),
		Format: cfg.LogFormat,
	})

	if cfg.OpenAI.APIKey == "" {
		return nil, openaiinfra.ErrAPIKeyNotSet
	}

	embedder := openaiinfra.NewEmbedder(cfg.OpenAI.APIKey,
		openaiinfra.WithEmbeddingModel(cfg.OpenAI.EmbeddingModel),
		openaiinfra.WithEmbeddingDimension(cfg.OpenAI.EmbeddingDimension),
	)
	expander := openaiinfra.NewExpander(cfg.OpenAI.APIKey, cfg.OpenAI.ExpansionModel)
	completer := openaiinfra.NewCompleter(cfg.OpenAI.APIKey,
		openaiinfra.WithCompletionModel(cfg.OpenAI.CompletionModel),
	)

	cache, closer, err := newCacheStore(ctx, cfg, appLogger)
	if err != nil {
		return nil, err
	}

	ragOpts := []rag.ServiceOption{rag.WithLogger(appLogger)}
	if counter, err := chunk.NewTokenCounter(); err != nil {
		// トークン予算なしでも動作には支障がない
		appLogger.Warn("token counter unavailable", "error", err)
	} else {
		ragOpts = append(ragOpts, rag.WithTokenCounter(counter))
	}

	return &AppContext{
		Config:   cfg,
		Logger:   appLogger,
		Chunker:  chunk.New(),
		Embedder: embedder,
		Cache:    cache,
		RAG:      rag.NewService(expander, completer, ragOpts...),
		closer:   closer,
	}, nil
}

// newCacheStore は設定に応じたキャッシュバックエンドを作成する
func newCacheStore(ctx context.Context, cfg *config.Config, appLogger *slog.Logger) (index.CacheStore, io.Closer, error) {
	switch cfg.Cache.Backend {
	case "sqlite":
		store, err := sqlite.NewCache(cfg.Cache.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("SQLiteキャッシュの初期化に失敗: %w", err)
		}
		appLogger.Info("embedding cache enabled", "backend", "sqlite", "path", store.Path())
		return store, store, nil
	case "postgres":
		store, err := postgres.NewCache(ctx, cfg.Cache.Postgres.ConnString(), cfg.OpenAI.EmbeddingDimension)
		if err != nil {
			return nil, nil, fmt.Errorf("PostgreSQLキャッシュの初期化に失敗: %w", err)
		}
		appLogger.Info("embedding cache enabled", "backend", "postgres")
		return store, store, nil
	case "none":
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend: %s", cfg.Cache.Backend)
	}
}

// Close はAppContextが保持するリソースをクリーンアップする
func (ac *AppContext) Close() {
	if ac.closer != nil {
		_ = ac.closer.Close()
	}
}

// NewSessionFromFile はエクスポートファイルを読み込んでセッションを構築する
func (ac *AppContext) NewSessionFromFile(path string) (*index.Session, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ファイルの読み込みに失敗: %w", err)
	}

	tr, err := transcript.Parse(raw)
	if err != nil {
		return nil, err
	}

	opts := []index.SessionOption{index.WithSessionLogger(ac.Logger)}
	if ac.Cache != nil {
		opts = append(opts, index.WithCache(ac.Cache))
	}
	return index.NewSession(raw, tr, ac.Chunker, ac.Embedder, opts...), nil
}
