package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jinford/chat-search/internal/core/chunk"
	"github.com/jinford/chat-search/internal/core/index"
	"github.com/jinford/chat-search/internal/core/rag"
)

// Server はチャット検索のHTTP APIを提供する
//
// サーバはアップロードごとに作られる単一のセッションを保持し、
// 次のアップロードで丸ごと置き換える。検索・質問応答はすべて
// 現在のセッションに対して実行される
type Server struct {
	chunker  *chunk.Chunker
	embedder index.Embedder
	cache    index.CacheStore // nilの場合はキャッシュ無効
	ragSvc   *rag.Service
	logger   *slog.Logger

	// バックグラウンドのインデックス構築に使うベースコンテキスト
	baseCtx context.Context

	mu      sync.Mutex
	session *index.Session
}

// ServerOption は Server のオプション設定
type ServerOption func(*Server)

// WithCacheStore はEmbeddingキャッシュを設定する
func WithCacheStore(store index.CacheStore) ServerOption {
	return func(s *Server) {
		s.cache = store
	}
}

// WithServerLogger は Server にロガーを設定する
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer は新しい Server を作成する
func NewServer(baseCtx context.Context, chunker *chunk.Chunker, embedder index.Embedder, ragSvc *rag.Service, opts ...ServerOption) *Server {
	s := &Server{
		chunker:  chunker,
		embedder: embedder,
		ragSvc:   ragSvc,
		logger:   slog.Default(),
		baseCtx:  baseCtx,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Handler はAPIのルーティングを返す
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/transcript", s.handleUploadTranscript)
	mux.HandleFunc("POST /api/search", s.handleSearch)
	mux.HandleFunc("POST /api/index", s.handleIndexTrigger)
	mux.HandleFunc("GET /api/index/status", s.handleIndexStatus)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	return mux
}

// Start はHTTPサーバを起動し、コンテキストのキャンセルで
// グレースフルに停止する
func (s *Server) Start(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	}
}

// currentSession は現在のセッションを返す
func (s *Server) currentSession() *index.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// replaceSession は現在のセッションを新しいものに置き換える
// 旧セッションのパイプライン状態はまとめて破棄される
func (s *Server) replaceSession(sess *index.Session) {
	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()
}

// ensureIndexed はセッションのベクトル構築を同期的に保証する
// 別のトリガーが実行中の場合はその完了を待つ
func (s *Server) ensureIndexed(ctx context.Context, sess *index.Session) error {
	if err := sess.EnsureEmbeddings(ctx, s.logProgress); err != nil {
		return err
	}
	return sess.WaitReady(ctx)
}

func (s *Server) logProgress(p index.Progress) {
	s.logger.Info("indexing progress", "completed", p.Completed, "total", p.Total)
}
