package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/jinford/chat-search/internal/core/chunk"
	"github.com/jinford/chat-search/internal/core/transcript"
)

const (
	// MaxBatchSize はEmbedding APIに一度に渡すチャンク数の上限
	MaxBatchSize = 100
	// MaxChunks は1トランスクリプトあたりのチャンク数の上限
	MaxChunks = 2048
)

var (
	// ErrIndexing はEmbedding生成中のプロバイダ障害を表す
	ErrIndexing = errors.New("embedding indexing failed")
	// ErrNotIndexed はベクトル未構築の状態で検索した場合のエラー
	ErrNotIndexed = errors.New("embeddings are not built yet")
	// ErrTooManyChunks はチャンク数が上限を超えた場合のエラー
	ErrTooManyChunks = errors.New("too many chunks")
)

// Embedder はテキストのEmbedding生成インターフェース
type Embedder interface {
	// BatchEmbed は複数テキストのEmbeddingを入力と同順で生成する（最大100件）
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)
	// Embed は単一テキスト（検索クエリ）のEmbeddingを生成する
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Progress はEmbedding構築の進捗を表す
type Progress struct {
	Completed int `json:"completed"` // 処理済みチャンク数
	Total     int `json:"total"`     // 総チャンク数
}

// ProgressFunc はバッチ完了ごとに呼び出される進捗コールバック
type ProgressFunc func(Progress)

// State はセッションのインデックス状態を表す
type State string

const (
	StateIdle     State = "idle"
	StateIndexing State = "indexing"
	StateReady    State = "ready"
	StateFailed   State = "failed"
)

// Session は1回のアップロードに対応するパイプライン状態を保持する
//
// トランスクリプト・チャンク・ベクトル・実行中フラグをまとめて所有し、
// 次のアップロードで丸ごと置き換えられる。ベクトル構築後のインデックスは
// 不変であり、検索は読み取り専用のためロックは実行中ガードのみでよい
type Session struct {
	id       uuid.UUID
	tr       *transcript.Transcript
	cacheKey string
	chunks   []string

	embedder Embedder
	cache    CacheStore // nilの場合はキャッシュ無効
	logger   *slog.Logger

	mu       sync.Mutex
	inflight bool
	vectors  [][]float32
	lastErr  error
	progress Progress
	ready    chan struct{} // ベクトル構築成功時にclose
	runDone  chan struct{} // 実行中の構築完了時にclose（成否問わず）
}

// SessionOption は Session のオプション設定
type SessionOption func(*Session)

// WithCache はEmbeddingキャッシュを設定する
func WithCache(store CacheStore) SessionOption {
	return func(s *Session) {
		s.cache = store
	}
}

// WithSessionLogger は Session にロガーを設定する
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

// NewSession はアップロードされた生バイト列と解析結果からセッションを作成する
// チャンク列はこの時点で決定的に計算される
func NewSession(raw []byte, tr *transcript.Transcript, chunker *chunk.Chunker, embedder Embedder, opts ...SessionOption) *Session {
	s := &Session{
		id:       uuid.New(),
		tr:       tr,
		cacheKey: CacheKey(raw),
		chunks:   chunker.Split(tr.Messages),
		embedder: embedder,
		logger:   slog.Default(),
		ready:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// ID はセッションIDを返す
func (s *Session) ID() uuid.UUID { return s.id }

// Transcript は解析済みトランスクリプトを返す
func (s *Session) Transcript() *transcript.Transcript { return s.tr }

// Chunks はチャンクテキスト列を返す
func (s *Session) Chunks() []string { return s.chunks }

// ChunkCount はチャンク数を返す
func (s *Session) ChunkCount() int { return len(s.chunks) }

// CacheKey はこのセッションのキャッシュキーを返す
func (s *Session) CacheKey() string { return s.cacheKey }

// Indexed はベクトル構築が完了しているかを返す
func (s *Session) Indexed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vectors != nil
}

// Ready はベクトル構築の成功時にcloseされるチャネルを返す
func (s *Session) Ready() <-chan struct{} { return s.ready }

// Progress は現在の構築進捗を返す
func (s *Session) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// State は現在のインデックス状態を返す
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.vectors != nil:
		return StateReady
	case s.inflight:
		return StateIndexing
	case s.lastErr != nil:
		return StateFailed
	default:
		return StateIdle
	}
}

// EnsureEmbeddings は全チャンクのベクトルを構築する
//
// 冪等かつシングルフライト: 構築済みであれば何もせず、別の呼び出しが
// 実行中の場合もno-opで即座に返る（呼び出し側は Ready / WaitReady で
// 完了を観測する）。バッチは逐次発行し、バッチごとに onProgress を
// 呼び出す。途中のプロバイダ障害は全体を中断し、部分的なベクトルは
// 破棄してキャッシュにも書き込まない
func (s *Session) EnsureEmbeddings(ctx context.Context, onProgress ProgressFunc) error {
	s.mu.Lock()
	if s.vectors != nil {
		s.mu.Unlock()
		return nil
	}
	if s.inflight {
		// 同時トリガーは1回の実行に集約する
		s.mu.Unlock()
		return nil
	}
	s.inflight = true
	s.lastErr = nil
	s.progress = Progress{Total: len(s.chunks)}
	runDone := make(chan struct{})
	s.runDone = runDone
	s.mu.Unlock()

	vectors, err := s.buildVectors(ctx, onProgress)

	s.mu.Lock()
	s.inflight = false
	if err != nil {
		s.lastErr = err
		s.mu.Unlock()
		close(runDone)
		return err
	}
	s.vectors = vectors
	s.progress = Progress{Completed: len(s.chunks), Total: len(s.chunks)}
	close(s.ready)
	s.mu.Unlock()
	close(runDone)
	return nil
}

// WaitReady はベクトル構築の完了を待つ
// 実行中の構築が失敗した場合はそのエラーを返す
func (s *Session) WaitReady(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.vectors != nil {
			s.mu.Unlock()
			return nil
		}
		if !s.inflight {
			err := s.lastErr
			s.mu.Unlock()
			if err != nil {
				return err
			}
			return ErrNotIndexed
		}
		runDone := s.runDone
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-runDone:
		}
	}
}

// buildVectors はキャッシュ参照とバッチEmbedding呼び出しでベクトル列を組み立てる
func (s *Session) buildVectors(ctx context.Context, onProgress ProgressFunc) ([][]float32, error) {
	total := len(s.chunks)
	if total == 0 {
		return [][]float32{}, nil
	}
	if total > MaxChunks {
		return nil, fmt.Errorf("%w: %d chunks exceeds limit of %d", ErrTooManyChunks, total, MaxChunks)
	}

	// キャッシュ参照（障害はヒットなし扱いで続行）
	if cached, ok := s.lookupCache(ctx); ok {
		s.reportProgress(onProgress, total, total)
		return cached, nil
	}

	vectors := make([][]float32, 0, total)
	for start := 0; start < total; start += MaxBatchSize {
		end := start + MaxBatchSize
		if end > total {
			end = total
		}

		batch, err := s.embedder.BatchEmbed(ctx, s.chunks[start:end])
		if err != nil {
			return nil, fmt.Errorf("%w: batch %d-%d: %w", ErrIndexing, start, end, err)
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("%w: provider returned %d vectors for %d inputs", ErrIndexing, len(batch), end-start)
		}

		vectors = append(vectors, batch...)
		s.reportProgress(onProgress, end, total)
	}

	// キャッシュへの書き込みはファイアアンドフォーゲット
	if s.cache != nil {
		go s.writeCache(context.WithoutCancel(ctx), vectors)
	}

	return vectors, nil
}

// lookupCache はキャッシュからベクトル列の取得を試みる
// ベクトル数が現在のチャンク数と一致しないエントリはミス扱いにする
func (s *Session) lookupCache(ctx context.Context) ([][]float32, bool) {
	if s.cache == nil {
		return nil, false
	}

	opt, err := s.cache.Get(ctx, s.cacheKey)
	if err != nil {
		s.logger.Warn("embedding cache read failed", "error", err)
		return nil, false
	}
	vectors, present := opt.Get()
	if !present {
		return nil, false
	}
	if len(vectors) != len(s.chunks) {
		// チャンク化パラメータのドリフト検出
		s.logger.Info("embedding cache entry is stale",
			"cached", len(vectors),
			"expected", len(s.chunks),
		)
		return nil, false
	}

	s.logger.Info("embedding cache hit", "chunks", len(vectors))
	return vectors, true
}

func (s *Session) writeCache(ctx context.Context, vectors [][]float32) {
	if err := s.cache.Put(ctx, s.cacheKey, vectors); err != nil {
		s.logger.Warn("embedding cache write failed", "error", err)
	}
}

func (s *Session) reportProgress(onProgress ProgressFunc, completed, total int) {
	s.mu.Lock()
	s.progress = Progress{Completed: completed, Total: total}
	s.mu.Unlock()

	if onProgress != nil {
		onProgress(Progress{Completed: completed, Total: total})
	}
}

// Vectors は構築済みベクトル列を返す（未構築の場合はnil）
func (s *Session) Vectors() [][]float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vectors
}
