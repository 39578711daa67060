package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jinford/chat-search/internal/core/chunk"
	"github.com/jinford/chat-search/internal/core/index"
)

// DefaultMaxContextTokens はコンテキストチャンクの合計トークン数の上限
const DefaultMaxContextTokens = 6000

// Service は質問応答のビジネスロジックを提供する
type Service struct {
	expander  QueryExpander
	completer CompletionStreamer
	tokens    *chunk.TokenCounter // nilの場合はトークン予算を適用しない
	maxTokens int
	logger    *slog.Logger
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*Service)

// WithTokenCounter はコンテキストのトークン予算を有効化する
func WithTokenCounter(tc *chunk.TokenCounter) ServiceOption {
	return func(s *Service) {
		s.tokens = tc
	}
}

// WithMaxContextTokens はトークン予算の上限を上書きする
func WithMaxContextTokens(n int) ServiceOption {
	return func(s *Service) {
		s.maxTokens = n
	}
}

// WithLogger は Service にロガーを設定する
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService は新しい Service を作成する
func NewService(expander QueryExpander, completer CompletionStreamer, opts ...ServiceOption) *Service {
	svc := &Service{
		expander:  expander,
		completer: completer,
		maxTokens: DefaultMaxContextTokens,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	return svc
}

// Retrieve は質問を複数クエリに拡張し、クエリごとの検索結果を
// 決定的にマージして返す
//
// クエリごとの検索は並行に実行する。構築済みインデックスは不変で
// 検索は読み取り専用のため安全。1クエリの失敗はそのクエリの結果を
// 空にするだけで、他のクエリのマージは妨げない
func (s *Service) Retrieve(ctx context.Context, sess *index.Session, question string) ([]index.Result, RetrievalStats) {
	queries := s.expandQueries(ctx, question)

	perQuery := make([][]index.Result, len(queries))
	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func(i int, q string) {
			defer wg.Done()
			results, err := sess.SearchText(ctx, q, PerQueryTopK)
			if err != nil {
				// 単一クエリの障害は空結果に縮退する
				s.logger.Warn("retrieval failed for expanded query", "query", q, "error", err)
				return
			}
			perQuery[i] = results
		}(i, q)
	}
	wg.Wait()

	merged, unique := mergeResults(perQuery)
	stats := RetrievalStats{
		Queries:      len(queries),
		UniqueChunks: unique,
		UsedChunks:   len(merged),
	}
	s.logger.Info("retrieval merged",
		"queries", stats.Queries,
		"unique", stats.UniqueChunks,
		"used", stats.UsedChunks,
	)
	return merged, stats
}

// expandQueries は質問を検索クエリ列に拡張する
// 拡張が失敗した場合や件数が5件以外の場合は元の質問1件にフォールバックする
func (s *Service) expandQueries(ctx context.Context, question string) []string {
	if s.expander == nil {
		return []string{question}
	}

	queries, err := s.expander.Expand(ctx, question)
	if err != nil {
		s.logger.Warn("query expansion failed, falling back to single query", "error", err)
		return []string{question}
	}
	if len(queries) != ExpandedQueryCount {
		s.logger.Warn("query expansion returned unexpected count, falling back to single query",
			"count", len(queries),
		)
		return []string{question}
	}
	return queries
}

// Ask は会話履歴の最後のユーザターンに対してRAGベースの回答を
// ストリーミング生成する
//
// トークンは onToken に逐次渡され、完了後に全文を含む結果を返す。
// ストリーム途中の障害は ErrStream として返すが、それまでに出力した
// 部分テキストは結果に残す
func (s *Service) Ask(ctx context.Context, sess *index.Session, history []ChatMessage, onToken func(string)) (*AskResult, error) {
	if len(history) == 0 {
		return nil, fmt.Errorf("no messages provided")
	}
	last := history[len(history)-1]
	if last.Role != RoleUser || strings.TrimSpace(last.Content) == "" {
		return nil, fmt.Errorf("last message must be a non-empty user turn")
	}

	results, stats := s.Retrieve(ctx, sess, last.Content)
	contextChunks := s.budgetChunks(results)

	messages := BuildCompletionMessages(history, contextChunks)

	var answer strings.Builder
	err := s.completer.StreamCompletion(ctx, messages, func(token string) {
		answer.WriteString(token)
		if onToken != nil {
			onToken(token)
		}
	})

	result := &AskResult{
		Answer: answer.String(),
		Stats:  stats,
	}
	if err != nil {
		return result, fmt.Errorf("%w: %w", ErrStream, err)
	}
	return result, nil
}

// budgetChunks はスコア上位からトークン予算内に収まるチャンクを選ぶ
func (s *Service) budgetChunks(results []index.Result) []string {
	chunks := make([]string, 0, len(results))

	if s.tokens == nil {
		for _, r := range results {
			chunks = append(chunks, r.ChunkText)
		}
		return chunks
	}

	used := 0
	for _, r := range results {
		n := s.tokens.Count(r.ChunkText)
		if used+n > s.maxTokens && len(chunks) > 0 {
			s.logger.Info("context token budget reached",
				"kept", len(chunks),
				"dropped", len(results)-len(chunks),
				"tokens", used,
			)
			break
		}
		chunks = append(chunks, r.ChunkText)
		used += n
	}
	return chunks
}
