package index

import (
	"context"
	"fmt"
	"sort"
)

// DefaultTopK は単一クエリ検索で返す件数のデフォルト
const DefaultTopK = 8

// Result は検索結果の1件を表す（クエリごとに使い捨て）
type Result struct {
	ChunkIndex int     `json:"chunk_index"`
	ChunkText  string  `json:"chunk_text"`
	Score      float64 `json:"score"`
}

// Search はクエリベクトルに対して全チャンクをスコアリングし、
// スコア降順の上位topK件を返す。同点はチャンク順を維持する。
// スコアは表示安定性のため小数第4位に丸める
func (s *Session) Search(queryVector []float32, topK int) ([]Result, error) {
	vectors := s.Vectors()
	if vectors == nil {
		return nil, ErrNotIndexed
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	results := make([]Result, len(vectors))
	for i, v := range vectors {
		results[i] = Result{
			ChunkIndex: i,
			ChunkText:  s.chunks[i],
			Score:      roundScore(Cosine(queryVector, v)),
		}
	}

	// 安定ソートで同点時の元のチャンク順を保つ
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// SearchText はクエリ文字列をEmbeddingしてから検索する
func (s *Session) SearchText(ctx context.Context, query string, topK int) ([]Result, error) {
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}

	queryVector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	return s.Search(queryVector, topK)
}
