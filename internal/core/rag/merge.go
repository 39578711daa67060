package rag

import (
	"sort"

	"github.com/jinford/chat-search/internal/core/index"
)

const (
	// ExpandedQueryCount はクエリ拡張が返すべきクエリ数
	ExpandedQueryCount = 5
	// PerQueryTopK はクエリごとの検索件数
	PerQueryTopK = 20
	// MaxContextChunks は補完プロバイダに渡すチャンク数の上限
	MaxContextChunks = 50
)

// mergeResults はクエリごとの検索結果をチャンクインデックスで統合する
//
// チャンクテキストは一意とは限らないためインデックスをキーにする。
// 同一チャンクが複数クエリに現れた場合は最大スコアを採用し、スコア
// 降順（同点はインデックス昇順）でソートして上限でキャップする。
// 戻り値の第2要素はキャップ前のユニークチャンク数
func mergeResults(perQuery [][]index.Result) ([]index.Result, int) {
	merged := make(map[int]index.Result)
	for _, results := range perQuery {
		for _, r := range results {
			if prev, ok := merged[r.ChunkIndex]; !ok || r.Score > prev.Score {
				merged[r.ChunkIndex] = r
			}
		}
	}

	union := make([]index.Result, 0, len(merged))
	for _, r := range merged {
		union = append(union, r)
	}

	// クエリごとの順序が決定的であればマージ結果も決定的になるよう、
	// 同点はインデックス昇順で並べる
	sort.Slice(union, func(i, j int) bool {
		if union[i].Score != union[j].Score {
			return union[i].Score > union[j].Score
		}
		return union[i].ChunkIndex < union[j].ChunkIndex
	})

	unique := len(union)
	if len(union) > MaxContextChunks {
		union = union[:MaxContextChunks]
	}
	return union, unique
}
