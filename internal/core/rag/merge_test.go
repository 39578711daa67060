package rag

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/chat-search/internal/core/index"
)

func TestMergeResultsKeepsMaxScore(t *testing.T) {
	perQuery := [][]index.Result{
		{{ChunkIndex: 5, ChunkText: "chunk five", Score: 0.7}},
		{{ChunkIndex: 5, ChunkText: "chunk five", Score: 0.9}},
		{{ChunkIndex: 3, ChunkText: "chunk three", Score: 0.8}},
	}

	merged, unique := mergeResults(perQuery)
	require.Len(t, merged, 2)
	assert.Equal(t, 2, unique)

	assert.Equal(t, 5, merged[0].ChunkIndex)
	assert.Equal(t, 0.9, merged[0].Score)
	assert.Equal(t, 3, merged[1].ChunkIndex)
	assert.Equal(t, 0.8, merged[1].Score)
}

func TestMergeResultsTieBreaksByChunkIndex(t *testing.T) {
	perQuery := [][]index.Result{
		{{ChunkIndex: 9, Score: 0.5}, {ChunkIndex: 2, Score: 0.5}, {ChunkIndex: 4, Score: 0.5}},
	}

	merged, _ := mergeResults(perQuery)
	require.Len(t, merged, 3)
	assert.Equal(t, 2, merged[0].ChunkIndex)
	assert.Equal(t, 4, merged[1].ChunkIndex)
	assert.Equal(t, 9, merged[2].ChunkIndex)
}

func TestMergeResultsCapsAndReportsUniqueCount(t *testing.T) {
	var perQuery [][]index.Result
	for q := 0; q < 3; q++ {
		results := make([]index.Result, 20)
		for i := range results {
			idx := q*20 + i
			results[i] = index.Result{
				ChunkIndex: idx,
				ChunkText:  fmt.Sprintf("chunk %d", idx),
				Score:      1.0 - float64(idx)/100,
			}
		}
		perQuery = append(perQuery, results)
	}

	merged, unique := mergeResults(perQuery)
	// ユニーク60件のうちキャップで50件に制限される
	assert.Equal(t, 60, unique)
	require.Len(t, merged, MaxContextChunks)
	// スコア降順: 先頭はチャンク0、末尾はチャンク49
	assert.Equal(t, 0, merged[0].ChunkIndex)
	assert.Equal(t, 49, merged[MaxContextChunks-1].ChunkIndex)
}

func TestMergeResultsDeterministic(t *testing.T) {
	perQuery := [][]index.Result{
		{{ChunkIndex: 1, Score: 0.5}, {ChunkIndex: 2, Score: 0.5}},
		{{ChunkIndex: 3, Score: 0.5}, {ChunkIndex: 1, Score: 0.5}},
		{{ChunkIndex: 2, Score: 0.9}},
	}

	first, firstUnique := mergeResults(perQuery)
	for i := 0; i < 10; i++ {
		again, unique := mergeResults(perQuery)
		assert.Equal(t, first, again)
		assert.Equal(t, firstUnique, unique)
	}
}

func TestMergeResultsEmptyInput(t *testing.T) {
	merged, unique := mergeResults(nil)
	assert.Empty(t, merged)
	assert.Equal(t, 0, unique)

	merged, unique = mergeResults([][]index.Result{nil, {}})
	assert.Empty(t, merged)
	assert.Equal(t, 0, unique)
}
