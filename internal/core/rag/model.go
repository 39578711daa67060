package rag

import (
	"context"
	"errors"
)

// RoleUser / RoleAssistant / RoleSystem は会話履歴のロール
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrStream は回答ストリームの途中障害を表す
// 既に出力済みの部分テキストは保持される
var ErrStream = errors.New("completion stream aborted")

// ChatMessage は会話履歴の1ターンを表す
type ChatMessage struct {
	Role    string `json:"role"` // "user" | "assistant" | "system"
	Content string `json:"content"`
}

// QueryExpander は1つの質問を複数の検索クエリに拡張する
// 成功時は必ず5件を返す。それ以外の件数は失敗として扱われ、
// 呼び出し側は元の質問1件にフォールバックする
type QueryExpander interface {
	Expand(ctx context.Context, question string) ([]string, error)
}

// CompletionStreamer はチャット補完をトークン単位でストリーミングする
// ストリームはEOFで終端し、途中のエラーはストリーム全体を中断する
type CompletionStreamer interface {
	StreamCompletion(ctx context.Context, messages []ChatMessage, onToken func(token string)) error
}

// RetrievalStats はマルチクエリ検索のマージ結果に関する統計
// （例: "73 unique → 50 used" の可観測性のため）
type RetrievalStats struct {
	Queries      int `json:"queries"`       // 実際に検索したクエリ数
	UniqueChunks int `json:"unique_chunks"` // キャップ前のユニークチャンク数
	UsedChunks   int `json:"used_chunks"`   // 補完プロバイダに渡した数
}

// AskResult は質問応答の結果を表す
type AskResult struct {
	Answer string         `json:"answer"`
	Stats  RetrievalStats `json:"stats"`
}
