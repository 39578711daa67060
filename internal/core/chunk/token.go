package chunk

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter はチャンクやプロンプトのトークン数を数える
type TokenCounter struct {
	encoder *tiktoken.Tiktoken
}

// NewTokenCounter は新しいTokenCounterを作成する
// cl100k_baseエンコーダを使用（text-embedding-3-smallと互換）
func NewTokenCounter() (*TokenCounter, error) {
	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoder: %w", err)
	}
	return &TokenCounter{encoder: encoder}, nil
}

// Count はテキストのトークン数を返す
func (t *TokenCounter) Count(text string) int {
	return len(t.encoder.Encode(text, nil, nil))
}

// CountAll はテキスト列の合計トークン数を返す
func (t *TokenCounter) CountAll(texts []string) int {
	total := 0
	for _, text := range texts {
		total += t.Count(text)
	}
	return total
}
