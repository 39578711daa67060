package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/jinford/chat-search/internal/core/rag"
)

const (
	// DefaultCompletionModel は回答生成のデフォルトモデル
	DefaultCompletionModel = "gpt-5-mini"
	// DefaultMaxCompletionTokens は回答の最大トークン数
	DefaultMaxCompletionTokens = 1024
	// DefaultCompletionTemperature は回答生成の温度
	DefaultCompletionTemperature = 0.4
)

// Completer は OpenAI のストリーミングチャット補完実装
type Completer struct {
	client      openai.Client
	model       string
	maxTokens   int64
	temperature float64
}

// CompleterOption は Completer のオプション設定
type CompleterOption func(*Completer)

// WithCompletionModel はモデル名を上書きする
func WithCompletionModel(model string) CompleterOption {
	return func(c *Completer) {
		if model != "" {
			c.model = model
		}
	}
}

// WithMaxCompletionTokens は最大トークン数を上書きする
func WithMaxCompletionTokens(n int64) CompleterOption {
	return func(c *Completer) {
		c.maxTokens = n
	}
}

// NewCompleter は新しい Completer を作成する
func NewCompleter(apiKey string, opts ...CompleterOption) *Completer {
	c := &Completer{
		client:      openai.NewClient(option.WithAPIKey(apiKey)),
		model:       DefaultCompletionModel,
		maxTokens:   DefaultMaxCompletionTokens,
		temperature: DefaultCompletionTemperature,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StreamCompletion はメッセージ列に対する補完をトークン単位でストリーミングする
// 各トークンを onToken に渡し、ストリーム終端で返る。途中のエラーは
// ストリーム全体を中断するが、既に渡したトークンはそのまま有効
func (c *Completer) StreamCompletion(ctx context.Context, messages []rag.ChatMessage, onToken func(token string)) error {
	params := openai.ChatCompletionNewParams{
		Model:               shared.ChatModel(c.model),
		Messages:            toOpenAIMessages(messages),
		MaxCompletionTokens: openai.Int(c.maxTokens),
		Temperature:         openai.Float(c.temperature),
	}

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			onToken(delta)
		}
	}

	if err := stream.Err(); err != nil {
		return fmt.Errorf("completion stream failed: %w", err)
	}
	return nil
}

// toOpenAIMessages は会話履歴をOpenAI APIのメッセージ形式に変換する
func toOpenAIMessages(messages []rag.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	converted := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case rag.RoleSystem:
			converted = append(converted, openai.SystemMessage(msg.Content))
		case rag.RoleAssistant:
			converted = append(converted, openai.AssistantMessage(msg.Content))
		default:
			converted = append(converted, openai.UserMessage(msg.Content))
		}
	}
	return converted
}

// インターフェース実装の確認
var _ rag.CompletionStreamer = (*Completer)(nil)
