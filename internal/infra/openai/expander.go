package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/jinford/chat-search/internal/core/rag"
)

// DefaultExpansionModel はクエリ拡張のデフォルトモデル
const DefaultExpansionModel = "gpt-4o-mini"

const expansionSystemPrompt = `You rewrite a user question about a chat transcript into exactly 5 alternative search queries.
The queries should cover different phrasings, synonyms, and angles of the original question.
Respond with a JSON object of the form {"queries": ["...", "...", "...", "...", "..."]}.`

// Expander は OpenAI のチャット補完を使ったクエリ拡張実装
type Expander struct {
	client openai.Client
	model  string
}

// NewExpander は新しい Expander を作成する
func NewExpander(apiKey string, model string) *Expander {
	if model == "" {
		model = DefaultExpansionModel
	}
	return &Expander{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

type expansionResponse struct {
	Queries []string `json:"queries"`
}

// Expand は質問を5件の検索クエリに拡張する
// 5件以外が返った場合はエラーとする（呼び出し側が単一クエリに縮退する）
func (e *Expander) Expand(ctx context.Context, question string) ([]string, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(e.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(expansionSystemPrompt),
			openai.UserMessage(question),
		},
		Temperature: openai.Float(0.7),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{
				Type: "json_object",
			},
		},
	}

	var lastErr error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoffDuration(attempt)):
			}
		}

		completion, err := e.client.Chat.Completions.New(ctx, params)
		if err != nil {
			lastErr = err
			if isRateLimitError(err) {
				continue
			}
			return nil, fmt.Errorf("query expansion call failed: %w", err)
		}

		if len(completion.Choices) == 0 {
			return nil, fmt.Errorf("no completion choices returned")
		}

		var resp expansionResponse
		if err := json.Unmarshal([]byte(completion.Choices[0].Message.Content), &resp); err != nil {
			return nil, fmt.Errorf("failed to parse expansion response: %w", err)
		}
		if len(resp.Queries) != rag.ExpandedQueryCount {
			return nil, fmt.Errorf("expansion returned %d queries, expected %d", len(resp.Queries), rag.ExpandedQueryCount)
		}
		return resp.Queries, nil
	}

	return nil, fmt.Errorf("query expansion rate limited: %w", lastErr)
}

// インターフェース実装の確認
var _ rag.QueryExpander = (*Expander)(nil)
