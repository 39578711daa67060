package rag

import "strings"

// SystemPrompt は質問応答アシスタントのシステムプロンプト
const SystemPrompt = `You are a helpful assistant answering questions about a WhatsApp chat export.
The user has retrieved the most relevant excerpts from the chat for each question.
Use the provided excerpts as your primary source. Be concise, direct, and conversational.
When quoting messages include the sender's name. If the excerpts don't contain enough information, say so honestly.`

// BuildCompletionMessages は補完プロバイダに渡すメッセージ列を組み立てる
//
// 最後のユーザターンにのみ検索済みチャンクをコンテキストとして注入し、
// それ以前のターンはそのまま引き渡す
func BuildCompletionMessages(history []ChatMessage, contextChunks []string) []ChatMessage {
	messages := make([]ChatMessage, 0, len(history)+1)
	messages = append(messages, ChatMessage{Role: RoleSystem, Content: SystemPrompt})

	for _, msg := range history[:len(history)-1] {
		messages = append(messages, msg)
	}

	last := history[len(history)-1]
	messages = append(messages, ChatMessage{
		Role:    RoleUser,
		Content: augmentWithContext(last.Content, contextChunks),
	})
	return messages
}

// augmentWithContext は質問文に検索済みチャンクを前置する
func augmentWithContext(question string, contextChunks []string) string {
	if len(contextChunks) == 0 {
		return question
	}

	var sb strings.Builder
	sb.WriteString("Relevant excerpts from the chat:\n\n")
	sb.WriteString(strings.Join(contextChunks, "\n\n---\n"))
	sb.WriteString("\n\n---\n\nUser question: ")
	sb.WriteString(question)
	return sb.String()
}
