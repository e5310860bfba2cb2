package llm

import "context"

// Message はLLMメッセージを表す
type Message struct {
	Role       string // "system", "user", "assistant", "tool"
	Content    string
	ToolCalls  []ToolCall // assistantがツール呼び出しを要求した場合のみ
	ToolCallID string     // toolロールの場合、対応する呼び出しID
}

// ToolCall はモデルが要求したツール呼び出し
// Argumentsはモデルが出力した生のJSON文字列のまま保持する
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolDefinition はモデルに提示するツール定義
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// ChatRequest はLLMチャットリクエスト
type ChatRequest struct {
	Messages    []Message
	Tools       []ToolDefinition
	MaxTokens   int
	Temperature float64
}

// ChatResponse はLLMチャットレスポンス
type ChatResponse struct {
	Content      string
	ToolCalls    []ToolCall
	TokensUsed   int
	FinishReason string
}

// LLMProvider はLLMプロバイダーの抽象化
type LLMProvider interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	Name() string
}
