package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Nyukimin/ranalyze/internal/domain/llm"
)

const defaultBaseURL = "https://api.openai.com"

// OpenAIProvider はOpenAI APIプロバイダーの実装
type OpenAIProvider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewOpenAIProvider は新しいOpenAIProviderを作成
func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	return &OpenAIProvider{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// SetBaseURL はベースURLを設定（テスト用）
func (p *OpenAIProvider) SetBaseURL(url string) {
	p.baseURL = url
}

// Chat はツール呼び出し対応のチャット補完を実行
func (p *OpenAIProvider) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	openaiReq := map[string]interface{}{
		"model":    p.model,
		"messages": p.convertMessages(req.Messages),
	}

	if req.MaxTokens > 0 {
		openaiReq["max_tokens"] = req.MaxTokens
	}

	if req.Temperature > 0 {
		openaiReq["temperature"] = req.Temperature
	}

	if len(req.Tools) > 0 {
		openaiReq["tools"] = p.convertTools(req.Tools)
		openaiReq["tool_choice"] = "auto"
	}

	reqBody, err := json.Marshal(openaiReq)
	if err != nil {
		return llm.ChatResponse{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/v1/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return llm.ChatResponse{}, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return llm.ChatResponse{}, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return llm.ChatResponse{}, fmt.Errorf("openai API error: status=%d, body=%s", resp.StatusCode, string(body))
	}

	return p.parseResponse(resp.Body)
}

// Name はプロバイダー名を返す
func (p *OpenAIProvider) Name() string {
	return fmt.Sprintf("openai-%s", p.model)
}

// convertMessages はドメインメッセージをOpenAI APIフォーマットに変換
func (p *OpenAIProvider) convertMessages(msgs []llm.Message) []map[string]interface{} {
	messages := make([]map[string]interface{}, 0, len(msgs))

	for _, msg := range msgs {
		m := map[string]interface{}{
			"role":    msg.Role,
			"content": msg.Content,
		}

		// assistantのツール呼び出し要求は引数JSONをそのまま載せる
		if len(msg.ToolCalls) > 0 {
			calls := make([]map[string]interface{}, 0, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				calls = append(calls, map[string]interface{}{
					"id":   tc.ID,
					"type": "function",
					"function": map[string]interface{}{
						"name":      tc.Name,
						"arguments": tc.Arguments,
					},
				})
			}
			m["tool_calls"] = calls
		}

		if msg.Role == "tool" {
			m["tool_call_id"] = msg.ToolCallID
		}

		messages = append(messages, m)
	}

	return messages
}

// convertTools はツール定義をOpenAIのfunction形式に変換
func (p *OpenAIProvider) convertTools(defs []llm.ToolDefinition) []map[string]interface{} {
	tools := make([]map[string]interface{}, 0, len(defs))
	for _, def := range defs {
		tools = append(tools, map[string]interface{}{
			"type": "function",
			"function": map[string]interface{}{
				"name":        def.Name,
				"description": def.Description,
				"parameters":  def.Parameters,
			},
		})
	}
	return tools
}

// parseResponse はAPI応答をドメイン型に変換
// ツール呼び出しの引数は生のJSON文字列のまま保持する
func (p *OpenAIProvider) parseResponse(body io.Reader) (llm.ChatResponse, error) {
	var openaiResp struct {
		Choices []struct {
			Message struct {
				Role      string `json:"role"`
				Content   string `json:"content"`
				ToolCalls []struct {
					ID       string `json:"id"`
					Type     string `json:"type"`
					Function struct {
						Name      string `json:"name"`
						Arguments string `json:"arguments"`
					} `json:"function"`
				} `json:"tool_calls"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage struct {
			TotalTokens int `json:"total_tokens"`
		} `json:"usage"`
	}

	if err := json.NewDecoder(body).Decode(&openaiResp); err != nil {
		return llm.ChatResponse{}, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(openaiResp.Choices) == 0 {
		return llm.ChatResponse{}, fmt.Errorf("openai API returned no choices")
	}

	choice := openaiResp.Choices[0]
	result := llm.ChatResponse{
		Content:      choice.Message.Content,
		TokensUsed:   openaiResp.Usage.TotalTokens,
		FinishReason: choice.FinishReason,
	}

	for _, tc := range choice.Message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, llm.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	return result, nil
}
