package deepseek

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

const defaultBaseURL = "https://api.deepseek.com"

// DeepSeekProvider はDeepSeek APIプロバイダーの実装
// DeepSeek APIはOpenAI互換のため、ワイヤ形式はOpenAIProviderと同一
type DeepSeekProvider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewDeepSeekProvider は新しいDeepSeekProviderを作成
func NewDeepSeekProvider(apiKey, model string) *DeepSeekProvider {
	return &DeepSeekProvider{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// SetBaseURL はベースURLを設定（テスト用）
func (p *DeepSeekProvider) SetBaseURL(url string) {
	p.baseURL = url
}

// Chat はツール呼び出し対応のチャット補完を実行
func (p *DeepSeekProvider) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	deepseekReq := map[string]interface{}{
		"model":    p.model,
		"messages": p.convertMessages(req.Messages),
	}

	if req.MaxTokens > 0 {
		deepseekReq["max_tokens"] = req.MaxTokens
	}

	if req.Temperature > 0 {
		deepseekReq["temperature"] = req.Temperature
	}

	if len(req.Tools) > 0 {
		tools := make([]map[string]interface{}, 0, len(req.Tools))
		for _, def := range req.Tools {
			tools = append(tools, map[string]interface{}{
				"type": "function",
				"function": map[string]interface{}{
					"name":        def.Name,
					"description": def.Description,
					"parameters":  def.Parameters,
				},
			})
		}
		deepseekReq["tools"] = tools
		deepseekReq["tool_choice"] = "auto"
	}

	reqBody, err := json.Marshal(deepseekReq)
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
		return llm.ChatResponse{}, fmt.Errorf("deepseek API error: status=%d, body=%s", resp.StatusCode, string(body))
	}

	var deepseekResp struct {
		Choices []struct {
			Message struct {
				Role      string `json:"role"`
				Content   string `json:"content"`
				ToolCalls []struct {
					ID       string `json:"id"`
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

	if err := json.NewDecoder(resp.Body).Decode(&deepseekResp); err != nil {
		return llm.ChatResponse{}, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(deepseekResp.Choices) == 0 {
		return llm.ChatResponse{}, fmt.Errorf("deepseek API returned no choices")
	}

	choice := deepseekResp.Choices[0]
	result := llm.ChatResponse{
		Content:      choice.Message.Content,
		TokensUsed:   deepseekResp.Usage.TotalTokens,
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

// Name はプロバイダー名を返す
func (p *DeepSeekProvider) Name() string {
	return fmt.Sprintf("deepseek-%s", p.model)
}

// convertMessages はドメインメッセージをDeepSeek APIフォーマットに変換
func (p *DeepSeekProvider) convertMessages(msgs []llm.Message) []map[string]interface{} {
	messages := make([]map[string]interface{}, 0, len(msgs))

	for _, msg := range msgs {
		m := map[string]interface{}{
			"role":    msg.Role,
			"content": msg.Content,
		}
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
