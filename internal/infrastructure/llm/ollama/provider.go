package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Nyukimin/ranalyze/internal/domain/llm"
)

// OllamaProvider はローカルOllama APIプロバイダーの実装
type OllamaProvider struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaProvider は新しいOllamaProviderを作成
func NewOllamaProvider(baseURL, model string) *OllamaProvider {
	return &OllamaProvider{
		baseURL: baseURL,
		model:   model,
		client: &http.Client{
			Timeout: 300 * time.Second, // ローカル推論は遅い場合があるため長めに設定
		},
	}
}

// Chat はツール呼び出し対応のチャットを実行
func (p *OllamaProvider) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	ollamaReq := map[string]interface{}{
		"model":    p.model,
		"messages": p.convertMessages(req.Messages),
		"stream":   false,
		"options": map[string]interface{}{
			"temperature": req.Temperature,
			"num_predict": req.MaxTokens,
		},
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
		ollamaReq["tools"] = tools
	}

	reqBody, err := json.Marshal(ollamaReq)
	if err != nil {
		return llm.ChatResponse{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/api/chat", bytes.NewReader(reqBody))
	if err != nil {
		return llm.ChatResponse{}, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return llm.ChatResponse{}, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return llm.ChatResponse{}, fmt.Errorf("ollama API error: status=%d, body=%s", resp.StatusCode, string(body))
	}

	var ollamaResp struct {
		Message struct {
			Role      string `json:"role"`
			Content   string `json:"content"`
			ToolCalls []struct {
				Function struct {
					Name      string          `json:"name"`
					Arguments json.RawMessage `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
		Done       bool   `json:"done"`
		DoneReason string `json:"done_reason"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return llm.ChatResponse{}, fmt.Errorf("failed to decode response: %w", err)
	}

	result := llm.ChatResponse{
		Content:      ollamaResp.Message.Content,
		FinishReason: ollamaResp.DoneReason,
	}

	// Ollamaは呼び出しIDを採番しないため、履歴の対応付け用にこちらで付与する
	for _, tc := range ollamaResp.Message.ToolCalls {
		args := string(tc.Function.Arguments)
		if args == "" {
			args = "{}"
		}
		result.ToolCalls = append(result.ToolCalls, llm.ToolCall{
			ID:        "call_" + uuid.NewString()[:8],
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}

	return result, nil
}

// Name はプロバイダー名を返す
func (p *OllamaProvider) Name() string {
	return fmt.Sprintf("ollama-%s", p.model)
}

// convertMessages はドメインメッセージをOllama chat APIフォーマットに変換
// Ollamaのtool_callsは引数をオブジェクトで受けるため、生JSONを戻して載せる
func (p *OllamaProvider) convertMessages(msgs []llm.Message) []map[string]interface{} {
	messages := make([]map[string]interface{}, 0, len(msgs))

	for _, msg := range msgs {
		m := map[string]interface{}{
			"role":    msg.Role,
			"content": msg.Content,
		}
		if len(msg.ToolCalls) > 0 {
			calls := make([]map[string]interface{}, 0, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				var args map[string]interface{}
				if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
					args = map[string]interface{}{}
				}
				calls = append(calls, map[string]interface{}{
					"function": map[string]interface{}{
						"name":      tc.Name,
						"arguments": args,
					},
				})
			}
			m["tool_calls"] = calls
		}
		messages = append(messages, m)
	}

	return messages
}
