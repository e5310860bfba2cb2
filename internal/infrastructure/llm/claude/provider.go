package claude

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

const defaultBaseURL = "https://api.anthropic.com"
const anthropicVersion = "2023-06-01"

// ClaudeProvider はClaude APIプロバイダーの実装
type ClaudeProvider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewClaudeProvider は新しいClaudeProviderを作成
func NewClaudeProvider(apiKey, model string) *ClaudeProvider {
	return &ClaudeProvider{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// SetBaseURL はベースURLを設定（テスト用）
func (p *ClaudeProvider) SetBaseURL(url string) {
	p.baseURL = url
}

// Chat はツール呼び出し対応のメッセージ生成を実行
func (p *ClaudeProvider) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	claudeReq := map[string]interface{}{
		"model":      p.model,
		"messages":   p.convertMessages(req.Messages),
		"max_tokens": maxTokens,
	}

	// Claude APIはsystemロールをサポートしないため、systemはトップレベルで渡す
	if system := systemPromptOf(req.Messages); system != "" {
		claudeReq["system"] = system
	}

	if req.Temperature > 0 {
		claudeReq["temperature"] = req.Temperature
	}

	if len(req.Tools) > 0 {
		claudeReq["tools"] = p.convertTools(req.Tools)
	}

	reqBody, err := json.Marshal(claudeReq)
	if err != nil {
		return llm.ChatResponse{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/v1/messages", bytes.NewReader(reqBody))
	if err != nil {
		return llm.ChatResponse{}, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return llm.ChatResponse{}, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return llm.ChatResponse{}, fmt.Errorf("claude API error: status=%d, body=%s", resp.StatusCode, string(body))
	}

	return p.parseResponse(resp.Body)
}

// Name はプロバイダー名を返す
func (p *ClaudeProvider) Name() string {
	return fmt.Sprintf("claude-%s", p.model)
}

// systemPromptOf は履歴からsystemメッセージの本文を取り出す
func systemPromptOf(messages []llm.Message) string {
	for _, msg := range messages {
		if msg.Role == "system" {
			return msg.Content
		}
	}
	return ""
}

// convertMessages はドメインメッセージをClaude APIフォーマットに変換
// ツール呼び出しはtool_useブロック、ツール結果はtool_resultブロックで表す
func (p *ClaudeProvider) convertMessages(messages []llm.Message) []map[string]interface{} {
	claudeMessages := make([]map[string]interface{}, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			continue
		case "assistant":
			content := make([]map[string]interface{}, 0, len(msg.ToolCalls)+1)
			if msg.Content != "" {
				content = append(content, map[string]interface{}{
					"type": "text",
					"text": msg.Content,
				})
			}
			for _, tc := range msg.ToolCalls {
				var input map[string]interface{}
				if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
					input = map[string]interface{}{}
				}
				content = append(content, map[string]interface{}{
					"type":  "tool_use",
					"id":    tc.ID,
					"name":  tc.Name,
					"input": input,
				})
			}
			claudeMessages = append(claudeMessages, map[string]interface{}{
				"role":    "assistant",
				"content": content,
			})
		case "tool":
			claudeMessages = append(claudeMessages, map[string]interface{}{
				"role": "user",
				"content": []map[string]interface{}{
					{
						"type":        "tool_result",
						"tool_use_id": msg.ToolCallID,
						"content":     msg.Content,
					},
				},
			})
		default:
			claudeMessages = append(claudeMessages, map[string]interface{}{
				"role": msg.Role,
				"content": []map[string]interface{}{
					{
						"type": "text",
						"text": msg.Content,
					},
				},
			})
		}
	}

	return claudeMessages
}

// convertTools はツール定義をClaudeのtools形式に変換
func (p *ClaudeProvider) convertTools(defs []llm.ToolDefinition) []map[string]interface{} {
	tools := make([]map[string]interface{}, 0, len(defs))
	for _, def := range defs {
		schema := def.Parameters
		if schema == nil {
			schema = map[string]interface{}{"type": "object"}
		}
		tools = append(tools, map[string]interface{}{
			"name":         def.Name,
			"description":  def.Description,
			"input_schema": schema,
		})
	}
	return tools
}

// parseResponse はAPI応答をドメイン型に変換
// tool_useブロックの入力は生のJSON文字列に戻して保持する
func (p *ClaudeProvider) parseResponse(body io.Reader) (llm.ChatResponse, error) {
	var claudeResp struct {
		Content []struct {
			Type  string          `json:"type"`
			Text  string          `json:"text"`
			ID    string          `json:"id"`
			Name  string          `json:"name"`
			Input json.RawMessage `json:"input"`
		} `json:"content"`
		StopReason string `json:"stop_reason"`
		Usage      struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}

	if err := json.NewDecoder(body).Decode(&claudeResp); err != nil {
		return llm.ChatResponse{}, fmt.Errorf("failed to decode response: %w", err)
	}

	result := llm.ChatResponse{
		TokensUsed:   claudeResp.Usage.InputTokens + claudeResp.Usage.OutputTokens,
		FinishReason: claudeResp.StopReason,
	}

	for _, block := range claudeResp.Content {
		switch block.Type {
		case "text":
			if result.Content == "" {
				result.Content = block.Text
			}
		case "tool_use":
			args := string(block.Input)
			if args == "" {
				args = "{}"
			}
			result.ToolCalls = append(result.ToolCalls, llm.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: args,
			})
		}
	}

	return result, nil
}
