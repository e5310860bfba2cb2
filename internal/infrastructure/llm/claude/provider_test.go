package claude

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Nyukimin/ranalyze/internal/domain/llm"
)

func TestNewClaudeProvider(t *testing.T) {
	provider := NewClaudeProvider("test-api-key", "claude-sonnet-4-20250514")

	if provider == nil {
		t.Fatal("NewClaudeProvider should not return nil")
	}

	if provider.Name() != "claude-claude-sonnet-4-20250514" {
		t.Errorf("Unexpected name: '%s'", provider.Name())
	}
}

func TestClaudeProviderChat_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("Expected path '/v1/messages', got '%s'", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-api-key" {
			t.Errorf("Expected x-api-key header, got '%s'", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != "2023-06-01" {
			t.Errorf("Unexpected anthropic-version: '%s'", r.Header.Get("anthropic-version"))
		}

		var reqBody map[string]interface{}
		json.NewDecoder(r.Body).Decode(&reqBody)

		// systemメッセージはトップレベルのsystemで渡される
		if reqBody["system"] != "あなたはデータ分析の専門家です" {
			t.Errorf("Expected top-level system prompt, got '%v'", reqBody["system"])
		}
		messages := reqBody["messages"].([]interface{})
		if len(messages) != 1 {
			t.Errorf("System message should not appear in messages, got %d entries", len(messages))
		}

		response := map[string]interface{}{
			"content": []map[string]interface{}{
				{"type": "text", "text": "平均値は42です。"},
			},
			"stop_reason": "end_turn",
			"usage":       map[string]interface{}{"input_tokens": 10, "output_tokens": 20},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	provider := NewClaudeProvider("test-api-key", "claude-sonnet-4-20250514")
	provider.SetBaseURL(server.URL)

	resp, err := provider.Chat(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: "あなたはデータ分析の専門家です"},
			{Role: "user", Content: "data.csvの平均を教えて"},
		},
		MaxTokens: 1000,
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	if resp.Content != "平均値は42です。" {
		t.Errorf("Unexpected content: '%s'", resp.Content)
	}
	if resp.TokensUsed != 30 {
		t.Errorf("Expected 30 tokens used, got %d", resp.TokensUsed)
	}
	if resp.FinishReason != "end_turn" {
		t.Errorf("Expected stop reason 'end_turn', got '%s'", resp.FinishReason)
	}
}

func TestClaudeProviderChat_ToolUse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqBody map[string]interface{}
		json.NewDecoder(r.Body).Decode(&reqBody)

		tools, ok := reqBody["tools"].([]interface{})
		if !ok || len(tools) != 1 {
			t.Fatalf("Expected 1 tool, got %v", reqBody["tools"])
		}
		tool := tools[0].(map[string]interface{})
		if tool["name"] != "r_eda" {
			t.Errorf("Expected tool name r_eda, got %v", tool["name"])
		}
		if _, ok := tool["input_schema"]; !ok {
			t.Error("Tool should carry input_schema")
		}

		response := map[string]interface{}{
			"content": []map[string]interface{}{
				{"type": "text", "text": "データを確認します。"},
				{
					"type":  "tool_use",
					"id":    "toolu_123",
					"name":  "r_eda",
					"input": map[string]interface{}{"path": "data.csv"},
				},
			},
			"stop_reason": "tool_use",
			"usage":       map[string]interface{}{"input_tokens": 5, "output_tokens": 5},
		}
		json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	provider := NewClaudeProvider("test-api-key", "claude-sonnet-4-20250514")
	provider.SetBaseURL(server.URL)

	resp, err := provider.Chat(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{{Role: "user", Content: "分析して"}},
		Tools: []llm.ToolDefinition{
			{Name: "r_eda", Description: "explore", Parameters: map[string]interface{}{"type": "object"}},
		},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	if len(resp.ToolCalls) != 1 {
		t.Fatalf("Expected 1 tool call, got %d", len(resp.ToolCalls))
	}
	call := resp.ToolCalls[0]
	if call.ID != "toolu_123" || call.Name != "r_eda" {
		t.Errorf("Unexpected tool call: %+v", call)
	}

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		t.Fatalf("Arguments should be valid JSON: %v", err)
	}
	if args["path"] != "data.csv" {
		t.Errorf("Unexpected arguments: %v", args)
	}
	if resp.Content != "データを確認します。" {
		t.Errorf("Text block should be kept alongside tool_use, got '%s'", resp.Content)
	}
}

func TestClaudeProviderChat_ToolHistoryBlocks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqBody map[string]interface{}
		json.NewDecoder(r.Body).Decode(&reqBody)

		messages := reqBody["messages"].([]interface{})
		if len(messages) != 3 {
			t.Fatalf("Expected 3 messages, got %d", len(messages))
		}

		// assistant側はtool_useブロック
		assistant := messages[1].(map[string]interface{})
		blocks := assistant["content"].([]interface{})
		toolUse := blocks[0].(map[string]interface{})
		if toolUse["type"] != "tool_use" || toolUse["id"] != "toolu_1" {
			t.Errorf("Expected tool_use block, got %v", toolUse)
		}
		input := toolUse["input"].(map[string]interface{})
		if input["path"] != "data.csv" {
			t.Errorf("Tool input should be structured, got %v", input)
		}

		// ツール結果はuserロールのtool_resultブロック
		result := messages[2].(map[string]interface{})
		if result["role"] != "user" {
			t.Errorf("Tool results must use the user role, got %v", result["role"])
		}
		resultBlock := result["content"].([]interface{})[0].(map[string]interface{})
		if resultBlock["type"] != "tool_result" || resultBlock["tool_use_id"] != "toolu_1" {
			t.Errorf("Expected tool_result for toolu_1, got %v", resultBlock)
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"content":     []map[string]interface{}{{"type": "text", "text": "done"}},
			"stop_reason": "end_turn",
			"usage":       map[string]interface{}{"input_tokens": 1, "output_tokens": 1},
		})
	}))
	defer server.Close()

	provider := NewClaudeProvider("test-api-key", "claude-sonnet-4-20250514")
	provider.SetBaseURL(server.URL)

	_, err := provider.Chat(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "user", Content: "分析して"},
			{Role: "assistant", ToolCalls: []llm.ToolCall{
				{ID: "toolu_1", Name: "r_eda", Arguments: `{"path":"data.csv"}`},
			}},
			{Role: "tool", Content: "rows: 10", ToolCallID: "toolu_1"},
		},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
}

func TestClaudeProviderChat_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{"type": "invalid_request_error", "message": "bad request"},
		})
	}))
	defer server.Close()

	provider := NewClaudeProvider("test-api-key", "claude-sonnet-4-20250514")
	provider.SetBaseURL(server.URL)

	_, err := provider.Chat(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{{Role: "user", Content: "テスト"}},
	})
	if err == nil {
		t.Error("Expected error when API rejects the request")
	}
}
