package deepseek

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Nyukimin/ranalyze/internal/domain/llm"
)

func TestNewDeepSeekProvider(t *testing.T) {
	provider := NewDeepSeekProvider("test-api-key", "deepseek-chat")

	if provider == nil {
		t.Fatal("NewDeepSeekProvider should not return nil")
	}

	if provider.Name() != "deepseek-deepseek-chat" {
		t.Errorf("Unexpected name: '%s'", provider.Name())
	}
}

func TestDeepSeekProviderChat_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("Expected path '/v1/chat/completions', got '%s'", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-api-key" {
			t.Errorf("Unexpected Authorization: '%s'", r.Header.Get("Authorization"))
		}

		response := map[string]interface{}{
			"choices": []map[string]interface{}{
				{
					"message":       map[string]interface{}{"role": "assistant", "content": "分析結果です。"},
					"finish_reason": "stop",
				},
			},
			"usage": map[string]interface{}{"total_tokens": 25},
		}
		json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	provider := NewDeepSeekProvider("test-api-key", "deepseek-chat")
	provider.SetBaseURL(server.URL)

	resp, err := provider.Chat(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{{Role: "user", Content: "分析して"}},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	if resp.Content != "分析結果です。" {
		t.Errorf("Unexpected content: '%s'", resp.Content)
	}
	if resp.TokensUsed != 25 {
		t.Errorf("Expected 25 tokens used, got %d", resp.TokensUsed)
	}
}

func TestDeepSeekProviderChat_ToolCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqBody map[string]interface{}
		json.NewDecoder(r.Body).Decode(&reqBody)

		if _, ok := reqBody["tools"]; !ok {
			t.Error("Request should carry tools")
		}
		if reqBody["tool_choice"] != "auto" {
			t.Errorf("Expected tool_choice auto, got %v", reqBody["tool_choice"])
		}

		response := map[string]interface{}{
			"choices": []map[string]interface{}{
				{
					"message": map[string]interface{}{
						"role": "assistant",
						"tool_calls": []map[string]interface{}{
							{
								"id": "call_ds",
								"function": map[string]interface{}{
									"name":      "r_eda",
									"arguments": `{"path":"data.csv"}`,
								},
							},
						},
					},
					"finish_reason": "tool_calls",
				},
			},
			"usage": map[string]interface{}{"total_tokens": 40},
		}
		json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	provider := NewDeepSeekProvider("test-api-key", "deepseek-chat")
	provider.SetBaseURL(server.URL)

	resp, err := provider.Chat(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{{Role: "user", Content: "分析して"}},
		Tools:    []llm.ToolDefinition{{Name: "r_eda", Parameters: map[string]interface{}{"type": "object"}}},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	if len(resp.ToolCalls) != 1 {
		t.Fatalf("Expected 1 tool call, got %d", len(resp.ToolCalls))
	}
	if resp.ToolCalls[0].ID != "call_ds" || resp.ToolCalls[0].Arguments != `{"path":"data.csv"}` {
		t.Errorf("Unexpected tool call: %+v", resp.ToolCalls[0])
	}
}

func TestDeepSeekProviderChat_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{"message": "Invalid API key"},
		})
	}))
	defer server.Close()

	provider := NewDeepSeekProvider("bad-key", "deepseek-chat")
	provider.SetBaseURL(server.URL)

	_, err := provider.Chat(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{{Role: "user", Content: "テスト"}},
	})
	if err == nil {
		t.Error("Expected error for invalid API key")
	}
}
