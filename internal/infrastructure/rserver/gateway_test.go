package rserver

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Nyukimin/ranalyze/internal/domain/tools"
)

// fakeServer はcanned応答を順に返すstdioサーバーをshで組み立てる
// リクエストIDは1から単調増加なので応答の順序だけ合わせればよい
func fakeServer(responses ...string) []string {
	script := ""
	for _, r := range responses {
		script += "read line; echo '" + r + "'; "
	}
	script += "cat > /dev/null"
	return []string{"/bin/sh", "-c", script}
}

const initOK = `{"jsonrpc":"2.0","id":1,"result":{"protocolVersion":"2024-11-05","capabilities":{}}}`

func TestListToolsFiltersSessionTools(t *testing.T) {
	listResult := `{"jsonrpc":"2.0","id":2,"result":{"tools":[` +
		`{"name":"r_eda","description":"explore","inputSchema":{"type":"object"}},` +
		`{"name":"list_r_sessions","description":"sessions"},` +
		`{"name":"select_r_session","description":"select"},` +
		`{"name":"r_clean_data","description":"clean","inputSchema":{"type":"object"}}]}}`

	g := NewGateway(fakeServer(initOK, listResult), 5*time.Second)
	defer g.Close()

	descriptors, err := g.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools failed: %v", err)
	}

	if len(descriptors) != 2 {
		t.Fatalf("Expected 2 usable tools, got %d", len(descriptors))
	}
	if descriptors[0].Name != "r_eda" || descriptors[1].Name != "r_clean_data" {
		t.Errorf("Session tools should be filtered, got %v", descriptors)
	}
	if descriptors[0].InputSchema["type"] != "object" {
		t.Errorf("Input schema should be preserved, got %v", descriptors[0].InputSchema)
	}
}

func TestListToolsCached(t *testing.T) {
	listResult := `{"jsonrpc":"2.0","id":2,"result":{"tools":[{"name":"r_eda","description":"explore"}]}}`
	g := NewGateway(fakeServer(initOK, listResult), 5*time.Second)
	defer g.Close()

	first, err := g.ListTools(context.Background())
	if err != nil {
		t.Fatalf("First ListTools failed: %v", err)
	}
	// 2回目は応答が用意されていないのでキャッシュが効いていなければタイムアウトする
	second, err := g.ListTools(context.Background())
	if err != nil {
		t.Fatalf("Second ListTools should hit the cache: %v", err)
	}
	if len(first) != len(second) {
		t.Error("Cached catalogue should match the first result")
	}
}

func TestCallToolExtractsText(t *testing.T) {
	callResult := `{"jsonrpc":"2.0","id":2,"result":{"content":[{"type":"text","text":"rows: 10"},{"type":"text","text":"cols: 3"}]}}`
	g := NewGateway(fakeServer(initOK, callResult), 5*time.Second)
	defer g.Close()

	got, err := g.CallTool(context.Background(), "r_eda", map[string]interface{}{"path": "/work/data.csv"})
	if err != nil {
		t.Fatalf("CallTool failed: %v", err)
	}
	if got != "rows: 10\ncols: 3" {
		t.Errorf("Text segments should be joined with newlines, got %q", got)
	}
}

func TestCallToolServerError(t *testing.T) {
	callResult := `{"jsonrpc":"2.0","id":2,"error":{"code":-32000,"message":"object not found"}}`
	g := NewGateway(fakeServer(initOK, callResult), 5*time.Second)
	defer g.Close()

	_, err := g.CallTool(context.Background(), "r_eda", map[string]interface{}{})
	var invErr *tools.InvocationError
	if !errors.As(err, &invErr) {
		t.Fatalf("Expected InvocationError, got %T: %v", err, err)
	}
	if invErr.Tool != "r_eda" || invErr.Code != -32000 {
		t.Errorf("Error details should be preserved: %+v", invErr)
	}
}

func TestCallToolTimeout(t *testing.T) {
	// initializeには答えるがtools/callには答えないサーバー
	g := NewGateway(fakeServer(initOK), 200*time.Millisecond)
	defer g.Close()

	_, err := g.CallTool(context.Background(), "r_eda", map[string]interface{}{})
	var protoErr *tools.ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("Expected ProtocolError on timeout, got %T: %v", err, err)
	}
	if protoErr.Method != "tools/call" {
		t.Errorf("Expected method tools/call, got %s", protoErr.Method)
	}
}

func TestCallToolRecoversAfterTimeout(t *testing.T) {
	// id=2のリクエストには答えず、id=3のリクエストを受け取った時点で
	// 遅延したid=2の応答とid=3の応答をまとめて返すサーバー
	script := "read line; echo '" + initOK + "'; " +
		"read line; " +
		"read line; " +
		"echo '{\"jsonrpc\":\"2.0\",\"id\":2,\"result\":{\"content\":[{\"type\":\"text\",\"text\":\"stale\"}]}}'; " +
		"echo '{\"jsonrpc\":\"2.0\",\"id\":3,\"result\":{\"content\":[{\"type\":\"text\",\"text\":\"fresh\"}]}}'; " +
		"cat > /dev/null"
	g := NewGateway([]string{"/bin/sh", "-c", script}, 300*time.Millisecond)
	defer g.Close()

	_, err := g.CallTool(context.Background(), "r_eda", map[string]interface{}{})
	var protoErr *tools.ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("First call should time out, got %T: %v", err, err)
	}

	// 遅延応答は読み捨てられ、次のリクエストは正しい応答に到達する
	got, err := g.CallTool(context.Background(), "r_eda", map[string]interface{}{})
	if err != nil {
		t.Fatalf("Second call should recover after the stale line: %v", err)
	}
	if got != "fresh" {
		t.Errorf("Expected the current request's result, got %q", got)
	}
}

func TestStartupFailure(t *testing.T) {
	g := NewGateway([]string{"/nonexistent/r-server-binary"}, time.Second)
	defer g.Close()

	_, err := g.ListTools(context.Background())
	var unavailable *tools.GatewayUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("Expected GatewayUnavailableError, got %T: %v", err, err)
	}
}

func TestHandshakeRejected(t *testing.T) {
	initErr := `{"jsonrpc":"2.0","id":1,"error":{"code":-32600,"message":"unsupported protocol"}}`
	g := NewGateway(fakeServer(initErr), time.Second)
	defer g.Close()

	_, err := g.ListTools(context.Background())
	var unavailable *tools.GatewayUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("Expected GatewayUnavailableError on rejected handshake, got %T: %v", err, err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	g := NewGateway(fakeServer(initOK), time.Second)

	// 起動前のCloseも安全
	if err := g.Close(); err != nil {
		t.Errorf("Close before start should succeed: %v", err)
	}
	if err := g.Close(); err != nil {
		t.Errorf("Second Close should succeed: %v", err)
	}

	// Close後の利用は拒否される
	_, err := g.ListTools(context.Background())
	var unavailable *tools.GatewayUnavailableError
	if !errors.As(err, &unavailable) {
		t.Errorf("Use after Close should fail with GatewayUnavailableError, got %v", err)
	}
}

func TestExtractText(t *testing.T) {
	tests := []struct {
		name   string
		result string
		want   string
	}{
		{
			"single text segment",
			`{"content":[{"type":"text","text":"hello"}]}`,
			"hello",
		},
		{
			"non-text segments skipped",
			`{"content":[{"type":"image","text":"x"},{"type":"text","text":"kept"}]}`,
			"kept",
		},
		{
			"no content field returns raw json",
			`{"rows":10,"cols":3}`,
			`{"rows":10,"cols":3}`,
		},
		{
			"empty content",
			`{"content":[]}`,
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractText(json.RawMessage(tt.result))
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}
