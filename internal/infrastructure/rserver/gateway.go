package rserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Nyukimin/ranalyze/internal/domain/tools"
)

const protocolVersion = "2024-11-05"

// excludedTools はカタログから無条件に除外するツール名
// これらはスキーマが不完全でモデル側の関数呼び出し規約に適合しない
var excludedTools = map[string]bool{
	"list_r_sessions":  true,
	"select_r_session": true,
}

// Gateway はRツールサーバーへの stdio JSON-RPC クライアント
// サブプロセスとその標準ストリームを所有し、同時に送れるリクエストは1つだけ
type Gateway struct {
	command []string
	timeout time.Duration
	log     *slog.Logger

	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	lines     chan string
	requestID int64
	toolCache []tools.Descriptor
	closed    bool
}

// NewGateway は新しいGatewayを作成
// commandはサーバー起動コマンドとその引数、timeoutは1リクエストあたりの応答待ち時間
func NewGateway(command []string, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Gateway{
		command: command,
		timeout: timeout,
		log:     slog.With("component", "rserver"),
	}
}

// ListTools はツールカタログを取得
// 初回呼び出しでサーバーを起動してinitializeハンドシェイクを行い、結果をキャッシュする
func (g *Gateway) ListTools(ctx context.Context) ([]tools.Descriptor, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.toolCache != nil {
		return g.toolCache, nil
	}

	if err := g.ensureStarted(ctx); err != nil {
		return nil, err
	}

	resp, err := g.send(ctx, "tools/list", map[string]interface{}{})
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, &tools.ProtocolError{Method: "tools/list", Reason: resp.Error.Message}
	}

	var result toolListResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, &tools.ProtocolError{Method: "tools/list", Reason: fmt.Sprintf("unexpected result shape: %v", err)}
	}

	descriptors := make([]tools.Descriptor, 0, len(result.Tools))
	for _, t := range result.Tools {
		if excludedTools[t.Name] {
			continue
		}
		descriptors = append(descriptors, tools.Descriptor{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}

	g.log.Info("tool catalogue loaded",
		"total", len(result.Tools),
		"usable", len(descriptors))

	g.toolCache = descriptors
	return descriptors, nil
}

// CallTool はツールを1回呼び出し、テキスト結果を返す
func (g *Gateway) CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.ensureStarted(ctx); err != nil {
		return "", err
	}

	g.log.Info("calling tool", "tool", name)

	resp, err := g.send(ctx, "tools/call", map[string]interface{}{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", &tools.InvocationError{
			Tool:    name,
			Code:    resp.Error.Code,
			Message: resp.Error.Message,
			Data:    string(resp.Error.Data),
		}
	}

	return extractText(resp.Result), nil
}

// Close はサーバープロセスを終了させる（terminate→短時間待機→kill）
// 冪等で、起動前や失敗後に呼んでも安全
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed || g.cmd == nil {
		g.closed = true
		return nil
	}
	g.closed = true

	if g.stdin != nil {
		g.stdin.Close()
	}
	if g.cmd.Process != nil {
		g.cmd.Process.Signal(syscall.SIGTERM)
	}

	done := make(chan error, 1)
	go func() { done <- g.cmd.Wait() }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		if g.cmd.Process != nil {
			g.cmd.Process.Kill()
		}
		<-done
	}

	g.log.Info("tool server closed")
	return nil
}

// ensureStarted はサーバー未起動なら起動してハンドシェイクを行う
// 呼び出し側がmuを保持していること
func (g *Gateway) ensureStarted(ctx context.Context) error {
	if g.closed {
		return &tools.GatewayUnavailableError{Reason: "gateway already closed"}
	}
	if g.cmd != nil {
		return nil
	}
	if len(g.command) == 0 {
		return &tools.GatewayUnavailableError{Reason: "no server command configured"}
	}

	g.log.Info("starting tool server", "command", strings.Join(g.command, " "))

	cmd := exec.Command(g.command[0], g.command[1:]...)
	cmd.Env = os.Environ()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &tools.GatewayUnavailableError{Reason: "stdin pipe", Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &tools.GatewayUnavailableError{Reason: "stdout pipe", Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &tools.GatewayUnavailableError{Reason: "stderr pipe", Err: err}
	}

	if err := cmd.Start(); err != nil {
		return &tools.GatewayUnavailableError{Reason: "failed to start process", Err: err}
	}

	lines := make(chan string, 4)
	go func() {
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	// サーバー側の診断出力はデバッグログに流す
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			g.log.Debug("tool server stderr", "line", scanner.Text())
		}
	}()

	g.cmd = cmd
	g.stdin = stdin
	g.lines = lines

	if err := g.initialize(ctx); err != nil {
		g.cmd = nil
		g.stdin = nil
		g.lines = nil
		stdin.Close()
		cmd.Process.Kill()
		go cmd.Wait()
		return &tools.GatewayUnavailableError{Reason: "handshake failed", Err: err}
	}

	g.log.Info("tool server started", "pid", cmd.Process.Pid)
	return nil
}

// initialize はケイパビリティハンドシェイクを1回だけ送る
func (g *Gateway) initialize(ctx context.Context) error {
	resp, err := g.send(ctx, "initialize", map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]interface{}{},
		"clientInfo": map[string]interface{}{
			"name":    "ranalyze",
			"version": "1.0.0",
		},
	})
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return fmt.Errorf("initialize rejected: %s", resp.Error.Message)
	}
	return nil
}

// send は1リクエストを書き込み、対応する1レスポンス行を同期的に待つ
// リクエストIDは単調増加で一意性のみ保証する（同時実行は想定しない）
func (g *Gateway) send(ctx context.Context, method string, params map[string]interface{}) (*rpcResponse, error) {
	g.requestID++
	req := rpcRequest{
		Jsonrpc: "2.0",
		ID:      g.requestID,
		Method:  method,
		Params:  params,
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	if _, err := g.stdin.Write(append(data, '\n')); err != nil {
		return nil, &tools.ProtocolError{Method: method, Reason: fmt.Sprintf("write failed: %v", err)}
	}

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	for {
		select {
		case line, ok := <-g.lines:
			if !ok {
				return nil, &tools.ProtocolError{Method: method, Reason: "server closed its output stream"}
			}
			var resp rpcResponse
			if err := json.Unmarshal([]byte(line), &resp); err != nil {
				return nil, &tools.ProtocolError{Method: method, Reason: fmt.Sprintf("malformed response line: %v", err)}
			}
			if resp.ID < req.ID {
				// タイムアウト済みリクエストへの遅延応答は読み捨てる
				g.log.Warn("discarding stale response", "id", resp.ID, "current", req.ID)
				continue
			}
			if resp.ID != req.ID {
				return nil, &tools.ProtocolError{Method: method, Reason: fmt.Sprintf("response id %d does not match request id %d", resp.ID, req.ID)}
			}
			return &resp, nil
		case <-timer.C:
			return nil, &tools.ProtocolError{Method: method, Reason: fmt.Sprintf("no response within %s", g.timeout)}
		case <-ctx.Done():
			return nil, &tools.ProtocolError{Method: method, Reason: ctx.Err().Error()}
		}
	}
}

// extractText はtools/call結果からテキストを取り出す
// content配列があればtext型セグメントを改行で連結し、なければresult全体のJSONを返す
func extractText(result json.RawMessage) string {
	var shaped struct {
		Content []contentSegment `json:"content"`
	}
	if err := json.Unmarshal(result, &shaped); err == nil && shaped.Content != nil {
		parts := make([]string, 0, len(shaped.Content))
		for _, seg := range shaped.Content {
			if seg.Type == "text" {
				parts = append(parts, seg.Text)
			}
		}
		return strings.Join(parts, "\n")
	}
	return string(result)
}
