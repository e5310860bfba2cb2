package rserver

import "encoding/json"

// rpcRequest はツールサーバーへのJSON-RPCリクエスト（1行1フレーム）
type rpcRequest struct {
	Jsonrpc string                 `json:"jsonrpc"`
	ID      int64                  `json:"id"`
	Method  string                 `json:"method"`
	Params  map[string]interface{} `json:"params"`
}

// rpcResponse はツールサーバーからのJSON-RPCレスポンス
type rpcResponse struct {
	Jsonrpc string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError はJSON-RPCエラーオブジェクト
type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// toolListResult は tools/list のresult
type toolListResult struct {
	Tools []toolEntry `json:"tools"`
}

// toolEntry はツールカタログの1エントリ
type toolEntry struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema,omitempty"`
}

// contentSegment は tools/call レスポンスのcontentセグメント
type contentSegment struct {
	Type string `json:"type"`
	Text string `json:"text"`
}
