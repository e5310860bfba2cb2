package tools

import "fmt"

// GatewayUnavailableError はツールサーバーの起動またはハンドシェイク失敗
// 起動時に発生した場合は致命的エラーとして扱う
type GatewayUnavailableError struct {
	Reason string
	Err    error
}

func (e *GatewayUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tool server unavailable: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("tool server unavailable: %s", e.Reason)
}

func (e *GatewayUnavailableError) Unwrap() error {
	return e.Err
}

// ProtocolError はツールサーバーとの通信中のフレーミング違反・無応答
type ProtocolError struct {
	Method string
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("tool protocol error on %s: %s", e.Method, e.Reason)
}

// InvocationError はツールサーバーが返したリモートエラー
// ペイロードはそのままモデルに渡せるよう保持する
type InvocationError struct {
	Tool    string
	Code    int
	Message string
	Data    string
}

func (e *InvocationError) Error() string {
	if e.Data != "" {
		return fmt.Sprintf("tool %s failed (code %d): %s: %s", e.Tool, e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("tool %s failed (code %d): %s", e.Tool, e.Code, e.Message)
}
