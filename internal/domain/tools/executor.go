package tools

import "context"

// Descriptor は外部ツールサーバーが公開するツール定義
// 一度取得したら接続のライフタイム中は不変
type Descriptor struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// Executor は外部ツール実行プロセスへの抽象化
// 実装はサブプロセスのライフサイクルを所有する
type Executor interface {
	ListTools(ctx context.Context) ([]Descriptor, error)
	CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error)
	Close() error
}
