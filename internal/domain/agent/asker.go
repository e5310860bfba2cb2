package agent

import (
	"context"
	"errors"
)

// ErrAwaitingInput はループを中断してユーザーの回答を待つべきことを示す制御シグナル
// 障害ではないため、汎用のエラー処理で握りつぶしてはならない
var ErrAwaitingInput = errors.New("awaiting user input")

// Asker はエージェントからユーザーへの質問チャネル
// ブロッキング実装は回答を返し、サスペンド実装はErrAwaitingInputを返す
type Asker interface {
	Ask(ctx context.Context, message string) (string, error)
}

// DeferredAsker はイベント駆動ホスト向けのサスペンド実装
// 常にErrAwaitingInputを返し、回答は次のAnalyze呼び出しで届く
type DeferredAsker struct{}

// Ask は即座にErrAwaitingInputを返す
func (DeferredAsker) Ask(ctx context.Context, message string) (string, error) {
	return "", ErrAwaitingInput
}
