package agent

import "fmt"

// ResultKind はAnalyzeの終わり方
type ResultKind int

const (
	// ResultCompleted はモデルが最終回答を返した
	ResultCompleted ResultKind = iota
	// ResultNeedsInput はユーザーの回答待ちで中断した
	ResultNeedsInput
	// ResultFailed はこの呼び出しがエラーで終わった（会話状態は保持される）
	ResultFailed
)

// Result はAnalyze 1回分の結果
// サスペンドを例外ではなく明示的な状態として返すため、
// コンソールとWebの両ホストが同じ契約で扱える
type Result struct {
	Kind     ResultKind
	Answer   string
	Question string
	Err      error
}

// Completed は最終回答つきの結果を作成
func Completed(answer string) Result {
	return Result{Kind: ResultCompleted, Answer: answer}
}

// NeedsInput はユーザー回答待ちの結果を作成
func NeedsInput(question string) Result {
	return Result{Kind: ResultNeedsInput, Question: question}
}

// Failed はエラー結果を作成
func Failed(err error) Result {
	return Result{Kind: ResultFailed, Err: err}
}

// Message は表示用の文字列を返す
func (r Result) Message() string {
	switch r.Kind {
	case ResultNeedsInput:
		return r.Question
	case ResultFailed:
		return fmt.Sprintf("分析中にエラーが発生しました:\n\n```\n%v\n```", r.Err)
	default:
		return r.Answer
	}
}
