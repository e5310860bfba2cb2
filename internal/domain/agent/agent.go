package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tidwall/gjson"

	"github.com/Nyukimin/ranalyze/internal/domain/llm"
	"github.com/Nyukimin/ranalyze/internal/domain/tools"
)

// cleaningToolName は改名マップ（column_map）を報告するデータクリーニングツール
const cleaningToolName = "r_clean_data"

// incompleteMessage は反復上限に達したときの固定回答
const incompleteMessage = "分析が完了しませんでした（最大反復回数に達しました）。要求を簡略化するか、段階的に質問してください。"

// Options はAgentの調整パラメータ
type Options struct {
	MaxIterations int
	MaxTokens     int
	Temperature   float64
}

// Agent は1セッションの分析エージェントループ
// 会話状態・保留質問・列名置換表を排他的に所有する。
// 内部ロックは持たないため、Analyzeの呼び出しは外部で直列化すること
type Agent struct {
	provider      llm.LLMProvider
	executor      tools.Executor
	asker         Asker
	workDir       string
	maxIterations int
	maxTokens     int
	temperature   float64
	log           *slog.Logger

	conv    *Conversation
	pending string // 回答待ちのtalk_to_user呼び出しID（最大1つ）
	remap   *IdentifierRemap
	paths   pathPolicy
}

// NewAgent は新しいAgentを作成
func NewAgent(provider llm.LLMProvider, executor tools.Executor, asker Asker, workDir string, opts Options) *Agent {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 20
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4096
	}
	if opts.Temperature <= 0 {
		// 計画の再現性のためほぼ決定的なサンプリングにする
		opts.Temperature = 0.1
	}

	return &Agent{
		provider:      provider,
		executor:      executor,
		asker:         asker,
		workDir:       workDir,
		maxIterations: opts.MaxIterations,
		maxTokens:     opts.MaxTokens,
		temperature:   opts.Temperature,
		log:           slog.With("component", "agent"),
		conv:          NewConversation(),
		remap:         NewIdentifierRemap(),
		paths:         pathPolicy{workDir: workDir},
	}
}

// PendingQuestion は回答待ちのツール呼び出しIDを返す（テスト・ホスト用）
func (a *Agent) PendingQuestion() string {
	return a.pending
}

// Conversation は会話状態を返す（テスト・ホスト用）
func (a *Agent) Conversation() *Conversation {
	return a.conv
}

// Reset は会話履歴と保留質問を無条件にクリアする
func (a *Agent) Reset() {
	a.conv.Reset()
	a.pending = ""
	a.log.Info("agent session reset")
}

// Analyze は分析要求（または保留質問への回答）を1回分処理する
// モデルが最終回答を返すか、ユーザー回答待ちになるか、エラーになるまでループする。
// エラー時も会話状態と保留質問は保持され、次の呼び出しで継続できる
func (a *Agent) Analyze(ctx context.Context, text string) Result {
	if a.pending != "" {
		// 直前のtalk_to_userへの回答として扱う
		callID := a.pending
		a.pending = ""
		if err := a.conv.AddToolResult(callID, text); err != nil {
			return Failed(err)
		}
		a.log.Info("user answer recorded", "call_id", callID)
	} else {
		if a.conv.Empty() {
			a.conv.Seed(buildSystemPrompt(a.workDir))
		}
		a.conv.AddUser(text)
	}

	catalogue, err := a.catalogue(ctx)
	if err != nil {
		a.log.Error("failed to load tool catalogue", "error", err)
		return Failed(err)
	}

	for iteration := 1; iteration <= a.maxIterations; iteration++ {
		a.log.Info("model round", "iteration", iteration, "max", a.maxIterations)

		resp, err := a.provider.Chat(ctx, llm.ChatRequest{
			Messages:    a.conv.Messages(),
			Tools:       catalogue,
			MaxTokens:   a.maxTokens,
			Temperature: a.temperature,
		})
		if err != nil {
			a.log.Error("model call failed", "iteration", iteration, "error", err)
			return Failed(fmt.Errorf("model call failed: %w", err))
		}

		if len(resp.ToolCalls) == 0 {
			answer := resp.Content
			if answer == "" {
				answer = "分析が完了しました。"
			}
			a.conv.AddAssistant(llm.Message{Content: answer})
			a.log.Info("analysis completed", "iterations", iteration)
			return Completed(answer)
		}

		// 要求されたツール呼び出しをそのまま履歴に記録してから順に実行する
		a.conv.AddAssistant(llm.Message{Content: resp.Content, ToolCalls: resp.ToolCalls})

		for _, call := range resp.ToolCalls {
			if call.Name == TalkToUserToolName {
				res, suspended := a.handleTalkToUser(ctx, call)
				if suspended {
					return res
				}
				if res.Kind == ResultFailed {
					return res
				}
				continue
			}

			if res, failed := a.executeToolCall(ctx, call); failed {
				return res
			}
		}
	}

	return Completed(incompleteMessage)
}

// handleTalkToUser はユーザー質問ツールを処理する
// サスペンド型Askerの場合は保留質問を記録してNeedsInputを返す（suspended=true）
func (a *Agent) handleTalkToUser(ctx context.Context, call llm.ToolCall) (Result, bool) {
	args, err := parseArguments(call.Arguments)
	if err != nil {
		// 質問文が取り出せないままサスペンドすると再開できないため、
		// 解析失敗はツール結果として報告して続行する
		if addErr := a.conv.AddToolResult(call.ID, malformedArgsMessage(err)); addErr != nil {
			return Failed(addErr), true
		}
		return Result{}, false
	}

	message, _ := stringArg(args, "message")
	a.log.Info("agent asks user", "call_id", call.ID)

	a.pending = call.ID
	answer, err := a.asker.Ask(ctx, message)
	if errors.Is(err, ErrAwaitingInput) {
		// 保留質問を残したまま呼び出し元へ制御を返す。
		// 次のAnalyzeの入力がこの呼び出しへの回答になる
		return NeedsInput(message), true
	}
	if err != nil {
		// 保留質問は残す。次の入力をこの呼び出しへの回答として受けられる
		return Failed(fmt.Errorf("interaction channel failed: %w", err)), true
	}

	a.pending = ""
	if err := a.conv.AddToolResult(call.ID, answer); err != nil {
		return Failed(err), true
	}
	return Result{}, false
}

// executeToolCall は外部ツール呼び出しを1件実行して結果を履歴へ追加する
// 戻り値failed=trueのときだけループ全体を打ち切る
func (a *Agent) executeToolCall(ctx context.Context, call llm.ToolCall) (Result, bool) {
	args, err := parseArguments(call.Arguments)
	if err != nil {
		// モデルの引数不正は致命ではなく、そのツール結果として報告する
		a.log.Warn("malformed tool arguments", "tool", call.Name, "error", err)
		if addErr := a.conv.AddToolResult(call.ID, malformedArgsMessage(err)); addErr != nil {
			return Failed(addErr), true
		}
		return Result{}, false
	}

	if formula, ok := stringArg(args, "formula_str"); ok && !a.remap.Empty() {
		rewritten := a.remap.Apply(formula)
		if rewritten != formula {
			a.log.Info("formula rewritten", "tool", call.Name, "before", formula, "after", rewritten)
		}
		args["formula_str"] = rewritten
	}

	a.paths.normalize(call.Name, args)

	resultStr, err := a.executor.CallTool(ctx, call.Name, args)
	if err != nil {
		var invErr *tools.InvocationError
		if errors.As(err, &invErr) {
			// リモートエラーはモデルに渡して自己修正させる
			a.log.Warn("tool reported error", "tool", call.Name, "error", invErr)
			if addErr := a.conv.AddToolResult(call.ID, invErr.Error()); addErr != nil {
				return Failed(addErr), true
			}
			return Result{}, false
		}
		// プロトコル（ゲートウェイ）レベルの失敗はこの呼び出し全体を打ち切る
		a.log.Error("tool gateway failure", "tool", call.Name, "error", err)
		return Failed(err), true
	}

	if call.Name == cleaningToolName {
		a.mergeColumnMap(resultStr)
	}

	// モデルには常にツールの生のテキスト出力を見せる
	if err := a.conv.AddToolResult(call.ID, resultStr); err != nil {
		return Failed(err), true
	}
	return Result{}, false
}

// mergeColumnMap はクリーニング結果の構造化出力から改名マップを取り込む
func (a *Agent) mergeColumnMap(resultStr string) {
	if !gjson.Valid(resultStr) {
		return
	}
	cm := gjson.Get(resultStr, "column_map")
	if !cm.IsObject() {
		return
	}

	renames := make(map[string]string)
	cm.ForEach(func(key, value gjson.Result) bool {
		renames[key.String()] = value.String()
		return true
	})
	if len(renames) == 0 {
		return
	}

	a.remap.Merge(renames)
	a.log.Info("column map updated", "renames", len(renames), "total", len(a.remap.Snapshot()))
}

// catalogue は外部ツールカタログにtalk_to_userを加えたツール定義一覧を返す
func (a *Agent) catalogue(ctx context.Context) ([]llm.ToolDefinition, error) {
	descriptors, err := a.executor.ListTools(ctx)
	if err != nil {
		return nil, err
	}

	defs := make([]llm.ToolDefinition, 0, len(descriptors)+1)
	for _, d := range descriptors {
		defs = append(defs, llm.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.InputSchema,
		})
	}
	defs = append(defs, talkToUserDefinition())
	return defs, nil
}

// parseArguments はモデルが出力した生の引数JSONを構造化する
func parseArguments(raw string) (map[string]interface{}, error) {
	if raw == "" {
		return map[string]interface{}{}, nil
	}
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("malformed tool arguments: %w", err)
	}
	return args, nil
}

// malformedArgsMessage は引数不正をモデルに報告する文面
func malformedArgsMessage(err error) string {
	return fmt.Sprintf("エラー: ツール引数を解析できませんでした: %v", err)
}
