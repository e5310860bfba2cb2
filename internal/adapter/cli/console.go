package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/chzyer/readline"

	"github.com/Nyukimin/ranalyze/internal/domain/agent"
)

// ConsoleAsker は端末上でユーザーに質問するAsker実装
// エージェントの質問を表示し、回答が入力されるまでブロックする
type ConsoleAsker struct {
	rl *readline.Instance
}

// NewConsoleAsker は新しいConsoleAskerを作成
func NewConsoleAsker(rl *readline.Instance) *ConsoleAsker {
	return &ConsoleAsker{rl: rl}
}

// Ask は質問を表示して回答を読む
// 空回答は「続けて」として扱う
func (a *ConsoleAsker) Ask(ctx context.Context, message string) (string, error) {
	fmt.Printf("\n[質問] %s\n", message)

	a.rl.SetPrompt("回答 > ")
	defer a.rl.SetPrompt(prompt)

	line, err := a.rl.Readline()
	if err != nil {
		return "", err
	}

	answer := strings.TrimSpace(line)
	if answer == "" {
		answer = "続けて"
	}
	return answer, nil
}

const prompt = "分析 > "

// Console は対話型の分析セッションを提供する
type Console struct {
	agent *agent.Agent
	log   *slog.Logger
}

// NewConsole は新しいConsoleを作成
func NewConsole(a *agent.Agent) *Console {
	return &Console{
		agent: a,
		log:   slog.With("component", "console"),
	}
}

// Run は入力ループを開始し、EOFか終了コマンドまでブロックする
func (c *Console) Run(ctx context.Context, rl *readline.Instance) error {
	fmt.Println("Rデータ分析エージェント")
	fmt.Println("分析したい内容を入力してください。exitで終了、resetで会話をリセットします。")

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}

		input := strings.TrimSpace(line)
		switch strings.ToLower(input) {
		case "":
			continue
		case "exit", "quit", "q":
			fmt.Println("終了します。")
			return nil
		case "reset", "clear":
			c.agent.Reset()
			fmt.Println("会話をリセットしました。")
			continue
		}

		result := c.agent.Analyze(ctx, input)
		if result.Kind == agent.ResultFailed {
			c.log.Error("analysis failed", "error", result.Err)
		}
		fmt.Printf("\n%s\n\n", result.Message())
	}
}

// NewReadline は履歴つきのreadlineインスタンスを作成
func NewReadline() (*readline.Instance, error) {
	return readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     "/tmp/ranalyze_history",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
}
