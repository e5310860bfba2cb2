package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Nyukimin/ranalyze/internal/adapter/cli"
	"github.com/Nyukimin/ranalyze/internal/adapter/config"
	"github.com/Nyukimin/ranalyze/internal/adapter/web"
	"github.com/Nyukimin/ranalyze/internal/domain/agent"
	"github.com/Nyukimin/ranalyze/internal/domain/llm"
	"github.com/Nyukimin/ranalyze/internal/infrastructure/llm/claude"
	"github.com/Nyukimin/ranalyze/internal/infrastructure/llm/deepseek"
	"github.com/Nyukimin/ranalyze/internal/infrastructure/llm/ollama"
	"github.com/Nyukimin/ranalyze/internal/infrastructure/llm/openai"
	"github.com/Nyukimin/ranalyze/internal/infrastructure/rserver"
)

func main() {
	mode := flag.String("mode", "cli", "実行モード (cli | web)")
	workingDir := flag.String("working-dir", "", "作業ディレクトリ（省略時は一時ディレクトリを作成）")
	configPath := flag.String("config", "", "設定ファイルパス")
	flag.Parse()

	cfg, err := config.LoadConfig(resolveConfigPath(*configPath))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	setupLogger(cfg.Log)

	workDir, err := resolveWorkDir(*workingDir, *mode)
	if err != nil {
		log.Fatalf("Failed to prepare working directory: %v", err)
	}
	slog.Info("working directory ready", "path", workDir)

	provider, err := buildProvider(cfg)
	if err != nil {
		log.Fatalf("Failed to build LLM provider: %v", err)
	}
	slog.Info("llm provider ready", "provider", provider.Name())

	switch *mode {
	case "cli":
		if err := runCLI(cfg, provider, workDir); err != nil {
			log.Fatalf("CLI session failed: %v", err)
		}
	case "web":
		if err := runWeb(cfg, provider, workDir); err != nil {
			log.Fatalf("Web server failed: %v", err)
		}
	default:
		log.Fatalf("Unknown mode: %s (must be cli or web)", *mode)
	}
}

// resolveConfigPath はフラグと環境変数から設定ファイルパスを決める
func resolveConfigPath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if envPath := os.Getenv("RANALYZE_CONFIG"); envPath != "" {
		return envPath
	}
	return "config.yaml"
}

// resolveWorkDir は作業ディレクトリを用意して絶対パスで返す
func resolveWorkDir(dir, mode string) (string, error) {
	if dir == "" {
		base := "temp_files"
		if err := os.MkdirAll(base, 0755); err != nil {
			return "", err
		}
		created, err := os.MkdirTemp(base, fmt.Sprintf("r_analysis_%s_", mode))
		if err != nil {
			return "", err
		}
		dir = created
	} else if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return filepath.Abs(dir)
}

// setupLogger はslogのグローバルロガーを構成
func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// buildProvider は設定に応じたLLMプロバイダを構築
func buildProvider(cfg *config.Config) (llm.LLMProvider, error) {
	switch cfg.Provider {
	case "openai":
		return openai.NewOpenAIProvider(cfg.OpenAI.APIKey, cfg.OpenAI.Model), nil
	case "claude":
		return claude.NewClaudeProvider(cfg.Claude.APIKey, cfg.Claude.Model), nil
	case "deepseek":
		return deepseek.NewDeepSeekProvider(cfg.DeepSeek.APIKey, cfg.DeepSeek.Model), nil
	case "ollama":
		return ollama.NewOllamaProvider(cfg.Ollama.BaseURL, cfg.Ollama.Model), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}

// startGateway はRツールサーバーを起動してカタログを確認する
// サーバーが起動できない場合は致命エラーとして扱う
func startGateway(cfg *config.Config) (*rserver.Gateway, error) {
	gateway := rserver.NewGateway(cfg.RServer.Command(), time.Duration(cfg.RServer.RequestTimeout))

	descriptors, err := gateway.ListTools(context.Background())
	if err != nil {
		gateway.Close()
		return nil, err
	}

	fmt.Println("利用可能な分析ツール:")
	for _, d := range descriptors {
		fmt.Printf("  - %s: %s\n", d.Name, d.Description)
	}
	return gateway, nil
}

func agentOptions(cfg *config.Config) agent.Options {
	return agent.Options{
		MaxIterations: cfg.Agent.MaxIterations,
		MaxTokens:     cfg.Agent.MaxTokens,
		Temperature:   cfg.Agent.Temperature,
	}
}

// runCLI は対話型コンソールセッションを実行
func runCLI(cfg *config.Config, provider llm.LLMProvider, workDir string) error {
	gateway, err := startGateway(cfg)
	if err != nil {
		return fmt.Errorf("tool server unavailable: %w", err)
	}
	defer gateway.Close()

	rl, err := cli.NewReadline()
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()

	asker := cli.NewConsoleAsker(rl)
	a := agent.NewAgent(provider, gateway, asker, workDir, agentOptions(cfg))

	return cli.NewConsole(a).Run(context.Background(), rl)
}

// runWeb はWebSocketサーバーを起動
// 接続ごとに独立したゲートウェイとエージェントを割り当てる
func runWeb(cfg *config.Config, provider llm.LLMProvider, workDir string) error {
	factory := func() (*web.Session, error) {
		gateway, err := startGateway(cfg)
		if err != nil {
			return nil, err
		}
		a := agent.NewAgent(provider, gateway, agent.DeferredAsker{}, workDir, agentOptions(cfg))
		return &web.Session{
			Agent: a,
			Close: func() { gateway.Close() },
		}, nil
	}

	server := web.NewServer(factory, workDir)
	fmt.Printf("Webモードで起動しました: http://%s\n", cfg.Web.Addr())
	return server.ListenAndServe(cfg.Web.Addr())
}
