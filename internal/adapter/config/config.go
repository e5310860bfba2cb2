package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config はアプリケーション全体の設定
type Config struct {
	Provider string         `yaml:"provider"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Claude   ClaudeConfig   `yaml:"claude"`
	DeepSeek DeepSeekConfig `yaml:"deepseek"`
	Ollama   OllamaConfig   `yaml:"ollama"`
	RServer  RServerConfig  `yaml:"r_server"`
	Agent    AgentConfig    `yaml:"agent"`
	Web      WebConfig      `yaml:"web"`
	Log      LogConfig      `yaml:"log"`
}

// OpenAIConfig はOpenAI API設定
type OpenAIConfig struct {
	APIKey string `yaml:"api_key"` // 環境変数から読み込み推奨
	Model  string `yaml:"model"`
}

// ClaudeConfig はClaude API設定
type ClaudeConfig struct {
	APIKey string `yaml:"api_key"` // 環境変数から読み込み推奨
	Model  string `yaml:"model"`
}

// DeepSeekConfig はDeepSeek API設定
type DeepSeekConfig struct {
	APIKey string `yaml:"api_key"` // 環境変数から読み込み推奨
	Model  string `yaml:"model"`
}

// OllamaConfig はローカルOllama設定
type OllamaConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// Duration は"30s"形式の文字列を受け付けるtime.Durationラッパー
type Duration time.Duration

// UnmarshalYAML はtime.ParseDuration形式の文字列をパースする
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// RServerConfig はRツールサーバーの起動設定
type RServerConfig struct {
	RscriptBin     string   `yaml:"rscript_bin"`
	ServerScript   string   `yaml:"server_script"`
	RequestTimeout Duration `yaml:"request_timeout"`
}

// Command はサーバー起動コマンドを組み立てる
func (r RServerConfig) Command() []string {
	return []string{r.RscriptBin, r.ServerScript}
}

// AgentConfig はエージェントループの調整値
type AgentConfig struct {
	MaxIterations int     `yaml:"max_iterations"`
	MaxTokens     int     `yaml:"max_tokens"`
	Temperature   float64 `yaml:"temperature"`
}

// WebConfig はWebモードの待ち受け設定
type WebConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr は待ち受けアドレスを返す
func (w WebConfig) Addr() string {
	return fmt.Sprintf("%s:%d", w.Host, w.Port)
}

// LogConfig はログ設定
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// envOverrides は環境変数による上書き
// APIキーはファイルに平文保存せず環境変数で渡すことを推奨する
type envOverrides struct {
	Provider       string `env:"RANALYZE_PROVIDER"`
	OpenAIAPIKey   string `env:"OPENAI_API_KEY"`
	ClaudeAPIKey   string `env:"ANTHROPIC_API_KEY"`
	DeepSeekAPIKey string `env:"DEEPSEEK_API_KEY"`
	OllamaBaseURL  string `env:"OLLAMA_BASE_URL"`
	RscriptBin     string `env:"RSCRIPT_BIN"`
	ServerScript   string `env:"RANALYZE_SERVER_SCRIPT"`
	OpenAIModel    string `env:"RANALYZE_OPENAI_MODEL"`
	ClaudeModel    string `env:"RANALYZE_CLAUDE_MODEL"`
	LogLevel       string `env:"RANALYZE_LOG_LEVEL"`
}

// LoadConfig は設定ファイルと環境変数から設定を読み込む
// pathのファイルが存在しない場合はデフォルト値だけで構成する
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	case os.IsNotExist(err):
		// 設定ファイルなしでも動かせる
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults はデフォルト値を設定
func (c *Config) setDefaults() {
	if c.Provider == "" {
		c.Provider = "openai"
	}

	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4o"
	}

	if c.Claude.Model == "" {
		c.Claude.Model = "claude-sonnet-4-20250514"
	}

	if c.DeepSeek.Model == "" {
		c.DeepSeek.Model = "deepseek-chat"
	}

	if c.Ollama.BaseURL == "" {
		c.Ollama.BaseURL = "http://localhost:11434"
	}

	if c.Ollama.Model == "" {
		c.Ollama.Model = "qwen2.5:7b"
	}

	if c.RServer.RscriptBin == "" {
		c.RServer.RscriptBin = "Rscript"
	}

	if c.RServer.ServerScript == "" {
		c.RServer.ServerScript = "mcp_server/r_mcp_server.R"
	}

	if c.RServer.RequestTimeout <= 0 {
		c.RServer.RequestTimeout = Duration(30 * time.Second)
	}

	if c.Agent.MaxIterations <= 0 {
		c.Agent.MaxIterations = 20
	}

	if c.Agent.MaxTokens <= 0 {
		c.Agent.MaxTokens = 4096
	}

	if c.Agent.Temperature <= 0 {
		c.Agent.Temperature = 0.1
	}

	if c.Web.Host == "" {
		c.Web.Host = "127.0.0.1"
	}

	if c.Web.Port == 0 {
		c.Web.Port = 7860
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// loadFromEnv は環境変数による上書きを適用
func (c *Config) loadFromEnv() error {
	var ov envOverrides
	if err := env.Parse(&ov); err != nil {
		return err
	}

	if ov.Provider != "" {
		c.Provider = ov.Provider
	}
	if ov.OpenAIAPIKey != "" {
		c.OpenAI.APIKey = ov.OpenAIAPIKey
	}
	if ov.ClaudeAPIKey != "" {
		c.Claude.APIKey = ov.ClaudeAPIKey
	}
	if ov.DeepSeekAPIKey != "" {
		c.DeepSeek.APIKey = ov.DeepSeekAPIKey
	}
	if ov.OllamaBaseURL != "" {
		c.Ollama.BaseURL = ov.OllamaBaseURL
	}
	if ov.RscriptBin != "" {
		c.RServer.RscriptBin = ov.RscriptBin
	}
	if ov.ServerScript != "" {
		c.RServer.ServerScript = ov.ServerScript
	}
	if ov.OpenAIModel != "" {
		c.OpenAI.Model = ov.OpenAIModel
	}
	if ov.ClaudeModel != "" {
		c.Claude.Model = ov.ClaudeModel
	}
	if ov.LogLevel != "" {
		c.Log.Level = ov.LogLevel
	}
	return nil
}

// Validate は設定の妥当性を検証
func (c *Config) Validate() error {
	switch c.Provider {
	case "openai":
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("openai api_key is required (set OPENAI_API_KEY)")
		}
	case "claude":
		if c.Claude.APIKey == "" {
			return fmt.Errorf("claude api_key is required (set ANTHROPIC_API_KEY)")
		}
	case "deepseek":
		if c.DeepSeek.APIKey == "" {
			return fmt.Errorf("deepseek api_key is required (set DEEPSEEK_API_KEY)")
		}
	case "ollama":
		if c.Ollama.BaseURL == "" {
			return fmt.Errorf("ollama base_url is required")
		}
	default:
		return fmt.Errorf("unknown provider: %s (must be openai, claude, deepseek or ollama)", c.Provider)
	}

	if c.RServer.RscriptBin == "" {
		return fmt.Errorf("r_server rscript_bin is required")
	}

	if c.RServer.ServerScript == "" {
		return fmt.Errorf("r_server server_script is required")
	}

	if c.Web.Port < 1 || c.Web.Port > 65535 {
		return fmt.Errorf("invalid web port: %d (must be 1-65535)", c.Web.Port)
	}

	return nil
}
