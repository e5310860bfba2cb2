package agent

import (
	"fmt"

	"github.com/Nyukimin/ranalyze/internal/domain/llm"
)

// Conversation は1セッションの会話履歴
// 追記のみで変更・削除はしない。Resetで空に戻る
type Conversation struct {
	messages []llm.Message
}

// NewConversation は空の会話を作成
func NewConversation() *Conversation {
	return &Conversation{messages: make([]llm.Message, 0)}
}

// Empty は会話が空かどうかを返す
func (c *Conversation) Empty() bool {
	return len(c.messages) == 0
}

// Len はメッセージ数を返す
func (c *Conversation) Len() int {
	return len(c.messages)
}

// Seed はシステムプロンプトで会話を初期化
func (c *Conversation) Seed(systemPrompt string) {
	c.messages = append(c.messages, llm.Message{Role: "system", Content: systemPrompt})
}

// AddUser はユーザーメッセージを追加
func (c *Conversation) AddUser(text string) {
	c.messages = append(c.messages, llm.Message{Role: "user", Content: text})
}

// AddAssistant はassistantメッセージを追加（ツール呼び出し要求を含む場合あり）
func (c *Conversation) AddAssistant(msg llm.Message) {
	msg.Role = "assistant"
	c.messages = append(c.messages, msg)
}

// AddToolResult はツール結果メッセージを追加
// callIDは先行するassistantメッセージの未回答のツール呼び出しと正確に対応しなければならない
func (c *Conversation) AddToolResult(callID, content string) error {
	issued := false
	for _, msg := range c.messages {
		switch msg.Role {
		case "assistant":
			for _, tc := range msg.ToolCalls {
				if tc.ID == callID {
					issued = true
				}
			}
		case "tool":
			if msg.ToolCallID == callID {
				return fmt.Errorf("tool call %s already answered", callID)
			}
		}
	}
	if !issued {
		return fmt.Errorf("tool call %s was never issued", callID)
	}

	c.messages = append(c.messages, llm.Message{
		Role:       "tool",
		Content:    content,
		ToolCallID: callID,
	})
	return nil
}

// Messages は履歴のコピーを返す
func (c *Conversation) Messages() []llm.Message {
	out := make([]llm.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Reset は履歴を空にする
func (c *Conversation) Reset() {
	c.messages = c.messages[:0]
}
