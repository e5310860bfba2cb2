package agent

import "github.com/Nyukimin/ranalyze/internal/domain/llm"

// TalkToUserToolName はユーザー質問用に合成するツールの名前
// 外部ツールサーバーには存在せず、エージェントループが直接処理する
const TalkToUserToolName = "talk_to_user"

// talkToUserDefinition はモデルに提示するtalk_to_userツール定義を返す
func talkToUserDefinition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        TalkToUserToolName,
		Description: "ユーザーに質問して追加情報や要件の確認を得る。分析要件が不明確（ファイルパス・変数名・モデルパラメータの不足など）なときに使用する。",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"message": map[string]interface{}{
					"type":        "string",
					"description": "ユーザーへの質問。明確で具体的、答えやすい内容にする。",
				},
			},
			"required": []string{"message"},
		},
	}
}
