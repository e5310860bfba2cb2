package agent

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// clusteredDataFile は出力データパス未指定時の既定ファイル名
const clusteredDataFile = "clustered_data.csv"

// pathPolicy はモデルが出力したパス引数を作業ディレクトリ内に強制する
// 呼び出し側が与えたディレクトリ成分は捨て、ベース名だけを残す
type pathPolicy struct {
	workDir string
}

// normalize は既知のパス系引数フィールドだけを書き換える
func (p pathPolicy) normalize(toolName string, args map[string]interface{}) {
	// 入力ファイル: 相対なら作業ディレクトリ直下のベース名に解決
	if path, ok := stringArg(args, "path"); ok {
		if !filepath.IsAbs(path) {
			args["path"] = filepath.Join(p.workDir, filepath.Base(path))
		}
	}

	// 出力ディレクトリ: 絶対パス指定以外は常に作業ディレクトリ直下
	if _, present := args["out_dir"]; present {
		dir, _ := stringArg(args, "out_dir")
		if dir == "" || !filepath.IsAbs(dir) {
			args["out_dir"] = p.workDir
		}
	}

	// 出力成果物: 未指定ならツール名+ランダム接尾辞で合成
	if _, present := args["output_path"]; present {
		path, _ := stringArg(args, "output_path")
		switch {
		case path == "":
			args["output_path"] = filepath.Join(p.workDir, p.synthesizeName(toolName))
		case !filepath.IsAbs(path):
			args["output_path"] = filepath.Join(p.workDir, filepath.Base(path))
		}
	}

	// 出力データ: 未指定なら既定ファイル名
	if _, present := args["out_path"]; present {
		path, _ := stringArg(args, "out_path")
		switch {
		case path == "":
			args["out_path"] = filepath.Join(p.workDir, clusteredDataFile)
		case !filepath.IsAbs(path):
			args["out_path"] = filepath.Join(p.workDir, filepath.Base(path))
		}
	}
}

// synthesizeName は衝突しにくい成果物ファイル名を生成
func (p pathPolicy) synthesizeName(toolName string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%s.png", toolName, suffix)
}

// stringArg はargsの文字列フィールドを取り出す
func stringArg(args map[string]interface{}, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
