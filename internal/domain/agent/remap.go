package agent

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// IdentifierRemap はデータクリーニングで改名された列名の置換表
// 元の列名 → クリーニング後の列名を保持し、式文字列の書き換えに使う
type IdentifierRemap struct {
	m map[string]string
}

// NewIdentifierRemap は空の置換表を作成
func NewIdentifierRemap() *IdentifierRemap {
	return &IdentifierRemap{m: make(map[string]string)}
}

// Empty は置換表が空かどうかを返す
func (r *IdentifierRemap) Empty() bool {
	return len(r.m) == 0
}

// Merge はクリーニングツールが報告した改名を取り込む
func (r *IdentifierRemap) Merge(renames map[string]string) {
	for old, renamed := range renames {
		if old == "" {
			continue
		}
		r.m[old] = renamed
	}
}

// Apply は式文字列中の既知の列名を現在の名前へ置換する
// 'var_1' の規則が 'var_10' を壊さないよう、キー長の降順で
// 単語境界つきの完全一致だけを置換する。
// 列名は日本語・中国語が普通なので、境界判定はASCIIではなく
// Unicodeの文字クラスで行う（regexpの \b はASCII限定で使えない）
func (r *IdentifierRemap) Apply(text string) string {
	if len(r.m) == 0 {
		return text
	}

	keys := make([]string, 0, len(r.m))
	for k := range r.m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	for _, old := range keys {
		text = replaceWholeToken(text, old, r.m[old])
	}
	return text
}

// isWordRune は識別子を構成する文字かどうかを返す
func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// replaceWholeToken は単語境界に挟まれた出現だけをすべて置換する
// 境界は出現の両端で語構成文字と非語構成文字（または文字列端）が
// 切り替わる位置。'売上高計' の中の '売上高' は置換されない
func replaceWholeToken(text, old, renamed string) string {
	firstOld, _ := utf8.DecodeRuneInString(old)
	lastOld, _ := utf8.DecodeLastRuneInString(old)

	var b strings.Builder
	i := 0
	for {
		j := strings.Index(text[i:], old)
		if j < 0 {
			break
		}
		start := i + j
		end := start + len(old)

		boundedBefore := isWordRune(firstOld)
		if start > 0 {
			prev, _ := utf8.DecodeLastRuneInString(text[:start])
			boundedBefore = isWordRune(prev) != isWordRune(firstOld)
		}
		boundedAfter := isWordRune(lastOld)
		if end < len(text) {
			next, _ := utf8.DecodeRuneInString(text[end:])
			boundedAfter = isWordRune(next) != isWordRune(lastOld)
		}

		if boundedBefore && boundedAfter {
			b.WriteString(text[i:start])
			b.WriteString(renamed)
			i = end
		} else {
			_, size := utf8.DecodeRuneInString(text[start:])
			b.WriteString(text[i : start+size])
			i = start + size
		}
	}
	b.WriteString(text[i:])
	return b.String()
}

// Snapshot は現在の置換表のコピーを返す
func (r *IdentifierRemap) Snapshot() map[string]string {
	out := make(map[string]string, len(r.m))
	for k, v := range r.m {
		out[k] = v
	}
	return out
}
