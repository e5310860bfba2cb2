package agent

import "testing"

func TestIdentifierRemapWholeTokenOnly(t *testing.T) {
	remap := NewIdentifierRemap()
	remap.Merge(map[string]string{"var_1": "price"})

	got := remap.Apply("var_1 + var_10 + var_1")
	want := "price + var_10 + price"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestIdentifierRemapLongestKeyFirst(t *testing.T) {
	remap := NewIdentifierRemap()
	remap.Merge(map[string]string{
		"sales":       "revenue",
		"sales_total": "total_revenue",
	})

	got := remap.Apply("sales_total ~ sales")
	want := "total_revenue ~ revenue"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestIdentifierRemapMergeOverwrites(t *testing.T) {
	remap := NewIdentifierRemap()
	remap.Merge(map[string]string{"col": "col_v1"})
	remap.Merge(map[string]string{"col": "col_v2", "": "ignored"})

	if got := remap.Apply("col"); got != "col_v2" {
		t.Errorf("Later merges should win, got %q", got)
	}
	if _, ok := remap.Snapshot()[""]; ok {
		t.Error("Empty keys should be skipped")
	}
}

func TestIdentifierRemapCJKColumnNames(t *testing.T) {
	remap := NewIdentifierRemap()
	remap.Merge(map[string]string{
		"売上高": "sales",
		"广告费": "ad_spend",
	})

	got := remap.Apply("売上高 ~ 广告费")
	want := "sales ~ ad_spend"
	if got != want {
		t.Errorf("CJK identifiers should be rewritten: expected %q, got %q", want, got)
	}

	// 区切り文字なしで隣接する場合も演算子境界で置換される
	if got := remap.Apply("売上高+广告费"); got != "sales+ad_spend" {
		t.Errorf("Operator-adjacent CJK identifiers should be rewritten, got %q", got)
	}
}

func TestIdentifierRemapCJKPartialTokenUntouched(t *testing.T) {
	remap := NewIdentifierRemap()
	remap.Merge(map[string]string{"売上高": "sales"})

	// より長い識別子の一部は置換しない
	if got := remap.Apply("売上高計 ~ 売上高"); got != "売上高計 ~ sales" {
		t.Errorf("Partial CJK token must not be rewritten, got %q", got)
	}
}

func TestIdentifierRemapAdjacentOccurrences(t *testing.T) {
	remap := NewIdentifierRemap()
	remap.Merge(map[string]string{"x": "col_x"})

	// 1文字分の区切りしかなくても両方の出現が置換される
	if got := remap.Apply("x x"); got != "col_x col_x" {
		t.Errorf("Both occurrences should be rewritten, got %q", got)
	}
}

func TestIdentifierRemapSpecialCharacters(t *testing.T) {
	remap := NewIdentifierRemap()
	remap.Merge(map[string]string{"x.y": "x_y"})

	// '.' は正規表現メタ文字だがリテラルとして扱われる
	if got := remap.Apply("x.y + xay"); got != "x_y + xay" {
		t.Errorf("Metacharacters in keys must be escaped, got %q", got)
	}
}

func TestIdentifierRemapEmptyIsNoop(t *testing.T) {
	remap := NewIdentifierRemap()
	if !remap.Empty() {
		t.Error("New remap should be empty")
	}
	if got := remap.Apply("a + b"); got != "a + b" {
		t.Errorf("Empty remap must not change text, got %q", got)
	}
}
