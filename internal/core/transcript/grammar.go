package transcript

import (
	"regexp"
	"strconv"
	"strings"
)

// Grammar は行の構造パターンを識別する
//
// WhatsAppエクスポートには複数のフォーマットが混在する:
//
//	A: [09:09, 2/24/2026] Sender: text       （時刻が先、月/日/年）
//	B: 03/12/2025, 15:29 - Sender: text      （日/月/年、ハイフン区切り）
//	C: ‎[13.04.18, 14:05:22] Sender: text    （先頭に不可視マーク、日/月/年）
type Grammar int

const (
	GrammarA Grammar = iota
	GrammarB
	GrammarC
	grammarCount
)

// String はグラマー名を返す
func (g Grammar) String() string {
	switch g {
	case GrammarA:
		return "A"
	case GrammarB:
		return "B"
	case GrammarC:
		return "C"
	}
	return "?"
}

// next は固定ローテーション A→B→C→A における次のグラマーを返す
func (g Grammar) next() Grammar {
	return (g + 1) % grammarCount
}

const (
	timePattern = `\d{1,2}:\d{2}(?::\d{2})?(?:\x{202F}?[APap][Mm])?`
	datePattern = `\d{1,2}[/.\-]\d{1,2}[/.\-]\d{2,4}`
	markClass   = `[\x{200E}\x{200F}\x{202A}-\x{202E}\x{2066}-\x{2069}]`
)

var (
	// Grammar A: [time, date] Sender: text
	reGrammarA = regexp.MustCompile(`^\[(` + timePattern + `),\s*(` + datePattern + `)\]\s+([^:]+):\s*(.*)$`)

	// Grammar B: date, time - Sender: text
	reGrammarB = regexp.MustCompile(`^(` + datePattern + `),\s*(` + timePattern + `)\s+-\s+([^:]+):\s*(.*)$`)

	// Grammar C: 先頭の不可視マーク（任意）+ [date, time] Sender: text
	reGrammarC = regexp.MustCompile(`^` + markClass + `*\[(` + datePattern + `),\s*(` + timePattern + `)\]\s+([^:]+):\s*(.*)$`)

	reDateSep   = regexp.MustCompile(`[/.\-]`)
	reDirMarks  = regexp.MustCompile(markClass)
	reMediaLine = regexp.MustCompile(`(?i)<[^>]*(?:omitted|attached)[^>]*>`)
)

// lineMatch はいずれかのグラマーに構造マッチした行の内容を保持する
type lineMatch struct {
	grammar Grammar
	time    string
	date    string // 正規化済み（month/day/year、区切りは "/"）
	sender  string
	text    string
}

// matchGrammar は行を指定グラマーで構造解析する
func matchGrammar(g Grammar, line string) (lineMatch, bool) {
	switch g {
	case GrammarA:
		m := reGrammarA.FindStringSubmatch(line)
		if m == nil {
			return lineMatch{}, false
		}
		// Aは月が先のためそのままの順序で正規化する
		return lineMatch{
			grammar: GrammarA,
			time:    strings.TrimSpace(m[1]),
			date:    normalizeDate(m[2], false),
			sender:  strings.TrimSpace(m[3]),
			text:    m[4],
		}, true
	case GrammarB:
		m := reGrammarB.FindStringSubmatch(line)
		if m == nil {
			return lineMatch{}, false
		}
		return lineMatch{
			grammar: GrammarB,
			time:    strings.TrimSpace(m[2]),
			date:    normalizeDate(m[1], true),
			sender:  strings.TrimSpace(m[3]),
			text:    m[4],
		}, true
	case GrammarC:
		m := reGrammarC.FindStringSubmatch(line)
		if m == nil {
			return lineMatch{}, false
		}
		return lineMatch{
			grammar: GrammarC,
			time:    strings.TrimSpace(m[2]),
			date:    normalizeDate(m[1], true),
			sender:  strings.TrimSpace(m[3]),
			text:    m[4],
		}, true
	}
	return lineMatch{}, false
}

// grammarMatches は構造解析せずにマッチ有無のみを判定する（検出パス用）
func grammarMatches(g Grammar, line string) bool {
	switch g {
	case GrammarA:
		return reGrammarA.MatchString(line)
	case GrammarB:
		return reGrammarB.MatchString(line)
	case GrammarC:
		return reGrammarC.MatchString(line)
	}
	return false
}

// normalizeDate は日付文字列を month/day/year 形式に正規化する
// dayFirst の場合は日と月を入れ替える（グラマーB/Cは日が先）
func normalizeDate(date string, dayFirst bool) string {
	parts := reDateSep.Split(date, -1)
	if len(parts) != 3 {
		return date
	}
	if dayFirst {
		parts[0], parts[1] = parts[1], parts[0]
	}
	parts[2] = expandYear(parts[2])
	return strings.Join(parts, "/")
}

// expandYear は2桁の年をピボット規則で4桁に展開する（30以下→20xx、それ以外→19xx）
func expandYear(y string) string {
	if len(y) != 2 {
		return y
	}
	n, err := strconv.Atoi(y)
	if err != nil {
		return y
	}
	if n <= 30 {
		return "20" + y
	}
	return "19" + y
}

// stripDirectionalMarks は方向制御などの不可視マークを取り除く
func stripDirectionalMarks(s string) string {
	return reDirMarks.ReplaceAllString(s, "")
}

// containsMediaPlaceholder は添付省略プレースホルダの有無を判定する
// （大文字小文字を区別しない "omitted" / "attached"）
func containsMediaPlaceholder(s string) bool {
	return reMediaLine.MatchString(s)
}
