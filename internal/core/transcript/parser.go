package transcript

import (
	"errors"
	"slices"
	"strings"
)

// ErrEmptyTranscript はメッセージが1件も認識できなかった場合のエラー
var ErrEmptyTranscript = errors.New("no messages recognized in transcript")

// Parse は生バイト列を解析してTranscriptを構築する
// メッセージが1件も認識できない場合は ErrEmptyTranscript を返す
func Parse(raw []byte) (*Transcript, error) {
	return ParseText(Decode(raw))
}

// ParseText はデコード済みテキストを解析してTranscriptを構築する
func ParseText(content string) (*Transcript, error) {
	lines := strings.Split(content, "\n")

	primary := detectDominantGrammar(lines)
	fallback1 := primary.next()
	fallback2 := fallback1.next()

	var messages []Message
	var current *Message
	participants := make(map[string]struct{})

	flush := func() {
		if current != nil {
			messages = append(messages, *current)
			current = nil
		}
	}

	for _, line := range lines {
		// 主グラマーのマッチは常に新しいメッセージを開始する
		if m, ok := matchGrammar(primary, line); ok {
			flush()
			current = newMessage(m)
			// 参加者は主グラマーでマッチした行からのみ収集する
			// （フォールバック行の誤分類による汚染を防ぐ）
			participants[m.sender] = struct{}{}
			continue
		}

		// フォールバックは固定ローテーションで試す
		// 一様なファイル中の孤立行が別フォーマットを使う場合があるため必要
		if m, ok := matchGrammar(fallback1, line); ok {
			appendFallback(&current, m)
			continue
		}
		if m, ok := matchGrammar(fallback2, line); ok {
			appendFallback(&current, m)
			continue
		}

		if strings.TrimSpace(line) == "" {
			continue
		}

		// 非マッチの非空行は開いているメッセージの継続行
		if current != nil {
			current.Text += "\n" + stripDirectionalMarks(line)
			if containsMediaPlaceholder(line) {
				current.IsMedia = true
			}
		}
		// 最初のメッセージより前の行（エクスポートヘッダ等）は捨てる
	}
	flush()

	if len(messages) == 0 {
		return nil, ErrEmptyTranscript
	}

	sorted := make([]string, 0, len(participants))
	for name := range participants {
		sorted = append(sorted, name)
	}
	slices.Sort(sorted)

	return &Transcript{
		Messages:     messages,
		Participants: sorted,
	}, nil
}

// appendFallback はフォールバックグラマーにマッチした行を処理する
// メッセージが開いている場合は引用返信とみなし "sender: text" として
// 構造を保ったまま折り込む。開いていない場合は新規メッセージを開始する
// （送信者は参加者に加えない）
func appendFallback(current **Message, m lineMatch) {
	if *current != nil {
		(*current).Text += "\n" + m.sender + ": " + strings.TrimSpace(stripDirectionalMarks(m.text))
		if containsMediaPlaceholder(m.text) {
			(*current).IsMedia = true
		}
		return
	}
	*current = newMessage(m)
}

// newMessage はマッチ結果から新しいメッセージを構築する
func newMessage(m lineMatch) *Message {
	text := strings.TrimSpace(stripDirectionalMarks(m.text))
	return &Message{
		Time:    m.time,
		Date:    m.date,
		Sender:  m.sender,
		Text:    text,
		IsMedia: containsMediaPlaceholder(m.text),
	}
}

// detectDominantGrammar は全行を3つのグラマーで分類して支配的な
// フォーマットを決定する（第1パス）
//
// Cに分類された行の直後の行はA/Bとしてカウントしない。フォーマットが
// 混在するファイルでブラケット形式の行が誤ってA/Bに吸われるのを防ぐ
// 経験的なヒューリスティックで、観測された入出力対応を保つために
// このままの規則を維持する
func detectDominantGrammar(lines []string) Grammar {
	var counts [grammarCount]int
	prevWasC := false

	for _, line := range lines {
		isC := grammarMatches(GrammarC, line)
		if isC {
			counts[GrammarC]++
		}
		if !prevWasC {
			if grammarMatches(GrammarA, line) {
				counts[GrammarA]++
			}
			if grammarMatches(GrammarB, line) {
				counts[GrammarB]++
			}
		}
		prevWasC = isC
	}

	// Cは他の両方と同数以上であれば支配的とする
	if counts[GrammarC] >= counts[GrammarA] && counts[GrammarC] >= counts[GrammarB] {
		return GrammarC
	}
	if counts[GrammarA] >= counts[GrammarB] {
		return GrammarA
	}
	return GrammarB
}
