package chunk

import (
	"strings"

	"github.com/jinford/chat-search/internal/core/transcript"
)

const (
	// DefaultSize は1チャンクに含めるメッセージ数のデフォルト
	DefaultSize = 20
	// DefaultOverlap は隣接チャンク間で重複させるメッセージ数のデフォルト
	DefaultOverlap = 5

	// SchemeVersion はチャンク化方式のバージョンタグ
	// サイズ・オーバーラップ・描画形式を変更する際はバージョンを上げて
	// キャッシュキーの名前空間を分離すること
	SchemeVersion = "v1"
)

// Chunker はメッセージ列を固定サイズの重複ウィンドウに分割する
type Chunker struct {
	size    int
	overlap int
}

// Option は Chunker のオプション設定
type Option func(*Chunker)

// WithSize はウィンドウサイズを上書きする
func WithSize(size int) Option {
	return func(c *Chunker) {
		c.size = size
	}
}

// WithOverlap はオーバーラップを上書きする
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		c.overlap = overlap
	}
}

// New は新しい Chunker を作成する
func New(opts ...Option) *Chunker {
	c := &Chunker{
		size:    DefaultSize,
		overlap: DefaultOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Split はメッセージ列をチャンクテキスト列に変換する
//
// ウィンドウは0から始まり size−overlap ずつ進む。メディアメッセージは
// 描画から除外し、残りを "[date time] sender: text" 形式で改行結合する。
// 描画結果が空のウィンドウ（全件メディア）はスキップするがカーソルは
// 進める。同一入力に対して結果は常に同一（キャッシュ妥当性の前提）
func (c *Chunker) Split(messages []transcript.Message) []string {
	n := len(messages)
	if n == 0 {
		return nil
	}

	stride := c.size - c.overlap
	if stride < 1 {
		stride = 1
	}

	var chunks []string
	for start := 0; ; start += stride {
		end := start + c.size
		if end > n {
			end = n
		}

		var lines []string
		for _, m := range messages[start:end] {
			if m.IsMedia {
				continue
			}
			lines = append(lines, renderMessage(m))
		}
		if len(lines) > 0 {
			chunks = append(chunks, strings.Join(lines, "\n"))
		}

		if start+c.size >= n {
			break
		}
	}
	return chunks
}

// Size はウィンドウサイズを返す
func (c *Chunker) Size() int { return c.size }

// Overlap はオーバーラップを返す
func (c *Chunker) Overlap() int { return c.overlap }

// Stride はウィンドウの前進幅を返す
func (c *Chunker) Stride() int {
	stride := c.size - c.overlap
	if stride < 1 {
		return 1
	}
	return stride
}

func renderMessage(m transcript.Message) string {
	var sb strings.Builder
	sb.WriteString("[")
	sb.WriteString(m.Date)
	sb.WriteString(" ")
	sb.WriteString(m.Time)
	sb.WriteString("] ")
	sb.WriteString(m.Sender)
	sb.WriteString(": ")
	sb.WriteString(m.Text)
	return sb.String()
}
