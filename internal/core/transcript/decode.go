package transcript

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decode はアップロードされた生バイト列をテキストに変換する
// UTF-8として不正なバイト列はLatin-1としてデコードし、
// BOMの除去と改行コードの正規化を行う
func Decode(raw []byte) string {
	raw = bytes.TrimPrefix(raw, utf8BOM)

	var content string
	if utf8.Valid(raw) {
		content = string(raw)
	} else {
		// レガシーエクスポートはLatin-1の場合がある
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
		if err != nil {
			// Latin-1は全バイト列を受理するため通常ここには到達しない
			decoded = raw
		}
		content = string(decoded)
	}

	content = strings.TrimPrefix(content, "\ufeff")
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	return content
}
