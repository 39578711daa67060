package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeStripsUTF8BOM(t *testing.T) {
	raw := []byte{0xEF, 0xBB, 0xBF}
	raw = append(raw, []byte("hello")...)
	assert.Equal(t, "hello", Decode(raw))
}

func TestDecodeFallsBackToLatin1(t *testing.T) {
	// 0xE9 は単体では不正なUTF-8だがLatin-1では 'é'
	raw := []byte{'c', 'a', 'f', 0xE9}
	assert.Equal(t, "café", Decode(raw))
}

func TestDecodeNormalizesLineEndings(t *testing.T) {
	assert.Equal(t, "a\nb\nc", Decode([]byte("a\r\nb\rc")))
}

func TestDecodeValidUTF8Passthrough(t *testing.T) {
	assert.Equal(t, "こんにちは", Decode([]byte("こんにちは")))
}
