package chunk

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/chat-search/internal/core/transcript"
)

func makeMessages(n int) []transcript.Message {
	msgs := make([]transcript.Message, n)
	for i := range msgs {
		msgs[i] = transcript.Message{
			Time:   "14:05",
			Date:   "13/04/2018",
			Sender: "Alice",
			Text:   fmt.Sprintf("message %d", i),
		}
	}
	return msgs
}

func TestSplitWindowLayout(t *testing.T) {
	// 35件: ウィンドウは [0,20) と [15,35) の2つ
	chunks := New().Split(makeMessages(35))
	require.Len(t, chunks, 2)

	assert.True(t, strings.HasPrefix(chunks[0], "[13/04/2018 14:05] Alice: message 0\n"))
	assert.True(t, strings.HasSuffix(chunks[0], "Alice: message 19"))
	assert.True(t, strings.HasPrefix(chunks[1], "[13/04/2018 14:05] Alice: message 15\n"))
	assert.True(t, strings.HasSuffix(chunks[1], "Alice: message 34"))
}

func TestSplitLastPartialWindow(t *testing.T) {
	// 36件: [0,20), [15,35), [30,36)
	chunks := New().Split(makeMessages(36))
	require.Len(t, chunks, 3)
	assert.Equal(t, 6, strings.Count(chunks[2], "\n")+1)
}

func TestSplitSingleWindowForSmallInput(t *testing.T) {
	chunks := New().Split(makeMessages(5))
	require.Len(t, chunks, 1)
	assert.Equal(t, 5, strings.Count(chunks[0], "\n")+1)
}

func TestSplitEmptyInput(t *testing.T) {
	assert.Nil(t, New().Split(nil))
	assert.Nil(t, New().Split([]transcript.Message{}))
}

func TestSplitDropsMediaMessages(t *testing.T) {
	msgs := makeMessages(10)
	msgs[3].IsMedia = true
	msgs[7].IsMedia = true

	chunks := New().Split(msgs)
	require.Len(t, chunks, 1)
	assert.NotContains(t, chunks[0], "message 3")
	assert.NotContains(t, chunks[0], "message 7")
	assert.Equal(t, 8, strings.Count(chunks[0], "\n")+1)
}

func TestSplitSkipsAllMediaWindowButAdvancesCursor(t *testing.T) {
	// [15,35) のウィンドウを全件メディアにする
	// ウィンドウはスキップされるがカーソルは進み、[30,40) は描画される
	msgs := makeMessages(40)
	for i := 15; i < 35; i++ {
		msgs[i].IsMedia = true
	}

	chunks := New().Split(msgs)
	require.Len(t, chunks, 2)
	assert.Contains(t, chunks[0], "message 0")
	assert.Contains(t, chunks[1], "message 35")
	assert.NotContains(t, chunks[1], "message 34")
}

func TestSplitDeterministic(t *testing.T) {
	msgs := makeMessages(100)
	c := New()
	assert.Equal(t, c.Split(msgs), c.Split(msgs))
}

func TestSplitCustomSizeAndOverlap(t *testing.T) {
	c := New(WithSize(4), WithOverlap(2))
	chunks := c.Split(makeMessages(8))
	// stride=2: [0,4), [2,6), [4,8)
	require.Len(t, chunks, 3)
	assert.Equal(t, 2, c.Stride())
}

func TestStrideNeverBelowOne(t *testing.T) {
	c := New(WithSize(3), WithOverlap(5))
	assert.Equal(t, 1, c.Stride())
}

func TestRenderMessageFormat(t *testing.T) {
	m := transcript.Message{
		Time:   "9:41",
		Date:   "3/15/2024",
		Sender: "Bob",
		Text:   "hello\nworld",
	}
	assert.Equal(t, "[3/15/2024 9:41] Bob: hello\nworld", renderMessage(m))
}
