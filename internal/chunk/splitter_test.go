package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_Empty(t *testing.T) {
	require.Empty(t, Split("", DefaultOptions))
	require.Empty(t, Split("   \n\n  ", DefaultOptions))
}

func TestSplit_SingleSmallParagraph(t *testing.T) {
	chunks := Split("hello world", DefaultOptions)
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello world", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].Num)
}

func TestSplit_RespectsMaxChars(t *testing.T) {
	para := strings.Repeat("word ", 50) // 250 chars
	text := para + "\n\n" + para + "\n\n" + para
	chunks := Split(text, Options{MaxChars: 300, Overlap: 20})
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Content), 400) // allows overlap slack
	}
}

func TestSplit_NumbersAreSequential(t *testing.T) {
	para := strings.Repeat("x", 100)
	text := strings.Join([]string{para, para, para, para}, "\n\n")
	chunks := Split(text, Options{MaxChars: 150, Overlap: 10})
	for i, c := range chunks {
		assert.Equal(t, i, c.Num)
	}
}
