package tts

import (
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkText_Empty(t *testing.T) {
	assert.Empty(t, ChunkText("", 150))
	assert.Empty(t, ChunkText("   \n\t ", 150))
}

func TestChunkText_ShortTextSingleChunk(t *testing.T) {
	chunks := ChunkText("  Tell me about yourself.  ", 150)
	assert.Equal(t, []string{"Tell me about yourself."}, chunks)
}

func TestChunkText_SentenceBoundaries(t *testing.T) {
	text := "Hello there. How are you today? I am fine!"
	chunks := ChunkText(text, 20)

	assert.Equal(t, []string{"Hello there.", "How are you today?", "I am fine!"}, chunks)
}

func TestChunkText_AccumulatesSentences(t *testing.T) {
	text := "One. Two. Three. Four."
	chunks := ChunkText(text, 10)

	assert.Equal(t, []string{"One. Two.", "Three.", "Four."}, chunks)
}

func TestChunkText_PunctuationWithoutSpaceDoesNotSplit(t *testing.T) {
	chunks := ChunkText("Version 2.5 is out.Really", 10)
	for _, c := range chunks {
		assert.NotEqual(t, "Version 2.", c)
	}
	assert.Equal(t, strings.Fields("Version 2.5 is out.Really"), strings.Fields(strings.Join(chunks, " ")))
}

func TestChunkText_LongSentenceSplitsOnWords(t *testing.T) {
	text := "Short. " + strings.Repeat("word ", 20) + "end."
	chunks := ChunkText(text, 24)

	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 24, "chunk %q too long", c)
	}
	require.Len(t, chunks, 6)
	assert.Equal(t, "Short.", chunks[0])
	assert.Equal(t, "word word word word word", chunks[1])
	assert.Equal(t, "end.", chunks[5])
	assert.Equal(t, strings.Fields(text), strings.Fields(strings.Join(chunks, " ")))
}

func TestChunkText_OversizedWord(t *testing.T) {
	long := strings.Repeat("x", 30)
	chunks := ChunkText("a "+long+" b", 10)

	assert.Equal(t, []string{"a", long, "b"}, chunks)
}

func TestChunkText_DefaultMax(t *testing.T) {
	text := strings.Repeat("abcd ", 100)
	for _, c := range ChunkText(text, 0) {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), DefaultMaxChunkChars)
	}
}

func TestChunkText_MultibyteCountsCharacters(t *testing.T) {
	text := "नमस्ते दुनिया. आप कैसे हैं?"
	chunks := ChunkText(text, 20)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 20)
	}
	assert.Equal(t, strings.Fields(text), strings.Fields(strings.Join(chunks, " ")))
}

func randomText(r *rand.Rand) string {
	words := []string{"I", "worked", "on", "distributed", "systems", "for", "three", "years",
		"at", "a", "startup", "building", "pipelines", "supercalifragilisticexpialidocious"}
	ends := []string{".", "?", "!", "", ","}

	var b strings.Builder
	n := r.Intn(60)
	for i := 0; i < n; i++ {
		b.WriteString(words[r.Intn(len(words))])
		b.WriteString(ends[r.Intn(len(ends))])
		if r.Intn(8) == 0 {
			b.WriteString("  \n")
		} else {
			b.WriteString(" ")
		}
	}
	return b.String()
}

func TestChunkText_PreservesWordsInOrder(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		text := randomText(r)
		max := 5 + r.Intn(200)

		chunks := ChunkText(text, max)
		require.Equal(t, strings.Fields(text), strings.Fields(strings.Join(chunks, " ")), "text %q max %d", text, max)

		for _, c := range chunks {
			require.NotEmpty(t, c)
			require.Equal(t, strings.TrimSpace(c), c)
		}
	}
}

func TestChunkText_BoundedWhenSentencesFit(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		text := randomText(r)
		max := 40 + r.Intn(200)

		fits := true
		for _, s := range splitSentences(text) {
			if utf8.RuneCountInString(s) > max {
				fits = false
				break
			}
		}
		if !fits {
			continue
		}

		for _, c := range ChunkText(text, max) {
			require.LessOrEqual(t, utf8.RuneCountInString(c), max, "text %q", text)
		}
	}
}
