package tts

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxChunkChars is the largest chunk sent in one synthesis request
const DefaultMaxChunkChars = 150

// ChunkText splits text into trimmed, non-empty segments of at most maxChars
// characters, preferring sentence boundaries. Sentences longer than maxChars
// are split on word boundaries. A single word longer than maxChars is emitted
// on its own.
func ChunkText(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChunkChars
	}

	acc := &accumulator{max: maxChars}
	for _, sentence := range splitSentences(text) {
		if runeLen(sentence) <= maxChars {
			acc.add(sentence)
			continue
		}

		words := &accumulator{max: maxChars}
		for _, word := range strings.Fields(sentence) {
			words.add(word)
		}
		for _, piece := range words.finish() {
			acc.add(piece)
		}
	}
	return acc.finish()
}

type accumulator struct {
	max     int
	current strings.Builder
	size    int
	chunks  []string
}

func (a *accumulator) add(piece string) {
	n := runeLen(piece)
	if a.size > 0 && a.size+1+n > a.max {
		a.flush()
	}
	if a.size > 0 {
		a.current.WriteByte(' ')
		a.size++
	}
	a.current.WriteString(piece)
	a.size += n
}

func (a *accumulator) flush() {
	if chunk := strings.TrimSpace(a.current.String()); chunk != "" {
		a.chunks = append(a.chunks, chunk)
	}
	a.current.Reset()
	a.size = 0
}

func (a *accumulator) finish() []string {
	a.flush()
	return a.chunks
}

// splitSentences breaks text after runs of '.', '?' or '!' that are followed
// by whitespace. The terminating punctuation stays with its sentence.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i, r := range text {
		if !isTerminator(r) {
			continue
		}
		next := i + utf8.RuneLen(r)
		if next >= len(text) {
			break
		}
		nr, _ := utf8.DecodeRuneInString(text[next:])
		if !unicode.IsSpace(nr) {
			continue
		}
		if s := strings.TrimSpace(text[start:next]); s != "" {
			sentences = append(sentences, s)
		}
		start = next
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func isTerminator(r rune) bool {
	return r == '.' || r == '?' || r == '!'
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
