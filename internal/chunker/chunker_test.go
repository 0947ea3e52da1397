package chunker

import (
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookrag/internal/domain"
)

func reconstruct(chunks []domain.Chunk) string {
	var b strings.Builder
	for _, c := range chunks {
		b.WriteString(c.Body())
	}
	return b.String()
}

func TestNewRejectsInvalidParameters(t *testing.T) {
	cases := []struct {
		name          string
		size, overlap int
	}{
		{"zero size", 0, 0},
		{"negative overlap", 10, -1},
		{"overlap equals size", 10, 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.size, tc.overlap)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestSplitEmptyText(t *testing.T) {
	c, err := New(100, 0)
	require.NoError(t, err)

	_, err = c.Split(domain.Document{Name: "empty", Text: "  \n\t "})
	assert.ErrorIs(t, err, domain.ErrChunking)
}

func TestSplitPrefersParagraphs(t *testing.T) {
	text := "First paragraph here.\n\nSecond paragraph is here.\n\nThird one."
	chunks, err := Chunk(text, 30, 0)
	require.NoError(t, err)

	require.Len(t, chunks, 3)
	assert.Equal(t, "First paragraph here.\n\n", chunks[0].Text)
	assert.Equal(t, "Second paragraph is here.\n\n", chunks[1].Text)
	assert.Equal(t, "Third one.", chunks[2].Text)
	for i, c := range chunks {
		assert.Equal(t, i, c.Sequence)
	}
}

func TestSplitPacksSmallParagraphs(t *testing.T) {
	text := "A.\n\nB.\n\nC."
	chunks, err := Chunk(text, 100, 0)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0].Text)
}

func TestSplitFallsBackToSentences(t *testing.T) {
	text := "One sentence here. Another sentence there. A third sentence now."
	chunks, err := Chunk(text, 25, 0)
	require.NoError(t, err)

	require.Len(t, chunks, 3)
	assert.Equal(t, "One sentence here. ", chunks[0].Text)
	assert.Equal(t, "Another sentence there. ", chunks[1].Text)
	assert.Equal(t, "A third sentence now.", chunks[2].Text)
}

func TestSplitHardCutsLongWords(t *testing.T) {
	text := strings.Repeat("x", 25)
	chunks, err := Chunk(text, 10, 0)
	require.NoError(t, err)

	require.Len(t, chunks, 3)
	assert.Equal(t, text, reconstruct(chunks))
	assert.Equal(t, 5, utf8.RuneCountInString(chunks[2].Text))
}

func TestSplitOverlapCarriesTail(t *testing.T) {
	text := "Alpha beta gamma. Delta epsilon zeta. Eta theta iota."
	chunks, err := Chunk(text, 24, 4)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	assert.Zero(t, chunks[0].Overlap)
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1].Body())
		tail := string(prev[len(prev)-chunks[i].Overlap:])
		assert.True(t, strings.HasPrefix(chunks[i].Text, tail))
	}
	assert.Equal(t, text, reconstruct(chunks))
}

func TestSequenceIsRestartable(t *testing.T) {
	c, err := New(20, 5)
	require.NoError(t, err)
	seq, err := c.Split(domain.Document{Name: "doc", Text: "Some text. More text here. And a bit more text to split."})
	require.NoError(t, err)

	var first []domain.Chunk
	for ch, ok := seq.Next(); ok; ch, ok = seq.Next() {
		first = append(first, ch)
		assert.Equal(t, "doc", ch.Document)
	}
	require.Len(t, first, seq.Len())

	_, ok := seq.Next()
	assert.False(t, ok)

	seq.Reset()
	assert.Equal(t, first, seq.All())
}

func TestSplitProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	words := []string{"cell", "membrane", "photosynthesis", "é", "ATP", "mitochondrion", "x"}
	seps := []string{" ", " ", " ", ". ", "! ", "\n", "\n\n", "  \n \n"}

	for iter := 0; iter < 200; iter++ {
		var b strings.Builder
		n := 1 + rng.Intn(120)
		for i := 0; i < n; i++ {
			b.WriteString(words[rng.Intn(len(words))])
			b.WriteString(seps[rng.Intn(len(seps))])
		}
		text := b.String()
		size := 5 + rng.Intn(80)
		overlap := rng.Intn(size)

		chunks, err := Chunk(text, size, overlap)
		require.NoError(t, err)

		again, err := Chunk(text, size, overlap)
		require.NoError(t, err)
		assert.Equal(t, chunks, again, "deterministic")

		for i, c := range chunks {
			assert.LessOrEqual(t, utf8.RuneCountInString(c.Text), size)
			assert.NotEmpty(t, strings.TrimSpace(c.Text))
			assert.Equal(t, i, c.Sequence)
		}
		assert.Equal(t, strings.Join(strings.Fields(text), ""),
			strings.Join(strings.Fields(reconstruct(chunks)), ""))
	}
}
