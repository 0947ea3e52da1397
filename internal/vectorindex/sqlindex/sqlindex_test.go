package sqlindex

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookrag/internal/domain"
	"bookrag/internal/model"
)

func TestToRowKeepsMetadataAndVector(t *testing.T) {
	ingestedAt := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	row := toRow("biology", "chapter-1", domain.IndexedPassage{
		ID:     "abc_chunk_3",
		Values: []float32{0.5, -0.25},
		Metadata: domain.PassageMetadata{
			Text: "Mitochondria produce ATP.", ChunkNumber: 3, Subject: "biology", Source: "campbell.pdf",
			IngestedAt: ingestedAt,
		},
	})

	assert.Equal(t, "biology", row.IndexName)
	assert.Equal(t, "chapter-1", row.Namespace)
	assert.Equal(t, "abc_chunk_3", row.ID)
	assert.Equal(t, 3, row.ChunkNumber)
	assert.Equal(t, "campbell.pdf", row.Source)
	assert.Equal(t, ingestedAt, row.IngestedAt)
	assert.Equal(t, []float32{0.5, -0.25}, row.EmbeddingVector())
}

func TestRankOrdersAndTruncates(t *testing.T) {
	rows := []model.Passage{
		toRow("b", "", domain.IndexedPassage{ID: "x", Values: []float32{0, 1}, Metadata: domain.PassageMetadata{Text: "x", ChunkNumber: 0}}),
		toRow("b", "", domain.IndexedPassage{ID: "y", Values: []float32{1, 0}, Metadata: domain.PassageMetadata{Text: "y", ChunkNumber: 1}}),
		toRow("b", "", domain.IndexedPassage{ID: "z", Values: []float32{1, 1}, Metadata: domain.PassageMetadata{Text: "z", ChunkNumber: 2}}),
	}

	matches := rank(rows, []float32{1, 0}, 2, true)
	require.Len(t, matches, 2)
	assert.Equal(t, "y", matches[0].ID)
	assert.Equal(t, "z", matches[1].ID)
	assert.Equal(t, 1, matches[0].ChunkNumber)

	bare := rank(rows, []float32{1, 0}, 1, false)
	assert.Empty(t, bare[0].Text)
	assert.Equal(t, -1, bare[0].ChunkNumber)
}

func TestCorruptEmbeddingScoresZero(t *testing.T) {
	rows := []model.Passage{{ID: "bad", Embedding: "not json"}}
	matches := rank(rows, []float32{1}, 1, false)
	require.Len(t, matches, 1)
	assert.Zero(t, matches[0].Score)
}
