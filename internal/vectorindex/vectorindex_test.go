package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookrag/internal/domain"
)

func TestStaticResolver(t *testing.T) {
	resolve := StaticResolver(map[string]string{"biology": "https://bio.example"}, "https://{name}.svc.example")

	host, err := resolve("biology")
	require.NoError(t, err)
	assert.Equal(t, "https://bio.example", host)

	host, err = resolve("physics")
	require.NoError(t, err)
	assert.Equal(t, "https://physics.svc.example", host)

	_, err = StaticResolver(nil, "")("physics")
	assert.ErrorIs(t, err, domain.ErrIndexConnection)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Zero(t, CosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 2}))
}

func TestSortMatchesIsStable(t *testing.T) {
	matches := []domain.SearchMatch{
		{ID: "a", Score: 0.5},
		{ID: "b", Score: 0.9},
		{ID: "c", Score: 0.5},
		{ID: "d", Score: 0.7},
		{ID: "e", Score: 0.5},
	}
	SortMatches(matches)

	var ids []string
	for _, m := range matches {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"b", "d", "a", "c", "e"}, ids)
	assert.Len(t, Truncate(matches, 2), 2)
	assert.Len(t, Truncate(matches, 10), 5)
}

func TestValidatePassages(t *testing.T) {
	assert.NoError(t, ValidatePassages([]domain.IndexedPassage{{ID: "x", Values: []float32{1}}}))
	assert.ErrorIs(t, ValidatePassages([]domain.IndexedPassage{{ID: " ", Values: []float32{1}}}), domain.ErrValidation)
	assert.ErrorIs(t, ValidatePassages([]domain.IndexedPassage{{ID: "x"}}), domain.ErrValidation)
}

func TestErrorClassification(t *testing.T) {
	assert.ErrorIs(t, QueryError("query", errors.New("500")), domain.ErrIndexQuery)
	assert.ErrorIs(t, QueryError("query", fmt.Errorf("do: %w", context.Canceled)), domain.ErrCancelled)
	assert.ErrorIs(t, ConnectionError("bio", errors.New("dial tcp")), domain.ErrIndexConnection)
	assert.ErrorIs(t, ConnectionError("bio", context.DeadlineExceeded), domain.ErrCancelled)
}
