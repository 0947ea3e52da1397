package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"bookrag/internal/answer"
	"bookrag/internal/domain"
	"bookrag/internal/relevance"
	"bookrag/internal/retrieval"
	"bookrag/internal/vectorindex/memory"
)

var keywords = []string{"cell", "photosynthesis", "football"}

// keywordEmbedder maps text to keyword counts so similarity follows topic.
type keywordEmbedder struct{}

func (keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	lower := strings.ToLower(text)
	vec := make([]float32, len(keywords))
	for i, k := range keywords {
		vec[i] = float32(strings.Count(lower, k)) + 0.01
	}
	return vec, nil
}

// scriptedModel answers the domain classifier and the composer separately.
type scriptedModel struct {
	mu       sync.Mutex
	inDomain string
	reply    string
	err      error
	prompts  []string
}

func (m *scriptedModel) GenerateContent(_ context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
	if strings.Contains(prompt, "topic classifier") {
		return m.inDomain, nil
	}
	return m.reply, m.err
}

func seedBiology(t *testing.T, gw *memory.Gateway) {
	t.Helper()
	idx, err := gw.Connect(context.Background(), "biology")
	require.NoError(t, err)
	texts := []string{
		"Photosynthesis converts light energy into chemical energy.",
		"The cell membrane controls what enters the cell.",
		"Mitochondria power the cell.",
	}
	passages := make([]domain.IndexedPassage, len(texts))
	for i, text := range texts {
		vec, _ := keywordEmbedder{}.Embed(context.Background(), text)
		passages[i] = domain.IndexedPassage{
			ID:       "bio_chunk_" + string(rune('0'+i)),
			Values:   vec,
			Metadata: domain.PassageMetadata{Text: text, ChunkNumber: i, Subject: "biology"},
		}
	}
	require.NoError(t, idx.Upsert(context.Background(), "", passages))
}

type pipeline struct {
	gateway   *memory.Gateway
	model     *scriptedModel
	retriever *retrieval.Retriever
	gate      *relevance.Gate
	composer  *answer.Composer
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	gw := memory.NewGateway("biology")
	seedBiology(t, gw)
	model := &scriptedModel{inDomain: "NO"}
	return &pipeline{
		gateway:   gw,
		model:     model,
		retriever: retrieval.New(keywordEmbedder{}, gw, retrieval.Config{}),
		gate:      relevance.NewGate(0.5, relevance.NewClassifier(model)),
		composer:  answer.NewComposer(model),
	}
}

var errPublish = errors.New("broker unavailable")
