package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookrag/internal/answer"
	"bookrag/internal/domain"
	"bookrag/internal/metrics"
	"bookrag/internal/relevance"
	"bookrag/internal/retrieval"
	"bookrag/internal/vectorindex/memory"
)

func newQueryService(p *pipeline) *QueryService {
	return NewQueryService(p.retriever, p.gate, p.composer, nil, 0, 0)
}

func TestAskGrounded(t *testing.T) {
	p := newPipeline(t)
	p.model.reply = "[SOURCE: biology Textbook] Photosynthesis turns light into chemical energy."

	res, err := newQueryService(p).Ask(context.Background(), QueryInput{Query: "What is photosynthesis?", Subject: "biology"})
	require.NoError(t, err)
	assert.True(t, res.HasContext)
	assert.Equal(t, domain.DecisionGrounded, res.Decision)
	assert.Equal(t, "biology Textbook", res.AIResponse.Source)
	assert.Equal(t, "Photosynthesis turns light into chemical energy.", res.AIResponse.Body)
	require.NotEmpty(t, res.Results)
	assert.Equal(t, "Photosynthesis converts light energy into chemical energy.", res.Results[0].Text)
	assert.Nil(t, res.Error)
	assert.LessOrEqual(t, len(res.Results), DefaultCount)
}

func TestAskNoInfo(t *testing.T) {
	p := newPipeline(t)
	p.model.inDomain = "NO"

	res, err := newQueryService(p).Ask(context.Background(), QueryInput{Query: "Who won the football final?", Subject: "biology", Count: intPtr(2)})
	require.NoError(t, err)
	assert.False(t, res.HasContext)
	assert.Equal(t, domain.DecisionNoInfo, res.Decision)
	assert.Equal(t, "None", res.AIResponse.Source)
	for _, prompt := range p.model.prompts {
		assert.Contains(t, prompt, "topic classifier")
	}
}

func TestAskFallback(t *testing.T) {
	p := newPipeline(t)
	p.model.inDomain = "YES"
	p.model.reply = "[SOURCE: General Knowledge] Footballs are not alive."

	res, err := newQueryService(p).Ask(context.Background(), QueryInput{Query: "Is a football alive?", Subject: "biology"})
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionFallback, res.Decision)
	assert.Equal(t, "General Knowledge", res.AIResponse.Source)
}

func TestAskGenerationFailureYieldsErrorAnswer(t *testing.T) {
	p := newPipeline(t)
	p.model.err = errors.New("provider response status 500")

	res, err := newQueryService(p).Ask(context.Background(), QueryInput{Query: "Explain photosynthesis", Subject: "biology"})
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionError, res.Decision)
	assert.Equal(t, "ERROR", res.AIResponse.Source)
	assert.NotEmpty(t, res.AIResponse.Body)
	require.NotNil(t, res.Error)
	assert.Equal(t, "the language model did not return an answer", res.Error.Message)
	assert.Equal(t, "provider response status 500", res.Error.Details)
	assert.True(t, res.HasContext)
}

func TestAskValidation(t *testing.T) {
	svc := newQueryService(newPipeline(t))
	cases := []QueryInput{
		{Query: "  ", Subject: "biology"},
		{Query: "q", Subject: "Biology"},
		{Query: "q", Subject: ""},
		{Query: "q", Subject: "biology", Count: intPtr(21)},
		{Query: "q", Subject: "biology", Count: intPtr(-1)},
		{Query: "q", Subject: "biology", Count: intPtr(0)},
	}
	for _, in := range cases {
		_, err := svc.Ask(context.Background(), in)
		assert.ErrorIs(t, err, domain.ErrValidation, "%+v", in)
	}
}

func TestAskIndexUnavailable(t *testing.T) {
	p := newPipeline(t)
	p.retriever = retrieval.New(keywordEmbedder{}, memory.NewGateway("physics"), retrieval.Config{})

	_, err := newQueryService(p).Ask(context.Background(), QueryInput{Query: "cells", Subject: "biology"})
	assert.ErrorIs(t, err, domain.ErrIndexConnection)
}

func TestNewQueryServiceClampsCounts(t *testing.T) {
	svc := NewQueryService(nil, nil, nil, nil, 50, 100)
	assert.Equal(t, MaxCount, svc.maxCount)
	assert.Equal(t, DefaultCount, svc.defaultCount)
}

func TestAskPassageWithoutTextFallsBack(t *testing.T) {
	gw := memory.NewGateway("biology")
	idx, err := gw.Connect(context.Background(), "biology")
	require.NoError(t, err)
	vec, _ := keywordEmbedder{}.Embed(context.Background(), "photosynthesis")
	require.NoError(t, idx.Upsert(context.Background(), "", []domain.IndexedPassage{{
		ID:       "bio_chunk_0",
		Values:   vec,
		Metadata: domain.PassageMetadata{ChunkNumber: 0, Subject: "biology"},
	}}))

	model := &scriptedModel{inDomain: "YES", reply: "[SOURCE: General Knowledge] Plants make sugar from light."}
	m := metrics.New("bookrag_test")
	svc := NewQueryService(
		retrieval.New(keywordEmbedder{}, gw, retrieval.Config{}),
		relevance.NewGate(0.5, relevance.NewClassifier(model)),
		answer.NewComposer(model),
		m, 0, 0,
	)

	res, err := svc.Ask(context.Background(), QueryInput{Query: "photosynthesis", Subject: "biology"})
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionFallback, res.Decision)
	assert.Equal(t, domain.DecisionFallback, res.AIResponse.Decision)
	assert.False(t, res.HasContext)
	assert.Equal(t, "General Knowledge", res.AIResponse.Source)
	assert.Equal(t, map[string]float64{"fallback": 1}, queryCounts(t, m))
}

func queryCounts(t *testing.T, m *metrics.Metrics) map[string]float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	counts := make(map[string]float64)
	for _, mf := range families {
		if mf.GetName() != "bookrag_test_queries_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "decision" {
					counts[label.GetValue()] = metric.GetCounter().GetValue()
				}
			}
		}
	}
	return counts
}

func intPtr(n int) *int { return &n }
