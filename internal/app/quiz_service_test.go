package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuizGenerate(t *testing.T) {
	p := newPipeline(t)
	p.model.reply = "Question: What does photosynthesis produce?\nA) Sound\nB) Chemical energy\nC) Magnetism\nD) Heat only\nAnswer: B\nExplanation: Light becomes chemical energy."
	svc := NewQuizService(p.retriever, p.gate, p.composer)

	res, err := svc.Generate(context.Background(), QuizInput{Topic: "photosynthesis", Subject: "biology"})
	require.NoError(t, err)
	assert.True(t, res.Parsed)
	require.NotNil(t, res.Question)
	assert.Equal(t, "B", res.Question.Answer)
	assert.NotEmpty(t, res.Sources)
}

func TestQuizUnparseableKeepsRaw(t *testing.T) {
	p := newPipeline(t)
	p.model.reply = "Photosynthesis is great."
	svc := NewQuizService(p.retriever, p.gate, p.composer)

	res, err := svc.Generate(context.Background(), QuizInput{Topic: "photosynthesis", Subject: "biology"})
	require.NoError(t, err)
	assert.False(t, res.Parsed)
	assert.Nil(t, res.Question)
	assert.Equal(t, "Photosynthesis is great.", res.Raw)
}

func TestQuizWithoutMaterial(t *testing.T) {
	p := newPipeline(t)
	svc := NewQuizService(p.retriever, p.gate, p.composer)

	_, err := svc.Generate(context.Background(), QuizInput{Topic: "football", Subject: "biology"})
	assert.ErrorIs(t, err, ErrNoQuizMaterial)
}
