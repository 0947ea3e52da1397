package app

import (
	"context"
	"strings"

	"bookrag/internal/answer"
	"bookrag/internal/domain"
)

const quizContextSize = 3

type QuizInput struct {
	Topic   string
	Subject string
}

// QuizResult holds the parsed question, or only Raw when the model output
// did not follow the question format.
type QuizResult struct {
	Parsed   bool                   `json:"parsed"`
	Question *answer.MultipleChoice `json:"question,omitempty"`
	Raw      string                 `json:"raw"`
	Sources  []domain.SearchMatch   `json:"sources"`
}

type QuizService struct {
	retriever Retriever
	gate      Gate
	composer  Composer
}

func NewQuizService(retriever Retriever, gate Gate, composer Composer) *QuizService {
	return &QuizService{retriever: retriever, gate: gate, composer: composer}
}

// Generate writes one multiple-choice question grounded in the subject
// textbook. Topics without sufficient material are refused.
func (s *QuizService) Generate(ctx context.Context, input QuizInput) (*QuizResult, error) {
	topic := strings.TrimSpace(input.Topic)
	if topic == "" {
		return nil, domain.Errorf(domain.ErrValidation, "quiz", "topic is required")
	}
	subject := strings.TrimSpace(input.Subject)
	if err := domain.ValidateSubject(subject); err != nil {
		return nil, err
	}

	matches, err := s.retriever.Retrieve(ctx, topic, subject, quizContextSize)
	if err != nil {
		return nil, err
	}
	verdict := s.gate.Decide(ctx, topic, subject, matches, quizContextSize)
	if verdict.Decision != domain.DecisionGrounded || verdict.Context == nil {
		return nil, ErrNoQuizMaterial
	}

	mc, err := s.composer.ComposeQuiz(ctx, topic, subject, verdict.Context)
	if err != nil {
		return nil, err
	}
	result := &QuizResult{Raw: mc.Raw, Sources: verdict.Context.Matches}
	if mc.Status == answer.Parsed {
		result.Parsed = true
		result.Question = &mc
	}
	return result, nil
}
