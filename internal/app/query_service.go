package app

import (
	"context"
	"errors"
	"log"
	"strings"

	"bookrag/internal/answer"
	"bookrag/internal/domain"
	"bookrag/internal/metrics"
	"bookrag/internal/relevance"
)

const (
	DefaultCount = 3
	MaxCount     = 20
)

type Retriever interface {
	Retrieve(ctx context.Context, query, subject string, topK int) ([]domain.SearchMatch, error)
}

type Gate interface {
	Decide(ctx context.Context, query, subject string, matches []domain.SearchMatch, topK int) relevance.Verdict
}

type Composer interface {
	Compose(ctx context.Context, req answer.Request) (domain.Answer, error)
	ComposeQuiz(ctx context.Context, topic, subject string, rc *domain.RetrievalContext) (answer.MultipleChoice, error)
}

type QueryInput struct {
	Query   string
	Subject string
	// Count is the number of passages to retrieve. Nil uses the default.
	Count *int
}

// ErrorInfo is the structured error shown next to a degraded answer.
type ErrorInfo struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type QueryResult struct {
	Results    []domain.SearchMatch `json:"results"`
	AIResponse domain.Answer        `json:"aiResponse"`
	HasContext bool                 `json:"hasContext"`
	Decision   domain.Decision      `json:"decision"`
	Error      *ErrorInfo           `json:"error,omitempty"`
}

type QueryService struct {
	retriever    Retriever
	gate         Gate
	composer     Composer
	metrics      *metrics.Metrics
	defaultCount int
	maxCount     int
}

func NewQueryService(retriever Retriever, gate Gate, composer Composer, m *metrics.Metrics, defaultCount, maxCount int) *QueryService {
	if maxCount <= 0 || maxCount > MaxCount {
		maxCount = MaxCount
	}
	if defaultCount <= 0 || defaultCount > maxCount {
		defaultCount = DefaultCount
	}
	return &QueryService{
		retriever:    retriever,
		gate:         gate,
		composer:     composer,
		metrics:      m,
		defaultCount: defaultCount,
		maxCount:     maxCount,
	}
}

// Ask answers one question. Retrieval failures are returned as errors; a
// generation failure still yields a result carrying the source-tagged
// error answer.
func (s *QueryService) Ask(ctx context.Context, input QueryInput) (*QueryResult, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, domain.Errorf(domain.ErrValidation, "ask", "query is required")
	}
	subject := strings.TrimSpace(input.Subject)
	if err := domain.ValidateSubject(subject); err != nil {
		return nil, err
	}
	count := s.defaultCount
	if input.Count != nil {
		count = *input.Count
	}
	if count < 1 || count > s.maxCount {
		return nil, domain.Errorf(domain.ErrValidation, "ask", "count must be between 1 and %d, got %d", s.maxCount, count)
	}

	matches, err := s.retriever.Retrieve(ctx, query, subject, count)
	if err != nil {
		return nil, err
	}

	verdict := s.gate.Decide(ctx, query, subject, matches, count)
	// A sufficient verdict whose passages carry no text is answered from
	// general knowledge, so it does not count as context.
	result := &QueryResult{
		Results:    matches,
		HasContext: verdict.Sufficient && verdict.Context.Text() != "",
		Decision:   verdict.Decision,
	}
	if result.Results == nil {
		result.Results = []domain.SearchMatch{}
	}

	reply, err := s.composer.Compose(ctx, answer.Request{
		Query:    query,
		Subject:  subject,
		Decision: verdict.Decision,
		Context:  verdict.Context,
	})
	if err != nil {
		if errors.Is(err, domain.ErrCancelled) {
			return nil, err
		}
		log.Printf("compose answer failed: %v", err)
		reply = answer.ErrorAnswer(err)
		result.Decision = domain.DecisionError
		result.Error = &ErrorInfo{Message: domain.Headline(err), Details: domain.Detail(err)}
	}
	result.AIResponse = reply
	if err == nil {
		result.Decision = reply.Decision
	}
	s.metrics.Query(string(result.Decision))
	return result, nil
}
