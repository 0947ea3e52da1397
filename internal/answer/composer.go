// Package answer builds prompts from a relevance decision, calls the
// generative model and checks the shape of what comes back.
package answer

import (
	"context"
	"fmt"
	"strings"

	"bookrag/internal/ai"
	"bookrag/internal/domain"
)

type Request struct {
	Query    string
	Subject  string
	Decision domain.Decision
	Context  *domain.RetrievalContext
}

type Composer struct {
	gen ai.Generator
}

func NewComposer(gen ai.Generator) *Composer {
	return &Composer{gen: gen}
}

// Compose renders the template selected by the decision. A grounded
// decision without context text is answered from general knowledge. The
// no-information branch is answered locally without a model call.
func (c *Composer) Compose(ctx context.Context, req Request) (domain.Answer, error) {
	decision := req.Decision
	contextText := req.Context.Text()
	if decision == domain.DecisionGrounded && contextText == "" {
		decision = domain.DecisionFallback
	}
	if decision == domain.DecisionError {
		return ErrorAnswer(domain.Errorf(domain.ErrGeneration, "compose", "no answer was requested")), nil
	}

	name, label := templateFor(decision, req.Subject)
	prompt, err := render(name, promptData{
		Subject: req.Subject,
		Query:   strings.TrimSpace(req.Query),
		Context: contextText,
		Label:   label,
	})
	if err != nil {
		return domain.Answer{}, fmt.Errorf("render %s prompt failed: %w", name, err)
	}

	if decision == domain.DecisionNoInfo {
		return fromRaw(prompt, decision), nil
	}

	raw, err := c.gen.GenerateContent(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Answer{}, domain.Wrap(domain.ErrCancelled, "compose", err, "answer generation cancelled")
		}
		return domain.Answer{}, domain.Wrap(domain.ErrGeneration, "compose", err, "the language model did not return an answer")
	}
	if strings.TrimSpace(raw) == "" {
		return domain.Answer{}, domain.Errorf(domain.ErrGeneration, "compose", "the language model returned an empty answer")
	}
	return fromRaw(raw, decision), nil
}

// ComposeQuiz asks for one multiple-choice question about topic grounded in
// rc. Unparseable output is returned with its raw text.
func (c *Composer) ComposeQuiz(ctx context.Context, topic, subject string, rc *domain.RetrievalContext) (MultipleChoice, error) {
	prompt, err := render("quiz", promptData{
		Subject: subject,
		Query:   strings.TrimSpace(topic),
		Context: rc.Text(),
	})
	if err != nil {
		return MultipleChoice{}, fmt.Errorf("render quiz prompt failed: %w", err)
	}
	raw, err := c.gen.GenerateContent(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return MultipleChoice{}, domain.Wrap(domain.ErrCancelled, "compose quiz", err, "quiz generation cancelled")
		}
		return MultipleChoice{}, domain.Wrap(domain.ErrGeneration, "compose quiz", err, "the language model did not return a question")
	}
	return ParseMultipleChoiceBlock(raw), nil
}

// ErrorAnswer is the explicit, source-tagged answer shown when generation
// fails.
func ErrorAnswer(err error) domain.Answer {
	msg := "Please try again later."
	if h := domain.Headline(err); h != "" {
		msg = "Reason: " + h + "."
	}
	raw, renderErr := render("error", promptData{Label: LabelError, Message: msg})
	if renderErr != nil {
		raw = "[SOURCE: ERROR] " + msg
	}
	return fromRaw(raw, domain.DecisionError)
}

func fromRaw(raw string, decision domain.Decision) domain.Answer {
	tag := ParseSourceTag(raw)
	a := domain.Answer{Raw: raw, Decision: decision, Body: strings.TrimSpace(raw)}
	if tag.Status == Parsed {
		a.Source = tag.Label
		a.Body = tag.Body
	}
	return a
}
