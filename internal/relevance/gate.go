// Package relevance decides whether retrieved passages can ground an
// answer.
package relevance

import (
	"context"
	"fmt"
	"log"
	"strings"

	"bookrag/internal/ai"
	"bookrag/internal/domain"
)

// IsSufficient reports whether any match reaches minScore.
func IsSufficient(matches []domain.SearchMatch, minScore float64) bool {
	for _, m := range matches {
		if m.Score >= minScore {
			return true
		}
	}
	return false
}

// DomainClassifier answers whether a query belongs to a subject.
type DomainClassifier interface {
	IsQueryInDomain(ctx context.Context, query, subject string) bool
}

// Classifier asks the generative model a yes/no question. Any error or
// ambiguous reply counts as "not in domain".
type Classifier struct {
	gen ai.Generator
}

func NewClassifier(gen ai.Generator) *Classifier {
	return &Classifier{gen: gen}
}

const domainPrompt = `You are a strict topic classifier.
Subject: %s
Question: %s

Is the question topically relevant to the subject? Reply with exactly one word: YES or NO.`

func (c *Classifier) IsQueryInDomain(ctx context.Context, query, subject string) bool {
	reply, err := c.gen.GenerateContent(ctx, fmt.Sprintf(domainPrompt, subject, query))
	if err != nil {
		log.Printf("domain classification failed: %v", err)
		return false
	}
	verdict, ok := parseYesNo(reply)
	if !ok {
		log.Printf("domain classification ambiguous reply: %q", truncate(reply, 80))
		return false
	}
	return verdict
}

func parseYesNo(reply string) (bool, bool) {
	word := strings.ToLower(strings.TrimSpace(reply))
	word = strings.TrimLeft(word, "*\"'`")
	if i := strings.IndexAny(word, " \t\n.,!:;\"'*`"); i >= 0 {
		word = word[:i]
	}
	switch word {
	case "yes":
		return true, true
	case "no":
		return false, true
	}
	return false, false
}

// Verdict is the gate outcome for one query.
type Verdict struct {
	Decision   domain.Decision
	Sufficient bool
	InDomain   bool
	Context    *domain.RetrievalContext
}

type Gate struct {
	minScore   float64
	classifier DomainClassifier
}

// NewGate builds a gate with the threshold exactly as configured. A nil
// classifier treats every query as out of domain, so insufficient retrieval
// always yields the no-information answer.
func NewGate(minScore float64, classifier DomainClassifier) *Gate {
	return &Gate{minScore: minScore, classifier: classifier}
}

// Decide selects the answer branch: grounded when retrieval is sufficient,
// fallback when the topic fits but coverage is missing, no-information
// otherwise. The context keeps at most topK matches at or above the
// threshold.
func (g *Gate) Decide(ctx context.Context, query, subject string, matches []domain.SearchMatch, topK int) Verdict {
	v := Verdict{Sufficient: IsSufficient(matches, g.minScore)}
	if v.Sufficient {
		v.Decision = domain.DecisionGrounded
		v.InDomain = true
		v.Context = &domain.RetrievalContext{Matches: relevant(matches, g.minScore, topK), Sufficient: true}
		return v
	}

	if g.classifier != nil {
		v.InDomain = g.classifier.IsQueryInDomain(ctx, query, subject)
	}
	if v.InDomain {
		v.Decision = domain.DecisionFallback
	} else {
		v.Decision = domain.DecisionNoInfo
	}
	return v
}

func relevant(matches []domain.SearchMatch, minScore float64, topK int) []domain.SearchMatch {
	out := make([]domain.SearchMatch, 0, len(matches))
	for _, m := range matches {
		if m.Score < minScore {
			continue
		}
		out = append(out, m)
		if topK > 0 && len(out) == topK {
			break
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
