package answer

import (
	"strings"
	"text/template"

	"bookrag/internal/domain"
)

const (
	LabelGeneral = "General Knowledge"
	LabelNone    = "None"
	LabelError   = "ERROR"
)

// TextbookLabel is the source label of answers grounded in a subject index.
func TextbookLabel(subject string) string {
	return subject + " Textbook"
}

const promptTemplates = `
{{define "grounded"}}You are a tutor answering questions about the {{.Subject}} textbook.

Answer the question using ONLY the context below.
Rules:
- Begin your reply with the exact tag [SOURCE: {{.Label}}] followed by the answer.
- Keep technical terms exactly as they appear in the context.
- Do not mention figures, tables or page numbers.
- If the context is short, expand only with related material from the same context.
- Never add facts that are not in the context.

Context:
{{.Context}}

Question: {{.Query}}
{{end}}
{{define "fallback"}}You are a tutor for {{.Subject}}. The textbook does not cover this question, so answer from general knowledge.

Rules:
- Begin your reply with the exact tag [SOURCE: {{.Label}}] followed by the answer.
- Say plainly that the answer does not come from the textbook.

Question: {{.Query}}
{{end}}
{{define "noInfo"}}[SOURCE: {{.Label}}] I could not find information about this question in the {{.Subject}} material, and it does not appear to belong to that subject.{{end}}
{{define "error"}}[SOURCE: {{.Label}}] The answer could not be generated. {{.Message}}{{end}}
{{define "quiz"}}You write exam questions for {{.Subject}} students.

Using ONLY the context below, write one multiple-choice question about "{{.Query}}".
Use exactly this format and nothing else:
Question: <question>
A) <option>
B) <option>
C) <option>
D) <option>
Answer: <letter>
Explanation: <one sentence>

Context:
{{.Context}}
{{end}}`

var templates = template.Must(template.New("prompts").Parse(promptTemplates))

type promptData struct {
	Subject string
	Query   string
	Context string
	Label   string
	Message string
}

func render(name string, data promptData) (string, error) {
	var b strings.Builder
	if err := templates.ExecuteTemplate(&b, name, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}

// templateFor maps a gate decision to its template and source label.
func templateFor(decision domain.Decision, subject string) (string, string) {
	switch decision {
	case domain.DecisionGrounded:
		return "grounded", TextbookLabel(subject)
	case domain.DecisionNoInfo:
		return "noInfo", LabelNone
	case domain.DecisionError:
		return "error", LabelError
	default:
		return "fallback", LabelGeneral
	}
}
