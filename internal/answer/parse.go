package answer

import (
	"regexp"
	"strings"
)

type ParseStatus int

const (
	Unparseable ParseStatus = iota
	Parsed
)

func (s ParseStatus) String() string {
	if s == Parsed {
		return "parsed"
	}
	return "unparseable"
}

// SourceTag is the result of ParseSourceTag. Label and Body are only set
// when Status is Parsed.
type SourceTag struct {
	Status ParseStatus
	Label  string
	Body   string
	Raw    string
}

var sourceTagPattern = regexp.MustCompile(`^\s*\[SOURCE:\s*([^\]\r\n]*?)\s*\]`)

// ParseSourceTag reads the leading "[SOURCE: <label>]" tag of model output.
func ParseSourceTag(raw string) SourceTag {
	loc := sourceTagPattern.FindStringSubmatchIndex(raw)
	if loc == nil {
		return SourceTag{Status: Unparseable, Raw: raw}
	}
	label := raw[loc[2]:loc[3]]
	if label == "" {
		return SourceTag{Status: Unparseable, Raw: raw}
	}
	return SourceTag{
		Status: Parsed,
		Label:  label,
		Body:   strings.TrimSpace(raw[loc[1]:]),
		Raw:    raw,
	}
}

type Option struct {
	Letter string `json:"letter"`
	Text   string `json:"text"`
}

// MultipleChoice is the result of ParseMultipleChoiceBlock.
type MultipleChoice struct {
	Status      ParseStatus `json:"-"`
	Question    string      `json:"question"`
	Options     []Option    `json:"options"`
	Answer      string      `json:"answer"`
	Explanation string      `json:"explanation,omitempty"`
	Raw         string      `json:"raw,omitempty"`
}

var (
	questionLine    = regexp.MustCompile(`(?i)^question\s*\d*\s*[:.]\s*(.*)$`)
	optionLine      = regexp.MustCompile(`^\(?([A-Da-d])[).:]\s*(.+)$`)
	answerLine      = regexp.MustCompile(`(?i)^(?:correct\s+)?answer\s*[:.]\s*\(?([A-Da-d])\b`)
	explanationLine = regexp.MustCompile(`(?i)^explanation\s*[:.]\s*(.*)$`)
)

// ParseMultipleChoiceBlock reads a block of the form
//
//	Question: ...
//	A) ...
//	B) ...
//	Answer: B
//	Explanation: ...
//
// Options must start at A and run in order; the answer must name one of
// them. Markdown emphasis around labels is ignored.
func ParseMultipleChoiceBlock(raw string) MultipleChoice {
	fail := MultipleChoice{Status: Unparseable, Raw: raw}

	text := raw
	if tag := ParseSourceTag(raw); tag.Status == Parsed {
		text = tag.Body
	}

	var (
		mc      MultipleChoice
		section string
	)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.ReplaceAll(line, "**", ""))
		if line == "" {
			continue
		}
		switch {
		case questionLine.MatchString(line) && mc.Question == "" && len(mc.Options) == 0:
			mc.Question = strings.TrimSpace(questionLine.FindStringSubmatch(line)[1])
			section = "question"
		case optionLine.MatchString(line) && mc.Answer == "" && section != "explanation":
			sub := optionLine.FindStringSubmatch(line)
			letter := strings.ToUpper(sub[1])
			if want := string(rune('A' + len(mc.Options))); letter != want {
				return fail
			}
			mc.Options = append(mc.Options, Option{Letter: letter, Text: strings.TrimSpace(sub[2])})
			section = "options"
		case answerLine.MatchString(line) && mc.Answer == "":
			mc.Answer = strings.ToUpper(answerLine.FindStringSubmatch(line)[1])
			section = "answer"
		case explanationLine.MatchString(line) && mc.Explanation == "":
			mc.Explanation = strings.TrimSpace(explanationLine.FindStringSubmatch(line)[1])
			section = "explanation"
		case section == "question":
			mc.Question = strings.TrimSpace(mc.Question + " " + line)
		case section == "explanation":
			mc.Explanation = strings.TrimSpace(mc.Explanation + " " + line)
		}
	}

	if mc.Question == "" || len(mc.Options) < 2 || mc.Answer == "" {
		return fail
	}
	if int(mc.Answer[0]-'A') >= len(mc.Options) {
		return fail
	}
	mc.Status = Parsed
	mc.Raw = raw
	return mc
}
