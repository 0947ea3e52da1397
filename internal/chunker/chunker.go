// Package chunker splits document text into bounded passages along
// paragraph and sentence boundaries.
package chunker

import (
	"strings"
	"unicode"

	"bookrag/internal/domain"
)

const (
	DefaultSize    = 600
	DefaultOverlap = 0
)

// Chunker holds the size policy. Sizes are counted in runes and the overlap
// prefix is part of the size.
type Chunker struct {
	size    int
	overlap int
}

func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, domain.Errorf(domain.ErrValidation, "new chunker", "chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, domain.Errorf(domain.ErrValidation, "new chunker",
			"chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// Split plans the chunk boundaries of doc and returns a sequence that
// materializes chunk text on demand.
func (c *Chunker) Split(doc domain.Document) (*Sequence, error) {
	if strings.TrimSpace(doc.Text) == "" {
		return nil, domain.Errorf(domain.ErrChunking, "split", "document %q has no text", doc.Name)
	}
	runes := []rune(doc.Text)
	budget := c.size - c.overlap
	spans := pack(segment(runes, budget), budget)

	kept := spans[:0]
	for _, s := range spans {
		if !isBlank(runes[s[0]:s[1]]) {
			kept = append(kept, s)
		}
	}
	return &Sequence{
		runes:    runes,
		spans:    kept,
		overlap:  c.overlap,
		document: doc.Name,
	}, nil
}

// Chunk splits text and drains the sequence.
func Chunk(text string, size, overlap int) ([]domain.Chunk, error) {
	c, err := New(size, overlap)
	if err != nil {
		return nil, err
	}
	seq, err := c.Split(domain.Document{Text: text})
	if err != nil {
		return nil, err
	}
	return seq.All(), nil
}

// Sequence is a finite, restartable iterator over the chunks of one
// document. It is not safe for concurrent use.
type Sequence struct {
	runes    []rune
	spans    [][2]int
	overlap  int
	document string
	pos      int
}

func (s *Sequence) Len() int { return len(s.spans) }

func (s *Sequence) Reset() { s.pos = 0 }

func (s *Sequence) Next() (domain.Chunk, bool) {
	if s.pos >= len(s.spans) {
		return domain.Chunk{}, false
	}
	ch := s.at(s.pos)
	s.pos++
	return ch, true
}

func (s *Sequence) All() []domain.Chunk {
	out := make([]domain.Chunk, len(s.spans))
	for i := range s.spans {
		out[i] = s.at(i)
	}
	return out
}

func (s *Sequence) at(i int) domain.Chunk {
	span := s.spans[i]
	body := s.runes[span[0]:span[1]]

	var prefix []rune
	if i > 0 && s.overlap > 0 {
		prev := s.spans[i-1]
		from := prev[1] - s.overlap
		if from < prev[0] {
			from = prev[0]
		}
		prefix = s.runes[from:prev[1]]
	}

	text := make([]rune, 0, len(prefix)+len(body))
	text = append(text, prefix...)
	text = append(text, body...)
	return domain.Chunk{
		Text:     string(text),
		Sequence: i,
		Document: s.document,
		Overlap:  len(prefix),
	}
}

// segment cuts runes into contiguous units no longer than budget: whole
// paragraphs where they fit, sentences otherwise, and hard cuts last.
func segment(runes []rune, budget int) [][2]int {
	var units [][2]int
	for _, p := range splitOnSpace(runes, 0, len(runes), paragraphBreak) {
		if p[1]-p[0] <= budget {
			units = append(units, p)
			continue
		}
		for _, s := range splitOnSpace(runes, p[0], p[1], sentenceBreak) {
			if s[1]-s[0] <= budget {
				units = append(units, s)
				continue
			}
			units = append(units, hardCut(runes, s[0], s[1], budget)...)
		}
	}
	return units
}

func paragraphBreak(_ rune, newlines int) bool { return newlines >= 2 }

func sentenceBreak(prev rune, _ int) bool {
	switch prev {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

// splitOnSpace splits [start, end) after whitespace runs accepted by
// boundary. Each unit keeps its trailing whitespace.
func splitOnSpace(runes []rune, start, end int, boundary func(prev rune, newlines int) bool) [][2]int {
	var out [][2]int
	unitStart := start
	for i := start; i < end; {
		if !unicode.IsSpace(runes[i]) {
			i++
			continue
		}
		j, newlines := i, 0
		for j < end && unicode.IsSpace(runes[j]) {
			if runes[j] == '\n' {
				newlines++
			}
			j++
		}
		if j < end && i > start && boundary(runes[i-1], newlines) {
			out = append(out, [2]int{unitStart, j})
			unitStart = j
		}
		i = j
	}
	return append(out, [2]int{unitStart, end})
}

// hardCut splits [start, end) into pieces of at most budget runes, ending a
// piece after whitespace when one occurs in the back half of the window.
func hardCut(runes []rune, start, end, budget int) [][2]int {
	var out [][2]int
	for start < end {
		if end-start <= budget {
			out = append(out, [2]int{start, end})
			break
		}
		cut := start + budget
		for k := cut; k > start+budget/2; k-- {
			if unicode.IsSpace(runes[k-1]) {
				cut = k
				break
			}
		}
		out = append(out, [2]int{start, cut})
		start = cut
	}
	return out
}

// pack merges adjacent units greedily while the merged span fits budget.
func pack(units [][2]int, budget int) [][2]int {
	var spans [][2]int
	cur := [2]int{-1, -1}
	for _, u := range units {
		switch {
		case cur[0] < 0:
			cur = u
		case u[1]-cur[0] <= budget:
			cur[1] = u[1]
		default:
			spans = append(spans, cur)
			cur = u
		}
	}
	if cur[0] >= 0 {
		spans = append(spans, cur)
	}
	return spans
}

func isBlank(rs []rune) bool {
	for _, r := range rs {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
