package backlink

import (
	"strings"
	"unicode/utf8"
)

// Syntax describes the reference marker delimiters.
type Syntax struct {
	Open  string
	Close string
	// Alias separates the target from a display label: [[Target|Label]].
	Alias string
}

// DefaultSyntax is the double-bracket wikilink syntax.
var DefaultSyntax = Syntax{Open: "[[", Close: "]]", Alias: "|"}

// Marker is one recognized reference span in page content.
type Marker struct {
	Target string
	Label  string
	// Start and End are byte offsets of the whole span, End exclusive.
	Start int
	End   int
}

// Scan returns the markers in text in order of appearance. A marker needs a
// non-empty target and must close on the same line; anything else is plain
// text.
func (s Syntax) Scan(text string) []Marker {
	if s.Open == "" || s.Close == "" {
		return nil
	}

	var markers []Marker
	i := 0
	for i < len(text) {
		rel := strings.Index(text[i:], s.Open)
		if rel == -1 {
			break
		}
		start := i + rel
		bodyStart := start + len(s.Open)

		closeRel := strings.Index(text[bodyStart:], s.Close)
		if closeRel == -1 {
			break
		}
		body := text[bodyStart : bodyStart+closeRel]

		// "[[a [[b]]": the innermost opener owns the closer.
		if inner := strings.LastIndex(body, s.Open); inner != -1 {
			i = bodyStart + inner
			continue
		}
		end := bodyStart + closeRel + len(s.Close)

		if strings.ContainsAny(body, "\r\n") {
			i = bodyStart
			continue
		}

		target, label := body, ""
		if s.Alias != "" {
			if k := strings.Index(body, s.Alias); k != -1 {
				target, label = body[:k], strings.TrimSpace(body[k+len(s.Alias):])
			}
		}
		target = strings.TrimSpace(target)
		if target == "" {
			i = end
			continue
		}
		if label == "" {
			label = target
		}

		markers = append(markers, Marker{Target: target, Label: label, Start: start, End: end})
		i = end
	}
	return markers
}

// Excerpt returns up to radius runes of text on each side of the marker with
// whitespace collapsed. Cut ends are marked with "...".
func Excerpt(text string, m Marker, radius int) string {
	if radius <= 0 {
		return ""
	}

	from := m.Start
	for n := 0; n < radius && from > 0; n++ {
		_, size := utf8.DecodeLastRuneInString(text[:from])
		from -= size
	}
	to := m.End
	for n := 0; n < radius && to < len(text); n++ {
		_, size := utf8.DecodeRuneInString(text[to:])
		to += size
	}

	excerpt := strings.Join(strings.Fields(text[from:to]), " ")
	if from > 0 {
		excerpt = "..." + excerpt
	}
	if to < len(text) {
		excerpt += "..."
	}
	return excerpt
}
