package retrieval

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// highlightWindow is the number of bytes kept on each side of the start of
// the first matched query token; the window edges are then widened to rune
// boundaries, so text with multi-byte characters gets fewer than 150
// characters on a side.
const highlightWindow = 150

// Highlight produces a snippet around the first occurrence of any query
// token in text, wrapping every token occurrence inside the window in
// <mark>...</mark>. Returns "" when no token appears in text at all.
func Highlight(query, text string) string {
	tokens := queryTokens(query)
	if len(tokens) == 0 || text == "" {
		return ""
	}

	lower := strings.ToLower(text)
	firstIdx := -1
	for _, tok := range tokens {
		if idx := strings.Index(lower, tok); idx != -1 {
			if firstIdx == -1 || idx < firstIdx {
				firstIdx = idx
			}
		}
	}
	if firstIdx == -1 {
		return ""
	}

	start := firstIdx - highlightWindow
	if start < 0 {
		start = 0
	}
	end := firstIdx + highlightWindow
	if end > len(text) {
		end = len(text)
	}
	// the window edges are byte offsets and can land mid-rune in accented
	// text; snap them outward to rune boundaries before slicing
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end++
	}

	return markOccurrences(text[start:end], tokens)
}

// queryTokens splits a query into lowercased, punctuation-trimmed words.
func queryTokens(query string) []string {
	fields := strings.Fields(query)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ToLower(strings.Trim(f, ".,;:()\"'¿?¡!"))
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

type markSpan struct{ start, end int }

// markOccurrences wraps every case-insensitive occurrence of any token in
// window with <mark>...</mark>, merging overlapping matches so nested tags
// never appear.
func markOccurrences(window string, tokens []string) string {
	lower := strings.ToLower(window)

	var spans []markSpan
	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		searchFrom := 0
		for {
			idx := strings.Index(lower[searchFrom:], tok)
			if idx == -1 {
				break
			}
			abs := searchFrom + idx
			spans = append(spans, markSpan{abs, abs + len(tok)})
			searchFrom = abs + len(tok)
		}
	}
	if len(spans) == 0 {
		return window
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	merged := spans[:1]
	for _, sp := range spans[1:] {
		last := &merged[len(merged)-1]
		if sp.start <= last.end {
			if sp.end > last.end {
				last.end = sp.end
			}
			continue
		}
		merged = append(merged, sp)
	}

	var b strings.Builder
	prev := 0
	for _, sp := range merged {
		b.WriteString(window[prev:sp.start])
		b.WriteString("<mark>")
		b.WriteString(window[sp.start:sp.end])
		b.WriteString("</mark>")
		prev = sp.end
	}
	b.WriteString(window[prev:])
	return b.String()
}
