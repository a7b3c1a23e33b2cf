// Package chunker splits cleaned document text into size-bounded,
// overlap-preserving fragments using a recursive, separator-hierarchy
// strategy: try the most structurally meaningful separator first (legal
// article/decree/resolution boundaries), fall back to paragraph, line,
// sentence, then word boundaries, and only split at a fixed character
// offset as a last resort.
package chunker

import (
	"strings"
)

// Config parameterizes the splitter. Separators are tried in order; the
// first one present in the current span of text is used to split it, and
// the remaining (lower-priority) separators are passed down for any
// resulting split that is still over ChunkSize.
type Config struct {
	ChunkSize    int
	ChunkOverlap int
	MinChunkSize int
	Separators   []string
}

// DefaultConfig is tuned for Spanish-language official-gazette text:
// legal article and decree/resolution markers rank above generic
// paragraph/line/sentence boundaries.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    1000,
		ChunkOverlap: 200,
		MinChunkSize: 100,
		Separators: []string{
			"\nARTICULO ",
			"\nDECRETO ",
			"\nRESOLUCION ",
			"\n---\n",
			"\n\n\n",
			"\n\n",
			"\n",
			". ",
			" ",
		},
	}
}

// Result is one chunk of the split document, with offsets into the
// original (cleaned) text that produced it.
type Result struct {
	Text       string
	ChunkIndex int
	StartChar  int
	EndChar    int
	NumChars   int
}

// Chunker recursively splits text per Config.
type Chunker struct {
	cfg Config
}

// New constructs a Chunker with the given configuration.
func New(cfg Config) *Chunker {
	return &Chunker{cfg: cfg}
}

// NewDefault constructs a Chunker with DefaultConfig.
func NewDefault() *Chunker {
	return New(DefaultConfig())
}

// Chunk splits text into a sequence of Results, carrying the last whole
// fragment of each packed chunk into the next one when ChunkOverlap is
// positive, and locating each chunk's StartChar/EndChar by a forward search
// from the previous chunk's end minus ChunkOverlap. Chunks below
// MinChunkSize are dropped at each separator level; the pieces of the
// fixed-size split used when no separator yields a surviving chunk are not
// filtered.
func (c *Chunker) Chunk(text string) []Result {
	if text == "" {
		return nil
	}
	pieces := c.recursiveSplit(text, c.cfg.Separators)
	if len(pieces) == 0 {
		return nil
	}

	results := make([]Result, 0, len(pieces))
	currentPos := 0
	index := 0
	for _, piece := range pieces {
		trimmed := strings.TrimSpace(piece)
		if trimmed == "" {
			continue
		}

		startPos := strings.Index(text[currentPos:], piece)
		var start int
		if startPos >= 0 {
			start = currentPos + startPos
		} else {
			// piece was reassembled with a joining separator and no longer
			// appears verbatim (can happen after overlap re-seeding); fall
			// back to searching from the start of the document.
			if alt := strings.Index(text, piece); alt >= 0 {
				start = alt
			} else {
				start = currentPos
			}
		}
		end := start + len(piece)
		if end > len(text) {
			end = len(text)
		}

		results = append(results, Result{
			Text:       trimmed,
			ChunkIndex: index,
			StartChar:  start,
			EndChar:    end,
			NumChars:   len([]rune(trimmed)),
		})
		index++

		// Resume the forward search at the previous end minus the overlap so
		// the next (overlapping) chunk is still found at its true offset.
		currentPos = end - c.cfg.ChunkOverlap
		if currentPos < 0 {
			currentPos = 0
		}
	}

	return results
}

// recursiveSplit implements the core algorithm: split on the first
// separator present, pack the resulting fragments greedily up to ChunkSize
// (counting the joining separators), re-seed each new buffer with the last
// fragment of the previous one so consecutive chunks overlap whenever that
// fragment and the next one fit within ChunkSize together, and recurse into any single fragment still
// over ChunkSize with the remaining, lower-priority separators. Fragments
// below MinChunkSize are dropped; if a separator yields nothing that
// survives the filter, the next separator is tried.
func (c *Chunker) recursiveSplit(text string, separators []string) []string {
	if text == "" {
		return nil
	}
	size := len([]rune(text))
	if size <= c.cfg.ChunkSize {
		if size >= c.cfg.MinChunkSize {
			return []string{text}
		}
		return nil
	}

	for i, separator := range separators {
		if !strings.Contains(text, separator) {
			continue
		}
		remaining := separators[i+1:]
		splits := splitNonEmpty(text, separator)
		sepLen := len([]rune(separator))

		var packed []string
		var current []string
		currentLen := 0

		for _, split := range splits {
			splitLen := len([]rune(split))

			if splitLen > c.cfg.ChunkSize {
				if len(current) > 0 {
					packed = append(packed, strings.Join(current, separator))
					current = nil
					currentLen = 0
				}
				if len(remaining) > 0 {
					packed = append(packed, c.recursiveSplit(split, remaining)...)
				} else {
					packed = append(packed, c.splitBySize(split)...)
				}
				continue
			}

			if len(current) > 0 && currentLen+sepLen+splitLen > c.cfg.ChunkSize {
				packed = append(packed, strings.Join(current, separator))
				last := current[len(current)-1]
				lastLen := len([]rune(last))
				if c.cfg.ChunkOverlap > 0 && lastLen+sepLen+splitLen <= c.cfg.ChunkSize {
					current = []string{last, split}
					currentLen = lastLen + sepLen + splitLen
				} else {
					current = []string{split}
					currentLen = splitLen
				}
				continue
			}

			if len(current) > 0 {
				currentLen += sepLen
			}
			current = append(current, split)
			currentLen += splitLen
		}
		if len(current) > 0 {
			packed = append(packed, strings.Join(current, separator))
		}

		kept := packed[:0:0]
		for _, chunk := range packed {
			if len([]rune(chunk)) >= c.cfg.MinChunkSize {
				kept = append(kept, chunk)
			}
		}
		if len(kept) > 0 {
			return kept
		}
	}

	return c.splitBySize(text)
}

// splitNonEmpty splits text on separator and discards empty fragments; the
// separator is reinserted when fragments are joined back into a chunk.
func splitNonEmpty(text, separator string) []string {
	parts := strings.Split(text, separator)
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitBySize is the fixed-size, rune-indexed last resort used once no
// separator can produce a chunk passing MinChunkSize.
func (c *Chunker) splitBySize(text string) []string {
	size := c.cfg.ChunkSize
	if size <= 0 {
		return []string{text}
	}
	runes := []rune(text)
	var out []string
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}
