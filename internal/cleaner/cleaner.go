// Package cleaner normalizes raw extracted PDF text before chunking: it
// repairs mojibake, normalizes Unicode and whitespace, strips common PDF
// artifacts, and canonicalizes the legal abbreviations the chunker's
// structural separators key off of. Each step is independently
// idempotent, so the pipeline as a whole is too.
package cleaner

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Config toggles individual cleaning stages. All default to enabled; the
// pipeline as a whole is deterministic and never errors.
type Config struct {
	FixEncoding         bool
	NormalizeUnicode    bool
	NormalizeWhitespace bool
	RemoveArtifacts     bool
	NormalizeLegalText  bool
}

// DefaultConfig enables every cleaning stage.
func DefaultConfig() Config {
	return Config{
		FixEncoding:         true,
		NormalizeUnicode:    true,
		NormalizeWhitespace: true,
		RemoveArtifacts:     true,
		NormalizeLegalText:  true,
	}
}

// Cleaner is a deterministic, idempotent text normalizer: Clean(Clean(x))
// == Clean(x) for all inputs.
type Cleaner struct {
	cfg Config
}

// New constructs a Cleaner with the given configuration.
func New(cfg Config) *Cleaner {
	return &Cleaner{cfg: cfg}
}

// NewDefault constructs a Cleaner with every stage enabled.
func NewDefault() *Cleaner {
	return New(DefaultConfig())
}

// Clean runs the full cleaning pipeline over text. Malformed input yields a
// conservative cleaning; no error is ever returned.
func (c *Cleaner) Clean(text string) string {
	if text == "" {
		return text
	}

	out := text
	if c.cfg.FixEncoding {
		out = FixEncoding(out)
	}
	if c.cfg.NormalizeUnicode {
		out = NormalizeUnicode(out)
	}
	if c.cfg.RemoveArtifacts {
		out = RemoveArtifacts(out)
	}
	if c.cfg.NormalizeWhitespace {
		out = NormalizeWhitespace(out)
	}
	if c.cfg.NormalizeLegalText {
		out = NormalizeLegalText(out)
	}
	return out
}

// mojibakeReplacer maps the Latin-1-as-UTF-8 double-encoding artifacts
// most commonly seen in scraped Spanish-language gazette PDFs back to the
// intended characters.
var mojibakeReplacer = strings.NewReplacer(
	"Ã¡", "á", "Ã©", "é", "Ã­", "í", "Ã³", "ó", "Ãº", "ú",
	"Ã±", "ñ", "Ã‰", "É", "Ã", "Í", "Ã“", "Ó", "Ãš", "Ú",
	"Ã‘", "Ñ", "Â°", "°", "Â ", " ", "â€œ", "“", "â€", "”",
	"â€™", "'", "â€“", "–", "â€”", "—",
	"Ã", "Á",
)

// FixEncoding repairs the common mojibake patterns produced by a mis-decoded
// UTF-8/Latin-1 round trip.
func FixEncoding(text string) string {
	return mojibakeReplacer.Replace(text)
}

// NormalizeUnicode applies NFKC normalization, combining compatibility
// variants and composed/decomposed character forms.
func NormalizeUnicode(text string) string {
	return norm.NFKC.String(text)
}

var (
	exoticSpaces   = regexp.MustCompile(`[\x{00a0}\x{2000}-\x{200b}\x{2003}\x{2002}\x{2009}\x{202f}]`)
	runsOfSpaces   = regexp.MustCompile(`[ \t]+`)
	blankRuns      = regexp.MustCompile(`\n{4,}`)
	trailingSpaces = regexp.MustCompile(`[ \t]+\n`)
)

// NormalizeWhitespace replaces Unicode space variants with U+0020, collapses
// runs of spaces/tabs to one, strips per-line leading/trailing spaces, and
// collapses runs of four or more newlines to two. A triple newline (two
// blank lines) survives — the chunker treats it as a paragraph separator.
func NormalizeWhitespace(text string) string {
	out := exoticSpaces.ReplaceAllString(text, " ")
	out = runsOfSpaces.ReplaceAllString(out, " ")

	lines := strings.Split(out, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimFunc(line, unicode.IsSpace)
	}
	out = strings.Join(lines, "\n")

	out = trailingSpaces.ReplaceAllString(out, "\n")
	out = blankRuns.ReplaceAllString(out, "\n\n")

	return strings.TrimSpace(out)
}

var (
	pageNumberLine = regexp.MustCompile(`(?m)^\s*\d{1,4}\s*$`)
	separatorLine  = regexp.MustCompile(`(?m)^[-_=]{3,}\s*$`)
	pageOfLine     = regexp.MustCompile(`(?mi)^\s*(p[aá]gina|p[aá]g\.?|page)\s+\d+\s*(de|of|/)?\s*\d*\s*$`)
	watermarkLine  = regexp.MustCompile(`(?mi)^\s*(copia\s+)?controlada\s*$|^\s*documento\s+oficial\s*$`)
)

// RemoveArtifacts drops lines that are solely page numbers, solely
// decorative separators, solely "page X of Y" patterns (Spanish or
// English), or known watermark strings.
func RemoveArtifacts(text string) string {
	out := pageNumberLine.ReplaceAllString(text, "")
	out = separatorLine.ReplaceAllString(out, "")
	out = pageOfLine.ReplaceAllString(out, "")
	out = watermarkLine.ReplaceAllString(out, "")
	return out
}

var (
	artAbbrev      = regexp.MustCompile(`(?i)\bArt\.\s+`)
	articuloWord   = regexp.MustCompile(`(?i)\bArt[ií]culo\b`)
	incAbbrev      = regexp.MustCompile(`(?i)\bInc\.\s+`)
	decretoNro     = regexp.MustCompile(`(?i)\bDecreto\s+N[°º]\s*`)
	resolucionNro  = regexp.MustCompile(`(?i)\bResoluci[oó]n\s+N[°º]\s*`)
	currencyDigits = regexp.MustCompile(`\$\s*(\d)`)
)

// NormalizeLegalText canonicalizes legal abbreviations and currency
// notation so downstream structural chunking and enrichment can key off a
// single consistent spelling.
func NormalizeLegalText(text string) string {
	out := artAbbrev.ReplaceAllString(text, "ARTICULO ")
	out = articuloWord.ReplaceAllString(out, "ARTICULO")
	out = incAbbrev.ReplaceAllString(out, "INCISO ")
	out = decretoNro.ReplaceAllString(out, "DECRETO ")
	out = resolucionNro.ReplaceAllString(out, "RESOLUCION ")
	out = currencyDigits.ReplaceAllString(out, "pesos $1")
	return out
}
