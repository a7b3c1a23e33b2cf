// Package enricher derives chunk metadata: a coarse legal/administrative
// section classification, amount/table presence flags, a small set of
// candidate entity strings, and the chunk's content hash. The extraction
// is deliberately shallow — it feeds retrieval filters and coarse UI
// affordances, not downstream NLP.
package enricher

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"

	"dirc-core/internal/domain"
)

const (
	maxEntitiesPerKind = 5

	entityKindAmounts   = "amounts"
	entityKindOrganisms = "organisms"
	entityKindPersons   = "persons"
)

// sectionPattern is one section family's set of detection regexes.
type sectionPattern struct {
	section  domain.SectionType
	patterns []*regexp.Regexp
}

var sectionPatterns = []sectionPattern{
	{
		section: domain.SectionTender,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)licitaci[oó]n`),
			regexp.MustCompile(`(?i)concurso de precios`),
			regexp.MustCompile(`(?i)adquisici[oó]n`),
			regexp.MustCompile(`(?i)provisi[oó]n`),
		},
	},
	{
		section: domain.SectionDecree,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)DECRETO\s+\d+`),
			regexp.MustCompile(`(?i)Decreto\s+N[°º]`),
		},
	},
	{
		section: domain.SectionResolution,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)RESOLUCI[OÓ]N\s+\d+`),
			regexp.MustCompile(`(?i)Resoluci[oó]n\s+N[°º]`),
		},
	},
	{
		section: domain.SectionSubsidy,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)subsidio`),
			regexp.MustCompile(`(?i)ayuda\s+econ[oó]mica`),
			regexp.MustCompile(`(?i)asistencia\s+financiera`),
		},
	},
	{
		section: domain.SectionAppointment,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)designa`),
			regexp.MustCompile(`(?i)nombramiento`),
			regexp.MustCompile(`(?i)aprueba\s+la\s+designaci[oó]n`),
		},
	},
	{
		section: domain.SectionBudget,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)presupuesto`),
			regexp.MustCompile(`(?i)partida\s+presupuestaria`),
			regexp.MustCompile(`(?i)cr[eé]dito\s+presupuestario`),
		},
	},
}

var amountPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\$\s*\d+`),
	regexp.MustCompile(`(?i)pesos\s+\d+`),
	regexp.MustCompile(`(?i)\d+\s*pesos`),
	regexp.MustCompile(`\$\d+[.,]\d+`),
	regexp.MustCompile(`(?i)ARS\s*\d+`),
}

var tablePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\t`),
	regexp.MustCompile(`\n\s{4,}\S`),
	regexp.MustCompile(`\|\s*\w+\s*\|`),
}

var (
	organismPattern = regexp.MustCompile(`[A-Z][a-záéíóúñ]+(?:\s+[A-Z][a-záéíóúñ]+)*\s+(?:de|del|Provincia|Municipal)`)
	personPattern   = regexp.MustCompile(`[A-Z][a-záéíóúñ]+\s+[A-Z][a-záéíóúñ]+`)
)

var personStopList = map[string]bool{
	"Boletín Oficial":   true,
	"Provincia Córdoba": true,
	"Ciudad Córdoba":    true,
}

// Enricher derives metadata for chunks.
type Enricher struct{}

// New constructs an Enricher. It is stateless; a zero value is usable.
func New() *Enricher {
	return &Enricher{}
}

// Enrich populates the enrichment fields of chunk in place and returns it
// for convenience. Language defaults to "es" when unset.
func (e *Enricher) Enrich(chunk *domain.Chunk) *domain.Chunk {
	if chunk.Language == "" {
		chunk.Language = "es"
	}
	chunk.ChunkHash = HashText(chunk.Text)
	chunk.SectionType = DetectSectionType(chunk.Text)
	chunk.HasAmounts = DetectAmounts(chunk.Text)
	chunk.HasTables = DetectTables(chunk.Text)
	chunk.Entities = ExtractEntities(chunk.Text)
	return chunk
}

// HashText returns the hex-encoded SHA-256 digest of text, used as the
// chunk's content-addressed identity: identical text always yields an
// identical hash.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// DetectSectionType scores text against each section family's pattern
// bank and returns the family with the most matches. Ties are broken by
// domain.SectionPriority (earlier wins); no matches yields SectionGeneral.
func DetectSectionType(text string) domain.SectionType {
	bestSection := domain.SectionGeneral
	bestCount := 0

	for _, sp := range sectionPatterns {
		count := 0
		for _, re := range sp.patterns {
			if re.MatchString(text) {
				count++
			}
		}
		if count == 0 {
			continue
		}
		if count > bestCount ||
			(count == bestCount && domain.SectionPriority(sp.section) < domain.SectionPriority(bestSection)) {
			bestCount = count
			bestSection = sp.section
		}
	}

	return bestSection
}

// DetectAmounts reports whether text contains a recognizable currency
// amount.
func DetectAmounts(text string) bool {
	for _, re := range amountPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// DetectTables reports whether text contains layout markers suggestive of
// a tabular structure (tab characters, deep indentation, pipe-delimited
// rows).
func DetectTables(text string) bool {
	for _, re := range tablePatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// ExtractEntities performs a coarse, regex-based extraction of candidate
// amount, organism, and person strings, each capped at five hits.
func ExtractEntities(text string) domain.Entities {
	entities := domain.Entities{}

	if amounts := capAndDedup(matchAll(amountPatterns, text)); len(amounts) > 0 {
		entities[entityKindAmounts] = amounts
	}
	if organisms := capAndDedup(organismPattern.FindAllString(text, -1)); len(organisms) > 0 {
		entities[entityKindOrganisms] = organisms
	}

	var persons []string
	for _, m := range personPattern.FindAllString(text, -1) {
		if !personStopList[m] {
			persons = append(persons, m)
		}
	}
	if persons = capAndDedup(persons); len(persons) > 0 {
		entities[entityKindPersons] = persons
	}

	return entities
}

func matchAll(patterns []*regexp.Regexp, text string) []string {
	var out []string
	for _, re := range patterns {
		out = append(out, re.FindAllString(text, -1)...)
	}
	return out
}

func capAndDedup(matches []string) []string {
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
		if len(out) >= maxEntitiesPerKind {
			break
		}
	}
	return out
}
