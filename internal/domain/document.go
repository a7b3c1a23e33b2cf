// Package domain holds the core types shared across the ingestion and
// retrieval pipeline: documents, chunks, and the filter/result shapes the
// retrieval service exchanges with its callers.
package domain

import "time"

// Document is the abstract unit of ingest. It is never mutated after its
// first chunk is written; a new version of a source document gets a new
// DocumentID.
type Document struct {
	DocumentID string
	SourceID   string // optional back-reference to an upstream document-of-record
	CreatedAt  time.Time
}

// SectionType is the coarse classification of a chunk's legal/administrative
// content, derived by the enricher from a regex bank.
type SectionType string

const (
	SectionDecree      SectionType = "decree"
	SectionResolution  SectionType = "resolution"
	SectionTender      SectionType = "tender"
	SectionSubsidy     SectionType = "subsidy"
	SectionAppointment SectionType = "appointment"
	SectionBudget      SectionType = "budget"
	SectionGeneral     SectionType = "general"
)

// sectionPriority orders section types for tie-breaking when more than one
// family matches a chunk with an equal number of hits. Earlier wins.
var sectionPriority = []SectionType{
	SectionDecree,
	SectionResolution,
	SectionTender,
	SectionSubsidy,
	SectionAppointment,
	SectionBudget,
}

// SectionPriority returns the tie-break rank of a section type; lower is
// higher priority. Unknown types (including general) sort last.
func SectionPriority(s SectionType) int {
	for i, candidate := range sectionPriority {
		if candidate == s {
			return i
		}
	}
	return len(sectionPriority)
}

// Entities is a coarse, per-kind extraction of candidate entity strings.
// Keys are entity-kind names ("amounts", "organisms", "persons"); the
// enricher caps each list at a small number of hits.
type Entities map[string][]string

// Chunk is the atomic unit of retrieval: a size-bounded, overlap-preserving
// fragment of cleaned document text plus its enrichment metadata and
// indexing bookkeeping.
type Chunk struct {
	// Identity
	ChunkID    int64
	DocumentID string
	ChunkIndex int
	ChunkHash  string

	// Content
	Text      string
	NumChars  int
	StartChar int
	EndChar   int

	// Enrichment
	SectionType SectionType
	Language    string
	HasTables   bool
	HasAmounts  bool
	Entities    Entities
	Topic       string

	// Indexing bookkeeping
	EmbeddingModel      string
	EmbeddingDimensions int
	IndexedAt           *time.Time

	// Document-level attributes copied onto the chunk row so the
	// relational/full-text leg can filter on them without a join.
	// SourceID and JurisdictionID are opaque caller-supplied identifiers
	// this module never interprets; PublishedAt defaults to the ingest
	// timestamp when the caller leaves it unset.
	SourceID       string
	JurisdictionID string
	PublishedAt    time.Time
}

// RankedHit is the transient result shape returned by the retrieval service.
type RankedHit struct {
	ChunkID     int64
	Text        string
	Score       float64
	Metadata    map[string]any
	Highlight   string
	FileName    string
	PageNumbers []int
}

// Filters is the set of caller-supplied retrieval filters. All fields are
// optional and combined with AND; a technique that cannot enforce a given
// field silently drops it rather than erroring (spec'd contract, not a bug).
type Filters struct {
	Year           string
	Month          string
	Section        SectionType
	JurisdictionID string
	Topic          string
	Language       string
	HasTables      *bool
	HasAmounts     *bool
	Entities       []string
	DocumentID     string
	SourceID       string
}

// IsZero reports whether no filter field has been set.
func (f Filters) IsZero() bool {
	return f.Year == "" && f.Month == "" && f.Section == "" && f.JurisdictionID == "" &&
		f.Topic == "" && f.Language == "" && f.HasTables == nil && f.HasAmounts == nil &&
		len(f.Entities) == 0 && f.DocumentID == "" && f.SourceID == ""
}

// VectorFilter is the vector store's own filter language: the equality
// predicates it can enforce natively against the metadata copied onto each
// vector row. Date (year/month) and entity predicates have no expression
// here; the retrieval service drops them before compiling a Filters value
// down to this shape.
type VectorFilter struct {
	DocumentID     string
	SourceID       string
	JurisdictionID string
	Section        SectionType
	Language       string
	Topic          string
	HasTables      *bool
	HasAmounts     *bool
}

// IsZero reports whether no predicate has been set.
func (f VectorFilter) IsZero() bool {
	return f.DocumentID == "" && f.SourceID == "" && f.JurisdictionID == "" &&
		f.Section == "" && f.Language == "" && f.Topic == "" &&
		f.HasTables == nil && f.HasAmounts == nil
}

// Technique enumerates the retrieval strategies the unified search surface
// supports.
type Technique string

const (
	TechniqueSemantic Technique = "semantic"
	TechniqueKeyword  Technique = "keyword"
	TechniqueHybrid   Technique = "hybrid"
)
