package cleaner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean_Idempotent(t *testing.T) {
	c := NewDefault()
	inputs := []string{
		"Art. 5 establece que el Decreto N° 123/2020 aprueba $500 pesos.",
		"   \n\n\n\nlots of   blank lines\t\tand tabs\n\n\n",
		"página 3 de 10\n----------\nDOCUMENTO OFICIAL\nreal content here",
		"",
		"already ARTICULO 1 clean text",
	}
	for _, in := range inputs {
		once := c.Clean(in)
		twice := c.Clean(once)
		assert.Equal(t, once, twice, "Clean must be idempotent for %q", in)
	}
}

func TestNormalizeLegalText(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Art. 5 dispone...", "ARTICULO 5 dispone..."},
		{"Artículo 10 establece...", "ARTICULO 10 establece..."},
		{"Decreto N° 123/2020", "DECRETO 123/2020"},
		{"Resolución N° 45", "RESOLUCION 45"},
		{"cuesta $500", "cuesta pesos 500"},
		{"Inc. a) primero", "INCISO a) primero"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, NormalizeLegalText(c.in), "input: %q", c.in)
	}
}

func TestRemoveArtifacts(t *testing.T) {
	in := "real content\n42\n------\npágina 3 de 10\nDOCUMENTO OFICIAL\nmore content"
	out := RemoveArtifacts(in)
	assert.NotContains(t, out, "página 3 de 10")
	assert.NotContains(t, out, "DOCUMENTO OFICIAL")
	assert.Contains(t, out, "real content")
	assert.Contains(t, out, "more content")
}

func TestNormalizeWhitespace_CollapsesBlankRuns(t *testing.T) {
	in := "line one\n\n\n\n\nline two"
	out := NormalizeWhitespace(in)
	assert.Equal(t, "line one\n\nline two", out)
}

func TestNormalizeWhitespace_PreservesTripleNewline(t *testing.T) {
	in := "line one\n\n\nline two"
	out := NormalizeWhitespace(in)
	assert.Equal(t, "line one\n\n\nline two", out)
}

func TestNormalizeWhitespace_TrimsLineEdges(t *testing.T) {
	in := "  leading and trailing   \nnext line  "
	out := NormalizeWhitespace(in)
	for _, line := range strings.Split(out, "\n") {
		assert.Equal(t, strings.TrimSpace(line), line)
	}
}

func TestFixEncoding(t *testing.T) {
	in := "MunicipalidadÂ ÃrdobaÂ°"
	out := FixEncoding(in)
	assert.NotContains(t, out, "Ã")
}

func TestClean_FullPipeline(t *testing.T) {
	c := NewDefault()
	in := "Art. 1 - El presente Decreto N° 45/2021 otorga un subsidio de $1000 pesos.\n\n\n\npágina 1 de 1"
	out := c.Clean(in)
	require.NotEmpty(t, out)
	assert.Contains(t, out, "ARTICULO 1")
	assert.Contains(t, out, "DECRETO 45/2021")
	assert.Contains(t, out, "pesos 1000")
	assert.NotContains(t, out, "página 1 de 1")
}

func TestClean_EmptyInput(t *testing.T) {
	c := NewDefault()
	assert.Equal(t, "", c.Clean(""))
}

func TestClean_DisabledStages(t *testing.T) {
	cfg := Config{NormalizeLegalText: false}
	c := New(cfg)
	out := c.Clean("Art. 5 dispone algo")
	assert.Contains(t, out, "Art. 5")
}
