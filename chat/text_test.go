package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize_RoundTrip(t *testing.T) {
	inputs := []string{
		"",
		"word",
		"  leading",
		"trailing  ",
		"Lorem ipsum dolor.\n\nSit amet,\tconsectetur",
		"héllo wörld ✓",
	}
	for _, in := range inputs {
		assert.Equal(t, in, strings.Join(Tokenize(in), ""), "input %q", in)
	}
}

func TestTokenize_AlternatesRuns(t *testing.T) {
	assert.Equal(t, []string{"a", " ", "bc", "\n\n", "d"}, Tokenize("a bc\n\nd"))
	assert.Nil(t, Tokenize(""))
}

func TestParagraphText_Structure(t *testing.T) {
	text := ParagraphText(16)
	assert.NotEmpty(t, text)
	assert.Len(t, strings.Split(text, "\n\n"), 16)
}
