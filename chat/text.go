package chat

import (
	"strings"
	"unicode"

	loremgen "github.com/bozaro/golorem"
)

// ParagraphText returns n paragraphs of filler text separated by blank lines.
func ParagraphText(n int) string {
	if n < 1 {
		n = 1
	}
	gen := loremgen.New()
	paragraphs := make([]string, 0, n)
	for i := 0; i < n; i++ {
		paragraphs = append(paragraphs, gen.Paragraph(3, 6))
	}
	return strings.Join(paragraphs, "\n\n")
}

// Tokenize splits text into alternating runs of whitespace and non-whitespace.
// Joining the tokens reproduces text exactly.
func Tokenize(text string) []string {
	var tokens []string
	start := 0
	inSpace := false
	for i, r := range text {
		space := unicode.IsSpace(r)
		if i == 0 {
			inSpace = space
			continue
		}
		if space != inSpace {
			tokens = append(tokens, text[start:i])
			start = i
			inSpace = space
		}
	}
	if start < len(text) {
		tokens = append(tokens, text[start:])
	}
	return tokens
}
