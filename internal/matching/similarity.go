package matching

import (
	"strings"

	"github.com/agext/levenshtein"
)

// window is a run of consecutive words from the extracted text.
type window struct {
	original string
	folded   string
}

// tokenizedText keeps the original and folded form of every word so a
// suggestion can quote the document as it was written.
type tokenizedText struct {
	original []string
	folded   []string
}

func tokenize(text string) tokenizedText {
	words := strings.Fields(text)
	t := tokenizedText{
		original: make([]string, 0, len(words)),
		folded:   make([]string, 0, len(words)),
	}
	for _, w := range words {
		trimmed := trimPunct(w)
		if trimmed == "" {
			continue
		}
		t.original = append(t.original, trimmed)
		t.folded = append(t.folded, fold(trimmed))
	}
	return t
}

// bestWindow returns the window of text most similar to value, comparing
// windows one word shorter, equal to, and one word longer than the value.
// Similarity is the normalized Levenshtein ratio in [0, 1].
func (t tokenizedText) bestWindow(value string) (window, float64) {
	target := canonical(value)
	n := len(strings.Fields(target))
	if n == 0 || len(t.folded) == 0 {
		return window{}, 0
	}

	var (
		best      window
		bestRatio float64
	)
	for size := n - 1; size <= n+1; size++ {
		if size < 1 || size > len(t.folded) {
			continue
		}
		for i := 0; i+size <= len(t.folded); i++ {
			candidate := strings.Join(t.folded[i:i+size], " ")
			ratio := levenshtein.Similarity(candidate, target, nil)
			if ratio > bestRatio {
				bestRatio = ratio
				best = window{
					original: strings.Join(t.original[i:i+size], " "),
					folded:   candidate,
				}
			}
		}
	}
	return best, bestRatio
}
