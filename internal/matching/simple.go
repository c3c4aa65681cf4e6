package matching

import (
	"errors"
	"math"
	"strings"
)

// ExpectedValueSeparator delimits expected values in the wire format
// "value1~value2~value3".
const ExpectedValueSeparator = "~"

// ErrNoExpectedValues is returned by CheckExpectedValues when nothing
// remains to match after blanks are dropped.
var ErrNoExpectedValues = errors.New("no expected values to match")

// MatchResult is the outcome of simple-mode matching.
type MatchResult struct {
	Percentage    int      `json:"percentage" yaml:"percentage"`
	Found         int      `json:"found" yaml:"found"`
	Total         int      `json:"total" yaml:"total"`
	Missing       string   `json:"missing" yaml:"missing"`
	MissingValues []string `json:"missingValues" yaml:"missingValues"`
}

// Empty reports whether the result was computed over an empty expected
// set, which callers should have rejected upstream.
func (r MatchResult) Empty() bool {
	return r.Total == 0
}

// ParseExpectedValues splits the tilde-delimited expected-value string,
// trimming each entry and dropping blanks. Input order is preserved.
func ParseExpectedValues(raw string) []string {
	return cleanValues(strings.Split(raw, ExpectedValueSeparator))
}

// CheckExpectedValues rejects a list with no non-blank values.
func CheckExpectedValues(values []string) error {
	if len(cleanValues(values)) == 0 {
		return ErrNoExpectedValues
	}
	return nil
}

// Match counts how many expected values occur in text as case-insensitive
// substrings. Blank values are ignored. An empty set yields 0%.
func Match(text string, expected []string) MatchResult {
	values := cleanValues(expected)
	result := MatchResult{
		Total:         len(values),
		MissingValues: []string{},
	}
	if result.Total == 0 {
		return result
	}

	haystack := fold(text)
	for _, v := range values {
		if strings.Contains(haystack, fold(v)) {
			result.Found++
			continue
		}
		result.MissingValues = append(result.MissingValues, v)
	}

	result.Percentage = int(math.Round(float64(result.Found) / float64(result.Total) * 100))
	result.Missing = strings.Join(result.MissingValues, ", ")
	return result
}

func cleanValues(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}
