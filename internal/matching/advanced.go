package matching

import (
	"math"
	"sort"
	"strings"
)

// MatchType tells how a confirmed field was found.
type MatchType string

const (
	MatchExact      MatchType = "exact"
	MatchNormalized MatchType = "normalized"
)

// SuggestionSource tells why a field was suggested rather than confirmed.
type SuggestionSource string

const (
	SourceSynonym    SuggestionSource = "synonym"
	SourceSimilarity SuggestionSource = "similarity"
)

const (
	DefaultSimilarityThreshold = 0.6
	DefaultSuggestionWeight    = 0.5
)

// FormData maps field name to the value the user entered.
type FormData map[string]string

// FieldSynonyms maps field name to alternative strings that corroborate it.
type FieldSynonyms map[string][]string

type FieldMatch struct {
	Field     string    `json:"field" yaml:"field"`
	UserValue string    `json:"userValue" yaml:"userValue"`
	MatchType MatchType `json:"matchType" yaml:"matchType"`
}

type FieldSuggestion struct {
	Field          string           `json:"field" yaml:"field"`
	UserValue      string           `json:"userValue" yaml:"userValue"`
	SuggestedValue string           `json:"suggestedValue" yaml:"suggestedValue"`
	MatchRatio     float64          `json:"matchRatio" yaml:"matchRatio"`
	Source         SuggestionSource `json:"source" yaml:"source"`
}

type FieldMismatch struct {
	Field     string `json:"field" yaml:"field"`
	UserValue string `json:"userValue" yaml:"userValue"`
}

// ValidationResult is the outcome of advanced validation. Every evaluated
// field lands in exactly one of the three buckets.
type ValidationResult struct {
	OverallScore float64           `json:"overallScore" yaml:"overallScore"`
	Evaluated    int               `json:"evaluated" yaml:"evaluated"`
	Matches      []FieldMatch      `json:"matches" yaml:"matches"`
	Suggestions  []FieldSuggestion `json:"suggestions" yaml:"suggestions"`
	Mismatches   []FieldMismatch   `json:"mismatches" yaml:"mismatches"`
}

// Options tunes the advanced validator.
type Options struct {
	// SimilarityThreshold is the minimum ratio in (0, 1] for a similarity
	// suggestion.
	SimilarityThreshold float64
	// SuggestionWeight is how much a suggestion counts toward the overall
	// score relative to a match, in [0, 1].
	SuggestionWeight float64
	// NumericFields are compared after stripping currency and separators.
	NumericFields []string
}

func DefaultOptions() Options {
	return Options{
		SimilarityThreshold: DefaultSimilarityThreshold,
		SuggestionWeight:    DefaultSuggestionWeight,
	}
}

// Validator classifies form fields against extracted text.
type Validator struct {
	threshold float64
	weight    float64
	numeric   map[string]bool
}

func NewValidator(opts Options) *Validator {
	v := &Validator{
		threshold: opts.SimilarityThreshold,
		weight:    opts.SuggestionWeight,
		numeric:   make(map[string]bool, len(opts.NumericFields)),
	}
	if math.IsNaN(v.threshold) || v.threshold <= 0 || v.threshold > 1 {
		v.threshold = DefaultSimilarityThreshold
	}
	switch {
	case math.IsNaN(v.weight):
		v.weight = DefaultSuggestionWeight
	case v.weight < 0:
		v.weight = 0
	case v.weight > 1:
		v.weight = 1
	}
	for _, f := range opts.NumericFields {
		v.numeric[strings.TrimSpace(f)] = true
	}
	return v
}

// ValidateAdvanced runs the validator with default options.
func ValidateAdvanced(text string, form FormData, synonyms FieldSynonyms) ValidationResult {
	return NewValidator(DefaultOptions()).Validate(text, form, synonyms)
}

// Validate classifies each non-blank form field as a match, suggestion or
// mismatch. Fields are visited in name order so results are stable.
func (v *Validator) Validate(text string, form FormData, synonyms FieldSynonyms) ValidationResult {
	result := ValidationResult{
		Matches:     []FieldMatch{},
		Suggestions: []FieldSuggestion{},
		Mismatches:  []FieldMismatch{},
	}

	fields := make([]string, 0, len(form))
	for field, value := range form {
		if strings.TrimSpace(value) != "" {
			fields = append(fields, field)
		}
	}
	sort.Strings(fields)

	haystack := canonical(text)
	var (
		tokens    tokenizedText
		tokenized bool
		numbers   []string
		numbersOK bool
	)

	for _, field := range fields {
		value := strings.TrimSpace(form[field])
		result.Evaluated++

		if strings.Contains(haystack, canonical(value)) {
			result.Matches = append(result.Matches, FieldMatch{Field: field, UserValue: value, MatchType: MatchExact})
			continue
		}

		if v.numeric[field] {
			if !numbersOK {
				numbers, numbersOK = numericTokens(text), true
			}
			if containsNumber(numbers, value) {
				result.Matches = append(result.Matches, FieldMatch{Field: field, UserValue: value, MatchType: MatchNormalized})
				continue
			}
		}

		if syn, ok := findSynonym(haystack, synonyms[field]); ok {
			result.Suggestions = append(result.Suggestions, FieldSuggestion{
				Field:          field,
				UserValue:      value,
				SuggestedValue: syn,
				MatchRatio:     1,
				Source:         SourceSynonym,
			})
			continue
		}

		if !tokenized {
			tokens, tokenized = tokenize(text), true
		}
		if w, ratio := tokens.bestWindow(value); ratio >= v.threshold {
			result.Suggestions = append(result.Suggestions, FieldSuggestion{
				Field:          field,
				UserValue:      value,
				SuggestedValue: w.original,
				MatchRatio:     round2(ratio),
				Source:         SourceSimilarity,
			})
			continue
		}

		result.Mismatches = append(result.Mismatches, FieldMismatch{Field: field, UserValue: value})
	}

	result.OverallScore = v.score(len(result.Matches), len(result.Suggestions), result.Evaluated)
	return result
}

func (v *Validator) score(matches, suggestions, evaluated int) float64 {
	if evaluated == 0 {
		return 0
	}
	earned := float64(matches) + v.weight*float64(suggestions)
	return round2(earned / float64(evaluated) * 100)
}

func containsNumber(numbers []string, value string) bool {
	want, ok := normalizeNumeric(value)
	if !ok {
		return false
	}
	for _, n := range numbers {
		if n == want {
			return true
		}
	}
	return false
}

func findSynonym(haystack string, synonyms []string) (string, bool) {
	for _, s := range synonyms {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if strings.Contains(haystack, canonical(s)) {
			return s, true
		}
	}
	return "", false
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
