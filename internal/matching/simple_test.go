package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const certificate = "Certificate presented to John Doe for the paper Neural Networks published in IEEE Transactions, 2024."

func TestMatch_AllValuesPresent(t *testing.T) {
	got := Match(certificate, ParseExpectedValues("John Doe~Neural Networks~IEEE~2024"))

	assert.Equal(t, 100, got.Percentage)
	assert.Equal(t, 4, got.Found)
	assert.Equal(t, 4, got.Total)
	assert.Equal(t, "", got.Missing)
	assert.Empty(t, got.MissingValues)
}

func TestMatch_OneValueMissing(t *testing.T) {
	text := "Certificate presented to John Doe for the paper Neural Networks published in Transactions, 2024."
	got := Match(text, ParseExpectedValues("John Doe~Neural Networks~IEEE~2024"))

	assert.Equal(t, 75, got.Percentage)
	assert.Equal(t, 3, got.Found)
	assert.Equal(t, 4, got.Total)
	assert.Equal(t, "IEEE", got.Missing)
}

func TestMatch_NoneFoundKeepsOrder(t *testing.T) {
	got := Match("unrelated text", []string{"Zeta", "Alpha", "Mid"})

	assert.Equal(t, 0, got.Percentage)
	assert.Equal(t, 0, got.Found)
	assert.Equal(t, "Zeta, Alpha, Mid", got.Missing)
	assert.Equal(t, []string{"Zeta", "Alpha", "Mid"}, got.MissingValues)
}

func TestMatch_CaseInsensitive(t *testing.T) {
	assert.Equal(t, 100, Match("Hello World", []string{"hello"}).Percentage)
	assert.Equal(t, 100, Match("straße", []string{"STRASSE"}).Percentage)
}

func TestMatch_RoundsPercentage(t *testing.T) {
	got := Match("alpha beta", []string{"alpha", "beta", "gamma"})
	assert.Equal(t, 67, got.Percentage)

	got = Match("alpha", []string{"alpha", "beta", "gamma"})
	assert.Equal(t, 33, got.Percentage)
}

func TestMatch_EmptyExpectedSet(t *testing.T) {
	got := Match("anything", nil)
	assert.Equal(t, 0, got.Percentage)
	assert.Equal(t, 0, got.Total)
	assert.True(t, got.Empty())

	got = Match("anything", []string{"", "   "})
	assert.Equal(t, 0, got.Percentage)
	assert.True(t, got.Empty())
}

func TestMatch_BlankValuesDoNotInflate(t *testing.T) {
	got := Match("John Doe", []string{"John Doe", "", "  ", "IEEE"})

	assert.Equal(t, 2, got.Total)
	assert.Equal(t, 50, got.Percentage)
	assert.Equal(t, "IEEE", got.Missing)
}

func TestMatch_EmptyTextReportsEverythingMissing(t *testing.T) {
	got := Match("", []string{"a", "b"})

	assert.Equal(t, 0, got.Percentage)
	assert.Equal(t, "a, b", got.Missing)
}

func TestParseExpectedValues(t *testing.T) {
	assert.Equal(t, []string{"a", "b c"}, ParseExpectedValues(" a ~~ b c~ "))
	assert.Empty(t, ParseExpectedValues(""))
	assert.Empty(t, ParseExpectedValues("~~~"))
}

func TestCheckExpectedValues(t *testing.T) {
	assert.ErrorIs(t, CheckExpectedValues(nil), ErrNoExpectedValues)
	assert.ErrorIs(t, CheckExpectedValues([]string{" ", ""}), ErrNoExpectedValues)
	assert.NoError(t, CheckExpectedValues([]string{"x"}))
}
