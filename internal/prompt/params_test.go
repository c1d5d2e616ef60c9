package prompt

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParamsFor(t *testing.T) {
	assert.Equal(t, Params{Temperature: 0.3, TopK: 40, MaxTokens: 256}, ParamsFor(Summarize))
	assert.Equal(t, Params{Temperature: 0.2, TopK: 30, MaxTokens: 512}, ParamsFor(Proofread))
	assert.Equal(t, Params{Temperature: 0.6, TopK: 45, MaxTokens: 512}, ParamsFor(Paraphrase))
	assert.Equal(t, ParamsFor(Rewrite), ParamsFor(Task("Translate")))
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"   ", 0},
		{"one", 2},
		{"one two three four", 6},
		{"a\tb\nc  d e f g h i j", 14},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EstimateTokens(tt.text), "text=%q", tt.text)
	}
}

func TestCounts(t *testing.T) {
	c := Counts("héllo  world")
	assert.Equal(t, TextCounts{Characters: 12, Words: 2, Tokens: 3}, c)
}

func TestCheckBudget(t *testing.T) {
	assert.NoError(t, CheckBudget(DefaultBudget, DefaultBudget))

	err := CheckBudget(4001, DefaultBudget)
	var be *BudgetError
	assert.True(t, errors.As(err, &be))
	assert.Equal(t, 4001, be.Count)
	assert.Contains(t, err.Error(), "maximum allowed is 4000 tokens")
}
