package prompt

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

// Params are the sampling parameters tuned per task
type Params struct {
	Temperature float64 `json:"temperature"`
	TopK        int     `json:"top_k"`
	MaxTokens   int     `json:"max_tokens"`
}

var taskParams = map[Task]Params{
	Rewrite:    {Temperature: 0.7, TopK: 50, MaxTokens: 512},
	Summarize:  {Temperature: 0.3, TopK: 40, MaxTokens: 256},
	Proofread:  {Temperature: 0.2, TopK: 30, MaxTokens: 512},
	Paraphrase: {Temperature: 0.6, TopK: 45, MaxTokens: 512},
}

// ParamsFor returns the parameters for a task, Rewrite's for unknown tasks
func ParamsFor(task Task) Params {
	if p, ok := taskParams[task]; ok {
		return p
	}
	return taskParams[Rewrite]
}

// Token budgets
const (
	DefaultBudget = 4000
	ChatBudget    = 3500

	tokensPerWord = 1.35
)

// TextCounts holds the live counters shown next to the input
type TextCounts struct {
	Characters int `json:"characters"`
	Words      int `json:"words"`
	Tokens     int `json:"tokens"`
}

// Words splits on runs of whitespace
func Words(text string) []string {
	return strings.Fields(text)
}

// EstimateTokens approximates the token count as ceil(words * 1.35)
func EstimateTokens(text string) int {
	return int(math.Ceil(float64(len(Words(text))) * tokensPerWord))
}

// Counts returns character, word and estimated token counts
func Counts(text string) TextCounts {
	return TextCounts{
		Characters: utf8.RuneCountInString(text),
		Words:      len(Words(text)),
		Tokens:     EstimateTokens(text),
	}
}

// BudgetError reports a prompt that exceeds the token budget
type BudgetError struct {
	Count int
	Limit int
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("input is too long (%d tokens); the maximum allowed is %d tokens", e.Count, e.Limit)
}

// CheckBudget returns a *BudgetError when count exceeds limit
func CheckBudget(count, limit int) error {
	if count > limit {
		return &BudgetError{Count: count, Limit: limit}
	}
	return nil
}
