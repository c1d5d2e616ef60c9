package quality

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name     string
		original string
		revised  string
		want     Metrics
	}{
		{
			name:     "identical text",
			original: "The cat sat on the mat.",
			revised:  "The cat sat on the mat.",
			want:     Metrics{Clarity: 70, Conciseness: 80, Improvement: 75},
		},
		{
			name:     "single words",
			original: "a",
			revised:  "b",
			want:     Metrics{Clarity: 70, Conciseness: 80, Improvement: 75},
		},
		{
			name:     "text grew",
			original: "Short.",
			revised:  "Short but now much longer.",
			want:     Metrics{Clarity: 77, Conciseness: 50, Improvement: 64},
		},
		{
			name:     "heavy reduction",
			original: "one two three four five six seven eight nine ten.",
			revised:  "one two.",
			want:     Metrics{Clarity: 70, Conciseness: 60, Improvement: 65},
		},
		{
			name:     "moderate reduction",
			original: "one two three four five six seven eight nine ten.",
			revised:  "one two three four five six seven eight.",
			want:     Metrics{Clarity: 70, Conciseness: 100, Improvement: 85},
		},
		{
			name:     "unrounded improvement",
			original: "one two three four. five six seven eight.",
			revised:  "one two three four five six seven eight.",
			want:     Metrics{Clarity: 79, Conciseness: 80, Improvement: 79},
		},
		{
			name:     "empty original",
			original: "",
			revised:  "something",
			want:     Metrics{Clarity: 72, Conciseness: 80, Improvement: 76},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(tt.original, tt.revised))
		})
	}
}

func TestScoreIdealOriginal(t *testing.T) {
	// 35 words over 2 sentences: exactly the ideal length
	original := strings.Repeat("word ", 16) + "word. " + strings.Repeat("word ", 17) + "word."
	got := Score(original, "Much shorter now.")

	assert.Equal(t, 70, got.Clarity)
	assert.Equal(t, 60, got.Conciseness)
}

func TestScoreAlwaysInRange(t *testing.T) {
	inputs := []string{"a", ".", "!!!", "x.", "Hi", "one two three", strings.Repeat("long ", 300), "A. B. C. D. E."}
	for _, o := range inputs {
		for _, r := range inputs {
			m := Score(o, r)
			for _, v := range []int{m.Clarity, m.Conciseness, m.Improvement} {
				assert.GreaterOrEqual(t, v, 0)
				assert.LessOrEqual(t, v, 100)
			}
		}
	}
}

func TestSentenceCount(t *testing.T) {
	assert.Equal(t, 0, sentenceCount(""))
	assert.Equal(t, 0, sentenceCount(" . ! ?"))
	assert.Equal(t, 3, sentenceCount("One. Two! Three?"))
	assert.Equal(t, 1, sentenceCount("No terminator"))
}

func TestEstimateEnergy(t *testing.T) {
	tests := []struct {
		latency time.Duration
		gpu     bool
		want    string
	}{
		{time.Millisecond, false, "0.14 µWh"},
		{time.Second, false, "0.139 mWh"},
		{10 * time.Second, true, "9.72 mWh"},
		{2 * time.Hour, true, "7.000 Wh"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EstimateEnergy(tt.latency, tt.gpu).String())
	}
}
