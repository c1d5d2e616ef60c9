// Package quality computes heuristic quality scores for an edit.
//
// The scores are not model based: clarity measures how much closer the
// revised text's average sentence length moved to IdealSentenceLength, and
// conciseness rewards moderate word-count reduction.
package quality

import (
	"math"
	"strings"
)

// IdealSentenceLength is the target average sentence length in words
const IdealSentenceLength = 17.5

// Metrics holds the three scores, each an integer in [0,100]
type Metrics struct {
	Clarity     int `json:"clarity"`
	Conciseness int `json:"conciseness"`
	Improvement int `json:"improvement"`
}

// Score compares the original and revised text. Improvement is computed
// from the unrounded clarity and conciseness, then rounded.
func Score(original, revised string) Metrics {
	originalDeviation := math.Abs(averageSentenceLength(original) - IdealSentenceLength)
	revisedDeviation := math.Abs(averageSentenceLength(revised) - IdealSentenceLength)

	clarityImprovement := 0.0
	if originalDeviation != 0 {
		clarityImprovement = math.Max(0, (originalDeviation-revisedDeviation)/originalDeviation*100)
	}
	clarity := clamp(70 + clarityImprovement*0.3)

	conciseness := clamp(concisenessScore(reduction(original, revised)))
	improvement := clarity*0.5 + conciseness*0.5

	return Metrics{
		Clarity:     toPercent(clarity),
		Conciseness: toPercent(conciseness),
		Improvement: toPercent(improvement),
	}
}

// reduction is the word-count reduction in percent, 0 for an empty original
func reduction(original, revised string) float64 {
	originalWords := wordCount(original)
	if originalWords == 0 {
		return 0
	}
	return float64(originalWords-wordCount(revised)) / float64(originalWords) * 100
}

func concisenessScore(reduction float64) float64 {
	switch {
	case reduction < 0:
		return math.Max(50, 80+reduction)
	case reduction > 30:
		return math.Max(60, 100-(reduction-30)*2)
	default:
		return math.Min(100, 80+reduction*1.5)
	}
}

func averageSentenceLength(text string) float64 {
	sentences := sentenceCount(text)
	if sentences == 0 {
		return 0
	}
	return float64(wordCount(text)) / float64(sentences)
}

func sentenceCount(text string) int {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	n := 0
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			n++
		}
	}
	return n
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

// toPercent rounds half away from zero, matching the displayed values
func toPercent(v float64) int {
	return int(math.Round(clamp(v)))
}
