package evals

import (
	"context"
	"math"
	"regexp"
	"strings"
)

const ToneConsistencyName = "tone-consistency"

var (
	sentenceRE = regexp.MustCompile(`[^.!?]+[.!?]+`)
	tokenRE    = regexp.MustCompile(`[a-z0-9']+`)
)

// ToneConsistency compares the sentiment of input and output. Without an
// output it scores how stable the sentiment is across the input's
// sentences.
type ToneConsistency struct{}

func NewToneConsistency() *ToneConsistency { return &ToneConsistency{} }

func (*ToneConsistency) Name() string { return ToneConsistencyName }

func (*ToneConsistency) Measure(_ context.Context, input, output string) (Result, error) {
	if output != "" {
		in, out := comparative(input), comparative(output)
		diff := math.Abs(in - out)
		return Result{
			Score: math.Max(0, 1-diff),
			Info: map[string]any{
				"responseSentiment":  in,
				"referenceSentiment": out,
				"difference":         diff,
			},
		}, nil
	}

	sentences := sentenceRE.FindAllString(input, -1)
	if len(sentences) == 0 {
		sentences = []string{input}
	}
	scores := make([]float64, len(sentences))
	var sum float64
	for i, s := range sentences {
		scores[i] = comparative(s)
		sum += scores[i]
	}
	avg := sum / float64(len(scores))
	var variance float64
	for _, s := range scores {
		variance += (s - avg) * (s - avg)
	}
	variance /= float64(len(scores))

	return Result{
		Score: math.Max(0, 1-variance),
		Info: map[string]any{
			"avgSentiment":      avg,
			"sentimentVariance": variance,
		},
	}, nil
}

// comparative is the summed word valence divided by the token count.
func comparative(text string) float64 {
	tokens := tokenRE.FindAllString(strings.ToLower(text), -1)
	if len(tokens) == 0 {
		return 0
	}
	score := 0
	for i, tok := range tokens {
		v, ok := afinn[tok]
		if !ok {
			continue
		}
		if i > 0 && negators[tokens[i-1]] {
			v = -v
		}
		score += v
	}
	return float64(score) / float64(len(tokens))
}
