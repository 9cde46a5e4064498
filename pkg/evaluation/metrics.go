package evaluation

import (
	"math"
	"strings"
)

// tokenize lowercases, strips sentence punctuation, and splits on
// whitespace.
func tokenize(text string) []string {
	text = strings.ToLower(text)
	replacer := strings.NewReplacer(".", " ", ",", " ", "!", " ", "?", " ")
	return strings.Fields(replacer.Replace(text))
}

// tokenSetF1 scores the token-set overlap between a prediction and the
// golden answer.
func tokenSetF1(prediction, reference string) float64 {
	predTokens := tokenize(prediction)
	refTokens := tokenize(reference)
	if len(predTokens) == 0 || len(refTokens) == 0 {
		return 0
	}

	predSet := make(map[string]struct{}, len(predTokens))
	for _, tok := range predTokens {
		predSet[tok] = struct{}{}
	}
	refSet := make(map[string]struct{}, len(refTokens))
	for _, tok := range refTokens {
		refSet[tok] = struct{}{}
	}

	common := 0
	for tok := range predSet {
		if _, found := refSet[tok]; found {
			common++
		}
	}
	if common == 0 {
		return 0
	}

	precision := float64(common) / float64(len(predSet))
	recall := float64(common) / float64(len(refSet))
	return 2 * precision * recall / (precision + recall)
}

// bleu1Epsilon smooths a zero unigram match count, matching NLTK's
// method1 smoothing.
const bleu1Epsilon = 0.1

// bleu1 scores the smoothed unigram BLEU of a prediction against a single
// reference: clipped unigram precision scaled by the brevity penalty.
func bleu1(prediction, reference string) float64 {
	predTokens := tokenize(prediction)
	refTokens := tokenize(reference)
	if len(predTokens) == 0 || len(refTokens) == 0 {
		return 0
	}

	refCounts := make(map[string]int, len(refTokens))
	for _, tok := range refTokens {
		refCounts[tok]++
	}
	matches := 0
	for _, tok := range predTokens {
		if refCounts[tok] > 0 {
			matches++
			refCounts[tok]--
		}
	}

	precision := float64(matches) / float64(len(predTokens))
	if matches == 0 {
		precision = bleu1Epsilon / float64(len(predTokens))
	}

	brevity := 1.0
	if len(predTokens) < len(refTokens) {
		brevity = math.Exp(1 - float64(len(refTokens))/float64(len(predTokens)))
	}
	return brevity * precision
}
