package evaluation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"moved", "to", "bangalore"}, tokenize("Moved to Bangalore."))
	assert.Equal(t, []string{"yes", "no"}, tokenize("Yes! No?"))
	assert.Empty(t, tokenize("  ...  "))
}

func TestTokenSetF1(t *testing.T) {
	tests := []struct {
		name       string
		prediction string
		reference  string
		want       float64
	}{
		{name: "exact match", prediction: "vegetarian", reference: "vegetarian", want: 1},
		{name: "case and punctuation ignored", prediction: "Vegetarian.", reference: "vegetarian", want: 1},
		{name: "no overlap", prediction: "tea", reference: "coffee", want: 0},
		{name: "empty prediction", prediction: "", reference: "coffee", want: 0},
		{name: "empty reference", prediction: "tea", reference: "", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tokenSetF1(tt.prediction, tt.reference), 1e-9)
		})
	}
}

func TestTokenSetF1Partial(t *testing.T) {
	// prediction {user, lives, in, bangalore}, reference {bangalore}:
	// precision 1/4, recall 1/1, F1 = 2*(1/4)/(5/4) = 0.4
	got := tokenSetF1("User lives in Bangalore", "Bangalore")
	assert.InDelta(t, 0.4, got, 1e-9)
}

func TestBleu1(t *testing.T) {
	// Exact match: precision 1, no brevity penalty.
	assert.InDelta(t, 1.0, bleu1("moved to bangalore", "moved to bangalore"), 1e-9)

	// Empty sides score zero.
	assert.Zero(t, bleu1("", "bangalore"))
	assert.Zero(t, bleu1("bangalore", ""))
}

func TestBleu1Smoothing(t *testing.T) {
	// No unigram match falls back to the epsilon precision instead of zero.
	got := bleu1("tea", "coffee")
	assert.Greater(t, got, 0.0)
	assert.Less(t, got, 0.2)
}

func TestBleu1BrevityPenalty(t *testing.T) {
	// A short prediction against a longer reference is penalized below its
	// raw precision.
	short := bleu1("bangalore", "user lives in bangalore")
	assert.Greater(t, short, 0.0)
	assert.Less(t, short, 1.0)

	// A longer prediction with full overlap only pays in precision.
	long := bleu1("the user lives in bangalore now", "user lives in bangalore")
	assert.Greater(t, long, 0.5)
}
