package evaluation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evermem/evermem-go/pkg/core"
)

func TestPerspectivePairs(t *testing.T) {
	chats := []Chat{
		{Speaker: "Caroline", Text: "I adopted a dog last week."},
		{Speaker: "Melanie", Text: "That's wonderful!"},
		{Speaker: "Caroline", Text: "Her name is Luna."},
		{Speaker: "Melanie", Text: "Lovely name."},
	}

	// Caroline's perspective: her lines in the user slot, Melanie's replies
	// in the assistant slot, speaker names kept as prefixes.
	pairsA := perspectivePairs(chats, "Caroline")
	require.Len(t, pairsA, 2)
	assert.Equal(t, core.Turn{
		User:      "Caroline: I adopted a dog last week.",
		Assistant: "Melanie: That's wonderful!",
	}, pairsA[0])
	assert.Equal(t, core.Turn{
		User:      "Caroline: Her name is Luna.",
		Assistant: "Melanie: Lovely name.",
	}, pairsA[1])
}

func TestPerspectivePairsMirrored(t *testing.T) {
	chats := []Chat{
		{Speaker: "Caroline", Text: "I adopted a dog last week."},
		{Speaker: "Melanie", Text: "I got a cat myself!"},
		{Speaker: "Caroline", Text: "Her name is Luna."},
		{Speaker: "Melanie", Text: "Mine is called Mochi."},
	}

	// The same session yields different role assignments per speaker: each
	// speaker's own utterances always occupy the user slot of their stream.
	pairsA := perspectivePairs(chats, "Caroline")
	pairsB := perspectivePairs(chats, "Melanie")
	assert.NotEqual(t, pairsA, pairsB)

	require.Len(t, pairsB, 3)
	assert.Equal(t, core.Turn{
		User:      "",
		Assistant: "Caroline: I adopted a dog last week.",
	}, pairsB[0])
	assert.Equal(t, core.Turn{
		User:      "Melanie: I got a cat myself!",
		Assistant: "Caroline: Her name is Luna.",
	}, pairsB[1])
	assert.Equal(t, core.Turn{
		User:      "Melanie: Mine is called Mochi.",
		Assistant: "",
	}, pairsB[2])
}

func TestPerspectivePairsFoldsConsecutiveUtterances(t *testing.T) {
	chats := []Chat{
		{Speaker: "Caroline", Text: "Big news."},
		{Speaker: "Caroline", Text: "I got a promotion!"},
		{Speaker: "Melanie", Text: "Congratulations!"},
	}

	// Back-to-back lines by the same side fold into one slot; nothing is
	// dropped and no line ends up on the wrong side.
	pairsA := perspectivePairs(chats, "Caroline")
	require.Len(t, pairsA, 1)
	assert.Equal(t, core.Turn{
		User:      "Caroline: Big news.\nCaroline: I got a promotion!",
		Assistant: "Melanie: Congratulations!",
	}, pairsA[0])

	// In the mirrored stream the partner speaks first; that exchange stays
	// its own turn so the transcript order is preserved.
	pairsB := perspectivePairs(chats, "Melanie")
	require.Len(t, pairsB, 2)
	assert.Equal(t, core.Turn{
		Assistant: "Caroline: Big news.\nCaroline: I got a promotion!",
	}, pairsB[0])
	assert.Equal(t, core.Turn{
		User: "Melanie: Congratulations!",
	}, pairsB[1])
}

func TestPerspectivePairsEmpty(t *testing.T) {
	assert.Empty(t, perspectivePairs(nil, "Caroline"))

	pairs := perspectivePairs([]Chat{{Speaker: "Caroline", Text: "alone"}}, "Caroline")
	require.Len(t, pairs, 1)
	assert.Equal(t, core.Turn{User: "Caroline: alone"}, pairs[0])
}
