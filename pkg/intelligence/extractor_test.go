package intelligence_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evermem/evermem-go/pkg/intelligence"
)

func newExtractor(provider *scriptedLLM) *intelligence.Extractor {
	counter := 0
	return intelligence.NewExtractor(provider,
		intelligence.WithExtractorIDGenerator(func() string {
			counter++
			return fmt.Sprintf("id_%d", counter)
		}),
		intelligence.WithExtractorMaxRetries(2),
		intelligence.WithExtractorBackoff(time.Millisecond),
	)
}

func TestExtract_UserMode(t *testing.T) {
	provider := &scriptedLLM{responses: []string{
		`{"memories": [
			{"source": "user_message", "content": "Name is Priya", "type": "personal_info"},
			{"source": "user_message", "content": "Works as a radiologist", "type": "professional"}
		]}`,
	}}
	extractor := newExtractor(provider)

	turns := []intelligence.Turn{
		{User: "Hello there", Assistant: "Hi! How can I help?"},
	}
	memories, err := extractor.Extract(context.Background(), turns,
		"My name is Priya, I work as a radiologist", "Nice to meet you, Priya!",
		intelligence.ModeUser)
	require.NoError(t, err)
	require.Len(t, memories, 2)

	assert.Equal(t, "id_1", memories[0].MemoryID)
	assert.Equal(t, "Name is Priya", memories[0].Content)
	assert.Equal(t, "personal_info", memories[0].Type)
	assert.Equal(t, "user_message", memories[0].Source)
	assert.WithinDuration(t, time.Now().UTC(), memories[0].Timestamp, 5*time.Second)

	assert.Equal(t, "id_2", memories[1].MemoryID)
	assert.Equal(t, "Works as a radiologist", memories[1].Content)

	require.Equal(t, 1, provider.calls())
	assert.Contains(t, provider.system(0), "Personal Information Organizer")
	prompt := provider.prompt(0)
	assert.Contains(t, prompt, "Input:\n")
	assert.Contains(t, prompt, "user: Hello there")
	assert.Contains(t, prompt, "assistant: Hi! How can I help?")
	assert.Contains(t, prompt, "user: My name is Priya, I work as a radiologist")
	assert.Contains(t, prompt, "assistant: Nice to meet you, Priya!")
}

func TestExtract_AgentMode(t *testing.T) {
	provider := &scriptedLLM{responses: []string{
		`{"memories": [{"source": "assistant_message", "content": "Name is Alex", "type": "personal_info"}]}`,
	}}
	extractor := newExtractor(provider)

	memories, err := extractor.Extract(context.Background(), nil,
		"What's your name?", "My name is Alex.", intelligence.ModeAgent)
	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.Equal(t, "Name is Alex", memories[0].Content)

	require.Equal(t, 1, provider.calls())
	assert.Contains(t, provider.system(0), "Assistant Information Organizer")
}

func TestExtract_BothModes(t *testing.T) {
	provider := &scriptedLLM{responses: []string{
		`{"memories": [{"source": "user_message", "content": "Likes hiking", "type": "preference"}]}`,
		`{"memories": [{"source": "assistant_message", "content": "Enjoys discussing trails", "type": "preference"}]}`,
	}}
	extractor := newExtractor(provider)

	memories, err := extractor.Extract(context.Background(), nil,
		"I like hiking", "I enjoy discussing trails!", intelligence.ModeBoth)
	require.NoError(t, err)
	require.Len(t, memories, 2)

	assert.Equal(t, "Likes hiking", memories[0].Content)
	assert.Equal(t, "Enjoys discussing trails", memories[1].Content)

	require.Equal(t, 2, provider.calls())
	assert.Contains(t, provider.system(0), "Personal Information Organizer")
	assert.Contains(t, provider.system(1), "Assistant Information Organizer")
	assert.Equal(t, provider.prompt(0), provider.prompt(1))
}

func TestExtract_UnknownMode(t *testing.T) {
	provider := &scriptedLLM{}
	extractor := newExtractor(provider)

	_, err := extractor.Extract(context.Background(), nil, "hi", "hello", intelligence.Mode("psychic"))
	require.Error(t, err)
	assert.ErrorIs(t, err, intelligence.ErrExtractionFailure)
	assert.Contains(t, err.Error(), `unknown extraction mode "psychic"`)
	assert.Equal(t, 0, provider.calls())
}

func TestExtract_EmptyResult(t *testing.T) {
	provider := &scriptedLLM{responses: []string{`{"memories": []}`}}
	extractor := newExtractor(provider)

	memories, err := extractor.Extract(context.Background(), nil,
		"Hi", "Hello! How can I help today?", intelligence.ModeUser)
	require.NoError(t, err)
	assert.Empty(t, memories)
}

func TestExtract_CodeFencedResponse(t *testing.T) {
	provider := &scriptedLLM{responses: []string{
		"```json\n{\"memories\": [{\"source\": \"user_message\", \"content\": \"Owns a cat\", \"type\": \"fact\"}]}\n```",
	}}
	extractor := newExtractor(provider)

	memories, err := extractor.Extract(context.Background(), nil,
		"I own a cat", "Cats are great", intelligence.ModeUser)
	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.Equal(t, "Owns a cat", memories[0].Content)
	assert.Equal(t, 1, provider.calls())
}

func TestExtract_SkipsBlankContentAndDefaultsSource(t *testing.T) {
	provider := &scriptedLLM{responses: []string{
		`{"memories": [
			{"source": "user_message", "content": "   ", "type": "fact"},
			{"content": "Plays the violin", "type": "hobby"}
		]}`,
	}}
	extractor := newExtractor(provider)

	memories, err := extractor.Extract(context.Background(), nil,
		"I play the violin", "Lovely!", intelligence.ModeUser)
	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.Equal(t, "Plays the violin", memories[0].Content)
	assert.Equal(t, "conversation", memories[0].Source)
}

func TestExtract_RetriesMalformedResponse(t *testing.T) {
	tests := []struct {
		name  string
		first string
	}{
		{"invalid JSON", "certainly, here are the memories you asked for"},
		{"missing memories key", `{"facts": []}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &scriptedLLM{responses: []string{
				tt.first,
				`{"memories": [{"source": "user_message", "content": "Lives in Oslo", "type": "fact"}]}`,
			}}
			extractor := newExtractor(provider)

			memories, err := extractor.Extract(context.Background(), nil,
				"I live in Oslo", "Noted", intelligence.ModeUser)
			require.NoError(t, err)
			require.Len(t, memories, 1)
			assert.Equal(t, "Lives in Oslo", memories[0].Content)
			assert.Equal(t, 2, provider.calls())
		})
	}
}

func TestExtract_RetryExhaustion(t *testing.T) {
	provider := &scriptedLLM{responses: []string{"not json", "still not json"}}
	extractor := newExtractor(provider)

	_, err := extractor.Extract(context.Background(), nil,
		"I live in Oslo", "Noted", intelligence.ModeUser)
	require.Error(t, err)
	assert.ErrorIs(t, err, intelligence.ErrExtractionFailure)
	assert.Contains(t, err.Error(), "2 attempts")
	assert.Equal(t, 2, provider.calls())
}

func TestExtract_TransportErrorConsumesAttempts(t *testing.T) {
	provider := &scriptedLLM{err: errors.New("connection refused")}
	extractor := newExtractor(provider)

	_, err := extractor.Extract(context.Background(), nil,
		"I live in Oslo", "Noted", intelligence.ModeUser)
	require.Error(t, err)
	assert.ErrorIs(t, err, intelligence.ErrExtractionFailure)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, 2, provider.calls())
}
