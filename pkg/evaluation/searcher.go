package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/evermem/evermem-go/pkg/core"
	"github.com/evermem/evermem-go/pkg/llm"
	"github.com/evermem/evermem-go/pkg/logging"
)

// defaultSearchTopK is how many memories are retrieved per speaker for each
// question.
const defaultSearchTopK = 30

// answerPromptTemplate instructs the model to answer a benchmark question
// from both speakers' timestamped memories.
var answerPromptTemplate = template.Must(template.New("answer").Parse(`You are an intelligent memory assistant tasked with retrieving accurate information from conversation memories.

# CONTEXT:
You have access to memories from two speakers in a conversation. These memories contain
timestamped information that may be relevant to answering the question.

# INSTRUCTIONS:
1. Carefully analyze all provided memories from both speakers
2. Pay special attention to the timestamps to determine the answer
3. If the question asks about a specific event or fact, look for direct evidence in the memories
4. If the memories contain contradictory information, prioritize the most recent memory
5. If there is a question about time references (like "last year", "two months ago", etc.), calculate the actual date based on the memory timestamp. For example, if a memory from 4 May 2022 mentions "went to India last year," then the trip occurred in 2021.
6. Always convert relative time references to specific dates, months, or years. For example, convert "last year" to "2022" or "two months ago" to "March 2023" based on the memory timestamp. Ignore the reference while answering the question.
7. Focus only on the content of the memories from both speakers. Do not confuse character names mentioned in memories with the actual users who created those memories.
8. The answer should be less than 5-6 words.

# APPROACH (Think step by step):
1. First, examine all memories that contain information related to the question
2. Examine the timestamps and content of these memories carefully
3. Look for explicit mentions of dates, times, locations, or events that answer the question
4. If the answer requires calculation (e.g., converting relative time references), show your work
5. Formulate a precise, concise answer based solely on the evidence in the memories
6. Double-check that your answer directly addresses the question asked
7. Ensure your final answer is specific and avoids vague time references

Memories for user {{.Speaker1}}:

{{.Speaker1Memories}}

Memories for user {{.Speaker2}}:

{{.Speaker2Memories}}

Question: {{.Question}}

Answer:
`))

type answerPromptData struct {
	Speaker1         string
	Speaker2         string
	Speaker1Memories string
	Speaker2Memories string
	Question         string
}

// QuestionResult is the full record kept for one answered question.
type QuestionResult struct {
	Question          string      `json:"question"`
	Answer            interface{} `json:"answer,omitempty"`
	Category          int         `json:"category"`
	Evidence          interface{} `json:"evidence,omitempty"`
	Response          string      `json:"response"`
	AdversarialAnswer string      `json:"adversarial_answer,omitempty"`

	// Speaker memories are the retrieved "timestamp: content" lines that
	// were shown to the answering model.
	Speaker1Memories    []string `json:"speaker_1_memories"`
	Speaker2Memories    []string `json:"speaker_2_memories"`
	NumSpeaker1Memories int      `json:"num_speaker_1_memories"`
	NumSpeaker2Memories int      `json:"num_speaker_2_memories"`

	// Latencies in seconds.
	Speaker1MemoryTime float64 `json:"speaker_1_memory_time"`
	Speaker2MemoryTime float64 `json:"speaker_2_memory_time"`
	ResponseTime       float64 `json:"response_time"`
}

// Report maps a conversation index to the results of its questions.
type Report map[string][]QuestionResult

// Save writes the report as indented JSON.
func (r Report) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "    ")
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

// LoadReport reads a report written by Save.
func LoadReport(path string) (Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load report: %w", err)
	}
	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("load report: %w", err)
	}
	return report, nil
}

// Searcher answers LOCOMO questions from memories retrieved for both
// speakers of a conversation.
type Searcher struct {
	client *core.Client
	llm    llm.Provider
	topK   int
	logger *logging.Logger
}

// NewSearcher returns a Searcher over the given client. topK bounds the
// memories retrieved per speaker; values below one fall back to the
// default of 30. A nil logger disables logging.
func NewSearcher(client *core.Client, topK int, logger *logging.Logger) *Searcher {
	if topK < 1 {
		topK = defaultSearchTopK
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Searcher{
		client: client,
		llm:    client.LLM(),
		topK:   topK,
		logger: logger,
	}
}

// ProcessDataset answers every question of every conversation and returns
// the report keyed by conversation index.
func (s *Searcher) ProcessDataset(ctx context.Context, items []Item) (Report, error) {
	report := make(Report, len(items))
	for idx, item := range items {
		conv := item.Conversation
		speaker1ID := SpeakerUserID(conv.SpeakerA, idx)
		speaker2ID := SpeakerUserID(conv.SpeakerB, idx)
		s.logger.Info("answering questions",
			"conversation", idx,
			"questions", len(item.QA),
		)

		results := make([]QuestionResult, 0, len(item.QA))
		for qi, qa := range item.QA {
			result, err := s.ProcessQuestion(ctx, qa, speaker1ID, speaker2ID)
			if err != nil {
				return nil, fmt.Errorf("conversation %d question %d: %w", idx, qi, err)
			}
			results = append(results, result)
		}
		report[strconv.Itoa(idx)] = results
	}
	return report, nil
}

// ProcessQuestion retrieves memories for both speakers, asks the model for
// an answer, and records what it saw and how long each step took.
func (s *Searcher) ProcessQuestion(ctx context.Context, qa QA, speaker1ID, speaker2ID string) (QuestionResult, error) {
	memories1, time1, err := s.searchMemories(ctx, speaker1ID, qa.Question)
	if err != nil {
		return QuestionResult{}, fmt.Errorf("search %s: %w", speaker1ID, err)
	}
	memories2, time2, err := s.searchMemories(ctx, speaker2ID, qa.Question)
	if err != nil {
		return QuestionResult{}, fmt.Errorf("search %s: %w", speaker2ID, err)
	}

	prompt, err := s.renderAnswerPrompt(qa.Question, speaker1ID, speaker2ID, memories1, memories2)
	if err != nil {
		return QuestionResult{}, err
	}

	start := time.Now()
	response, err := s.llm.Complete(ctx, prompt, llm.WithTemperature(0))
	if err != nil {
		return QuestionResult{}, fmt.Errorf("%w: %v", core.ErrLLMFailure, err)
	}
	responseTime := time.Since(start).Seconds()

	s.logger.Debug("answered question",
		"question", qa.Question,
		"response", response,
		"memories_1", len(memories1),
		"memories_2", len(memories2),
	)

	return QuestionResult{
		Question:            qa.Question,
		Answer:              qa.Answer,
		Category:            qa.Category,
		Evidence:            qa.Evidence,
		Response:            strings.TrimSpace(response),
		AdversarialAnswer:   qa.AdversarialAnswer,
		Speaker1Memories:    memories1,
		Speaker2Memories:    memories2,
		NumSpeaker1Memories: len(memories1),
		NumSpeaker2Memories: len(memories2),
		Speaker1MemoryTime:  time1,
		Speaker2MemoryTime:  time2,
		ResponseTime:        responseTime,
	}, nil
}

// searchMemories retrieves the user's memories for a question and renders
// them as "timestamp: content" lines, returning the lookup latency in
// seconds.
func (s *Searcher) searchMemories(ctx context.Context, userID, question string) ([]string, float64, error) {
	start := time.Now()
	memories, err := s.client.Retrieve(ctx, question, s.topK, core.WithUserIDForRetrieve(userID))
	elapsed := time.Since(start).Seconds()
	if err != nil {
		return nil, elapsed, err
	}

	lines := make([]string, 0, len(memories))
	for _, memory := range memories {
		lines = append(lines, fmt.Sprintf("%s: %s", memory.Timestamp.Format(time.RFC3339), memory.Content))
	}
	return lines, elapsed, nil
}

// renderAnswerPrompt fills the answer template. Memory lines are embedded
// as an indented JSON array, and user ids collapse back to plain speaker
// names.
func (s *Searcher) renderAnswerPrompt(question, speaker1ID, speaker2ID string, memories1, memories2 []string) (string, error) {
	encoded1, err := json.MarshalIndent(memories1, "", "    ")
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	encoded2, err := json.MarshalIndent(memories2, "", "    ")
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}

	var sb strings.Builder
	data := answerPromptData{
		Speaker1:         speakerName(speaker1ID),
		Speaker2:         speakerName(speaker2ID),
		Speaker1Memories: string(encoded1),
		Speaker2Memories: string(encoded2),
		Question:         question,
	}
	if err := answerPromptTemplate.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return sb.String(), nil
}
