package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/evermem/evermem-go/pkg/llm"
	"github.com/evermem/evermem-go/pkg/logging"
)

// accuracyPrompt asks the judge model to label a generated answer against
// the golden answer. Placeholders, in order: question, gold answer,
// generated answer.
const accuracyPrompt = `
Your task is to label an answer to a question as 'CORRECT' or 'WRONG'. You will be given the following data:
    (1) a question (posed by one user to another user),
    (2) a 'gold' (ground truth) answer,
    (3) a generated answer
which you will score as CORRECT/WRONG.

The point of the question is to ask about something one user should know about the other user based on their prior conversations.
The gold answer will usually be a concise and short answer that includes the referenced topic.
The generated answer might be much longer, but you should be generous with your grading - as long as it touches on the same topic as the gold answer, it should be counted as CORRECT.

For time related questions, the gold answer will be a specific date, month, year, etc. The generated answer might be much longer or use relative time references, but you should be generous - as long as it refers to the same date or time period as the gold answer, it should be counted as CORRECT. Even if the format differs (e.g., "May 7th" vs "7 May"), consider it CORRECT if it's the same date.

Now it's time for the real question:
Question: %s
Gold answer: %s
Generated answer: %s

First, provide a short (one sentence) explanation of your reasoning, then finish with CORRECT or WRONG.
Do NOT include both CORRECT and WRONG in your response.

Return the label in JSON format with the key "label". Example: {"label": "CORRECT"}
`

// adversarialCategory marks questions that have no golden answer and are
// excluded from grading.
const adversarialCategory = 5

// jsonObjectPattern matches the first brace-balanced JSON object in a
// model reply, one nesting level deep.
var jsonObjectPattern = regexp.MustCompile(`\{[^{}]*(?:\{[^{}]*\}[^{}]*)*\}`)

// QuestionScore carries the per-question metrics produced by grading.
type QuestionScore struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Response string `json:"response"`
	Category int    `json:"category"`

	BLEUScore float64 `json:"bleu_score"`
	F1Score   float64 `json:"f1_score"`
	LLMScore  int     `json:"llm_score"`

	Speaker1MemoryTime float64 `json:"speaker_1_memory_time"`
	Speaker2MemoryTime float64 `json:"speaker_2_memory_time"`
	ResponseTime       float64 `json:"response_time"`
}

// Scores maps a conversation index to its graded questions.
type Scores map[string][]QuestionScore

// Save writes the scores as indented JSON.
func (s Scores) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "    ")
	if err != nil {
		return fmt.Errorf("save scores: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("save scores: %w", err)
	}
	return nil
}

// LoadScores reads scores written by Save.
func LoadScores(path string) (Scores, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load scores: %w", err)
	}
	var scores Scores
	if err := json.Unmarshal(data, &scores); err != nil {
		return nil, fmt.Errorf("load scores: %w", err)
	}
	return scores, nil
}

// Judge grades generated answers with an LLM and classic overlap metrics.
type Judge struct {
	llm    llm.Provider
	logger *logging.Logger
}

// NewJudge returns a Judge over the given provider. A nil logger disables
// logging.
func NewJudge(provider llm.Provider, logger *logging.Logger) *Judge {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Judge{llm: provider, logger: logger}
}

// Grade returns 1 when the judge labels the generated answer CORRECT and 0
// when it labels it WRONG. Replies the judge cannot parse count as WRONG.
func (j *Judge) Grade(ctx context.Context, question, goldAnswer, generatedAnswer string) (int, error) {
	prompt := fmt.Sprintf(accuracyPrompt, question, goldAnswer, generatedAnswer)
	response, err := j.llm.Complete(ctx, prompt, llm.WithTemperature(0))
	if err != nil {
		return 0, fmt.Errorf("judge: %w", err)
	}

	var parsed struct {
		Label string `json:"label"`
	}
	label := ""
	if err := json.Unmarshal([]byte(extractJSONObject(response)), &parsed); err == nil {
		label = strings.ToUpper(strings.TrimSpace(parsed.Label))
	}
	if label == "CORRECT" {
		return 1, nil
	}
	return 0, nil
}

// GradeReport grades every answered question in the report, skipping
// adversarial questions since they carry no golden answer.
func (j *Judge) GradeReport(ctx context.Context, report Report) (Scores, error) {
	keys := make([]string, 0, len(report))
	for key := range report {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	scores := make(Scores, len(report))
	for _, key := range keys {
		results := report[key]
		j.logger.Info("grading conversation", "conversation", key, "questions", len(results))

		graded := make([]QuestionScore, 0, len(results))
		for _, result := range results {
			if result.Category == adversarialCategory {
				continue
			}
			gold := answerText(result.Answer)
			llmScore, err := j.Grade(ctx, result.Question, gold, result.Response)
			if err != nil {
				return nil, fmt.Errorf("conversation %s: %w", key, err)
			}
			j.logger.Debug("graded question",
				"question", result.Question,
				"llm_score", llmScore,
			)
			graded = append(graded, QuestionScore{
				Question:           result.Question,
				Answer:             gold,
				Response:           result.Response,
				Category:           result.Category,
				BLEUScore:          bleu1(result.Response, gold),
				F1Score:            tokenSetF1(result.Response, gold),
				LLMScore:           llmScore,
				Speaker1MemoryTime: result.Speaker1MemoryTime,
				Speaker2MemoryTime: result.Speaker2MemoryTime,
				ResponseTime:       result.ResponseTime,
			})
		}
		scores[key] = graded
	}
	return scores, nil
}

// CategorySummary aggregates mean scores over one question category.
type CategorySummary struct {
	Category int `json:"category"`
	Count    int `json:"count"`

	BLEUScore float64 `json:"bleu_score"`
	F1Score   float64 `json:"f1_score"`
	LLMScore  float64 `json:"llm_score"`

	Speaker1MemoryTime float64 `json:"speaker_1_memory_time"`
	Speaker2MemoryTime float64 `json:"speaker_2_memory_time"`
	ResponseTime       float64 `json:"response_time"`
}

// Summarize computes mean scores per category, sorted by category, plus an
// overall summary across every graded question.
func Summarize(scores Scores) ([]CategorySummary, CategorySummary) {
	byCategory := make(map[int][]QuestionScore)
	var all []QuestionScore
	for _, graded := range scores {
		for _, score := range graded {
			byCategory[score.Category] = append(byCategory[score.Category], score)
			all = append(all, score)
		}
	}

	categories := make([]int, 0, len(byCategory))
	for category := range byCategory {
		categories = append(categories, category)
	}
	sort.Ints(categories)

	perCategory := make([]CategorySummary, 0, len(categories))
	for _, category := range categories {
		perCategory = append(perCategory, summarizeGroup(category, byCategory[category]))
	}
	return perCategory, summarizeGroup(0, all)
}

// summarizeGroup averages one group of graded questions.
func summarizeGroup(category int, graded []QuestionScore) CategorySummary {
	summary := CategorySummary{Category: category, Count: len(graded)}
	if len(graded) == 0 {
		return summary
	}
	for _, score := range graded {
		summary.BLEUScore += score.BLEUScore
		summary.F1Score += score.F1Score
		summary.LLMScore += float64(score.LLMScore)
		summary.Speaker1MemoryTime += score.Speaker1MemoryTime
		summary.Speaker2MemoryTime += score.Speaker2MemoryTime
		summary.ResponseTime += score.ResponseTime
	}
	n := float64(len(graded))
	summary.BLEUScore /= n
	summary.F1Score /= n
	summary.LLMScore /= n
	summary.Speaker1MemoryTime /= n
	summary.Speaker2MemoryTime /= n
	summary.ResponseTime /= n
	return summary
}

// extractJSONObject pulls the first JSON object out of a model reply that
// may wrap it in prose.
func extractJSONObject(text string) string {
	if match := jsonObjectPattern.FindString(text); match != "" {
		return match
	}
	return "{}"
}
