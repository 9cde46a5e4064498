package intelligence

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/evermem/evermem-go/pkg/vector"
)

// renderTranscript flattens the recent history and the current exchange into
// "role: content" lines, the shape the extraction prompts expect.
func renderTranscript(turns []Turn, userMessage, assistantMessage string) string {
	var parts []string
	for _, turn := range turns {
		if turn.User != "" {
			parts = append(parts, fmt.Sprintf("user: %s", turn.User))
		}
		if turn.Assistant != "" {
			parts = append(parts, fmt.Sprintf("assistant: %s", turn.Assistant))
		}
	}
	if userMessage != "" {
		parts = append(parts, fmt.Sprintf("user: %s", userMessage))
	}
	if assistantMessage != "" {
		parts = append(parts, fmt.Sprintf("assistant: %s", assistantMessage))
	}
	return strings.Join(parts, "\n")
}

// userExtractionPrompt returns the system prompt for extracting facts about
// the user from user messages only.
func userExtractionPrompt() string {
	today := time.Now().Format("2006-01-02")
	return fmt.Sprintf(`You are a Personal Information Organizer, specialized in accurately storing facts, user memories, and preferences.
Your primary role is to extract relevant pieces of information from conversations and organize them into distinct, manageable facts.
This allows for easy retrieval and personalization in future interactions.

# [IMPORTANT]: GENERATE FACTS SOLELY BASED ON THE USER'S MESSAGES. DO NOT INCLUDE INFORMATION FROM ASSISTANT OR SYSTEM MESSAGES.
# [IMPORTANT]: YOU WILL BE PENALIZED IF YOU INCLUDE INFORMATION FROM ASSISTANT OR SYSTEM MESSAGES.

Types of Information to Remember:

1. Store Personal Preferences: Keep track of likes, dislikes, and specific preferences in various categories such as food, products, activities, and entertainment.
2. Maintain Important Personal Details: Remember significant personal information like names, relationships, and important dates.
3. Track Plans and Intentions: Note upcoming events, trips, goals, and any plans the user has shared.
4. Remember Activity and Service Preferences: Recall preferences for dining, travel, hobbies, and other services.
5. Monitor Health and Wellness Preferences: Keep a record of dietary restrictions, fitness routines, and other wellness-related information.
6. Store Professional Details: Remember job titles, work habits, career goals, and other professional information.
7. Miscellaneous Information Management: Keep track of favorite books, movies, brands, and other miscellaneous details that the user shares.

Here are some few shot examples:

User: Hi.
Assistant: Hello! How can I help today?
Output: {"memories": []}

User: Hi, I am looking for a restaurant in San Francisco.
Assistant: Sure, I can help with that. Any particular cuisine you're interested in?
Output: {"memories": [{"source": "user_message", "content": "Looking for a restaurant in San Francisco", "type": "preference"}]}

User: Yesterday, I had a meeting with John at 3pm. We discussed the new project.
Assistant: Sounds like a productive meeting.
Output: {"memories": [{"source": "user_message", "content": "Had a meeting with John at 3pm and discussed the new project", "type": "fact"}]}

User: Hi, my name is John. I am a software engineer.
Assistant: Nice to meet you, John! How can I help?
Output: {"memories": [{"source": "user_message", "content": "Name is John", "type": "personal_info"}, {"source": "user_message", "content": "Is a software engineer", "type": "professional"}]}

Return the facts and preferences in JSON format with a key "memories" and a list of objects, each with "source", "content", and "type".
- "source" must be "user_message" (you are only extracting from user messages).
- "type" examples: user_preference, personal_info, fact, plan, professional, context.

Remember:
- Today's date is %s.
- If you do not find anything relevant in the conversation, return {"memories": []}.
- Create the facts based on the user messages only. Do not pick anything from the assistant or system messages.
- Detect the language of the user input and record the facts in the same language.

Following is the conversation. Extract relevant facts and preferences about the user from USER messages only, and return them in the JSON format above.`, today)
}

// agentExtractionPrompt returns the system prompt for extracting facts about
// the assistant from assistant messages only.
func agentExtractionPrompt() string {
	today := time.Now().Format("2006-01-02")
	return fmt.Sprintf(`You are an Assistant Information Organizer, specialized in accurately storing facts, preferences, and characteristics about the AI assistant from conversations.
Your primary role is to extract relevant pieces of information about the assistant from conversations and organize them into distinct, manageable facts.
This allows for easy retrieval and characterization of the assistant in future interactions.

# [IMPORTANT]: GENERATE FACTS SOLELY BASED ON THE ASSISTANT'S MESSAGES. DO NOT INCLUDE INFORMATION FROM USER OR SYSTEM MESSAGES.
# [IMPORTANT]: YOU WILL BE PENALIZED IF YOU INCLUDE INFORMATION FROM USER OR SYSTEM MESSAGES.

Types of Information to Remember:

1. Assistant's Preferences: Keep track of likes, dislikes, and specific preferences the assistant mentions in various categories such as activities, topics of interest, and hypothetical scenarios.
2. Assistant's Capabilities: Note any specific skills, knowledge areas, or tasks the assistant mentions being able to perform.
3. Assistant's Hypothetical Plans or Activities: Record any hypothetical activities or plans the assistant describes engaging in.
4. Assistant's Personality Traits: Identify any personality traits or characteristics the assistant displays or mentions.
5. Assistant's Approach to Tasks: Remember how the assistant approaches different types of tasks or questions.
6. Assistant's Knowledge Areas: Keep track of subjects or fields the assistant demonstrates knowledge in.
7. Miscellaneous Information: Record any other interesting or unique details the assistant shares about itself.

Here are some few shot examples:

User: Hi, I am looking for a restaurant in San Francisco.
Assistant: Sure, I can help with that. Any particular cuisine you're interested in?
Output: {"memories": []}

User: Hi, my name is John. I am a software engineer.
Assistant: Nice to meet you, John! My name is Alex and I admire software engineering. How can I help?
Output: {"memories": [{"source": "assistant_message", "content": "Admires software engineering", "type": "preference"}, {"source": "assistant_message", "content": "Name is Alex", "type": "personal_info"}]}

User: Me favourite movies are Inception and Interstellar. What are yours?
Assistant: Great choices! Mine are The Dark Knight and The Shawshank Redemption.
Output: {"memories": [{"source": "assistant_message", "content": "Favourite movies are Dark Knight and Shawshank Redemption", "type": "preference"}]}

Return the facts and preferences in JSON format with a key "memories" and a list of objects, each with "source", "content", and "type".
- "source" must be "assistant_message" (you are only extracting from assistant messages).
- "type" examples: preference, personal_info, capability, personality, context.

Remember:
- Today's date is %s.
- If you do not find anything relevant, return {"memories": []}.
- Create the facts based on the assistant messages only. Do not pick anything from the user or system messages.
- Detect the language of the assistant input and record the facts in the same language.

Following is the conversation. Extract relevant facts and preferences about the assistant from ASSISTANT messages only, and return them in the JSON format above.`, today)
}

// promptCandidate is the wire shape of one candidate in the reconciler prompt.
type promptCandidate struct {
	CandidateID      string           `json:"candidate_id"`
	CandidateMemory  promptMemory     `json:"candidate_memory"`
	ExistingMemories []vector.Payload `json:"existing_memories"`
}

type promptMemory struct {
	Content string `json:"content"`
	Type    string `json:"type"`
}

// reconcilerPrompt renders the operation-decision prompt for a candidate batch.
func reconcilerPrompt(candidates []Candidate) (string, error) {
	formatted := make([]promptCandidate, len(candidates))
	for i, cand := range candidates {
		neighbors := cand.Neighbors
		if neighbors == nil {
			neighbors = []vector.Payload{}
		}
		formatted[i] = promptCandidate{
			CandidateID: cand.ID,
			CandidateMemory: promptMemory{
				Content: cand.Memory.Content,
				Type:    cand.Memory.Type,
			},
			ExistingMemories: neighbors,
		}
	}

	inputData, err := json.MarshalIndent(formatted, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal candidates: %w", err)
	}

	return fmt.Sprintf(`You are a memory management engine for a long-term AI assistant.

Your task is to decide what operation should be performed for each candidate memory.

For each candidate, choose exactly one operation:
- ADD: New distinct fact that doesn't overlap with existing memories
- UPDATE: Same fact as existing memory but more specific, recent, or accurate
- DELETE: Contradicts an existing memory that should be removed
- NOOP: Semantically equivalent to existing memory or adds no new information

RULES:
- Choose UPDATE over ADD when facts describe the same real-world attribute
- Choose NOOP over ADD when information is redundant
- Choose DELETE only when there is a clear contradiction
- If multiple existing memories match, select the BEST target
- If no existing memory is relevant, choose ADD

---

INPUT DATA:

%s

---

REQUIRED OUTPUT FORMAT (JSON only, no explanations):

{
  "operations": [
    {
      "candidate_id": "temp_0",
      "operation": "ADD | UPDATE | DELETE | NOOP",
      "target_memory_id": "string or null",
      "confidence": 0.95
    }
  ]
}

IMPORTANT:
- Return ONLY valid JSON
- Include one operation per candidate
- target_memory_id is required for UPDATE/DELETE, null for ADD/NOOP
- confidence should be between 0.0 and 1.0

---

EXAMPLES:

Example 1 - UPDATE:
Candidate: "User lives in Bangalore"
Existing: [{"memory_id": "m2", "content": "User lives in Delhi"}]
Output: {"candidate_id": "temp_0", "operation": "UPDATE", "target_memory_id": "m2", "confidence": 0.93}

Example 2 - NOOP:
Candidate: "User follows a vegetarian diet"
Existing: [{"memory_id": "m1", "content": "User is vegetarian"}]
Output: {"candidate_id": "temp_0", "operation": "NOOP", "target_memory_id": null, "confidence": 0.88}

Example 3 - ADD:
Candidate: "User is lactose intolerant"
Existing: [{"memory_id": "m1", "content": "User is vegetarian"}]
Output: {"candidate_id": "temp_0", "operation": "ADD", "target_memory_id": null, "confidence": 0.91}

Example 4 - DELETE:
Candidate: "User eats chicken regularly"
Existing: [{"memory_id": "m1", "content": "User is vegetarian"}]
Output: {"candidate_id": "temp_0", "operation": "DELETE", "target_memory_id": "m1", "confidence": 0.95}`, string(inputData)), nil
}

// stripCodeFences removes a leading and trailing markdown code fence so that
// fenced LLM output still parses as JSON. Fences inside the body are left
// alone.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	lines := strings.Split(s, "\n")
	if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[0]), "```") {
		lines = lines[1:]
	}
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}
