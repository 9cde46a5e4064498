// Package evaluation runs the LOCOMO long-conversation benchmark against a
// memory client: ingest every conversation per speaker, answer the QA set
// from retrieved memories, then grade the answers with an LLM judge.
package evaluation

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Chat is a single utterance inside a LOCOMO session.
type Chat struct {
	// Speaker is the name of the person talking.
	Speaker string `json:"speaker"`

	// Text is what was said.
	Text string `json:"text"`
}

// Session is one numbered sitting of a LOCOMO conversation.
type Session struct {
	// Key is the raw dataset key, e.g. "session_3".
	Key string

	// DateTime is the recorded wall-clock time of the session, verbatim
	// from the dataset.
	DateTime string

	// Chats are the utterances in order.
	Chats []Chat
}

// Conversation is a two-speaker LOCOMO conversation across sessions.
//
// The dataset stores sessions under dynamic keys ("session_1",
// "session_1_date_time", ...), so the type carries its own JSON decoder.
type Conversation struct {
	SpeakerA string
	SpeakerB string

	// Sessions are ordered by their session number.
	Sessions []Session
}

// UnmarshalJSON decodes the dynamic session_N layout of the dataset.
func (c *Conversation) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, found := raw["speaker_a"]; found {
		if err := json.Unmarshal(v, &c.SpeakerA); err != nil {
			return fmt.Errorf("speaker_a: %w", err)
		}
	}
	if v, found := raw["speaker_b"]; found {
		if err := json.Unmarshal(v, &c.SpeakerB); err != nil {
			return fmt.Errorf("speaker_b: %w", err)
		}
	}

	for key, value := range raw {
		if key == "speaker_a" || key == "speaker_b" || strings.Contains(key, "date") || strings.Contains(key, "timestamp") {
			continue
		}
		var chats []Chat
		if err := json.Unmarshal(value, &chats); err != nil {
			return fmt.Errorf("session %s: %w", key, err)
		}
		session := Session{Key: key, Chats: chats}
		if dt, found := raw[key+"_date_time"]; found {
			_ = json.Unmarshal(dt, &session.DateTime)
		}
		c.Sessions = append(c.Sessions, session)
	}

	// Map iteration is unordered; restore the session numbering.
	sort.Slice(c.Sessions, func(i, j int) bool {
		ni, nj := sessionNumber(c.Sessions[i].Key), sessionNumber(c.Sessions[j].Key)
		if ni != nj {
			return ni < nj
		}
		return c.Sessions[i].Key < c.Sessions[j].Key
	})
	return nil
}

// sessionNumber extracts N from a "session_N" key; unnumbered keys sort
// first.
func sessionNumber(key string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(key, "session_"))
	if err != nil {
		return 0
	}
	return n
}

// QA is one question of a LOCOMO item with its golden answer.
//
// Answer and Evidence keep the dataset's loose typing (answers may be
// numbers, evidence lists vary in shape); both round-trip into the result
// report untouched.
type QA struct {
	Question          string      `json:"question"`
	Answer            interface{} `json:"answer,omitempty"`
	Category          int         `json:"category"`
	Evidence          interface{} `json:"evidence,omitempty"`
	AdversarialAnswer string      `json:"adversarial_answer,omitempty"`
}

// AnswerText renders the golden answer as a plain string.
func (q QA) AnswerText() string {
	return answerText(q.Answer)
}

// answerText renders a loosely typed dataset answer as a plain string.
func answerText(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, isString := v.(string); isString {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// Item is one LOCOMO record: a conversation and its question set.
type Item struct {
	Conversation Conversation `json:"conversation"`
	QA           []QA         `json:"qa"`
}

// LoadDataset reads a LOCOMO JSON file (a list of items).
func LoadDataset(path string) ([]Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadDataset: %w", err)
	}
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("LoadDataset: %w", err)
	}
	return items, nil
}

// SpeakerUserID builds the per-conversation user id for a speaker, e.g.
// "Caroline_0". The conversation index keeps different conversations with
// the same speaker name isolated.
func SpeakerUserID(speaker string, idx int) string {
	return fmt.Sprintf("%s_%d", speaker, idx)
}

// speakerName strips the conversation index back off a user id.
func speakerName(userID string) string {
	return strings.SplitN(userID, "_", 2)[0]
}
