package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lumehq/recall/internal/llm"
	"github.com/lumehq/recall/internal/policy"
)

// extractionSystemPrompt constrains the assisted pass to the same contract
// the rule table enforces. The post-filter still runs on everything it
// returns.
const extractionSystemPrompt = `You are a fact extraction component of a personal memory system. Extract durable facts about the speaker from the text.

RULES:
1. Extract ONLY explicitly stated facts about the speaker - never infer
2. NEVER extract passwords, secrets, health conditions, political or religious views, or financial account data - omit them entirely
3. Use lowercase values and short lowercase keys ("wohnort", "beruf", "alter", "name", "mag:<thing>", "aufgabe:<thing>")
4. confidence 0.0-1.0 reflects how clearly the fact is stated
5. Return ONLY the JSON object, no additional text

TYPES:
- preference: likes/dislikes ("mag:sushi")
- profile_fact: residence, occupation, age, name
- contact: addresses, reachability
- task_hint: things the speaker wants to be reminded of

JSON SCHEMA:
{"candidates": [{"type": "profile_fact", "key": "wohnort", "value": "berlin", "confidence": 0.9}]}

If nothing is worth remembering, return {"candidates": []}.`

// LLMExtractor is the assisted stage-one extractor backed by an
// OpenAI-compatible chat endpoint.
type LLMExtractor struct {
	client *llm.Client
}

// NewLLMExtractor wraps an llm.Client as an Assisted extractor.
func NewLLMExtractor(client *llm.Client) *LLMExtractor {
	return &LLMExtractor{client: client}
}

type assistedResponse struct {
	Candidates []struct {
		Type       string  `json:"type"`
		Key        string  `json:"key"`
		Value      string  `json:"value"`
		Confidence float64 `json:"confidence"`
	} `json:"candidates"`
}

// Extract sends the text to the backend and parses its JSON contract.
// Any failure (backend unavailable, timeout, malformed output) is
// returned as an error; the pipeline then falls back to the rule table.
func (e *LLMExtractor) Extract(ctx context.Context, text string) ([]Candidate, error) {
	content, err := e.client.Complete(ctx, extractionSystemPrompt, text)
	if err != nil {
		return nil, fmt.Errorf("assisted extraction call: %w", err)
	}

	var parsed assistedResponse
	if err := json.Unmarshal([]byte(stripFences(content)), &parsed); err != nil {
		return nil, fmt.Errorf("parsing assisted extraction output: %w", err)
	}

	out := make([]Candidate, 0, len(parsed.Candidates))
	for _, c := range parsed.Candidates {
		out = append(out, Candidate{
			Type:       policy.MemoryType(strings.TrimSpace(c.Type)),
			Key:        c.Key,
			Value:      strings.ToLower(c.Value),
			Confidence: c.Confidence,
			Source:     "llm",
		})
	}
	return out, nil
}

// stripFences removes a surrounding markdown code fence if the model
// wrapped its JSON in one.
func stripFences(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```json")
	t = strings.TrimPrefix(t, "```")
	t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	return strings.TrimSpace(t)
}
