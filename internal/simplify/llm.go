package simplify

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/teisimplify/internal/budget"
	"github.com/hyperifyio/teisimplify/internal/cache"
	"github.com/hyperifyio/teisimplify/internal/llm"
)

const defaultSystemPrompt = "You simplify scientific articles for non-expert readers. " +
	"Reply with a single JSON object of the form " +
	`{"simplified": string, "keywords": {section name: [keyword, ...]}}. ` +
	"Keywords must appear verbatim in the simplified text. Do not add facts."

// LLMProvider simplifies through an OpenAI-compatible chat model instead of
// the dedicated service. Metrics stay zero and Baseline stays empty.
type LLMProvider struct {
	Client llm.Client
	Model  string
	// Focus seeds the "Focus on" line of the prompt.
	Focus []string
	// SystemPrompt, when non-empty, overrides the default system message.
	SystemPrompt string
	// MaxOutputTokens is reserved for the reply when sizing the prompt.
	// Zero uses DefaultMaxOutputTokens.
	MaxOutputTokens int
	Cache           cache.Store
}

// DefaultMaxOutputTokens is the reply reservation used when none is set.
const DefaultMaxOutputTokens = 2048

type llmReply struct {
	Simplified string              `json:"simplified"`
	Keywords   map[string][]string `json:"keywords"`
}

// Prompt renders the user message sent to the model.
func Prompt(text string, focus []string) string {
	return fmt.Sprintf("Simplify and summarize: %s\nFocus on: %s", text, strings.Join(focus, ", "))
}

func (p *LLMProvider) Simplify(ctx context.Context, text string) (*Response, error) {
	if err := checkInput(text); err != nil {
		return nil, err
	}
	if p.Client == nil || strings.TrimSpace(p.Model) == "" {
		return nil, fmt.Errorf("%w: model not configured", ErrSimplifyFailed)
	}
	system := defaultSystemPrompt
	if strings.TrimSpace(p.SystemPrompt) != "" {
		system = p.SystemPrompt
	}
	reserve := p.MaxOutputTokens
	if reserve <= 0 {
		reserve = DefaultMaxOutputTokens
	}
	input, truncated := p.fit(system, text, reserve)
	if strings.TrimSpace(input) == "" {
		return nil, fmt.Errorf("%w: model %q has no room for the input", ErrSimplifyFailed, p.Model)
	}
	user := Prompt(input, p.Focus)

	// Cache by model+prompt to allow deterministic re-runs.
	key := cache.KeyFrom(p.Model, system+"\n\n"+user)
	if p.Cache != nil {
		if raw, ok, _ := p.Cache.Get(ctx, key); ok {
			var reply llmReply
			if err := json.Unmarshal(raw, &reply); err == nil && strings.TrimSpace(reply.Simplified) != "" {
				return p.response(text, reply, truncated), nil
			}
		}
	}

	req := openai.ChatCompletionRequest{
		Model: p.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		Temperature:    0.1,
		MaxTokens:      reserve,
		N:              1,
	}
	resp, err := p.Client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSimplifyFailed, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrSimplifyFailed)
	}
	content := stripFence(resp.Choices[0].Message.Content)
	var reply llmReply
	if err := json.Unmarshal([]byte(content), &reply); err != nil {
		return nil, fmt.Errorf("%w: model reply is not JSON: %v", ErrSimplifyFailed, err)
	}
	reply.Simplified = strings.TrimSpace(reply.Simplified)
	if reply.Simplified == "" {
		return nil, fmt.Errorf("%w: empty simplification", ErrSimplifyFailed)
	}
	if p.Cache != nil {
		payload, _ := json.Marshal(reply)
		if err := p.Cache.Save(ctx, key, payload); err != nil {
			log.Warn().Err(err).Msg("llm cache save failed")
		}
	}
	return p.response(text, reply, truncated), nil
}

// fit trims text so the prompt stays inside the model context window.
func (p *LLMProvider) fit(system, text string, reserve int) (string, bool) {
	fixed := budget.EstimatePromptTokens(system, Prompt("", p.Focus))
	room := budget.RemainingContext(p.Model, reserve, fixed)
	fitted, cut := budget.FitText(text, room)
	if cut {
		log.Warn().Str("model", p.Model).Int("tokens", room).
			Int("chars", len(text)).Int("kept", len(fitted)).Msg("input truncated to fit model context")
	}
	return fitted, cut
}

func (p *LLMProvider) response(text string, reply llmReply, truncated bool) *Response {
	sections := make([]string, 0, len(reply.Keywords))
	for name := range reply.Keywords {
		sections = append(sections, name)
	}
	sort.Strings(sections)
	trace, _ := json.Marshal(map[string]any{
		"provider":  "llm",
		"model":     p.Model,
		"sections":  sections,
		"truncated": truncated,
	})
	return &Response{
		Original:   text,
		Simplified: reply.Simplified,
		Keywords:   reply.Keywords,
		Trace:      trace,
	}
}

// stripFence removes a surrounding ```json fence some models add despite
// the response format.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
