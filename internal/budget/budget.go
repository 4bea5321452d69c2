// Package budget sizes LLM prompts against a model's context window.
package budget

import (
	"math"
	"strings"
)

// DefaultContextTokens is assumed for unknown models.
const DefaultContextTokens = 8192

// EstimateTokensFromChars converts a character count into an estimated token
// count (~4 chars per token in English, rounded up).
func EstimateTokensFromChars(charCount int) int {
	if charCount <= 0 {
		return 0
	}
	return int(math.Ceil(float64(charCount) / 4.0))
}

// EstimateTokens returns the estimated token count of a string.
func EstimateTokens(s string) int {
	return EstimateTokensFromChars(len(s))
}

// EstimatePromptTokens estimates the tokens of a system plus user message.
func EstimatePromptTokens(system, user string) int {
	return EstimateTokens(system) + EstimateTokens(user)
}

// ModelContextTokens returns an estimated maximum context window for a model
// name. Unknown models fall back to DefaultContextTokens.
func ModelContextTokens(modelName string) int {
	name := strings.ToLower(strings.TrimSpace(modelName))
	if name == "" {
		return DefaultContextTokens
	}
	if v, ok := knownModelMax[name]; ok {
		return v
	}
	for _, s := range suffixSizes {
		if strings.HasSuffix(name, s.suffix) {
			return s.tokens
		}
	}
	if strings.Contains(name, "-mini") {
		return 128_000
	}
	return DefaultContextTokens
}

// HeadroomTokens is the larger of 5% of the model context or 512 tokens,
// kept free for tokenizer and message framing overhead.
func HeadroomTokens(modelName string) int {
	dyn := int(math.Ceil(float64(ModelContextTokens(modelName)) * 0.05))
	if dyn < 512 {
		return 512
	}
	return dyn
}

// RemainingContext returns the input tokens left after reserving output
// tokens, headroom and the fixed prompt. Never negative.
func RemainingContext(modelName string, reservedForOutput, promptTokens int) int {
	if reservedForOutput < 0 {
		reservedForOutput = 0
	}
	remaining := ModelContextTokens(modelName) - HeadroomTokens(modelName) - reservedForOutput - promptTokens
	if remaining < 0 {
		return 0
	}
	return remaining
}

// FitText trims text to at most maxTokens estimated tokens. It cuts at the
// last section break ("\n\n") that fits, then the last line break, then the
// last space, and hard-cuts only when none is available. The second result
// reports whether anything was removed.
func FitText(text string, maxTokens int) (string, bool) {
	if EstimateTokens(text) <= maxTokens {
		return text, false
	}
	if maxTokens <= 0 {
		return "", text != ""
	}
	limit := maxTokens * 4
	if limit > len(text) {
		limit = len(text)
	}
	head := text[:limit]
	for _, sep := range []string{"\n\n", "\n", " "} {
		if i := strings.LastIndex(head, sep); i > 0 {
			return strings.TrimSpace(head[:i]), true
		}
	}
	for limit > 0 && !utf8Start(text[limit]) {
		limit--
	}
	return text[:limit], true
}

func utf8Start(b byte) bool { return b&0xC0 != 0x80 }

var knownModelMax = map[string]int{
	"gpt-4o":             128_000,
	"gpt-4o-mini":        128_000,
	"gpt-4-turbo":        128_000,
	"gpt-3.5-turbo":      16_384,
	"llama-3":            8_192,
	"llama-3.1":          128_000,
	"openai/gpt-oss-20b": 4_096,
	"gpt-oss-20b":        4_096,
}

var suffixSizes = []struct {
	suffix string
	tokens int
}{
	{"1m", 1_000_000},
	{"512k", 512_000},
	{"200k", 200_000},
	{"128k", 128_000},
	{"32k", 32_768},
}
