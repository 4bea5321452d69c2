package simplify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperifyio/teisimplify/internal/backend"
	"github.com/hyperifyio/teisimplify/internal/cache"
)

const sampleReply = `{
  "original": "Deep learning models are large.",
  "simplified": "Big computer models learn.",
  "baseline": "Models are big.",
  "keywords": {"Full Text": ["models", "learning"]},
  "trace": {"sections": "The text was not split into sections.", "chunks": "The text was split into 1 chunks."},
  "metrics": {"readability": 71.5, "complexity": 3.2, "frequencyScore": 88, "bert": 91.2, "berts": 0.87}
}`

func TestHTTPProvider_Simplify(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/simplify", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Deep learning models are large.", req.Text)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, sampleReply)
	}))
	defer srv.Close()

	p := &HTTPProvider{BaseURL: srv.URL + "/", Client: &backend.Client{MaxAttempts: 1}, Cache: cache.NewMemory(0)}
	resp, err := p.Simplify(context.Background(), "Deep learning models are large.")
	require.NoError(t, err)
	assert.Equal(t, "Big computer models learn.", resp.Simplified)
	assert.Equal(t, []string{"models", "learning"}, resp.Keywords["Full Text"])
	assert.InDelta(t, 0.87, resp.Metrics.Berts, 1e-9)
	assert.InDelta(t, 88, resp.Metrics.FrequencyScore, 1e-9)
	assert.Contains(t, string(resp.Trace), "chunks")

	_, err = p.Simplify(context.Background(), "Deep learning models are large.")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "second call should be served from cache")
}

func TestHTTPProvider_ErrorBodyIsSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error": "Missing 'text' in request"}`)
	}))
	defer srv.Close()

	p := &HTTPProvider{BaseURL: srv.URL}
	_, err := p.Simplify(context.Background(), "text")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSimplifyFailed)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "Missing 'text' in request")
}

func TestHTTPProvider_Failures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>not json</html>")
	}))
	defer srv.Close()

	_, err := (&HTTPProvider{BaseURL: srv.URL}).Simplify(context.Background(), "x")
	assert.ErrorIs(t, err, ErrSimplifyFailed)

	_, err = (&HTTPProvider{}).Simplify(context.Background(), "x")
	assert.ErrorIs(t, err, ErrSimplifyFailed)

	_, err = (&HTTPProvider{BaseURL: "http://127.0.0.1:1"}).Simplify(context.Background(), "x")
	assert.ErrorIs(t, err, ErrSimplifyFailed)

	_, err = (&HTTPProvider{BaseURL: srv.URL}).Simplify(context.Background(), "  \n ")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

type stubLLM struct {
	calls   int
	content string
	err     error
	last    openai.ChatCompletionRequest
}

func (s *stubLLM) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.calls++
	s.last = req
	if s.err != nil {
		return openai.ChatCompletionResponse{}, s.err
	}
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: s.content}}}}, nil
}

func TestLLMProvider_Simplify(t *testing.T) {
	stub := &stubLLM{content: "```json\n{\"simplified\": \" Models learn. \", \"keywords\": {\"Intro\": [\"models\"]}}\n```"}
	p := &LLMProvider{Client: stub, Model: "test-model", Focus: []string{"models", "data"}, Cache: cache.NewMemory(0)}
	resp, err := p.Simplify(context.Background(), "Neural models learn from data.")
	require.NoError(t, err)
	assert.Equal(t, "Models learn.", resp.Simplified)
	assert.Equal(t, "Neural models learn from data.", resp.Original)
	assert.Equal(t, map[string][]string{"Intro": {"models"}}, resp.Keywords)
	assert.Contains(t, string(resp.Trace), "test-model")
	assert.Zero(t, resp.Metrics)

	require.Len(t, stub.last.Messages, 2)
	assert.Equal(t, "Simplify and summarize: Neural models learn from data.\nFocus on: models, data", stub.last.Messages[1].Content)
	require.NotNil(t, stub.last.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, stub.last.ResponseFormat.Type)

	_, err = p.Simplify(context.Background(), "Neural models learn from data.")
	require.NoError(t, err)
	assert.Equal(t, 1, stub.calls)
}

func TestLLMProvider_TruncatesToContext(t *testing.T) {
	stub := &stubLLM{content: `{"simplified": "Short.", "keywords": {}}`}
	p := &LLMProvider{Client: stub, Model: "gpt-oss-20b", MaxOutputTokens: 1000}
	para := strings.Repeat("word ", 200)
	text := strings.TrimSpace(strings.Repeat(para+"\n\n", 20))
	resp, err := p.Simplify(context.Background(), text)
	require.NoError(t, err)
	assert.Equal(t, text, resp.Original)
	assert.Contains(t, string(resp.Trace), `"truncated":true`)
	assert.Equal(t, 1000, stub.last.MaxTokens)
	sent := stub.last.Messages[1].Content
	assert.Less(t, len(sent), len(text))
	assert.True(t, strings.HasSuffix(strings.SplitN(sent, "\nFocus on:", 2)[0], "word"))

	p = &LLMProvider{Client: stub, Model: "gpt-oss-20b", MaxOutputTokens: 8000}
	_, err = p.Simplify(context.Background(), text)
	assert.ErrorIs(t, err, ErrSimplifyFailed)
}

func TestLLMProvider_Failures(t *testing.T) {
	p := &LLMProvider{Client: &stubLLM{err: errors.New("boom")}, Model: "m"}
	_, err := p.Simplify(context.Background(), "x")
	assert.ErrorIs(t, err, ErrSimplifyFailed)

	p = &LLMProvider{Client: &stubLLM{content: "plain prose"}, Model: "m"}
	_, err = p.Simplify(context.Background(), "x")
	assert.ErrorIs(t, err, ErrSimplifyFailed)

	p = &LLMProvider{Client: &stubLLM{content: `{"simplified": "  "}`}, Model: "m"}
	_, err = p.Simplify(context.Background(), "x")
	assert.ErrorIs(t, err, ErrSimplifyFailed)

	_, err = (&LLMProvider{}).Simplify(context.Background(), "x")
	assert.ErrorIs(t, err, ErrSimplifyFailed)
}

func TestStripFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFence(` {"a":1} `))
}
