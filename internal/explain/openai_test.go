package explain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowlens/pkg/schema"
)

// fakeCompletions serves /v1/chat/completions, capturing the decoded body.
func fakeCompletions(t *testing.T, status int, reply string, got *map[string]any) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		if got != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(got))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)

	c, err := NewOpenAIClient("sk-test", srv.URL+"/v1")
	require.NoError(t, err)
	return c
}

const okReply = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "model": "gpt-4o-2024-08-06",
  "choices": [{"index": 0, "message": {"role": "assistant", "content": "Routes deals."}, "finish_reason": "stop"}],
  "usage": {"prompt_tokens": 120, "completion_tokens": 8, "total_tokens": 128}
}`

func TestComplete_StandardModel(t *testing.T) {
	var body map[string]any
	c := fakeCompletions(t, http.StatusOK, okReply, &body)

	req := BuildRequest(smallReport(), Options{Model: "gpt-4o"})
	resp, err := c.Complete(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "Routes deals.", resp.Text)
	assert.Equal(t, "gpt-4o-2024-08-06", resp.Model)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.False(t, resp.Truncated)
	assert.Equal(t, 120, resp.PromptTokens)
	assert.Equal(t, 8, resp.CompletionTokens)

	assert.Equal(t, "gpt-4o", body["model"])
	assert.EqualValues(t, 2000, body["max_tokens"])
	assert.NotContains(t, body, "max_completion_tokens")
	assert.InDelta(t, 0.3, body["temperature"], 1e-6)
	assert.InDelta(t, 0.2, body["top_p"], 1e-6)

	msgs := body["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, SystemPrompt, msgs[0].(map[string]any)["content"])
	assert.Equal(t, req.UserMessage(), msgs[1].(map[string]any)["content"])
}

func TestComplete_RecentModelTruncated(t *testing.T) {
	var body map[string]any
	reply := `{"model":"gpt-5-nano","choices":[{"index":0,"message":{"role":"assistant","content":"Partial"},"finish_reason":"length"}]}`
	c := fakeCompletions(t, http.StatusOK, reply, &body)

	resp, err := c.Complete(context.Background(), BuildRequest(smallReport(), Options{}))
	require.NoError(t, err)

	assert.Equal(t, "Partial"+TruncatedSuffix, resp.Text)
	assert.True(t, resp.Truncated)
	assert.EqualValues(t, 5000, body["max_completion_tokens"])
	assert.NotContains(t, body, "max_tokens")
	assert.EqualValues(t, 1, body["temperature"])
	assert.NotContains(t, body, "top_p")
}

func TestComplete_APIError(t *testing.T) {
	reply := `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`
	c := fakeCompletions(t, http.StatusUnauthorized, reply, nil)

	_, err := c.Complete(context.Background(), BuildRequest(smallReport(), Options{Model: "gpt-4o"}))
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeExplain))
	assert.Contains(t, err.Error(), "Incorrect API key provided (invalid_request_error)")
}

func TestComplete_NoChoices(t *testing.T) {
	c := fakeCompletions(t, http.StatusOK, `{"model":"gpt-4o","choices":[]}`, nil)

	_, err := c.Complete(context.Background(), BuildRequest(smallReport(), Options{Model: "gpt-4o"}))
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeExplain))
}

func TestNewOpenAIClient_RequiresKey(t *testing.T) {
	_, err := NewOpenAIClient("", "")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

// stubCompleter records the request it receives.
type stubCompleter struct {
	got Request
}

func (s *stubCompleter) Complete(_ context.Context, req Request) (*Response, error) {
	s.got = req
	return &Response{Text: "ok", Model: req.Model}, nil
}

func TestCompleterInterface(t *testing.T) {
	var c Completer = &stubCompleter{}
	resp, err := c.Complete(context.Background(), Request{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, "m", c.(*stubCompleter).got.Model)
}
