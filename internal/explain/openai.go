package explain

import (
	"context"
	"errors"

	"github.com/sashabaranov/go-openai"

	"github.com/rendis/flowlens/pkg/schema"
)

// Response is the outcome of a completion.
type Response struct {
	Text             string `json:"text"`
	Model            string `json:"model"`
	FinishReason     string `json:"finishReason,omitempty"`
	Truncated        bool   `json:"truncated,omitempty"`
	PromptTokens     int    `json:"promptTokens,omitempty"`
	CompletionTokens int    `json:"completionTokens,omitempty"`
}

// Completer sends a Request to a language model.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// OpenAIClient completes requests through the chat completions API.
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient creates a client. An empty baseURL uses the OpenAI API.
func NewOpenAIClient(apiKey, baseURL string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "explain: OPENAI_API_KEY is not set")
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(config)}, nil
}

// chatRequest maps a Request onto the chat completions payload.
func chatRequest(req Request) openai.ChatCompletionRequest {
	out := openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.UserMessage()},
		},
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}
	if req.Recent {
		out.MaxCompletionTokens = req.MaxTokens
	} else {
		out.MaxTokens = req.MaxTokens
	}
	return out
}

// Complete sends req. A response cut by the token limit is returned with
// TruncatedSuffix appended.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (*Response, error) {
	resp, err := c.client.CreateChatCompletion(ctx, chatRequest(req))
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, schema.NewErrorf(schema.ErrCodeExplain, "%s (%s)", apiErr.Message, apiErr.Type).
				WithCause(err).
				WithDetails(map[string]any{"status_code": apiErr.HTTPStatusCode, "model": req.Model})
		}
		return nil, schema.NewErrorf(schema.ErrCodeExplain, "completion failed: %v", err).WithCause(err)
	}
	if len(resp.Choices) == 0 {
		return nil, schema.NewError(schema.ErrCodeExplain, "no response choices returned")
	}

	choice := resp.Choices[0]
	out := &Response{
		Text:             choice.Message.Content,
		Model:            resp.Model,
		FinishReason:     string(choice.FinishReason),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}
	if out.Model == "" {
		out.Model = req.Model
	}
	if choice.FinishReason == openai.FinishReasonLength {
		out.Truncated = true
		out.Text += TruncatedSuffix
	}
	return out, nil
}
