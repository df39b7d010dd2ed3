package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// DefaultRouterURL is the OpenAI-compatible Hugging Face inference router.
const DefaultRouterURL = "https://router.huggingface.co/v1"

// DefaultModel is used when neither the request nor the config names a model.
const DefaultModel = "meta-llama/Llama-3.1-8B-Instruct"

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	llm   *openai.LLM
	model string
}

// NewOpenAIClient creates a client for baseURL authenticated with token.
func NewOpenAIClient(baseURL, token, model string) (*OpenAIClient, error) {
	if token == "" {
		return nil, errors.New("openai: token is required")
	}
	if baseURL == "" {
		baseURL = DefaultRouterURL
	}
	if model == "" {
		model = DefaultModel
	}
	cli, err := openai.New(
		openai.WithBaseURL(baseURL),
		openai.WithToken(token),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("openai: creating client: %w", err)
	}
	return &OpenAIClient{llm: cli, model: model}, nil
}

// Complete sends every system message followed by the user message.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	model := c.model
	if req.Model != "" {
		model = req.Model
	}

	msgs := make([]llms.MessageContent, 0, len(req.System)+1)
	for _, s := range req.System {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, s))
	}
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, req.User))

	resp, err := c.llm.GenerateContent(ctx, msgs, llms.WithModel(model))
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return "", ErrEmptyAnswer
	}
	answer := resp.Choices[0].Content
	if strings.TrimSpace(answer) == "" {
		return "", ErrEmptyAnswer
	}
	return answer, nil
}

func classifyOpenAIError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case strings.Contains(msg, "429"), strings.Contains(msg, "rate limit"), strings.Contains(msg, "quota"):
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("openai: %w", err)
}
