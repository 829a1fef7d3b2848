package newsletter

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"research-terminal/internal/errors"
	"research-terminal/internal/models"
)

const digestPrompt = `You summarise crypto and DeFi newsletters for an investor.
Group the headlines by theme and write at most six short bullet points.
Mention the publication in brackets after each point. Do not invent facts.`

// Summarizer completes a prompt with a system message.
type Summarizer interface {
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// OpenAIClient implements Summarizer using the OpenAI API.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a new OpenAI client. baseURL may be empty.
func NewOpenAIClient(apiKey, model, baseURL string) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// CompleteWithSystem sends a prompt with system message to the model.
func (c *OpenAIClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from openai")
	}
	return resp.Choices[0].Message.Content, nil
}

// Digest summarises the article headlines. A nil summarizer means no key is configured.
func Digest(ctx context.Context, s Summarizer, articles []models.Article) (string, error) {
	if s == nil {
		return "", fmt.Errorf("%w: openai api_key is required for a digest", errors.ErrNotConfigured)
	}
	if len(articles) == 0 {
		return "", errors.ErrNoData
	}

	var b strings.Builder
	for _, a := range articles {
		fmt.Fprintf(&b, "- [%s] %s", a.Source, a.Title)
		if a.Subtitle != "" {
			fmt.Fprintf(&b, ": %s", truncate(a.Subtitle, 200))
		}
		b.WriteByte('\n')
	}

	summary, err := s.CompleteWithSystem(ctx, digestPrompt, b.String())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(summary), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
