package llm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

type OpenAIClient struct {
	client          *openai.Client
	model           string
	reasoningEffort string
}

type headerTransport struct {
	rt      http.RoundTripper
	headers http.Header
}

func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone request to avoid mutating the original
	cl := req.Clone(req.Context())
	for k, vs := range t.headers {
		for _, v := range vs {
			cl.Header.Add(k, v)
		}
	}
	return t.rt.RoundTrip(cl)
}

func NewOpenAI(apiKey, baseURL, model, reasoningEffort, referrer, title string) *OpenAIClient {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	// Inject optional headers (useful for OpenRouter)
	if referrer != "" || title != "" {
		h := http.Header{}
		if referrer != "" {
			h.Set("HTTP-Referer", referrer)
		}
		if title != "" {
			h.Set("X-Title", title)
		}
		base := http.DefaultTransport
		config.HTTPClient = &http.Client{Transport: headerTransport{rt: base, headers: h}}
	}
	return &OpenAIClient{
		client:          openai.NewClientWithConfig(config),
		model:           model,
		reasoningEffort: reasoningEffort,
	}
}

func (c *OpenAIClient) StreamCompletion(ctx context.Context, messages []Message) (Stream, error) {
	var oaMsgs []openai.ChatCompletionMessage
	for _, m := range messages {
		oaMsgs = append(oaMsgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	req := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: oaMsgs,
		Stream:   true,
	}
	if c.reasoningEffort != "" {
		req.ReasoningEffort = c.reasoningEffort
	}

	s, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion stream: %w", err)
	}
	return &openaiStream{s: s, model: c.model}, nil
}

type openaiStream struct {
	s     *openai.ChatCompletionStream
	model string
}

func (s *openaiStream) Recv() (Delta, error) {
	for {
		resp, err := s.s.Recv()
		if err != nil {
			return Delta{}, err
		}
		if len(resp.Choices) == 0 {
			continue
		}
		content := resp.Choices[0].Delta.Content
		if content == "" {
			// role-only and usage chunks carry no text
			continue
		}
		model := resp.Model
		if model == "" {
			model = s.model
		}
		return Delta{Content: content, Model: model, Provider: ProviderOpenAI}, nil
	}
}

func (s *openaiStream) Close() error { return s.s.Close() }
