package llm

import (
	"context"
	"fmt"
	"io"

	"github.com/Morwran/yagpt"
)

type YandexClient struct {
	ya       yagpt.YaGPTFace
	iamToken string
}

func NewYandex(oauthToken, folderID string) (*YandexClient, error) {
	// Create IAM token from OAuth token
	iam, err := yagpt.NewYaIam(oauthToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init yandex iam: %w", err)
	}
	resp, err := iam.Create()
	if err != nil {
		return nil, fmt.Errorf("failed to create iam token: %w", err)
	}

	// Create YaGPT client for a folder
	ya, err := yagpt.NewYagpt(folderID)
	if err != nil {
		return nil, fmt.Errorf("failed to init yagpt: %w", err)
	}

	return &YandexClient{
		ya:       ya,
		iamToken: resp.IamToken,
	}, nil
}

// StreamCompletion runs the one-shot Yandex completion and surfaces it
// as a single-delta stream, since the upstream API does not stream.
func (c *YandexClient) StreamCompletion(ctx context.Context, messages []Message) (Stream, error) {
	var yaMsgs []yagpt.Message
	for _, m := range messages {
		yaMsgs = append(yaMsgs, yagpt.Message{Role: m.Role, Content: m.Content})
	}

	resp, err := c.ya.CompletionWithCtx(ctx, c.iamToken, yaMsgs)
	if err != nil {
		return nil, fmt.Errorf("yagpt completion failed: %w", err)
	}
	if resp == nil || len(resp.Alternatives) == 0 {
		return nil, fmt.Errorf("yagpt returned empty response")
	}
	d := Delta{
		Content:  resp.Alternatives[0].Message.Content,
		Model:    yagpt.YaModelLite,
		Provider: ProviderYandex,
	}
	return &yandexStream{next: &d}, nil
}

type yandexStream struct {
	next *Delta
}

func (s *yandexStream) Recv() (Delta, error) {
	if s.next == nil {
		return Delta{}, io.EOF
	}
	d := *s.next
	s.next = nil
	return d, nil
}

func (s *yandexStream) Close() error { return nil }
