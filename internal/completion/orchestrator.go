package completion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"chat-relay/internal/bots"
	"chat-relay/internal/chat"
	"chat-relay/internal/llm"
)

var (
	ErrMissingChatID  = errors.New("chat id is required")
	ErrMissingContent = errors.New("message content is required")
	ErrMissingBotName = errors.New("bot name is required")
	ErrBotNotFound    = errors.New("bot not found")
)

// IsValidation reports whether err is a request validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrMissingChatID) ||
		errors.Is(err, ErrMissingContent) ||
		errors.Is(err, ErrMissingBotName)
}

// Frame is one SSE payload sent to the client. Field order matters for
// the wire format.
type Frame struct {
	Choices  []Choice `json:"choices"`
	Model    string   `json:"model"`
	Provider string   `json:"provider"`
}

type Choice struct {
	Delta FrameDelta `json:"delta"`
}

type FrameDelta struct {
	Content string `json:"content"`
}

// Event is one item on the orchestrator's delivery channel. Err is set
// on the final event of an aborted stream; a clean close without an Err
// event means the reply was fully generated and persisted.
type Event struct {
	Frame *Frame
	Err   error
}

type Request struct {
	ChatID  string
	Content string
	BotName string
}

type Store interface {
	GetOrCreate(ctx context.Context, namespace, id string) (chat.Chat, error)
	Save(ctx context.Context, namespace string, c chat.Chat) (chat.Chat, error)
}

type Bots interface {
	Get(name string) (bots.Config, bool)
}

type Clients interface {
	CreateClient(bot bots.Config) (llm.Client, error)
}

const eventBuffer = 16

// Orchestrator turns one user turn into a streamed, persisted
// assistant reply.
type Orchestrator struct {
	store   Store
	bots    Bots
	clients Clients
}

func NewOrchestrator(store Store, b Bots, clients Clients) *Orchestrator {
	return &Orchestrator{store: store, bots: b, clients: clients}
}

// Stream validates the request, commits the user message and starts
// draining the provider. Failures before any delta has a chance to flow
// are returned directly; from then on the returned channel carries
// frames in provider order and closes after the assistant message has
// been persisted, or after an Err event if generation failed. A failed
// generation never persists a partial reply; the user message stays.
func (o *Orchestrator) Stream(ctx context.Context, namespace string, req Request) (<-chan Event, error) {
	if req.ChatID == "" {
		return nil, ErrMissingChatID
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, ErrMissingContent
	}
	if req.BotName == "" {
		return nil, ErrMissingBotName
	}

	bot, ok := o.bots.Get(req.BotName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBotNotFound, req.BotName)
	}
	client, err := o.clients.CreateClient(bot)
	if err != nil {
		return nil, fmt.Errorf("create provider client: %w", err)
	}

	c, err := o.store.GetOrCreate(ctx, namespace, req.ChatID)
	if err != nil {
		return nil, err
	}

	// Commit the user message before asking for any model output, so
	// the input survives a failed generation.
	c.AppendMessage(chat.ChatMessage{Role: chat.RoleUser, Content: req.Content})
	c, err = o.store.Save(ctx, namespace, c)
	if err != nil {
		return nil, err
	}

	stream, err := client.StreamCompletion(ctx, toLLMMessages(c.Messages))
	if err != nil {
		return nil, fmt.Errorf("open provider stream: %w", err)
	}

	events := make(chan Event, eventBuffer)
	go o.drain(ctx, namespace, c, bot, stream, events)
	return events, nil
}

func (o *Orchestrator) drain(ctx context.Context, namespace string, c chat.Chat, bot bots.Config, stream llm.Stream, events chan<- Event) {
	defer close(events)
	defer func() {
		if err := stream.Close(); err != nil {
			log.Printf("failed to close provider stream: %v", err)
		}
	}()

	var buf strings.Builder
	model := bot.Model
	provider := bot.Provider

	for {
		d, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			select {
			case events <- Event{Err: fmt.Errorf("provider stream: %w", err)}:
			case <-ctx.Done():
			}
			return
		}

		buf.WriteString(d.Content)
		if d.Model != "" {
			model = d.Model
		}
		if d.Provider != "" {
			provider = d.Provider
		}

		frame := &Frame{
			Choices:  []Choice{{Delta: FrameDelta{Content: d.Content}}},
			Model:    model,
			Provider: provider,
		}
		select {
		case events <- Event{Frame: frame}:
		case <-ctx.Done():
			// client gone: stop pulling deltas, persist nothing
			return
		}
	}

	c.AppendMessage(chat.ChatMessage{
		Role:     chat.RoleAssistant,
		Content:  buf.String(),
		Model:    model,
		Provider: provider,
	})
	if _, err := o.store.Save(context.WithoutCancel(ctx), namespace, c); err != nil {
		select {
		case events <- Event{Err: fmt.Errorf("persist assistant message: %w", err)}:
		case <-ctx.Done():
		}
	}
}

func toLLMMessages(msgs []chat.ChatMessage) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		content := m.Content
		if content == "" && len(m.Blocks) > 0 {
			content = m.SearchableText()
		}
		out = append(out, llm.Message{Role: m.Role, Content: content})
	}
	return out
}
