package llm

import "context"

type Message struct {
	Role    string
	Content string
}

// Delta is one unit of streamed completion output. Model and Provider
// may be empty on most deltas; consumers carry forward the last values
// they saw.
type Delta struct {
	Content  string
	Model    string
	Provider string
}

// Stream yields deltas until io.EOF. Close releases the upstream
// connection and must be safe to call after an error.
type Stream interface {
	Recv() (Delta, error)
	Close() error
}

type Client interface {
	StreamCompletion(ctx context.Context, messages []Message) (Stream, error)
}
