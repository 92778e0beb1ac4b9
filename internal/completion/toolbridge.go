package completion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chat-relay/internal/chat"
)

var (
	ErrMissingServer = errors.New("tool server is required")
	ErrMissingTool   = errors.New("tool name is required")
)

type ToolCaller interface {
	CallTool(ctx context.Context, server, tool string, args map[string]any) (string, error)
}

type ToolRequest struct {
	Server string
	Tool   string
	Args   map[string]any
}

// ToolBridge wraps a confirmed tool invocation's result as a synthetic
// user message for the same SSE delivery path the orchestrator uses.
// It persists nothing itself.
type ToolBridge struct {
	tools ToolCaller
}

func NewToolBridge(tools ToolCaller) *ToolBridge {
	return &ToolBridge{tools: tools}
}

func (b *ToolBridge) Deliver(ctx context.Context, req ToolRequest) (chat.ChatMessage, error) {
	if req.Server == "" {
		return chat.ChatMessage{}, ErrMissingServer
	}
	if req.Tool == "" {
		return chat.ChatMessage{}, ErrMissingTool
	}

	result, err := b.tools.CallTool(ctx, req.Server, req.Tool, req.Args)
	if err != nil {
		return chat.ChatMessage{}, fmt.Errorf("tool invocation: %w", err)
	}

	now := time.Now().UTC()
	msg := chat.ChatMessage{
		Role:          chat.RoleUser,
		Content:       result,
		Timestamp:     now,
		UnixTimestamp: now.Unix(),
		Metadata: map[string]any{
			"tool":      req.Tool,
			"server":    req.Server,
			"arguments": req.Args,
		},
	}
	return msg, nil
}
