package tools

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ServerConfig describes one MCP tool server launched as a subprocess.
type ServerConfig struct {
	Name    string
	Command string
	Args    []string
}

// ParseServerConfig parses an "name=command arg1 arg2" entry.
func ParseServerConfig(entry string) (ServerConfig, error) {
	name, cmdline, ok := strings.Cut(strings.TrimSpace(entry), "=")
	if !ok || name == "" {
		return ServerConfig{}, fmt.Errorf("malformed tool server entry: %q", entry)
	}
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return ServerConfig{}, fmt.Errorf("tool server %s has no command", name)
	}
	return ServerConfig{Name: name, Command: fields[0], Args: fields[1:]}, nil
}

// Registry holds MCP client sessions keyed by server name and exposes
// synchronous tool invocation over them.
type Registry struct {
	client   *mcp.Client
	mu       sync.RWMutex
	sessions map[string]*mcp.ClientSession
}

func NewRegistry() *Registry {
	return &Registry{
		client: mcp.NewClient(&mcp.Implementation{
			Name:    "chat-relay",
			Version: "1.0.0",
		}, nil),
		sessions: make(map[string]*mcp.ClientSession),
	}
}

// Connect launches the configured servers over stdio and keeps their
// sessions. A server that fails to start is logged and skipped.
func (r *Registry) Connect(ctx context.Context, servers []ServerConfig) {
	for _, sc := range servers {
		log.Printf("🔗 Connecting to tool server %s via stdio", sc.Name)

		cmd := exec.CommandContext(ctx, sc.Command, sc.Args...)
		cmd.Env = os.Environ()
		transport := mcp.NewCommandTransport(cmd)

		session, err := r.client.Connect(ctx, transport)
		if err != nil {
			log.Printf("❌ failed to connect to tool server %s: %v", sc.Name, err)
			continue
		}

		r.mu.Lock()
		r.sessions[sc.Name] = session
		r.mu.Unlock()
		log.Printf("✅ Connected to tool server %s", sc.Name)
	}
}

// CallTool invokes one tool on one server and returns the concatenated
// text content of the result.
func (r *Registry) CallTool(ctx context.Context, server, tool string, args map[string]any) (string, error) {
	r.mu.RLock()
	session, ok := r.sessions[server]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unknown tool server: %s", server)
	}

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      tool,
		Arguments: args,
	})
	if err != nil {
		return "", fmt.Errorf("tool call %s/%s: %w", server, tool, err)
	}
	if result.IsError {
		return "", fmt.Errorf("tool %s/%s returned error", server, tool)
	}

	var text string
	for _, content := range result.Content {
		if tc, ok := content.(*mcp.TextContent); ok {
			text += tc.Text
		}
	}
	return text, nil
}

func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for name, session := range r.sessions {
		if err := session.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.sessions, name)
	}
	return firstErr
}
