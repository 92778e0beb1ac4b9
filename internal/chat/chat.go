package chat

import (
	"strings"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"

	BlockTypeText = "text"
)

// ContentBlock is one typed unit of structured message content.
// Only text blocks participate in search.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type ChatMessage struct {
	Role          string         `json:"role"`
	Content       string         `json:"content,omitempty"`
	Blocks        []ContentBlock `json:"blocks,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	UnixTimestamp int64          `json:"unix_timestamp"`
	Model         string         `json:"model,omitempty"`
	Provider      string         `json:"provider,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// SearchableText returns the plain content plus the text of all
// text-typed blocks. Non-text blocks are ignored.
func (m ChatMessage) SearchableText() string {
	var b strings.Builder
	b.WriteString(m.Content)
	for _, blk := range m.Blocks {
		if blk.Type == BlockTypeText {
			b.WriteString(blk.Text)
		}
	}
	return b.String()
}

// Chat is one conversation. Messages are append-only in temporal order;
// only the in-flight assistant reply at the tail may still grow.
type Chat struct {
	ID         string        `json:"id"`
	Messages   []ChatMessage `json:"messages"`
	CreateTime time.Time     `json:"create_time"`
	UpdateTime time.Time     `json:"update_time"`
}

func NewChat(id string) Chat {
	now := time.Now().UTC()
	return Chat{ID: id, Messages: []ChatMessage{}, CreateTime: now, UpdateTime: now}
}

// AppendMessage stamps timestamps and bumps update_time.
func (c *Chat) AppendMessage(msg ChatMessage) {
	now := time.Now().UTC()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}
	if msg.UnixTimestamp == 0 {
		msg.UnixTimestamp = msg.Timestamp.Unix()
	}
	c.Messages = append(c.Messages, msg)
	if msg.Timestamp.After(c.UpdateTime) {
		c.UpdateTime = msg.Timestamp
	}
}

// matches reports whether any message contains term as a case-folded
// substring of its searchable text.
func (c Chat) matches(term string) bool {
	folded := strings.ToLower(term)
	for _, m := range c.Messages {
		if strings.Contains(strings.ToLower(m.SearchableText()), folded) {
			return true
		}
	}
	return false
}

type ListOptions struct {
	Search string
	Page   int
	Limit  int
}

type ListResult struct {
	Chats []Chat `json:"chats"`
	Total int    `json:"total"`
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
}
