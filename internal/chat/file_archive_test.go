package chat

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func newTestArchive(t *testing.T) (*FileArchive, string) {
	t.Helper()
	p := filepath.Join(t.TempDir(), "chats.jsonl")
	a, err := NewFileArchive(p)
	if err != nil {
		t.Fatalf("init archive: %v", err)
	}
	return a, p
}

func TestFileArchiveLatestSnapshotWins(t *testing.T) {
	a, _ := newTestArchive(t)
	ctx := context.Background()

	c := NewChat("aa0001")
	c.AppendMessage(ChatMessage{Role: RoleUser, Content: "v1"})
	if err := a.Put(ctx, testNS, c); err != nil {
		t.Fatalf("put v1: %v", err)
	}
	c.AppendMessage(ChatMessage{Role: RoleAssistant, Content: "v2"})
	if err := a.Put(ctx, testNS, c); err != nil {
		t.Fatalf("put v2: %v", err)
	}

	chats, err := a.List(ctx, testNS)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(chats) != 1 {
		t.Fatalf("want 1 chat, got %d", len(chats))
	}
	if len(chats[0].Messages) != 2 {
		t.Fatalf("latest snapshot must win, got %d messages", len(chats[0].Messages))
	}
}

func TestFileArchiveTombstone(t *testing.T) {
	a, _ := newTestArchive(t)
	ctx := context.Background()

	c := NewChat("bb0001")
	c.AppendMessage(ChatMessage{Role: RoleUser, Content: "doomed"})
	if err := a.Put(ctx, testNS, c); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := a.Delete(ctx, testNS, "bb0001"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	chats, err := a.List(ctx, testNS)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(chats) != 0 {
		t.Fatalf("tombstoned chat still listed: %+v", chats)
	}
}

func TestFileArchiveNamespaces(t *testing.T) {
	a, _ := newTestArchive(t)
	ctx := context.Background()

	ca := NewChat("ns0001")
	if err := a.Put(ctx, "alice", ca); err != nil {
		t.Fatalf("put alice: %v", err)
	}
	cb := NewChat("ns0002")
	if err := a.Put(ctx, "bob", cb); err != nil {
		t.Fatalf("put bob: %v", err)
	}

	chats, err := a.List(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(chats) != 1 || chats[0].ID != "ns0001" {
		t.Fatalf("namespace filter broken: %+v", chats)
	}
}

func TestFileArchiveCompact(t *testing.T) {
	a, p := newTestArchive(t)
	ctx := context.Background()

	c := NewChat("cc0001")
	for i := 0; i < 10; i++ {
		c.AppendMessage(ChatMessage{Role: RoleUser, Content: "turn"})
		if err := a.Put(ctx, testNS, c); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}
	dead := NewChat("cc0002")
	if err := a.Put(ctx, testNS, dead); err != nil {
		t.Fatalf("put dead: %v", err)
	}
	if err := a.Delete(ctx, testNS, "cc0002"); err != nil {
		t.Fatalf("delete dead: %v", err)
	}

	before, err := os.Stat(p)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if err := a.Compact(); err != nil {
		t.Fatalf("compact: %v", err)
	}
	after, err := os.Stat(p)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if after.Size() >= before.Size() {
		t.Fatalf("compact did not shrink file: %d -> %d", before.Size(), after.Size())
	}

	chats, err := a.List(ctx, testNS)
	if err != nil {
		t.Fatalf("list after compact: %v", err)
	}
	if len(chats) != 1 || len(chats[0].Messages) != 10 {
		t.Fatalf("compact lost data: %+v", chats)
	}
}
