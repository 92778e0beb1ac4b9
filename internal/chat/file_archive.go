package chat

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type archiveRecord struct {
	Namespace  string    `json:"namespace"`
	Chat       Chat      `json:"chat"`
	Deleted    bool      `json:"deleted,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// FileArchive is a JSONL log of chat snapshots. Every save appends a
// full snapshot; deletes append a tombstone. Reads scan the whole file
// and keep the latest record per id. Compact rewrites the file with
// only the surviving snapshots.
type FileArchive struct {
	path string
	mu   sync.Mutex
}

func NewFileArchive(path string) (*FileArchive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to ensure archive dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to init archive file: %w", err)
	}
	_ = f.Close()
	return &FileArchive{path: path}, nil
}

func (a *FileArchive) Put(_ context.Context, namespace string, c Chat) error {
	return a.append(archiveRecord{Namespace: namespace, Chat: c, RecordedAt: time.Now().UTC()})
}

func (a *FileArchive) Delete(_ context.Context, namespace, id string) error {
	return a.append(archiveRecord{Namespace: namespace, Chat: Chat{ID: id}, Deleted: true, RecordedAt: time.Now().UTC()})
}

func (a *FileArchive) List(_ context.Context, namespace string) ([]Chat, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	latest, order, err := a.scanUnlocked()
	if err != nil {
		return nil, err
	}
	var chats []Chat
	for _, key := range order {
		rec := latest[key]
		if rec.Namespace != namespace || rec.Deleted {
			continue
		}
		chats = append(chats, rec.Chat)
	}
	return chats, nil
}

// Compact rewrites the log keeping only the latest non-deleted snapshot
// of every chat.
func (a *FileArchive) Compact() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	latest, order, err := a.scanUnlocked()
	if err != nil {
		return err
	}
	f, err := os.OpenFile(a.path, os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open rewrite: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("⚠️ failed to close archive file: %v", err)
		}
	}()
	enc := json.NewEncoder(f)
	for _, key := range order {
		rec := latest[key]
		if rec.Deleted {
			continue
		}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encode rewrite: %w", err)
		}
	}
	return nil
}

func (a *FileArchive) append(rec archiveRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	f, err := os.OpenFile(a.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open append: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("⚠️ failed to close archive file: %v", err)
		}
	}()
	if err := json.NewEncoder(f).Encode(rec); err != nil {
		return fmt.Errorf("encode append: %w", err)
	}
	return nil
}

// scanUnlocked returns the latest record per namespace/id pair plus the
// first-seen order of the keys, so readers get a stable ordering.
func (a *FileArchive) scanUnlocked() (map[string]archiveRecord, []string, error) {
	f, err := os.Open(a.path)
	if err != nil {
		return nil, nil, fmt.Errorf("open read: %w", err)
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	buf := make([]byte, 0, 1024*1024)
	s.Buffer(buf, 10*1024*1024)
	latest := make(map[string]archiveRecord)
	var order []string
	for s.Scan() {
		line := s.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec archiveRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		key := rec.Namespace + "/" + rec.Chat.ID
		if _, seen := latest[key]; !seen {
			order = append(order, key)
		}
		latest[key] = rec
	}
	if err := s.Err(); err != nil {
		return nil, nil, fmt.Errorf("scan: %w", err)
	}
	return latest, order, nil
}
