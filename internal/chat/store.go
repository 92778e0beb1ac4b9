package chat

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
)

var ErrNotFound = errors.New("chat not found")

// Cache is the low-latency mutable tier. It is the system of record:
// once a chat has been saved it is authoritative here.
type Cache interface {
	Get(ctx context.Context, namespace, id string) (Chat, error)
	Put(ctx context.Context, namespace string, c Chat) error
	Delete(ctx context.Context, namespace, id string) error
	List(ctx context.Context, namespace string) ([]Chat, error)
}

// Archive is the durable append-style mirror. Writes to it are
// best-effort; a failed mirror never fails the caller.
type Archive interface {
	Put(ctx context.Context, namespace string, c Chat) error
	Delete(ctx context.Context, namespace, id string) error
	List(ctx context.Context, namespace string) ([]Chat, error)
}

const (
	defaultLimit = 20
	idBytes      = 3 // 6 hex characters
)

// Store reconciles the two tiers into one chat repository.
type Store struct {
	cache   Cache
	archive Archive
	mirrors sync.WaitGroup
}

func NewStore(cache Cache, archive Archive) *Store {
	return &Store{cache: cache, archive: archive}
}

// Get resolves from the cache first and falls back to scanning the
// archive on a miss.
func (s *Store) Get(ctx context.Context, namespace, id string) (Chat, error) {
	c, err := s.cache.Get(ctx, namespace, id)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Chat{}, fmt.Errorf("cache get: %w", err)
	}
	archived, err := s.archive.List(ctx, namespace)
	if err != nil {
		log.Printf("⚠️ archive scan failed for %s/%s: %v", namespace, id, err)
		return Chat{}, ErrNotFound
	}
	for _, a := range archived {
		if a.ID == id {
			return a, nil
		}
	}
	return Chat{}, ErrNotFound
}

// GetOrCreate returns the stored chat or a fresh unsaved one with the
// given id. Nothing is written until the first message is appended and
// the chat is saved.
func (s *Store) GetOrCreate(ctx context.Context, namespace, id string) (Chat, error) {
	c, err := s.Get(ctx, namespace, id)
	if err == nil {
		return c, nil
	}
	if errors.Is(err, ErrNotFound) {
		return NewChat(id), nil
	}
	return Chat{}, err
}

// List reads both tiers in parallel, merges with cache precedence,
// filters, sorts by update_time descending and paginates.
func (s *Store) List(ctx context.Context, namespace string, opts ListOptions) (ListResult, error) {
	page := opts.Page
	if page < 1 {
		page = 1
	}
	limit := opts.Limit
	if limit < 1 {
		limit = defaultLimit
	}

	var (
		cached, archived []Chat
		cacheErr         error
	)
	var wg conc.WaitGroup
	wg.Go(func() {
		cached, cacheErr = s.cache.List(ctx, namespace)
	})
	wg.Go(func() {
		var err error
		archived, err = s.archive.List(ctx, namespace)
		if err != nil {
			log.Printf("⚠️ archive list failed for %s: %v", namespace, err)
		}
	})
	wg.Wait()
	if cacheErr != nil {
		return ListResult{}, fmt.Errorf("cache list: %w", cacheErr)
	}

	merged := make(map[string]Chat, len(cached)+len(archived))
	for _, c := range archived {
		merged[c.ID] = c
	}
	for _, c := range cached {
		merged[c.ID] = c
	}

	all := make([]Chat, 0, len(merged))
	for _, c := range merged {
		if opts.Search != "" && !c.matches(opts.Search) {
			continue
		}
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].UpdateTime.Equal(all[j].UpdateTime) {
			return all[i].UpdateTime.After(all[j].UpdateTime)
		}
		return all[i].ID < all[j].ID
	})

	total := len(all)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return ListResult{Chats: all[start:end], Total: total, Page: page, Limit: limit}, nil
}

// Save upserts the chat into the cache and mirrors it into the archive
// in the background. An empty id is assigned first. The cache write is
// fatal; a mirror failure is only logged.
func (s *Store) Save(ctx context.Context, namespace string, c Chat) (Chat, error) {
	if c.ID == "" {
		id, err := s.NewID(ctx, namespace)
		if err != nil {
			return Chat{}, err
		}
		c.ID = id
	}
	if c.CreateTime.IsZero() {
		c.CreateTime = time.Now().UTC()
	}
	if now := time.Now().UTC(); now.After(c.UpdateTime) {
		c.UpdateTime = now
	}

	if err := s.cache.Put(ctx, namespace, c); err != nil {
		return Chat{}, fmt.Errorf("cache put: %w", err)
	}

	mirror := c
	s.mirrors.Add(1)
	go func() {
		defer s.mirrors.Done()
		if err := s.archive.Put(context.Background(), namespace, mirror); err != nil {
			log.Printf("⚠️ archive mirror failed for %s/%s: %v", namespace, mirror.ID, err)
		}
	}()
	return c, nil
}

// Delete removes the chat from the cache and best-effort from the
// archive.
func (s *Store) Delete(ctx context.Context, namespace, id string) error {
	if err := s.cache.Delete(ctx, namespace, id); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	if err := s.archive.Delete(ctx, namespace, id); err != nil {
		log.Printf("⚠️ archive delete failed for %s/%s: %v", namespace, id, err)
	}
	return nil
}

// NewID draws random 6-hex-character tokens until one is free in both
// tiers.
func (s *Store) NewID(ctx context.Context, namespace string) (string, error) {
	for {
		buf := make([]byte, idBytes)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate chat id: %w", err)
		}
		id := hex.EncodeToString(buf)
		if _, err := s.Get(ctx, namespace, id); errors.Is(err, ErrNotFound) {
			return id, nil
		} else if err != nil {
			return "", err
		}
	}
}
