package auth

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

type FileRepository struct {
	path string
	mu   sync.Mutex
}

func NewFileRepository(path string) (*FileRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure dir: %w", err)
	}
	// Touch file if not exists
	f, err := os.OpenFile(path, os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("touch file: %w", err)
	}
	_ = f.Close()
	return &FileRepository{path: path}, nil
}

func (r *FileRepository) LoadAll() ([]Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer func(f *os.File) {
		err := f.Close()
		if err != nil {
		}
	}(f)
	var tokens []Token
	dec := json.NewDecoder(f)
	if err := dec.Decode(&tokens); err != nil {
		if err == io.EOF {
			return []Token{}, nil
		}
		// empty or malformed -> start fresh
		return []Token{}, nil
	}
	return tokens, nil
}

func (r *FileRepository) Upsert(t Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tokens, _ := r.loadUnlocked()
	updated := false
	for i, existing := range tokens {
		if existing.Token == t.Token {
			tokens[i] = t
			updated = true
			break
		}
	}
	if !updated {
		tokens = append(tokens, t)
	}
	return r.saveUnlocked(tokens)
}

func (r *FileRepository) Remove(token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tokens, _ := r.loadUnlocked()
	var out []Token
	for _, t := range tokens {
		if t.Token != token {
			out = append(out, t)
		}
	}
	return r.saveUnlocked(out)
}

func (r *FileRepository) loadUnlocked() ([]Token, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, err
	}
	defer func(f *os.File) {
		err := f.Close()
		if err != nil {
		}
	}(f)
	var tokens []Token
	dec := json.NewDecoder(f)
	if err := dec.Decode(&tokens); err != nil {
		return []Token{}, nil
	}
	return tokens, nil
}

func (r *FileRepository) saveUnlocked(tokens []Token) error {
	f, err := os.OpenFile(r.path, os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func(f *os.File) {
		err := f.Close()
		if err != nil {
		}
	}(f)
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tokens)
}
