package bots

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
	f, err := os.OpenFile(path, os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("touch file: %w", err)
	}
	_ = f.Close()
	return &FileRepository{path: path}, nil
}

func (r *FileRepository) LoadAll() ([]Config, error) {
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
	var cfgs []Config
	dec := json.NewDecoder(f)
	if err := dec.Decode(&cfgs); err != nil {
		if err == io.EOF {
			return []Config{}, nil
		}
		return []Config{}, nil
	}
	return cfgs, nil
}

func (r *FileRepository) Upsert(bot Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfgs, _ := r.loadUnlocked()
	updated := false
	for i, c := range cfgs {
		if c.Name == bot.Name {
			cfgs[i] = bot
			updated = true
			break
		}
	}
	if !updated {
		cfgs = append(cfgs, bot)
	}
	return r.saveUnlocked(cfgs)
}

func (r *FileRepository) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfgs, _ := r.loadUnlocked()
	var out []Config
	for _, c := range cfgs {
		if c.Name != name {
			out = append(out, c)
		}
	}
	return r.saveUnlocked(out)
}

func (r *FileRepository) loadUnlocked() ([]Config, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, err
	}
	defer func(f *os.File) {
		err := f.Close()
		if err != nil {
		}
	}(f)
	var cfgs []Config
	dec := json.NewDecoder(f)
	if err := dec.Decode(&cfgs); err != nil {
		return []Config{}, nil
	}
	return cfgs, nil
}

func (r *FileRepository) saveUnlocked(cfgs []Config) error {
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
	return enc.Encode(cfgs)
}
