package bots

import "sync"

// Config names a model configuration a completion request can refer to.
type Config struct {
	Name            string `json:"name"`
	Provider        string `json:"provider"`
	Model           string `json:"model"`
	BaseURL         string `json:"base_url,omitempty"`
	APIKey          string `json:"api_key,omitempty"`
	ReasoningEffort string `json:"reasoning_effort,omitempty"`
}

type Repository interface {
	LoadAll() ([]Config, error)
	Upsert(bot Config) error
	Remove(name string) error
}

// Service is safe for concurrent use; every HTTP request runs in its
// own goroutine.
type Service struct {
	repo   Repository
	mu     sync.RWMutex
	byName map[string]Config
}

func NewWithRepo(repo Repository) (*Service, error) {
	s := &Service{repo: repo, byName: make(map[string]Config)}
	// preload from repo
	if repo != nil {
		cfgs, err := repo.LoadAll()
		if err == nil {
			for _, c := range cfgs {
				s.byName[c.Name] = c
			}
		}
	}
	return s, nil
}

func (s *Service) Get(name string) (Config, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byName[name]
	return c, ok
}

func (s *Service) Upsert(bot Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byName[bot.Name] = bot
	if s.repo != nil {
		return s.repo.Upsert(bot)
	}
	return nil
}

func (s *Service) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byName, name)
	if s.repo != nil {
		return s.repo.Remove(name)
	}
	return nil
}

func (s *Service) List() []Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Config, 0, len(s.byName))
	for _, c := range s.byName {
		out = append(out, c)
	}
	return out
}
