package auth

import (
	"errors"
	"sync"
)

var ErrInvalidToken = errors.New("invalid token")

// DefaultNamespace is used when no tokens are configured at all, i.e.
// the server runs in open mode.
const DefaultNamespace = "default"

// Token maps a bearer token to the chat namespace it owns.
type Token struct {
	Token     string `json:"token"`
	Namespace string `json:"namespace"`
}

type Repository interface {
	LoadAll() ([]Token, error)
	Upsert(t Token) error
	Remove(token string) error
}

// Service is safe for concurrent use; Validate runs on every request
// while token management may happen alongside.
type Service struct {
	repo        Repository
	mu          sync.RWMutex
	byToken     map[string]string
	staticToken string
}

func NewWithRepo(repo Repository, staticToken string) (*Service, error) {
	s := &Service{repo: repo, byToken: make(map[string]string), staticToken: staticToken}
	// preload from repo
	if repo != nil {
		tokens, err := repo.LoadAll()
		if err == nil {
			for _, t := range tokens {
				s.byToken[t.Token] = t.Namespace
			}
		}
	}
	if staticToken != "" {
		if _, ok := s.byToken[staticToken]; !ok {
			s.byToken[staticToken] = DefaultNamespace
		}
	}
	return s, nil
}

// Validate resolves a bearer token to its namespace. With no tokens
// configured every request maps to the default namespace.
func (s *Service) Validate(token string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.byToken) == 0 {
		return DefaultNamespace, nil
	}
	ns, ok := s.byToken[token]
	if !ok {
		return "", ErrInvalidToken
	}
	return ns, nil
}

func (s *Service) Upsert(t Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byToken[t.Token] = t.Namespace
	if s.repo != nil {
		return s.repo.Upsert(t)
	}
	return nil
}

func (s *Service) Remove(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byToken, token)
	if s.repo != nil {
		return s.repo.Remove(token)
	}
	return nil
}
