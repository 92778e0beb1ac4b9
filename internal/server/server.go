package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"chat-relay/internal/auth"
	"chat-relay/internal/bots"
	"chat-relay/internal/chat"
	"chat-relay/internal/completion"
)

// Server exposes the chat store, completion orchestrator and tool
// bridge over HTTP.
type Server struct {
	store   *chat.Store
	bots    *bots.Service
	authSvc *auth.Service
	orch    *completion.Orchestrator
	bridge  *completion.ToolBridge
	server  *http.Server
	port    int
}

func New(port int, store *chat.Store, botsSvc *bots.Service, authSvc *auth.Service, orch *completion.Orchestrator, bridge *completion.ToolBridge) *Server {
	return &Server{
		store:   store,
		bots:    botsSvc,
		authSvc: authSvc,
		orch:    orch,
		bridge:  bridge,
		port:    port,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/chats", s.withAuth(s.handleChats))
	mux.HandleFunc("/api/chats/", s.withAuth(s.handleChatByID))
	mux.HandleFunc("/api/chat/id", s.withAuth(s.handleNewChatID))
	mux.HandleFunc("/api/chat/completions", s.withAuth(s.handleCompletions))
	mux.HandleFunc("/api/tool/confirm", s.withAuth(s.handleToolConfirm))
	mux.HandleFunc("/api/bots", s.withAuth(s.handleBots))
	mux.HandleFunc("/api/bots/", s.withAuth(s.handleBotByName))

	return s.withLogging(mux)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.Handler(),
		// No WriteTimeout: completion streams stay open arbitrarily long.
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	log.Printf("🌐 Starting chat-relay server on http://localhost:%d", s.port)
	return s.server.ListenAndServe()
}

func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

type namespaceKey struct{}

func namespaceFrom(ctx context.Context) string {
	if ns, ok := ctx.Value(namespaceKey{}).(string); ok {
		return ns
	}
	return auth.DefaultNamespace
}

func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		ns, err := s.authSvc.Validate(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or missing bearer token")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), namespaceKey{}, ns)))
	}
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()[:8]
		log.Printf("[%s] %s %s", reqID, r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
