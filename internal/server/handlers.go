package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"chat-relay/internal/bots"
	"chat-relay/internal/chat"
	"chat-relay/internal/completion"
)

func (s *Server) handleChats(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListChats(w, r)
	case http.MethodPost:
		s.handleSaveChat(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := chat.ListOptions{Search: q.Get("search")}
	if v, err := strconv.Atoi(q.Get("page")); err == nil {
		opts.Page = v
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		opts.Limit = v
	}

	result, err := s.store.List(r.Context(), namespaceFrom(r.Context()), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSaveChat(w http.ResponseWriter, r *http.Request) {
	var c chat.Chat
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid chat body")
		return
	}
	saved, err := s.store.Save(r.Context(), namespaceFrom(r.Context()), c)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// handleChatByID serves /api/chats/{id}. A missing chat is a strict
// 404; GET never fabricates a chat.
func (s *Server) handleChatByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/chats/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "chat id is required")
		return
	}
	ns := namespaceFrom(r.Context())

	switch r.Method {
	case http.MethodGet:
		c, err := s.store.Get(r.Context(), ns, id)
		if err != nil {
			if errors.Is(err, chat.ErrNotFound) {
				writeError(w, http.StatusNotFound, "chat not found")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, c)
	case http.MethodDelete:
		if err := s.store.Delete(r.Context(), ns, id); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleNewChatID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id, err := s.store.NewID(r.Context(), namespaceFrom(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

type completionRequest struct {
	Content string `json:"content"`
	BotName string `json:"botName"`
	ChatID  string `json:"chatId"`
}

func (s *Server) handleCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req completionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	events, err := s.orch.Stream(r.Context(), namespaceFrom(r.Context()), completion.Request{
		ChatID:  req.ChatID,
		Content: req.Content,
		BotName: req.BotName,
	})
	if err != nil {
		writeError(w, completionStatus(err), err.Error())
		return
	}

	flusher := startEventStream(w)
	if flusher == nil {
		return
	}
	for ev := range events {
		if ev.Err != nil {
			// headers are committed; the only signal left is an
			// abnormal end of stream
			log.Printf("❌ completion stream aborted: %v", ev.Err)
			return
		}
		if err := writeFrame(w, flusher, ev.Frame); err != nil {
			log.Printf("failed to write frame: %v", err)
			return
		}
	}
	writeDone(w, flusher)
}

type toolConfirmRequest struct {
	ChatID  string         `json:"chatId"`
	BotName string         `json:"botName"`
	Server  string         `json:"server"`
	Tool    string         `json:"tool"`
	Args    map[string]any `json:"args"`
}

func (s *Server) handleToolConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req toolConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := s.bridge.Deliver(r.Context(), completion.ToolRequest{
		Server: req.Server,
		Tool:   req.Tool,
		Args:   req.Args,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, completion.ErrMissingServer) || errors.Is(err, completion.ErrMissingTool) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}

	flusher := startEventStream(w)
	if flusher == nil {
		return
	}
	if err := writeFrame(w, flusher, msg); err != nil {
		log.Printf("failed to write tool frame: %v", err)
		return
	}
	writeDone(w, flusher)
}

func (s *Server) handleBots(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.bots.List())
	case http.MethodPost:
		var cfg bots.Config
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			writeError(w, http.StatusBadRequest, "invalid bot body")
			return
		}
		if cfg.Name == "" || cfg.Provider == "" {
			writeError(w, http.StatusBadRequest, "bot name and provider are required")
			return
		}
		if err := s.bots.Upsert(cfg); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleBotByName(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/api/bots/")
	if name == "" {
		writeError(w, http.StatusBadRequest, "bot name is required")
		return
	}
	if err := s.bots.Remove(name); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func completionStatus(err error) int {
	switch {
	case completion.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, completion.ErrBotNotFound), errors.Is(err, chat.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func startEventStream(w http.ResponseWriter) http.Flusher {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return nil
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return flusher
}

func writeFrame(w http.ResponseWriter, flusher http.Flusher, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func writeDone(w http.ResponseWriter, flusher http.Flusher) {
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}
