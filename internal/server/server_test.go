package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"chat-relay/internal/auth"
	"chat-relay/internal/bots"
	"chat-relay/internal/chat"
	"chat-relay/internal/completion"
	"chat-relay/internal/llm"
)

type scriptedStream struct {
	deltas []llm.Delta
	err    error
	i      int
}

func (s *scriptedStream) Recv() (llm.Delta, error) {
	if s.i < len(s.deltas) {
		d := s.deltas[s.i]
		s.i++
		return d, nil
	}
	if s.err != nil {
		return llm.Delta{}, s.err
	}
	return llm.Delta{}, io.EOF
}

func (s *scriptedStream) Close() error { return nil }

type scriptedFactory struct {
	stream *scriptedStream
}

func (f *scriptedFactory) CreateClient(bots.Config) (llm.Client, error) {
	return scriptedClient{stream: f.stream}, nil
}

type scriptedClient struct{ stream *scriptedStream }

func (c scriptedClient) StreamCompletion(context.Context, []llm.Message) (llm.Stream, error) {
	return c.stream, nil
}

type fakeCaller struct {
	result string
	err    error
}

func (f *fakeCaller) CallTool(context.Context, string, string, map[string]any) (string, error) {
	return f.result, f.err
}

func newTestServer(t *testing.T, stream *scriptedStream, caller completion.ToolCaller, staticToken string) *Server {
	t.Helper()
	arch, err := chat.NewFileArchive(filepath.Join(t.TempDir(), "chats.jsonl"))
	if err != nil {
		t.Fatalf("init archive: %v", err)
	}
	store := chat.NewStore(chat.NewMemoryCache(), arch)

	botsSvc, err := bots.NewWithRepo(nil)
	if err != nil {
		t.Fatalf("init bots: %v", err)
	}
	if err := botsSvc.Upsert(bots.Config{Name: "helper", Provider: "openai", Model: "gpt-test"}); err != nil {
		t.Fatalf("upsert bot: %v", err)
	}

	authSvc, err := auth.NewWithRepo(nil, staticToken)
	if err != nil {
		t.Fatalf("init auth: %v", err)
	}

	orch := completion.NewOrchestrator(store, botsSvc, &scriptedFactory{stream: stream})
	bridge := completion.NewToolBridge(caller)
	return New(0, store, botsSvc, authSvc, orch, bridge)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCompletionsSSEFraming(t *testing.T) {
	s := newTestServer(t, &scriptedStream{deltas: []llm.Delta{
		{Content: "Hel", Model: "gpt-test", Provider: "openai"},
		{Content: "lo"},
	}}, &fakeCaller{}, "")
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/chat/completions",
		`{"content":"hi","botName":"helper","chatId":"abc123"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type: %q", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Fatalf("cache control: %q", cc)
	}
	if conn := rec.Header().Get("Connection"); conn != "keep-alive" {
		t.Fatalf("connection: %q", conn)
	}

	body := rec.Body.String()
	wantFirst := `data: {"choices":[{"delta":{"content":"Hel"}}],"model":"gpt-test","provider":"openai"}` + "\n\n"
	if !strings.HasPrefix(body, wantFirst) {
		t.Fatalf("first frame mismatch:\n%s", body)
	}
	if !strings.HasSuffix(body, "data: [DONE]\n\n") {
		t.Fatalf("missing terminal sentinel:\n%s", body)
	}
	if got := strings.Count(body, "data: "); got != 3 {
		t.Fatalf("want 2 frames + sentinel, got %d data lines", got)
	}

	// the turn must be persisted once the stream has closed
	c, err := s.store.Get(context.Background(), auth.DefaultNamespace, "abc123")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(c.Messages) != 2 || c.Messages[1].Content != "Hello" {
		t.Fatalf("persisted turn mismatch: %+v", c.Messages)
	}
}

func TestCompletionsFailureAbortsWithoutSentinel(t *testing.T) {
	s := newTestServer(t, &scriptedStream{
		deltas: []llm.Delta{{Content: "par"}},
		err:    errors.New("upstream exploded"),
	}, &fakeCaller{}, "")

	rec := do(t, s.Handler(), http.MethodPost, "/api/chat/completions",
		`{"content":"hi","botName":"helper","chatId":"abc123"}`)

	body := rec.Body.String()
	if strings.Contains(body, "[DONE]") {
		t.Fatalf("aborted stream must not end with sentinel:\n%s", body)
	}
	if !strings.Contains(body, `"content":"par"`) {
		t.Fatalf("partial frame should have been sent before abort:\n%s", body)
	}

	c, err := s.store.Get(context.Background(), auth.DefaultNamespace, "abc123")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(c.Messages) != 1 {
		t.Fatalf("partial reply must not be persisted: %+v", c.Messages)
	}
}

func TestCompletionsValidationAndNotFound(t *testing.T) {
	s := newTestServer(t, &scriptedStream{}, &fakeCaller{}, "")
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/chat/completions", `{"botName":"helper","chatId":"abc123"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing content: want 400, got %d", rec.Code)
	}
	rec = do(t, h, http.MethodPost, "/api/chat/completions", `{"content":"hi","botName":"ghost","chatId":"abc123"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown bot: want 404, got %d", rec.Code)
	}
	rec = do(t, h, http.MethodPost, "/api/chat/completions", `{"content":"hi","botName":"helper"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing chat id: want 400, got %d", rec.Code)
	}
}

func TestChatEndpoints(t *testing.T) {
	s := newTestServer(t, &scriptedStream{}, &fakeCaller{}, "")
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/chats",
		`{"messages":[{"role":"user","content":"hello world"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("save: status %d: %s", rec.Code, rec.Body.String())
	}
	var saved chat.Chat
	if err := json.Unmarshal(rec.Body.Bytes(), &saved); err != nil {
		t.Fatalf("decode saved: %v", err)
	}
	if len(saved.ID) != 6 {
		t.Fatalf("want generated 6-hex id, got %q", saved.ID)
	}

	rec = do(t, h, http.MethodGet, "/api/chats/"+saved.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/chats/nosuch", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing chat: want 404, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/chats?search=WORLD", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	var list chat.ListResult
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Total != 1 || list.Chats[0].ID != saved.ID {
		t.Fatalf("search result mismatch: %+v", list)
	}

	rec = do(t, h, http.MethodDelete, "/api/chats/"+saved.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: want 204, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("delete body must be empty, got %q", rec.Body.String())
	}
}

func TestNewChatID(t *testing.T) {
	s := newTestServer(t, &scriptedStream{}, &fakeCaller{}, "")

	rec := do(t, s.Handler(), http.MethodGet, "/api/chat/id", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var out map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out["id"]) != 6 {
		t.Fatalf("want 6-hex id, got %q", out["id"])
	}
}

func TestToolConfirm(t *testing.T) {
	s := newTestServer(t, &scriptedStream{}, &fakeCaller{result: "tool says hi"}, "")

	rec := do(t, s.Handler(), http.MethodPost, "/api/tool/confirm",
		`{"chatId":"abc123","botName":"helper","server":"notion","tool":"list_pages","args":{"limit":5}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	body := rec.Body.String()
	if !strings.HasSuffix(body, "data: [DONE]\n\n") {
		t.Fatalf("missing sentinel:\n%s", body)
	}
	if got := strings.Count(body, "data: "); got != 2 {
		t.Fatalf("want exactly one frame + sentinel, got %d data lines", got)
	}
	payload := strings.TrimPrefix(strings.SplitN(body, "\n\n", 2)[0], "data: ")
	var msg chat.ChatMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if msg.Role != chat.RoleUser || msg.Content != "tool says hi" {
		t.Fatalf("frame mismatch: %+v", msg)
	}
}

func TestToolConfirmError(t *testing.T) {
	s := newTestServer(t, &scriptedStream{}, &fakeCaller{err: errors.New("server down")}, "")

	rec := do(t, s.Handler(), http.MethodPost, "/api/tool/confirm",
		`{"server":"notion","tool":"list_pages"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("want 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "[DONE]") {
		t.Fatalf("failed invocation must not emit sentinel")
	}
}

func TestBearerAuth(t *testing.T) {
	s := newTestServer(t, &scriptedStream{}, &fakeCaller{}, "secret")
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/api/chats", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("want 401 without token, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
	req.Header.Set("Authorization", "Bearer secret")
	ok := httptest.NewRecorder()
	h.ServeHTTP(ok, req)
	if ok.Code != http.StatusOK {
		t.Fatalf("want 200 with token, got %d", ok.Code)
	}
}

func TestBotEndpoints(t *testing.T) {
	s := newTestServer(t, &scriptedStream{}, &fakeCaller{}, "")
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/bots", `{"name":"writer","provider":"yandex","model":"lite"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("upsert: status %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/bots", "")
	var cfgs []bots.Config
	if err := json.Unmarshal(rec.Body.Bytes(), &cfgs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(cfgs) != 2 {
		t.Fatalf("want 2 bots, got %d", len(cfgs))
	}

	rec = do(t, h, http.MethodDelete, "/api/bots/writer", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("remove: want 204, got %d", rec.Code)
	}
}
