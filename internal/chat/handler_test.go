package chat

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Ahabibm4/chatbot/internal/model"
	"github.com/Ahabibm4/chatbot/pkg/ctxkeys"
)

type fakeTurns struct {
	events []model.Event
	resp   model.ChatResponse
	err    error
	got    model.ChatRequest
}

func (f *fakeTurns) Stream(_ context.Context, req model.ChatRequest) (<-chan model.Event, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	out := make(chan model.Event, len(f.events))
	for _, e := range f.events {
		out <- e
	}
	close(out)
	return out, nil
}

func (f *fakeTurns) Complete(_ context.Context, req model.ChatRequest) (model.ChatResponse, error) {
	f.got = req
	return f.resp, f.err
}

type fakeHistory struct {
	messages []model.ChatMessage
	tenant   string
}

func (f *fakeHistory) History(_ context.Context, tenantID, _ string) ([]model.ChatMessage, error) {
	f.tenant = tenantID
	return f.messages, nil
}

func newTestRouter(turns TurnRunner, history HistoryReader, tenant string, roles []string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if tenant != "" {
			c.Set(string(ctxkeys.KeyTenantID), tenant)
			c.Set(string(ctxkeys.KeyUserID), "auth-user")
			c.Set(string(ctxkeys.KeyRoles), roles)
		}
		c.Next()
	})
	RegisterRoutes(r.Group("/api"), NewHandler(turns, history, testLogger()))
	return r
}

const submission = `{"sessionId":"conv-1","message":"Where is NC123456?","context":{"tenantId":"claimed","userId":"u-claimed","ui":"CP","roles":["BO"]}}`

func streamEvents() []model.Event {
	return []model.Event{
		{Type: model.EventThinking, Text: "router"},
		{Type: model.EventPartial, Text: "In transit"},
		{Type: model.EventFinal, Text: "In transit", Data: model.FinalData{Intent: "TRACK_JOB", Citations: []model.Citation{}, GuardrailAction: "ALLOW"}},
	}
}

func TestHandleStreamWritesNDJSON(t *testing.T) {
	turns := &fakeTurns{events: streamEvents()}
	r := newTestRouter(turns, nil, "acme", []string{"CP"})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(submission))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != contentTypeNDJSON {
		t.Fatalf("unexpected content type %q", ct)
	}

	var types []string
	scanner := bufio.NewScanner(w.Body)
	for scanner.Scan() {
		var frame struct {
			Type string          `json:"type"`
			Text string          `json:"text"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &frame); err != nil {
			t.Fatalf("line %q is not JSON: %v", scanner.Text(), err)
		}
		types = append(types, frame.Type)
		if frame.Type == "final" && !strings.Contains(string(frame.Data), `"guardrailAction":"ALLOW"`) {
			t.Fatalf("unexpected final data %s", frame.Data)
		}
	}
	if strings.Join(types, ",") != "thinking,partial,final" {
		t.Fatalf("unexpected frames %v", types)
	}

	if turns.got.TenantID != "acme" || turns.got.UserID != "auth-user" {
		t.Fatalf("authenticated identity must win, got %s/%s", turns.got.TenantID, turns.got.UserID)
	}
	for _, role := range turns.got.Roles() {
		if role == "BO" {
			t.Fatalf("claimed roles must not survive authentication, got %v", turns.got.Roles())
		}
	}
}

func TestHandleSSEWritesDataFrames(t *testing.T) {
	r := newTestRouter(&fakeTurns{events: streamEvents()}, nil, "acme", nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/chat/sse", strings.NewReader(submission))
	r.ServeHTTP(w, req)

	if ct := w.Header().Get("Content-Type"); ct != contentTypeSSE {
		t.Fatalf("unexpected content type %q", ct)
	}
	frames := strings.Split(strings.TrimSpace(w.Body.String()), "\n\n")
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d: %q", len(frames), w.Body.String())
	}
	for _, frame := range frames {
		if !strings.HasPrefix(frame, `data: {"type":`) {
			t.Fatalf("unexpected frame %q", frame)
		}
	}
}

func TestHandleSyncReturnsResponse(t *testing.T) {
	turns := &fakeTurns{resp: model.ChatResponse{ConversationID: "conv-1", TenantID: "acme", GuardrailAction: "ALLOW"}}
	r := newTestRouter(turns, nil, "acme", nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/chat/sync", strings.NewReader(submission)))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp model.ChatResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ConversationID != "conv-1" || resp.GuardrailAction != "ALLOW" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestHandlersRejectBadInput(t *testing.T) {
	cases := []struct {
		name   string
		path   string
		body   string
		tenant string
		err    error
		status int
	}{
		{"malformed json", "/api/chat", `{`, "acme", nil, http.StatusBadRequest},
		{"missing message", "/api/chat", `{"sessionId":"c","message":"","context":{}}`, "acme", nil, http.StatusBadRequest},
		{"missing tenant", "/api/chat/sync", `{"sessionId":"c","message":"hi","context":{"userId":"u"}}`, "", nil, http.StatusBadRequest},
		{"turn failure", "/api/chat/sync", submission, "acme", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		r := newTestRouter(&fakeTurns{err: tc.err}, nil, tc.tenant, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, tc.path, strings.NewReader(tc.body)))
		if w.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d: %s", tc.name, tc.status, w.Code, w.Body.String())
		}
	}
}

func TestHandleHistory(t *testing.T) {
	history := &fakeHistory{messages: []model.ChatMessage{model.NewChatMessage(model.RoleUser, "hi", false)}}
	r := newTestRouter(nil, history, "acme", nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/chat/conv-1/messages", nil))
	if w.Code != http.StatusOK || history.tenant != "acme" {
		t.Fatalf("expected scoped history, got %d for tenant %q", w.Code, history.tenant)
	}
	if !strings.Contains(w.Body.String(), `"conversationId":"conv-1"`) {
		t.Fatalf("unexpected body %s", w.Body.String())
	}

	gin.SetMode(gin.TestMode)
	w = httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/chat/conv-1/messages", nil)
	NewHandler(nil, history, testLogger()).HandleHistory(c)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without tenant, got %d", w.Code)
	}
}

func TestConversationLocksSerializeAndRelease(t *testing.T) {
	locks := newConversationLocks()
	release := locks.Lock("acme/conv-1")

	acquired := make(chan struct{})
	go func() {
		unlock := locks.Lock("acme/conv-1")
		close(acquired)
		unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("second turn must wait for the first")
	case <-time.After(50 * time.Millisecond):
	}

	other := locks.Lock("acme/conv-2")
	other()

	release()
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("second turn never acquired the lock")
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			locks.Lock("acme/conv-3")()
		}()
	}
	wg.Wait()
	if n := locks.size(); n != 0 {
		t.Fatalf("expected released locks to be dropped, %d remain", n)
	}
}

func TestHandlerDropsBackOfficeSurfaceForCustomerToken(t *testing.T) {
	turns := &fakeTurns{resp: model.ChatResponse{ConversationID: "conv-1"}}
	r := newTestRouter(turns, nil, "acme", []string{"CP"})

	body := `{"sessionId":"conv-1","message":"reschedule NC123456 tomorrow","context":{"tenantId":"acme","userId":"u1","ui":"BO","roles":["CP"]}}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/chat/sync", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if roles := turns.got.Roles(); len(roles) != 1 || roles[0] != "CP" {
		t.Fatalf("expected only the authenticated CP role, got %v", roles)
	}
}
