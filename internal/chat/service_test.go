package chat

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"

	"github.com/Ahabibm4/chatbot/internal/model"
	"github.com/Ahabibm4/chatbot/internal/orchestration"
	"github.com/Ahabibm4/chatbot/pkg/logging"
)

func testLogger() logging.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fakeRouter struct{ intent string }

func (f fakeRouter) Route(context.Context, model.ChatRequest) string { return f.intent }

type fakeRetriever struct{ chunks []model.RetrievedChunk }

func (f fakeRetriever) Retrieve(context.Context, model.ChatRequest, string) []model.RetrievedChunk {
	return f.chunks
}

type fakeWorkflow struct{ result model.WorkflowResult }

func (f fakeWorkflow) Handle(context.Context, model.ChatRequest, string) model.WorkflowResult {
	return f.result
}

type fakeTools struct {
	result model.ToolExecutionResult
	calls  int
}

func (f *fakeTools) Execute(_ context.Context, toolName string, _ model.ChatRequest, _ map[string]any) model.ToolExecutionResult {
	f.calls++
	out := f.result
	out.ToolName = toolName
	return out
}

// fakeOrchestrator replays segments. block keeps the stream open until ctx
// is cancelled; explode panics instead of streaming.
type fakeOrchestrator struct {
	segments []orchestration.Segment
	answer   orchestration.Answer
	block    bool
	explode  bool
}

func (f *fakeOrchestrator) Orchestrate(context.Context, model.ChatRequest, string, []model.RetrievedChunk, model.WorkflowResult) orchestration.Answer {
	return f.answer
}

func (f *fakeOrchestrator) Stream(ctx context.Context, _ model.ChatRequest, _ string, _ []model.RetrievedChunk, _ model.WorkflowResult) <-chan orchestration.Segment {
	if f.explode {
		panic("provider exploded")
	}
	out := make(chan orchestration.Segment, len(f.segments))
	for _, seg := range f.segments {
		out <- seg
	}
	if f.block {
		go func() {
			<-ctx.Done()
			close(out)
		}()
		return out
	}
	close(out)
	return out
}

type recordingMemory struct {
	mu        sync.Mutex
	appendErr error
	appended  []model.ChatRequest
	messages  []model.ChatMessage
	workflows []model.WorkflowResult
}

func (m *recordingMemory) AppendTurns(_ context.Context, req model.ChatRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appended = append(m.appended, req)
	return m.appendErr
}

func (m *recordingMemory) StoreAssistantMessage(_ context.Context, _ model.ChatRequest, msg model.ChatMessage, wf model.WorkflowResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	m.workflows = append(m.workflows, wf)
	return nil
}

func (m *recordingMemory) stored() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

func chatRequest(tenant string) model.ChatRequest {
	return model.ChatRequest{
		ConversationID: "conv-1",
		TenantID:       tenant,
		UserID:         "user-1",
		Turns:          []model.Turn{{Role: model.RoleUser, Content: "Where is NC123456?"}},
	}
}

func trackWorkflow() model.WorkflowResult {
	return model.WorkflowResult{
		WorkflowID:      "TRACK_JOB",
		State:           "TRACK_READY",
		Slots:           map[string]any{"jobId": "NC123456"},
		ToolToInvoke:    "TRACK_JOB",
		ResponseMessage: "Checking the latest status for job NC123456.",
	}
}

func drain(t *testing.T, events <-chan model.Event) []model.Event {
	t.Helper()
	var out []model.Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, event)
		case <-timeout:
			t.Fatal("event stream did not close")
		}
	}
}

func finals(events []model.Event) []model.Event {
	var out []model.Event
	for _, e := range events {
		if e.Type == model.EventFinal {
			out = append(out, e)
		}
	}
	return out
}

func TestStreamEmitsOrderedEvents(t *testing.T) {
	mem := &recordingMemory{}
	tools := &fakeTools{result: model.ToolExecutionResult{Success: true, Detail: "In transit"}}
	orch := &fakeOrchestrator{segments: []orchestration.Segment{
		{Type: orchestration.SegmentPartial, Text: "Job NC123456 "},
		{Type: orchestration.SegmentPartial, Text: "   "},
		{Type: orchestration.SegmentPartial, Text: "is in transit."},
		{Type: orchestration.SegmentFinal, Text: "Job NC123456 is in transit.", Answer: orchestration.Answer{
			Text: "Job NC123456 is in transit.", GuardrailAction: orchestration.GuardrailAllow,
		}},
	}}
	svc := NewService(Dependencies{
		Router:       fakeRouter{intent: "TRACK_JOB"},
		Retriever:    fakeRetriever{},
		Workflow:     fakeWorkflow{result: trackWorkflow()},
		Tools:        tools,
		Orchestrator: orch,
		Memory:       mem,
	}, Config{}, testLogger())

	events, err := svc.Stream(context.Background(), chatRequest("stream-tenant"))
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	got := drain(t, events)

	want := []model.EventType{model.EventThinking, model.EventToolResult, model.EventPartial, model.EventPartial, model.EventFinal}
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %+v", len(want), got)
	}
	for i := range want {
		if got[i].Type != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], got[i].Type)
		}
	}
	if got[0].Text != "router" {
		t.Fatalf("unexpected thinking text %q", got[0].Text)
	}
	toolData, ok := got[1].Data.(model.ToolResultData)
	if !ok || toolData.Tool != "TRACK_JOB" || !toolData.Success || got[1].Text != "In transit" {
		t.Fatalf("unexpected tool frame %+v", got[1])
	}
	final := got[4]
	data, ok := final.Data.(model.FinalData)
	if !ok || data.Intent != "TRACK_JOB" || data.GuardrailAction != orchestration.GuardrailAllow || data.Citations == nil {
		t.Fatalf("unexpected final data %+v", final.Data)
	}
	if tools.calls != 1 {
		t.Fatalf("expected one tool call, got %d", tools.calls)
	}

	if len(mem.appended) != 1 || mem.stored() != 1 {
		t.Fatalf("expected one append and one stored reply, got %d/%d", len(mem.appended), mem.stored())
	}
	if !mem.messages[0].Streaming || mem.messages[0].Content != final.Text {
		t.Fatalf("unexpected stored reply %+v", mem.messages[0])
	}
	wf := mem.workflows[0]
	if wf.ResponseMessage != final.Text || wf.ToolResult == nil || wf.ToolResult.Status != model.ToolStatusSuccess {
		t.Fatalf("unexpected stored workflow %+v", wf)
	}
	if testutil.CollectAndCount(ttftSeconds, "chatbot_ttft_seconds") == 0 {
		t.Fatal("expected a ttft observation")
	}
}

func TestStreamKnowledgeGuard(t *testing.T) {
	mem := &recordingMemory{}
	orch := &fakeOrchestrator{segments: []orchestration.Segment{
		{Type: orchestration.SegmentFinal, Answer: orchestration.Answer{
			Text:            "Invented hours",
			Citations:       []model.Citation{{DocID: "ghost"}},
			GuardrailAction: orchestration.GuardrailAllow,
		}},
	}}
	svc := NewService(Dependencies{
		Router:       fakeRouter{intent: "RAG_FAQ"},
		Retriever:    fakeRetriever{},
		Workflow:     fakeWorkflow{result: model.WorkflowResult{WorkflowID: "RAG_FAQ", State: "RESPOND"}},
		Orchestrator: orch,
		Memory:       mem,
	}, Config{}, testLogger())

	before := testutil.ToFloat64(citationsTotal.WithLabelValues("guard-tenant", "false"))
	events, err := svc.Stream(context.Background(), chatRequest("guard-tenant"))
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	got := finals(drain(t, events))
	if len(got) != 1 {
		t.Fatalf("expected one final, got %d", len(got))
	}
	data := got[0].Data.(model.FinalData)
	if got[0].Text != orchestration.UnknownMessage || len(data.Citations) != 0 {
		t.Fatalf("expected unknown answer without citations, got %+v", got[0])
	}
	if delta := testutil.ToFloat64(citationsTotal.WithLabelValues("guard-tenant", "false")) - before; delta != 1 {
		t.Fatalf("expected citation absence recorded, got %v", delta)
	}
	if mem.messages[0].Content != orchestration.UnknownMessage {
		t.Fatalf("stored reply must match the final answer, got %q", mem.messages[0].Content)
	}
}

func TestStreamWithoutFinalFallsBack(t *testing.T) {
	cases := map[string]*fakeOrchestrator{
		"closed early": {segments: []orchestration.Segment{{Type: orchestration.SegmentPartial, Text: "Hel"}}},
		"panic":        {explode: true},
	}
	for name, orch := range cases {
		mem := &recordingMemory{}
		svc := NewService(Dependencies{
			Router:       fakeRouter{intent: "TRACK_JOB"},
			Retriever:    fakeRetriever{},
			Workflow:     fakeWorkflow{result: model.WorkflowResult{WorkflowID: "TRACK_JOB", State: "TRACK_COLLECT_JOB_ID"}},
			Orchestrator: orch,
			Memory:       mem,
		}, Config{}, testLogger())

		before := testutil.ToFloat64(guardrailActions.WithLabelValues(orchestration.GuardrailError))
		events, err := svc.Stream(context.Background(), chatRequest("fallback-tenant"))
		if err != nil {
			t.Fatalf("%s: stream: %v", name, err)
		}
		got := finals(drain(t, events))
		if len(got) != 1 {
			t.Fatalf("%s: expected exactly one final, got %d", name, len(got))
		}
		data := got[0].Data.(model.FinalData)
		if got[0].Text != orchestration.FallbackMessage || data.GuardrailAction != orchestration.GuardrailError {
			t.Fatalf("%s: unexpected final %+v", name, got[0])
		}
		if name == "closed early" {
			if delta := testutil.ToFloat64(guardrailActions.WithLabelValues(orchestration.GuardrailError)) - before; delta != 1 {
				t.Fatalf("%s: expected ERROR guardrail counted, got %v", name, delta)
			}
		}
	}
}

func TestStreamCancellationStopsPersistence(t *testing.T) {
	mem := &recordingMemory{}
	orch := &fakeOrchestrator{block: true, segments: []orchestration.Segment{{Type: orchestration.SegmentPartial, Text: "Working"}}}
	svc := NewService(Dependencies{
		Router:       fakeRouter{intent: "TRACK_JOB"},
		Retriever:    fakeRetriever{},
		Workflow:     fakeWorkflow{result: model.WorkflowResult{WorkflowID: "TRACK_JOB", State: "TRACK_COLLECT_JOB_ID"}},
		Orchestrator: orch,
		Memory:       mem,
	}, Config{EventBuffer: 1}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	events, err := svc.Stream(ctx, chatRequest("cancel-tenant"))
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if first := <-events; first.Type != model.EventThinking {
		t.Fatalf("expected thinking first, got %s", first.Type)
	}
	cancel()

	for _, event := range drain(t, events) {
		if event.Type == model.EventFinal {
			t.Fatal("no final is expected after cancellation")
		}
	}
	if mem.stored() != 0 {
		t.Fatal("cancelled turns must not persist a reply")
	}
	if len(mem.appended) != 1 {
		t.Fatal("incoming turns are persisted before the stream starts")
	}
}

func TestStreamRejectsInvalidRequest(t *testing.T) {
	mem := &recordingMemory{}
	svc := NewService(Dependencies{Memory: mem}, Config{}, testLogger())
	req := chatRequest("")
	if _, err := svc.Stream(context.Background(), req); !errors.Is(err, model.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if len(mem.appended) != 0 {
		t.Fatal("invalid requests must not reach memory")
	}
}

func TestCompleteBuildsResponse(t *testing.T) {
	mem := &recordingMemory{appendErr: errors.New("db down")}
	tools := &fakeTools{result: model.ToolExecutionResult{Success: false, Detail: "Caller is not authorized for tool TRACK_JOB"}}
	chunk := model.RetrievedChunk{DocID: "doc-1", Title: "Tracking guide", Page: 3, Text: "Jobs update hourly.", Score: 0.8}
	orch := &fakeOrchestrator{answer: orchestration.Answer{
		Text:            "I could not check that job.",
		Citations:       []model.Citation{{DocID: "doc-1", Reference: "Tracking guide · p.3"}},
		GuardrailAction: orchestration.GuardrailTruncated,
	}}
	svc := NewService(Dependencies{
		Router:       fakeRouter{intent: "TRACK_JOB"},
		Retriever:    fakeRetriever{chunks: []model.RetrievedChunk{chunk}},
		Workflow:     fakeWorkflow{result: trackWorkflow()},
		Tools:        tools,
		Orchestrator: orch,
		Memory:       mem,
	}, Config{}, testLogger())

	resp, err := svc.Complete(context.Background(), chatRequest("sync-tenant"))
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if len(resp.Messages) != 2 || resp.Messages[0].Role != model.RoleUser || resp.Messages[1].Role != model.RoleAssistant {
		t.Fatalf("unexpected messages %+v", resp.Messages)
	}
	if resp.Messages[1].Streaming || resp.Messages[1].Content != "I could not check that job." {
		t.Fatalf("unexpected assistant message %+v", resp.Messages[1])
	}
	if resp.Retrieval.Intent != "TRACK_JOB" || len(resp.Retrieval.Chunks) != 1 {
		t.Fatalf("unexpected retrieval summary %+v", resp.Retrieval)
	}
	if resp.Workflow.ToolResult == nil || resp.Workflow.ToolResult.Status != model.ToolStatusFailed {
		t.Fatalf("unexpected workflow summary %+v", resp.Workflow)
	}
	if resp.GuardrailAction != orchestration.GuardrailTruncated || len(resp.Citations) != 1 {
		t.Fatalf("unexpected guardrail/citations %s %+v", resp.GuardrailAction, resp.Citations)
	}
	if mem.stored() != 1 || mem.messages[0].ID != resp.Messages[1].ID {
		t.Fatal("the returned assistant message must be the stored one")
	}
}

func TestCompleteWithoutToolBackend(t *testing.T) {
	svc := NewService(Dependencies{
		Router:       fakeRouter{intent: "TRACK_JOB"},
		Retriever:    fakeRetriever{},
		Workflow:     fakeWorkflow{result: trackWorkflow()},
		Orchestrator: &fakeOrchestrator{answer: orchestration.Answer{Text: "ok", GuardrailAction: orchestration.GuardrailAllow}},
		Memory:       &recordingMemory{},
	}, Config{}, testLogger())

	resp, err := svc.Complete(context.Background(), chatRequest("acme"))
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resp.Workflow.ToolResult == nil || resp.Workflow.ToolResult.Detail != "No adapter configured" {
		t.Fatalf("expected denied tool result, got %+v", resp.Workflow.ToolResult)
	}
	if resp.Retrieval.Chunks == nil || resp.Citations == nil {
		t.Fatal("empty lists must encode as []")
	}
}
