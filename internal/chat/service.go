// Package chat runs one conversational turn end to end: routing,
// retrieval, workflow, tools, the guarded LLM call and persistence.
package chat

import (
	"context"
	"strconv"
	"strings"

	"github.com/Ahabibm4/chatbot/internal/model"
	"github.com/Ahabibm4/chatbot/internal/orchestration"
	"github.com/Ahabibm4/chatbot/internal/reqctx"
	"github.com/Ahabibm4/chatbot/pkg/logging"
)

const (
	DefaultEventBuffer = 32
	thinkingRouter     = "router"
)

type Router interface {
	Route(ctx context.Context, req model.ChatRequest) string
}

type Retriever interface {
	Retrieve(ctx context.Context, req model.ChatRequest, intent string) []model.RetrievedChunk
}

type WorkflowEngine interface {
	Handle(ctx context.Context, req model.ChatRequest, intent string) model.WorkflowResult
}

type ToolExecutor interface {
	Execute(ctx context.Context, toolName string, req model.ChatRequest, slots map[string]any) model.ToolExecutionResult
}

type Orchestrator interface {
	Orchestrate(ctx context.Context, req model.ChatRequest, intent string, chunks []model.RetrievedChunk, wf model.WorkflowResult) orchestration.Answer
	Stream(ctx context.Context, req model.ChatRequest, intent string, chunks []model.RetrievedChunk, wf model.WorkflowResult) <-chan orchestration.Segment
}

type Memory interface {
	AppendTurns(ctx context.Context, req model.ChatRequest) error
	StoreAssistantMessage(ctx context.Context, req model.ChatRequest, msg model.ChatMessage, wf model.WorkflowResult) error
}

// Dependencies are the collaborators of one turn. Tools may be nil when
// no tool backend is configured.
type Dependencies struct {
	Router       Router
	Retriever    Retriever
	Workflow     WorkflowEngine
	Tools        ToolExecutor
	Orchestrator Orchestrator
	Memory       Memory
}

type Config struct {
	// EventBuffer bounds the events queued ahead of a slow consumer.
	EventBuffer int
}

type Service struct {
	deps   Dependencies
	buffer int
	logger logging.Logger
}

func NewService(deps Dependencies, cfg Config, logger logging.Logger) *Service {
	buffer := cfg.EventBuffer
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	return &Service{deps: deps, buffer: buffer, logger: logger}
}

// turnPlan is what the pipeline knows before the LLM runs.
type turnPlan struct {
	intent   string
	chunks   []model.RetrievedChunk
	workflow model.WorkflowResult
	tool     *model.ToolExecutionResult
}

// Stream runs one turn and returns its events: THINKING, an optional
// TOOL_RESULT, PARTIALs and exactly one FINAL, after which the channel is
// closed. Only a malformed request is rejected. Cancelling ctx stops the
// producer and closes the channel without further persistence.
func (s *Service) Stream(ctx context.Context, req model.ChatRequest) (<-chan model.Event, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ctx = reqctx.FromRequest(ctx, req)
	s.appendTurns(ctx, req)

	events := make(chan model.Event, s.buffer)
	go s.produce(ctx, req, events)
	return events, nil
}

func (s *Service) produce(ctx context.Context, req model.ChatRequest, events chan<- model.Event) {
	defer close(events)
	log := s.logger.WithFields(reqctx.LogFields(ctx))
	timer := newTTFTTimer(req.TenantID)
	finalSent := false

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Chat turn panicked")
			if !finalSent && ctx.Err() == nil {
				emit(ctx, events, finalEvent("", fallbackAnswer()))
			}
		}
	}()

	if !emit(ctx, events, model.Event{Type: model.EventThinking, Text: thinkingRouter}) {
		return
	}

	t := s.prepare(ctx, req)
	timer.intent = t.intent
	if t.tool != nil {
		frame := model.Event{
			Type: model.EventToolResult,
			Text: t.tool.Detail,
			Data: model.ToolResultData{Tool: t.tool.ToolName, Success: t.tool.Success},
		}
		if !emit(ctx, events, frame) {
			return
		}
	}

	var answer orchestration.Answer
	finished := false
	for segment := range s.deps.Orchestrator.Stream(ctx, req, t.intent, t.chunks, t.workflow) {
		if segment.Type == orchestration.SegmentFinal {
			answer = segment.Answer
			finished = true
			continue
		}
		if strings.TrimSpace(segment.Text) == "" {
			continue
		}
		timer.observe()
		if !emit(ctx, events, model.Event{Type: model.EventPartial, Text: segment.Text}) {
			return
		}
	}
	if ctx.Err() != nil {
		log.Debug("Chat consumer went away before the final answer")
		return
	}
	if !finished {
		log.Warn("Orchestration ended without a final answer")
		answer = fallbackAnswer()
	}

	answer, _ = s.finish(ctx, req, t, answer, true)
	timer.observe()
	finalSent = true
	emit(ctx, events, finalEvent(t.intent, answer))
}

// Complete runs the same turn without streaming.
func (s *Service) Complete(ctx context.Context, req model.ChatRequest) (model.ChatResponse, error) {
	if err := req.Validate(); err != nil {
		return model.ChatResponse{}, err
	}
	ctx = reqctx.FromRequest(ctx, req)
	s.appendTurns(ctx, req)

	t := s.prepare(ctx, req)
	answer := s.deps.Orchestrator.Orchestrate(ctx, req, t.intent, t.chunks, t.workflow)
	answer, msg := s.finish(ctx, req, t, answer, false)

	messages := make([]model.ChatMessage, 0, len(req.Turns)+1)
	for _, turn := range req.Turns {
		messages = append(messages, model.NewChatMessage(turn.Role, turn.Content, false))
	}
	messages = append(messages, msg)

	chunks := t.chunks
	if chunks == nil {
		chunks = []model.RetrievedChunk{}
	}
	wf := t.workflow.WithResponse(answer.Text)
	return model.ChatResponse{
		ConversationID: req.ConversationID,
		TenantID:       req.TenantID,
		Messages:       messages,
		Retrieval:      model.RetrievalSummary{Intent: t.intent, Chunks: chunks},
		Workflow: model.WorkflowSummary{
			WorkflowID: wf.WorkflowID,
			State:      wf.State,
			Slots:      wf.Slots,
			ToolResult: wf.ToolResult,
		},
		Citations:       answer.Citations,
		GuardrailAction: answer.GuardrailAction,
	}, nil
}

func (s *Service) appendTurns(ctx context.Context, req model.ChatRequest) {
	if err := s.deps.Memory.AppendTurns(ctx, req); err != nil {
		s.logger.WithFields(reqctx.LogFields(ctx)).WithError(err).Error("Failed to persist incoming turns")
	}
}

// prepare routes the turn, retrieves knowledge, advances the workflow and
// runs the tool the workflow asks for.
func (s *Service) prepare(ctx context.Context, req model.ChatRequest) turnPlan {
	intent := s.deps.Router.Route(ctx, req)
	t := turnPlan{
		intent:   intent,
		chunks:   s.deps.Retriever.Retrieve(ctx, req, intent),
		workflow: s.deps.Workflow.Handle(ctx, req, intent),
	}
	if !t.workflow.HasTool() {
		return t
	}

	var result model.ToolExecutionResult
	if s.deps.Tools == nil {
		result = model.ToolExecutionResult{ToolName: t.workflow.ToolToInvoke, Detail: "No adapter configured"}
	} else {
		result = s.deps.Tools.Execute(ctx, t.workflow.ToolToInvoke, req, t.workflow.Slots)
	}
	t.tool = &result
	t.workflow = t.workflow.WithToolResult(result.ToCallResult())
	return t
}

// finish applies the knowledge guard, records answer metrics and persists
// the assistant reply with the workflow checkpoint.
func (s *Service) finish(ctx context.Context, req model.ChatRequest, t turnPlan, answer orchestration.Answer, streaming bool) (orchestration.Answer, model.ChatMessage) {
	rag := orchestration.IsRAGIntent(t.intent)
	answer = orchestration.GuardKnowledge(answer, rag, len(t.chunks) > 0)
	if answer.Citations == nil {
		answer.Citations = []model.Citation{}
	}

	if rag {
		citationsTotal.WithLabelValues(req.TenantID, strconv.FormatBool(len(answer.Citations) > 0)).Inc()
	}
	if answer.GuardrailAction != "" && answer.GuardrailAction != orchestration.GuardrailAllow {
		guardrailActions.WithLabelValues(answer.GuardrailAction).Inc()
	}

	msg := model.NewChatMessage(model.RoleAssistant, answer.Text, streaming)
	if err := s.deps.Memory.StoreAssistantMessage(ctx, req, msg, t.workflow.WithResponse(answer.Text)); err != nil {
		s.logger.WithFields(reqctx.LogFields(ctx)).WithError(err).Error("Failed to persist assistant message")
	}
	return answer, msg
}

func fallbackAnswer() orchestration.Answer {
	return orchestration.Answer{
		Text:            orchestration.FallbackMessage,
		Citations:       []model.Citation{},
		GuardrailAction: orchestration.GuardrailError,
	}
}

func finalEvent(intent string, answer orchestration.Answer) model.Event {
	return model.Event{
		Type: model.EventFinal,
		Text: answer.Text,
		Data: model.FinalData{
			Intent:          intent,
			Citations:       answer.Citations,
			GuardrailAction: answer.GuardrailAction,
		},
	}
}

func emit(ctx context.Context, events chan<- model.Event, event model.Event) bool {
	select {
	case events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}
