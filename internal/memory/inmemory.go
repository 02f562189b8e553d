package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Ahabibm4/chatbot/internal/model"
)

type convKey struct {
	tenantID       string
	conversationID string
}

type stateKey struct {
	convKey
	workflowID string
}

type conversation struct {
	messages []model.ChatMessage
}

// InMemoryStore keeps memory in process. It is meant for local runs and
// tests; nothing survives a restart.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[convKey]*conversation
	states        map[stateKey]model.WorkflowState
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		conversations: make(map[convKey]*conversation),
		states:        make(map[stateKey]model.WorkflowState),
	}
}

func (s *InMemoryStore) AppendTurns(_ context.Context, req model.ChatRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.ensure(req)
	now := time.Now().UTC()
	for _, turn := range req.Turns {
		conv.messages = append(conv.messages, model.ChatMessage{
			ID:        uuid.New(),
			Role:      turn.Role,
			Content:   turn.Content,
			CreatedAt: now,
		})
	}
	return nil
}

func (s *InMemoryStore) StoreAssistantMessage(_ context.Context, req model.ChatRequest, msg model.ChatMessage, wf model.WorkflowResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.ensure(req)
	conv.messages = append(conv.messages, msg)
	if persistsWorkflow(wf) {
		s.states[stateKey{convKey{req.TenantID, req.ConversationID}, wf.WorkflowID}] = wf.Snapshot()
	}
	return nil
}

func (s *InMemoryStore) LoadWorkflowState(_ context.Context, tenantID, conversationID, workflowID string) (model.WorkflowState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[stateKey{convKey{tenantID, conversationID}, workflowID}]
	if !ok {
		return model.WorkflowState{}, ErrWorkflowStateNotFound
	}
	state.Slots = maps.Clone(state.Slots)
	return state, nil
}

func (s *InMemoryStore) SaveWorkflowState(_ context.Context, tenantID, conversationID, workflowID string, state model.WorkflowState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state.Slots = maps.Clone(state.Slots)
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}
	s.states[stateKey{convKey{tenantID, conversationID}, workflowID}] = state
	return nil
}

// History returns the tenant's transcript for the conversation, empty when
// the tenant has none.
func (s *InMemoryStore) History(_ context.Context, tenantID, conversationID string) ([]model.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[convKey{tenantID, conversationID}]
	if !ok {
		return []model.ChatMessage{}, nil
	}
	return slices.Clone(conv.messages), nil
}

func (s *InMemoryStore) ensure(req model.ChatRequest) *conversation {
	key := convKey{req.TenantID, req.ConversationID}
	conv, ok := s.conversations[key]
	if !ok {
		conv = &conversation{}
		s.conversations[key] = conv
	}
	return conv
}
