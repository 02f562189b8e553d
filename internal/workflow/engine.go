// Package workflow runs the slot-filling state machines behind the
// reschedule, track and ticket intents.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/Ahabibm4/chatbot/internal/model"
	"github.com/Ahabibm4/chatbot/internal/reqctx"
	"github.com/Ahabibm4/chatbot/pkg/logging"
)

const fallbackResponse = "Let me look that up for you."

// StateStore persists workflow checkpoints keyed by tenant, conversation and
// workflow. Load returns model.ErrWorkflowStateNotFound for a conversation
// without one.
type StateStore interface {
	LoadWorkflowState(ctx context.Context, tenantID, conversationID, workflowID string) (model.WorkflowState, error)
	SaveWorkflowState(ctx context.Context, tenantID, conversationID, workflowID string, state model.WorkflowState) error
}

type slotDef struct {
	key     string
	event   Event
	extract extractor
}

type definition struct {
	start      Event
	ready      State
	slots      []slotDef
	transition transitionFunc
}

// definitions are keyed by intent; the workflow id equals the intent.
var definitions = map[string]definition{
	"RESCHEDULE_DELIVERY": {
		start: EventStartReschedule,
		ready: RescheduleReady,
		slots: []slotDef{
			{key: SlotJobID, event: EventJobIDCaptured, extract: extractJobID},
			{key: SlotNewWindow, event: EventWindowCaptured, extract: extractWindow},
		},
		transition: rescheduleTransition,
	},
	"TRACK_JOB": {
		start: EventStartTrack,
		ready: TrackReady,
		slots: []slotDef{
			{key: SlotJobID, event: EventJobIDCaptured, extract: extractJobID},
		},
		transition: trackTransition,
	},
	"CREATE_TICKET": {
		start: EventStartTicket,
		ready: TicketReady,
		slots: []slotDef{
			{key: SlotSummary, event: EventSummaryCaptured, extract: latestUserMessage},
		},
		transition: ticketTransition,
	},
}

// Engine advances one workflow per turn. It owns the slot map for the
// duration of Handle; the store only sees checkpoints.
type Engine struct {
	store  StateStore
	logger logging.Logger
}

// NewEngine returns an engine. A nil store disables persistence.
func NewEngine(store StateStore, logger logging.Logger) *Engine {
	return &Engine{store: store, logger: logger}
}

// Handle loads the checkpoint for the intent's workflow, applies whatever
// slot captures the turns support, and persists the result. Persistence
// failures are logged and do not affect the returned result.
func (e *Engine) Handle(ctx context.Context, req model.ChatRequest, intent string) model.WorkflowResult {
	def, ok := definitions[intent]
	if !ok {
		return model.WorkflowResult{
			WorkflowID:      intent,
			State:           string(StateRespond),
			Slots:           map[string]any{},
			ResponseMessage: fallbackResponse,
		}
	}

	log := e.logger.WithFields(reqctx.LogFields(ctx)).WithField("workflow_id", intent)
	m := e.load(ctx, req.TenantID, req.ConversationID, intent, def, log)
	m.apply(def, req)

	reply, tool := respond(m.state, m.slots)
	result := model.WorkflowResult{
		WorkflowID:      intent,
		State:           string(m.state),
		Slots:           maps.Clone(m.slots),
		ToolToInvoke:    tool,
		ResponseMessage: reply,
	}
	for _, ev := range m.fired {
		transitionsTotal.WithLabelValues(intent, string(ev)).Inc()
	}
	log.WithFields(logging.Fields{
		"state":  result.State,
		"events": len(m.fired),
		"tool":   tool,
	}).Debug("Workflow advanced")

	e.persist(ctx, req.TenantID, req.ConversationID, result, log)
	return result
}

func (e *Engine) load(ctx context.Context, tenantID, conversationID, workflowID string, def definition, log logging.Entry) *machine {
	m := &machine{state: StateStart, slots: map[string]any{}, transition: def.transition}
	if e.store == nil {
		return m
	}
	snap, err := e.store.LoadWorkflowState(ctx, tenantID, conversationID, workflowID)
	switch {
	case errors.Is(err, model.ErrWorkflowStateNotFound):
		return m
	case err != nil:
		log.WithError(err).Warn("Failed to load workflow state; starting fresh")
		return m
	}
	m.state = parseState(snap.State)
	if snap.Slots != nil {
		m.slots = maps.Clone(snap.Slots)
	}
	return m
}

func (e *Engine) persist(ctx context.Context, tenantID, conversationID string, result model.WorkflowResult, log logging.Entry) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveWorkflowState(ctx, tenantID, conversationID, result.WorkflowID, result.Snapshot()); err != nil {
		persistFailures.Inc()
		log.WithError(err).Warn("Failed to persist workflow state")
	}
}

// machine is the per-turn working copy of one workflow.
type machine struct {
	state      State
	slots      map[string]any
	transition transitionFunc
	fired      []Event
}

func (m *machine) slot(key string) string {
	v, _ := m.slots[key].(string)
	return v
}

// fire applies an event. Undefined transitions and blank captures are
// ignored.
func (m *machine) fire(ev Event, value string) {
	if ev.capturesSlot() && strings.TrimSpace(value) == "" {
		return
	}
	next, slot, ok := m.transition(m.state, ev)
	if !ok {
		return
	}
	if ev == EventReset {
		clear(m.slots)
	}
	if slot != "" {
		m.slots[slot] = value
	}
	m.state = next
	m.fired = append(m.fired, ev)
}

// apply replays the captures the turns support. Values equal to the stored
// slot do not fire, so replaying the same turns is a no-op. A READY
// workflow that sees a different value resets, clearing every slot, and
// re-captures only what the current turns supply.
func (m *machine) apply(def definition, req model.ChatRequest) {
	if m.state == StateStart {
		m.fire(def.start, "")
	}

	values := make(map[string]string, len(def.slots))
	changed := false
	for _, s := range def.slots {
		v, ok := s.extract(req)
		if !ok {
			continue
		}
		values[s.key] = v
		if _, stored := m.slots[s.key]; !stored || m.slot(s.key) != v {
			changed = true
		}
	}

	if m.state == def.ready && changed {
		m.fire(EventReset, "")
	}

	for _, s := range def.slots {
		v, ok := values[s.key]
		if !ok {
			continue
		}
		if _, stored := m.slots[s.key]; stored && m.slot(s.key) == v {
			continue
		}
		m.fire(s.event, v)
	}
}

// respond returns the canned reply and tool for a state.
func respond(state State, slots map[string]any) (reply, tool string) {
	str := func(key, fallback string) string {
		if v, ok := slots[key].(string); ok && v != "" {
			return v
		}
		return fallback
	}
	switch state {
	case RescheduleCollectJobID:
		return "Sure, which job would you like to reschedule?", ""
	case RescheduleCollectWindow:
		return "What delivery window should I request?", ""
	case RescheduleReady:
		return fmt.Sprintf("I'll reschedule job %s to %s. Let me confirm that for you.",
			str(SlotJobID, ""), str(SlotNewWindow, "the requested window")), "RESCHEDULE_DELIVERY"
	case TrackCollectJobID:
		return "Please provide the job number you'd like to track.", ""
	case TrackReady:
		return fmt.Sprintf("Checking the latest status for job %s.", str(SlotJobID, "")), "TRACK_JOB"
	case TicketCollectSummary:
		return "Could you share a quick summary for the ticket?", ""
	case TicketReady:
		return "I'll log a support ticket with that information.", "CREATE_TICKET"
	}
	return fallbackResponse, ""
}
