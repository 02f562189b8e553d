package workflow

// State is a workflow state. States are unique across workflows so a
// persisted value identifies both the workflow and its position.
type State string

const (
	StateStart State = "START"

	RescheduleCollectJobID  State = "RESCHEDULE_COLLECT_JOB_ID"
	RescheduleCollectWindow State = "RESCHEDULE_COLLECT_WINDOW"
	RescheduleReady         State = "RESCHEDULE_READY"

	TrackCollectJobID State = "TRACK_COLLECT_JOB_ID"
	TrackReady        State = "TRACK_READY"

	TicketCollectSummary State = "TICKET_COLLECT_SUMMARY"
	TicketReady          State = "TICKET_READY"

	// StateRespond marks a turn that no workflow handles. It is never persisted.
	StateRespond State = "RESPOND"
)

var knownStates = map[State]bool{
	StateStart:              true,
	RescheduleCollectJobID:  true,
	RescheduleCollectWindow: true,
	RescheduleReady:         true,
	TrackCollectJobID:       true,
	TrackReady:              true,
	TicketCollectSummary:    true,
	TicketReady:             true,
}

// parseState maps a persisted value to a State. Unknown values restart the
// workflow.
func parseState(raw string) State {
	if s := State(raw); knownStates[s] {
		return s
	}
	return StateStart
}

// Event drives a transition.
type Event string

const (
	EventStartReschedule Event = "START_RESCHEDULE"
	EventStartTrack      Event = "START_TRACK"
	EventStartTicket     Event = "START_TICKET"
	EventJobIDCaptured   Event = "JOB_ID_CAPTURED"
	EventWindowCaptured  Event = "WINDOW_CAPTURED"
	EventSummaryCaptured Event = "SUMMARY_CAPTURED"
	EventReset           Event = "RESET"
)

func (e Event) capturesSlot() bool {
	switch e {
	case EventJobIDCaptured, EventWindowCaptured, EventSummaryCaptured:
		return true
	}
	return false
}

// Slot keys.
const (
	SlotJobID     = "jobId"
	SlotNewWindow = "newWindow"
	SlotSummary   = "summary"
)

// transitionFunc returns the next state and the slot the event writes, if
// any. ok is false for transitions the workflow does not define.
type transitionFunc func(State, Event) (next State, slot string, ok bool)

func rescheduleTransition(s State, e Event) (State, string, bool) {
	switch {
	case s == StateStart && e == EventStartReschedule:
		return RescheduleCollectJobID, "", true
	case s == RescheduleCollectJobID && e == EventJobIDCaptured:
		return RescheduleCollectWindow, SlotJobID, true
	case s == RescheduleCollectWindow && e == EventWindowCaptured:
		return RescheduleReady, SlotNewWindow, true
	case s == RescheduleReady && e == EventReset:
		return RescheduleCollectJobID, "", true
	}
	return s, "", false
}

func trackTransition(s State, e Event) (State, string, bool) {
	switch {
	case s == StateStart && e == EventStartTrack:
		return TrackCollectJobID, "", true
	case s == TrackCollectJobID && e == EventJobIDCaptured:
		return TrackReady, SlotJobID, true
	case s == TrackReady && e == EventReset:
		return TrackCollectJobID, "", true
	}
	return s, "", false
}

func ticketTransition(s State, e Event) (State, string, bool) {
	switch {
	case s == StateStart && e == EventStartTicket:
		return TicketCollectSummary, "", true
	case s == TicketCollectSummary && e == EventSummaryCaptured:
		return TicketReady, SlotSummary, true
	case s == TicketReady && e == EventReset:
		return TicketCollectSummary, "", true
	}
	return s, "", false
}
