package tools

import (
	"context"
	"encoding/json"

	"github.com/Ahabibm4/chatbot/internal/model"
)

// Tool names, equal to the intents that request them.
const (
	ToolRescheduleDelivery = "RESCHEDULE_DELIVERY"
	ToolTrackJob           = "TRACK_JOB"
	ToolCreateTicket       = "CREATE_TICKET"
)

// RescheduleAdapter asks the operations API to move a delivery window.
type RescheduleAdapter struct {
	api OperationsAPI
}

func NewRescheduleAdapter(api OperationsAPI) *RescheduleAdapter {
	return &RescheduleAdapter{api: api}
}

func (a *RescheduleAdapter) Specification() Specification {
	return Specification{
		Name:           ToolRescheduleDelivery,
		RequiredRoles:  []string{"BO"},
		InputSchema:    map[string]FieldType{"jobId": FieldString, "newWindow": FieldString},
		RequiredFields: []string{"jobId", "newWindow"},
		Audit:          true,
	}
}

func (a *RescheduleAdapter) Execute(ctx context.Context, req model.ChatRequest, slots map[string]any) model.ToolExecutionResult {
	jobID, _ := slots["jobId"].(string)
	window, _ := slots["newWindow"].(string)
	if err := a.api.RescheduleJob(ctx, jobID, window, req.UserID); err != nil {
		return model.ToolExecutionResult{ToolName: ToolRescheduleDelivery, Detail: err.Error()}
	}
	return model.ToolExecutionResult{ToolName: ToolRescheduleDelivery, Success: true, Detail: "Reschedule requested"}
}

// TrackAdapter fetches the current status of a job.
type TrackAdapter struct {
	api OperationsAPI
}

func NewTrackAdapter(api OperationsAPI) *TrackAdapter {
	return &TrackAdapter{api: api}
}

func (a *TrackAdapter) Specification() Specification {
	return Specification{
		Name:           ToolTrackJob,
		RequiredRoles:  []string{"CP", "BO"},
		InputSchema:    map[string]FieldType{"jobId": FieldString},
		RequiredFields: []string{"jobId"},
	}
}

func (a *TrackAdapter) Execute(ctx context.Context, _ model.ChatRequest, slots map[string]any) model.ToolExecutionResult {
	jobID, _ := slots["jobId"].(string)
	status, err := a.api.TrackJob(ctx, jobID)
	if err != nil {
		return model.ToolExecutionResult{ToolName: ToolTrackJob, Detail: err.Error()}
	}
	detail := "No status"
	if len(status) > 0 {
		if raw, err := json.Marshal(status); err == nil {
			detail = string(raw)
		}
	}
	return model.ToolExecutionResult{ToolName: ToolTrackJob, Success: true, Detail: detail}
}

// TicketAdapter opens a support ticket.
type TicketAdapter struct {
	api OperationsAPI
}

func NewTicketAdapter(api OperationsAPI) *TicketAdapter {
	return &TicketAdapter{api: api}
}

func (a *TicketAdapter) Specification() Specification {
	return Specification{
		Name:           ToolCreateTicket,
		RequiredRoles:  []string{"CP", "BO"},
		InputSchema:    map[string]FieldType{"summary": FieldString},
		RequiredFields: []string{"summary"},
		Audit:          true,
	}
}

func (a *TicketAdapter) Execute(ctx context.Context, req model.ChatRequest, slots map[string]any) model.ToolExecutionResult {
	summary, _ := slots["summary"].(string)
	if summary == "" {
		summary = "Support ticket"
	}
	if err := a.api.CreateTicket(ctx, req.TenantID, summary, req.UserID); err != nil {
		return model.ToolExecutionResult{ToolName: ToolCreateTicket, Detail: err.Error()}
	}
	return model.ToolExecutionResult{ToolName: ToolCreateTicket, Success: true, Detail: "Ticket submitted"}
}

// DefaultAdapters returns the three NetCourier adapters over one client.
func DefaultAdapters(api OperationsAPI) []Adapter {
	return []Adapter{NewRescheduleAdapter(api), NewTrackAdapter(api), NewTicketAdapter(api)}
}
