// Package tools executes side-effecting actions on behalf of a workflow,
// behind a shared authorization, validation and audit policy.
package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Ahabibm4/chatbot/internal/model"
	"github.com/Ahabibm4/chatbot/internal/reqctx"
	"github.com/Ahabibm4/chatbot/pkg/logging"
)

// ErrNoAdapter is reported when no adapter is registered for a tool name.
var ErrNoAdapter = errors.New("no adapter configured")

const detailNoAdapter = "No adapter configured"

// Adapter performs one tool's external call. Adapters are thin: policy is
// enforced by the Registry before Execute runs.
type Adapter interface {
	Specification() Specification
	Execute(ctx context.Context, req model.ChatRequest, slots map[string]any) model.ToolExecutionResult
}

// Registry maps tool names to adapters.
type Registry struct {
	adapters map[string]Adapter
	audit    AuditSink
	logger   logging.Logger
}

// NewRegistry builds a registry. Names are matched case-insensitively.
func NewRegistry(audit AuditSink, logger logging.Logger, adapters ...Adapter) *Registry {
	r := &Registry{
		adapters: make(map[string]Adapter, len(adapters)),
		audit:    audit,
		logger:   logger,
	}
	for _, adapter := range adapters {
		r.Register(adapter)
	}
	return r
}

// Register adds or replaces an adapter.
func (r *Registry) Register(adapter Adapter) {
	r.adapters[strings.ToUpper(adapter.Specification().Name)] = adapter
}

// Lookup returns the adapter for a tool, or ErrNoAdapter.
func (r *Registry) Lookup(toolName string) (Adapter, error) {
	adapter, ok := r.adapters[strings.ToUpper(strings.TrimSpace(toolName))]
	if !ok {
		return nil, fmt.Errorf("%w for %q", ErrNoAdapter, toolName)
	}
	return adapter, nil
}

// Execute authorizes, validates and runs a tool. Denials and adapter
// failures come back as unsuccessful results, never as errors.
func (r *Registry) Execute(ctx context.Context, toolName string, req model.ChatRequest, slots map[string]any) model.ToolExecutionResult {
	adapter, err := r.Lookup(toolName)
	if err != nil {
		return r.deny(ctx, toolName, req, detailNoAdapter, detailNoAdapter)
	}
	spec := adapter.Specification()

	if !spec.Authorized(req.Roles()) {
		return r.deny(ctx, toolName, req, "Caller lacks required role", "Caller is not authorized for tool "+toolName)
	}

	sanitized, err := spec.Validate(slots)
	if err != nil {
		return r.deny(ctx, toolName, req, err.Error(), err.Error())
	}

	result := adapter.Execute(ctx, req, sanitized)
	if result.ToolName == "" {
		result.ToolName = spec.Name
	}
	invocationsTotal.WithLabelValues(outcomeAllowed).Inc()
	r.record(ctx, NewAuditEvent(AuditExecuted, toolName, req, result.Success, result.Detail, sanitized, spec.Audit))
	return result
}

func (r *Registry) deny(ctx context.Context, toolName string, req model.ChatRequest, reason, detail string) model.ToolExecutionResult {
	invocationsTotal.WithLabelValues(outcomeDenied).Inc()
	r.record(ctx, NewAuditEvent(AuditDenied, toolName, req, false, reason, nil, true))
	return model.ToolExecutionResult{ToolName: toolName, Success: false, Detail: detail}
}

func (r *Registry) record(ctx context.Context, event AuditEvent) {
	if r.audit == nil {
		return
	}
	if err := r.audit.Record(ctx, event); err != nil {
		r.logger.WithFields(reqctx.LogFields(ctx)).WithError(err).WithField("tool", event.Tool).Warn("Failed to record tool audit event")
	}
}
